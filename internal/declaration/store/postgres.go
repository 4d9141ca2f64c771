package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"irpf/internal/declaration/models"
	"irpf/internal/platform/postgres"
	id "irpf/pkg/domain"
	"irpf/pkg/platform/sentinel"
	txcontext "irpf/pkg/platform/tx"
)

// PostgresStore persists declarations in Postgres. Execute locks the row with
// SELECT ... FOR UPDATE for the duration of validate and mutate.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const declarationColumns = `id, owner_id, year, status, revision, created_at, updated_at, submitted_at`

func (s *PostgresStore) Create(ctx context.Context, d *models.Declaration) error {
	_, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO declarations (`+declarationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		uuid.UUID(d.ID),
		uuid.UUID(d.OwnerID),
		d.Year,
		string(d.Status),
		d.Revision,
		d.CreatedAt,
		d.UpdatedAt,
		d.SubmittedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert declaration: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByOwnerAndYear(ctx context.Context, owner id.UserID, year int) (*models.Declaration, error) {
	row := txcontext.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+declarationColumns+` FROM declarations WHERE owner_id = $1 AND year = $2`,
		uuid.UUID(owner), year)
	return scanDeclaration(row)
}

// FindForShare reads the declaration with a shared row lock held until the
// ambient transaction ends. Outside a transaction it is a plain read.
func (s *PostgresStore) FindForShare(ctx context.Context, owner id.UserID, year int) (*models.Declaration, error) {
	row := txcontext.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+declarationColumns+` FROM declarations WHERE owner_id = $1 AND year = $2 FOR SHARE`,
		uuid.UUID(owner), year)
	return scanDeclaration(row)
}

func (s *PostgresStore) ListByOwner(ctx context.Context, owner id.UserID) ([]*models.Declaration, error) {
	return s.list(ctx,
		`SELECT `+declarationColumns+` FROM declarations WHERE owner_id = $1 ORDER BY year DESC`,
		uuid.UUID(owner))
}

func (s *PostgresStore) ListByYear(ctx context.Context, year int) ([]*models.Declaration, error) {
	return s.list(ctx,
		`SELECT `+declarationColumns+` FROM declarations WHERE year = $1 ORDER BY created_at`,
		year)
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.Declaration, error) {
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query declarations: %w", err)
	}
	defer rows.Close()

	var out []*models.Declaration
	for rows.Next() {
		d, err := scanDeclaration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate declarations: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Execute(ctx context.Context, owner id.UserID, year int, validate func(*models.Declaration) error, mutate func(*models.Declaration) *models.Snapshot) (*models.Declaration, error) {
	var result *models.Declaration
	err := txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		exec := txcontext.Exec(ctx, s.db)
		row := exec.QueryRowContext(ctx,
			`SELECT `+declarationColumns+` FROM declarations WHERE owner_id = $1 AND year = $2 FOR UPDATE`,
			uuid.UUID(owner), year)
		d, err := scanDeclaration(row)
		if err != nil {
			return err
		}
		if err := validate(d); err != nil {
			return err
		}
		snap := mutate(d)

		if _, err := exec.ExecContext(ctx, `
			UPDATE declarations
			SET status = $2, revision = $3, updated_at = $4, submitted_at = $5
			WHERE id = $1
		`, uuid.UUID(d.ID), string(d.Status), d.Revision, d.UpdatedAt, d.SubmittedAt); err != nil {
			return fmt.Errorf("update declaration: %w", err)
		}
		if snap != nil {
			if err := insertSnapshot(ctx, exec, snap); err != nil {
				return err
			}
		}
		result = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func insertSnapshot(ctx context.Context, exec txcontext.Executor, snap *models.Snapshot) error {
	payload, err := json.Marshal(snap.Payload)
	if err != nil {
		return fmt.Errorf("marshal snapshot payload: %w", err)
	}
	recordIDs, err := json.Marshal(snap.RecordIDs)
	if err != nil {
		return fmt.Errorf("marshal snapshot record ids: %w", err)
	}
	_, err = exec.ExecContext(ctx, `
		INSERT INTO declaration_snapshots (id, declaration_id, revision, payload, record_ids, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		uuid.UUID(snap.ID),
		uuid.UUID(snap.DeclarationID),
		snap.Revision,
		string(payload),
		string(recordIDs),
		snap.CreatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListSnapshots(ctx context.Context, declarationID id.DeclarationID) ([]*models.Snapshot, error) {
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, `
		SELECT id, declaration_id, revision, payload, record_ids, created_at
		FROM declaration_snapshots
		WHERE declaration_id = $1
		ORDER BY revision
	`, uuid.UUID(declarationID))
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	out := []*models.Snapshot{}
	for rows.Next() {
		var (
			snap       models.Snapshot
			snapID     uuid.UUID
			declID     uuid.UUID
			payloadRaw []byte
			idsRaw     []byte
		)
		if err := rows.Scan(&snapID, &declID, &snap.Revision, &payloadRaw, &idsRaw, &snap.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if err := json.Unmarshal(payloadRaw, &snap.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot payload: %w", err)
		}
		if err := json.Unmarshal(idsRaw, &snap.RecordIDs); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot record ids: %w", err)
		}
		snap.ID = id.SnapshotID(snapID)
		snap.DeclarationID = id.DeclarationID(declID)
		out = append(out, &snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}

// Delete removes the declaration; snapshots cascade. Records are untouched.
func (s *PostgresStore) Delete(ctx context.Context, owner id.UserID, year int) error {
	res, err := txcontext.Exec(ctx, s.db).ExecContext(ctx,
		`DELETE FROM declarations WHERE owner_id = $1 AND year = $2`,
		uuid.UUID(owner), year)
	if err != nil {
		return fmt.Errorf("delete declaration: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeclaration(row rowScanner) (*models.Declaration, error) {
	var (
		d         models.Declaration
		declID    uuid.UUID
		ownerID   uuid.UUID
		status    string
		submitted sql.NullTime
	)
	err := row.Scan(&declID, &ownerID, &d.Year, &status, &d.Revision, &d.CreatedAt, &d.UpdatedAt, &submitted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan declaration: %w", err)
	}
	d.ID = id.DeclarationID(declID)
	d.OwnerID = id.UserID(ownerID)
	d.Status = models.Status(status)
	if submitted.Valid {
		at := submitted.Time
		d.SubmittedAt = &at
	}
	return &d, nil
}
