package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"irpf/internal/platform/postgres"
	"irpf/internal/records/models"
	id "irpf/pkg/domain"
	"irpf/pkg/platform/sentinel"
	txcontext "irpf/pkg/platform/tx"

	"github.com/google/uuid"
)

// PostgresStore persists records in the financial_records table. The owner is
// part of every predicate so another user's row reads as not found.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const recordColumns = `id, owner_id, category, amount, period_year, period_month, record_date,
	status, instrument_class, buys, sells, details, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, record *models.Record) error {
	details, err := json.Marshal(record.Details)
	if err != nil {
		return fmt.Errorf("marshal record details: %w", err)
	}
	year, month := periodArgs(record.Period)
	_, err = txcontext.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO financial_records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		uuid.UUID(record.ID),
		uuid.UUID(record.OwnerID),
		string(record.Category),
		record.Amount,
		year,
		month,
		dateArg(record.Date),
		string(record.Status),
		string(record.InstrumentClass),
		record.Buys,
		record.Sells,
		string(details),
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByOwner(ctx context.Context, owner id.UserID, filter models.Filter) ([]*models.Record, error) {
	where := []string{"owner_id = $1"}
	args := []any{uuid.UUID(owner)}
	if filter.Category != "" {
		args = append(args, string(filter.Category))
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.Year != 0 {
		args = append(args, filter.Year)
		where = append(where, fmt.Sprintf("(period_year IS NULL OR period_year = $%d)", len(args)))
	}
	if !filter.Period.IsZero() {
		args = append(args, filter.Period.Year, int(filter.Period.Month))
		where = append(where, fmt.Sprintf("period_year = $%d AND period_month = $%d", len(args)-1, len(args)))
	}

	query := `SELECT ` + recordColumns + ` FROM financial_records WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY period_year DESC NULLS LAST, period_month DESC NULLS LAST, created_at DESC`
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []*models.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) FindByOwnerAndID(ctx context.Context, owner id.UserID, recordID id.RecordID) (*models.Record, error) {
	row := txcontext.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM financial_records WHERE id = $1 AND owner_id = $2`,
		uuid.UUID(recordID), uuid.UUID(owner))
	r, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, err
	}
	return r, nil
}

func (s *PostgresStore) UpdateByOwner(ctx context.Context, record *models.Record) error {
	details, err := json.Marshal(record.Details)
	if err != nil {
		return fmt.Errorf("marshal record details: %w", err)
	}
	year, month := periodArgs(record.Period)
	res, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, `
		UPDATE financial_records
		SET amount = $3, period_year = $4, period_month = $5, record_date = $6, status = $7,
			instrument_class = $8, buys = $9, sells = $10, details = $11, updated_at = $12
		WHERE id = $1 AND owner_id = $2
	`,
		uuid.UUID(record.ID),
		uuid.UUID(record.OwnerID),
		record.Amount,
		year,
		month,
		dateArg(record.Date),
		string(record.Status),
		string(record.InstrumentClass),
		record.Buys,
		record.Sells,
		string(details),
		record.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("update record: %w", err)
	}
	return expectOneRow(res)
}

func (s *PostgresStore) DeleteByOwnerAndID(ctx context.Context, owner id.UserID, recordID id.RecordID) error {
	res, err := txcontext.Exec(ctx, s.db).ExecContext(ctx,
		`DELETE FROM financial_records WHERE id = $1 AND owner_id = $2`,
		uuid.UUID(recordID), uuid.UUID(owner))
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
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

func scanRecord(row rowScanner) (*models.Record, error) {
	var (
		r         models.Record
		recordID  uuid.UUID
		ownerID   uuid.UUID
		category  string
		year      sql.NullInt32
		month     sql.NullInt32
		date      sql.NullTime
		status    string
		class     string
		detailRaw []byte
	)
	err := row.Scan(
		&recordID,
		&ownerID,
		&category,
		&r.Amount,
		&year,
		&month,
		&date,
		&status,
		&class,
		&r.Buys,
		&r.Sells,
		&detailRaw,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan record: %w", err)
	}
	r.ID = id.RecordID(recordID)
	r.OwnerID = id.UserID(ownerID)
	r.Category = models.Category(category)
	r.Status = models.Status(status)
	r.InstrumentClass = models.InstrumentClass(class)
	if year.Valid && month.Valid {
		r.Period = models.Period{Year: int(year.Int32), Month: time.Month(month.Int32)}
	}
	if date.Valid {
		d := date.Time.UTC()
		r.Date = &d
	}
	if len(detailRaw) > 0 {
		if err := json.Unmarshal(detailRaw, &r.Details); err != nil {
			return nil, fmt.Errorf("unmarshal record details: %w", err)
		}
	}
	return &r, nil
}

func periodArgs(p models.Period) (any, any) {
	if p.IsZero() {
		return nil, nil
	}
	return p.Year, int(p.Month)
}

func dateArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
