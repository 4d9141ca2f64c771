// Package domain holds typed identifiers shared across bounded contexts.
//
// Each identifier wraps a UUID so the compiler rejects passing a record ID
// where an owner ID is expected. Parsing happens once at the trust boundary.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "irpf/pkg/domain-errors"
)

const maxIDLength = 64

type (
	UserID        uuid.UUID
	RecordID      uuid.UUID
	DeclarationID uuid.UUID
	SnapshotID    uuid.UUID
)

func (id UserID) String() string        { return uuid.UUID(id).String() }
func (id RecordID) String() string      { return uuid.UUID(id).String() }
func (id DeclarationID) String() string { return uuid.UUID(id).String() }
func (id SnapshotID) String() string    { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id RecordID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id DeclarationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id SnapshotID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id UserID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id RecordID) MarshalText() ([]byte, error)      { return uuid.UUID(id).MarshalText() }
func (id DeclarationID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id SnapshotID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }

func (id *UserID) UnmarshalText(b []byte) error        { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *RecordID) UnmarshalText(b []byte) error      { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *DeclarationID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *SnapshotID) UnmarshalText(b []byte) error    { return (*uuid.UUID)(id).UnmarshalText(b) }

// NewUserID generates a random user identifier.
func NewUserID() UserID { return UserID(uuid.New()) }

// NewRecordID generates a random financial record identifier.
func NewRecordID() RecordID { return RecordID(uuid.New()) }

// NewDeclarationID generates a random declaration identifier.
func NewDeclarationID() DeclarationID { return DeclarationID(uuid.New()) }

// NewSnapshotID generates a random snapshot identifier.
func NewSnapshotID() SnapshotID { return SnapshotID(uuid.New()) }

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user_id")
	return UserID(u), err
}

func ParseRecordID(s string) (RecordID, error) {
	u, err := parseUUID(s, "record_id")
	return RecordID(u), err
}

func ParseDeclarationID(s string) (DeclarationID, error) {
	u, err := parseUUID(s, "declaration_id")
	return DeclarationID(u), err
}

func ParseSnapshotID(s string) (SnapshotID, error) {
	u, err := parseUUID(s, "snapshot_id")
	return SnapshotID(u), err
}

// parseUUID rejects empty, oversized, malformed and nil identifiers.
func parseUUID(s, field string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" is required")
	}
	if len(s) > maxIDLength {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" is too long")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+field)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" must not be nil")
	}
	return u, nil
}
