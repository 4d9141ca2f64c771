package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "irpf/pkg/domain-errors"
)

// TestParseUUID_Invariants checks that identifiers are valid, non-empty, non-nil UUIDs.
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseUserID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseUserID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseUserID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseUserID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, UserID(validUUID), id)
	})
}

func TestParseID_TrustBoundary(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE users;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Empty string", "", true},
		{"Nil UUID", uuid.Nil.String(), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRecordID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

// TestOwnerIsolation_TypedIDs documents that owners and records never compare equal by accident.
func TestOwnerIsolation_TypedIDs(t *testing.T) {
	ownerA := NewUserID()
	ownerB := NewUserID()

	assert.NotEqual(t, ownerA, ownerB)
	assert.False(t, ownerA.IsNil())
	assert.True(t, UserID{}.IsNil())
}

func TestAllIDTypes_ConsistentBehavior(t *testing.T) {
	validUUID := uuid.New().String()
	invalidInputs := []string{"", "invalid", uuid.Nil.String()}

	t.Run("all accept valid UUID", func(t *testing.T) {
		_, errUser := ParseUserID(validUUID)
		_, errRecord := ParseRecordID(validUUID)
		_, errDeclaration := ParseDeclarationID(validUUID)
		_, errSnapshot := ParseSnapshotID(validUUID)

		require.NoError(t, errUser)
		require.NoError(t, errRecord)
		require.NoError(t, errDeclaration)
		require.NoError(t, errSnapshot)
	})

	for _, input := range invalidInputs {
		t.Run("all reject: "+input, func(t *testing.T) {
			_, errUser := ParseUserID(input)
			_, errRecord := ParseRecordID(input)
			_, errDeclaration := ParseDeclarationID(input)
			_, errSnapshot := ParseSnapshotID(input)

			require.Error(t, errUser)
			require.Error(t, errRecord)
			require.Error(t, errDeclaration)
			require.Error(t, errSnapshot)
		})
	}
}

func TestIDs_JSONAsString(t *testing.T) {
	recordID := NewRecordID()
	payload, err := json.Marshal(map[string]RecordID{"id": recordID})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"`+recordID.String()+`"}`, string(payload))

	var decoded map[string]RecordID
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, recordID, decoded["id"])
}
