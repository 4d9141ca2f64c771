package audit

import (
	"context"
	"time"

	id "irpf/pkg/domain"
)

// EventCategory classifies audit events by retention and routing needs.
type EventCategory string

const (
	// CategoryCompliance covers changes to filing data; kept for the legal
	// retention period of a tax declaration.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers authentication and authorization outcomes.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine reads and lookups.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from services to capture key actions. It is transport
// agnostic so stores and relays can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	UserID    id.UserID
	// Subject is the affected entity (record id, declaration year, email).
	Subject string
	Action  string
	// Detail carries action-specific context such as the record category or
	// the target declaration state.
	Detail    string
	Reason    string
	RequestID string
	// ActorID is set when an admin acts on another user's data.
	ActorID string
}

type AuditEvent string

const (
	// Identity events
	EventUserRegistered AuditEvent = "user_registered"
	EventLoginSucceeded AuditEvent = "login_succeeded"
	EventLoginFailed    AuditEvent = "login_failed"

	// Record events
	EventRecordCreated  AuditEvent = "record_created"
	EventRecordUpdated  AuditEvent = "record_updated"
	EventRecordDisposed AuditEvent = "record_disposed"
	EventRecordDeleted  AuditEvent = "record_deleted"
	EventRecordLocked   AuditEvent = "record_mutation_locked"

	// Declaration events
	EventDeclarationCreated      AuditEvent = "declaration_created"
	EventDeclarationTransitioned AuditEvent = "declaration_transitioned"
	EventDeclarationDeleted      AuditEvent = "declaration_deleted"
	EventNetWorthJumpFlagged     AuditEvent = "net_worth_jump_flagged"

	// Admin events
	EventAdminAggregateViewed AuditEvent = "admin_aggregate_viewed"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventRecordCreated:           CategoryCompliance,
	EventRecordUpdated:           CategoryCompliance,
	EventRecordDisposed:          CategoryCompliance,
	EventRecordDeleted:           CategoryCompliance,
	EventDeclarationCreated:      CategoryCompliance,
	EventDeclarationTransitioned: CategoryCompliance,
	EventDeclarationDeleted:      CategoryCompliance,
	EventNetWorthJumpFlagged:     CategoryCompliance,

	EventLoginFailed:          CategorySecurity,
	EventRecordLocked:         CategorySecurity,
	EventAdminAggregateViewed: CategorySecurity,

	EventUserRegistered: CategoryOperations,
	EventLoginSucceeded: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByUser(ctx context.Context, userID id.UserID) ([]Event, error)
}
