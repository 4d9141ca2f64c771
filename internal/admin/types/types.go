// Package types holds the read models the admin surface works with, decoupled
// from the identity and declaration packages.
package types

import (
	"time"

	id "irpf/pkg/domain"
)

type AdminUser struct {
	ID        id.UserID
	Email     string
	FullName  string
	CreatedAt time.Time
	Admin     bool
}

type AdminDeclaration struct {
	ID          id.DeclarationID
	OwnerID     id.UserID
	Year        int
	Status      string
	Revision    int
	SubmittedAt *time.Time
}
