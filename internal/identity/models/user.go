// Package models holds the identity entities and request DTOs.
package models

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	id "irpf/pkg/domain"
	dErrors "irpf/pkg/domain-errors"
	"irpf/pkg/email"
)

// Role is an entry of the user_roles side table.
type Role string

const RoleAdmin Role = "admin"

// bcrypt ignores input past 72 bytes.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 72
)

// User is a registered taxpayer or staff member.
type User struct {
	ID           id.UserID `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewUser builds a user from a validated registration.
func NewUser(userID id.UserID, req *RegisterRequest, passwordHash string, now time.Time) *User {
	return &User{
		ID:           userID,
		Email:        req.Email,
		FullName:     req.FullName,
		PasswordHash: passwordHash,
		CreatedAt:    now,
	}
}

// NormalizeEmail lowercases and trims an address so lookups are case-insensitive.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

// Validate normalizes the request. A missing full name is derived from the
// email's local part.
func (r *RegisterRequest) Validate() error {
	r.Email = NormalizeEmail(r.Email)
	r.FullName = strings.TrimSpace(r.FullName)
	if r.Email == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	if addr, err := mail.ParseAddress(r.Email); err != nil || addr.Address != r.Email {
		return dErrors.New(dErrors.CodeValidation, "email is invalid")
	}
	if n := len(r.Password); n < MinPasswordLength || n > MaxPasswordLength {
		return dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("password must be between %d and %d bytes", MinPasswordLength, MaxPasswordLength))
	}
	if r.FullName == "" {
		r.FullName = email.DisplayName(r.Email)
	}
	return nil
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *LoginRequest) Validate() error {
	r.Email = NormalizeEmail(r.Email)
	if r.Email == "" || r.Password == "" {
		return dErrors.New(dErrors.CodeValidation, "email and password are required")
	}
	return nil
}

// TokenResult is issued on a successful login.
type TokenResult struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserID      id.UserID `json:"user_id"`
}
