package admin

import (
	"time"

	"irpf/internal/admin/types"
)

// UserInfoResponse is the HTTP response DTO for user info.
type UserInfoResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	CreatedAt time.Time `json:"created_at"`
	Admin     bool      `json:"admin"`
}

// UsersListResponse wraps the list of users for HTTP response.
type UsersListResponse struct {
	Users []*UserInfoResponse `json:"users"`
	Total int                 `json:"total"`
}

// DeclarationInfoResponse is the HTTP response DTO for one filing.
type DeclarationInfoResponse struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"owner_id"`
	Year        int        `json:"year"`
	Status      string     `json:"status"`
	Revision    int        `json:"revision"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
}

// DeclarationsListResponse wraps the declarations of one year.
type DeclarationsListResponse struct {
	Year         int                        `json:"year"`
	Declarations []*DeclarationInfoResponse `json:"declarations"`
	Total        int                        `json:"total"`
}

func toUsersList(users []*types.AdminUser) *UsersListResponse {
	out := make([]*UserInfoResponse, len(users))
	for i, u := range users {
		out[i] = &UserInfoResponse{
			ID:        u.ID.String(),
			Email:     u.Email,
			FullName:  u.FullName,
			CreatedAt: u.CreatedAt,
			Admin:     u.Admin,
		}
	}
	return &UsersListResponse{Users: out, Total: len(out)}
}

func toDeclarationsList(year int, decls []*types.AdminDeclaration) *DeclarationsListResponse {
	out := make([]*DeclarationInfoResponse, len(decls))
	for i, d := range decls {
		out[i] = &DeclarationInfoResponse{
			ID:          d.ID.String(),
			OwnerID:     d.OwnerID.String(),
			Year:        d.Year,
			Status:      d.Status,
			Revision:    d.Revision,
			SubmittedAt: d.SubmittedAt,
		}
	}
	return &DeclarationsListResponse{Year: year, Declarations: out, Total: len(out)}
}
