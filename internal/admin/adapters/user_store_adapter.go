package adapters

import (
	"context"

	"irpf/internal/admin/types"
	identityModels "irpf/internal/identity/models"
	id "irpf/pkg/domain"
)

// IdentityService is the part of the identity service the admin surface reads.
type IdentityService interface {
	ListUsers(ctx context.Context) ([]*identityModels.User, error)
	GetUser(ctx context.Context, userID id.UserID) (*identityModels.User, error)
	IsAdmin(ctx context.Context, userID id.UserID) (bool, error)
}

// UserStoreAdapter adapts the identity service to admin's UserDirectory interface.
type UserStoreAdapter struct {
	identity IdentityService
}

func NewUserStoreAdapter(identity IdentityService) *UserStoreAdapter {
	return &UserStoreAdapter{identity: identity}
}

// ListAll returns all users mapped to admin types.
func (a *UserStoreAdapter) ListAll(ctx context.Context) ([]*types.AdminUser, error) {
	users, err := a.identity.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*types.AdminUser, 0, len(users))
	for _, u := range users {
		mapped, err := a.mapUser(ctx, u)
		if err != nil {
			return nil, err
		}
		result = append(result, mapped)
	}
	return result, nil
}

// FindByID returns a user by ID mapped to admin type.
func (a *UserStoreAdapter) FindByID(ctx context.Context, userID id.UserID) (*types.AdminUser, error) {
	user, err := a.identity.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return a.mapUser(ctx, user)
}

func (a *UserStoreAdapter) mapUser(ctx context.Context, u *identityModels.User) (*types.AdminUser, error) {
	admin, err := a.identity.IsAdmin(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	return &types.AdminUser{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		CreatedAt: u.CreatedAt,
		Admin:     admin,
	}, nil
}
