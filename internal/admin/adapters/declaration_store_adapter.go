package adapters

import (
	"context"

	"irpf/internal/admin/types"
	declarationModels "irpf/internal/declaration/models"
	id "irpf/pkg/domain"
)

// DeclarationService is the part of the declaration service the admin surface reads.
type DeclarationService interface {
	ListByYear(ctx context.Context, year int) ([]*declarationModels.Declaration, error)
	Aggregate(ctx context.Context, owner id.UserID, year int) (*declarationModels.AggregateView, error)
}

// DeclarationStoreAdapter adapts the declaration service to admin's
// DeclarationDirectory interface.
type DeclarationStoreAdapter struct {
	declarations DeclarationService
}

func NewDeclarationStoreAdapter(declarations DeclarationService) *DeclarationStoreAdapter {
	return &DeclarationStoreAdapter{declarations: declarations}
}

// ListByYear returns every owner's declaration for year mapped to admin types.
func (a *DeclarationStoreAdapter) ListByYear(ctx context.Context, year int) ([]*types.AdminDeclaration, error) {
	decls, err := a.declarations.ListByYear(ctx, year)
	if err != nil {
		return nil, err
	}

	result := make([]*types.AdminDeclaration, len(decls))
	for i, d := range decls {
		result[i] = mapDeclaration(d)
	}
	return result, nil
}

// Aggregate returns an owner's aggregate view for year.
func (a *DeclarationStoreAdapter) Aggregate(ctx context.Context, owner id.UserID, year int) (*declarationModels.AggregateView, error) {
	return a.declarations.Aggregate(ctx, owner, year)
}

func mapDeclaration(d *declarationModels.Declaration) *types.AdminDeclaration {
	return &types.AdminDeclaration{
		ID:          d.ID,
		OwnerID:     d.OwnerID,
		Year:        d.Year,
		Status:      string(d.Status),
		Revision:    d.Revision,
		SubmittedAt: d.SubmittedAt,
	}
}
