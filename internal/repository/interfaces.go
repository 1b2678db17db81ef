package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/insoffice/installment-ledger/internal/domain"
)

// PlanRepository defines the interface for installment plan persistence.
// A plan is stored and replaced as a whole document: readers always observe
// either the pre- or post-mutation state, never a mix.
type PlanRepository interface {
	// Create stores a new plan
	Create(ctx context.Context, plan *domain.InstallmentPlan) error

	// GetByID loads a plan by its identifier
	GetByID(ctx context.Context, id uuid.UUID) (*domain.InstallmentPlan, error)

	// Update atomically replaces the plan document. The stored version must
	// match the loaded one; a stale write fails with ConcurrentModification.
	Update(ctx context.Context, plan *domain.InstallmentPlan) error

	// ListByInsuredID retrieves all plans referencing an insured party
	ListByInsuredID(ctx context.Context, insuredID string) ([]*domain.InstallmentPlan, error)

	// ListDueBetween retrieves plans with at least one unpaid installment
	// due inside the inclusive date range
	ListDueBetween(ctx context.Context, from, to domain.Date) ([]*domain.InstallmentPlan, error)
}
