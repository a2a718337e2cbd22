package patient

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinicpos/clinicpos/internal/platform/db"
)

// Repository stores patients. Every method is confined to scope's tenant.
type Repository interface {
	// Create inserts p, stamping the tenant from scope. A phone number
	// already used in the tenant yields apperr.Conflict(DuplicatePhone).
	Create(ctx context.Context, scope db.Scope, p *Patient) (*Patient, error)
	GetByID(ctx context.Context, scope db.Scope, id uuid.UUID) (*Patient, error)
	// List returns patients newest first, optionally restricted to a
	// primary branch.
	List(ctx context.Context, scope db.Scope, branchID *uuid.UUID) ([]*Patient, error)
}
