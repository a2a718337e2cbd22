package scheduling

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinicpos/clinicpos/internal/platform/db"
)

// Repository stores appointments within scope's tenant.
type Repository interface {
	// Create inserts a. A second booking of the same patient, branch and
	// start time in the tenant yields apperr.Conflict(DuplicateSlot); a
	// patient or branch outside the tenant yields apperr.NotFound.
	Create(ctx context.Context, scope db.Scope, a *Appointment) (*Appointment, error)
	List(ctx context.Context, scope db.Scope, branchID *uuid.UUID) ([]*Appointment, error)
}
