package admin

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinicpos/clinicpos/internal/platform/auth"
	"github.com/clinicpos/clinicpos/internal/platform/db"
)

// Repository manages users and branches inside scope's tenant.
type Repository interface {
	// CreateUser inserts u and its branch memberships. A username already
	// used in the tenant yields apperr.Conflict(DuplicateUsername).
	CreateUser(ctx context.Context, scope db.Scope, u *User) (*User, error)
	GetUser(ctx context.Context, scope db.Scope, id uuid.UUID) (*User, error)
	ListUsers(ctx context.Context, scope db.Scope) ([]*User, error)
	UpdateRole(ctx context.Context, scope db.Scope, id uuid.UUID, role auth.Role) (*User, error)
	// AssociateBranch is idempotent. A user or branch outside the tenant
	// yields apperr.NotFound.
	AssociateBranch(ctx context.Context, scope db.Scope, userID, branchID uuid.UUID) error
	ListBranches(ctx context.Context, scope db.Scope) ([]*Branch, error)
}

// LoginStore is the only tenant-unscoped read: login has no tenant yet.
type LoginStore interface {
	FindLoginCandidates(ctx context.Context, username string) ([]*User, error)
}

// TenantStore provisions whole tenants. Used by the CLI, never by HTTP.
type TenantStore interface {
	CountTenants(ctx context.Context) (int, error)
	ProvisionTenant(ctx context.Context, seed TenantSeed) error
}
