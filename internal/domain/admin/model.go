package admin

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinicpos/clinicpos/internal/platform/auth"
)

type Tenant struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

type Branch struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenantId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

type User struct {
	ID           uuid.UUID   `json:"id"`
	TenantID     uuid.UUID   `json:"tenantId"`
	Username     string      `json:"username"`
	PasswordHash string      `json:"-"`
	Role         auth.Role   `json:"role"`
	BranchIDs    []uuid.UUID `json:"branchIds"`
	CreatedAt    time.Time   `json:"createdAt"`
}

// Membership links a user to a branch of the same tenant.
type Membership struct {
	UserID   uuid.UUID
	BranchID uuid.UUID
}

// CreateUserRequest is the body of POST /api/users. Role is checked against
// the closed role set after structural validation.
type CreateUserRequest struct {
	Username  string      `json:"username" validate:"nonblank,max=64"`
	Password  string      `json:"password" validate:"nonblank,min=6,max=72"`
	Role      string      `json:"role" validate:"nonblank"`
	BranchIDs []uuid.UUID `json:"branchIds"`
}

func (r CreateUserRequest) trimmed() CreateUserRequest {
	r.Username = strings.TrimSpace(r.Username)
	r.Role = strings.TrimSpace(r.Role)
	return r
}

type AssignRoleRequest struct {
	Role string `json:"role" validate:"nonblank"`
}

type AssociateBranchRequest struct {
	BranchID *uuid.UUID `json:"branchId" validate:"required"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	// ClientIP scopes the failed-attempt counter; set by the handler.
	ClientIP string `json:"-"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      *User     `json:"user"`
}

// CreateTenantRequest provisions a tenant with its first Admin.
type CreateTenantRequest struct {
	Name          string `validate:"nonblank,max=200"`
	AdminUsername string `validate:"nonblank,max=64"`
	AdminPassword string `validate:"nonblank,min=6,max=72"`
}

// TenantSeed is everything ProvisionTenant writes in one transaction. IDs
// are assigned by the caller so memberships can reference them.
type TenantSeed struct {
	Tenant      Tenant
	Branches    []*Branch
	Users       []*User
	Memberships []Membership
}
