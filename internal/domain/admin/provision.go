package admin

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicpos/clinicpos/internal/platform/auth"
	"github.com/clinicpos/clinicpos/internal/platform/validation"
)

// Provisioner bootstraps tenants outside any request scope.
type Provisioner struct {
	store  TenantStore
	hasher auth.PasswordHasher
	logger zerolog.Logger
}

func NewProvisioner(store TenantStore, hasher auth.PasswordHasher, logger zerolog.Logger) *Provisioner {
	return &Provisioner{store: store, hasher: hasher, logger: logger}
}

// CreateTenant creates a tenant whose only user is an Admin.
func (p *Provisioner) CreateTenant(ctx context.Context, req CreateTenantRequest) (*Tenant, *User, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.AdminUsername = strings.TrimSpace(req.AdminUsername)
	if err := validation.Struct(req); err != nil {
		return nil, nil, err
	}
	hash, err := p.hasher.Hash(req.AdminPassword)
	if err != nil {
		return nil, nil, err
	}

	seed := TenantSeed{Tenant: Tenant{ID: uuid.New(), Name: req.Name}}
	admin := &User{ID: uuid.New(), TenantID: seed.Tenant.ID, Username: req.AdminUsername, PasswordHash: hash, Role: auth.RoleAdmin}
	seed.Users = []*User{admin}

	if err := p.store.ProvisionTenant(ctx, seed); err != nil {
		return nil, nil, err
	}
	p.logger.Info().
		Str("tenant_id", seed.Tenant.ID.String()).
		Str("tenant", seed.Tenant.Name).
		Str("admin", admin.Username).
		Msg("tenant created")
	return &seed.Tenant, admin, nil
}

// -- Demo data --

type demoUser struct {
	username string
	password string
	role     auth.Role
	branches []int
}

const demoTenantName = "Downtown Clinic Group"

var (
	demoBranches = []string{"Main Street Branch", "Eastside Branch"}
	demoUsers    = []demoUser{
		{"admin", "admin123", auth.RoleAdmin, []int{0, 1}},
		{"user", "user123", auth.RoleUser, []int{0}},
		{"viewer", "viewer123", auth.RoleViewer, []int{1}},
	}
)

// Seed loads the demo tenant. It does nothing and returns false when any
// tenant already exists.
func (p *Provisioner) Seed(ctx context.Context) (bool, error) {
	n, err := p.store.CountTenants(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		p.logger.Info().Int("tenants", n).Msg("database already seeded, skipping")
		return false, nil
	}

	seed, err := p.demoSeed()
	if err != nil {
		return false, err
	}
	if err := p.store.ProvisionTenant(ctx, seed); err != nil {
		return false, fmt.Errorf("seed: %w", err)
	}
	p.logger.Info().
		Str("tenant_id", seed.Tenant.ID.String()).
		Int("branches", len(seed.Branches)).
		Int("users", len(seed.Users)).
		Msg("seeded demo tenant")
	return true, nil
}

func (p *Provisioner) demoSeed() (TenantSeed, error) {
	seed := TenantSeed{Tenant: Tenant{ID: uuid.New(), Name: demoTenantName}}
	for _, name := range demoBranches {
		seed.Branches = append(seed.Branches, &Branch{ID: uuid.New(), TenantID: seed.Tenant.ID, Name: name})
	}
	for _, du := range demoUsers {
		hash, err := p.hasher.Hash(du.password)
		if err != nil {
			return TenantSeed{}, err
		}
		u := &User{ID: uuid.New(), TenantID: seed.Tenant.ID, Username: du.username, PasswordHash: hash, Role: du.role}
		seed.Users = append(seed.Users, u)
		for _, i := range du.branches {
			seed.Memberships = append(seed.Memberships, Membership{UserID: u.ID, BranchID: seed.Branches[i].ID})
			u.BranchIDs = append(u.BranchIDs, seed.Branches[i].ID)
		}
	}
	return seed, nil
}
