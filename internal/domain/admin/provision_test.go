package admin

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/clinicpos/clinicpos/internal/platform/apperr"
	"github.com/clinicpos/clinicpos/internal/platform/auth"
)

func TestProvisioner_Seed(t *testing.T) {
	store := newMockStore()
	p := NewProvisioner(store, plainHasher{}, zerolog.Nop())
	ctx := context.Background()

	seeded, err := p.Seed(ctx)
	if err != nil || !seeded {
		t.Fatalf("expected seed, got %v (%v)", seeded, err)
	}
	if len(store.tenants) != 1 || len(store.branches) != 2 || len(store.users) != 3 {
		t.Fatalf("unexpected seed sizes: %d tenants, %d branches, %d users", len(store.tenants), len(store.branches), len(store.users))
	}

	roles := map[string]auth.Role{}
	for _, u := range store.users {
		roles[u.Username] = u.Role
		if !(plainHasher{}).Compare(u.PasswordHash, u.Username+"123") {
			t.Errorf("unexpected password for %s", u.Username)
		}
	}
	if roles["admin"] != auth.RoleAdmin || roles["user"] != auth.RoleUser || roles["viewer"] != auth.RoleViewer {
		t.Errorf("unexpected roles %v", roles)
	}
	if len(store.memberships) != 4 {
		t.Errorf("expected 4 memberships, got %d", len(store.memberships))
	}

	again, err := p.Seed(ctx)
	if err != nil || again {
		t.Errorf("expected second seed to be a no-op, got %v (%v)", again, err)
	}
	if len(store.tenants) != 1 {
		t.Errorf("expected still one tenant, got %d", len(store.tenants))
	}
}

func TestProvisioner_CreateTenant(t *testing.T) {
	store := newMockStore()
	p := NewProvisioner(store, plainHasher{}, zerolog.Nop())

	tenant, admin, err := p.CreateTenant(context.Background(), CreateTenantRequest{
		Name: " Riverside Clinic ", AdminUsername: "owner", AdminPassword: "changeme",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tenant.Name != "Riverside Clinic" {
		t.Errorf("expected trimmed name, got %q", tenant.Name)
	}
	if admin.Role != auth.RoleAdmin || admin.TenantID != tenant.ID {
		t.Errorf("unexpected admin %+v", admin)
	}
	if _, ok := store.users[admin.ID]; !ok {
		t.Error("admin not stored")
	}
}

func TestProvisioner_CreateTenant_Invalid(t *testing.T) {
	p := NewProvisioner(newMockStore(), plainHasher{}, zerolog.Nop())
	_, _, err := p.CreateTenant(context.Background(), CreateTenantRequest{Name: "", AdminUsername: "a", AdminPassword: "changeme"})
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}
}
