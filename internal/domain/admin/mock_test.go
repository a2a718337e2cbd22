package admin

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clinicpos/clinicpos/internal/platform/apperr"
	"github.com/clinicpos/clinicpos/internal/platform/auth"
	"github.com/clinicpos/clinicpos/internal/platform/db"
)

// -- In-memory store --

type mockStore struct {
	mu          sync.Mutex
	tenants     map[uuid.UUID]*Tenant
	branches    map[uuid.UUID]*Branch
	users       map[uuid.UUID]*User
	memberships map[Membership]uuid.UUID // -> tenant
	writes      int
}

func newMockStore() *mockStore {
	return &mockStore{
		tenants:     make(map[uuid.UUID]*Tenant),
		branches:    make(map[uuid.UUID]*Branch),
		users:       make(map[uuid.UUID]*User),
		memberships: make(map[Membership]uuid.UUID),
	}
}

func (m *mockStore) addTenant(name string) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.tenants[id] = &Tenant{ID: id, Name: name, CreatedAt: time.Now()}
	return id
}

func (m *mockStore) addBranch(tenantID uuid.UUID, name string) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.branches[id] = &Branch{ID: id, TenantID: tenantID, Name: name, CreatedAt: time.Now()}
	return id
}

func (m *mockStore) addUser(tenantID uuid.UUID, username, password string, role auth.Role) *User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &User{ID: uuid.New(), TenantID: tenantID, Username: username, PasswordHash: "hashed:" + password, Role: role, CreatedAt: time.Now()}
	m.users[u.ID] = u
	return u
}

func (m *mockStore) branchIDs(userID uuid.UUID) []uuid.UUID {
	ids := []uuid.UUID{}
	for ms := range m.memberships {
		if ms.UserID == userID {
			ids = append(ids, ms.BranchID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

func (m *mockStore) copyUser(u *User) *User {
	c := *u
	c.BranchIDs = m.branchIDs(u.ID)
	return &c
}

func (m *mockStore) CreateUser(_ context.Context, scope db.Scope, u *User) (*User, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	for _, existing := range m.users {
		if existing.TenantID == scope.TenantID() && existing.Username == u.Username {
			return nil, apperr.Conflict(apperr.DuplicateUsername, "duplicate")
		}
	}
	for _, b := range u.BranchIDs {
		if br, ok := m.branches[b]; !ok || br.TenantID != scope.TenantID() {
			return nil, apperr.NotFound("branch not found")
		}
	}
	created := *u
	created.ID = uuid.New()
	created.TenantID = scope.TenantID()
	created.CreatedAt = time.Now()
	created.BranchIDs = nil
	m.users[created.ID] = &created
	for _, b := range u.BranchIDs {
		m.memberships[Membership{UserID: created.ID, BranchID: b}] = scope.TenantID()
	}
	return m.copyUser(&created), nil
}

func (m *mockStore) GetUser(_ context.Context, scope db.Scope, id uuid.UUID) (*User, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.TenantID != scope.TenantID() {
		return nil, apperr.NotFound("user not found")
	}
	return m.copyUser(u), nil
}

func (m *mockStore) ListUsers(_ context.Context, scope db.Scope) ([]*User, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*User{}
	for _, u := range m.users {
		if u.TenantID == scope.TenantID() {
			out = append(out, m.copyUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (m *mockStore) UpdateRole(_ context.Context, scope db.Scope, id uuid.UUID, role auth.Role) (*User, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	u, ok := m.users[id]
	if !ok || u.TenantID != scope.TenantID() {
		return nil, apperr.NotFound("user not found")
	}
	u.Role = role
	return m.copyUser(u), nil
}

func (m *mockStore) AssociateBranch(_ context.Context, scope db.Scope, userID, branchID uuid.UUID) error {
	if err := scope.Check(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if u, ok := m.users[userID]; !ok || u.TenantID != scope.TenantID() {
		return apperr.NotFound("user not found")
	}
	if b, ok := m.branches[branchID]; !ok || b.TenantID != scope.TenantID() {
		return apperr.NotFound("branch not found")
	}
	m.memberships[Membership{UserID: userID, BranchID: branchID}] = scope.TenantID()
	return nil
}

func (m *mockStore) ListBranches(_ context.Context, scope db.Scope) ([]*Branch, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*Branch{}
	for _, b := range m.branches {
		if b.TenantID == scope.TenantID() {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *mockStore) FindLoginCandidates(_ context.Context, username string) ([]*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*User{}
	for _, u := range m.users {
		if u.Username == username {
			out = append(out, m.copyUser(u))
		}
	}
	return out, nil
}

func (m *mockStore) CountTenants(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tenants), nil
}

func (m *mockStore) ProvisionTenant(_ context.Context, seed TenantSeed) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := seed.Tenant
	m.tenants[t.ID] = &t
	for _, b := range seed.Branches {
		br := *b
		br.TenantID = t.ID
		m.branches[br.ID] = &br
	}
	for _, u := range seed.Users {
		cu := *u
		cu.TenantID = t.ID
		cu.BranchIDs = nil
		m.users[cu.ID] = &cu
	}
	for _, ms := range seed.Memberships {
		m.memberships[ms] = t.ID
	}
	return nil
}

// plainHasher keeps tests fast; bcrypt is covered in the auth package.
type plainHasher struct{}

func (plainHasher) Hash(pw string) (string, error) { return "hashed:" + pw, nil }
func (plainHasher) Compare(hash, pw string) bool {
	return strings.TrimPrefix(hash, "hashed:") == pw && strings.HasPrefix(hash, "hashed:")
}

func testScope(t *testing.T, tenantID uuid.UUID, role auth.Role) db.Scope {
	t.Helper()
	scope, err := db.ResolveScope(&auth.Claims{
		UserID:   uuid.NewString(),
		TenantID: tenantID.String(),
		Role:     role,
	})
	if err != nil {
		t.Fatalf("ResolveScope: %v", err)
	}
	return scope
}
