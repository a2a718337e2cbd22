package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/labstack/echo/v4"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"github.com/clinicpos/clinicpos/internal/domain/admin"
	"github.com/clinicpos/clinicpos/internal/domain/patient"
	"github.com/clinicpos/clinicpos/internal/domain/scheduling"
	"github.com/clinicpos/clinicpos/internal/platform/apperr"
	"github.com/clinicpos/clinicpos/internal/platform/auth"
	"github.com/clinicpos/clinicpos/internal/platform/db"
	"github.com/clinicpos/clinicpos/internal/platform/notification"
	"github.com/clinicpos/clinicpos/internal/platform/validation"
	"github.com/clinicpos/clinicpos/migrations"
)

var errNoDocker = errors.New("docker not available")

// globalPool is the package-level test database, initialized once in TestMain.
var globalPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	connStr, cleanup, err := startPostgresContainer(ctx)
	if errors.Is(err, errNoDocker) {
		fmt.Fprintln(os.Stderr, "skipping integration tests: docker not available")
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to setup postgres container: %v\n", err)
		os.Exit(1)
	}

	pool, err := db.NewPool(ctx, db.PoolConfig{URL: connStr, MaxConns: 20, MinConns: 1, AppName: "clinicpos-integration"})
	if err != nil {
		cleanup()
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	if err := migrate(pool); err != nil {
		pool.Close()
		cleanup()
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	globalPool = pool
	code := m.Run()
	pool.Close()
	cleanup()
	os.Exit(code)
}

// migrate applies the embedded goose migrations.
func migrate(pool *pgxpool.Pool) error {
	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(sqlDB, ".")
}

// -- Server --

type testServer struct {
	echo      *echo.Echo
	events    *recordingPublisher
	dispatch  *notification.Dispatcher
	issuer    *auth.TokenIssuer
	hasher    auth.PasswordHasher
	adminRepo *admin.PGStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zerolog.Nop()

	issuer, err := auth.NewTokenIssuer(auth.TokenConfig{
		SigningKey: []byte("integration-signing-key-0123456789"),
		Issuer:     "clinicpos-integration",
		TTL:        time.Hour,
	})
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	hasher := auth.NewBcryptHasher(4)
	events := &recordingPublisher{}
	dispatcher := notification.NewDispatcher(events, notification.DispatcherConfig{Workers: 1, Buffer: 64}, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = dispatcher.Close(ctx)
	})

	adminRepo := admin.NewRepo(globalPool)
	authn, err := admin.NewAuthenticator(adminRepo, hasher, issuer, auth.NoopThrottle{}, logger)
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}

	e := echo.New()
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(logger)
	e.Validator = validation.New()
	api := e.Group("/api")
	api.Use(db.ScopeMiddleware(issuer, auth.AuthSkipper))
	patient.NewHandler(patient.NewService(patient.NewRepo(globalPool))).RegisterRoutes(api)
	scheduling.NewHandler(scheduling.NewService(scheduling.NewRepo(globalPool), dispatcher)).RegisterRoutes(api)
	admin.NewHandler(admin.NewService(adminRepo, hasher), authn).RegisterRoutes(api)

	return &testServer{echo: e, events: events, dispatch: dispatcher, issuer: issuer, hasher: hasher, adminRepo: adminRepo}
}

// do sends a JSON request and decodes the response into out when non-nil.
func (s *testServer) do(t *testing.T, method, path, token string, body interface{}, out interface{}) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	if out != nil && rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s %s response %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []notification.AppointmentCreated
}

func (p *recordingPublisher) Publish(_ context.Context, evt notification.AppointmentCreated) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) Events() []notification.AppointmentCreated {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]notification.AppointmentCreated, len(p.events))
	copy(out, p.events)
	return out
}

// -- Fixtures --

type clinic struct {
	tenantID uuid.UUID
	branches []uuid.UUID
	// passwords by username; every clinic has admin, user and viewer.
	passwords map[string]string
	tokens    map[auth.Role]string
}

// provisionClinic creates a tenant with two branches and one user per role,
// then logs each user in through the API.
func provisionClinic(t *testing.T, s *testServer, name string) *clinic {
	t.Helper()
	ctx := context.Background()

	seed := admin.TenantSeed{Tenant: admin.Tenant{ID: uuid.New(), Name: name}}
	for _, b := range []string{"North", "South"} {
		seed.Branches = append(seed.Branches, &admin.Branch{ID: uuid.New(), TenantID: seed.Tenant.ID, Name: name + " " + b})
	}

	c := &clinic{
		tenantID:  seed.Tenant.ID,
		passwords: map[string]string{},
		tokens:    map[auth.Role]string{},
	}
	for _, br := range seed.Branches {
		c.branches = append(c.branches, br.ID)
	}

	roles := map[string]auth.Role{"admin": auth.RoleAdmin, "user": auth.RoleUser, "viewer": auth.RoleViewer}
	for username, role := range roles {
		password := name + "-" + username + "-pw"
		hash, err := s.hasher.Hash(password)
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		u := &admin.User{ID: uuid.New(), TenantID: seed.Tenant.ID, Username: username, PasswordHash: hash, Role: role}
		seed.Users = append(seed.Users, u)
		seed.Memberships = append(seed.Memberships, admin.Membership{UserID: u.ID, BranchID: c.branches[0]})
		c.passwords[username] = password
	}

	if err := s.adminRepo.ProvisionTenant(ctx, seed); err != nil {
		t.Fatalf("provision %s: %v", name, err)
	}

	for username, role := range roles {
		var resp admin.LoginResponse
		code := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
			"username": username,
			"password": c.passwords[username],
		}, &resp)
		if code != http.StatusOK {
			t.Fatalf("login %s/%s: status %d", name, username, code)
		}
		c.tokens[role] = resp.Token
	}
	return c
}

func uniqueName(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString()[:8])
}

func uniquePhone() string {
	return "08" + uuid.NewString()[:8]
}

type errorBody struct {
	Error struct {
		Kind     string `json:"kind"`
		Conflict string `json:"conflict"`
		Message  string `json:"message"`
	} `json:"error"`
}
