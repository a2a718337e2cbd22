package admin

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicpos/clinicpos/internal/platform/apperr"
	"github.com/clinicpos/clinicpos/internal/platform/auth"
	"github.com/clinicpos/clinicpos/internal/platform/db"
)

const (
	constraintUsername   = "users_tenant_username_key"
	constraintUserFK     = "user_branches_user_fkey"
	constraintBranchFK   = "user_branches_branch_fkey"
	userColumnsReturning = "RETURNING id, tenant_id, username, password_hash, role, created_at"
)

var (
	userColumns   = []string{"id", "tenant_id", "username", "password_hash", "role", "created_at"}
	branchColumns = []string{"id", "tenant_id", "name", "created_at"}
)

// queryable abstracts pgxpool.Pool and pgx.Tx.
type queryable interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// PGStore is the PostgreSQL store. It implements Repository, LoginStore
// and TenantStore.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (r *PGStore) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// -- Users --

func (r *PGStore) CreateUser(ctx context.Context, scope db.Scope, u *User) (*User, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}

	var created *User
	err := db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		var err error
		created, err = r.insertUser(ctx, scope.TenantID(), u)
		if err != nil {
			return err
		}
		for _, branchID := range u.BranchIDs {
			if err := r.insertMembership(ctx, scope.TenantID(), created.ID, branchID); err != nil {
				return err
			}
		}
		created.BranchIDs = dedupe(u.BranchIDs)
		return nil
	})
	if err != nil {
		return nil, mapWriteError("create user", err)
	}
	return created, nil
}

func (r *PGStore) insertUser(ctx context.Context, tenantID uuid.UUID, u *User) (*User, error) {
	id := u.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	sql, args, err := db.Psql.Insert("users").
		Columns("id", "tenant_id", "username", "password_hash", "role").
		Values(id, tenantID, u.Username, u.PasswordHash, string(u.Role)).
		Suffix(userColumnsReturning).
		ToSql()
	if err != nil {
		return nil, err
	}
	return scanUser(r.conn(ctx).QueryRow(ctx, sql, args...))
}

func (r *PGStore) insertMembership(ctx context.Context, tenantID, userID, branchID uuid.UUID) error {
	sql, args, err := db.Psql.Insert("user_branches").
		Columns("tenant_id", "user_id", "branch_id").
		Values(tenantID, userID, branchID).
		Suffix("ON CONFLICT (user_id, branch_id) DO NOTHING").
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.conn(ctx).Exec(ctx, sql, args...)
	return err
}

func mapWriteError(op string, err error) error {
	if e, ok := apperr.As(err); ok {
		return e
	}
	if name, ok := db.UniqueViolation(err); ok && name == constraintUsername {
		return apperr.Conflict(apperr.DuplicateUsername, "a user with this username already exists")
	}
	if name, ok := db.ForeignKeyViolation(err); ok {
		switch name {
		case constraintUserFK:
			return apperr.NotFound("user not found")
		case constraintBranchFK:
			return apperr.NotFound("branch not found")
		}
	}
	return apperr.Internal(op, err)
}

func (r *PGStore) GetUser(ctx context.Context, scope db.Scope, id uuid.UUID) (*User, error) {
	b, err := db.ScopedSelect(scope, "users", userColumns...)
	if err != nil {
		return nil, err
	}
	sql, args, err := b.Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	u, err := scanUser(r.conn(ctx).QueryRow(ctx, sql, args...))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, apperr.Internal("get user", err)
	}
	if err := r.attachBranches(ctx, scope, []*User{u}); err != nil {
		return nil, err
	}
	return u, nil
}

func (r *PGStore) ListUsers(ctx context.Context, scope db.Scope) ([]*User, error) {
	b, err := db.ScopedSelect(scope, "users", userColumns...)
	if err != nil {
		return nil, err
	}
	sql, args, err := b.OrderBy("username ASC").ToSql()
	if err != nil {
		return nil, err
	}
	users, err := r.queryUsers(ctx, sql, args...)
	if err != nil {
		return nil, apperr.Internal("list users", err)
	}
	if err := r.attachBranches(ctx, scope, users); err != nil {
		return nil, err
	}
	return users, nil
}

func (r *PGStore) UpdateRole(ctx context.Context, scope db.Scope, id uuid.UUID, role auth.Role) (*User, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	sql, args, err := db.Psql.Update("users").
		Set("role", string(role)).
		Where(sq.Eq{"tenant_id": scope.TenantID(), "id": id}).
		Suffix(userColumnsReturning).
		ToSql()
	if err != nil {
		return nil, err
	}
	u, err := scanUser(r.conn(ctx).QueryRow(ctx, sql, args...))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, apperr.Internal("update role", err)
	}
	if err := r.attachBranches(ctx, scope, []*User{u}); err != nil {
		return nil, err
	}
	return u, nil
}

func (r *PGStore) AssociateBranch(ctx context.Context, scope db.Scope, userID, branchID uuid.UUID) error {
	if err := scope.Check(); err != nil {
		return err
	}
	err := db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		return r.insertMembership(ctx, scope.TenantID(), userID, branchID)
	})
	if err != nil {
		return mapWriteError("associate branch", err)
	}
	return nil
}

// attachBranches fills BranchIDs for users with one query.
func (r *PGStore) attachBranches(ctx context.Context, scope db.Scope, users []*User) error {
	if len(users) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*User, len(users))
	ids := make([]uuid.UUID, 0, len(users))
	for _, u := range users {
		u.BranchIDs = []uuid.UUID{}
		byID[u.ID] = u
		ids = append(ids, u.ID)
	}

	b, err := db.ScopedSelect(scope, "user_branches", "user_id", "branch_id")
	if err != nil {
		return err
	}
	sql, args, err := b.Where(sq.Eq{"user_id": ids}).OrderBy("user_id", "branch_id").ToSql()
	if err != nil {
		return err
	}
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return apperr.Internal("load user branches", err)
	}
	defer rows.Close()
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.UserID, &m.BranchID); err != nil {
			return apperr.Internal("scan user branch", err)
		}
		if u, ok := byID[m.UserID]; ok {
			u.BranchIDs = append(u.BranchIDs, m.BranchID)
		}
	}
	if err := rows.Err(); err != nil {
		return apperr.Internal("load user branches", err)
	}
	return nil
}

// -- Branches --

func (r *PGStore) ListBranches(ctx context.Context, scope db.Scope) ([]*Branch, error) {
	b, err := db.ScopedSelect(scope, "branches", branchColumns...)
	if err != nil {
		return nil, err
	}
	sql, args, err := b.OrderBy("name ASC", "id ASC").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, apperr.Internal("list branches", err)
	}
	defer rows.Close()

	branches := []*Branch{}
	for rows.Next() {
		var br Branch
		if err := rows.Scan(&br.ID, &br.TenantID, &br.Name, &br.CreatedAt); err != nil {
			return nil, apperr.Internal("scan branch", err)
		}
		branches = append(branches, &br)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal("list branches", err)
	}
	return branches, nil
}

// -- Login --

// FindLoginCandidates returns every user named username across all
// tenants.
func (r *PGStore) FindLoginCandidates(ctx context.Context, username string) ([]*User, error) {
	sql, args, err := db.Psql.Select(userColumns...).
		From("users").
		Where(sq.Eq{"username": username}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	users, err := r.queryUsers(ctx, sql, args...)
	if err != nil {
		return nil, apperr.Internal("find login candidates", err)
	}
	return users, nil
}

// -- Tenants --

func (r *PGStore) CountTenants(ctx context.Context) (int, error) {
	var n int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM tenants`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count tenants: %w", err)
	}
	return n, nil
}

func (r *PGStore) ProvisionTenant(ctx context.Context, seed TenantSeed) error {
	err := db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		if _, err := q.Exec(ctx, `INSERT INTO tenants (id, name) VALUES ($1, $2)`, seed.Tenant.ID, seed.Tenant.Name); err != nil {
			return fmt.Errorf("insert tenant: %w", err)
		}
		for _, br := range seed.Branches {
			if _, err := q.Exec(ctx, `INSERT INTO branches (id, tenant_id, name) VALUES ($1, $2, $3)`,
				br.ID, seed.Tenant.ID, br.Name); err != nil {
				return fmt.Errorf("insert branch %q: %w", br.Name, err)
			}
		}
		for _, u := range seed.Users {
			if _, err := r.insertUser(ctx, seed.Tenant.ID, u); err != nil {
				return fmt.Errorf("insert user %q: %w", u.Username, err)
			}
		}
		for _, m := range seed.Memberships {
			if err := r.insertMembership(ctx, seed.Tenant.ID, m.UserID, m.BranchID); err != nil {
				return fmt.Errorf("insert membership: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return mapWriteError("provision tenant", err)
	}
	return nil
}

// -- Scanning --

func (r *PGStore) queryUsers(ctx context.Context, sql string, args ...interface{}) ([]*User, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []*User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var role string
	if err := row.Scan(&u.ID, &u.TenantID, &u.Username, &u.PasswordHash, &role, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Role = auth.Role(role)
	return &u, nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
