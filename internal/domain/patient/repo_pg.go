package patient

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicpos/clinicpos/internal/platform/apperr"
	"github.com/clinicpos/clinicpos/internal/platform/db"
)

const (
	constraintPhone         = "patients_tenant_phone_key"
	constraintPrimaryBranch = "patients_primary_branch_fkey"
)

var columns = []string{"id", "tenant_id", "first_name", "last_name", "phone_number", "primary_branch_id", "created_at"}

const returning = ` RETURNING id, tenant_id, first_name, last_name, phone_number, primary_branch_id, created_at`

// queryable abstracts pgxpool.Pool and pgx.Tx.
type queryable interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *repoPG) Create(ctx context.Context, scope db.Scope, p *Patient) (*Patient, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}

	var created *Patient
	err := db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		sql, args, err := db.Psql.Insert("patients").
			Columns("id", "tenant_id", "first_name", "last_name", "phone_number", "primary_branch_id").
			Values(uuid.New(), scope.TenantID(), p.FirstName, p.LastName, p.PhoneNumber, p.PrimaryBranchID).
			Suffix(returning).
			ToSql()
		if err != nil {
			return err
		}
		created, err = scanPatient(r.conn(ctx).QueryRow(ctx, sql, args...))
		return err
	})
	if err != nil {
		return nil, mapWriteError(err)
	}
	return created, nil
}

func mapWriteError(err error) error {
	if name, ok := db.UniqueViolation(err); ok && name == constraintPhone {
		return apperr.Conflict(apperr.DuplicatePhone, "a patient with this phone number already exists")
	}
	if name, ok := db.ForeignKeyViolation(err); ok && name == constraintPrimaryBranch {
		return apperr.NotFound("primary branch not found")
	}
	return apperr.Internal("insert patient", err)
}

func (r *repoPG) GetByID(ctx context.Context, scope db.Scope, id uuid.UUID) (*Patient, error) {
	b, err := db.ScopedSelect(scope, "patients", columns...)
	if err != nil {
		return nil, err
	}
	sql, args, err := b.Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, sql, args...))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("patient not found")
	}
	if err != nil {
		return nil, apperr.Internal("get patient", err)
	}
	return p, nil
}

func listQuery(scope db.Scope, branchID *uuid.UUID) (string, []interface{}, error) {
	b, err := db.ScopedSelect(scope, "patients", columns...)
	if err != nil {
		return "", nil, err
	}
	if branchID != nil {
		b = b.Where(sq.Eq{"primary_branch_id": *branchID})
	}
	return b.OrderBy("created_at DESC", "id DESC").ToSql()
}

func (r *repoPG) List(ctx context.Context, scope db.Scope, branchID *uuid.UUID) ([]*Patient, error) {
	sql, args, err := listQuery(scope, branchID)
	if err != nil {
		return nil, err
	}
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, apperr.Internal("list patients", err)
	}
	defer rows.Close()

	patients := []*Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, apperr.Internal("scan patient", err)
		}
		patients = append(patients, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal("list patients", err)
	}
	return patients, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.TenantID, &p.FirstName, &p.LastName, &p.PhoneNumber, &p.PrimaryBranchID, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
