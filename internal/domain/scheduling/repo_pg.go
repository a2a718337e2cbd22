package scheduling

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
	constraintSlot    = "appointments_tenant_slot_key"
	constraintPatient = "appointments_patient_fkey"
	constraintBranch  = "appointments_branch_fkey"
)

var columns = []string{"id", "tenant_id", "patient_id", "branch_id", "start_at", "created_at"}

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

func insertQuery(scope db.Scope, a *Appointment) (string, []interface{}, error) {
	if err := scope.Check(); err != nil {
		return "", nil, err
	}
	return db.Psql.Insert("appointments").
		Columns("id", "tenant_id", "patient_id", "branch_id", "start_at").
		Values(uuid.New(), scope.TenantID(), a.PatientID, a.BranchID, a.StartAt).
		Suffix("RETURNING id, tenant_id, patient_id, branch_id, start_at, created_at").
		ToSql()
}

func (r *repoPG) Create(ctx context.Context, scope db.Scope, a *Appointment) (*Appointment, error) {
	sql, args, err := insertQuery(scope, a)
	if err != nil {
		return nil, err
	}

	var created *Appointment
	err = db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		var err error
		created, err = scanAppointment(r.conn(ctx).QueryRow(ctx, sql, args...))
		return err
	})
	if err != nil {
		return nil, mapWriteError(err)
	}
	return created, nil
}

func mapWriteError(err error) error {
	if name, ok := db.UniqueViolation(err); ok && name == constraintSlot {
		return apperr.Conflict(apperr.DuplicateSlot, "the patient already has an appointment at this branch and time")
	}
	if name, ok := db.ForeignKeyViolation(err); ok {
		switch name {
		case constraintPatient:
			return apperr.NotFound("patient not found")
		case constraintBranch:
			return apperr.NotFound("branch not found")
		}
	}
	return apperr.Internal("insert appointment", err)
}

func listQuery(scope db.Scope, branchID *uuid.UUID) (string, []interface{}, error) {
	b, err := db.ScopedSelect(scope, "appointments", columns...)
	if err != nil {
		return "", nil, err
	}
	if branchID != nil {
		b = b.Where(sq.Eq{"branch_id": *branchID})
	}
	return b.OrderBy("created_at DESC", "id DESC").ToSql()
}

func (r *repoPG) List(ctx context.Context, scope db.Scope, branchID *uuid.UUID) ([]*Appointment, error) {
	sql, args, err := listQuery(scope, branchID)
	if err != nil {
		return nil, err
	}
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, apperr.Internal("list appointments", err)
	}
	defer rows.Close()

	appointments := []*Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, apperr.Internal("scan appointment", err)
		}
		appointments = append(appointments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal("list appointments", err)
	}
	return appointments, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	if err := row.Scan(&a.ID, &a.TenantID, &a.PatientID, &a.BranchID, &a.StartAt, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}
