package scheduling

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicpos/clinicpos/internal/platform/notification"
)

type Appointment struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenantId"`
	PatientID uuid.UUID `json:"patientId"`
	BranchID  uuid.UUID `json:"branchId"`
	StartAt   time.Time `json:"startAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateRequest is the body of POST /api/appointments.
type CreateRequest struct {
	PatientID *uuid.UUID `json:"patientId" validate:"required"`
	BranchID  *uuid.UUID `json:"branchId" validate:"required"`
	StartAt   *time.Time `json:"startAt" validate:"required"`
}

// normalized drops nil UUIDs and zero times so they fail validation, and
// moves the start time to UTC.
func (r CreateRequest) normalized() CreateRequest {
	if r.PatientID != nil && *r.PatientID == uuid.Nil {
		r.PatientID = nil
	}
	if r.BranchID != nil && *r.BranchID == uuid.Nil {
		r.BranchID = nil
	}
	if r.StartAt != nil {
		if r.StartAt.IsZero() {
			r.StartAt = nil
		} else {
			t := r.StartAt.UTC()
			r.StartAt = &t
		}
	}
	return r
}

// toAppointment must only be called on a validated request.
func (r CreateRequest) toAppointment() *Appointment {
	return &Appointment{
		PatientID: *r.PatientID,
		BranchID:  *r.BranchID,
		StartAt:   *r.StartAt,
	}
}

func (a *Appointment) event() notification.AppointmentCreated {
	return notification.AppointmentCreated{
		AppointmentID: a.ID,
		TenantID:      a.TenantID,
		PatientID:     a.PatientID,
		BranchID:      a.BranchID,
		StartAt:       a.StartAt,
		CreatedAt:     a.CreatedAt,
	}
}
