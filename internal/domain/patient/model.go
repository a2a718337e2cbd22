package patient

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Patient struct {
	ID              uuid.UUID  `json:"id"`
	TenantID        uuid.UUID  `json:"tenantId"`
	FirstName       string     `json:"firstName"`
	LastName        string     `json:"lastName"`
	PhoneNumber     string     `json:"phoneNumber"`
	PrimaryBranchID *uuid.UUID `json:"primaryBranchId,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// CreateRequest is the body of POST /api/patients. The tenant is never part
// of it.
type CreateRequest struct {
	FirstName       string     `json:"firstName" validate:"nonblank,max=100"`
	LastName        string     `json:"lastName" validate:"nonblank,max=100"`
	PhoneNumber     string     `json:"phoneNumber" validate:"nonblank,max=32"`
	PrimaryBranchID *uuid.UUID `json:"primaryBranchId"`
}

func (r CreateRequest) trimmed() CreateRequest {
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.PhoneNumber = strings.TrimSpace(r.PhoneNumber)
	if r.PrimaryBranchID != nil && *r.PrimaryBranchID == uuid.Nil {
		r.PrimaryBranchID = nil
	}
	return r
}

func (r CreateRequest) toPatient() *Patient {
	return &Patient{
		FirstName:       r.FirstName,
		LastName:        r.LastName,
		PhoneNumber:     r.PhoneNumber,
		PrimaryBranchID: r.PrimaryBranchID,
	}
}
