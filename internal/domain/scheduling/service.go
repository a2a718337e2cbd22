package scheduling

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinicpos/clinicpos/internal/platform/auth"
	"github.com/clinicpos/clinicpos/internal/platform/db"
	"github.com/clinicpos/clinicpos/internal/platform/notification"
	"github.com/clinicpos/clinicpos/internal/platform/validation"
)

// Notifier accepts AppointmentCreated events without blocking the caller.
// *notification.Dispatcher satisfies it.
type Notifier interface {
	Dispatch(evt notification.AppointmentCreated) bool
}

type Service struct {
	appointments Repository
	notifier     Notifier
}

func NewService(repo Repository, notifier Notifier) *Service {
	return &Service{appointments: repo, notifier: notifier}
}

// Create books an appointment. The AppointmentCreated event is handed off
// only after the insert committed; conflicts and validation failures emit
// nothing.
func (s *Service) Create(ctx context.Context, scope db.Scope, req CreateRequest) (*Appointment, error) {
	if err := auth.Authorize(scope.Role(), auth.ActionCreateAppointment); err != nil {
		return nil, err
	}
	req = req.normalized()
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	a, err := s.appointments.Create(ctx, scope, req.toAppointment())
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.Dispatch(a.event())
	}
	return a, nil
}

func (s *Service) List(ctx context.Context, scope db.Scope, branchID *uuid.UUID) ([]*Appointment, error) {
	if err := auth.Authorize(scope.Role(), auth.ActionListAppointments); err != nil {
		return nil, err
	}
	return s.appointments.List(ctx, scope, branchID)
}
