package patient

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinicpos/clinicpos/internal/platform/auth"
	"github.com/clinicpos/clinicpos/internal/platform/db"
	"github.com/clinicpos/clinicpos/internal/platform/validation"
)

type Service struct {
	patients Repository
}

func NewService(repo Repository) *Service {
	return &Service{patients: repo}
}

// Create authorizes, validates and inserts. Authorization runs first so a
// Viewer learns nothing about the validity of its input.
func (s *Service) Create(ctx context.Context, scope db.Scope, req CreateRequest) (*Patient, error) {
	if err := auth.Authorize(scope.Role(), auth.ActionCreatePatient); err != nil {
		return nil, err
	}
	req = req.trimmed()
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	return s.patients.Create(ctx, scope, req.toPatient())
}

func (s *Service) Get(ctx context.Context, scope db.Scope, id uuid.UUID) (*Patient, error) {
	if err := auth.Authorize(scope.Role(), auth.ActionGetPatient); err != nil {
		return nil, err
	}
	return s.patients.GetByID(ctx, scope, id)
}

func (s *Service) List(ctx context.Context, scope db.Scope, branchID *uuid.UUID) ([]*Patient, error) {
	if err := auth.Authorize(scope.Role(), auth.ActionListPatients); err != nil {
		return nil, err
	}
	return s.patients.List(ctx, scope, branchID)
}
