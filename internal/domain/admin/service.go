package admin

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinicpos/clinicpos/internal/platform/apperr"
	"github.com/clinicpos/clinicpos/internal/platform/auth"
	"github.com/clinicpos/clinicpos/internal/platform/db"
	"github.com/clinicpos/clinicpos/internal/platform/validation"
)

// Service is the tenant administration surface: users, their roles and
// branch memberships.
type Service struct {
	repo   Repository
	hasher auth.PasswordHasher
}

func NewService(repo Repository, hasher auth.PasswordHasher) *Service {
	return &Service{repo: repo, hasher: hasher}
}

func (s *Service) CreateUser(ctx context.Context, scope db.Scope, req CreateUserRequest) (*User, error) {
	if err := auth.Authorize(scope.Role(), auth.ActionCreateUser); err != nil {
		return nil, err
	}
	req = req.trimmed()
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		return nil, err
	}
	for _, id := range req.BranchIDs {
		if id == uuid.Nil {
			return nil, apperr.InvalidInput("branchIds must not contain empty ids")
		}
	}
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, apperr.Internal("hash password", err)
	}
	return s.repo.CreateUser(ctx, scope, &User{
		Username:     req.Username,
		PasswordHash: hash,
		Role:         role,
		BranchIDs:    req.BranchIDs,
	})
}

func (s *Service) AssignRole(ctx context.Context, scope db.Scope, userID uuid.UUID, req AssignRoleRequest) (*User, error) {
	if err := auth.Authorize(scope.Role(), auth.ActionAssignRole); err != nil {
		return nil, err
	}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		return nil, err
	}
	return s.repo.UpdateRole(ctx, scope, userID, role)
}

// AssociateBranch adds the user to a branch and returns the updated user.
// Repeating an association changes nothing.
func (s *Service) AssociateBranch(ctx context.Context, scope db.Scope, userID uuid.UUID, req AssociateBranchRequest) (*User, error) {
	if err := auth.Authorize(scope.Role(), auth.ActionAssociateUserBranch); err != nil {
		return nil, err
	}
	if req.BranchID != nil && *req.BranchID == uuid.Nil {
		req.BranchID = nil
	}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if err := s.repo.AssociateBranch(ctx, scope, userID, *req.BranchID); err != nil {
		return nil, err
	}
	return s.repo.GetUser(ctx, scope, userID)
}

func (s *Service) ListUsers(ctx context.Context, scope db.Scope) ([]*User, error) {
	if err := auth.Authorize(scope.Role(), auth.ActionListUsers); err != nil {
		return nil, err
	}
	return s.repo.ListUsers(ctx, scope)
}

func (s *Service) ListBranches(ctx context.Context, scope db.Scope) ([]*Branch, error) {
	if err := auth.Authorize(scope.Role(), auth.ActionListBranches); err != nil {
		return nil, err
	}
	return s.repo.ListBranches(ctx, scope)
}
