package admin

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicpos/clinicpos/internal/platform/apperr"
	"github.com/clinicpos/clinicpos/internal/platform/auth"
	"github.com/clinicpos/clinicpos/internal/platform/db"
)

type Handler struct {
	svc   *Service
	authn *Authenticator
}

func NewHandler(svc *Service, authn *Authenticator) *Handler {
	return &Handler{svc: svc, authn: authn}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/auth/login", h.Login)

	api.GET("/branches", h.ListBranches)

	api.POST("/users", h.CreateUser)
	api.GET("/users", h.ListUsers)
	api.PUT("/users/:id/role", h.AssignRole)
	api.POST("/users/:id/branches", h.AssociateBranch)
}

// -- Auth --

func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperr.InvalidInput("malformed request body")
	}
	req.ClientIP = c.RealIP()
	resp, err := h.authn.Login(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// -- Users --

// denyOr reports a Forbidden error for callers that may not perform action,
// and fallback otherwise. It keeps request-shape errors from reaching
// callers without permission.
func denyOr(scope db.Scope, action auth.Action, fallback error) error {
	if err := auth.Authorize(scope.Role(), action); err != nil {
		return err
	}
	return fallback
}

func (h *Handler) CreateUser(c echo.Context) error {
	scope, err := db.RequestScope(c)
	if err != nil {
		return err
	}
	var req CreateUserRequest
	if err := c.Bind(&req); err != nil {
		return denyOr(scope, auth.ActionCreateUser, apperr.InvalidInput("malformed request body"))
	}
	u, err := h.svc.CreateUser(c.Request().Context(), scope, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *Handler) ListUsers(c echo.Context) error {
	scope, err := db.RequestScope(c)
	if err != nil {
		return err
	}
	users, err := h.svc.ListUsers(c.Request().Context(), scope)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, users)
}

func (h *Handler) AssignRole(c echo.Context) error {
	scope, err := db.RequestScope(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return denyOr(scope, auth.ActionAssignRole, apperr.InvalidInput("invalid user id"))
	}
	var req AssignRoleRequest
	if err := c.Bind(&req); err != nil {
		return denyOr(scope, auth.ActionAssignRole, apperr.InvalidInput("malformed request body"))
	}
	u, err := h.svc.AssignRole(c.Request().Context(), scope, id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) AssociateBranch(c echo.Context) error {
	scope, err := db.RequestScope(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return denyOr(scope, auth.ActionAssociateUserBranch, apperr.InvalidInput("invalid user id"))
	}
	var req AssociateBranchRequest
	if err := c.Bind(&req); err != nil {
		return denyOr(scope, auth.ActionAssociateUserBranch, apperr.InvalidInput("malformed request body"))
	}
	u, err := h.svc.AssociateBranch(c.Request().Context(), scope, id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

// -- Branches --

func (h *Handler) ListBranches(c echo.Context) error {
	scope, err := db.RequestScope(c)
	if err != nil {
		return err
	}
	branches, err := h.svc.ListBranches(c.Request().Context(), scope)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, branches)
}
