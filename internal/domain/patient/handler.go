package patient

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicpos/clinicpos/internal/platform/apperr"
	"github.com/clinicpos/clinicpos/internal/platform/auth"
	"github.com/clinicpos/clinicpos/internal/platform/db"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/patients", h.CreatePatient)
	api.GET("/patients", h.ListPatients)
	api.GET("/patients/:id", h.GetPatient)
}

func (h *Handler) CreatePatient(c echo.Context) error {
	scope, err := db.RequestScope(c)
	if err != nil {
		return err
	}
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		if err := auth.Authorize(scope.Role(), auth.ActionCreatePatient); err != nil {
			return err
		}
		return apperr.InvalidInput("malformed request body")
	}
	p, err := h.svc.Create(c.Request().Context(), scope, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	scope, err := db.RequestScope(c)
	if err != nil {
		return err
	}
	branchID, err := branchFilter(c)
	if err != nil {
		return err
	}
	patients, err := h.svc.List(c.Request().Context(), scope, branchID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, patients)
}

func (h *Handler) GetPatient(c echo.Context) error {
	scope, err := db.RequestScope(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.InvalidInput("invalid patient id")
	}
	p, err := h.svc.Get(c.Request().Context(), scope, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// branchFilter parses the optional branchId query parameter.
func branchFilter(c echo.Context) (*uuid.UUID, error) {
	raw := c.QueryParam("branchId")
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, apperr.InvalidInput("branchId must be a valid UUID")
	}
	return &id, nil
}
