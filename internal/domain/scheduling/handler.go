package scheduling

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
	api.POST("/appointments", h.CreateAppointment)
	api.GET("/appointments", h.ListAppointments)
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	scope, err := db.RequestScope(c)
	if err != nil {
		return err
	}
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		if err := auth.Authorize(scope.Role(), auth.ActionCreateAppointment); err != nil {
			return err
		}
		return apperr.InvalidInput("malformed request body")
	}
	a, err := h.svc.Create(c.Request().Context(), scope, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	scope, err := db.RequestScope(c)
	if err != nil {
		return err
	}
	var branchID *uuid.UUID
	if raw := c.QueryParam("branchId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return apperr.InvalidInput("branchId must be a valid UUID")
		}
		branchID = &id
	}
	appointments, err := h.svc.List(c.Request().Context(), scope, branchID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, appointments)
}
