package assignment

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/telecare/telecare/internal/platform/apperr"
	"github.com/telecare/telecare/internal/platform/auth"
	"github.com/telecare/telecare/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RolePatient, auth.RoleProvider))
	read.GET("/assignments/:id", h.Get)
	read.GET("/patients/:id/assignments", h.ListForPatient)

	providers := api.Group("", auth.RequireRole(auth.RoleProvider))
	providers.GET("/providers/:id/assignments", h.ListForProvider)
	providers.POST("/rpc/get_assigned_patients_for_provider", h.RPCAssignedPatients)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/assignments", h.Assign)
	admin.POST("/assignments/:id/primary", h.SetPrimary)
	admin.POST("/assignments/:id/deactivate", h.Deactivate)
	admin.POST("/rpc/get_all_patients_for_admin", h.RPCAllPatients)
	admin.POST("/rpc/assign_patient_to_provider", h.Assign)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func principal(c echo.Context) auth.Principal {
	return auth.PrincipalFromContext(c.Request().Context())
}

// Assign also serves assign_patient_to_provider(patient_id, provider_id,
// treatment_type, is_primary).
func (h *Handler) Assign(c echo.Context) error {
	var req AssignRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.Assign(c.Request().Context(), principal(c), req)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Get(c.Request().Context(), principal(c), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) SetPrimary(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.SetPrimary(c.Request().Context(), principal(c), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Deactivate(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Deactivate(c.Request().Context(), principal(c), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func activeOnly(c echo.Context) bool {
	v, err := strconv.ParseBool(c.QueryParam("active"))
	return err != nil || v
}

func (h *Handler) ListForPatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListForPatient(c.Request().Context(), principal(c), id, activeOnly(c))
	if err != nil {
		return apperr.HTTPError(err)
	}
	if items == nil {
		items = []*Assignment{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListForProvider(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListForProvider(c.Request().Context(), principal(c), id, activeOnly(c))
	if err != nil {
		return apperr.HTTPError(err)
	}
	if items == nil {
		items = []*Assignment{}
	}
	return c.JSON(http.StatusOK, items)
}

type assignedPatientsRequest struct {
	ProviderProfileID uuid.UUID `json:"provider_profile_id"`
}

// RPCAssignedPatients serves get_assigned_patients_for_provider(provider_profile_id).
// Providers may omit the id to ask about themselves.
func (h *Handler) RPCAssignedPatients(c echo.Context) error {
	var req assignedPatientsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p := principal(c)
	if req.ProviderProfileID == uuid.Nil && p.Role == auth.RoleProvider {
		req.ProviderProfileID = p.ProfileID
	}
	items, err := h.svc.AssignedPatientsForProvider(c.Request().Context(), p, req.ProviderProfileID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}

// RPCAllPatients serves get_all_patients_for_admin().
func (h *Handler) RPCAllPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.AllPatients(c.Request().Context(), principal(c), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
