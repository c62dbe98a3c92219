package medication

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/telecare/telecare/internal/platform/apperr"
	"github.com/telecare/telecare/internal/platform/auth"
	"github.com/telecare/telecare/internal/platform/middleware"
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
	read.GET("/medication-orders", h.List)
	read.GET("/medication-orders/:id", h.Get)
	read.GET("/patients/:id/medication-orders", h.ListForPatient)
	read.POST("/medication-orders", h.Request)
	read.POST("/medication-orders/:id/cancel", h.Cancel)

	providers := api.Group("", auth.RequireRole(auth.RoleProvider))
	providers.POST("/medication-orders/:id/approve", h.Approve)
	providers.POST("/medication-orders/:id/deny", h.Deny)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/medication-orders/:id/fulfill", h.Fulfill)
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

func (h *Handler) Request(c echo.Context) error {
	var req OrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	o, err := h.svc.Request(c.Request().Context(), principal(c), req)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	o, err := h.svc.Get(c.Request().Context(), principal(c), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := OrderFilter{
		Status:        c.QueryParam("status"),
		TreatmentType: c.QueryParam("treatment_type"),
	}
	if v := c.QueryParam("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		f.PatientID = &id
	}
	if v := c.QueryParam("provider_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid provider_id")
		}
		f.ProviderID = &id
	}
	items, total, err := h.svc.List(c.Request().Context(), principal(c), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	if items == nil {
		items = []*Order{}
	}
	return pagination.Respond(c, pg, items, total)
}

func (h *Handler) ListForPatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListForPatient(c.Request().Context(), principal(c), id, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	if items == nil {
		items = []*Order{}
	}
	return pagination.Respond(c, pg, items, total)
}

type decisionRequest struct {
	Note *string `json:"note"`
}

func (r decisionRequest) note() *string {
	if r.Note == nil {
		return nil
	}
	cleaned := middleware.CleanText(*r.Note)
	return &cleaned
}

func (h *Handler) Approve(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req decisionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	o, err := h.svc.Approve(c.Request().Context(), principal(c), id, req.note())
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) Deny(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req decisionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	o, err := h.svc.Deny(c.Request().Context(), principal(c), id, req.note())
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, o)
}

type fulfillRequest struct {
	TrackingNumber string `json:"tracking_number"`
}

func (h *Handler) Fulfill(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req fulfillRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	o, err := h.svc.Fulfill(c.Request().Context(), principal(c), id, req.TrackingNumber)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	o, err := h.svc.Cancel(c.Request().Context(), principal(c), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, o)
}
