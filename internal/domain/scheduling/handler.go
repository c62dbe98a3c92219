package scheduling

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/telecare/telecare/internal/domain/treatment"
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
	// Reads and booking are open to every role; the service scopes rows to
	// the caller.
	read := api.Group("", auth.RequireRole(auth.RolePatient, auth.RoleProvider))
	read.GET("/providers/:id/slots", h.ListSlots)
	read.GET("/providers/:id/schedule-blocks", h.ListBlocks)
	read.GET("/providers/:id/overrides", h.ListOverrides)
	read.GET("/schedule-blocks/:id", h.GetBlock)
	read.GET("/appointments", h.ListAppointments)
	read.GET("/appointments/:id", h.GetAppointment)
	read.POST("/appointments", h.Book)
	read.POST("/appointments/:id/cancel", h.Cancel)
	read.POST("/rpc/get_available_slots_for_provider", h.RPCAvailableSlots)

	// Schedule management: providers on their own calendar, admins on any.
	write := api.Group("", auth.RequireRole(auth.RoleProvider))
	write.POST("/providers/:id/schedule-blocks", h.CreateBlock)
	write.PUT("/schedule-blocks/:id", h.UpdateBlock)
	write.DELETE("/schedule-blocks/:id", h.DeleteBlock)
	write.POST("/providers/:id/overrides", h.CreateOverride)
	write.DELETE("/overrides/:id", h.DeleteOverride)
	write.POST("/appointments/:id/complete", h.Complete)
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

// -- Slots --

func (h *Handler) ListSlots(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	q := SlotQuery{ProviderID: id, TreatmentType: c.QueryParam("treatment_type")}
	if q.Start, err = ParseDate(c.QueryParam("start_date")); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid start_date")
	}
	if q.End, err = ParseDate(c.QueryParam("end_date")); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid end_date")
	}
	slots, err := h.svc.AvailableSlots(c.Request().Context(), q)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, slots)
}

// RPCAvailableSlots serves get_available_slots_for_provider(provider_id,
// start_date, end_date, treatment_type).
func (h *Handler) RPCAvailableSlots(c echo.Context) error {
	var q SlotQuery
	if err := c.Bind(&q); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	slots, err := h.svc.AvailableSlots(c.Request().Context(), q)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, slots)
}

// -- Appointments --

func (h *Handler) Book(c echo.Context) error {
	var req BookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p := principal(c)
	// Patients book for themselves unless they say otherwise.
	if req.PatientID == uuid.Nil && p.Role == auth.RolePatient {
		req.PatientID = p.PatientID
	}
	appt, err := h.svc.Book(c.Request().Context(), p, req)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, appt)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	appt, err := h.svc.GetAppointment(c.Request().Context(), principal(c), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	pg := pagination.FromContext(c)
	var f AppointmentFilter
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
	if v := c.QueryParam("from"); v != "" {
		d, err := ParseDate(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from")
		}
		f.From = &d
	}
	if v := c.QueryParam("to"); v != "" {
		d, err := ParseDate(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid to")
		}
		f.To = &d
	}
	f.Status = c.QueryParam("status")

	items, total, err := h.svc.ListAppointments(c.Request().Context(), principal(c), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return pagination.Respond(c, pg, items, total)
}

type cancelRequest struct {
	Reason *string `json:"reason"`
}

func (r cancelRequest) reason() *string {
	if r.Reason == nil {
		return nil
	}
	cleaned := middleware.CleanText(*r.Reason)
	return &cleaned
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req cancelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	appt, err := h.svc.Transition(c.Request().Context(), principal(c), id, StatusCancelled, req.reason())
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) Complete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	appt, err := h.svc.Transition(c.Request().Context(), principal(c), id, StatusCompleted, nil)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

// -- Schedule blocks --

type blockRequest struct {
	DayOfWeek           int              `json:"day_of_week"`
	StartTime           ClockTime        `json:"start_time"`
	EndTime             ClockTime        `json:"end_time"`
	SlotDurationMinutes int              `json:"slot_duration_minutes"`
	TreatmentTypes      []treatment.Type `json:"treatment_types"`
	Active              *bool            `json:"active"`
}

func (r blockRequest) block() *ScheduleBlock {
	b := &ScheduleBlock{
		DayOfWeek:           r.DayOfWeek,
		StartTime:           r.StartTime,
		EndTime:             r.EndTime,
		SlotDurationMinutes: r.SlotDurationMinutes,
		TreatmentTypes:      r.TreatmentTypes,
		Active:              true,
	}
	if r.Active != nil {
		b.Active = *r.Active
	}
	return b
}

func (h *Handler) CreateBlock(c echo.Context) error {
	providerID, err := parseID(c)
	if err != nil {
		return err
	}
	var req blockRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b := req.block()
	b.ProviderID = providerID
	if err := h.svc.CreateBlock(c.Request().Context(), principal(c), b); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) GetBlock(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	b, err := h.svc.GetBlock(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) ListBlocks(c echo.Context) error {
	providerID, err := parseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListBlocks(c.Request().Context(), providerID, c.QueryParam("active") == "true")
	if err != nil {
		return apperr.HTTPError(err)
	}
	if items == nil {
		items = []*ScheduleBlock{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) UpdateBlock(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req blockRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b := req.block()
	b.ID = id
	if err := h.svc.UpdateBlock(c.Request().Context(), principal(c), b); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) DeleteBlock(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteBlock(c.Request().Context(), principal(c), id); err != nil {
		return apperr.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Overrides --

func (h *Handler) CreateOverride(c echo.Context) error {
	providerID, err := parseID(c)
	if err != nil {
		return err
	}
	var o AvailabilityOverride
	if err := c.Bind(&o); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	o.ID = uuid.Nil
	o.ProviderID = providerID
	if err := h.svc.CreateOverride(c.Request().Context(), principal(c), &o); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) ListOverrides(c echo.Context) error {
	providerID, err := parseID(c)
	if err != nil {
		return err
	}
	from, err := ParseDate(c.QueryParam("from"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid from")
	}
	to, err := ParseDate(c.QueryParam("to"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid to")
	}
	items, err := h.svc.ListOverrides(c.Request().Context(), providerID, from, to)
	if err != nil {
		return apperr.HTTPError(err)
	}
	if items == nil {
		items = []*AvailabilityOverride{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) DeleteOverride(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteOverride(c.Request().Context(), principal(c), id); err != nil {
		return apperr.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
