package identity

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
	svc        *Service
	registrar  *Registrar
	reconciler *Reconciler
	hookSecret string
}

func NewHandler(svc *Service, registrar *Registrar, reconciler *Reconciler, hookSecret string) *Handler {
	return &Handler{svc: svc, registrar: registrar, reconciler: reconciler, hookSecret: hookSecret}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Signup hook: shared-secret auth, bearer auth is skipped for this path.
	api.POST("/auth/hooks/signup", h.SignupHook, auth.RequireHookSecret(h.hookSecret))

	read := api.Group("", auth.RequireRole(auth.RolePatient, auth.RoleProvider))
	read.GET("/me", h.Me)
	read.GET("/profiles/:id", h.GetProfile)
	read.PUT("/profiles/:id", h.UpdateProfile)
	read.GET("/providers", h.ListProviders)
	read.GET("/providers/:id", h.GetProvider)
	read.GET("/patients/:id", h.GetPatient)
	read.PUT("/patients/:id", h.UpdatePatient)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.PUT("/providers/:id", h.UpdateProvider)
	admin.POST("/admin/reconcile", h.Reconcile)
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

// SignupHook answers 201 when every step ran and 207 when any failed, with
// the per-step result in both cases.
func (h *Handler) SignupHook(c echo.Context) error {
	var md SignupMetadata
	if err := c.Bind(&md); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.registrar.Register(c.Request().Context(), md)
	if err != nil {
		return apperr.HTTPError(err)
	}
	status := http.StatusCreated
	if res.Err() != nil {
		status = http.StatusMultiStatus
	}
	return c.JSON(status, res)
}

func (h *Handler) Reconcile(c echo.Context) error {
	dryRun, _ := strconv.ParseBool(c.QueryParam("dry_run"))
	report, err := h.reconciler.Reconcile(c.Request().Context(), dryRun)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) Me(c echo.Context) error {
	me, err := h.svc.Me(c.Request().Context(), principal(c))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, me)
}

func (h *Handler) GetProfile(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetProfile(c.Request().Context(), principal(c), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

type profileUpdate struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req profileUpdate
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.UpdateProfileNames(c.Request().Context(), principal(c), id, req.FirstName, req.LastName)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListProviders(c echo.Context) error {
	pg := pagination.FromContext(c)
	includeInactive, _ := strconv.ParseBool(c.QueryParam("include_inactive"))
	items, total, err := h.svc.ListProviders(c.Request().Context(), principal(c), includeInactive, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return pagination.Respond(c, pg, items, total)
}

func (h *Handler) GetProvider(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetProvider(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdateProvider(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req ProviderUpdate
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.UpdateProvider(c.Request().Context(), principal(c), id, req)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), principal(c), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req PatientUpdate
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.UpdatePatient(c.Request().Context(), principal(c), id, req)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}
