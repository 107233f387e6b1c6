package appointment

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

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
	api.POST("/appointments", h.Book, auth.RequireRole(auth.RolePatient))
	api.GET("/appointments", h.List)
	api.GET("/appointments/:id", h.Get)
	api.POST("/appointments/:id/cancel", h.Cancel, auth.RequireRole(auth.RolePatient, auth.RoleDoctor))

	doctor := api.Group("", auth.RequireRole(auth.RoleDoctor))
	doctor.POST("/appointments/:id/approve", h.Approve)
	doctor.POST("/appointments/:id/decline", h.Decline)
	doctor.POST("/appointments/:id/complete", h.Complete)
	doctor.POST("/appointments/:id/no-show", h.MarkNoShow)
	doctor.GET("/doctor/stats", h.DoctorStats)
}

func (h *Handler) Book(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	var in BookInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.Book(c.Request().Context(), actor, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) Get(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.Get(c.Request().Context(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) List(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), actor, Status(c.QueryParam("status")), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

type transitionFunc func(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Appointment, error)

func (h *Handler) transition(c echo.Context, fn transitionFunc) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := fn(c.Request().Context(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Approve(c echo.Context) error    { return h.transition(c, h.svc.Approve) }
func (h *Handler) Decline(c echo.Context) error    { return h.transition(c, h.svc.Decline) }
func (h *Handler) Cancel(c echo.Context) error     { return h.transition(c, h.svc.Cancel) }
func (h *Handler) Complete(c echo.Context) error   { return h.transition(c, h.svc.Complete) }
func (h *Handler) MarkNoShow(c echo.Context) error { return h.transition(c, h.svc.MarkNoShow) }

func (h *Handler) DoctorStats(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	stats, err := h.svc.DoctorStats(c.Request().Context(), actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}
