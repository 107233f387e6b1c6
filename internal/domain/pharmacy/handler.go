package pharmacy

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/telecare/telecare/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/pharmacy")
	g.GET("/network", h.Network)

	own := g.Group("/medicines", auth.RequireRole(auth.RolePharmacy))
	own.GET("", h.ListOwn)
	own.POST("", h.Add)
	own.PUT("/:id", h.UpdateQuantity)
	own.DELETE("/:id", h.Delete)
}

func (h *Handler) Add(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	var in MedicineInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	m, err := h.svc.AddMedicine(c.Request().Context(), actor, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) ListOwn(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListOwn(c.Request().Context(), actor)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Medicine{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) UpdateQuantity(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var in QuantityInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	m, err := h.svc.UpdateQuantity(c.Request().Context(), actor, id, in.Quantity)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) Delete(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteMedicine(c.Request().Context(), actor, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Network(c echo.Context) error {
	stock, err := h.svc.Network(c.Request().Context(), c.QueryParam("q"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stock)
}
