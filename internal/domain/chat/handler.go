package chat

import (
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
	api.GET("/chat/:peer_id/messages", h.History)
	api.POST("/chat/:peer_id/messages", h.Send)
}

func peerParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("peer_id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid peer_id")
	}
	return id, nil
}

func (h *Handler) Send(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	peer, err := peerParam(c)
	if err != nil {
		return err
	}
	var in SendInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	m, err := h.svc.Send(c.Request().Context(), actor, peer, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) History(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	peer, err := peerParam(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.History(c.Request().Context(), actor, peer, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}
