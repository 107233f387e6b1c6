package identity

import (
	"errors"
	"net/http"

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

// RegisterRoutes mounts the public auth endpoints and the authenticated
// profile endpoints on api.
func (h *Handler) RegisterRoutes(api *echo.Group, authMW ...echo.MiddlewareFunc) {
	api.POST("/auth/register", h.Register, authMW...)
	api.POST("/auth/login", h.Login, authMW...)
	api.GET("/me", h.Me)
	api.GET("/doctors", h.ListDoctors)
}

func (h *Handler) Register(c echo.Context) error {
	var in NewUser
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	u, err := h.svc.Register(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, u)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Username == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "username and password are required")
	}
	sess, err := h.svc.Login(c.Request().Context(), req.Username, req.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) Me(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	u, err := h.svc.Me(c.Request().Context(), actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDoctors(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}
