package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/platform/apperr"
	"github.com/telecare/telecare/internal/platform/auth"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 << 10
)

// MessageSender persists a chat message posted over the socket and relays it
// to the room. The chat service implements it.
type MessageSender interface {
	SendToRoom(ctx context.Context, from auth.Actor, room, body, mediaURL string) error
}

// Handler upgrades authenticated requests and routes client frames.
type Handler struct {
	hub      *Hub
	sender   MessageSender
	upgrader gorillawebsocket.Upgrader
	logger   zerolog.Logger
}

// NewHandler builds a Handler. allowedOrigins of nil or ["*"] accepts any origin.
func NewHandler(hub *Hub, sender MessageSender, allowedOrigins []string, logger zerolog.Logger) *Handler {
	return &Handler{
		hub:    hub,
		sender: sender,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger.With().Str("component", "relay").Logger(),
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// RegisterRoutes mounts GET /ws. The route must sit behind the JWT middleware.
func (h *Handler) RegisterRoutes(e *echo.Echo, mw ...echo.MiddlewareFunc) {
	e.GET("/ws", h.HandleConnect, mw...)
}

// HandleConnect upgrades the connection, registers the client and starts the
// read and write pumps.
func (h *Handler) HandleConnect(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the error response.
		h.logger.Debug().Err(err).Msg("upgrade failed")
		return nil
	}

	client := NewClient(actor)
	h.hub.Register(client)
	h.logger.Info().
		Str("client_id", client.ID).
		Str("user_id", actor.ID.String()).
		Str("role", string(actor.Role)).
		Msg("client connected")

	go h.writePump(client, ws)
	go h.readPump(client, ws)
	return nil
}

func (h *Handler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		h.hub.Unregister(client)
		ws.Close()
		h.logger.Info().Str("client_id", client.ID).Msg("client disconnected")
	}()

	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if gorillawebsocket.IsUnexpectedCloseError(err, gorillawebsocket.CloseGoingAway, gorillawebsocket.CloseNormalClosure) {
				h.logger.Warn().Err(err).Str("client_id", client.ID).Msg("unexpected close")
			}
			return
		}
		h.Dispatch(context.Background(), client, raw)
	}
}

func (h *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case msg, ok := <-client.Send:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				ws.WriteMessage(gorillawebsocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Dispatch handles one client frame. Failures are reported back to the
// sending client as an error event and never close the connection.
func (h *Handler) Dispatch(ctx context.Context, client *Client, raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.replyError(client, "", apperr.Validation("malformed message"))
		return
	}

	var err error
	switch msg.Action {
	case ActionJoin:
		if err = h.hub.Join(client, msg.Room); err == nil {
			h.hub.SendTo(client, NewEvent(EventStatus, msg.Room, map[string]string{"status": "joined"}))
		}
	case ActionLeave:
		h.hub.Leave(client, msg.Room)
		h.hub.SendTo(client, NewEvent(EventStatus, msg.Room, map[string]string{"status": "left"}))
	case ActionSendMessage:
		err = h.sendMessage(ctx, client, msg)
	case ActionSignal:
		err = h.signal(client, msg)
	default:
		err = apperr.Validation("unknown action %q", msg.Action)
	}

	if err != nil {
		h.replyError(client, msg.Room, err)
	}
}

func (h *Handler) sendMessage(ctx context.Context, client *Client, msg ClientMessage) error {
	if h.sender == nil {
		return apperr.Validation("messaging is not enabled")
	}
	return h.sender.SendToRoom(ctx, client.Actor, msg.Room, msg.Body, msg.MediaURL)
}

// signal relays WebRTC call signalling to the other members of a chat room
// the sender has joined.
func (h *Handler) signal(client *Client, msg ClientMessage) error {
	if !signalKinds[msg.Kind] {
		return apperr.Validation("unknown signal kind %q", msg.Kind)
	}
	if _, _, err := ParseChatRoom(msg.Room); err != nil {
		return err
	}
	if !h.hub.InRoom(client, msg.Room) {
		return apperr.Forbidden("join %s before signalling", msg.Room)
	}

	sender := client.Actor.ID
	ev := Event{
		Type:      EventCallSignal,
		Room:      msg.Room,
		Sender:    &sender,
		Timestamp: time.Now().UTC(),
	}
	ev.Data, _ = json.Marshal(map[string]any{"kind": msg.Kind, "payload": msg.Payload})
	h.hub.BroadcastExcept(msg.Room, ev, client)
	return nil
}

func (h *Handler) replyError(client *Client, room string, err error) {
	kind := apperr.KindOf(err)
	message := err.Error()
	if kind == apperr.KindStorage {
		h.logger.Error().Err(err).Str("client_id", client.ID).Msg("relay action failed")
		message = "internal server error"
	}
	h.hub.SendTo(client, NewEvent(EventError, room, apperr.BodyDetail{Code: string(kind), Message: message}))
}
