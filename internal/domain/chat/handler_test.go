package chat

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/telecare/telecare/internal/platform/auth"
)

func request(method, target, body string, actor auth.Actor) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	return req.WithContext(auth.WithActor(req.Context(), actor))
}

func TestHandler_SendAndHistory(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(request(http.MethodPost, "/", `{"body":"are you free?"}`, f.patient), rec)
	c.SetParamNames("peer_id")
	c.SetParamValues(f.doctor.ID.String())
	if err := h.Send(c); err != nil {
		t.Fatalf("send: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(request(http.MethodGet, "/?limit=10", "", f.doctor), rec)
	c.SetParamNames("peer_id")
	c.SetParamValues(f.patient.ID.String())
	if err := h.History(c); err != nil {
		t.Fatalf("history: %v", err)
	}
	var resp struct {
		Data  []Message `json:"data"`
		Total int       `json:"total"`
		Limit int       `json:"limit"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || resp.Limit != 10 || resp.Data[0].Body != "are you free?" {
		t.Errorf("unexpected history %+v", resp)
	}
}

func TestHandler_InvalidPeer(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()

	c := e.NewContext(request(http.MethodGet, "/", "", f.doctor), httptest.NewRecorder())
	c.SetParamNames("peer_id")
	c.SetParamValues("nope")
	err := h.History(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}
