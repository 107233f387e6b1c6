package sos

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/telecare/telecare/internal/platform/apperr"
	"github.com/telecare/telecare/internal/platform/auth"
)

func request(method, body string, actor auth.Actor) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	req.Header.Set("User-Agent", "test-agent/1.0")
	return req.WithContext(auth.WithActor(req.Context(), actor))
}

func TestHandler_Raise(t *testing.T) {
	f := newFixture(2)
	h, e := NewHandler(f.svc), echo.New()

	rec := httptest.NewRecorder()
	err := h.Raise(e.NewContext(request(http.MethodPost, `{"latitude":51.5,"longitude":-0.12}`, f.patient), rec))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var res RaiseResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.DoctorsNotified != 2 {
		t.Errorf("expected 2 doctors notified, got %d", res.DoctorsNotified)
	}
	if res.Alert.UserAgent == nil || *res.Alert.UserAgent != "test-agent/1.0" {
		t.Errorf("expected user agent from header, got %v", res.Alert.UserAgent)
	}
}

func TestHandler_Respond_EmptyBody(t *testing.T) {
	f := newFixture(1)
	h, e := NewHandler(f.svc), echo.New()
	res, err := f.svc.Raise(t.Context(), f.patient, RaiseInput{})
	if err != nil {
		t.Fatalf("raise: %v", err)
	}

	rec := httptest.NewRecorder()
	c := e.NewContext(request(http.MethodPost, "", f.doctors[0]), rec)
	c.SetParamNames("id")
	c.SetParamValues(res.Alert.ID.String())
	if err := h.Respond(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	c = e.NewContext(request(http.MethodPost, `{"notes":"me too"}`, f.doctors[0]), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(res.Alert.ID.String())
	if err := h.Respond(c); !errors.Is(err, apperr.ErrAlreadyResponded) {
		t.Errorf("expected already responded, got %v", err)
	}
}
