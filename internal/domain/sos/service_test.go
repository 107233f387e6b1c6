package sos

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/domain/identity/identitytest"
	"github.com/telecare/telecare/internal/domain/notification"
	"github.com/telecare/telecare/internal/domain/notification/notificationtest"
	"github.com/telecare/telecare/internal/platform/apperr"
	"github.com/telecare/telecare/internal/platform/auth"
	"github.com/telecare/telecare/internal/platform/websocket"
)

// -- Test doubles --

type serialTx struct{ mu sync.Mutex }

func (t *serialTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(ctx)
}

type mockRepo struct {
	mu     sync.Mutex
	alerts map[uuid.UUID]Alert
}

func newMockRepo() *mockRepo {
	return &mockRepo{alerts: make(map[uuid.UUID]Alert)}
}

func (m *mockRepo) Create(_ context.Context, a *Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	m.alerts[a.ID] = *a
	return nil
}

func (m *mockRepo) GetForUpdate(_ context.Context, id uuid.UUID) (*Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return nil, apperr.NotFound("sos alert")
	}
	return &a, nil
}

func (m *mockRepo) Update(_ context.Context, a *Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.alerts[a.ID]; !ok {
		return apperr.NotFound("sos alert")
	}
	m.alerts[a.ID] = *a
	return nil
}

func (m *mockRepo) ListByStatus(_ context.Context, status Status, limit, offset int) ([]*Alert, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Alert
	for _, a := range m.alerts {
		if a.Status == status {
			a := a
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

// countingRelay forwards to a real hub and counts publishes per room.
type countingRelay struct {
	hub *websocket.Hub
	mu  sync.Mutex
	by  map[string]int
}

func (r *countingRelay) Publish(ctx context.Context, ev websocket.Event) error {
	r.mu.Lock()
	r.by[ev.Room]++
	r.mu.Unlock()
	return r.hub.Publish(ctx, ev)
}

func (r *countingRelay) count(room string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.by[room]
}

// -- Fixture --

type fixture struct {
	svc     *Service
	repo    *mockRepo
	users   *identitytest.MemoryRepo
	notes   *notificationtest.MemoryRepo
	hub     *websocket.Hub
	relay   *countingRelay
	patient auth.Actor
	doctors []auth.Actor
}

func newFixture(doctors int) *fixture {
	hub := websocket.NewHub(zerolog.Nop())
	f := &fixture{
		repo:  newMockRepo(),
		users: identitytest.NewMemoryRepo(),
		notes: notificationtest.NewMemoryRepo(),
		hub:   hub,
		relay: &countingRelay{hub: hub, by: make(map[string]int)},
	}
	f.patient = f.users.Add(auth.RolePatient, "Pat Patient").Actor()
	for i := 0; i < doctors; i++ {
		f.doctors = append(f.doctors, f.users.Add(auth.RoleDoctor, "Doc").Actor())
	}
	f.svc = NewService(&serialTx{}, f.repo, f.users, f.notes, f.relay, zerolog.Nop())
	return f
}

func (f *fixture) connect(t *testing.T, actor auth.Actor, rooms ...string) *websocket.Client {
	t.Helper()
	c := websocket.NewClient(actor)
	f.hub.Register(c)
	for _, room := range rooms {
		if err := f.hub.Join(c, room); err != nil {
			t.Fatalf("join %s: %v", room, err)
		}
	}
	return c
}

func received(c *websocket.Client) []websocket.Event {
	var out []websocket.Event
	for {
		select {
		case raw := <-c.Send:
			var ev websocket.Event
			if err := json.Unmarshal(raw, &ev); err == nil {
				out = append(out, ev)
			}
		default:
			return out
		}
	}
}

func ptr(f float64) *float64 { return &f }

// -- Raise --

func TestRaise_FansOutToEveryDoctor(t *testing.T) {
	const n = 3
	f := newFixture(n)
	var clients []*websocket.Client
	for _, d := range f.doctors {
		clients = append(clients, f.connect(t, d, websocket.DoctorsRoom))
	}

	res, err := f.svc.Raise(context.Background(), f.patient, RaiseInput{Latitude: ptr(40.7128), Longitude: ptr(-74.006)})
	if err != nil {
		t.Fatalf("raise: %v", err)
	}
	if res.DoctorsNotified != n {
		t.Errorf("expected %d doctors notified, got %d", n, res.DoctorsNotified)
	}
	if res.Alert.Status != StatusActive {
		t.Errorf("expected active alert, got %s", res.Alert.Status)
	}

	for _, d := range f.doctors {
		notes := f.notes.For(d.ID)
		if len(notes) != 1 || notes[0].Type != notification.TypeSOSAlert {
			t.Fatalf("doctor %s: expected one sos notification, got %+v", d.ID, notes)
		}
		if notes[0].Title != "EMERGENCY SOS ALERT - Pat Patient" {
			t.Errorf("unexpected title %q", notes[0].Title)
		}
		if !strings.Contains(notes[0].Message, "https://www.google.com/maps?q=40.712800,-74.006000") {
			t.Errorf("expected maps link in %q", notes[0].Message)
		}
	}
	if f.notes.Len() != n {
		t.Errorf("expected %d notifications total, got %d", n, f.notes.Len())
	}

	if got := f.relay.count(websocket.DoctorsRoom); got != 1 {
		t.Errorf("expected exactly one broadcast, got %d", got)
	}
	for i, c := range clients {
		events := received(c)
		if len(events) != 1 || events[0].Type != websocket.EventSOSAlert {
			t.Errorf("doctor %d: expected one sos_alert event, got %+v", i, events)
		}
	}
}

func TestRaise_NoDoctors(t *testing.T) {
	f := newFixture(0)
	res, err := f.svc.Raise(context.Background(), f.patient, RaiseInput{})
	if err != nil {
		t.Fatalf("raise: %v", err)
	}
	if res.DoctorsNotified != 0 || f.notes.Len() != 0 {
		t.Errorf("expected nobody notified, got %d", res.DoctorsNotified)
	}
}

func TestRaise_LocationText(t *testing.T) {
	f := newFixture(1)
	doc := f.doctors[0]

	if _, err := f.svc.Raise(context.Background(), f.patient, RaiseInput{LocationError: "User denied Geolocation"}); err != nil {
		t.Fatalf("raise: %v", err)
	}
	if _, err := f.svc.Raise(context.Background(), f.patient, RaiseInput{}); err != nil {
		t.Fatalf("raise: %v", err)
	}
	notes := f.notes.For(doc.ID)
	if !strings.Contains(notes[0].Message, "Location: User denied Geolocation") {
		t.Errorf("expected location error in %q", notes[0].Message)
	}
	if !strings.Contains(notes[1].Message, "Location: Not available") {
		t.Errorf("expected unavailable location in %q", notes[1].Message)
	}
}

func TestRaise_Validation(t *testing.T) {
	f := newFixture(1)
	cases := map[string]RaiseInput{
		"latitude only": {Latitude: ptr(10)},
		"bad latitude":  {Latitude: ptr(91), Longitude: ptr(0)},
		"bad longitude": {Latitude: ptr(0), Longitude: ptr(-181)},
	}
	for name, in := range cases {
		if _, err := f.svc.Raise(context.Background(), f.patient, in); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestRaise_OnlyPatients(t *testing.T) {
	f := newFixture(1)
	if _, err := f.svc.Raise(context.Background(), f.doctors[0], RaiseInput{}); !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
}

// -- Respond / Resolve --

func TestRespond_NotifiesPatient(t *testing.T) {
	f := newFixture(2)
	patientConn := f.connect(t, f.patient)
	res, err := f.svc.Raise(context.Background(), f.patient, RaiseInput{})
	if err != nil {
		t.Fatalf("raise: %v", err)
	}

	a, err := f.svc.Respond(context.Background(), f.doctors[0], res.Alert.ID, "")
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if a.Status != StatusResponded || a.RespondingDoctorID == nil || *a.RespondingDoctorID != f.doctors[0].ID {
		t.Errorf("unexpected alert %+v", a)
	}
	if a.Notes == nil || *a.Notes != "Responded by Dr. Doc" || a.RespondedAt == nil {
		t.Errorf("expected default notes and timestamp, got %+v", a)
	}

	notes := f.notes.For(f.patient.ID)
	if len(notes) != 1 || notes[0].Type != notification.TypeSOSResponded || notes[0].Title != "Help is Coming!" {
		t.Fatalf("expected help-is-coming notification, got %+v", notes)
	}
	events := received(patientConn)
	if len(events) != 1 || events[0].Type != websocket.EventSOSResponded {
		t.Errorf("expected sos_responded event, got %+v", events)
	}
}

func TestRespond_SecondResponderLoses(t *testing.T) {
	f := newFixture(2)
	res, _ := f.svc.Raise(context.Background(), f.patient, RaiseInput{})

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i := range f.doctors {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Respond(context.Background(), f.doctors[i], res.Alert.ID, "on my way")
		}(i)
	}
	wg.Wait()

	wins, lost := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, apperr.ErrAlreadyResponded):
			lost++
		default:
			t.Errorf("unexpected error %v", err)
		}
	}
	if wins != 1 || lost != 1 {
		t.Fatalf("expected one winner and one already-responded, got %d/%d", wins, lost)
	}
	if n := len(f.notes.For(f.patient.ID)); n != 1 {
		t.Errorf("patient should be notified once, got %d", n)
	}
}

func TestRespond_NotFound(t *testing.T) {
	f := newFixture(1)
	if _, err := f.svc.Respond(context.Background(), f.doctors[0], uuid.New(), ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestResolve_Lifecycle(t *testing.T) {
	f := newFixture(2)
	res, _ := f.svc.Raise(context.Background(), f.patient, RaiseInput{})

	if _, err := f.svc.Resolve(context.Background(), f.patient, res.Alert.ID); !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("resolve active: expected invalid state, got %v", err)
	}
	if _, err := f.svc.Respond(context.Background(), f.doctors[0], res.Alert.ID, ""); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if _, err := f.svc.Resolve(context.Background(), f.doctors[1], res.Alert.ID); !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("other doctor: expected authorization error, got %v", err)
	}
	a, err := f.svc.Resolve(context.Background(), f.doctors[0], res.Alert.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if a.Status != StatusResolved || a.ResolvedAt == nil {
		t.Errorf("unexpected alert %+v", a)
	}
	if _, err := f.svc.Resolve(context.Background(), f.patient, res.Alert.ID); !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("resolve twice: expected invalid state, got %v", err)
	}
}

func TestResolve_ByPatient(t *testing.T) {
	f := newFixture(1)
	res, _ := f.svc.Raise(context.Background(), f.patient, RaiseInput{})
	if _, err := f.svc.Respond(context.Background(), f.doctors[0], res.Alert.ID, ""); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if _, err := f.svc.Resolve(context.Background(), f.patient, res.Alert.ID); err != nil {
		t.Fatalf("patient resolve: %v", err)
	}
}

func TestListActive(t *testing.T) {
	f := newFixture(1)
	first, _ := f.svc.Raise(context.Background(), f.patient, RaiseInput{})
	f.svc.Raise(context.Background(), f.patient, RaiseInput{})
	if _, err := f.svc.Respond(context.Background(), f.doctors[0], first.Alert.ID, ""); err != nil {
		t.Fatalf("respond: %v", err)
	}

	items, total, err := f.svc.ListActive(context.Background(), f.doctors[0], 20, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].ID == first.Alert.ID {
		t.Errorf("expected only the unanswered alert, got %d", total)
	}
	if _, _, err := f.svc.ListActive(context.Background(), f.patient, 20, 0); !errors.Is(err, apperr.ErrAuthorization) {
		t.Errorf("patient: expected authorization error, got %v", err)
	}
}
