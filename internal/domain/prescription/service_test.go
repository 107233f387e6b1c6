package prescription

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

	"github.com/telecare/telecare/internal/domain/appointment"
	"github.com/telecare/telecare/internal/domain/identity/identitytest"
	"github.com/telecare/telecare/internal/domain/notification"
	"github.com/telecare/telecare/internal/domain/notification/notificationtest"
	"github.com/telecare/telecare/internal/platform/apperr"
	"github.com/telecare/telecare/internal/platform/auth"
	"github.com/telecare/telecare/internal/platform/websocket"
)

type passTx struct{}

func (passTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

type mockRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*Prescription
	seq   time.Time
}

func newMockRepo() *mockRepo {
	return &mockRepo{items: make(map[uuid.UUID]*Prescription), seq: time.Now()}
}

func (m *mockRepo) Create(_ context.Context, p *Prescription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = uuid.New()
	m.seq = m.seq.Add(time.Second)
	p.CreatedAt = m.seq
	m.items[p.ID] = p
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Prescription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("prescription")
	}
	return p, nil
}

func (m *mockRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Prescription, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Prescription
	for _, p := range m.items {
		if f.PatientID != uuid.Nil && p.PatientID != f.PatientID {
			continue
		}
		if f.DoctorID != uuid.Nil && p.DoctorID != f.DoctorID {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	return out[offset:min(offset+limit, total)], total, nil
}

type stubAppointments map[uuid.UUID]*appointment.Appointment

func (s stubAppointments) GetByID(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	a, ok := s[id]
	if !ok {
		return nil, apperr.NotFound("appointment")
	}
	return a, nil
}

type recordingRelay struct {
	mu     sync.Mutex
	events []websocket.Event
	err    error
}

func (r *recordingRelay) Publish(_ context.Context, ev websocket.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, ev)
	return nil
}

type fixture struct {
	svc     *Service
	repo    *mockRepo
	notes   *notificationtest.MemoryRepo
	relay   *recordingRelay
	appts   stubAppointments
	patient auth.Actor
	doctor  auth.Actor
	other   auth.Actor
}

func newFixture() *fixture {
	users := identitytest.NewMemoryRepo()
	f := &fixture{
		repo:  newMockRepo(),
		notes: notificationtest.NewMemoryRepo(),
		relay: &recordingRelay{},
		appts: stubAppointments{},
	}
	f.patient = users.Add(auth.RolePatient, "Pat Patient").Actor()
	f.doctor = users.Add(auth.RoleDoctor, "Dana Doctor").Actor()
	f.other = users.Add(auth.RoleDoctor, "Olly Other").Actor()
	f.svc = NewService(passTx{}, f.repo, users, f.appts, f.notes, f.relay, zerolog.Nop())
	return f
}

func (f *fixture) write(t *testing.T) *Prescription {
	t.Helper()
	p, err := f.svc.Write(context.Background(), f.doctor, WriteInput{
		PatientID:    f.patient.ID,
		Diagnosis:    "Seasonal flu",
		Medicines:    "Paracetamol 500mg",
		Instructions: "Twice a day after meals",
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestWrite_NotifiesPatient(t *testing.T) {
	f := newFixture()
	p := f.write(t)

	if p.DoctorID != f.doctor.ID || p.DoctorName != "Dana Doctor" {
		t.Errorf("unexpected prescription %+v", p)
	}
	notes := f.notes.For(f.patient.ID)
	if len(notes) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notes))
	}
	if notes[0].Type != notification.TypePrescriptionIssued {
		t.Errorf("unexpected type %s", notes[0].Type)
	}
	if !strings.HasPrefix(notes[0].Message, "Dr. Dana Doctor has issued a prescription for Seasonal flu.") {
		t.Errorf("unexpected message %q", notes[0].Message)
	}

	if len(f.relay.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(f.relay.events))
	}
	ev := f.relay.events[0]
	if ev.Type != string(notification.TypePrescriptionIssued) || ev.Room != websocket.UserRoom(f.patient.ID) {
		t.Errorf("unexpected event %s to %s", ev.Type, ev.Room)
	}
	var data map[string]string
	if err := json.Unmarshal(ev.Data, &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data["prescription_id"] != p.ID.String() {
		t.Errorf("expected prescription id in event, got %v", data)
	}
}

func TestWrite_RelayFailureDoesNotFail(t *testing.T) {
	f := newFixture()
	f.relay.err = errors.New("redis down")
	f.write(t)
	if f.notes.Len() != 1 {
		t.Errorf("notification must still be stored")
	}
}

func TestWrite_Rules(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if _, err := f.svc.Write(ctx, f.patient, WriteInput{PatientID: f.patient.ID, Medicines: "x"}); !errors.Is(err, apperr.ErrAuthorization) {
		t.Errorf("patient writer: expected authorization error, got %v", err)
	}
	if _, err := f.svc.Write(ctx, f.doctor, WriteInput{PatientID: f.patient.ID, Medicines: "  "}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("no medicines: expected validation error, got %v", err)
	}
	if _, err := f.svc.Write(ctx, f.doctor, WriteInput{PatientID: uuid.New(), Medicines: "x"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown patient: expected not found, got %v", err)
	}
	if _, err := f.svc.Write(ctx, f.doctor, WriteInput{PatientID: f.other.ID, Medicines: "x"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("doctor as patient: expected not found, got %v", err)
	}
	if len(f.repo.items) != 0 {
		t.Errorf("nothing should be stored, got %d", len(f.repo.items))
	}
}

func TestWrite_AppointmentMustMatchParties(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	mine := &appointment.Appointment{ID: uuid.New(), PatientID: f.patient.ID, DoctorID: f.doctor.ID}
	theirs := &appointment.Appointment{ID: uuid.New(), PatientID: f.patient.ID, DoctorID: f.other.ID}
	f.appts[mine.ID] = mine
	f.appts[theirs.ID] = theirs

	p, err := f.svc.Write(ctx, f.doctor, WriteInput{PatientID: f.patient.ID, AppointmentID: &mine.ID, Medicines: "x"})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if p.AppointmentID == nil || *p.AppointmentID != mine.ID {
		t.Errorf("expected appointment link, got %v", p.AppointmentID)
	}
	if _, err := f.svc.Write(ctx, f.doctor, WriteInput{PatientID: f.patient.ID, AppointmentID: &theirs.ID, Medicines: "x"}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("foreign appointment: expected validation error, got %v", err)
	}
}

func TestList_RoleScoped(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.write(t)
	f.write(t)

	_, total, err := f.svc.List(ctx, f.patient, 20, 0)
	if err != nil || total != 2 {
		t.Errorf("patient: expected 2, got %d (%v)", total, err)
	}
	_, total, _ = f.svc.List(ctx, f.doctor, 20, 0)
	if total != 2 {
		t.Errorf("doctor: expected 2, got %d", total)
	}
	_, total, _ = f.svc.List(ctx, f.other, 20, 0)
	if total != 0 {
		t.Errorf("other doctor issued nothing, got %d", total)
	}
	pharmacy := auth.Actor{ID: uuid.New(), Role: auth.RolePharmacy}
	if _, _, err := f.svc.List(ctx, pharmacy, 20, 0); !errors.Is(err, apperr.ErrAuthorization) {
		t.Errorf("pharmacy: expected authorization error, got %v", err)
	}
}

func TestListForPatient_Access(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.write(t)

	if _, total, err := f.svc.ListForPatient(ctx, f.other, f.patient.ID, 20, 0); err != nil || total != 1 {
		t.Errorf("any doctor may view: got %d (%v)", total, err)
	}
	stranger := auth.Actor{ID: uuid.New(), Role: auth.RolePatient}
	if _, _, err := f.svc.ListForPatient(ctx, stranger, f.patient.ID, 20, 0); !errors.Is(err, apperr.ErrAuthorization) {
		t.Errorf("stranger: expected authorization error, got %v", err)
	}
}

func TestGet_PartyScoped(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := f.write(t)

	for _, a := range []auth.Actor{f.patient, f.doctor, {ID: uuid.New(), Role: auth.RoleAdmin}} {
		if _, err := f.svc.Get(ctx, a, p.ID); err != nil {
			t.Errorf("%s: unexpected error %v", a.Role, err)
		}
	}
	if _, err := f.svc.Get(ctx, f.other, p.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("other doctor: expected not found, got %v", err)
	}
}
