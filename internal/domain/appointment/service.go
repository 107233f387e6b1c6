package appointment

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/domain/identity"
	"github.com/telecare/telecare/internal/domain/notification"
	"github.com/telecare/telecare/internal/platform/apperr"
	"github.com/telecare/telecare/internal/platform/auth"
	"github.com/telecare/telecare/internal/platform/db"
	"github.com/telecare/telecare/internal/platform/websocket"
	"github.com/telecare/telecare/pkg/caldate"
)

// Users resolves the parties of an appointment.
type Users interface {
	GetByID(ctx context.Context, id uuid.UUID) (*identity.User, error)
}

type Service struct {
	tx     db.Transactor
	appts  Repository
	users  Users
	notes  notification.Repository
	relay  websocket.EventPublisher
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(tx db.Transactor, appts Repository, users Users, notes notification.Repository,
	relay websocket.EventPublisher, logger zerolog.Logger) *Service {
	return &Service{
		tx:     tx,
		appts:  appts,
		users:  users,
		notes:  notes,
		relay:  relay,
		logger: logger.With().Str("component", "appointments").Logger(),
		now:    time.Now,
	}
}

// Book creates a pending appointment for the calling patient.
func (s *Service) Book(ctx context.Context, actor auth.Actor, in BookInput) (*Appointment, error) {
	if !actor.Is(auth.RolePatient) {
		return nil, apperr.Forbidden("only patients can book appointments")
	}
	if in.DoctorID == uuid.Nil {
		return nil, apperr.Validation("doctor_id is required")
	}
	if strings.TrimSpace(in.Date) == "" || strings.TrimSpace(in.Time) == "" {
		return nil, apperr.Validation("appointment_date and appointment_time are required")
	}
	date, err := caldate.ParseDate(in.Date)
	if err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	tod, err := caldate.ParseTimeOfDay(in.Time)
	if err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	typ := Type(strings.TrimSpace(in.Type))
	if typ == "" {
		typ = TypeVideo
	}
	if !typ.Valid() {
		return nil, apperr.Validation("unknown appointment_type %q", in.Type)
	}

	doctor, err := s.users.GetByID(ctx, in.DoctorID)
	if err != nil {
		return nil, err
	}
	if doctor.Role != auth.RoleDoctor {
		return nil, apperr.NotFound("doctor")
	}
	patient, err := s.users.GetByID(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	taken, err := s.appts.SlotTaken(ctx, doctor.ID, date, tod)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperr.ErrSlotConflict
	}

	a := &Appointment{
		PatientID:   actor.ID,
		DoctorID:    doctor.ID,
		Date:        date,
		Time:        tod,
		Type:        typ,
		Symptoms:    strings.TrimSpace(in.Symptoms),
		Status:      StatusPending,
		PatientName: patient.Name,
		DoctorName:  doctor.Name,
	}
	if err := s.appts.Create(ctx, a); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("doctor_id", a.DoctorID.String()).
		Msg("appointment booked")
	return a, nil
}

// notice is the notification a transition leaves for the other party.
type notice struct {
	recipient uuid.UUID
	typ       notification.Type
	vars      notification.Vars
}

type transition struct {
	verb string
	// from restricts the source statuses further than the state machine does.
	from []Status
	to   Status
	// authorize returns nil when actor may perform the transition on a.
	authorize func(actor auth.Actor, a *Appointment) error
	notify    func(actor auth.Actor, a *Appointment) *notice
}

func ownedByDoctor(verb string) func(auth.Actor, *Appointment) error {
	return func(actor auth.Actor, a *Appointment) error {
		if !actor.Is(auth.RoleDoctor) || a.DoctorID != actor.ID {
			return apperr.Forbidden("only the assigned doctor can %s this appointment", verb)
		}
		return nil
	}
}

func patientNotice(typ notification.Type) func(auth.Actor, *Appointment) *notice {
	return func(_ auth.Actor, a *Appointment) *notice {
		return &notice{recipient: a.PatientID, typ: typ, vars: slotVars(a, a.PatientName)}
	}
}

func slotVars(a *Appointment, name string) notification.Vars {
	return notification.Vars{
		"name":   name,
		"date":   a.Date.String(),
		"time":   a.Time.Kitchen(),
		"doctor": a.DoctorName,
	}
}

var (
	approveTransition = transition{
		verb:      "approve",
		to:        StatusConfirmed,
		authorize: ownedByDoctor("approve"),
		notify:    patientNotice(notification.TypeAppointmentApproved),
	}
	declineTransition = transition{
		verb:      "decline",
		from:      []Status{StatusPending},
		to:        StatusCancelled,
		authorize: ownedByDoctor("decline"),
		notify:    patientNotice(notification.TypeAppointmentDeclined),
	}
	completeTransition = transition{
		verb:      "complete",
		to:        StatusCompleted,
		authorize: ownedByDoctor("complete"),
		notify:    patientNotice(notification.TypeAppointmentCompleted),
	}
	noShowTransition = transition{
		verb:      "mark as no-show",
		to:        StatusNoShow,
		authorize: ownedByDoctor("mark as no-show"),
	}
	cancelTransition = transition{
		verb: "cancel",
		to:   StatusCancelled,
		authorize: func(actor auth.Actor, a *Appointment) error {
			if (actor.Is(auth.RolePatient) && a.PatientID == actor.ID) ||
				(actor.Is(auth.RoleDoctor) && a.DoctorID == actor.ID) {
				return nil
			}
			return apperr.Forbidden("only the patient or the assigned doctor can cancel this appointment")
		},
		notify: func(actor auth.Actor, a *Appointment) *notice {
			if actor.ID == a.PatientID {
				vars := slotVars(a, "Dr. "+a.DoctorName)
				vars["by"] = a.PatientName
				return &notice{recipient: a.DoctorID, typ: notification.TypeAppointmentCancelled, vars: vars}
			}
			vars := slotVars(a, a.PatientName)
			vars["by"] = "Dr. " + a.DoctorName
			return &notice{recipient: a.PatientID, typ: notification.TypeAppointmentCancelled, vars: vars}
		},
	}
)

// Approve confirms a pending appointment.
func (s *Service) Approve(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Appointment, error) {
	return s.apply(ctx, actor, id, approveTransition)
}

// Decline cancels a pending appointment on the doctor's behalf.
func (s *Service) Decline(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Appointment, error) {
	return s.apply(ctx, actor, id, declineTransition)
}

// Cancel withdraws a non-terminal appointment. Either party may cancel.
func (s *Service) Cancel(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Appointment, error) {
	return s.apply(ctx, actor, id, cancelTransition)
}

func (s *Service) Complete(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Appointment, error) {
	return s.apply(ctx, actor, id, completeTransition)
}

func (s *Service) MarkNoShow(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Appointment, error) {
	return s.apply(ctx, actor, id, noShowTransition)
}

// apply runs one transition in a single transaction: lock the row, check who
// and from which status, update, write the notification. The relay event is
// published only after commit.
func (s *Service) apply(ctx context.Context, actor auth.Actor, id uuid.UUID, t transition) (*Appointment, error) {
	var (
		appt *Appointment
		note *notification.Notification
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.appts.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := t.authorize(actor, a); err != nil {
			return err
		}
		if !a.Status.CanTransitionTo(t.to) || (t.from != nil && !slices.Contains(t.from, a.Status.Normalize())) {
			return apperr.InvalidState("cannot %s an appointment that is %s", t.verb, a.Status.Normalize())
		}

		a.Status = t.to
		if err := s.appts.UpdateStatus(ctx, a); err != nil {
			return err
		}

		if t.notify != nil {
			n := t.notify(actor, a)
			note, err = notification.New(n.recipient, n.typ, n.vars)
			if err != nil {
				return err
			}
			if err := s.notes.Create(ctx, note); err != nil {
				return err
			}
		}
		appt = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", appt.ID.String()).
		Str("actor_id", actor.ID.String()).
		Str("action", t.verb).
		Str("status", string(appt.Status)).
		Msg("appointment transition")
	if note != nil {
		s.publish(ctx, appt, note)
	}
	return appt, nil
}

type eventData struct {
	NotificationID uuid.UUID `json:"notification_id"`
	AppointmentID  uuid.UUID `json:"appointment_id"`
	Status         Status    `json:"status"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
}

// publish relays the notification to the recipient's user room. Failures are
// logged only; the notification row is the durable record.
func (s *Service) publish(ctx context.Context, a *Appointment, n *notification.Notification) {
	ev := websocket.NewEvent(string(n.Type), websocket.UserRoom(n.UserID), eventData{
		NotificationID: n.ID,
		AppointmentID:  a.ID,
		Status:         a.Status,
		Title:          n.Title,
		Message:        n.Message,
	})
	if err := s.relay.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).
			Str("appointment_id", a.ID.String()).
			Str("event", ev.Type).
			Msg("relay publish failed")
	}
}

// Get returns an appointment visible to actor.
func (s *Service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Appointment, error) {
	a, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Is(auth.RoleAdmin) || a.PatientID == actor.ID || a.DoctorID == actor.ID {
		return a, nil
	}
	return nil, apperr.NotFound("appointment")
}

// List returns the actor's own appointments. Admins see everything.
func (s *Service) List(ctx context.Context, actor auth.Actor, status Status, limit, offset int) ([]*Appointment, int, error) {
	if status != "" && !status.Valid() {
		return nil, 0, apperr.Validation("unknown status %q", status)
	}
	f := Filter{Status: status}
	switch actor.Role {
	case auth.RolePatient:
		f.PatientID = actor.ID
	case auth.RoleDoctor:
		f.DoctorID = actor.ID
	case auth.RoleAdmin:
	default:
		return nil, 0, apperr.Forbidden("%s accounts have no appointments", actor.Role)
	}
	return s.appts.List(ctx, f, limit, offset)
}

// DoctorStats summarises the calling doctor's workload for today.
func (s *Service) DoctorStats(ctx context.Context, actor auth.Actor) (*DoctorStats, error) {
	if !actor.Is(auth.RoleDoctor) {
		return nil, apperr.Forbidden("only doctors have a dashboard")
	}
	return s.appts.DoctorStats(ctx, actor.ID, caldate.DateOf(s.now()))
}
