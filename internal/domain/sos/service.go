package sos

import (
	"context"
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
)

// Users resolves the people involved in an alert and the doctors to page.
type Users interface {
	GetByID(ctx context.Context, id uuid.UUID) (*identity.User, error)
	IDsByRole(ctx context.Context, role auth.Role) ([]uuid.UUID, error)
}

type Service struct {
	tx     db.Transactor
	alerts Repository
	users  Users
	notes  notification.Repository
	relay  websocket.EventPublisher
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(tx db.Transactor, alerts Repository, users Users, notes notification.Repository,
	relay websocket.EventPublisher, logger zerolog.Logger) *Service {
	return &Service{
		tx:     tx,
		alerts: alerts,
		users:  users,
		notes:  notes,
		relay:  relay,
		logger: logger.With().Str("component", "sos").Logger(),
		now:    time.Now,
	}
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func validateLocation(in RaiseInput) error {
	if (in.Latitude == nil) != (in.Longitude == nil) {
		return apperr.Validation("latitude and longitude must be sent together")
	}
	if in.Latitude != nil && (*in.Latitude < -90 || *in.Latitude > 90) {
		return apperr.Validation("latitude out of range")
	}
	if in.Longitude != nil && (*in.Longitude < -180 || *in.Longitude > 180) {
		return apperr.Validation("longitude out of range")
	}
	return nil
}

// Raise records an active alert, leaves a notification for every doctor and
// broadcasts once to the doctors room.
func (s *Service) Raise(ctx context.Context, actor auth.Actor, in RaiseInput) (*RaiseResult, error) {
	if !actor.Is(auth.RolePatient) {
		return nil, apperr.Forbidden("only patients can raise an SOS alert")
	}
	if err := validateLocation(in); err != nil {
		return nil, err
	}
	patient, err := s.users.GetByID(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	alert := &Alert{
		PatientID:     actor.ID,
		PatientName:   patient.Name,
		Latitude:      in.Latitude,
		Longitude:     in.Longitude,
		LocationError: optional(in.LocationError),
		UserAgent:     optional(in.UserAgent),
		PageURL:       optional(in.PageURL),
		Status:        StatusActive,
	}
	var message string
	var notified int
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.alerts.Create(ctx, alert); err != nil {
			return err
		}
		doctors, err := s.users.IDsByRole(ctx, auth.RoleDoctor)
		if err != nil {
			return err
		}

		vars := notification.Vars{
			"name":     patient.Name,
			"location": alert.LocationText(),
			"at":       alert.CreatedAt.Format("2006-01-02 15:04:05"),
			"alert_id": alert.ID.String(),
		}
		notes := make([]*notification.Notification, 0, len(doctors))
		for _, id := range doctors {
			n, err := notification.New(id, notification.TypeSOSAlert, vars)
			if err != nil {
				return err
			}
			notes = append(notes, n)
		}
		if err := s.notes.CreateMany(ctx, notes); err != nil {
			return err
		}
		if len(notes) > 0 {
			message = notes[0].Message
		}
		notified = len(notes)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Warn().
		Str("alert_id", alert.ID.String()).
		Str("patient_id", alert.PatientID.String()).
		Bool("has_location", alert.HasCoordinates()).
		Int("doctors_notified", notified).
		Msg("sos alert raised")

	s.publish(ctx, websocket.NewEvent(websocket.EventSOSAlert, websocket.DoctorsRoom, alertEvent{
		AlertID:       alert.ID,
		PatientID:     alert.PatientID,
		PatientName:   alert.PatientName,
		Latitude:      alert.Latitude,
		Longitude:     alert.Longitude,
		LocationError: alert.LocationError,
		Message:       message,
		CreatedAt:     alert.CreatedAt,
	}))
	return &RaiseResult{Alert: alert, DoctorsNotified: notified}, nil
}

type alertEvent struct {
	AlertID       uuid.UUID `json:"alert_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	PatientName   string    `json:"patient_name"`
	Latitude      *float64  `json:"latitude,omitempty"`
	Longitude     *float64  `json:"longitude,omitempty"`
	LocationError *string   `json:"location_error,omitempty"`
	Message       string    `json:"message,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type respondedEvent struct {
	NotificationID uuid.UUID `json:"notification_id"`
	AlertID        uuid.UUID `json:"alert_id"`
	DoctorID       uuid.UUID `json:"doctor_id"`
	DoctorName     string    `json:"doctor_name"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
}

// Respond claims an active alert for the calling doctor. Only the first
// responder wins; later calls get apperr.ErrAlreadyResponded.
func (s *Service) Respond(ctx context.Context, actor auth.Actor, id uuid.UUID, notes string) (*Alert, error) {
	if !actor.Is(auth.RoleDoctor) {
		return nil, apperr.Forbidden("only doctors can respond to SOS alerts")
	}
	doctor, err := s.users.GetByID(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	var (
		alert *Alert
		note  *notification.Notification
	)
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.alerts.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if a.Status != StatusActive {
			return apperr.ErrAlreadyResponded
		}

		now := s.now().UTC()
		text := strings.TrimSpace(notes)
		if text == "" {
			text = "Responded by Dr. " + doctor.Name
		}
		a.Status = StatusResponded
		a.RespondingDoctorID = &doctor.ID
		a.RespondingDoctorName = doctor.Name
		a.RespondedAt = &now
		a.Notes = &text
		if err := s.alerts.Update(ctx, a); err != nil {
			return err
		}

		note, err = notification.New(a.PatientID, notification.TypeSOSResponded, notification.Vars{"doctor": doctor.Name})
		if err != nil {
			return err
		}
		if err := s.notes.Create(ctx, note); err != nil {
			return err
		}
		alert = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("alert_id", alert.ID.String()).
		Str("doctor_id", doctor.ID.String()).
		Msg("sos alert responded")
	s.publish(ctx, websocket.NewEvent(websocket.EventSOSResponded, websocket.UserRoom(alert.PatientID), respondedEvent{
		NotificationID: note.ID,
		AlertID:        alert.ID,
		DoctorID:       doctor.ID,
		DoctorName:     doctor.Name,
		Title:          note.Title,
		Message:        note.Message,
	}))
	return alert, nil
}

// Resolve closes a responded alert. The responding doctor or the patient who
// raised it may resolve.
func (s *Service) Resolve(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Alert, error) {
	var alert *Alert
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.alerts.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		isResponder := a.RespondingDoctorID != nil && *a.RespondingDoctorID == actor.ID
		if !isResponder && a.PatientID != actor.ID {
			return apperr.Forbidden("only the responding doctor or the patient can resolve this alert")
		}
		if a.Status != StatusResponded {
			return apperr.InvalidState("cannot resolve an alert that is %s", a.Status)
		}

		now := s.now().UTC()
		a.Status = StatusResolved
		a.ResolvedAt = &now
		if err := s.alerts.Update(ctx, a); err != nil {
			return err
		}
		alert = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("alert_id", alert.ID.String()).Msg("sos alert resolved")
	return alert, nil
}

// ListActive returns unanswered alerts, newest first.
func (s *Service) ListActive(ctx context.Context, actor auth.Actor, limit, offset int) ([]*Alert, int, error) {
	if !actor.Is(auth.RoleDoctor) {
		return nil, 0, apperr.Forbidden("only doctors can list SOS alerts")
	}
	return s.alerts.ListByStatus(ctx, StatusActive, limit, offset)
}

func (s *Service) publish(ctx context.Context, ev websocket.Event) {
	if err := s.relay.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("event", ev.Type).Str("room", ev.Room).Msg("relay publish failed")
	}
}
