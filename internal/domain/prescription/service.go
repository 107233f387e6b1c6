package prescription

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/domain/appointment"
	"github.com/telecare/telecare/internal/domain/identity"
	"github.com/telecare/telecare/internal/domain/notification"
	"github.com/telecare/telecare/internal/platform/apperr"
	"github.com/telecare/telecare/internal/platform/auth"
	"github.com/telecare/telecare/internal/platform/db"
	"github.com/telecare/telecare/internal/platform/websocket"
)

type Users interface {
	GetByID(ctx context.Context, id uuid.UUID) (*identity.User, error)
}

// Appointments looks up the visit a prescription is attached to.
type Appointments interface {
	GetByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
}

type Service struct {
	tx     db.Transactor
	rx     Repository
	users  Users
	appts  Appointments
	notes  notification.Repository
	relay  websocket.EventPublisher
	logger zerolog.Logger
}

func NewService(tx db.Transactor, rx Repository, users Users, appts Appointments,
	notes notification.Repository, relay websocket.EventPublisher, logger zerolog.Logger) *Service {
	return &Service{
		tx:     tx,
		rx:     rx,
		users:  users,
		appts:  appts,
		notes:  notes,
		relay:  relay,
		logger: logger.With().Str("component", "prescriptions").Logger(),
	}
}

// Write records a prescription from the calling doctor and notifies the
// patient.
func (s *Service) Write(ctx context.Context, actor auth.Actor, in WriteInput) (*Prescription, error) {
	if !actor.Is(auth.RoleDoctor) {
		return nil, apperr.Forbidden("only doctors can write prescriptions")
	}
	if in.PatientID == uuid.Nil {
		return nil, apperr.Validation("patient_id is required")
	}
	medicines := strings.TrimSpace(in.Medicines)
	if medicines == "" {
		return nil, apperr.Validation("medicines is required")
	}
	diagnosis := strings.TrimSpace(in.Diagnosis)

	patient, err := s.users.GetByID(ctx, in.PatientID)
	if err != nil {
		return nil, err
	}
	if patient.Role != auth.RolePatient {
		return nil, apperr.NotFound("patient")
	}
	doctor, err := s.users.GetByID(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if in.AppointmentID != nil {
		a, err := s.appts.GetByID(ctx, *in.AppointmentID)
		if err != nil {
			return nil, err
		}
		if a.DoctorID != actor.ID || a.PatientID != in.PatientID {
			return nil, apperr.Validation("appointment %s is not between this doctor and patient", a.ID)
		}
	}

	p := &Prescription{
		PatientID:     in.PatientID,
		DoctorID:      actor.ID,
		AppointmentID: in.AppointmentID,
		Diagnosis:     diagnosis,
		Medicines:     medicines,
		Instructions:  strings.TrimSpace(in.Instructions),
		PatientName:   patient.Name,
		DoctorName:    doctor.Name,
	}
	subject := diagnosis
	if subject == "" {
		subject = "your recent consultation"
	}
	n, err := notification.New(p.PatientID, notification.TypePrescriptionIssued, notification.Vars{
		"doctor":    doctor.Name,
		"diagnosis": subject,
	})
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.rx.Create(ctx, p); err != nil {
			return err
		}
		return s.notes.Create(ctx, n)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("prescription_id", p.ID.String()).
		Str("patient_id", p.PatientID.String()).
		Msg("prescription issued")

	ev := websocket.NewEvent(string(n.Type), websocket.UserRoom(p.PatientID), map[string]any{
		"notification_id": n.ID,
		"prescription_id": p.ID,
		"title":           n.Title,
		"message":         n.Message,
	})
	if err := s.relay.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("prescription_id", p.ID.String()).Msg("relay publish failed")
	}
	return p, nil
}

// List returns the caller's prescriptions: issued ones for doctors, received
// ones for patients, everything for admins.
func (s *Service) List(ctx context.Context, actor auth.Actor, limit, offset int) ([]*Prescription, int, error) {
	switch actor.Role {
	case auth.RolePatient:
		return s.ListForPatient(ctx, actor, actor.ID, limit, offset)
	case auth.RoleDoctor:
		return s.ListForDoctor(ctx, actor, limit, offset)
	case auth.RoleAdmin:
		return s.rx.List(ctx, Filter{}, limit, offset)
	default:
		return nil, 0, apperr.Forbidden("role %s has no prescriptions", actor.Role)
	}
}

// ListForPatient is open to the patient themselves and to doctors.
func (s *Service) ListForPatient(ctx context.Context, actor auth.Actor, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	if actor.ID != patientID && !actor.Is(auth.RoleDoctor, auth.RoleAdmin) {
		return nil, 0, apperr.Forbidden("cannot view another patient's prescriptions")
	}
	return s.rx.List(ctx, Filter{PatientID: patientID}, limit, offset)
}

func (s *Service) ListForDoctor(ctx context.Context, actor auth.Actor, limit, offset int) ([]*Prescription, int, error) {
	if !actor.Is(auth.RoleDoctor) {
		return nil, 0, apperr.Forbidden("only doctors have issued prescriptions")
	}
	return s.rx.List(ctx, Filter{DoctorID: actor.ID}, limit, offset)
}

// Get hides prescriptions the caller is not party to behind NotFound.
func (s *Service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Prescription, error) {
	p, err := s.rx.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.ID != p.PatientID && actor.ID != p.DoctorID && !actor.Is(auth.RoleAdmin) {
		return nil, apperr.NotFound("prescription")
	}
	return p, nil
}
