package records

import (
	"context"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/domain/identity"
	"github.com/telecare/telecare/internal/platform/apperr"
	"github.com/telecare/telecare/internal/platform/auth"
)

type Users interface {
	GetByID(ctx context.Context, id uuid.UUID) (*identity.User, error)
}

type Service struct {
	records Repository
	users   Users
	logger  zerolog.Logger
}

func NewService(records Repository, users Users, logger zerolog.Logger) *Service {
	return &Service{
		records: records,
		users:   users,
		logger:  logger.With().Str("component", "records").Logger(),
	}
}

func (s *Service) Add(ctx context.Context, actor auth.Actor, in AddInput) (*Record, error) {
	var patientID uuid.UUID
	switch actor.Role {
	case auth.RolePatient:
		if in.PatientID != uuid.Nil && in.PatientID != actor.ID {
			return nil, apperr.Forbidden("patients can only add their own records")
		}
		patientID = actor.ID
	case auth.RoleDoctor:
		if in.PatientID == uuid.Nil {
			return nil, apperr.Validation("patient_id is required")
		}
		patient, err := s.users.GetByID(ctx, in.PatientID)
		if err != nil {
			return nil, err
		}
		if patient.Role != auth.RolePatient {
			return nil, apperr.NotFound("patient")
		}
		patientID = patient.ID
	default:
		return nil, apperr.Forbidden("role %s cannot add health records", actor.Role)
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperr.Validation("title is required")
	}
	typ := Type(strings.TrimSpace(in.Type))
	if typ == "" {
		typ = TypeOther
	}
	if !typ.Valid() {
		return nil, apperr.Validation("unknown record_type %q", in.Type)
	}
	rec := &Record{
		PatientID:   patientID,
		UploadedBy:  actor.ID,
		Title:       title,
		Type:        typ,
		Description: strings.TrimSpace(in.Description),
	}
	if raw := strings.TrimSpace(in.FileURL); raw != "" {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, apperr.Validation("file_url must be an http(s) URL")
		}
		rec.FileURL = &raw
	}

	if err := s.records.Create(ctx, rec); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("record_id", rec.ID.String()).
		Str("patient_id", rec.PatientID.String()).
		Str("record_type", string(rec.Type)).
		Msg("health record added")
	return rec, nil
}

// ListForPatient is open to the patient and to any doctor.
func (s *Service) ListForPatient(ctx context.Context, actor auth.Actor, patientID uuid.UUID, limit, offset int) ([]*Record, int, error) {
	if actor.ID != patientID && !actor.Is(auth.RoleDoctor, auth.RoleAdmin) {
		return nil, 0, apperr.Forbidden("cannot view another patient's records")
	}
	return s.records.ListByPatient(ctx, patientID, limit, offset)
}
