package pharmacy

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/platform/apperr"
	"github.com/telecare/telecare/internal/platform/auth"
)

const maxNameLength = 200

type Service struct {
	medicines Repository
	logger    zerolog.Logger
}

func NewService(medicines Repository, logger zerolog.Logger) *Service {
	return &Service{
		medicines: medicines,
		logger:    logger.With().Str("component", "pharmacy").Logger(),
	}
}

func requirePharmacy(actor auth.Actor) error {
	if !actor.Is(auth.RolePharmacy) {
		return apperr.Forbidden("only pharmacies manage inventory")
	}
	return nil
}

func validQuantity(q int) error {
	if q <= 0 {
		return apperr.Validation("quantity must be positive")
	}
	return nil
}

func (s *Service) AddMedicine(ctx context.Context, actor auth.Actor, in MedicineInput) (*Medicine, error) {
	if err := requirePharmacy(actor); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("medicine name is required")
	}
	if len(name) > maxNameLength {
		return nil, apperr.Validation("medicine name exceeds %d characters", maxNameLength)
	}
	if err := validQuantity(in.Quantity); err != nil {
		return nil, err
	}
	m := &Medicine{PharmacyID: actor.ID, Name: name, Quantity: in.Quantity}
	if err := s.medicines.Create(ctx, m); err != nil {
		return nil, err
	}
	s.logger.Info().Str("medicine_id", m.ID.String()).Str("pharmacy_id", actor.ID.String()).Msg("medicine added")
	return m, nil
}

func (s *Service) ListOwn(ctx context.Context, actor auth.Actor) ([]*Medicine, error) {
	if err := requirePharmacy(actor); err != nil {
		return nil, err
	}
	return s.medicines.ListByPharmacy(ctx, actor.ID)
}

func (s *Service) UpdateQuantity(ctx context.Context, actor auth.Actor, id uuid.UUID, quantity int) (*Medicine, error) {
	if err := requirePharmacy(actor); err != nil {
		return nil, err
	}
	if err := validQuantity(quantity); err != nil {
		return nil, err
	}
	return s.medicines.UpdateQuantity(ctx, id, actor.ID, quantity)
}

func (s *Service) DeleteMedicine(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	if err := requirePharmacy(actor); err != nil {
		return err
	}
	if err := s.medicines.Delete(ctx, id, actor.ID); err != nil {
		return err
	}
	s.logger.Info().Str("medicine_id", id.String()).Str("pharmacy_id", actor.ID.String()).Msg("medicine deleted")
	return nil
}

// Network groups every pharmacy's stock for browsing. Pharmacies without
// matching medicines are omitted.
func (s *Service) Network(ctx context.Context, search string) ([]Stock, error) {
	rows, err := s.medicines.Network(ctx, strings.TrimSpace(search))
	if err != nil {
		return nil, err
	}
	out := []Stock{}
	for _, r := range rows {
		if n := len(out); n == 0 || out[n-1].PharmacyID != r.PharmacyID {
			out = append(out, Stock{
				PharmacyID: r.PharmacyID,
				Name:       r.PharmacyName,
				Email:      r.PharmacyEmail,
				Mobile:     r.PharmacyMobile,
			})
		}
		last := &out[len(out)-1]
		last.Medicines = append(last.Medicines, r.Medicine)
	}
	return out, nil
}
