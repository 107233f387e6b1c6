package pharmacy

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/platform/apperr"
	"github.com/telecare/telecare/internal/platform/auth"
)

type mockRepo struct {
	mu    sync.Mutex
	meds  map[uuid.UUID]*Medicine
	names map[uuid.UUID]string
}

func newMockRepo() *mockRepo {
	return &mockRepo{meds: make(map[uuid.UUID]*Medicine), names: make(map[uuid.UUID]string)}
}

func (m *mockRepo) Create(_ context.Context, med *Medicine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	med.ID = uuid.New()
	med.AddedDate = time.Now()
	cp := *med
	m.meds[med.ID] = &cp
	return nil
}

func (m *mockRepo) ListByPharmacy(_ context.Context, pharmacyID uuid.UUID) ([]*Medicine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Medicine
	for _, med := range m.meds {
		if med.PharmacyID == pharmacyID {
			cp := *med
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRepo) UpdateQuantity(_ context.Context, id, pharmacyID uuid.UUID, quantity int) (*Medicine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	med, ok := m.meds[id]
	if !ok || med.PharmacyID != pharmacyID {
		return nil, apperr.NotFound("medicine")
	}
	med.Quantity = quantity
	cp := *med
	return &cp, nil
}

func (m *mockRepo) Delete(_ context.Context, id, pharmacyID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	med, ok := m.meds[id]
	if !ok || med.PharmacyID != pharmacyID {
		return apperr.NotFound("medicine")
	}
	delete(m.meds, id)
	return nil
}

func (m *mockRepo) Network(_ context.Context, search string) ([]NetworkRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []NetworkRow
	for _, med := range m.meds {
		if search != "" && !strings.Contains(strings.ToLower(med.Name), strings.ToLower(search)) {
			continue
		}
		out = append(out, NetworkRow{Medicine: *med, PharmacyName: m.names[med.PharmacyID]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PharmacyName != out[j].PharmacyName {
			return out[i].PharmacyName < out[j].PharmacyName
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m *mockRepo) pharmacy(name string) auth.Actor {
	a := auth.Actor{ID: uuid.New(), Role: auth.RolePharmacy}
	m.names[a.ID] = name
	return a
}

func TestAddMedicine(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, zerolog.Nop())
	store := repo.pharmacy("City Pharmacy")

	m, err := svc.AddMedicine(context.Background(), store, MedicineInput{Name: " Amoxicillin ", Quantity: 40})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if m.Name != "Amoxicillin" || m.PharmacyID != store.ID {
		t.Errorf("unexpected medicine %+v", m)
	}

	cases := map[string]MedicineInput{
		"no name":       {Quantity: 1},
		"zero quantity": {Name: "x", Quantity: 0},
		"negative":      {Name: "x", Quantity: -3},
		"long name":     {Name: strings.Repeat("x", maxNameLength+1), Quantity: 1},
	}
	for name, in := range cases {
		if _, err := svc.AddMedicine(context.Background(), store, in); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestPharmacyOnly(t *testing.T) {
	svc := NewService(newMockRepo(), zerolog.Nop())
	patient := auth.Actor{ID: uuid.New(), Role: auth.RolePatient}
	ctx := context.Background()

	if _, err := svc.AddMedicine(ctx, patient, MedicineInput{Name: "x", Quantity: 1}); !errors.Is(err, apperr.ErrAuthorization) {
		t.Errorf("add: expected authorization error, got %v", err)
	}
	if _, err := svc.ListOwn(ctx, patient); !errors.Is(err, apperr.ErrAuthorization) {
		t.Errorf("list: expected authorization error, got %v", err)
	}
	if err := svc.DeleteMedicine(ctx, patient, uuid.New()); !errors.Is(err, apperr.ErrAuthorization) {
		t.Errorf("delete: expected authorization error, got %v", err)
	}
}

func TestOwnership(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, zerolog.Nop())
	ctx := context.Background()
	mine, theirs := repo.pharmacy("A"), repo.pharmacy("B")

	m, err := svc.AddMedicine(ctx, mine, MedicineInput{Name: "Ibuprofen", Quantity: 10})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	if _, err := svc.UpdateQuantity(ctx, theirs, m.ID, 5); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("foreign update: expected not found, got %v", err)
	}
	if err := svc.DeleteMedicine(ctx, theirs, m.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("foreign delete: expected not found, got %v", err)
	}
	if _, err := svc.UpdateQuantity(ctx, mine, m.ID, 0); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("zero quantity: expected validation error, got %v", err)
	}

	updated, err := svc.UpdateQuantity(ctx, mine, m.ID, 25)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Quantity != 25 {
		t.Errorf("expected 25, got %d", updated.Quantity)
	}
	if err := svc.DeleteMedicine(ctx, mine, m.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	own, _ := svc.ListOwn(ctx, mine)
	if len(own) != 0 {
		t.Errorf("expected empty inventory, got %d", len(own))
	}
}

func TestNetwork_GroupsByPharmacy(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, zerolog.Nop())
	ctx := context.Background()
	a, b := repo.pharmacy("Alpha"), repo.pharmacy("Beta")
	for _, in := range []struct {
		who  auth.Actor
		name string
	}{{a, "Paracetamol"}, {b, "Cetirizine"}, {a, "Aspirin"}, {b, "Paracetamol XR"}} {
		if _, err := svc.AddMedicine(ctx, in.who, MedicineInput{Name: in.name, Quantity: 1}); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	stock, err := svc.Network(ctx, "")
	if err != nil {
		t.Fatalf("network: %v", err)
	}
	if len(stock) != 2 || stock[0].Name != "Alpha" || len(stock[0].Medicines) != 2 || stock[0].Medicines[0].Name != "Aspirin" {
		t.Fatalf("unexpected grouping %+v", stock)
	}

	stock, _ = svc.Network(ctx, "paracetamol")
	if len(stock) != 2 || len(stock[0].Medicines) != 1 || len(stock[1].Medicines) != 1 {
		t.Errorf("unexpected filtered stock %+v", stock)
	}
	stock, _ = svc.Network(ctx, "nothing-like-this")
	if stock == nil || len(stock) != 0 {
		t.Errorf("expected empty non-nil result, got %v", stock)
	}
}
