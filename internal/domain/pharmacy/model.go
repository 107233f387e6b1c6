package pharmacy

import (
	"time"

	"github.com/google/uuid"
)

type Medicine struct {
	ID         uuid.UUID `json:"id"`
	PharmacyID uuid.UUID `json:"pharmacy_id"`
	Name       string    `json:"name"`
	Quantity   int       `json:"quantity"`
	AddedDate  time.Time `json:"added_date"`
}

// Stock is one pharmacy's inventory as seen on the network listing.
type Stock struct {
	PharmacyID uuid.UUID  `json:"pharmacy_id"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	Mobile     string     `json:"mobile"`
	Medicines  []Medicine `json:"medicines"`
}

// NetworkRow is a medicine joined with its pharmacy's contact details.
type NetworkRow struct {
	Medicine
	PharmacyName   string
	PharmacyEmail  string
	PharmacyMobile string
}

type MedicineInput struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type QuantityInput struct {
	Quantity int `json:"quantity"`
}
