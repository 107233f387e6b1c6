package records

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeLabReport        Type = "lab_report"
	TypeImaging          Type = "imaging"
	TypePrescription     Type = "prescription"
	TypeDischargeSummary Type = "discharge_summary"
	TypeOther            Type = "other"
)

func (t Type) Valid() bool {
	switch t {
	case TypeLabReport, TypeImaging, TypePrescription, TypeDischargeSummary, TypeOther:
		return true
	}
	return false
}

// Record references a document kept elsewhere; only its URL is stored.
type Record struct {
	ID          uuid.UUID `json:"id"`
	PatientID   uuid.UUID `json:"patient_id"`
	UploadedBy  uuid.UUID `json:"uploaded_by"`
	Title       string    `json:"title"`
	Type        Type      `json:"record_type"`
	Description string    `json:"description"`
	FileURL     *string   `json:"file_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`

	UploaderName string `json:"uploader_name,omitempty"`
}

type AddInput struct {
	// PatientID is required when a doctor adds a record; patients always add
	// to their own history.
	PatientID   uuid.UUID `json:"patient_id"`
	Title       string    `json:"title"`
	Type        string    `json:"record_type"`
	Description string    `json:"description"`
	FileURL     string    `json:"file_url"`
}
