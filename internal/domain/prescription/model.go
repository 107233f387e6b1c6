package prescription

import (
	"time"

	"github.com/google/uuid"
)

type Prescription struct {
	ID            uuid.UUID  `json:"id"`
	PatientID     uuid.UUID  `json:"patient_id"`
	DoctorID      uuid.UUID  `json:"doctor_id"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	Diagnosis     string     `json:"diagnosis"`
	Medicines     string     `json:"medicines"`
	Instructions  string     `json:"instructions"`
	CreatedAt     time.Time  `json:"created_at"`

	PatientName string `json:"patient_name,omitempty"`
	DoctorName  string `json:"doctor_name,omitempty"`
}

type WriteInput struct {
	PatientID     uuid.UUID  `json:"patient_id"`
	AppointmentID *uuid.UUID `json:"appointment_id"`
	Diagnosis     string     `json:"diagnosis"`
	Medicines     string     `json:"medicines"`
	Instructions  string     `json:"instructions"`
}

// Filter narrows List to one party. Zero fields are ignored.
type Filter struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
}
