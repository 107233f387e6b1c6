package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/telecare/telecare/pkg/caldate"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"

	// StatusScheduled is written by older clients and means confirmed.
	StatusScheduled Status = "scheduled"
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled, StatusNoShow},
}

// Normalize folds legacy statuses onto their current equivalent.
func (s Status) Normalize() Status {
	if s == StatusScheduled {
		return StatusConfirmed
	}
	return s
}

func (s Status) Valid() bool {
	switch s.Normalize() {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Terminal statuses accept no further transitions.
func (s Status) Terminal() bool {
	return len(transitions[s.Normalize()]) == 0
}

// HoldsSlot reports whether an appointment in this status occupies its
// doctor's (date, time) slot.
func (s Status) HoldsSlot() bool {
	return !s.Terminal()
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s.Normalize()] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Type string

const (
	TypeVideo    Type = "video"
	TypeChat     Type = "chat"
	TypeInPerson Type = "in_person"
)

func (t Type) Valid() bool {
	switch t {
	case TypeVideo, TypeChat, TypeInPerson:
		return true
	}
	return false
}

type Appointment struct {
	ID        uuid.UUID         `json:"id"`
	PatientID uuid.UUID         `json:"patient_id"`
	DoctorID  uuid.UUID         `json:"doctor_id"`
	Date      caldate.Date      `json:"appointment_date"`
	Time      caldate.TimeOfDay `json:"appointment_time"`
	Type      Type              `json:"appointment_type"`
	Symptoms  string            `json:"symptoms,omitempty"`
	Status    Status            `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`

	PatientName string `json:"patient_name,omitempty"`
	DoctorName  string `json:"doctor_name,omitempty"`
}

// BookInput carries the raw booking request. Dates and times are parsed by
// the service so that every entry point validates them the same way.
type BookInput struct {
	DoctorID uuid.UUID `json:"doctor_id"`
	Date     string    `json:"appointment_date"`
	Time     string    `json:"appointment_time"`
	Type     string    `json:"appointment_type"`
	Symptoms string    `json:"symptoms"`
}

// Filter narrows list queries. Zero fields match everything.
type Filter struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Status    Status
}

// DoctorStats is the doctor dashboard summary.
type DoctorStats struct {
	TodayAppointments    int `json:"today_appointments"`
	TotalPatients        int `json:"total_patients"`
	PrescriptionsWritten int `json:"prescriptions_written"`
	PendingRequests      int `json:"pending_requests"`
}
