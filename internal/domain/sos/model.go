package sos

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusResponded Status = "responded"
	StatusResolved  Status = "resolved"
)

// Alert is a patient's emergency request. Location fields are whatever the
// patient's device could provide; all of them may be absent.
type Alert struct {
	ID                   uuid.UUID  `json:"id"`
	PatientID            uuid.UUID  `json:"patient_id"`
	PatientName          string     `json:"patient_name,omitempty"`
	Latitude             *float64   `json:"latitude,omitempty"`
	Longitude            *float64   `json:"longitude,omitempty"`
	LocationError        *string    `json:"location_error,omitempty"`
	UserAgent            *string    `json:"user_agent,omitempty"`
	PageURL              *string    `json:"page_url,omitempty"`
	Status               Status     `json:"status"`
	RespondingDoctorID   *uuid.UUID `json:"responding_doctor_id,omitempty"`
	RespondingDoctorName string     `json:"responding_doctor_name,omitempty"`
	RespondedAt          *time.Time `json:"responded_at,omitempty"`
	Notes                *string    `json:"notes,omitempty"`
	ResolvedAt           *time.Time `json:"resolved_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}

// HasCoordinates reports whether both GPS coordinates are present.
func (a *Alert) HasCoordinates() bool {
	return a.Latitude != nil && a.Longitude != nil
}

// LocationText renders the location for humans: GPS with a maps link, the
// device's location error, or a note that nothing is known.
func (a *Alert) LocationText() string {
	switch {
	case a.HasCoordinates():
		return fmt.Sprintf("GPS: %.6f, %.6f\nView on Maps: https://www.google.com/maps?q=%.6f,%.6f",
			*a.Latitude, *a.Longitude, *a.Latitude, *a.Longitude)
	case a.LocationError != nil && *a.LocationError != "":
		return "Location: " + *a.LocationError
	default:
		return "Location: Not available"
	}
}

// RaiseInput is the location payload sent with an alert.
type RaiseInput struct {
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	LocationError string   `json:"location_error"`
	UserAgent     string   `json:"user_agent"`
	PageURL       string   `json:"page_url"`
}

// RaiseResult is returned to the patient after an alert fans out.
type RaiseResult struct {
	Alert           *Alert `json:"alert"`
	DoctorsNotified int    `json:"doctors_notified"`
}
