package notification

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies what a notification is about. The same names are used as
// relay event types.
type Type string

const (
	TypeAppointmentApproved  Type = "appointment_approved"
	TypeAppointmentDeclined  Type = "appointment_declined"
	TypeAppointmentCancelled Type = "appointment_cancelled"
	TypeAppointmentCompleted Type = "appointment_completed"
	TypeSOSAlert             Type = "sos_alert"
	TypeSOSResponded         Type = "sos_responded"
	TypePrescriptionIssued   Type = "prescription_issued"
)

// Notification is a durable message for one user. It outlives the relay event
// that announced it, so offline users catch up through the unread list.
type Notification struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      Type      `json:"type"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// New renders the template for t and addresses it to userID.
func New(userID uuid.UUID, t Type, vars Vars) (*Notification, error) {
	title, message, err := Render(t, vars)
	if err != nil {
		return nil, err
	}
	return &Notification{UserID: userID, Type: t, Title: title, Message: message}, nil
}
