package notification

import (
	"fmt"
	"strings"
)

// Vars are the {{key}} substitutions applied to a template.
type Vars map[string]string

type template struct {
	Title   string
	Message string
}

var templates = map[Type]template{
	TypeAppointmentApproved: {
		Title:   "Appointment Confirmed",
		Message: "Dear {{name}}, your appointment on {{date}} at {{time}} has been approved.",
	},
	TypeAppointmentDeclined: {
		Title:   "Appointment Declined",
		Message: "Dear {{name}}, we regret to inform you that your appointment request for {{date}} at {{time}} has been declined.",
	},
	TypeAppointmentCancelled: {
		Title:   "Appointment Cancelled",
		Message: "Dear {{name}}, the appointment on {{date}} at {{time}} has been cancelled by {{by}}.",
	},
	TypeAppointmentCompleted: {
		Title:   "Appointment Completed",
		Message: "Dear {{name}}, your appointment on {{date}} at {{time}} with Dr. {{doctor}} has been marked as completed.",
	},
	TypeSOSAlert: {
		Title: "EMERGENCY SOS ALERT - {{name}}",
		Message: "URGENT: Patient {{name}} has triggered an emergency SOS alert.\n\n" +
			"{{location}}\n\n" +
			"Time: {{at}}\n" +
			"Alert ID: #{{alert_id}}\n\n" +
			"Please respond immediately if available to assist.",
	},
	TypeSOSResponded: {
		Title:   "Help is Coming!",
		Message: "Dr. {{doctor}} has responded to your SOS alert and is coordinating assistance. Please stay calm and wait for help to arrive.",
	},
	TypePrescriptionIssued: {
		Title:   "New Prescription",
		Message: "Dr. {{doctor}} has issued a prescription for {{diagnosis}}. Open your prescriptions to see the details.",
	},
}

// Render performs {{key}} replacement on the template registered for t in a
// single pass, so values are never expanded themselves. Keys present in the
// template but absent from vars are left as-is.
func Render(t Type, vars Vars) (title, message string, err error) {
	tmpl, ok := templates[t]
	if !ok {
		return "", "", fmt.Errorf("no template for notification type %q", t)
	}

	pairs := make([]string, 0, 2*len(vars))
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	r := strings.NewReplacer(pairs...)
	return r.Replace(tmpl.Title), r.Replace(tmpl.Message), nil
}
