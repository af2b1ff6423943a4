package domain

import "time"

// ApplicationEventType names a lifecycle transition for streaming.
type ApplicationEventType string

const (
	EventApplicationSubmitted ApplicationEventType = "application.submitted"
	EventApplicationWithdrawn ApplicationEventType = "application.withdrawn"
	EventApplicationAccepted  ApplicationEventType = "application.accepted"
	EventApplicationRejected  ApplicationEventType = "application.rejected"
)

// ApplicationEvent is broadcast to a project's organizer whenever an
// application changes state.
type ApplicationEvent struct {
	Type          ApplicationEventType `json:"type"`
	ApplicationID string               `json:"application_id"`
	ProjectID     string               `json:"project_id"`
	ProjectTitle  string               `json:"project_title,omitempty"`
	VolunteerID   string               `json:"volunteer_id"`
	OrganizerID   string               `json:"organizer_id"`
	Status        ApplicationStatus    `json:"status"`
	OccurredAt    time.Time            `json:"occurred_at"`
}
