package domain

import "time"

// ApplicationStatus tracks an application's lifecycle state.
type ApplicationStatus string

const (
	ApplicationPending   ApplicationStatus = "pending"
	ApplicationAccepted  ApplicationStatus = "accepted"
	ApplicationRejected  ApplicationStatus = "rejected"
	ApplicationWithdrawn ApplicationStatus = "withdrawn"
)

// CascadeFeedback is recorded on sibling applications rejected automatically
// when a project reaches capacity.
const CascadeFeedback = "Another volunteer has been selected for this project."

// Application links a volunteer to a project. At most one row exists per
// (volunteer, project) pair; a withdrawn row is reactivated on re-apply
// instead of inserting a second one.
type Application struct {
	ID                string
	VolunteerID       string
	ProjectID         string
	Status            ApplicationStatus
	DateApplied       time.Time
	WithdrawnAt       *time.Time
	Notes             string
	Skills            []string
	Availability      string
	OrganizerFeedback string
	UpdatedAt         time.Time
}

// Active reports whether the application counts against project capacity.
func (a Application) Active() bool {
	return a.Status == ApplicationPending || a.Status == ApplicationAccepted
}

// Terminal reports whether no further transitions are permitted.
func (a Application) Terminal() bool {
	return a.Status == ApplicationAccepted || a.Status == ApplicationRejected || a.Status == ApplicationWithdrawn
}
