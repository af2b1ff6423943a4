package domain

import "time"

// ProjectStatus tracks where a project sits in its lifecycle.
type ProjectStatus string

const (
	ProjectOpen      ProjectStatus = "Open"
	ProjectAssigned  ProjectStatus = "Assigned"
	ProjectCompleted ProjectStatus = "Completed"
	ProjectCancelled ProjectStatus = "Cancelled"
)

// Project is an organizer-owned posting volunteers can apply to.
type Project struct {
	ID                   string
	Title                string
	OrganizerID          string
	OrganizerName        string
	Location             string
	Description          string
	RequiredSkills       []string
	TimeCommitment       string
	StartDate            time.Time
	ApplicationDeadline  time.Time
	Status               ProjectStatus
	MaxVolunteers        int
	AssignedVolunteerIDs []string
	ContactEmail         string
	Category             string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// AcceptingApplications reports whether new applications are admissible at the
// given instant.
func (p Project) AcceptingApplications(now time.Time) bool {
	return p.Status == ProjectOpen && now.Before(p.ApplicationDeadline)
}

// AtCapacity reports whether the assigned-volunteer set is full.
func (p Project) AtCapacity() bool {
	return len(p.AssignedVolunteerIDs) >= p.MaxVolunteers
}
