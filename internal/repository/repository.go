package repository

import (
	"context"
	"time"

	"github.com/volunhub/api/internal/domain"
)

// UserRepository persists users.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByLogin(ctx context.Context, usernameOrEmail string) (*domain.User, error)
}

// ProjectFilter narrows project listings. Zero values mean "no constraint".
type ProjectFilter struct {
	Status      domain.ProjectStatus
	Location    string
	Category    string
	Skills      []string
	OrganizerID string
	StartFrom   *time.Time
	StartTo     *time.Time
	Search      string
	SortField   string
	SortDesc    bool
	Page        int
	Limit       int
}

// ProjectRepository persists projects.
type ProjectRepository interface {
	CreateProject(ctx context.Context, project *domain.Project) error
	GetProjectByID(ctx context.Context, projectID string) (*domain.Project, error)
	ListProjects(ctx context.Context, filter ProjectFilter) ([]domain.Project, int, error)
	ListProjectsByOrganizer(ctx context.Context, organizerID string) ([]domain.Project, error)
	UpdateProject(ctx context.Context, project *domain.Project) error
	DeleteProject(ctx context.Context, projectID string) error
}

// ProjectSummary is the slice of a project embedded in application listings.
type ProjectSummary struct {
	ID                  string
	Title               string
	Location            string
	OrganizerName       string
	Status              domain.ProjectStatus
	StartDate           time.Time
	ApplicationDeadline time.Time
}

// VolunteerApplication pairs an application with its project summary.
type VolunteerApplication struct {
	domain.Application
	Project ProjectSummary
}

// ProjectApplication pairs an application with its volunteer's identity.
type ProjectApplication struct {
	domain.Application
	ProjectTitle   string
	VolunteerName  string
	VolunteerEmail string
}

// AcceptOutcome reports everything an acceptance changed in one transaction.
type AcceptOutcome struct {
	Application     *domain.Application
	CascadeRejected []domain.Application
	CapacityReached bool
}

// ApplicationRepository persists applications. The mutating methods are
// conditional writes: each one runs in a transaction that locks the project
// row before checking capacity or state, so racing callers serialize at the
// store instead of overbooking.
type ApplicationRepository interface {
	// SubmitApplication inserts a pending application, or reactivates the
	// volunteer's withdrawn one. Returns the stored row and whether it was a
	// reactivation.
	SubmitApplication(ctx context.Context, app *domain.Application) (bool, error)
	GetApplicationByID(ctx context.Context, id string) (*domain.Application, error)
	FindByVolunteerAndProject(ctx context.Context, volunteerID, projectID string) (*domain.Application, error)
	ListByVolunteer(ctx context.Context, volunteerID string, page, limit int) ([]VolunteerApplication, int, error)
	ListByProject(ctx context.Context, projectID string, page, limit int) ([]ProjectApplication, int, error)
	// WithdrawApplication moves a pending application to withdrawn.
	WithdrawApplication(ctx context.Context, id string, at time.Time) (*domain.Application, error)
	// RejectApplication moves a pending application to rejected.
	RejectApplication(ctx context.Context, id, feedback string) (*domain.Application, error)
	// AcceptApplication accepts a pending application and records the
	// volunteer assignment. When the slot filled was the last one it marks
	// the project Assigned and cascade-rejects the remaining pending siblings.
	AcceptApplication(ctx context.Context, projectID, applicationID, feedback string) (*AcceptOutcome, error)
}

// VolunteerProfile aggregates a volunteer's identity with the skills they
// offered across applications.
type VolunteerProfile struct {
	ID     string
	Name   string
	Email  string
	Skills []string
}

// DashboardRepository serves read-side aggregations computed on demand.
type DashboardRepository interface {
	ProjectStatusCounts(ctx context.Context, organizerID string) (map[domain.ProjectStatus]int, error)
	CountApplicationsForOrganizer(ctx context.Context, organizerID string) (int, error)
	CountDistinctVolunteersForOrganizer(ctx context.Context, organizerID string) (int, error)
	RecentApplicationsForOrganizer(ctx context.Context, organizerID string, limit int) ([]ProjectApplication, error)
	RecentVolunteersForOrganizer(ctx context.Context, organizerID string, limit int) ([]VolunteerProfile, error)
	ApplicationStatusCounts(ctx context.Context, volunteerID string) (map[domain.ApplicationStatus]int, error)
	CountProjectsAssignedToVolunteer(ctx context.Context, volunteerID string, status domain.ProjectStatus) (int, error)
}
