package dashboard

import (
	"context"

	"log/slog"

	"github.com/volunhub/api/internal/domain"
	"github.com/volunhub/api/internal/repository"
)

const (
	recentApplicationLimit = 10
	recentVolunteerLimit   = 5
)

// OrganizerDashboard aggregates an organizer's read-side view. Every number
// is computed on demand from the stores; nothing is kept in sync.
type OrganizerDashboard struct {
	ProjectStatusCounts OrganizerCounts                 `json:"project_status_counts"`
	Projects            []domain.Project                `json:"projects"`
	RecentApplications  []repository.ProjectApplication `json:"recent_applications"`
	RecentVolunteers    []repository.VolunteerProfile   `json:"recent_volunteers"`
}

// OrganizerCounts tallies projects and applications for the header cards.
type OrganizerCounts struct {
	TotalProjects     int `json:"total_projects"`
	OpenProjects      int `json:"open_projects"`
	AssignedProjects  int `json:"assigned_projects"`
	CompletedProjects int `json:"completed_projects"`
	CancelledProjects int `json:"cancelled_projects"`
	TotalApplications int `json:"total_applications"`
	TotalVolunteers   int `json:"total_volunteers"`
}

// VolunteerDashboard aggregates a volunteer's read-side view.
type VolunteerDashboard struct {
	ApplicationCounts VolunteerCounts                   `json:"application_status_counts"`
	Applications      []repository.VolunteerApplication `json:"applied_projects"`
	Total             int                               `json:"total"`
	Page              int                               `json:"page"`
	Limit             int                               `json:"limit"`
	Pages             int                               `json:"pages"`
}

// VolunteerCounts tallies a volunteer's applications and assigned projects.
type VolunteerCounts struct {
	Pending           int `json:"pending"`
	Approved          int `json:"approved"`
	Rejected          int `json:"rejected"`
	Withdrawn         int `json:"withdrawn"`
	TotalApplications int `json:"total_applied_projects"`
	OngoingProjects   int `json:"ongoing_projects"`
	CompletedProjects int `json:"completed_projects"`
}

// Service computes dashboards as pure aggregation queries.
type Service struct {
	dashboards   repository.DashboardRepository
	projects     repository.ProjectRepository
	applications repository.ApplicationRepository
	logger       *slog.Logger
}

// New constructs a dashboard service.
func New(dashboards repository.DashboardRepository, projects repository.ProjectRepository, applications repository.ApplicationRepository, logger *slog.Logger) Service {
	return Service{dashboards: dashboards, projects: projects, applications: applications, logger: logger}
}

// Organizer builds the organizer dashboard.
func (s Service) Organizer(ctx context.Context, organizerID string) (*OrganizerDashboard, error) {
	statusCounts, err := s.dashboards.ProjectStatusCounts(ctx, organizerID)
	if err != nil {
		return nil, internalErr(err)
	}
	totalApplications, err := s.dashboards.CountApplicationsForOrganizer(ctx, organizerID)
	if err != nil {
		return nil, internalErr(err)
	}
	totalVolunteers, err := s.dashboards.CountDistinctVolunteersForOrganizer(ctx, organizerID)
	if err != nil {
		return nil, internalErr(err)
	}
	projects, err := s.projects.ListProjectsByOrganizer(ctx, organizerID)
	if err != nil {
		return nil, internalErr(err)
	}
	recentApplications, err := s.dashboards.RecentApplicationsForOrganizer(ctx, organizerID, recentApplicationLimit)
	if err != nil {
		return nil, internalErr(err)
	}
	recentVolunteers, err := s.dashboards.RecentVolunteersForOrganizer(ctx, organizerID, recentVolunteerLimit)
	if err != nil {
		return nil, internalErr(err)
	}

	total := 0
	for _, count := range statusCounts {
		total += count
	}
	return &OrganizerDashboard{
		ProjectStatusCounts: OrganizerCounts{
			TotalProjects:     total,
			OpenProjects:      statusCounts[domain.ProjectOpen],
			AssignedProjects:  statusCounts[domain.ProjectAssigned],
			CompletedProjects: statusCounts[domain.ProjectCompleted],
			CancelledProjects: statusCounts[domain.ProjectCancelled],
			TotalApplications: totalApplications,
			TotalVolunteers:   totalVolunteers,
		},
		Projects:           projects,
		RecentApplications: recentApplications,
		RecentVolunteers:   recentVolunteers,
	}, nil
}

// Volunteer builds the volunteer dashboard with a paginated application list.
func (s Service) Volunteer(ctx context.Context, volunteerID string, page, limit int) (*VolunteerDashboard, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}
	statusCounts, err := s.dashboards.ApplicationStatusCounts(ctx, volunteerID)
	if err != nil {
		return nil, internalErr(err)
	}
	applications, total, err := s.applications.ListByVolunteer(ctx, volunteerID, page, limit)
	if err != nil {
		return nil, internalErr(err)
	}
	ongoing, err := s.dashboards.CountProjectsAssignedToVolunteer(ctx, volunteerID, domain.ProjectAssigned)
	if err != nil {
		return nil, internalErr(err)
	}
	completed, err := s.dashboards.CountProjectsAssignedToVolunteer(ctx, volunteerID, domain.ProjectCompleted)
	if err != nil {
		return nil, internalErr(err)
	}

	totalApplied := 0
	for _, count := range statusCounts {
		totalApplied += count
	}
	pages := total / limit
	if total%limit != 0 {
		pages++
	}
	return &VolunteerDashboard{
		ApplicationCounts: VolunteerCounts{
			Pending:           statusCounts[domain.ApplicationPending],
			Approved:          statusCounts[domain.ApplicationAccepted],
			Rejected:          statusCounts[domain.ApplicationRejected],
			Withdrawn:         statusCounts[domain.ApplicationWithdrawn],
			TotalApplications: totalApplied,
			OngoingProjects:   ongoing,
			CompletedProjects: completed,
		},
		Applications: applications,
		Total:        total,
		Page:         page,
		Limit:        limit,
		Pages:        pages,
	}, nil
}

func internalErr(err error) error {
	return domain.NewError(domain.CodeInternal, "dashboard aggregation failed", err)
}
