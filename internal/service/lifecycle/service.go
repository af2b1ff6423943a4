package lifecycle

import (
	"context"
	"errors"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/volunhub/api/internal/domain"
	"github.com/volunhub/api/internal/repository"
)

// Publisher fans lifecycle events out to live subscribers.
type Publisher interface {
	Publish(event domain.ApplicationEvent)
}

// Decision is an organizer's verdict on a pending application.
type Decision string

const (
	DecisionAccept Decision = "accepted"
	DecisionReject Decision = "rejected"
)

// ApplyInput carries the optional metadata a volunteer attaches when applying.
type ApplyInput struct {
	Notes        string
	Skills       []string
	Availability string
}

// Service drives applications through their state machine and keeps project
// capacity honest. All capacity-sensitive writes go through the repository's
// conditional transactions; this layer owns ordering of checks and the error
// taxonomy.
type Service struct {
	applications repository.ApplicationRepository
	projects     repository.ProjectRepository
	publisher    Publisher
	logger       *slog.Logger
	now          func() time.Time
}

// New constructs a lifecycle service.
func New(applications repository.ApplicationRepository, projects repository.ProjectRepository, publisher Publisher, logger *slog.Logger) Service {
	return Service{
		applications: applications,
		projects:     projects,
		publisher:    publisher,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Apply submits a volunteer's application to an open project. A previously
// withdrawn application for the same project is reactivated with a fresh
// applied date instead of creating a second row.
func (s Service) Apply(ctx context.Context, volunteerID string, role domain.Role, projectID string, input ApplyInput) (*domain.Application, bool, error) {
	if role != domain.RoleVolunteer {
		return nil, false, domain.NewError(domain.CodeForbidden, "only volunteers can apply for projects", nil)
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, false, domain.NewError(domain.CodeValidation, "project id is required", nil)
	}

	project, err := s.projects.GetProjectByID(ctx, projectID)
	if err != nil {
		return nil, false, storeError(err, "project not found")
	}
	now := s.now()
	if !project.AcceptingApplications(now) {
		return nil, false, domain.NewError(domain.CodeConflict, "this project is no longer accepting applications", nil)
	}

	app := &domain.Application{
		ID:           uuid.NewString(),
		VolunteerID:  volunteerID,
		ProjectID:    projectID,
		Status:       domain.ApplicationPending,
		DateApplied:  now,
		Notes:        strings.TrimSpace(input.Notes),
		Skills:       input.Skills,
		Availability: strings.TrimSpace(input.Availability),
	}
	reactivated, err := s.applications.SubmitApplication(ctx, app)
	if err != nil {
		return nil, false, storeError(err, "project not found")
	}

	s.logger.Info("application submitted",
		"application_id", app.ID, "project_id", projectID, "volunteer_id", volunteerID, "reactivated", reactivated)
	s.publish(domain.ApplicationEvent{
		Type:          domain.EventApplicationSubmitted,
		ApplicationID: app.ID,
		ProjectID:     projectID,
		ProjectTitle:  project.Title,
		VolunteerID:   volunteerID,
		OrganizerID:   project.OrganizerID,
		Status:        app.Status,
		OccurredAt:    now,
	})
	return app, reactivated, nil
}

// Withdraw moves the caller's pending application to withdrawn.
func (s Service) Withdraw(ctx context.Context, volunteerID, applicationID string) (*domain.Application, error) {
	app, err := s.applications.GetApplicationByID(ctx, applicationID)
	if err != nil {
		return nil, storeError(err, "application not found")
	}
	if app.VolunteerID != volunteerID {
		return nil, domain.NewError(domain.CodeForbidden, "you are not authorized to withdraw this application", nil)
	}
	if app.Status != domain.ApplicationPending {
		return nil, domain.NewError(domain.CodeConflict, "only pending applications can be withdrawn", nil)
	}

	updated, err := s.applications.WithdrawApplication(ctx, applicationID, s.now())
	if err != nil {
		return nil, storeError(err, "application not found")
	}

	s.logger.Info("application withdrawn", "application_id", applicationID, "volunteer_id", volunteerID)
	if project, err := s.projects.GetProjectByID(ctx, updated.ProjectID); err == nil {
		s.publish(domain.ApplicationEvent{
			Type:          domain.EventApplicationWithdrawn,
			ApplicationID: updated.ID,
			ProjectID:     updated.ProjectID,
			ProjectTitle:  project.Title,
			VolunteerID:   volunteerID,
			OrganizerID:   project.OrganizerID,
			Status:        updated.Status,
			OccurredAt:    s.now(),
		})
	}
	return updated, nil
}

// Decide records the organizer's verdict. Accepting the application that
// fills the last volunteer slot flips the project to Assigned and
// cascade-rejects every remaining pending sibling.
func (s Service) Decide(ctx context.Context, organizerID, applicationID string, decision Decision, feedback string) (*domain.Application, error) {
	if decision != DecisionAccept && decision != DecisionReject {
		return nil, domain.NewError(domain.CodeValidation, "status must be either accepted or rejected", nil)
	}

	app, err := s.applications.GetApplicationByID(ctx, applicationID)
	if err != nil {
		return nil, storeError(err, "application not found")
	}
	projectID := app.ProjectID

	project, err := s.projects.GetProjectByID(ctx, projectID)
	if err != nil {
		return nil, storeError(err, "project not found")
	}
	if project.OrganizerID != organizerID {
		return nil, domain.NewError(domain.CodeForbidden, "you are not authorized to manage applications for this project", nil)
	}

	if app.Status == domain.ApplicationWithdrawn {
		return nil, domain.NewError(domain.CodeConflict, "cannot decide a withdrawn application", nil)
	}
	if app.Status != domain.ApplicationPending {
		return nil, domain.NewError(domain.CodeConflict, "application has already been decided", nil)
	}

	if decision == DecisionReject {
		updated, err := s.applications.RejectApplication(ctx, applicationID, strings.TrimSpace(feedback))
		if err != nil {
			return nil, storeError(err, "application not found")
		}
		s.logger.Info("application rejected", "application_id", applicationID, "project_id", projectID)
		s.publishDecision(domain.EventApplicationRejected, *updated, project)
		return updated, nil
	}

	outcome, err := s.applications.AcceptApplication(ctx, projectID, applicationID, strings.TrimSpace(feedback))
	if err != nil {
		return nil, storeError(err, "application not found")
	}
	s.logger.Info("application accepted",
		"application_id", applicationID, "project_id", projectID,
		"capacity_reached", outcome.CapacityReached, "cascade_rejected", len(outcome.CascadeRejected))

	s.publishDecision(domain.EventApplicationAccepted, *outcome.Application, project)
	for _, rejected := range outcome.CascadeRejected {
		s.publishDecision(domain.EventApplicationRejected, rejected, project)
	}
	return outcome.Application, nil
}

func (s Service) publishDecision(eventType domain.ApplicationEventType, app domain.Application, project *domain.Project) {
	s.publish(domain.ApplicationEvent{
		Type:          eventType,
		ApplicationID: app.ID,
		ProjectID:     app.ProjectID,
		ProjectTitle:  project.Title,
		VolunteerID:   app.VolunteerID,
		OrganizerID:   project.OrganizerID,
		Status:        app.Status,
		OccurredAt:    s.now(),
	})
}

func (s Service) publish(event domain.ApplicationEvent) {
	if s.publisher != nil {
		s.publisher.Publish(event)
	}
}

// VolunteerPage is a paginated slice of a volunteer's applications.
type VolunteerPage struct {
	Items []repository.VolunteerApplication
	Total int
	Page  int
	Limit int
	Pages int
}

// ProjectPage is a paginated slice of a project's applications.
type ProjectPage struct {
	Items []repository.ProjectApplication
	Total int
	Page  int
	Limit int
	Pages int
}

// ListForVolunteer returns the caller's applications, newest applied first.
func (s Service) ListForVolunteer(ctx context.Context, volunteerID string, page, limit int) (*VolunteerPage, error) {
	page, limit = normalizePage(page, limit)
	items, total, err := s.applications.ListByVolunteer(ctx, volunteerID, page, limit)
	if err != nil {
		return nil, domain.NewError(domain.CodeInternal, "failed to list applications", err)
	}
	return &VolunteerPage{Items: items, Total: total, Page: page, Limit: limit, Pages: pageCount(total, limit)}, nil
}

// ListForProject returns a project's applications for its organizer.
func (s Service) ListForProject(ctx context.Context, callerID, projectID string, page, limit int) (*ProjectPage, error) {
	project, err := s.projects.GetProjectByID(ctx, projectID)
	if err != nil {
		return nil, storeError(err, "project not found")
	}
	if project.OrganizerID != callerID {
		return nil, domain.NewError(domain.CodeForbidden, "you are not authorized to view applications for this project", nil)
	}
	page, limit = normalizePage(page, limit)
	items, total, err := s.applications.ListByProject(ctx, projectID, page, limit)
	if err != nil {
		return nil, domain.NewError(domain.CodeInternal, "failed to list applications", err)
	}
	return &ProjectPage{Items: items, Total: total, Page: page, Limit: limit, Pages: pageCount(total, limit)}, nil
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}
	return page, limit
}

func pageCount(total, limit int) int {
	pages := total / limit
	if total%limit != 0 {
		pages++
	}
	return pages
}

// storeError translates repository sentinels into coded domain errors.
func storeError(err error, notFoundMsg string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return domain.NewError(domain.CodeNotFound, notFoundMsg, err)
	case errors.Is(err, repository.ErrDuplicateApplication):
		return domain.NewError(domain.CodeConflict, "you have already applied for this project", err)
	case errors.Is(err, repository.ErrProjectClosed):
		return domain.NewError(domain.CodeConflict, "this project is no longer accepting applications", err)
	case errors.Is(err, repository.ErrCapacityExhausted):
		return domain.NewError(domain.CodeConflict, "all volunteer slots for this project are filled", err)
	case errors.Is(err, repository.ErrInvalidTransition):
		return domain.NewError(domain.CodeConflict, "application is not pending", err)
	}
	return domain.NewError(domain.CodeInternal, "storage failure", err)
}
