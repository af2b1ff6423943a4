package projects

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

// CreateInput encapsulates project creation attributes.
type CreateInput struct {
	Title               string
	OrganizerName       string
	Location            string
	Description         string
	RequiredSkills      []string
	TimeCommitment      string
	StartDate           time.Time
	ApplicationDeadline time.Time
	MaxVolunteers       int
	ContactEmail        string
	Category            string
}

// UpdateInput carries the mutable project fields; nil pointers keep the
// stored value.
type UpdateInput struct {
	Title               *string
	OrganizerName       *string
	Location            *string
	Description         *string
	RequiredSkills      *[]string
	TimeCommitment      *string
	StartDate           *time.Time
	ApplicationDeadline *time.Time
	Status              *domain.ProjectStatus
	MaxVolunteers       *int
	ContactEmail        *string
	Category            *string
}

// ListPage bundles a project page with pagination metadata.
type ListPage struct {
	Projects []domain.Project
	Total    int
	Page     int
	Limit    int
	Pages    int
}

// Service orchestrates organizer-owned project management and the public
// filtered listings.
type Service struct {
	repo   repository.ProjectRepository
	logger *slog.Logger
}

// New returns a project service.
func New(repo repository.ProjectRepository, logger *slog.Logger) Service {
	return Service{repo: repo, logger: logger}
}

var validStatuses = map[domain.ProjectStatus]bool{
	domain.ProjectOpen:      true,
	domain.ProjectAssigned:  true,
	domain.ProjectCompleted: true,
	domain.ProjectCancelled: true,
}

// Create registers a new project owned by the caller.
func (s Service) Create(ctx context.Context, organizer *domain.User, input CreateInput) (*domain.Project, error) {
	if organizer.Role != domain.RoleOrganizer {
		return nil, domain.NewError(domain.CodeForbidden, "only organizers can create projects", nil)
	}
	if err := validateRequired(input); err != nil {
		return nil, err
	}
	maxVolunteers := input.MaxVolunteers
	if maxVolunteers < 1 {
		maxVolunteers = 1
	}
	organizerName := strings.TrimSpace(input.OrganizerName)
	if organizerName == "" {
		organizerName = organizer.Username
	}
	contactEmail := strings.TrimSpace(input.ContactEmail)
	if contactEmail == "" {
		contactEmail = organizer.Email
	}

	now := time.Now().UTC()
	project := &domain.Project{
		ID:                  uuid.NewString(),
		Title:               strings.TrimSpace(input.Title),
		OrganizerID:         organizer.ID,
		OrganizerName:       organizerName,
		Location:            strings.TrimSpace(input.Location),
		Description:         strings.TrimSpace(input.Description),
		RequiredSkills:      input.RequiredSkills,
		TimeCommitment:      strings.TrimSpace(input.TimeCommitment),
		StartDate:           input.StartDate,
		ApplicationDeadline: input.ApplicationDeadline,
		Status:              domain.ProjectOpen,
		MaxVolunteers:       maxVolunteers,
		ContactEmail:        contactEmail,
		Category:            strings.TrimSpace(input.Category),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.repo.CreateProject(ctx, project); err != nil {
		return nil, domain.NewError(domain.CodeInternal, "failed to create project", err)
	}
	s.logger.Info("project created", "project_id", project.ID, "organizer_id", organizer.ID)
	return project, nil
}

// Get returns a project by identifier.
func (s Service) Get(ctx context.Context, projectID string) (*domain.Project, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, domain.NewError(domain.CodeValidation, "project id is required", nil)
	}
	project, err := s.repo.GetProjectByID(ctx, projectID)
	if err != nil {
		return nil, notFoundOrInternal(err)
	}
	return project, nil
}

// List returns a filtered, paginated page of projects with the total count
// computed under the same filter.
func (s Service) List(ctx context.Context, filter repository.ProjectFilter) (*ListPage, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 10
	}
	projects, total, err := s.repo.ListProjects(ctx, filter)
	if err != nil {
		return nil, domain.NewError(domain.CodeInternal, "failed to list projects", err)
	}
	pages := total / filter.Limit
	if total%filter.Limit != 0 {
		pages++
	}
	return &ListPage{
		Projects: projects,
		Total:    total,
		Page:     filter.Page,
		Limit:    filter.Limit,
		Pages:    pages,
	}, nil
}

// Update rewrites mutable fields of a project the caller owns. The organizer
// is immutable after creation.
func (s Service) Update(ctx context.Context, callerID, projectID string, input UpdateInput) (*domain.Project, error) {
	project, err := s.repo.GetProjectByID(ctx, projectID)
	if err != nil {
		return nil, notFoundOrInternal(err)
	}
	if project.OrganizerID != callerID {
		return nil, domain.NewError(domain.CodeForbidden, "not authorized to update this project", nil)
	}

	applyString(&project.Title, input.Title)
	applyString(&project.OrganizerName, input.OrganizerName)
	applyString(&project.Location, input.Location)
	applyString(&project.Description, input.Description)
	applyString(&project.TimeCommitment, input.TimeCommitment)
	applyString(&project.ContactEmail, input.ContactEmail)
	applyString(&project.Category, input.Category)
	if input.RequiredSkills != nil {
		project.RequiredSkills = *input.RequiredSkills
	}
	if input.StartDate != nil {
		project.StartDate = *input.StartDate
	}
	if input.ApplicationDeadline != nil {
		project.ApplicationDeadline = *input.ApplicationDeadline
	}
	if input.Status != nil {
		if !validStatuses[*input.Status] {
			return nil, domain.NewError(domain.CodeValidation, "invalid project status", nil)
		}
		project.Status = *input.Status
	}
	if input.MaxVolunteers != nil {
		if *input.MaxVolunteers < 1 {
			return nil, domain.NewError(domain.CodeValidation, "max volunteers must be at least 1", nil)
		}
		if *input.MaxVolunteers < len(project.AssignedVolunteerIDs) {
			return nil, domain.NewError(domain.CodeConflict, "max volunteers cannot drop below the assigned count", nil)
		}
		project.MaxVolunteers = *input.MaxVolunteers
	}

	if err := s.repo.UpdateProject(ctx, project); err != nil {
		return nil, notFoundOrInternal(err)
	}
	s.logger.Info("project updated", "project_id", projectID, "organizer_id", callerID)
	return project, nil
}

// Delete removes a project the caller owns. Its applications and assignments
// are deleted with it.
func (s Service) Delete(ctx context.Context, callerID, projectID string) error {
	project, err := s.repo.GetProjectByID(ctx, projectID)
	if err != nil {
		return notFoundOrInternal(err)
	}
	if project.OrganizerID != callerID {
		return domain.NewError(domain.CodeForbidden, "not authorized to delete this project", nil)
	}
	if err := s.repo.DeleteProject(ctx, projectID); err != nil {
		return notFoundOrInternal(err)
	}
	s.logger.Info("project deleted", "project_id", projectID, "organizer_id", callerID)
	return nil
}

func validateRequired(input CreateInput) error {
	missing := map[string]bool{}
	if strings.TrimSpace(input.Title) == "" {
		missing["title"] = true
	}
	if strings.TrimSpace(input.Location) == "" {
		missing["location"] = true
	}
	if strings.TrimSpace(input.Description) == "" {
		missing["description"] = true
	}
	if strings.TrimSpace(input.TimeCommitment) == "" {
		missing["time_commitment"] = true
	}
	if input.StartDate.IsZero() {
		missing["start_date"] = true
	}
	if input.ApplicationDeadline.IsZero() {
		missing["application_deadline"] = true
	}
	if len(missing) > 0 {
		return domain.NewError(domain.CodeValidation, "please provide all required fields", nil)
	}
	return nil
}

func applyString(target *string, value *string) {
	if value != nil {
		*target = strings.TrimSpace(*value)
	}
}

func notFoundOrInternal(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return domain.NewError(domain.CodeNotFound, "project not found", err)
	}
	return domain.NewError(domain.CodeInternal, "project storage failure", err)
}
