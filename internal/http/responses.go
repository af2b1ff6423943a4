package httpx

import (
	"time"

	"github.com/volunhub/api/internal/domain"
	"github.com/volunhub/api/internal/repository"
)

// Wire shapes for the JSON surface. Domain types stay tag-free; handlers
// convert through these before writing.

type userResponse struct {
	ID        string      `json:"id"`
	Username  string      `json:"username"`
	Email     string      `json:"email"`
	Role      domain.Role `json:"role"`
	CreatedAt time.Time   `json:"created_at"`
}

type projectResponse struct {
	ID                   string               `json:"id"`
	Title                string               `json:"title"`
	OrganizerID          string               `json:"organizer_id"`
	OrganizerName        string               `json:"organizer_name"`
	Location             string               `json:"location"`
	Description          string               `json:"description"`
	RequiredSkills       []string             `json:"required_skills"`
	TimeCommitment       string               `json:"time_commitment"`
	StartDate            time.Time            `json:"start_date"`
	ApplicationDeadline  time.Time            `json:"application_deadline"`
	Status               domain.ProjectStatus `json:"status"`
	MaxVolunteers        int                  `json:"max_volunteers"`
	AssignedVolunteerIDs []string             `json:"assigned_volunteers"`
	ContactEmail         string               `json:"contact_email"`
	Category             string               `json:"category"`
	CreatedAt            time.Time            `json:"created_at"`
	UpdatedAt            time.Time            `json:"updated_at"`
}

type applicationResponse struct {
	ID                string                   `json:"id"`
	VolunteerID       string                   `json:"volunteer_id"`
	ProjectID         string                   `json:"project_id"`
	Status            domain.ApplicationStatus `json:"status"`
	DateApplied       time.Time                `json:"date_applied"`
	WithdrawnAt       *time.Time               `json:"withdrawn_at,omitempty"`
	Notes             string                   `json:"notes,omitempty"`
	Skills            []string                 `json:"skills,omitempty"`
	Availability      string                   `json:"availability,omitempty"`
	OrganizerFeedback string                   `json:"organizer_feedback,omitempty"`
	UpdatedAt         time.Time                `json:"updated_at"`
}

type projectSummaryResponse struct {
	ID                  string               `json:"id"`
	Title               string               `json:"title"`
	Location            string               `json:"location"`
	OrganizerName       string               `json:"organizer_name"`
	Status              domain.ProjectStatus `json:"status"`
	StartDate           time.Time            `json:"start_date"`
	ApplicationDeadline time.Time            `json:"application_deadline"`
}

type volunteerApplicationResponse struct {
	applicationResponse
	Project projectSummaryResponse `json:"project"`
}

type projectApplicationResponse struct {
	applicationResponse
	ProjectTitle   string `json:"project_title"`
	VolunteerName  string `json:"volunteer_name"`
	VolunteerEmail string `json:"volunteer_email"`
}

type pageMeta struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

func toUserResponse(u *domain.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

func toProjectResponse(p *domain.Project) projectResponse {
	assigned := p.AssignedVolunteerIDs
	if assigned == nil {
		assigned = []string{}
	}
	skills := p.RequiredSkills
	if skills == nil {
		skills = []string{}
	}
	return projectResponse{
		ID:                   p.ID,
		Title:                p.Title,
		OrganizerID:          p.OrganizerID,
		OrganizerName:        p.OrganizerName,
		Location:             p.Location,
		Description:          p.Description,
		RequiredSkills:       skills,
		TimeCommitment:       p.TimeCommitment,
		StartDate:            p.StartDate,
		ApplicationDeadline:  p.ApplicationDeadline,
		Status:               p.Status,
		MaxVolunteers:        p.MaxVolunteers,
		AssignedVolunteerIDs: assigned,
		ContactEmail:         p.ContactEmail,
		Category:             p.Category,
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
	}
}

func toProjectResponses(projects []domain.Project) []projectResponse {
	out := make([]projectResponse, 0, len(projects))
	for i := range projects {
		out = append(out, toProjectResponse(&projects[i]))
	}
	return out
}

func toApplicationResponse(a *domain.Application) applicationResponse {
	return applicationResponse{
		ID:                a.ID,
		VolunteerID:       a.VolunteerID,
		ProjectID:         a.ProjectID,
		Status:            a.Status,
		DateApplied:       a.DateApplied,
		WithdrawnAt:       a.WithdrawnAt,
		Notes:             a.Notes,
		Skills:            a.Skills,
		Availability:      a.Availability,
		OrganizerFeedback: a.OrganizerFeedback,
		UpdatedAt:         a.UpdatedAt,
	}
}

func toProjectSummaryResponse(s repository.ProjectSummary) projectSummaryResponse {
	return projectSummaryResponse{
		ID:                  s.ID,
		Title:               s.Title,
		Location:            s.Location,
		OrganizerName:       s.OrganizerName,
		Status:              s.Status,
		StartDate:           s.StartDate,
		ApplicationDeadline: s.ApplicationDeadline,
	}
}

func toVolunteerApplicationResponses(items []repository.VolunteerApplication) []volunteerApplicationResponse {
	out := make([]volunteerApplicationResponse, 0, len(items))
	for i := range items {
		out = append(out, volunteerApplicationResponse{
			applicationResponse: toApplicationResponse(&items[i].Application),
			Project:             toProjectSummaryResponse(items[i].Project),
		})
	}
	return out
}

func toProjectApplicationResponses(items []repository.ProjectApplication) []projectApplicationResponse {
	out := make([]projectApplicationResponse, 0, len(items))
	for i := range items {
		out = append(out, projectApplicationResponse{
			applicationResponse: toApplicationResponse(&items[i].Application),
			ProjectTitle:        items[i].ProjectTitle,
			VolunteerName:       items[i].VolunteerName,
			VolunteerEmail:      items[i].VolunteerEmail,
		})
	}
	return out
}
