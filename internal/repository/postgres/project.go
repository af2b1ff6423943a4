package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/volunhub/api/internal/domain"
	"github.com/volunhub/api/internal/repository"
)

const projectColumns = `p.id, p.title, p.organizer_id, p.organizer_name, p.location, p.description,
	p.required_skills, p.time_commitment, p.start_date, p.application_deadline, p.status,
	p.max_volunteers, p.contact_email, p.category, p.created_at, p.updated_at,
	COALESCE((SELECT array_agg(pa.volunteer_id ORDER BY pa.assigned_at)
		FROM project_assignments pa WHERE pa.project_id = p.id), '{}')`

// sortableProjectFields whitelists user-supplied sort fields.
var sortableProjectFields = map[string]string{
	"created_at":           "p.created_at",
	"start_date":           "p.start_date",
	"application_deadline": "p.application_deadline",
	"title":                "p.title",
}

// CreateProject stores a new project posting.
func (r *Repository) CreateProject(ctx context.Context, project *domain.Project) error {
	const query = `INSERT INTO projects (id, title, organizer_id, organizer_name, location, description,
		required_skills, time_commitment, start_date, application_deadline, status, max_volunteers,
		contact_email, category, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
	_, err := r.pool.Exec(ctx, query,
		project.ID,
		project.Title,
		project.OrganizerID,
		project.OrganizerName,
		project.Location,
		project.Description,
		project.RequiredSkills,
		project.TimeCommitment,
		project.StartDate,
		project.ApplicationDeadline,
		project.Status,
		project.MaxVolunteers,
		project.ContactEmail,
		project.Category,
		project.CreatedAt,
		project.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return repository.ErrNotFound
		}
		return err
	}
	return nil
}

// GetProjectByID loads a project with its assigned-volunteer set.
func (r *Repository) GetProjectByID(ctx context.Context, projectID string) (*domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects p WHERE p.id = $1`
	project, err := scanProject(r.pool.QueryRow(ctx, query, projectID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return project, nil
}

// ListProjects returns a filtered page of projects plus the total count under
// the same filter.
func (r *Repository) ListProjects(ctx context.Context, filter repository.ProjectFilter) ([]domain.Project, int, error) {
	where, args := buildProjectFilter(filter)

	countQuery := `SELECT COUNT(*) FROM projects p` + where
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count projects: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}

	orderBy := "p.created_at DESC"
	if column, ok := sortableProjectFields[filter.SortField]; ok {
		direction := "ASC"
		if filter.SortDesc {
			direction = "DESC"
		}
		orderBy = column + " " + direction
	}

	args = append(args, limit, (page-1)*limit)
	query := fmt.Sprintf(`SELECT %s FROM projects p%s ORDER BY %s LIMIT $%d OFFSET $%d`,
		projectColumns, where, orderBy, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	projects := make([]domain.Project, 0)
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, 0, err
		}
		projects = append(projects, *project)
	}
	return projects, total, rows.Err()
}

// ListProjectsByOrganizer enumerates an organizer's projects, newest first.
func (r *Repository) ListProjectsByOrganizer(ctx context.Context, organizerID string) ([]domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects p WHERE p.organizer_id = $1 ORDER BY p.created_at DESC`
	rows, err := r.pool.Query(ctx, query, organizerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := make([]domain.Project, 0)
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *project)
	}
	return projects, rows.Err()
}

// UpdateProject rewrites mutable project fields. The organizer and creation
// time are never touched.
func (r *Repository) UpdateProject(ctx context.Context, project *domain.Project) error {
	const query = `UPDATE projects SET title = $2, organizer_name = $3, location = $4, description = $5,
		required_skills = $6, time_commitment = $7, start_date = $8, application_deadline = $9,
		status = $10, max_volunteers = $11, contact_email = $12, category = $13, updated_at = NOW()
		WHERE id = $1 RETURNING updated_at`
	row := r.pool.QueryRow(ctx, query,
		project.ID,
		project.Title,
		project.OrganizerName,
		project.Location,
		project.Description,
		project.RequiredSkills,
		project.TimeCommitment,
		project.StartDate,
		project.ApplicationDeadline,
		project.Status,
		project.MaxVolunteers,
		project.ContactEmail,
		project.Category,
	)
	var updatedAt time.Time
	if err := row.Scan(&updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.ErrNotFound
		}
		return err
	}
	project.UpdatedAt = updatedAt
	return nil
}

// DeleteProject removes a project. Applications and assignments go with it
// via ON DELETE CASCADE.
func (r *Repository) DeleteProject(ctx context.Context, projectID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, projectID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func buildProjectFilter(filter repository.ProjectFilter) (string, []any) {
	conditions := make([]string, 0, 8)
	args := make([]any, 0, 8)

	add := func(condition string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(condition, len(args)))
	}

	if filter.Status != "" {
		add("p.status = $%d", filter.Status)
	}
	if filter.Location != "" {
		add("p.location ILIKE '%%' || $%d || '%%'", filter.Location)
	}
	if filter.Category != "" {
		add("p.category ILIKE '%%' || $%d || '%%'", filter.Category)
	}
	if len(filter.Skills) > 0 {
		add("p.required_skills && $%d", filter.Skills)
	}
	if filter.OrganizerID != "" {
		add("p.organizer_id = $%d", filter.OrganizerID)
	}
	if filter.StartFrom != nil {
		add("p.start_date >= $%d", *filter.StartFrom)
	}
	if filter.StartTo != nil {
		add("p.start_date <= $%d", *filter.StartTo)
	}
	if filter.Search != "" {
		args = append(args, filter.Search)
		idx := len(args)
		conditions = append(conditions, fmt.Sprintf(
			"(p.title ILIKE '%%' || $%d || '%%' OR p.description ILIKE '%%' || $%d || '%%')", idx, idx))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func scanProject(row pgx.Row) (*domain.Project, error) {
	var project domain.Project
	if err := row.Scan(
		&project.ID,
		&project.Title,
		&project.OrganizerID,
		&project.OrganizerName,
		&project.Location,
		&project.Description,
		&project.RequiredSkills,
		&project.TimeCommitment,
		&project.StartDate,
		&project.ApplicationDeadline,
		&project.Status,
		&project.MaxVolunteers,
		&project.ContactEmail,
		&project.Category,
		&project.CreatedAt,
		&project.UpdatedAt,
		&project.AssignedVolunteerIDs,
	); err != nil {
		return nil, err
	}
	return &project, nil
}
