package postgres

import (
	"context"
	"fmt"

	"github.com/volunhub/api/internal/domain"
	"github.com/volunhub/api/internal/repository"
)

// ProjectStatusCounts tallies an organizer's projects by status.
func (r *Repository) ProjectStatusCounts(ctx context.Context, organizerID string) (map[domain.ProjectStatus]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM projects WHERE organizer_id = $1 GROUP BY status`, organizerID)
	if err != nil {
		return nil, fmt.Errorf("project status counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.ProjectStatus]int)
	for rows.Next() {
		var status domain.ProjectStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// CountApplicationsForOrganizer counts applications across all of an
// organizer's projects.
func (r *Repository) CountApplicationsForOrganizer(ctx context.Context, organizerID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM applications a
			JOIN projects p ON p.id = a.project_id
			WHERE p.organizer_id = $1`, organizerID,
	).Scan(&count)
	return count, err
}

// CountDistinctVolunteersForOrganizer counts unique volunteers who applied to
// any of the organizer's projects.
func (r *Repository) CountDistinctVolunteersForOrganizer(ctx context.Context, organizerID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT a.volunteer_id) FROM applications a
			JOIN projects p ON p.id = a.project_id
			WHERE p.organizer_id = $1`, organizerID,
	).Scan(&count)
	return count, err
}

// RecentApplicationsForOrganizer lists the newest applications to the
// organizer's projects.
func (r *Repository) RecentApplicationsForOrganizer(ctx context.Context, organizerID string, limit int) ([]repository.ProjectApplication, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `SELECT ` + applicationColumns + `, p.title, u.username, u.email
		FROM applications a
		JOIN projects p ON p.id = a.project_id
		JOIN users u ON u.id = a.volunteer_id
		WHERE p.organizer_id = $1
		ORDER BY a.date_applied DESC
		LIMIT $2`
	rows, err := r.pool.Query(ctx, query, organizerID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent applications: %w", err)
	}
	defer rows.Close()

	items := make([]repository.ProjectApplication, 0, limit)
	for rows.Next() {
		var item repository.ProjectApplication
		if err := rows.Scan(
			&item.ID, &item.VolunteerID, &item.ProjectID, &item.Status, &item.DateApplied,
			&item.WithdrawnAt, &item.Notes, &item.Skills, &item.Availability,
			&item.OrganizerFeedback, &item.UpdatedAt,
			&item.ProjectTitle, &item.VolunteerName, &item.VolunteerEmail,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// RecentVolunteersForOrganizer lists the most recently active volunteers with
// the skills they offered across their applications.
func (r *Repository) RecentVolunteersForOrganizer(ctx context.Context, organizerID string, limit int) ([]repository.VolunteerProfile, error) {
	if limit <= 0 {
		limit = 5
	}
	const query = `SELECT u.id, u.username, u.email,
			COALESCE(array_agg(DISTINCT s) FILTER (WHERE s IS NOT NULL), '{}')
		FROM applications a
		JOIN projects p ON p.id = a.project_id
		JOIN users u ON u.id = a.volunteer_id
		LEFT JOIN LATERAL unnest(a.skills) AS s ON TRUE
		WHERE p.organizer_id = $1
		GROUP BY u.id, u.username, u.email
		ORDER BY MAX(a.date_applied) DESC
		LIMIT $2`
	rows, err := r.pool.Query(ctx, query, organizerID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent volunteers: %w", err)
	}
	defer rows.Close()

	profiles := make([]repository.VolunteerProfile, 0, limit)
	for rows.Next() {
		var profile repository.VolunteerProfile
		if err := rows.Scan(&profile.ID, &profile.Name, &profile.Email, &profile.Skills); err != nil {
			return nil, err
		}
		profiles = append(profiles, profile)
	}
	return profiles, rows.Err()
}

// ApplicationStatusCounts tallies a volunteer's applications by status.
func (r *Repository) ApplicationStatusCounts(ctx context.Context, volunteerID string) (map[domain.ApplicationStatus]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM applications WHERE volunteer_id = $1 GROUP BY status`, volunteerID)
	if err != nil {
		return nil, fmt.Errorf("application status counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.ApplicationStatus]int)
	for rows.Next() {
		var status domain.ApplicationStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// CountProjectsAssignedToVolunteer counts projects in the given status the
// volunteer is assigned to.
func (r *Repository) CountProjectsAssignedToVolunteer(ctx context.Context, volunteerID string, status domain.ProjectStatus) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM project_assignments pa
			JOIN projects p ON p.id = pa.project_id
			WHERE pa.volunteer_id = $1 AND p.status = $2`,
		volunteerID, status,
	).Scan(&count)
	return count, err
}
