package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/volunhub/api/internal/domain"
	"github.com/volunhub/api/internal/repository"
)

const applicationColumns = `a.id, a.volunteer_id, a.project_id, a.status, a.date_applied,
	a.withdrawn_at, a.notes, a.skills, a.availability, a.organizer_feedback, a.updated_at`

// SubmitApplication creates a pending application, or reactivates the
// volunteer's previously withdrawn one. The project row is locked for the
// duration of the transaction so the capacity check cannot race a concurrent
// submission or acceptance; the unique (volunteer_id, project_id) index backs
// the duplicate check at the store level.
func (r *Repository) SubmitApplication(ctx context.Context, app *domain.Application) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	var (
		status        domain.ProjectStatus
		deadline      time.Time
		maxVolunteers int
	)
	err = tx.QueryRow(ctx,
		`SELECT status, application_deadline, max_volunteers FROM projects WHERE id = $1 FOR UPDATE`,
		app.ProjectID,
	).Scan(&status, &deadline, &maxVolunteers)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, repository.ErrNotFound
		}
		return false, fmt.Errorf("lock project row: %w", err)
	}
	if status != domain.ProjectOpen || !app.DateApplied.Before(deadline) {
		return false, repository.ErrProjectClosed
	}

	var (
		existingID     string
		existingStatus domain.ApplicationStatus
	)
	err = tx.QueryRow(ctx,
		`SELECT id, status FROM applications WHERE volunteer_id = $1 AND project_id = $2 FOR UPDATE`,
		app.VolunteerID, app.ProjectID,
	).Scan(&existingID, &existingStatus)
	switch {
	case err == nil:
		if existingStatus != domain.ApplicationWithdrawn {
			return false, repository.ErrDuplicateApplication
		}
	case errors.Is(err, pgx.ErrNoRows):
		// first application for this pair
	default:
		return false, fmt.Errorf("check existing application: %w", err)
	}

	// Pending applications do not reserve slots; capacity is consumed only
	// by accepted assignments. Siblings still pending when the last slot
	// fills are cascade-rejected by AcceptApplication.
	var assigned int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM project_assignments WHERE project_id = $1`,
		app.ProjectID,
	).Scan(&assigned); err != nil {
		return false, fmt.Errorf("count assignments: %w", err)
	}
	if assigned >= maxVolunteers {
		return false, repository.ErrCapacityExhausted
	}

	reactivated := existingID != ""
	if reactivated {
		_, err = tx.Exec(ctx,
			`UPDATE applications SET status = 'pending', withdrawn_at = NULL, date_applied = $2,
				notes = $3, skills = $4, availability = $5, organizer_feedback = '', updated_at = $2
				WHERE id = $1`,
			existingID, app.DateApplied, app.Notes, app.Skills, app.Availability,
		)
		if err != nil {
			return false, fmt.Errorf("reactivate application: %w", err)
		}
		app.ID = existingID
	} else {
		_, err = tx.Exec(ctx,
			`INSERT INTO applications (id, volunteer_id, project_id, status, date_applied, notes,
				skills, availability, organizer_feedback, updated_at)
				VALUES ($1, $2, $3, 'pending', $4, $5, $6, $7, '', $4)`,
			app.ID, app.VolunteerID, app.ProjectID, app.DateApplied, app.Notes, app.Skills, app.Availability,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return false, repository.ErrDuplicateApplication
			}
			return false, fmt.Errorf("insert application: %w", err)
		}
	}
	app.Status = domain.ApplicationPending
	app.WithdrawnAt = nil
	app.OrganizerFeedback = ""
	app.UpdatedAt = app.DateApplied

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return reactivated, nil
}

// GetApplicationByID loads a single application.
func (r *Repository) GetApplicationByID(ctx context.Context, id string) (*domain.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications a WHERE a.id = $1`
	app, err := scanApplication(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return app, nil
}

// FindByVolunteerAndProject loads the application for a (volunteer, project)
// pair, withdrawn or not.
func (r *Repository) FindByVolunteerAndProject(ctx context.Context, volunteerID, projectID string) (*domain.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications a
		WHERE a.volunteer_id = $1 AND a.project_id = $2`
	app, err := scanApplication(r.pool.QueryRow(ctx, query, volunteerID, projectID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return app, nil
}

// ListByVolunteer returns a volunteer's applications with project summaries,
// newest applied first, plus the unpaginated total.
func (r *Repository) ListByVolunteer(ctx context.Context, volunteerID string, page, limit int) ([]repository.VolunteerApplication, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM applications WHERE volunteer_id = $1`, volunteerID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count volunteer applications: %w", err)
	}

	page, limit = normalizePage(page, limit)
	query := `SELECT ` + applicationColumns + `,
		p.id, p.title, p.location, p.organizer_name, p.status, p.start_date, p.application_deadline
		FROM applications a
		JOIN projects p ON p.id = a.project_id
		WHERE a.volunteer_id = $1
		ORDER BY a.date_applied DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, volunteerID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list volunteer applications: %w", err)
	}
	defer rows.Close()

	items := make([]repository.VolunteerApplication, 0)
	for rows.Next() {
		var item repository.VolunteerApplication
		if err := rows.Scan(
			&item.ID, &item.VolunteerID, &item.ProjectID, &item.Status, &item.DateApplied,
			&item.WithdrawnAt, &item.Notes, &item.Skills, &item.Availability,
			&item.OrganizerFeedback, &item.UpdatedAt,
			&item.Project.ID, &item.Project.Title, &item.Project.Location,
			&item.Project.OrganizerName, &item.Project.Status,
			&item.Project.StartDate, &item.Project.ApplicationDeadline,
		); err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	return items, total, rows.Err()
}

// ListByProject returns a project's applications with volunteer identities,
// newest applied first, plus the unpaginated total.
func (r *Repository) ListByProject(ctx context.Context, projectID string, page, limit int) ([]repository.ProjectApplication, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM applications WHERE project_id = $1`, projectID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count project applications: %w", err)
	}

	page, limit = normalizePage(page, limit)
	query := `SELECT ` + applicationColumns + `, p.title, u.username, u.email
		FROM applications a
		JOIN projects p ON p.id = a.project_id
		JOIN users u ON u.id = a.volunteer_id
		WHERE a.project_id = $1
		ORDER BY a.date_applied DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, projectID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list project applications: %w", err)
	}
	defer rows.Close()

	items := make([]repository.ProjectApplication, 0)
	for rows.Next() {
		var item repository.ProjectApplication
		if err := rows.Scan(
			&item.ID, &item.VolunteerID, &item.ProjectID, &item.Status, &item.DateApplied,
			&item.WithdrawnAt, &item.Notes, &item.Skills, &item.Availability,
			&item.OrganizerFeedback, &item.UpdatedAt,
			&item.ProjectTitle, &item.VolunteerName, &item.VolunteerEmail,
		); err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	return items, total, rows.Err()
}

// WithdrawApplication moves a pending application to withdrawn. The WHERE
// clause carries the state check so a raced terminal application never
// flips back.
func (r *Repository) WithdrawApplication(ctx context.Context, id string, at time.Time) (*domain.Application, error) {
	query := `UPDATE applications a SET status = 'withdrawn', withdrawn_at = $2, updated_at = $2
		WHERE a.id = $1 AND a.status = 'pending'
		RETURNING ` + applicationColumns
	app, err := scanApplication(r.pool.QueryRow(ctx, query, id, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.classifyMissedUpdate(ctx, id)
		}
		return nil, err
	}
	return app, nil
}

// RejectApplication moves a pending application to rejected, keeping any
// previously stored feedback when none is supplied.
func (r *Repository) RejectApplication(ctx context.Context, id, feedback string) (*domain.Application, error) {
	query := `UPDATE applications a SET status = 'rejected', updated_at = NOW(),
		organizer_feedback = CASE WHEN $2 = '' THEN a.organizer_feedback ELSE $2 END
		WHERE a.id = $1 AND a.status = 'pending'
		RETURNING ` + applicationColumns
	app, err := scanApplication(r.pool.QueryRow(ctx, query, id, feedback))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.classifyMissedUpdate(ctx, id)
		}
		return nil, err
	}
	return app, nil
}

// AcceptApplication accepts a pending application inside one transaction:
// lock the project row, re-check capacity against the assignment table,
// record the assignment, and when the last slot fills mark the project
// Assigned and cascade-reject the remaining pending siblings. Observers never
// see the assignment without the cascade.
func (r *Repository) AcceptApplication(ctx context.Context, projectID, applicationID, feedback string) (*repository.AcceptOutcome, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var maxVolunteers int
	err = tx.QueryRow(ctx,
		`SELECT max_volunteers FROM projects WHERE id = $1 FOR UPDATE`, projectID,
	).Scan(&maxVolunteers)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("lock project row: %w", err)
	}

	lockQuery := `SELECT ` + applicationColumns + ` FROM applications a
		WHERE a.id = $1 AND a.project_id = $2 FOR UPDATE`
	app, err := scanApplication(tx.QueryRow(ctx, lockQuery, applicationID, projectID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("lock application row: %w", err)
	}
	if app.Status != domain.ApplicationPending {
		return nil, repository.ErrInvalidTransition
	}

	var assigned int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM project_assignments WHERE project_id = $1`, projectID,
	).Scan(&assigned); err != nil {
		return nil, fmt.Errorf("count assignments: %w", err)
	}
	if assigned >= maxVolunteers {
		return nil, repository.ErrCapacityExhausted
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx,
		`UPDATE applications SET status = 'accepted', updated_at = $2,
			organizer_feedback = CASE WHEN $3 = '' THEN organizer_feedback ELSE $3 END
			WHERE id = $1`,
		applicationID, now, feedback,
	); err != nil {
		return nil, fmt.Errorf("accept application: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO project_assignments (project_id, volunteer_id, assigned_at)
			VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		projectID, app.VolunteerID, now,
	); err != nil {
		return nil, fmt.Errorf("record assignment: %w", err)
	}

	app.Status = domain.ApplicationAccepted
	app.UpdatedAt = now
	if feedback != "" {
		app.OrganizerFeedback = feedback
	}
	outcome := &repository.AcceptOutcome{Application: app}

	if assigned+1 >= maxVolunteers {
		outcome.CapacityReached = true
		if _, err := tx.Exec(ctx,
			`UPDATE projects SET status = 'Assigned', updated_at = $2 WHERE id = $1`,
			projectID, now,
		); err != nil {
			return nil, fmt.Errorf("mark project assigned: %w", err)
		}

		cascadeQuery := `UPDATE applications a SET status = 'rejected', organizer_feedback = $3, updated_at = $4
			WHERE a.project_id = $1 AND a.status = 'pending' AND a.id <> $2
			RETURNING ` + applicationColumns
		rows, err := tx.Query(ctx, cascadeQuery, projectID, applicationID, domain.CascadeFeedback, now)
		if err != nil {
			return nil, fmt.Errorf("cascade reject: %w", err)
		}
		for rows.Next() {
			rejected, err := scanApplication(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			outcome.CascadeRejected = append(outcome.CascadeRejected, *rejected)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return outcome, nil
}

// classifyMissedUpdate decides whether a zero-row conditional update means the
// application is gone or merely not pending.
func (r *Repository) classifyMissedUpdate(ctx context.Context, id string) error {
	var status domain.ApplicationStatus
	err := r.pool.QueryRow(ctx, `SELECT status FROM applications WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.ErrNotFound
		}
		return err
	}
	return repository.ErrInvalidTransition
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

func scanApplication(row pgx.Row) (*domain.Application, error) {
	var app domain.Application
	if err := row.Scan(
		&app.ID,
		&app.VolunteerID,
		&app.ProjectID,
		&app.Status,
		&app.DateApplied,
		&app.WithdrawnAt,
		&app.Notes,
		&app.Skills,
		&app.Availability,
		&app.OrganizerFeedback,
		&app.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &app, nil
}
