package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/volunhub/api/internal/domain"
	"github.com/volunhub/api/internal/repository"
	"github.com/volunhub/api/internal/service/auth"
	"github.com/volunhub/api/internal/service/dashboard"
	"github.com/volunhub/api/internal/service/lifecycle"
	"github.com/volunhub/api/internal/service/projects"
	"github.com/volunhub/api/pkg/config"
)

// memStore is a single in-memory implementation of every repository
// interface, mirroring how the postgres repository backs all services.
type memStore struct {
	mu           sync.Mutex
	users        map[string]domain.User
	projects     map[string]domain.Project
	applications map[string]domain.Application
	assignments  map[string][]string
}

func newMemStore() *memStore {
	return &memStore{
		users:        make(map[string]domain.User),
		projects:     make(map[string]domain.Project),
		applications: make(map[string]domain.Application),
		assignments:  make(map[string][]string),
	}
}

func (m *memStore) CreateUser(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == user.Username || u.Email == user.Email {
			return repository.ErrDuplicateUser
		}
	}
	m.users[user.ID] = *user
	return nil
}

func (m *memStore) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := u
	return &copied, nil
}

func (m *memStore) GetUserByLogin(_ context.Context, login string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == login || u.Email == login {
			copied := u
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memStore) CreateProject(_ context.Context, p *domain.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[p.ID] = *p
	return nil
}

func (m *memStore) GetProjectByID(_ context.Context, id string) (*domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := p
	return &copied, nil
}

func (m *memStore) ListProjects(_ context.Context, filter repository.ProjectFilter) ([]domain.Project, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Project
	for _, p := range m.projects {
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		out = append(out, p)
	}
	return out, len(out), nil
}

func (m *memStore) ListProjectsByOrganizer(_ context.Context, organizerID string) ([]domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Project
	for _, p := range m.projects {
		if p.OrganizerID == organizerID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) UpdateProject(_ context.Context, p *domain.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[p.ID]; !ok {
		return repository.ErrNotFound
	}
	m.projects[p.ID] = *p
	return nil
}

func (m *memStore) DeleteProject(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.projects, id)
	for appID, app := range m.applications {
		if app.ProjectID == id {
			delete(m.applications, appID)
		}
	}
	delete(m.assignments, id)
	return nil
}

func (m *memStore) SubmitApplication(_ context.Context, app *domain.Application) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	project, ok := m.projects[app.ProjectID]
	if !ok {
		return false, repository.ErrNotFound
	}
	for id, existing := range m.applications {
		if existing.VolunteerID != app.VolunteerID || existing.ProjectID != app.ProjectID {
			continue
		}
		if existing.Status != domain.ApplicationWithdrawn {
			return false, repository.ErrDuplicateApplication
		}
		existing.Status = domain.ApplicationPending
		existing.DateApplied = app.DateApplied
		existing.WithdrawnAt = nil
		existing.Notes = app.Notes
		m.applications[id] = existing
		*app = existing
		return true, nil
	}
	if len(m.assignments[app.ProjectID]) >= project.MaxVolunteers {
		return false, repository.ErrCapacityExhausted
	}
	m.applications[app.ID] = *app
	return false, nil
}

func (m *memStore) GetApplicationByID(_ context.Context, id string) (*domain.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	app, ok := m.applications[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := app
	return &copied, nil
}

func (m *memStore) FindByVolunteerAndProject(_ context.Context, volunteerID, projectID string) (*domain.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, app := range m.applications {
		if app.VolunteerID == volunteerID && app.ProjectID == projectID {
			copied := app
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memStore) ListByVolunteer(_ context.Context, volunteerID string, page, limit int) ([]repository.VolunteerApplication, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []repository.VolunteerApplication
	for _, app := range m.applications {
		if app.VolunteerID == volunteerID {
			out = append(out, repository.VolunteerApplication{Application: app})
		}
	}
	return out, len(out), nil
}

func (m *memStore) ListByProject(_ context.Context, projectID string, page, limit int) ([]repository.ProjectApplication, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []repository.ProjectApplication
	for _, app := range m.applications {
		if app.ProjectID == projectID {
			out = append(out, repository.ProjectApplication{Application: app})
		}
	}
	return out, len(out), nil
}

func (m *memStore) WithdrawApplication(_ context.Context, id string, at time.Time) (*domain.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	app, ok := m.applications[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if app.Status != domain.ApplicationPending {
		return nil, repository.ErrInvalidTransition
	}
	app.Status = domain.ApplicationWithdrawn
	app.WithdrawnAt = &at
	m.applications[id] = app
	copied := app
	return &copied, nil
}

func (m *memStore) RejectApplication(_ context.Context, id, feedback string) (*domain.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	app, ok := m.applications[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if app.Status != domain.ApplicationPending {
		return nil, repository.ErrInvalidTransition
	}
	app.Status = domain.ApplicationRejected
	app.OrganizerFeedback = feedback
	m.applications[id] = app
	copied := app
	return &copied, nil
}

func (m *memStore) AcceptApplication(_ context.Context, projectID, applicationID, feedback string) (*repository.AcceptOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	project, ok := m.projects[projectID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	app, ok := m.applications[applicationID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if app.Status != domain.ApplicationPending {
		return nil, repository.ErrInvalidTransition
	}
	if len(m.assignments[projectID]) >= project.MaxVolunteers {
		return nil, repository.ErrCapacityExhausted
	}
	app.Status = domain.ApplicationAccepted
	app.OrganizerFeedback = feedback
	m.applications[applicationID] = app
	m.assignments[projectID] = append(m.assignments[projectID], app.VolunteerID)

	outcome := &repository.AcceptOutcome{Application: &app}
	if len(m.assignments[projectID]) >= project.MaxVolunteers {
		outcome.CapacityReached = true
		project.Status = domain.ProjectAssigned
		project.AssignedVolunteerIDs = m.assignments[projectID]
		m.projects[projectID] = project
		for id, sibling := range m.applications {
			if sibling.ProjectID == projectID && sibling.Status == domain.ApplicationPending {
				sibling.Status = domain.ApplicationRejected
				sibling.OrganizerFeedback = domain.CascadeFeedback
				m.applications[id] = sibling
				outcome.CascadeRejected = append(outcome.CascadeRejected, sibling)
			}
		}
	}
	return outcome, nil
}

func (m *memStore) ProjectStatusCounts(context.Context, string) (map[domain.ProjectStatus]int, error) {
	return map[domain.ProjectStatus]int{}, nil
}

func (m *memStore) CountApplicationsForOrganizer(context.Context, string) (int, error) {
	return 0, nil
}

func (m *memStore) CountDistinctVolunteersForOrganizer(context.Context, string) (int, error) {
	return 0, nil
}

func (m *memStore) RecentApplicationsForOrganizer(context.Context, string, int) ([]repository.ProjectApplication, error) {
	return nil, nil
}

func (m *memStore) RecentVolunteersForOrganizer(context.Context, string, int) ([]repository.VolunteerProfile, error) {
	return nil, nil
}

func (m *memStore) ApplicationStatusCounts(context.Context, string) (map[domain.ApplicationStatus]int, error) {
	return map[domain.ApplicationStatus]int{}, nil
}

func (m *memStore) CountProjectsAssignedToVolunteer(context.Context, string, domain.ProjectStatus) (int, error) {
	return 0, nil
}

func newTestRouter(t *testing.T) (*Router, *memStore) {
	t.Helper()
	store := newMemStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.APIConfig{
		JWTSecret:       "router-test-secret",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 24 * time.Hour,
	}
	authSvc := auth.New(store, log, cfg)
	projectSvc := projects.New(store, log)
	lifecycleSvc := lifecycle.New(store, store, nil, log)
	dashboardSvc := dashboard.New(store, store, store, log)
	router := NewRouter(log, authSvc, projectSvc, lifecycleSvc, dashboardSvc, nil, NewMemoryRateLimiter(), nil)
	t.Cleanup(router.Close)
	return router, store
}

func doJSON(t *testing.T, router *Router, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response envelope: %v (body %s)", err, rec.Body.String())
	}
	return env
}

func signupToken(t *testing.T, router *Router, username, role string) string {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/auth/signup", "", map[string]string{
		"username": username,
		"email":    username + "@example.org",
		"password": "hunter22",
		"role":     role,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup failed with status %d: %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	data := env.Data.(map[string]any)
	tokens := data["tokens"].(map[string]any)
	return tokens["access_token"].(string)
}

func createProject(t *testing.T, router *Router, token string, maxVolunteers int) string {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/projects", token, map[string]any{
		"title":                "Beach Cleanup",
		"location":             "Porto",
		"description":          "Clear plastics from the shoreline",
		"time_commitment":      "2h/week",
		"start_date":           time.Now().Add(30 * 24 * time.Hour).Format(time.RFC3339),
		"application_deadline": time.Now().Add(14 * 24 * time.Hour).Format(time.RFC3339),
		"max_volunteers":       maxVolunteers,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create project failed with status %d: %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	return env.Data.(map[string]any)["id"].(string)
}

func TestProjectsListIsPublic(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/projects", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if env.Status != http.StatusOK {
		t.Fatalf("expected body status %d, got %d", http.StatusOK, env.Status)
	}
}

func TestParseProjectFilterSortForm(t *testing.T) {
	cases := []struct {
		name      string
		query     string
		wantField string
		wantDesc  bool
	}{
		{"field with direction", "sort=created_at:desc", "created_at", true},
		{"field only", "sort=start_date", "start_date", false},
		{"ascending explicit", "sort=title:asc", "title", false},
		{"absent", "", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/projects?"+tc.query, nil)
			filter, err := parseProjectFilter(req)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if filter.SortField != tc.wantField {
				t.Fatalf("expected sort field %q, got %q", tc.wantField, filter.SortField)
			}
			if filter.SortDesc != tc.wantDesc {
				t.Fatalf("expected desc=%v, got %v", tc.wantDesc, filter.SortDesc)
			}
		})
	}
}

func TestApplicationsRequireAuth(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/applications", "", map[string]string{"project_id": "p1"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Status != http.StatusUnauthorized {
		t.Fatalf("expected body status %d, got %d", http.StatusUnauthorized, env.Status)
	}
}

func TestCreateProjectRequiresOrganizerRole(t *testing.T) {
	router, _ := newTestRouter(t)
	token := signupToken(t, router, "vera", "volunteer")

	rec := doJSON(t, router, http.MethodPost, "/projects", token, map[string]any{
		"title":                "Beach Cleanup",
		"location":             "Porto",
		"description":          "desc",
		"time_commitment":      "2h/week",
		"start_date":           time.Now().Add(time.Hour).Format(time.RFC3339),
		"application_deadline": time.Now().Add(time.Hour).Format(time.RFC3339),
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestApplyWithdrawDecideFlow(t *testing.T) {
	router, store := newTestRouter(t)
	organizerToken := signupToken(t, router, "orga", "organizer")
	volunteerToken := signupToken(t, router, "vol1", "volunteer")
	rivalToken := signupToken(t, router, "vol2", "volunteer")
	projectID := createProject(t, router, organizerToken, 1)

	rec := doJSON(t, router, http.MethodPost, "/applications", volunteerToken, map[string]string{
		"project_id": projectID,
		"notes":      "pick me",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("apply failed with status %d: %s", rec.Code, rec.Body.String())
	}
	appID := decodeEnvelope(t, rec).Data.(map[string]any)["id"].(string)

	// Duplicate apply conflicts.
	rec = doJSON(t, router, http.MethodPost, "/applications", volunteerToken, map[string]string{"project_id": projectID})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate apply, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/applications", rivalToken, map[string]string{"project_id": projectID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("rival apply failed with status %d: %s", rec.Code, rec.Body.String())
	}
	rivalAppID := decodeEnvelope(t, rec).Data.(map[string]any)["id"].(string)

	// A volunteer cannot decide.
	rec = doJSON(t, router, http.MethodPut, "/applications/"+appID, rivalToken, map[string]string{"status": "accepted"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner decision, got %d", rec.Code)
	}

	// Accepting the winner fills the single slot and cascades.
	rec = doJSON(t, router, http.MethodPut, "/applications/"+appID, organizerToken, map[string]string{
		"status":   "accepted",
		"feedback": "welcome",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("accept failed with status %d: %s", rec.Code, rec.Body.String())
	}
	if store.applications[rivalAppID].Status != domain.ApplicationRejected {
		t.Fatalf("expected rival application cascade-rejected, got %s", store.applications[rivalAppID].Status)
	}
	if store.projects[projectID].Status != domain.ProjectAssigned {
		t.Fatalf("expected project Assigned, got %s", store.projects[projectID].Status)
	}

	// Accepted applications cannot be withdrawn.
	rec = doJSON(t, router, http.MethodPut, "/applications/"+appID+"/withdraw", volunteerToken, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 withdrawing accepted application, got %d", rec.Code)
	}
}

func TestWithdrawPendingApplication(t *testing.T) {
	router, store := newTestRouter(t)
	organizerToken := signupToken(t, router, "orgb", "organizer")
	volunteerToken := signupToken(t, router, "vol3", "volunteer")
	projectID := createProject(t, router, organizerToken, 2)

	rec := doJSON(t, router, http.MethodPost, "/applications", volunteerToken, map[string]string{"project_id": projectID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("apply failed with status %d: %s", rec.Code, rec.Body.String())
	}
	appID := decodeEnvelope(t, rec).Data.(map[string]any)["id"].(string)

	rec = doJSON(t, router, http.MethodPut, "/applications/"+appID+"/withdraw", volunteerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("withdraw failed with status %d: %s", rec.Code, rec.Body.String())
	}
	if store.applications[appID].Status != domain.ApplicationWithdrawn {
		t.Fatalf("expected withdrawn status, got %s", store.applications[appID].Status)
	}
}

func TestDeleteProjectRemovesApplications(t *testing.T) {
	router, store := newTestRouter(t)
	organizerToken := signupToken(t, router, "orgd", "organizer")
	volunteerToken := signupToken(t, router, "vol6", "volunteer")
	projectID := createProject(t, router, organizerToken, 1)

	rec := doJSON(t, router, http.MethodPost, "/applications", volunteerToken, map[string]string{"project_id": projectID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("apply failed with status %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodDelete, "/projects/"+projectID, volunteerToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner delete, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodDelete, "/projects/"+projectID, organizerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete failed with status %d: %s", rec.Code, rec.Body.String())
	}
	if len(store.applications) != 0 {
		t.Fatalf("expected applications removed with project, %d remain", len(store.applications))
	}
	if _, ok := store.projects[projectID]; ok {
		t.Fatal("expected project removed")
	}
}

func TestProjectApplicationsVisibleToOwnerOnly(t *testing.T) {
	router, _ := newTestRouter(t)
	organizerToken := signupToken(t, router, "orgc", "organizer")
	volunteerToken := signupToken(t, router, "vol4", "volunteer")
	projectID := createProject(t, router, organizerToken, 1)

	rec := doJSON(t, router, http.MethodPost, "/applications", volunteerToken, map[string]string{"project_id": projectID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("apply failed with status %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/applications/project/"+projectID, volunteerToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner listing, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/applications/project/"+projectID, organizerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("owner listing failed with status %d: %s", rec.Code, rec.Body.String())
	}
}

func TestDashboardEnforcesRole(t *testing.T) {
	router, _ := newTestRouter(t)
	volunteerToken := signupToken(t, router, "vol5", "volunteer")

	rec := doJSON(t, router, http.MethodGet, "/dashboard/organizer", volunteerToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	rec = doJSON(t, router, http.MethodGet, "/dashboard/volunteer", volunteerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHealthzReportsDatabase(t *testing.T) {
	store := newMemStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.APIConfig{JWTSecret: "s", AccessTokenTTL: time.Hour, RefreshTokenTTL: time.Hour}
	router := NewRouter(log, auth.New(store, log, cfg), projects.New(store, log),
		lifecycle.New(store, store, nil, log), dashboard.New(store, store, store, log), nil,
		NewMemoryRateLimiter(), func(context.Context) error { return nil })
	t.Cleanup(router.Close)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode healthz payload: %v", err)
	}
	if payload["status"] != "ok" {
		t.Fatalf("expected ok status, got %v", payload["status"])
	}
}
