package projects

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/volunhub/api/internal/domain"
	"github.com/volunhub/api/internal/repository"
)

type stubRepo struct {
	projects   map[string]domain.Project
	listResult []domain.Project
	listTotal  int
	lastFilter repository.ProjectFilter
}

func newStubRepo() *stubRepo {
	return &stubRepo{projects: make(map[string]domain.Project)}
}

func (s *stubRepo) CreateProject(_ context.Context, p *domain.Project) error {
	s.projects[p.ID] = *p
	return nil
}

func (s *stubRepo) GetProjectByID(_ context.Context, id string) (*domain.Project, error) {
	p, ok := s.projects[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := p
	return &copied, nil
}

func (s *stubRepo) ListProjects(_ context.Context, filter repository.ProjectFilter) ([]domain.Project, int, error) {
	s.lastFilter = filter
	return s.listResult, s.listTotal, nil
}

func (s *stubRepo) ListProjectsByOrganizer(context.Context, string) ([]domain.Project, error) {
	return nil, nil
}

func (s *stubRepo) UpdateProject(_ context.Context, p *domain.Project) error {
	if _, ok := s.projects[p.ID]; !ok {
		return repository.ErrNotFound
	}
	s.projects[p.ID] = *p
	return nil
}

func (s *stubRepo) DeleteProject(_ context.Context, id string) error {
	if _, ok := s.projects[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.projects, id)
	return nil
}

func testService(repo repository.ProjectRepository) Service {
	return New(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func organizer() *domain.User {
	return &domain.User{
		ID:       uuid.NewString(),
		Username: "sara",
		Email:    "sara@example.org",
		Role:     domain.RoleOrganizer,
	}
}

func validCreateInput() CreateInput {
	return CreateInput{
		Title:               "Community Garden",
		Location:            "Lisbon",
		Description:         "Build raised beds",
		TimeCommitment:      "4h/week",
		StartDate:           time.Now().Add(30 * 24 * time.Hour),
		ApplicationDeadline: time.Now().Add(14 * 24 * time.Hour),
	}
}

func TestCreateDefaultsOrganizerFields(t *testing.T) {
	repo := newStubRepo()
	svc := testService(repo)
	owner := organizer()

	project, err := svc.Create(context.Background(), owner, validCreateInput())
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if project.OrganizerID != owner.ID {
		t.Fatalf("expected organizer id %s, got %s", owner.ID, project.OrganizerID)
	}
	if project.OrganizerName != "sara" {
		t.Fatalf("expected organizer name defaulted from user, got %q", project.OrganizerName)
	}
	if project.ContactEmail != "sara@example.org" {
		t.Fatalf("expected contact email defaulted from user, got %q", project.ContactEmail)
	}
	if project.Status != domain.ProjectOpen {
		t.Fatalf("expected new project to be Open, got %s", project.Status)
	}
	if project.MaxVolunteers != 1 {
		t.Fatalf("expected max volunteers to default to 1, got %d", project.MaxVolunteers)
	}
}

func TestCreateRejectsVolunteerRole(t *testing.T) {
	svc := testService(newStubRepo())
	volunteer := &domain.User{ID: uuid.NewString(), Role: domain.RoleVolunteer}

	_, err := svc.Create(context.Background(), volunteer, validCreateInput())
	if !domain.IsCode(err, domain.CodeForbidden) {
		t.Fatalf("expected forbidden error, got %v", err)
	}
}

func TestCreateValidatesRequiredFields(t *testing.T) {
	svc := testService(newStubRepo())
	input := validCreateInput()
	input.Title = "   "

	_, err := svc.Create(context.Background(), organizer(), input)
	if !domain.IsCode(err, domain.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGetUnknownProjectIsNotFound(t *testing.T) {
	svc := testService(newStubRepo())

	_, err := svc.Get(context.Background(), uuid.NewString())
	if !domain.IsCode(err, domain.CodeNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestListNormalizesPagination(t *testing.T) {
	repo := newStubRepo()
	repo.listTotal = 25
	svc := testService(repo)

	page, err := svc.List(context.Background(), repository.ProjectFilter{Page: -3, Limit: 0})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if repo.lastFilter.Page != 1 || repo.lastFilter.Limit != 10 {
		t.Fatalf("expected normalized page=1 limit=10, got page=%d limit=%d", repo.lastFilter.Page, repo.lastFilter.Limit)
	}
	if page.Pages != 3 {
		t.Fatalf("expected 3 pages for 25 rows, got %d", page.Pages)
	}
}

func TestUpdateRequiresOwnership(t *testing.T) {
	repo := newStubRepo()
	svc := testService(repo)
	owner := organizer()
	project, err := svc.Create(context.Background(), owner, validCreateInput())
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	title := "New Title"
	_, err = svc.Update(context.Background(), uuid.NewString(), project.ID, UpdateInput{Title: &title})
	if !domain.IsCode(err, domain.CodeForbidden) {
		t.Fatalf("expected forbidden error, got %v", err)
	}
}

func TestUpdateKeepsUnsetFields(t *testing.T) {
	repo := newStubRepo()
	svc := testService(repo)
	owner := organizer()
	project, err := svc.Create(context.Background(), owner, validCreateInput())
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	title := "  Community Garden II  "
	updated, err := svc.Update(context.Background(), owner.ID, project.ID, UpdateInput{Title: &title})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if updated.Title != "Community Garden II" {
		t.Fatalf("expected trimmed title, got %q", updated.Title)
	}
	if updated.Location != project.Location {
		t.Fatalf("expected location unchanged, got %q", updated.Location)
	}
	if updated.OrganizerID != owner.ID {
		t.Fatal("organizer must never change on update")
	}
}

func TestUpdateRejectsInvalidStatus(t *testing.T) {
	repo := newStubRepo()
	svc := testService(repo)
	owner := organizer()
	project, _ := svc.Create(context.Background(), owner, validCreateInput())

	bogus := domain.ProjectStatus("Archived")
	_, err := svc.Update(context.Background(), owner.ID, project.ID, UpdateInput{Status: &bogus})
	if !domain.IsCode(err, domain.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpdateRejectsCapacityBelowAssigned(t *testing.T) {
	repo := newStubRepo()
	svc := testService(repo)
	owner := organizer()
	project, _ := svc.Create(context.Background(), owner, validCreateInput())

	stored := repo.projects[project.ID]
	stored.AssignedVolunteerIDs = []string{uuid.NewString(), uuid.NewString()}
	repo.projects[project.ID] = stored

	one := 1
	_, err := svc.Update(context.Background(), owner.ID, project.ID, UpdateInput{MaxVolunteers: &one})
	if !domain.IsCode(err, domain.CodeConflict) {
		t.Fatalf("expected conflict shrinking below assigned count, got %v", err)
	}
}

func TestDeleteRequiresOwnership(t *testing.T) {
	repo := newStubRepo()
	svc := testService(repo)
	owner := organizer()
	project, _ := svc.Create(context.Background(), owner, validCreateInput())

	if err := svc.Delete(context.Background(), uuid.NewString(), project.ID); !domain.IsCode(err, domain.CodeForbidden) {
		t.Fatalf("expected forbidden error, got %v", err)
	}
	if err := svc.Delete(context.Background(), owner.ID, project.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, ok := repo.projects[project.ID]; ok {
		t.Fatal("expected project to be removed")
	}
}
