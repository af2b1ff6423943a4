package auth

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/volunhub/api/internal/domain"
	"github.com/volunhub/api/internal/repository"
	"github.com/volunhub/api/pkg/config"
)

type memUserRepo struct {
	users map[string]domain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]domain.User)}
}

func (m *memUserRepo) CreateUser(_ context.Context, user *domain.User) error {
	for _, u := range m.users {
		if u.Username == user.Username || u.Email == user.Email {
			return repository.ErrDuplicateUser
		}
	}
	m.users[user.ID] = *user
	return nil
}

func (m *memUserRepo) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := u
	return &copied, nil
}

func (m *memUserRepo) GetUserByLogin(_ context.Context, login string) (*domain.User, error) {
	for _, u := range m.users {
		if u.Username == login || u.Email == login {
			copied := u
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func testAuthService(repo repository.UserRepository) Service {
	cfg := config.APIConfig{
		JWTSecret:       "test-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	}
	return New(repo, slog.New(slog.NewTextHandler(io.Discard, nil)), cfg)
}

func TestSignupIssuesTokens(t *testing.T) {
	svc := testAuthService(newMemUserRepo())

	user, tokens, err := svc.Signup(context.Background(), "maya", "Maya@Example.org", "hunter22", domain.RoleVolunteer)
	if err != nil {
		t.Fatalf("Signup returned error: %v", err)
	}
	if user.Email != "maya@example.org" {
		t.Fatalf("expected lowercased email, got %q", user.Email)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatal("expected both tokens to be issued")
	}
	if tokens.ExpiresIn != int64((15 * time.Minute).Seconds()) {
		t.Fatalf("unexpected expires_in %d", tokens.ExpiresIn)
	}
	if len(user.PasswordHash) == 0 {
		t.Fatal("expected password hash to be stored")
	}
}

func TestSignupRejectsUnknownRole(t *testing.T) {
	svc := testAuthService(newMemUserRepo())

	_, _, err := svc.Signup(context.Background(), "maya", "maya@example.org", "hunter22", domain.Role("admin"))
	if !domain.IsCode(err, domain.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSignupRejectsDuplicate(t *testing.T) {
	repo := newMemUserRepo()
	svc := testAuthService(repo)

	if _, _, err := svc.Signup(context.Background(), "maya", "maya@example.org", "hunter22", domain.RoleVolunteer); err != nil {
		t.Fatalf("first Signup returned error: %v", err)
	}
	_, _, err := svc.Signup(context.Background(), "maya", "other@example.org", "hunter22", domain.RoleVolunteer)
	if !domain.IsCode(err, domain.CodeConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

func TestLoginAcceptsUsernameOrEmail(t *testing.T) {
	repo := newMemUserRepo()
	svc := testAuthService(repo)
	if _, _, err := svc.Signup(context.Background(), "maya", "maya@example.org", "hunter22", domain.RoleOrganizer); err != nil {
		t.Fatalf("Signup returned error: %v", err)
	}

	for _, login := range []string{"maya", "maya@example.org"} {
		user, tokens, err := svc.Login(context.Background(), login, "hunter22")
		if err != nil {
			t.Fatalf("Login(%q) returned error: %v", login, err)
		}
		if user.Username != "maya" || tokens.AccessToken == "" {
			t.Fatalf("Login(%q) returned unexpected result", login)
		}
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	repo := newMemUserRepo()
	svc := testAuthService(repo)
	if _, _, err := svc.Signup(context.Background(), "maya", "maya@example.org", "hunter22", domain.RoleVolunteer); err != nil {
		t.Fatalf("Signup returned error: %v", err)
	}

	_, _, err := svc.Login(context.Background(), "maya", "wrong")
	if !domain.IsCode(err, domain.CodeForbidden) {
		t.Fatalf("expected forbidden error, got %v", err)
	}
}

func TestAuthorizeRoundTrip(t *testing.T) {
	repo := newMemUserRepo()
	svc := testAuthService(repo)
	user, tokens, err := svc.Signup(context.Background(), "maya", "maya@example.org", "hunter22", domain.RoleVolunteer)
	if err != nil {
		t.Fatalf("Signup returned error: %v", err)
	}

	got, err := svc.Authorize(context.Background(), tokens.AccessToken)
	if err != nil {
		t.Fatalf("Authorize returned error: %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("expected user %s, got %s", user.ID, got.ID)
	}
}

func TestAuthorizeRejectsGarbageToken(t *testing.T) {
	svc := testAuthService(newMemUserRepo())

	_, err := svc.Authorize(context.Background(), "not-a-jwt")
	if !domain.IsCode(err, domain.CodeForbidden) {
		t.Fatalf("expected forbidden error, got %v", err)
	}
}
