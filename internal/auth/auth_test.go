package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-pcm/internal/shared"
)

type stubRepo struct {
	user *User
}

func (s *stubRepo) FindByEmail(_ context.Context, email string) (*User, error) {
	if s.user == nil || !strings.EqualFold(s.user.Email, email) {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func newIssuer(t *testing.T) *Issuer {
	t.Helper()
	issuer, err := NewIssuer("test-secret", time.Hour)
	require.NoError(t, err)
	return issuer
}

func TestIssuerRoundTrip(t *testing.T) {
	issuer := newIssuer(t)
	token, err := issuer.Issue(shared.Actor{ID: "u-1", Role: shared.RoleProjectManager})
	require.NoError(t, err)
	require.Equal(t, "Bearer", token.TokenType)

	actor, err := issuer.Verify(token.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "u-1", actor.ID)
	require.Equal(t, shared.RoleProjectManager, actor.Role)
}

func TestIssuerRejectsBadTokens(t *testing.T) {
	issuer := newIssuer(t)
	token, err := issuer.Issue(shared.Actor{ID: "u-1", Role: shared.RoleDeveloper})
	require.NoError(t, err)

	other, err := NewIssuer("other-secret", time.Hour)
	require.NoError(t, err)
	_, err = other.Verify(token.AccessToken)
	require.ErrorIs(t, err, ErrInvalidToken)

	issuer.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = issuer.Verify(token.AccessToken)
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	_, err = issuer.Verify("not.a.token")
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = issuer.Issue(shared.Actor{ID: "u-2", Role: "Intern"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = NewIssuer("", time.Hour)
	require.Error(t, err)
}

func TestLogin(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &stubRepo{user: &User{ID: "u-9", Email: "pm@example.com", PasswordHash: string(hash), Role: shared.RoleProjectManager, IsActive: true}}
	svc := NewService(repo, newIssuer(t))

	token, err := svc.Login(context.Background(), "PM@example.com", "correct-horse")
	require.NoError(t, err)
	require.NotEmpty(t, token.AccessToken)

	_, err = svc.Login(context.Background(), "pm@example.com", "wrong-horse")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	repo.user.IsActive = false
	_, err = svc.Login(context.Background(), "pm@example.com", "correct-horse")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestMiddlewareAttachesActor(t *testing.T) {
	issuer := newIssuer(t)
	r := chi.NewRouter()
	r.Use(Middleware(issuer, nil))
	NewHandler(nil, NewService(&stubRepo{}, issuer)).MountRoutes(r)

	token, err := issuer.Issue(shared.Actor{ID: "u-1", Role: shared.RoleAdmin})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "Admin", body["role"])

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/me", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Basic abc")
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLoginHandler(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &stubRepo{user: &User{ID: "u-9", Email: "dev@example.com", PasswordHash: string(hash), Role: shared.RoleDeveloper, IsActive: true}}
	r := chi.NewRouter()
	NewHandler(nil, NewService(repo, newIssuer(t))).MountRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"dev@example.com","password":"correct-horse"}`)))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Contains(t, rr.Body.String(), "access_token")

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"dev@example.com","password":"nope-nope"}`)))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"dev"}`)))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
