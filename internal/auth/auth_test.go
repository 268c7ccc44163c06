package auth_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-pos/internal/auth"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	_ "github.com/odyssey-erp/odyssey-pos/testing"
)

type stubRepo struct {
	users map[string]*auth.User
}

func newStubRepo(t *testing.T, users ...auth.User) *stubRepo {
	t.Helper()
	repo := &stubRepo{users: map[string]*auth.User{}}
	for i := range users {
		u := users[i]
		hash, err := bcrypt.GenerateFromPassword([]byte(u.PasswordHash), bcrypt.MinCost)
		require.NoError(t, err)
		u.PasswordHash = string(hash)
		repo.users[u.Email] = &u
	}
	return repo
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	u, ok := s.users[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return u, nil
}

func (s *stubRepo) FindByID(ctx context.Context, id int64) (*auth.User, error) {
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (s *stubRepo) Upsert(ctx context.Context, user auth.User) (int64, error) {
	user.ID = int64(len(s.users) + 1)
	s.users[user.Email] = &user
	return user.ID, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseRole(t *testing.T) {
	role, err := auth.ParseRole(" Admin ")
	require.NoError(t, err)
	require.Equal(t, auth.RoleAdmin, role)

	_, err = auth.ParseRole("root")
	require.ErrorIs(t, err, auth.ErrInvalidRole)
}

func TestTokenRoundTrip(t *testing.T) {
	issuer := auth.NewTokenIssuer("secret", time.Hour)
	token, err := issuer.Issue(&auth.User{ID: 42, Role: auth.RoleUser})
	require.NoError(t, err)
	require.Equal(t, "Bearer", token.TokenType)

	principal, err := issuer.Parse(token.AccessToken)
	require.NoError(t, err)
	require.Equal(t, auth.Principal{UserID: 42, Role: auth.RoleUser}, principal)
}

func TestTokenRejectsForgeryAndExpiry(t *testing.T) {
	issuer := auth.NewTokenIssuer("secret", time.Hour)
	other := auth.NewTokenIssuer("other", time.Hour)
	token, err := other.Issue(&auth.User{ID: 1, Role: auth.RoleAdmin})
	require.NoError(t, err)
	_, err = issuer.Parse(token.AccessToken)
	require.ErrorIs(t, err, auth.ErrInvalidToken)

	expired := auth.NewTokenIssuer("secret", time.Nanosecond)
	token, err = expired.Issue(&auth.User{ID: 1, Role: auth.RoleAdmin})
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = issuer.Parse(token.AccessToken)
	require.ErrorIs(t, err, auth.ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "1", "role": "admin", "iss": "odyssey-pos", "exp": time.Now().Add(time.Hour).Unix()})
	raw, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = issuer.Parse(raw)
	require.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestDiscountPolicy(t *testing.T) {
	policy, err := auth.NewDiscountPolicy("20")
	require.NoError(t, err)

	cashier := auth.Principal{UserID: 2, Role: auth.RoleUser}
	admin := auth.Principal{UserID: 1, Role: auth.RoleAdmin}

	require.NoError(t, policy.Check(cashier, decimal.RequireFromString("20.00")))
	require.ErrorIs(t, policy.Check(cashier, decimal.RequireFromString("20.01")), auth.ErrDiscountNotAllowed)
	require.NoError(t, policy.Check(admin, decimal.RequireFromString("500")))

	open, err := auth.NewDiscountPolicy("")
	require.NoError(t, err)
	require.NoError(t, open.Check(cashier, decimal.RequireFromString("500")))

	_, err = auth.NewDiscountPolicy("-1")
	require.Error(t, err)
}

func TestAllowed(t *testing.T) {
	cashier := auth.Principal{UserID: 2, Role: auth.RoleUser}
	assert.True(t, auth.Allowed(cashier))
	assert.True(t, auth.Allowed(cashier, auth.RoleAdmin, auth.RoleUser))
	assert.False(t, auth.Allowed(cashier, auth.RoleAdmin))
	assert.False(t, auth.Allowed(auth.Principal{UserID: 3, Role: "ghost"}))
}

func newRouter(t *testing.T, repo auth.Repository) (http.Handler, *auth.TokenIssuer) {
	t.Helper()
	issuer := auth.NewTokenIssuer("secret", time.Hour)
	mw := auth.Middleware{Tokens: issuer, Logger: discardLogger()}
	handler := auth.NewHandler(discardLogger(), auth.NewService(repo, issuer), mw)
	r := chi.NewRouter()
	r.Route("/auth", handler.MountRoutes)
	r.With(mw.Authenticate, mw.RequireRole(auth.RoleAdmin)).Get("/admin", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r, issuer
}

func TestLoginAndMe(t *testing.T) {
	repo := newStubRepo(t, auth.User{ID: 1, Email: "cashier@example.com", PasswordHash: "supersecret", Role: auth.RoleUser, IsActive: true})
	router, _ := newRouter(t, repo)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"cashier@example.com","password":"supersecret"}`)))
	require.Equal(t, http.StatusOK, res.Code)

	var body struct {
		AccessToken string    `json:"access_token"`
		User        auth.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	require.NotEmpty(t, body.AccessToken)
	require.Equal(t, auth.RoleUser, body.User.Role)
	require.NotContains(t, res.Body.String(), "password_hash")

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+body.AccessToken)
	res = httptest.NewRecorder()
	router.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), "cashier@example.com")

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+body.AccessToken)
	res = httptest.NewRecorder()
	router.ServeHTTP(res, req)
	require.Equal(t, http.StatusForbidden, res.Code)
}

func TestLoginInvalidCredentials(t *testing.T) {
	repo := newStubRepo(t,
		auth.User{ID: 1, Email: "cashier@example.com", PasswordHash: "supersecret", Role: auth.RoleUser, IsActive: true},
		auth.User{ID: 2, Email: "gone@example.com", PasswordHash: "supersecret", Role: auth.RoleUser, IsActive: false},
	)
	router, _ := newRouter(t, repo)

	for _, payload := range []string{
		`{"email":"cashier@example.com","password":"wrongpass"}`,
		`{"email":"gone@example.com","password":"supersecret"}`,
		`{"email":"nobody@example.com","password":"supersecret"}`,
	} {
		res := httptest.NewRecorder()
		router.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(payload)))
		require.Equal(t, http.StatusUnauthorized, res.Code, payload)
		require.Contains(t, res.Body.String(), "invalid_credentials")
	}

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"bad","password":"x"}`)))
	require.Equal(t, http.StatusBadRequest, res.Code)
}

func TestAuthenticateRequiresBearer(t *testing.T) {
	router, issuer := newRouter(t, newStubRepo(t))

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/admin", nil))
	require.Equal(t, http.StatusUnauthorized, res.Code)

	token, err := issuer.Issue(&auth.User{ID: 9, Role: auth.RoleAdmin})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "bearer "+token.AccessToken)
	res = httptest.NewRecorder()
	router.ServeHTTP(res, req)
	require.Equal(t, http.StatusNoContent, res.Code)
}

func TestEnsureUserHashesPassword(t *testing.T) {
	repo := newStubRepo(t)
	svc := auth.NewService(repo, auth.NewTokenIssuer("secret", time.Hour))
	_, err := svc.EnsureUser(context.Background(), auth.EnsureUserInput{Email: "admin@example.com", Password: "short", Role: auth.RoleAdmin})
	require.Error(t, err)

	id, err := svc.EnsureUser(context.Background(), auth.EnsureUserInput{Email: "admin@example.com", Password: "longenough", Role: auth.RoleAdmin})
	require.NoError(t, err)
	require.NotZero(t, id)
	stored := repo.users["admin@example.com"]
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("longenough")))

	user, err := svc.Authenticate(context.Background(), "admin@example.com", "longenough")
	require.NoError(t, err)
	require.Equal(t, auth.RoleAdmin, user.Role)
}
