package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medqr/emergency-api/internal/middleware"
	"github.com/medqr/emergency-api/internal/model"
	"github.com/medqr/emergency-api/internal/repository"
	pkgauth "github.com/medqr/emergency-api/pkg/auth"
)

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*model.User
	gets  int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uuid.UUID]*model.User)}
}

func (r *fakeUserRepo) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) Get(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	user, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return user, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	return nil, repository.ErrNotFound
}

func (r *fakeUserRepo) UpdateVerification(_ context.Context, id uuid.UUID, verified bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.IsVerified = verified
	return nil
}

func (r *fakeUserRepo) ListStaff(_ context.Context, _ bool) ([]*model.User, error) {
	return nil, nil
}

func (r *fakeUserRepo) AdminExists(_ context.Context) (bool, error) {
	return false, nil
}

func (r *fakeUserRepo) getCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gets
}

func setup(t *testing.T) (*fakeUserRepo, pkgauth.JWTService, *gin.Engine, *middleware.AuthMiddleware) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := newFakeUserRepo()
	jwtSvc := pkgauth.NewJWTService("test-secret", time.Hour)
	authMW := middleware.NewAuthMiddleware(jwtSvc, repo)

	engine := gin.New()
	engine.GET("/whoami", authMW.Authenticate(), func(c *gin.Context) {
		actor := middleware.ActorFromContext(c)
		c.JSON(http.StatusOK, gin.H{"id": actor.ID.String(), "role": actor.Role})
	})
	engine.GET("/admin-only", authMW.Authenticate(), authMW.RequireRole(model.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	return repo, jwtSvc, engine, authMW
}

func addUser(repo *fakeUserRepo, role string) *model.User {
	user := &model.User{
		Base:  model.Base{ID: uuid.New()},
		Name:  "Test User",
		Email: "user@example.test",
		Role:  role,
	}
	repo.Create(context.Background(), user)
	return user
}

func doRequest(engine *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestAuthenticateResolvesActor(t *testing.T) {
	repo, jwtSvc, engine, _ := setup(t)
	user := addUser(repo, model.RolePatient)

	token, err := jwtSvc.GenerateToken(user.ID, user.Email, user.Role)
	require.NoError(t, err)

	w := doRequest(engine, "/whoami", token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), user.ID.String())
}

func TestAuthenticateRejections(t *testing.T) {
	repo, jwtSvc, engine, _ := setup(t)

	// No header.
	w := doRequest(engine, "/whoami", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Malformed header.
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Token abc")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Valid token for a deleted account.
	token, err := jwtSvc.GenerateToken(uuid.New(), "ghost@example.test", model.RolePatient)
	require.NoError(t, err)
	w = doRequest(engine, "/whoami", token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Token signed with another secret.
	otherToken, err := pkgauth.NewJWTService("other-secret", time.Hour).
		GenerateToken(addUser(repo, model.RolePatient).ID, "x@y.test", model.RolePatient)
	require.NoError(t, err)
	w = doRequest(engine, "/whoami", otherToken)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRole(t *testing.T) {
	repo, jwtSvc, engine, _ := setup(t)

	patient := addUser(repo, model.RolePatient)
	patientToken, err := jwtSvc.GenerateToken(patient.ID, patient.Email, patient.Role)
	require.NoError(t, err)

	w := doRequest(engine, "/admin-only", patientToken)
	assert.Equal(t, http.StatusForbidden, w.Code)

	admin := addUser(repo, model.RoleAdmin)
	adminToken, err := jwtSvc.GenerateToken(admin.ID, admin.Email, admin.Role)
	require.NoError(t, err)

	w = doRequest(engine, "/admin-only", adminToken)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestIdentityCacheAndInvalidation(t *testing.T) {
	repo, jwtSvc, engine, authMW := setup(t)
	user := addUser(repo, model.RolePatient)

	token, err := jwtSvc.GenerateToken(user.ID, user.Email, user.Role)
	require.NoError(t, err)

	doRequest(engine, "/whoami", token)
	doRequest(engine, "/whoami", token)
	assert.Equal(t, 1, repo.getCount(), "second request must hit the identity cache")

	authMW.InvalidateIdentity(user.ID)
	doRequest(engine, "/whoami", token)
	assert.Equal(t, 2, repo.getCount(), "invalidation must force a fresh load")
}
