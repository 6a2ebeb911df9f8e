package staffaccess_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medqr/emergency-api/internal/email"
	"github.com/medqr/emergency-api/internal/model"
	"github.com/medqr/emergency-api/internal/repository"
	"github.com/medqr/emergency-api/internal/service/staffaccess"
	"github.com/medqr/emergency-api/pkg/cache"
	apperrors "github.com/medqr/emergency-api/pkg/errors"
	"github.com/medqr/emergency-api/pkg/logger"
	"github.com/medqr/emergency-api/pkg/metrics"
)

var testMetrics = metrics.NewMetrics("staffaccess_test")

func testLogger() *logger.Logger {
	return logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
}

type fakeGrantRepo struct {
	mu     sync.Mutex
	grants map[uuid.UUID]*model.StaffAccess

	createErr error
	// missOnce makes the next GetByStaffID report not-found even if a
	// row exists, to model reads racing a concurrent insert.
	missOnce bool
}

func newFakeGrantRepo() *fakeGrantRepo {
	return &fakeGrantRepo{grants: make(map[uuid.UUID]*model.StaffAccess)}
}

func (r *fakeGrantRepo) Create(_ context.Context, access *model.StaffAccess) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	if _, ok := r.grants[access.StaffID]; ok {
		return repository.ErrDuplicate
	}
	copied := *access
	r.grants[access.StaffID] = &copied
	return nil
}

func (r *fakeGrantRepo) GetByStaffID(_ context.Context, staffID uuid.UUID) (*model.StaffAccess, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.missOnce {
		r.missOnce = false
		return nil, repository.ErrNotFound
	}
	grant, ok := r.grants[staffID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *grant
	return &copied, nil
}

func (r *fakeGrantRepo) UpdateStatus(_ context.Context, staffID uuid.UUID, status string, approvedBy uuid.UUID) (*model.StaffAccess, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	grant, ok := r.grants[staffID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	now := time.Now()
	grant.Status = status
	grant.ApprovedBy = &approvedBy
	grant.ApprovalDate = &now
	copied := *grant
	return &copied, nil
}

func (r *fakeGrantRepo) List(_ context.Context) ([]*model.StaffAccess, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.StaffAccess, 0, len(r.grants))
	for _, g := range r.grants {
		copied := *g
		out = append(out, &copied)
	}
	return out, nil
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*model.User
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
	user, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return user, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
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

func (r *fakeUserRepo) ListStaff(_ context.Context, onlyUnverified bool) ([]*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.User
	for _, u := range r.users {
		if u.Role != model.RoleMedicalStaff {
			continue
		}
		if onlyUnverified && u.IsVerified {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (r *fakeUserRepo) AdminExists(_ context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Role == model.RoleAdmin {
			return true, nil
		}
	}
	return false, nil
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]string
	hits    int
	sets    int
	deletes int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]string)}
}

func (c *fakeCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.entries[key]
	if !ok {
		return "", cache.ErrMiss
	}
	c.hits++
	return value, nil
}

func (c *fakeCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	c.sets++
	return nil
}

func (c *fakeCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	c.deletes++
	return nil
}

func (c *fakeCache) Close() error { return nil }

func newService(grantRepo *fakeGrantRepo, userRepo *fakeUserRepo, c *fakeCache) *staffaccess.Service {
	log := testLogger()
	var grantCache cache.Cache
	if c != nil {
		grantCache = c
	}
	return staffaccess.NewService(grantRepo, userRepo, grantCache, email.NewNoopService(log), testMetrics, log)
}

func verifiedStaffActor() *model.Actor {
	return &model.Actor{ID: uuid.New(), Role: model.RoleMedicalStaff, IsVerified: true}
}

func TestStatusAutoProvisionsForVerifiedStaff(t *testing.T) {
	grantRepo := newFakeGrantRepo()
	svc := newService(grantRepo, newFakeUserRepo(), nil)
	actor := verifiedStaffActor()

	resp, err := svc.Status(context.Background(), actor)
	require.NoError(t, err)
	assert.True(t, resp.Approved)
	assert.Equal(t, model.GrantStatusApproved, resp.Status)
	assert.Equal(t, model.StaffRoleDoctor, resp.Role)

	grant, err := grantRepo.GetByStaffID(context.Background(), actor.ID)
	require.NoError(t, err)
	assert.NotNil(t, grant.ApprovalDate)

	// A second check reuses the provisioned grant.
	resp, err = svc.Status(context.Background(), actor)
	require.NoError(t, err)
	assert.True(t, resp.Approved)
	grants, _ := grantRepo.List(context.Background())
	assert.Len(t, grants, 1)
}

func TestStatusUnverifiedStaffGetsNoGrant(t *testing.T) {
	grantRepo := newFakeGrantRepo()
	svc := newService(grantRepo, newFakeUserRepo(), nil)
	actor := verifiedStaffActor()
	actor.IsVerified = false

	resp, err := svc.Status(context.Background(), actor)
	require.NoError(t, err)
	assert.False(t, resp.Approved)
	assert.Equal(t, staffaccess.StatusNone, resp.Status)

	grants, _ := grantRepo.List(context.Background())
	assert.Empty(t, grants)
}

func TestStatusProvisionRaceConvergesOnExistingGrant(t *testing.T) {
	grantRepo := newFakeGrantRepo()
	svc := newService(grantRepo, newFakeUserRepo(), nil)
	actor := verifiedStaffActor()

	// Simulate a concurrent winner: the first read misses, the insert
	// fails duplicate, and the row is there on re-read.
	grantRepo.missOnce = true
	grantRepo.createErr = repository.ErrDuplicate
	grantRepo.grants[actor.ID] = &model.StaffAccess{
		Base:    model.Base{ID: uuid.New()},
		StaffID: actor.ID,
		Status:  model.GrantStatusApproved,
		Role:    model.StaffRoleNurse,
	}

	resp, err := svc.Status(context.Background(), actor)
	require.NoError(t, err)
	assert.True(t, resp.Approved)
	assert.Equal(t, model.StaffRoleNurse, resp.Role)
}

func TestRequest(t *testing.T) {
	grantRepo := newFakeGrantRepo()
	svc := newService(grantRepo, newFakeUserRepo(), nil)
	actor := verifiedStaffActor()

	grant, err := svc.Request(context.Background(), actor, &model.RequestAccessRequest{
		Role:           model.StaffRoleNurse,
		Department:     "Emergency",
		Specialization: "Trauma",
	})
	require.NoError(t, err)
	assert.Equal(t, model.GrantStatusPending, grant.Status)
	assert.Equal(t, actor.ID, grant.StaffID)

	// Only one request per staff member.
	_, err = svc.Request(context.Background(), actor, &model.RequestAccessRequest{Role: model.StaffRoleNurse})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrConflict, apperrors.Code(err))
}

func TestRequestRejectsNonStaff(t *testing.T) {
	svc := newService(newFakeGrantRepo(), newFakeUserRepo(), nil)
	patient := &model.Actor{ID: uuid.New(), Role: model.RolePatient}

	_, err := svc.Request(context.Background(), patient, &model.RequestAccessRequest{Role: model.StaffRoleDoctor})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrForbidden, apperrors.Code(err))
}

func TestDecideApproveAndReApprove(t *testing.T) {
	grantRepo := newFakeGrantRepo()
	userRepo := newFakeUserRepo()
	svc := newService(grantRepo, userRepo, nil)
	admin := &model.Actor{ID: uuid.New(), Role: model.RoleAdmin}

	staff := verifiedStaffActor()
	userRepo.Create(context.Background(), &model.User{
		Base: model.Base{ID: staff.ID}, Role: model.RoleMedicalStaff, Email: "s@h.test",
	})
	_, err := svc.Request(context.Background(), staff, &model.RequestAccessRequest{Role: model.StaffRoleDoctor})
	require.NoError(t, err)

	grant, err := svc.Decide(context.Background(), admin, staff.ID, true)
	require.NoError(t, err)
	assert.Equal(t, model.GrantStatusApproved, grant.Status)
	require.NotNil(t, grant.ApprovalDate)
	require.NotNil(t, grant.ApprovedBy)
	assert.Equal(t, admin.ID, *grant.ApprovedBy)
	firstDate := *grant.ApprovalDate

	// Re-approving is idempotent on state and refreshes the stamp.
	time.Sleep(5 * time.Millisecond)
	grant, err = svc.Decide(context.Background(), admin, staff.ID, true)
	require.NoError(t, err)
	assert.Equal(t, model.GrantStatusApproved, grant.Status)
	assert.True(t, grant.ApprovalDate.After(firstDate))
}

func TestDecideRejectAfterApprove(t *testing.T) {
	grantRepo := newFakeGrantRepo()
	userRepo := newFakeUserRepo()
	svc := newService(grantRepo, userRepo, nil)
	admin := &model.Actor{ID: uuid.New(), Role: model.RoleAdmin}

	staff := verifiedStaffActor()
	userRepo.Create(context.Background(), &model.User{
		Base: model.Base{ID: staff.ID}, Role: model.RoleMedicalStaff, Email: "s@h.test",
	})
	_, err := svc.Request(context.Background(), staff, &model.RequestAccessRequest{Role: model.StaffRoleDoctor})
	require.NoError(t, err)

	_, err = svc.Decide(context.Background(), admin, staff.ID, true)
	require.NoError(t, err)

	grant, err := svc.Decide(context.Background(), admin, staff.ID, false)
	require.NoError(t, err)
	assert.Equal(t, model.GrantStatusRejected, grant.Status)
}

func TestDecideRequiresAdmin(t *testing.T) {
	svc := newService(newFakeGrantRepo(), newFakeUserRepo(), nil)
	staff := verifiedStaffActor()

	_, err := svc.Decide(context.Background(), staff, uuid.New(), true)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrForbidden, apperrors.Code(err))
}

func TestDecideUnknownRequestIsNotFound(t *testing.T) {
	svc := newService(newFakeGrantRepo(), newFakeUserRepo(), nil)
	admin := &model.Actor{ID: uuid.New(), Role: model.RoleAdmin}

	_, err := svc.Decide(context.Background(), admin, uuid.New(), true)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrNotFound, apperrors.Code(err))
}

func TestResolveGrantUsesCache(t *testing.T) {
	grantRepo := newFakeGrantRepo()
	c := newFakeCache()
	svc := newService(grantRepo, newFakeUserRepo(), c)
	staff := verifiedStaffActor()

	_, err := svc.Request(context.Background(), staff, &model.RequestAccessRequest{Role: model.StaffRoleDoctor})
	require.NoError(t, err)

	grant, err := svc.ResolveGrant(context.Background(), staff.ID)
	require.NoError(t, err)
	assert.Equal(t, model.GrantStatusPending, grant.Status)

	// Second resolve is served from the cache even if the row is gone.
	delete(grantRepo.grants, staff.ID)
	grant, err = svc.ResolveGrant(context.Background(), staff.ID)
	require.NoError(t, err)
	require.NotNil(t, grant)
	assert.Equal(t, model.GrantStatusPending, grant.Status)
	assert.GreaterOrEqual(t, c.hits, 1)
}

func TestResolveGrantCachesAbsence(t *testing.T) {
	c := newFakeCache()
	svc := newService(newFakeGrantRepo(), newFakeUserRepo(), c)
	staffID := uuid.New()

	grant, err := svc.ResolveGrant(context.Background(), staffID)
	require.NoError(t, err)
	assert.Nil(t, grant)

	grant, err = svc.ResolveGrant(context.Background(), staffID)
	require.NoError(t, err)
	assert.Nil(t, grant)
	assert.GreaterOrEqual(t, c.hits, 1)
}

func TestDecideInvalidatesCache(t *testing.T) {
	grantRepo := newFakeGrantRepo()
	userRepo := newFakeUserRepo()
	c := newFakeCache()
	svc := newService(grantRepo, userRepo, c)
	admin := &model.Actor{ID: uuid.New(), Role: model.RoleAdmin}

	staff := verifiedStaffActor()
	userRepo.Create(context.Background(), &model.User{
		Base: model.Base{ID: staff.ID}, Role: model.RoleMedicalStaff, Email: "s@h.test",
	})
	_, err := svc.Request(context.Background(), staff, &model.RequestAccessRequest{Role: model.StaffRoleDoctor})
	require.NoError(t, err)

	// Warm the cache with the pending status.
	_, err = svc.ResolveGrant(context.Background(), staff.ID)
	require.NoError(t, err)

	_, err = svc.Decide(context.Background(), admin, staff.ID, true)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, c.deletes, 1)

	// The next resolve sees the approval.
	grant, err := svc.ResolveGrant(context.Background(), staff.ID)
	require.NoError(t, err)
	assert.Equal(t, model.GrantStatusApproved, grant.Status)
}
