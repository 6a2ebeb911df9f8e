package staffaccess

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medqr/emergency-api/internal/authz"
	"github.com/medqr/emergency-api/internal/email"
	"github.com/medqr/emergency-api/internal/model"
	"github.com/medqr/emergency-api/internal/repository"
	"github.com/medqr/emergency-api/pkg/cache"
	apperrors "github.com/medqr/emergency-api/pkg/errors"
	"github.com/medqr/emergency-api/pkg/logger"
	"github.com/medqr/emergency-api/pkg/metrics"
)

const (
	grantCacheTTL = time.Minute
	// StatusNone is reported when a staff member has no grant at all.
	StatusNone = "none"
)

type Service struct {
	grantRepo repository.StaffAccessRepository
	userRepo  repository.UserRepository
	cache     cache.Cache
	emailSvc  email.Service
	metrics   *metrics.Metrics
	log       *logger.Logger
}

func NewService(
	grantRepo repository.StaffAccessRepository,
	userRepo repository.UserRepository,
	grantCache cache.Cache,
	emailSvc email.Service,
	m *metrics.Metrics,
	log *logger.Logger,
) *Service {
	return &Service{
		grantRepo: grantRepo,
		userRepo:  userRepo,
		cache:     grantCache,
		emailSvc:  emailSvc,
		metrics:   m,
		log:       log,
	}
}

func grantCacheKey(staffID uuid.UUID) string {
	return fmt.Sprintf("staff_access:%s", staffID)
}

func storeErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrDuplicate) {
		return err
	}
	return apperrors.StoreUnavailable(err)
}

// ResolveGrant loads the grant consulted on every scan. Returns
// (nil, nil) when no grant exists; the cache is read-through and
// best-effort.
func (s *Service) ResolveGrant(ctx context.Context, staffID uuid.UUID) (*model.StaffAccess, error) {
	if s.cache != nil {
		if status, err := s.cache.Get(ctx, grantCacheKey(staffID)); err == nil {
			s.metrics.CacheLookups.WithLabelValues("grant", "hit").Inc()
			if status == StatusNone {
				return nil, nil
			}
			return &model.StaffAccess{StaffID: staffID, Status: status}, nil
		} else if !errors.Is(err, cache.ErrMiss) {
			s.log.Warn("grant cache read failed", "error", err.Error())
		}
		s.metrics.CacheLookups.WithLabelValues("grant", "miss").Inc()
	}

	grant, err := s.grantRepo.GetByStaffID(ctx, staffID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.cacheStatus(ctx, staffID, StatusNone)
			return nil, nil
		}
		return nil, storeErr(err)
	}

	s.cacheStatus(ctx, staffID, grant.Status)
	return grant, nil
}

func (s *Service) cacheStatus(ctx context.Context, staffID uuid.UUID, status string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, grantCacheKey(staffID), status, grantCacheTTL); err != nil {
		s.log.Warn("grant cache write failed", "error", err.Error())
	}
}

func (s *Service) invalidate(ctx context.Context, staffID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, grantCacheKey(staffID)); err != nil {
		s.log.Warn("grant cache invalidation failed", "error", err.Error())
	}
}

// Status reports the caller's grant state. For a verified staff member
// with no grant it auto-provisions an approved one first, so the two
// verification flags converge without an extra admin step.
func (s *Service) Status(ctx context.Context, actor *model.Actor) (*model.StaffStatusResponse, error) {
	grant, err := s.grantRepo.GetByStaffID(ctx, actor.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, storeErr(err)
	}

	if grant == nil && actor.IsMedicalStaff() && actor.IsVerified {
		grant, err = s.provision(ctx, actor.ID)
		if err != nil {
			return nil, err
		}
	}

	if grant == nil {
		return &model.StaffStatusResponse{Approved: false, Status: StatusNone}, nil
	}

	s.cacheStatus(ctx, actor.ID, grant.Status)
	return &model.StaffStatusResponse{
		Approved: grant.Approved(),
		Status:   grant.Status,
		Role:     grant.Role,
	}, nil
}

// provision creates the auto-approved grant for verified staff. The
// unique constraint on staff_id makes concurrent first checks converge
// on one row.
func (s *Service) provision(ctx context.Context, staffID uuid.UUID) (*model.StaffAccess, error) {
	now := time.Now()
	grant := &model.StaffAccess{
		Base:           model.Base{ID: uuid.New()},
		StaffID:        staffID,
		Status:         model.GrantStatusApproved,
		Role:           model.StaffRoleDoctor,
		Department:     "General",
		Specialization: "General Medicine",
		ApprovalDate:   &now,
	}

	if err := s.grantRepo.Create(ctx, grant); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			existing, getErr := s.grantRepo.GetByStaffID(ctx, staffID)
			if getErr != nil {
				return nil, storeErr(getErr)
			}
			return existing, nil
		}
		return nil, storeErr(err)
	}

	s.log.Info("auto-provisioned access grant for verified staff", "staff_id", staffID.String())
	return grant, nil
}

// Request submits an explicit access request for review.
func (s *Service) Request(ctx context.Context, actor *model.Actor, req *model.RequestAccessRequest) (*model.StaffAccess, error) {
	if !actor.IsMedicalStaff() {
		return nil, apperrors.Forbidden("only medical staff can request record access")
	}

	grant := &model.StaffAccess{
		Base:           model.Base{ID: uuid.New()},
		StaffID:        actor.ID,
		Status:         model.GrantStatusPending,
		Role:           req.Role,
		Specialization: req.Specialization,
		Department:     req.Department,
	}

	if err := s.grantRepo.Create(ctx, grant); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.Conflict("access request already exists")
		}
		return nil, storeErr(err)
	}

	s.cacheStatus(ctx, actor.ID, grant.Status)
	return grant, nil
}

// Decide approves or rejects a grant. Re-applying the same decision is
// idempotent on state and refreshes the approval date.
func (s *Service) Decide(ctx context.Context, actor *model.Actor, staffID uuid.UUID, approve bool) (*model.StaffAccess, error) {
	action := authz.ActionApproveGrant
	status := model.GrantStatusApproved
	if !approve {
		action = authz.ActionRejectGrant
		status = model.GrantStatusRejected
	}

	decision := authz.Decide(authz.Input{Actor: actor, Action: action})
	if !decision.Allowed {
		return nil, decision.Err()
	}

	grant, err := s.grantRepo.UpdateStatus(ctx, staffID, status, actor.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("access request")
		}
		return nil, storeErr(err)
	}

	s.invalidate(ctx, staffID)
	s.metrics.GrantDecisions.WithLabelValues(status).Inc()

	go s.notifyDecision(staffID, status)

	return grant, nil
}

func (s *Service) notifyDecision(staffID uuid.UUID, status string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	staff, err := s.userRepo.Get(ctx, staffID)
	if err != nil {
		s.log.Error(err, "failed to load staff for decision email")
		return
	}
	if err := s.emailSvc.SendGrantDecision(ctx, staff.Email, staff.Name, status); err != nil {
		s.log.Error(err, "failed to send grant decision email")
	}
}

// List returns all grants for the admin review screen.
func (s *Service) List(ctx context.Context) ([]*model.StaffAccess, error) {
	grants, err := s.grantRepo.List(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	return grants, nil
}
