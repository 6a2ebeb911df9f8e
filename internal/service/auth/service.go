package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/medqr/emergency-api/internal/authz"
	"github.com/medqr/emergency-api/internal/email"
	"github.com/medqr/emergency-api/internal/model"
	"github.com/medqr/emergency-api/internal/repository"
	pkgauth "github.com/medqr/emergency-api/pkg/auth"
	apperrors "github.com/medqr/emergency-api/pkg/errors"
	"github.com/medqr/emergency-api/pkg/logger"
	"github.com/medqr/emergency-api/pkg/security"
)

// IdentityInvalidator drops cached identity state after admin actions
// so verification changes are visible on the next request.
type IdentityInvalidator interface {
	InvalidateIdentity(id uuid.UUID)
}

type Service struct {
	userRepo    repository.UserRepository
	jwtSvc      pkgauth.JWTService
	hasher      security.PasswordHasher
	emailSvc    email.Service
	invalidator IdentityInvalidator
	log         *logger.Logger
}

func NewService(
	userRepo repository.UserRepository,
	jwtSvc pkgauth.JWTService,
	hasher security.PasswordHasher,
	emailSvc email.Service,
	invalidator IdentityInvalidator,
	log *logger.Logger,
) *Service {
	return &Service{
		userRepo:    userRepo,
		jwtSvc:      jwtSvc,
		hasher:      hasher,
		emailSvc:    emailSvc,
		invalidator: invalidator,
		log:         log,
	}
}

func storeErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrDuplicate) {
		return err
	}
	return apperrors.StoreUnavailable(err)
}

// Register creates an account. Admin accounts are auto-verified and at
// most one may ever exist; staff accounts require hospital details and
// start unverified.
func (s *Service) Register(ctx context.Context, req *model.RegisterRequest) (*model.TokenResponse, error) {
	if !model.ValidRole(req.Role) {
		return nil, apperrors.Validation("invalid role")
	}

	if req.Role == model.RoleAdmin {
		exists, err := s.userRepo.AdminExists(ctx)
		if err != nil {
			return nil, storeErr(err)
		}
		if exists {
			return nil, apperrors.Forbidden("admin already exists")
		}
	}

	if req.Role == model.RoleMedicalStaff {
		h := req.Hospital
		if h == nil || h.Name == "" || h.Address == "" || h.Department == "" ||
			h.Position == "" || h.StaffID == "" || h.Contact == "" {
			return nil, apperrors.Validation("all hospital information is required for medical staff")
		}
	}

	if existing, err := s.userRepo.GetByEmail(ctx, req.Email); err == nil && existing != nil {
		return nil, apperrors.Conflict("user already exists")
	} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, storeErr(err)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, apperrors.Validation("password must be at least 6 characters long")
	}

	user := &model.User{
		Base: model.Base{
			ID: uuid.New(),
		},
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         req.Role,
		IsVerified:   req.Role == model.RoleAdmin,
	}
	if req.Role == model.RoleMedicalStaff {
		user.Hospital = req.Hospital
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// Unique index on email, or the partial index that caps
			// admins at one; the email case was checked above.
			if req.Role == model.RoleAdmin {
				return nil, apperrors.Forbidden("admin already exists")
			}
			return nil, apperrors.Conflict("user already exists")
		}
		return nil, storeErr(err)
	}

	return s.tokenResponse(user)
}

func (s *Service) Login(ctx context.Context, req *model.LoginRequest) (*model.TokenResponse, error) {
	user, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.Unauthenticated("invalid credentials")
		}
		return nil, storeErr(err)
	}

	if err := s.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		return nil, apperrors.Unauthenticated("invalid credentials")
	}

	return s.tokenResponse(user)
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user, err := s.userRepo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("user")
		}
		return nil, storeErr(err)
	}
	return user, nil
}

// SetStaffVerification flips the identity-level verification flag for a
// staff member. Admin-only; grant state is deliberately untouched.
func (s *Service) SetStaffVerification(ctx context.Context, actor *model.Actor, targetID uuid.UUID, verified bool) (*model.User, error) {
	target, err := s.userRepo.Get(ctx, targetID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("user")
		}
		return nil, storeErr(err)
	}

	action := authz.ActionVerifyStaff
	if !verified {
		action = authz.ActionRevokeStaff
	}
	decision := authz.Decide(authz.Input{
		Actor:      actor,
		Action:     action,
		TargetRole: target.Role,
	})
	if !decision.Allowed {
		return nil, decision.Err()
	}

	if err := s.userRepo.UpdateVerification(ctx, targetID, verified); err != nil {
		return nil, storeErr(err)
	}
	target.IsVerified = verified

	if s.invalidator != nil {
		s.invalidator.InvalidateIdentity(targetID)
	}

	go s.notifyVerification(target, verified)

	return target, nil
}

func (s *Service) notifyVerification(target *model.User, verified bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	if verified {
		err = s.emailSvc.SendStaffVerified(ctx, target.Email, target.Name)
	} else {
		err = s.emailSvc.SendStaffRevoked(ctx, target.Email, target.Name)
	}
	if err != nil {
		s.log.Error(err, "failed to send staff verification email")
	}
}

// ListStaff returns medical staff accounts. Callers gate this behind
// the admin role at the router.
func (s *Service) ListStaff(ctx context.Context, onlyUnverified bool) ([]*model.User, error) {
	staff, err := s.userRepo.ListStaff(ctx, onlyUnverified)
	if err != nil {
		return nil, storeErr(err)
	}
	return staff, nil
}

func (s *Service) tokenResponse(user *model.User) (*model.TokenResponse, error) {
	token, err := s.jwtSvc.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return &model.TokenResponse{Token: token, User: user}, nil
}
