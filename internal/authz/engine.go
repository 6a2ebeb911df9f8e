// Package authz holds the pure access-decision logic for medical
// records and staff administration. It touches no store and returns the
// same decision for the same inputs; callers are responsible for
// resolving the actor and grant and for honoring the audit contract.
package authz

import (
	"github.com/google/uuid"

	"github.com/medqr/emergency-api/internal/model"
	apperrors "github.com/medqr/emergency-api/pkg/errors"
)

// Action enumerates everything the engine can be asked about.
type Action string

const (
	ActionReadOwn      Action = "read_own"
	ActionWriteOwn     Action = "write_own"
	ActionDeleteOwn    Action = "delete_own"
	ActionReadOther    Action = "read_other"
	ActionVerifyStaff  Action = "verify_staff"
	ActionRevokeStaff  Action = "revoke_staff"
	ActionApproveGrant Action = "approve_grant"
	ActionRejectGrant  Action = "reject_grant"
)

// Reason explains a denial, or is empty on allow.
type Reason string

const (
	ReasonUnauthenticated Reason = "unauthenticated"
	ReasonForbidden       Reason = "forbidden"
	ReasonNoGrant         Reason = "no_access_grant"
	ReasonGrantPending    Reason = "grant_pending"
	ReasonGrantRejected   Reason = "grant_rejected"
	ReasonInvalidTarget   Reason = "invalid_target"
)

// Input carries everything a decision depends on. TargetRole is only
// consulted for the staff-administration actions.
type Input struct {
	Actor           *model.Actor
	Grant           *model.StaffAccess
	Action          Action
	TargetPatientID uuid.UUID
	TargetRole      string
}

// Decision is the engine's verdict. RequiresAudit marks allows whose
// caller must append an access-log entry; that append is part of the
// authorization contract, not optional telemetry.
type Decision struct {
	Allowed       bool
	Reason        Reason
	RequiresAudit bool
}

func allow() Decision {
	return Decision{Allowed: true}
}

func allowAudited() Decision {
	return Decision{Allowed: true, RequiresAudit: true}
}

func deny(reason Reason) Decision {
	return Decision{Reason: reason}
}

// Decide evaluates the rules in order; the first match wins and
// anything not explicitly allowed is denied.
func Decide(in Input) Decision {
	if in.Actor == nil {
		return deny(ReasonUnauthenticated)
	}

	switch in.Action {
	case ActionReadOwn, ActionWriteOwn, ActionDeleteOwn:
		if in.Actor.IsPatient() && in.Actor.ID == in.TargetPatientID {
			return allow()
		}
		return deny(ReasonForbidden)

	case ActionReadOther:
		if !in.Actor.IsMedicalStaff() {
			return deny(ReasonForbidden)
		}
		if in.Grant == nil {
			return deny(ReasonNoGrant)
		}
		switch in.Grant.Status {
		case model.GrantStatusApproved:
			return allowAudited()
		case model.GrantStatusRejected:
			return deny(ReasonGrantRejected)
		default:
			return deny(ReasonGrantPending)
		}

	case ActionVerifyStaff, ActionRevokeStaff:
		if !in.Actor.IsAdmin() {
			return deny(ReasonForbidden)
		}
		if in.TargetRole != model.RoleMedicalStaff {
			return deny(ReasonInvalidTarget)
		}
		return allow()

	case ActionApproveGrant, ActionRejectGrant:
		if in.Actor.IsAdmin() {
			return allow()
		}
		return deny(ReasonForbidden)
	}

	return deny(ReasonForbidden)
}

// Err translates a denial into the application error surfaced to the
// caller. Allowed decisions have no error.
func (d Decision) Err() *apperrors.AppError {
	if d.Allowed {
		return nil
	}
	switch d.Reason {
	case ReasonUnauthenticated:
		return apperrors.Unauthenticated("authentication required")
	case ReasonNoGrant:
		return apperrors.StaffNotApproved("no access grant on file")
	case ReasonGrantPending:
		return apperrors.StaffNotApproved("access grant is pending approval")
	case ReasonGrantRejected:
		return apperrors.StaffNotApproved("access grant was rejected")
	case ReasonInvalidTarget:
		return apperrors.NotFound("medical staff member")
	default:
		return apperrors.Forbidden("action not permitted")
	}
}
