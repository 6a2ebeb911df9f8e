package authz

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/medqr/emergency-api/internal/model"
	apperrors "github.com/medqr/emergency-api/pkg/errors"
)

func patientActor(id uuid.UUID) *model.Actor {
	return &model.Actor{ID: id, Role: model.RolePatient}
}

func staffActor(id uuid.UUID) *model.Actor {
	return &model.Actor{ID: id, Role: model.RoleMedicalStaff, IsVerified: true}
}

func adminActor() *model.Actor {
	return &model.Actor{ID: uuid.New(), Role: model.RoleAdmin, IsVerified: true}
}

func grantWithStatus(staffID uuid.UUID, status string) *model.StaffAccess {
	return &model.StaffAccess{StaffID: staffID, Status: status}
}

func TestDecideNilActorAlwaysUnauthenticated(t *testing.T) {
	actions := []Action{
		ActionReadOwn, ActionWriteOwn, ActionDeleteOwn, ActionReadOther,
		ActionVerifyStaff, ActionRevokeStaff, ActionApproveGrant, ActionRejectGrant,
	}
	for _, action := range actions {
		d := Decide(Input{Action: action, TargetPatientID: uuid.New()})
		assert.False(t, d.Allowed, "action %s", action)
		assert.Equal(t, ReasonUnauthenticated, d.Reason, "action %s", action)
	}
}

func TestDecideOwnRecordActions(t *testing.T) {
	patientID := uuid.New()

	for _, action := range []Action{ActionReadOwn, ActionWriteOwn, ActionDeleteOwn} {
		d := Decide(Input{Actor: patientActor(patientID), Action: action, TargetPatientID: patientID})
		assert.True(t, d.Allowed, "action %s", action)
		assert.False(t, d.RequiresAudit, "own access is not audited")

		// Another patient's record is never an "own" target.
		d = Decide(Input{Actor: patientActor(patientID), Action: action, TargetPatientID: uuid.New()})
		assert.False(t, d.Allowed)
		assert.Equal(t, ReasonForbidden, d.Reason)

		// Staff and admin have no own record.
		d = Decide(Input{Actor: staffActor(patientID), Action: action, TargetPatientID: patientID})
		assert.False(t, d.Allowed)
		d = Decide(Input{Actor: adminActor(), Action: action, TargetPatientID: patientID})
		assert.False(t, d.Allowed)
	}
}

func TestDecideReadOther(t *testing.T) {
	staffID := uuid.New()
	targetID := uuid.New()

	tests := []struct {
		name    string
		actor   *model.Actor
		grant   *model.StaffAccess
		allowed bool
		reason  Reason
		audited bool
	}{
		{
			name:    "approved grant allows and requires audit",
			actor:   staffActor(staffID),
			grant:   grantWithStatus(staffID, model.GrantStatusApproved),
			allowed: true,
			audited: true,
		},
		{
			name:   "pending grant denies",
			actor:  staffActor(staffID),
			grant:  grantWithStatus(staffID, model.GrantStatusPending),
			reason: ReasonGrantPending,
		},
		{
			name:   "rejected grant denies",
			actor:  staffActor(staffID),
			grant:  grantWithStatus(staffID, model.GrantStatusRejected),
			reason: ReasonGrantRejected,
		},
		{
			name:   "no grant denies",
			actor:  staffActor(staffID),
			reason: ReasonNoGrant,
		},
		{
			name:   "patient can never read others",
			actor:  patientActor(staffID),
			grant:  grantWithStatus(staffID, model.GrantStatusApproved),
			reason: ReasonForbidden,
		},
		{
			name:   "admin can never read records",
			actor:  adminActor(),
			grant:  grantWithStatus(staffID, model.GrantStatusApproved),
			reason: ReasonForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(Input{
				Actor:           tt.actor,
				Grant:           tt.grant,
				Action:          ActionReadOther,
				TargetPatientID: targetID,
			})
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.audited, d.RequiresAudit)
			if !tt.allowed {
				assert.Equal(t, tt.reason, d.Reason)
			}
		})
	}
}

func TestDecideStaffVerification(t *testing.T) {
	for _, action := range []Action{ActionVerifyStaff, ActionRevokeStaff} {
		d := Decide(Input{Actor: adminActor(), Action: action, TargetRole: model.RoleMedicalStaff})
		assert.True(t, d.Allowed, "action %s", action)

		// Verification only applies to staff identities.
		d = Decide(Input{Actor: adminActor(), Action: action, TargetRole: model.RolePatient})
		assert.False(t, d.Allowed)
		assert.Equal(t, ReasonInvalidTarget, d.Reason)

		d = Decide(Input{Actor: staffActor(uuid.New()), Action: action, TargetRole: model.RoleMedicalStaff})
		assert.False(t, d.Allowed)
		assert.Equal(t, ReasonForbidden, d.Reason)
	}
}

func TestDecideGrantDecisions(t *testing.T) {
	for _, action := range []Action{ActionApproveGrant, ActionRejectGrant} {
		d := Decide(Input{Actor: adminActor(), Action: action})
		assert.True(t, d.Allowed, "action %s", action)

		d = Decide(Input{Actor: staffActor(uuid.New()), Action: action})
		assert.False(t, d.Allowed)
		d = Decide(Input{Actor: patientActor(uuid.New()), Action: action})
		assert.False(t, d.Allowed)
	}
}

func TestDecideUnknownActionDenied(t *testing.T) {
	d := Decide(Input{Actor: adminActor(), Action: Action("export_everything")})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonForbidden, d.Reason)
}

func TestDecisionErr(t *testing.T) {
	tests := []struct {
		reason Reason
		code   apperrors.ErrorCode
	}{
		{ReasonUnauthenticated, apperrors.ErrUnauthenticated},
		{ReasonForbidden, apperrors.ErrForbidden},
		{ReasonNoGrant, apperrors.ErrStaffNotApproved},
		{ReasonGrantPending, apperrors.ErrStaffNotApproved},
		{ReasonGrantRejected, apperrors.ErrStaffNotApproved},
		{ReasonInvalidTarget, apperrors.ErrNotFound},
	}
	for _, tt := range tests {
		err := deny(tt.reason).Err()
		assert.NotNil(t, err, "reason %s", tt.reason)
		assert.Equal(t, tt.code, err.Code, "reason %s", tt.reason)
	}

	assert.Nil(t, allow().Err())
	assert.Nil(t, allowAudited().Err())
}
