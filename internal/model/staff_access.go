package model

import (
	"time"

	"github.com/google/uuid"
)

// Grant status constants
const (
	GrantStatusPending  = "pending"
	GrantStatusApproved = "approved"
	GrantStatusRejected = "rejected"
)

// Staff role detail constants (informational only, never an
// authorization input)
const (
	StaffRoleDoctor = "doctor"
	StaffRoleNurse  = "nurse"
)

// StaffAccess is the per-staff-member access grant gating cross-patient
// reads. At most one row exists per staff identity.
type StaffAccess struct {
	Base
	StaffID        uuid.UUID  `json:"staff_id" db:"staff_id"`
	Status         string     `json:"status" db:"status"`
	Role           string     `json:"role" db:"role"`
	Specialization string     `json:"specialization" db:"specialization"`
	Department     string     `json:"department" db:"department"`
	Notes          string     `json:"notes" db:"notes"`
	ApprovedBy     *uuid.UUID `json:"approved_by,omitempty" db:"approved_by"`
	ApprovalDate   *time.Time `json:"approval_date,omitempty" db:"approval_date"`
}

// Approved reports whether the grant currently authorizes scans.
func (s *StaffAccess) Approved() bool {
	return s != nil && s.Status == GrantStatusApproved
}

// RequestAccessRequest represents a staff access request submission.
type RequestAccessRequest struct {
	Role           string `json:"role" binding:"required,oneof=doctor nurse"`
	Specialization string `json:"specialization"`
	Department     string `json:"department"`
}

// StaffStatusResponse is the payload of the staff-status check.
type StaffStatusResponse struct {
	Approved bool   `json:"approved"`
	Status   string `json:"status"`
	Role     string `json:"role"`
}
