package model

import (
	"github.com/google/uuid"
)

// Actor is the resolved caller identity used for authorization. It is
// built exactly once per request at the authentication boundary, so
// handlers and services never re-derive role or grant state ad hoc.
type Actor struct {
	ID         uuid.UUID
	Email      string
	Role       string
	IsVerified bool
	// GrantStatus mirrors StaffAccess.Status for medical staff actors;
	// empty when no grant exists or the actor is not staff.
	GrantStatus string
}

// ActorFromUser builds an actor from a stored identity. Grant state is
// attached separately, by whoever resolved it.
func ActorFromUser(u *User) *Actor {
	if u == nil {
		return nil
	}
	return &Actor{
		ID:         u.ID,
		Email:      u.Email,
		Role:       u.Role,
		IsVerified: u.IsVerified,
	}
}

func (a *Actor) IsPatient() bool {
	return a != nil && a.Role == RolePatient
}

func (a *Actor) IsMedicalStaff() bool {
	return a != nil && a.Role == RoleMedicalStaff
}

func (a *Actor) IsAdmin() bool {
	return a != nil && a.Role == RoleAdmin
}
