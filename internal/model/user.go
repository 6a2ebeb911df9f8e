package model

// Role constants. Roles are a closed set; there is no dynamic role table.
const (
	RolePatient      = "patient"
	RoleMedicalStaff = "medical_staff"
	RoleAdmin        = "admin"
)

// ValidRole reports whether role is one of the three account roles.
func ValidRole(role string) bool {
	switch role {
	case RolePatient, RoleMedicalStaff, RoleAdmin:
		return true
	}
	return false
}

// User represents an account identity. IsVerified is the identity-level
// admin verification flag for medical staff; it is distinct from the
// grant-level approval tracked in StaffAccess and the two are kept in
// sync only by lazy auto-provisioning.
type User struct {
	Base
	Name         string    `json:"name" db:"name"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         string    `json:"role" db:"role"`
	IsVerified   bool      `json:"is_verified" db:"is_verified"`
	Hospital     *Hospital `json:"hospital,omitempty" db:"-"`
}

// Hospital carries the workplace details collected at staff registration.
type Hospital struct {
	Name       string `json:"name" db:"hospital_name"`
	Address    string `json:"address" db:"hospital_address"`
	Department string `json:"department" db:"hospital_department"`
	Position   string `json:"position" db:"hospital_position"`
	StaffID    string `json:"staff_id" db:"hospital_staff_id"`
	Contact    string `json:"contact" db:"hospital_contact"`
}

// RegisterRequest represents registration parameters
type RegisterRequest struct {
	Name     string    `json:"name" binding:"required"`
	Email    string    `json:"email" binding:"required,email"`
	Password string    `json:"password" binding:"required,min=6"`
	Role     string    `json:"role" binding:"required,oneof=patient medical_staff admin"`
	Hospital *Hospital `json:"hospital,omitempty"`
}

// LoginRequest represents login parameters
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse is returned from register and login.
type TokenResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}
