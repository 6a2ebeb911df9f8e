package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/medqr/emergency-api/internal/model"
	"github.com/medqr/emergency-api/internal/repository"
)

type userRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) repository.UserRepository {
	return &userRepository{db: db}
}

type userRow struct {
	model.User
	HospitalName       *string `db:"hospital_name"`
	HospitalAddress    *string `db:"hospital_address"`
	HospitalDepartment *string `db:"hospital_department"`
	HospitalPosition   *string `db:"hospital_position"`
	HospitalStaffID    *string `db:"hospital_staff_id"`
	HospitalContact    *string `db:"hospital_contact"`
}

func (r userRow) toModel() *model.User {
	u := r.User
	if r.HospitalName != nil {
		u.Hospital = &model.Hospital{
			Name:       *r.HospitalName,
			Address:    deref(r.HospitalAddress),
			Department: deref(r.HospitalDepartment),
			Position:   deref(r.HospitalPosition),
			StaffID:    deref(r.HospitalStaffID),
			Contact:    deref(r.HospitalContact),
		}
	}
	return &u
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (
			id, name, email, password_hash, role, is_verified,
			hospital_name, hospital_address, hospital_department,
			hospital_position, hospital_staff_id, hospital_contact,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt

	var hName, hAddr, hDept, hPos, hStaffID, hContact *string
	if user.Hospital != nil {
		hName = &user.Hospital.Name
		hAddr = &user.Hospital.Address
		hDept = &user.Hospital.Department
		hPos = &user.Hospital.Position
		hStaffID = &user.Hospital.StaffID
		hContact = &user.Hospital.Contact
	}

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.IsVerified,
		hName, hAddr, hDept, hPos, hStaffID, hContact,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", translateErr(err))
	}
	return nil
}

func (r *userRepository) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	query := `SELECT * FROM users WHERE id = $1`
	var row userRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, fmt.Errorf("failed to get user: %w", translateErr(err))
	}
	return row.toModel(), nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT * FROM users WHERE email = $1`
	var row userRow
	if err := r.db.GetContext(ctx, &row, query, email); err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", translateErr(err))
	}
	return row.toModel(), nil
}

func (r *userRepository) UpdateVerification(ctx context.Context, id uuid.UUID, verified bool) error {
	query := `UPDATE users SET is_verified = $1, updated_at = $2 WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, verified, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update verification: %w", translateErr(err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *userRepository) ListStaff(ctx context.Context, onlyUnverified bool) ([]*model.User, error) {
	query := `SELECT * FROM users WHERE role = $1`
	args := []interface{}{model.RoleMedicalStaff}
	if onlyUnverified {
		query += ` AND is_verified = FALSE`
	}
	query += ` ORDER BY created_at DESC`

	var rows []userRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list staff: %w", translateErr(err))
	}

	staff := make([]*model.User, 0, len(rows))
	for _, row := range rows {
		staff = append(staff, row.toModel())
	}
	return staff, nil
}

func (r *userRepository) AdminExists(ctx context.Context) (bool, error) {
	// A partial unique index on (role) WHERE role = 'admin' backs this
	// check against concurrent registrations.
	query := `SELECT EXISTS (SELECT 1 FROM users WHERE role = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, model.RoleAdmin); err != nil {
		return false, fmt.Errorf("failed to check admin existence: %w", translateErr(err))
	}
	return exists, nil
}
