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

type staffAccessRepository struct {
	db *sqlx.DB
}

func NewStaffAccessRepository(db *sqlx.DB) repository.StaffAccessRepository {
	return &staffAccessRepository{db: db}
}

func (r *staffAccessRepository) Create(ctx context.Context, access *model.StaffAccess) error {
	query := `
		INSERT INTO staff_access (
			id, staff_id, status, role, specialization, department, notes,
			approved_by, approval_date, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	access.CreatedAt = time.Now()
	access.UpdatedAt = access.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		access.ID,
		access.StaffID,
		access.Status,
		access.Role,
		access.Specialization,
		access.Department,
		access.Notes,
		access.ApprovedBy,
		access.ApprovalDate,
		access.CreatedAt,
		access.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create staff access: %w", translateErr(err))
	}
	return nil
}

func (r *staffAccessRepository) GetByStaffID(ctx context.Context, staffID uuid.UUID) (*model.StaffAccess, error) {
	query := `SELECT * FROM staff_access WHERE staff_id = $1`
	var access model.StaffAccess
	if err := r.db.GetContext(ctx, &access, query, staffID); err != nil {
		return nil, fmt.Errorf("failed to get staff access: %w", translateErr(err))
	}
	return &access, nil
}

// UpdateStatus transitions the grant and stamps approver and approval
// date. Re-applying the same status is valid and refreshes the stamp.
func (r *staffAccessRepository) UpdateStatus(ctx context.Context, staffID uuid.UUID, status string, approvedBy uuid.UUID) (*model.StaffAccess, error) {
	query := `
		UPDATE staff_access
		SET status = $1, approved_by = $2, approval_date = $3, updated_at = $3
		WHERE staff_id = $4
		RETURNING *
	`
	var access model.StaffAccess
	if err := r.db.GetContext(ctx, &access, query, status, approvedBy, time.Now(), staffID); err != nil {
		return nil, fmt.Errorf("failed to update staff access status: %w", translateErr(err))
	}
	return &access, nil
}

func (r *staffAccessRepository) List(ctx context.Context) ([]*model.StaffAccess, error) {
	query := `SELECT * FROM staff_access ORDER BY created_at DESC`
	var accesses []*model.StaffAccess
	if err := r.db.SelectContext(ctx, &accesses, query); err != nil {
		return nil, fmt.Errorf("failed to list staff access: %w", translateErr(err))
	}
	return accesses, nil
}
