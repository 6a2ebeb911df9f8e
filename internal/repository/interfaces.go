package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/medqr/emergency-api/internal/model"
)

// Sentinel errors repositories translate driver errors into, so
// services can map them without knowing the store.
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	Get(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateVerification(ctx context.Context, id uuid.UUID, verified bool) error
	ListStaff(ctx context.Context, onlyUnverified bool) ([]*model.User, error)
	AdminExists(ctx context.Context) (bool, error)
}

type StaffAccessRepository interface {
	Create(ctx context.Context, access *model.StaffAccess) error
	GetByStaffID(ctx context.Context, staffID uuid.UUID) (*model.StaffAccess, error)
	UpdateStatus(ctx context.Context, staffID uuid.UUID, status string, approvedBy uuid.UUID) (*model.StaffAccess, error)
	List(ctx context.Context) ([]*model.StaffAccess, error)
}

type MedicalRecordRepository interface {
	// Upsert replaces the whole record for its patient in a single
	// atomic statement.
	Upsert(ctx context.Context, record *model.MedicalRecord) error
	GetByPatientID(ctx context.Context, patientID uuid.UUID) (*model.MedicalRecord, error)
	Delete(ctx context.Context, patientID uuid.UUID) error
	// AppendAccessLog inserts one immutable audit row; concurrent
	// appends never lose entries.
	AppendAccessLog(ctx context.Context, entry *model.AccessLogEntry) error
	ListAccessLog(ctx context.Context, recordID uuid.UUID) ([]*model.AccessLogEntry, error)
}
