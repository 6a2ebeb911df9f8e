package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/medqr/emergency-api/internal/model"
	"github.com/medqr/emergency-api/internal/repository"
)

type medicalRecordRepository struct {
	db *sqlx.DB
}

func NewMedicalRecordRepository(db *sqlx.DB) repository.MedicalRecordRepository {
	return &medicalRecordRepository{db: db}
}

type medicalRecordRow struct {
	model.MedicalRecord
	MedicationsJSON      json.RawMessage `db:"medications"`
	EmergencyContactJSON json.RawMessage `db:"emergency_contact"`
	InsuranceInfoJSON    json.RawMessage `db:"insurance_info"`
}

func (r medicalRecordRow) toModel() (*model.MedicalRecord, error) {
	record := r.MedicalRecord
	if len(r.MedicationsJSON) > 0 {
		if err := json.Unmarshal(r.MedicationsJSON, &record.Medications); err != nil {
			return nil, fmt.Errorf("failed to decode medications: %w", err)
		}
	}
	if len(r.EmergencyContactJSON) > 0 {
		if err := json.Unmarshal(r.EmergencyContactJSON, &record.EmergencyContact); err != nil {
			return nil, fmt.Errorf("failed to decode emergency contact: %w", err)
		}
	}
	if len(r.InsuranceInfoJSON) > 0 {
		if err := json.Unmarshal(r.InsuranceInfoJSON, &record.InsuranceInfo); err != nil {
			return nil, fmt.Errorf("failed to decode insurance info: %w", err)
		}
	}
	return &record, nil
}

// Upsert is a single atomic replace keyed by patient_id. Concurrent
// first-time saves resolve through the unique constraint; one insert
// wins and the other becomes an update of the same row.
func (r *medicalRecordRepository) Upsert(ctx context.Context, record *model.MedicalRecord) error {
	medications, err := json.Marshal(record.Medications)
	if err != nil {
		return fmt.Errorf("failed to encode medications: %w", err)
	}
	emergencyContact, err := json.Marshal(record.EmergencyContact)
	if err != nil {
		return fmt.Errorf("failed to encode emergency contact: %w", err)
	}
	insuranceInfo, err := json.Marshal(record.InsuranceInfo)
	if err != nil {
		return fmt.Errorf("failed to encode insurance info: %w", err)
	}

	now := time.Now()
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.CreatedAt = now
	record.UpdatedAt = now

	query := `
		INSERT INTO medical_records (
			id, patient_id, name, blood_type, allergies, medications,
			conditions, emergency_contact, insurance_info, last_updated,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		ON CONFLICT (patient_id) DO UPDATE SET
			name = EXCLUDED.name,
			blood_type = EXCLUDED.blood_type,
			allergies = EXCLUDED.allergies,
			medications = EXCLUDED.medications,
			conditions = EXCLUDED.conditions,
			emergency_contact = EXCLUDED.emergency_contact,
			insurance_info = EXCLUDED.insurance_info,
			last_updated = EXCLUDED.last_updated,
			updated_at = EXCLUDED.updated_at
	`
	_, err = r.db.ExecContext(ctx, query,
		record.ID,
		record.PatientID,
		record.Name,
		record.BloodType,
		record.Allergies,
		medications,
		record.Conditions,
		emergencyContact,
		insuranceInfo,
		record.LastUpdated,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert medical record: %w", translateErr(err))
	}
	return nil
}

func (r *medicalRecordRepository) GetByPatientID(ctx context.Context, patientID uuid.UUID) (*model.MedicalRecord, error) {
	query := `SELECT * FROM medical_records WHERE patient_id = $1`
	var row medicalRecordRow
	if err := r.db.GetContext(ctx, &row, query, patientID); err != nil {
		return nil, fmt.Errorf("failed to get medical record: %w", translateErr(err))
	}
	return row.toModel()
}

func (r *medicalRecordRepository) Delete(ctx context.Context, patientID uuid.UUID) error {
	query := `DELETE FROM medical_records WHERE patient_id = $1`
	res, err := r.db.ExecContext(ctx, query, patientID)
	if err != nil {
		return fmt.Errorf("failed to delete medical record: %w", translateErr(err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// AppendAccessLog inserts one row into the append-only log table. Rows
// are never updated or deleted; two concurrent scans produce two rows.
func (r *medicalRecordRepository) AppendAccessLog(ctx context.Context, entry *model.AccessLogEntry) error {
	query := `
		INSERT INTO record_access_log (id, record_id, accessor_id, action, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.RecordID,
		entry.AccessorID,
		entry.Action,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append access log: %w", translateErr(err))
	}
	return nil
}

func (r *medicalRecordRepository) ListAccessLog(ctx context.Context, recordID uuid.UUID) ([]*model.AccessLogEntry, error) {
	query := `SELECT * FROM record_access_log WHERE record_id = $1 ORDER BY created_at ASC`
	var entries []*model.AccessLogEntry
	if err := r.db.SelectContext(ctx, &entries, query, recordID); err != nil {
		return nil, fmt.Errorf("failed to list access log: %w", translateErr(err))
	}
	return entries, nil
}
