package medical

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medqr/emergency-api/internal/authz"
	"github.com/medqr/emergency-api/internal/model"
	"github.com/medqr/emergency-api/internal/repository"
	"github.com/medqr/emergency-api/internal/service/staffaccess"
	apperrors "github.com/medqr/emergency-api/pkg/errors"
	"github.com/medqr/emergency-api/pkg/logger"
	"github.com/medqr/emergency-api/pkg/metrics"
	"github.com/medqr/emergency-api/pkg/qr"
)

// Service orchestrates authorization decisions against the record
// store. All record reads and writes go through here; handlers never
// touch the repositories directly.
type Service struct {
	recordRepo repository.MedicalRecordRepository
	userRepo   repository.UserRepository
	staffSvc   *staffaccess.Service
	metrics    *metrics.Metrics
	log        *logger.Logger
}

func NewService(
	recordRepo repository.MedicalRecordRepository,
	userRepo repository.UserRepository,
	staffSvc *staffaccess.Service,
	m *metrics.Metrics,
	log *logger.Logger,
) *Service {
	return &Service{
		recordRepo: recordRepo,
		userRepo:   userRepo,
		staffSvc:   staffSvc,
		metrics:    m,
		log:        log,
	}
}

func storeErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrDuplicate) {
		return err
	}
	return apperrors.StoreUnavailable(err)
}

// GetOwnRecord returns the caller's record, or a well-defined empty
// template when none exists yet so a first-time patient can render a
// blank form.
func (s *Service) GetOwnRecord(ctx context.Context, actor *model.Actor) (*model.OwnRecordResponse, error) {
	decision := authz.Decide(authz.Input{
		Actor:           actor,
		Action:          authz.ActionReadOwn,
		TargetPatientID: actorID(actor),
	})
	if !decision.Allowed {
		return nil, decision.Err()
	}

	record, err := s.recordRepo.GetByPatientID(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return s.emptyTemplate(ctx, actor), nil
		}
		return nil, storeErr(err)
	}

	payload, err := qr.Encode(actor.ID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	return &model.OwnRecordResponse{
		PatientID:        record.PatientID,
		Name:             record.Name,
		BloodType:        record.BloodType,
		Allergies:        record.Allergies,
		Medications:      record.Medications,
		Conditions:       record.Conditions,
		EmergencyContact: record.EmergencyContact,
		InsuranceInfo:    record.InsuranceInfo,
		QRCode:           payload,
		LastUpdated:      record.LastUpdated,
		Exists:           true,
	}, nil
}

func (s *Service) emptyTemplate(ctx context.Context, actor *model.Actor) *model.OwnRecordResponse {
	name := ""
	if user, err := s.userRepo.Get(ctx, actor.ID); err == nil {
		name = user.Name
	}
	return &model.OwnRecordResponse{
		PatientID:   actor.ID,
		Name:        name,
		Allergies:   []string{},
		Medications: []model.Medication{},
		Conditions:  []string{},
		LastUpdated: time.Now(),
		Exists:      false,
	}
}

// UpsertRecord validates and replaces the caller's whole record. A
// validation failure performs no write at all.
func (s *Service) UpsertRecord(ctx context.Context, actor *model.Actor, req *model.UpsertRecordRequest) (*model.MedicalRecord, error) {
	decision := authz.Decide(authz.Input{
		Actor:           actor,
		Action:          authz.ActionWriteOwn,
		TargetPatientID: actorID(actor),
	})
	if !decision.Allowed {
		return nil, decision.Err()
	}

	if strings.TrimSpace(req.Name) == "" {
		return nil, apperrors.Validation("name is required")
	}
	if req.BloodType == "" {
		return nil, apperrors.Validation("blood type is required")
	}
	if !model.ValidBloodType(req.BloodType) {
		return nil, apperrors.Validation("invalid blood type")
	}

	record := &model.MedicalRecord{
		PatientID:        actor.ID,
		Name:             strings.TrimSpace(req.Name),
		BloodType:        req.BloodType,
		Allergies:        cleanStrings(req.Allergies),
		Medications:      cleanMedications(req.Medications),
		Conditions:       cleanStrings(req.Conditions),
		EmergencyContact: trimContact(req.EmergencyContact),
		InsuranceInfo:    req.InsuranceInfo,
		LastUpdated:      time.Now(),
	}

	if err := s.recordRepo.Upsert(ctx, record); err != nil {
		return nil, storeErr(err)
	}
	return record, nil
}

// DeleteOwnRecord removes the caller's record.
func (s *Service) DeleteOwnRecord(ctx context.Context, actor *model.Actor) error {
	decision := authz.Decide(authz.Input{
		Actor:           actor,
		Action:          authz.ActionDeleteOwn,
		TargetPatientID: actorID(actor),
	})
	if !decision.Allowed {
		return decision.Err()
	}

	if err := s.recordRepo.Delete(ctx, actor.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NotFound("medical record")
		}
		return storeErr(err)
	}
	return nil
}

// Scan is the staff read of another patient's record. A successful
// scan always appends an access-log entry before the record leaves the
// service; the outbound projection never carries the log.
func (s *Service) Scan(ctx context.Context, actor *model.Actor, patientID uuid.UUID) (*model.RecordProjection, error) {
	var grant *model.StaffAccess
	if actor != nil && actor.IsMedicalStaff() {
		var err error
		grant, err = s.staffSvc.ResolveGrant(ctx, actor.ID)
		if err != nil {
			return nil, err
		}
	}

	decision := authz.Decide(authz.Input{
		Actor:           actor,
		Grant:           grant,
		Action:          authz.ActionReadOther,
		TargetPatientID: patientID,
	})
	if !decision.Allowed {
		s.metrics.ScansTotal.WithLabelValues("denied").Inc()
		return nil, decision.Err()
	}

	record, err := s.recordRepo.GetByPatientID(ctx, patientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.ScansTotal.WithLabelValues("not_found").Inc()
			return nil, apperrors.NotFound("medical record")
		}
		return nil, storeErr(err)
	}

	if decision.RequiresAudit {
		entry := &model.AccessLogEntry{
			ID:         uuid.New(),
			RecordID:   record.ID,
			AccessorID: actor.ID,
			Action:     model.AccessActionScan,
			Timestamp:  time.Now(),
		}
		if err := s.recordRepo.AppendAccessLog(ctx, entry); err != nil {
			// The audit entry is part of the authorization contract;
			// a scan that cannot be logged does not happen.
			s.metrics.ScansTotal.WithLabelValues("audit_failed").Inc()
			return nil, storeErr(err)
		}
	}

	s.metrics.ScansTotal.WithLabelValues("ok").Inc()
	return s.project(ctx, record), nil
}

func (s *Service) project(ctx context.Context, record *model.MedicalRecord) *model.RecordProjection {
	name := record.Name
	email := ""
	if user, err := s.userRepo.Get(ctx, record.PatientID); err == nil {
		name = user.Name
		email = user.Email
	}

	return &model.RecordProjection{
		PatientID:        record.PatientID,
		PatientName:      name,
		PatientEmail:     email,
		BloodType:        record.BloodType,
		Allergies:        record.Allergies,
		Medications:      record.Medications,
		Conditions:       record.Conditions,
		EmergencyContact: record.EmergencyContact,
		InsuranceInfo:    record.InsuranceInfo,
		LastUpdated:      record.LastUpdated,
	}
}

// AccessLog lets a patient review who scanned their record.
func (s *Service) AccessLog(ctx context.Context, actor *model.Actor) ([]*model.AccessLogEntry, error) {
	decision := authz.Decide(authz.Input{
		Actor:           actor,
		Action:          authz.ActionReadOwn,
		TargetPatientID: actorID(actor),
	})
	if !decision.Allowed {
		return nil, decision.Err()
	}

	record, err := s.recordRepo.GetByPatientID(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return []*model.AccessLogEntry{}, nil
		}
		return nil, storeErr(err)
	}

	entries, err := s.recordRepo.ListAccessLog(ctx, record.ID)
	if err != nil {
		return nil, storeErr(err)
	}
	return entries, nil
}

func cleanStrings(values []string) []string {
	cleaned := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}

func cleanMedications(meds []model.Medication) []model.Medication {
	cleaned := make([]model.Medication, 0, len(meds))
	for _, m := range meds {
		if strings.TrimSpace(m.Name) == "" {
			continue
		}
		m.Name = strings.TrimSpace(m.Name)
		cleaned = append(cleaned, m)
	}
	return cleaned
}

func trimContact(c model.EmergencyContact) model.EmergencyContact {
	return model.EmergencyContact{
		Name:         strings.TrimSpace(c.Name),
		Relationship: strings.TrimSpace(c.Relationship),
		Phone:        strings.TrimSpace(c.Phone),
	}
}

func actorID(actor *model.Actor) uuid.UUID {
	if actor == nil {
		return uuid.Nil
	}
	return actor.ID
}
