package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// BloodTypes is the closed set of accepted blood groups.
var BloodTypes = []string{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"}

// ValidBloodType reports whether bt is an accepted blood group.
func ValidBloodType(bt string) bool {
	for _, v := range BloodTypes {
		if v == bt {
			return true
		}
	}
	return false
}

// MedicalRecord is one patient's emergency medical data. PatientID is
// unique: a patient has at most one record, replaced wholesale on save.
type MedicalRecord struct {
	Base
	PatientID        uuid.UUID        `json:"patient_id" db:"patient_id"`
	Name             string           `json:"name" db:"name"`
	BloodType        string           `json:"blood_type" db:"blood_type"`
	Allergies        pq.StringArray   `json:"allergies" db:"allergies"`
	Medications      []Medication     `json:"medications" db:"-"`
	Conditions       pq.StringArray   `json:"conditions" db:"conditions"`
	EmergencyContact EmergencyContact `json:"emergency_contact" db:"-"`
	InsuranceInfo    InsuranceInfo    `json:"insurance_info" db:"-"`
	LastUpdated      time.Time        `json:"last_updated" db:"last_updated"`
}

type Medication struct {
	Name      string `json:"name"`
	Dosage    string `json:"dosage"`
	Frequency string `json:"frequency"`
}

type EmergencyContact struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
	Phone        string `json:"phone"`
}

type InsuranceInfo struct {
	Provider     string `json:"provider"`
	PolicyNumber string `json:"policy_number"`
	GroupNumber  string `json:"group_number"`
}

// AccessLogEntry is one append-only audit row for a record. Entries are
// immutable once written.
type AccessLogEntry struct {
	ID         uuid.UUID `json:"id" db:"id"`
	RecordID   uuid.UUID `json:"record_id" db:"record_id"`
	AccessorID uuid.UUID `json:"accessor_id" db:"accessor_id"`
	Action     string    `json:"action" db:"action"`
	Timestamp  time.Time `json:"timestamp" db:"created_at"`
}

// Access log action types
const (
	AccessActionScan = "scan"
	AccessActionView = "view"
)

// UpsertRecordRequest is the full-replace save payload.
type UpsertRecordRequest struct {
	Name             string           `json:"name"`
	BloodType        string           `json:"blood_type" binding:"omitempty,bloodtype"`
	Allergies        []string         `json:"allergies"`
	Medications      []Medication     `json:"medications"`
	Conditions       []string         `json:"conditions"`
	EmergencyContact EmergencyContact `json:"emergency_contact"`
	InsuranceInfo    InsuranceInfo    `json:"insurance_info"`
}

// RecordProjection is the staff-facing read view of a record. It never
// carries the access log; the log is write-only from the staff side.
type RecordProjection struct {
	PatientID        uuid.UUID        `json:"patient_id"`
	PatientName      string           `json:"patient_name"`
	PatientEmail     string           `json:"patient_email,omitempty"`
	BloodType        string           `json:"blood_type"`
	Allergies        []string         `json:"allergies"`
	Medications      []Medication     `json:"medications"`
	Conditions       []string         `json:"conditions"`
	EmergencyContact EmergencyContact `json:"emergency_contact"`
	InsuranceInfo    InsuranceInfo    `json:"insurance_info"`
	LastUpdated      time.Time        `json:"last_updated"`
}

// OwnRecordResponse is the owner-facing view, including the QR payload.
type OwnRecordResponse struct {
	PatientID        uuid.UUID        `json:"patient_id"`
	Name             string           `json:"name"`
	BloodType        string           `json:"blood_type"`
	Allergies        []string         `json:"allergies"`
	Medications      []Medication     `json:"medications"`
	Conditions       []string         `json:"conditions"`
	EmergencyContact EmergencyContact `json:"emergency_contact"`
	InsuranceInfo    InsuranceInfo    `json:"insurance_info"`
	QRCode           string           `json:"qr_code"`
	LastUpdated      time.Time        `json:"last_updated"`
	Exists           bool             `json:"exists"`
}
