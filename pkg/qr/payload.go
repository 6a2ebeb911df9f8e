// Package qr encodes and decodes the JSON payload carried inside a
// patient's QR code. Rendering the payload as an image is the client's
// job; the server only needs the patient reference back out of a scan.
package qr

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// PayloadVersion is embedded in every payload so old codes can be
// rejected after a breaking format change.
const PayloadVersion = 4

type Payload struct {
	Version   int    `json:"__v"`
	PatientID string `json:"patientId"`
}

// Encode produces the QR payload string for a patient.
func Encode(patientID uuid.UUID) (string, error) {
	data, err := json.Marshal(Payload{
		Version:   PayloadVersion,
		PatientID: patientID.String(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode QR payload: %w", err)
	}
	return string(data), nil
}

// Decode extracts the patient ID from a scanned payload. Raw UUIDs are
// accepted too, since early clients embedded the ID without an envelope.
func Decode(data string) (uuid.UUID, error) {
	if id, err := uuid.Parse(data); err == nil {
		return id, nil
	}

	var payload Payload
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return uuid.Nil, fmt.Errorf("malformed QR payload: %w", err)
	}
	if payload.Version != PayloadVersion {
		return uuid.Nil, fmt.Errorf("unsupported QR payload version %d", payload.Version)
	}

	id, err := uuid.Parse(payload.PatientID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid patient ID in QR payload: %w", err)
	}
	return id, nil
}
