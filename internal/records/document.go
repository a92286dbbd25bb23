package records

import (
	"encoding/json"
	"fmt"
	"time"

	"medvault/pkg/canonhash"
	"medvault/pkg/detail"
)

// Document is the plaintext sealed inside a record payload. It repeats the
// record metadata so the anchored fingerprint binds data and provenance.
type Document struct {
	RecordID          string      `json:"record_id"`
	PatientID         string      `json:"patient_id"`
	CreatorID         string      `json:"creator_id"`
	HealthAuthorityID string      `json:"health_authority_id"`
	CreatedAt         time.Time   `json:"created_at"`
	Data              *detail.Map `json:"data"`
}

// Encode returns the document's JSON encoding, which keeps the detail tree's
// insertion order, together with the fingerprint of its canonical form.
func (d *Document) Encode() ([]byte, string, error) {
	plaintext, err := json.Marshal(d)
	if err != nil {
		return nil, "", fmt.Errorf("encode record document: %w", err)
	}
	fp, _, err := canonhash.SumJSON(plaintext)
	if err != nil {
		return nil, "", fmt.Errorf("fingerprint record document: %w", err)
	}
	return plaintext, fp, nil
}

// DecodeDocument parses a decrypted payload and fingerprints it exactly as
// Encode did at creation time.
func DecodeDocument(plaintext []byte) (*Document, string, error) {
	fp, _, err := canonhash.SumJSON(plaintext)
	if err != nil {
		return nil, "", fmt.Errorf("fingerprint record document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(plaintext, &doc); err != nil {
		return nil, "", fmt.Errorf("decode record document: %w", err)
	}
	return &doc, fp, nil
}
