package handler

import (
	"encoding/base64"
	"strings"

	dErrors "medvault/pkg/domain-errors"
	"medvault/pkg/detail"
	"medvault/pkg/validation"
)

// CreateRecordRequest is the body of POST /records.
type CreateRecordRequest struct {
	OwnerID string      `json:"owner_id" validate:"required,uuid"`
	Data    *detail.Map `json:"data" validate:"required"`
}

func (r *CreateRecordRequest) Sanitize() {
	r.OwnerID = strings.TrimSpace(r.OwnerID)
}

func (r *CreateRecordRequest) Validate() error {
	return validation.Validate(r)
}

// OpenRecordRequest carries a base64 record key.
type OpenRecordRequest struct {
	Key string `json:"key" validate:"required,base64"`

	decoded []byte
}

func (r *OpenRecordRequest) Sanitize() {
	r.Key = strings.TrimSpace(r.Key)
}

func (r *OpenRecordRequest) Validate() error {
	if err := validation.Validate(r); err != nil {
		return err
	}
	key, err := base64.StdEncoding.DecodeString(r.Key)
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "key must be base64 encoded")
	}
	r.decoded = key
	return nil
}
