package handler

import (
	"encoding/base64"
	"strings"

	dErrors "medvault/pkg/domain-errors"
	"medvault/pkg/validation"
)

// VerifyRequest carries the base64 key of the record to verify.
type VerifyRequest struct {
	Key string `json:"key" validate:"required,base64"`

	decoded []byte
}

func (r *VerifyRequest) Sanitize() {
	r.Key = strings.TrimSpace(r.Key)
}

func (r *VerifyRequest) Validate() error {
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
