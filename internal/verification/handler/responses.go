package handler

import (
	"time"

	"medvault/internal/verification/models"
)

type VerifyResponse struct {
	RecordID    string    `json:"record_id"`
	Outcome     string    `json:"outcome"`
	Explanation string    `json:"explanation"`
	Retryable   bool      `json:"retryable"`
	CheckedAt   time.Time `json:"checked_at"`
}

func toVerifyResponse(r *models.Result) VerifyResponse {
	return VerifyResponse{
		RecordID:    r.RecordID.String(),
		Outcome:     string(r.Outcome),
		Explanation: r.Explanation,
		Retryable:   r.Retryable,
		CheckedAt:   r.CheckedAt,
	}
}
