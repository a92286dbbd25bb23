package handler

import (
	"time"

	"medvault/internal/access/models"
	"medvault/internal/vault"
)

type AccessRequestResponse struct {
	ID          string     `json:"id"`
	RequesterID string     `json:"requester_id"`
	RecordID    string     `json:"record_id"`
	OwnerID     string     `json:"owner_id"`
	State       string     `json:"state"`
	CreatedAt   time.Time  `json:"created_at"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
}

type AccessRequestListResponse struct {
	Requests []AccessRequestResponse `json:"requests"`
}

// KeyResponse carries a released record key. Key is base64 in JSON.
type KeyResponse struct {
	RecordID  string    `json:"record_id"`
	GranteeID string    `json:"grantee_id"`
	Key       []byte    `json:"key"`
	GrantedAt time.Time `json:"granted_at"`
}

func toAccessRequestResponse(r *models.Request) AccessRequestResponse {
	return AccessRequestResponse{
		ID:          r.ID.String(),
		RequesterID: r.RequesterID.String(),
		RecordID:    r.RecordID.String(),
		OwnerID:     r.OwnerID.String(),
		State:       string(r.State),
		CreatedAt:   r.CreatedAt,
		DecidedAt:   r.DecidedAt,
	}
}

func toAccessRequestListResponse(requests []*models.Request) AccessRequestListResponse {
	out := make([]AccessRequestResponse, 0, len(requests))
	for _, r := range requests {
		out = append(out, toAccessRequestResponse(r))
	}
	return AccessRequestListResponse{Requests: out}
}

func toKeyResponse(g *vault.KeyGrant) KeyResponse {
	return KeyResponse{
		RecordID:  g.RecordID.String(),
		GranteeID: g.GranteeID.String(),
		Key:       g.Key,
		GrantedAt: g.GrantedAt,
	}
}
