package audit

import "time"

// Event is emitted from domain logic to capture disclosure-relevant actions.
// Keep it transport-agnostic so stores and sinks can fan out.
//
// SubjectID is the patient whose data the event concerns; ActorID is whoever
// acted. An event is visible to both through ListBySubject.
type Event struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Action        string    `json:"action"`
	ActorID       string    `json:"actor_id"`
	SubjectID     string    `json:"subject_id"`
	RecordID      string    `json:"record_id,omitempty"`
	AccessRequest string    `json:"access_request_id,omitempty"`
	Decision      string    `json:"decision,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	Client        string    `json:"client,omitempty"`
	ClientIP      string    `json:"client_ip,omitempty"`
	CorrelationID string    `json:"request_id,omitempty"`
}

// Involves reports whether subject is the actor or the data subject.
func (e Event) Involves(subject string) bool {
	return subject != "" && (e.ActorID == subject || e.SubjectID == subject)
}
