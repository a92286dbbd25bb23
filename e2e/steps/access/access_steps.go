package access

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"

	id "medvault/pkg/domain"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POSTWithHeaders(path string, body any, headers map[string]string) error
	GET(path string, headers map[string]string) error
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	MintToken(caller id.Caller) (string, error)
	SetLedgerAvailable(up bool)
}

// RegisterSteps registers the record, access request and verification steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &accessSteps{
		tc:          tc,
		actors:      map[string]actor{},
		authorities: map[string]id.AuthorityID{},
	}

	ctx.Step(`^a patient named "([^"]*)"$`, steps.patientNamed)
	ctx.Step(`^a doctor named "([^"]*)" at authority "([^"]*)"$`, steps.doctorNamed)

	ctx.Step(`^"([^"]*)" creates a record for "([^"]*)" with "([^"]*)" set to "([^"]*)"$`, steps.createRecord)
	ctx.Step(`^"([^"]*)" requests access to the record$`, steps.requestAccess)
	ctx.Step(`^"([^"]*)" requests access to the record with idempotency key "([^"]*)"$`, steps.requestAccessWithKey)
	ctx.Step(`^"([^"]*)" (approves|declines|withdraws) the request$`, steps.decide)
	ctx.Step(`^"([^"]*)" lists (?:her|his|their) (inbox|outbox)$`, steps.list)
	ctx.Step(`^"([^"]*)" retrieves the record key$`, steps.retrieveKey)
	ctx.Step(`^"([^"]*)" opens the record with the retrieved key$`, steps.openRecord)
	ctx.Step(`^"([^"]*)" verifies the record with the retrieved key$`, steps.verify)
	ctx.Step(`^"([^"]*)" reads (?:her|his|their) audit trail$`, steps.readAudit)

	ctx.Step(`^the ledger is unavailable$`, func(context.Context) error {
		tc.SetLedgerAvailable(false)
		return nil
	})
	ctx.Step(`^the ledger is available again$`, func(context.Context) error {
		tc.SetLedgerAvailable(true)
		return nil
	})

	ctx.Step(`^the request state should be "([^"]*)"$`, steps.requestStateShouldBe)
	ctx.Step(`^the request id should match the previous request$`, steps.requestIDShouldMatchPrevious)
	ctx.Step(`^the request id should differ from the previous request$`, steps.requestIDShouldDiffer)
	ctx.Step(`^the response should list (\d+) requests?$`, steps.responseShouldListRequests)
	ctx.Step(`^the response should list (\d+) audit events? with action "([^"]*)"$`, steps.responseShouldListAuditEvents)
}

type actor struct {
	caller id.Caller
	token  string
}

type accessSteps struct {
	tc          TestContext
	actors      map[string]actor
	authorities map[string]id.AuthorityID

	recordID        string
	requestID       string
	previousRequest string
	key             string
}

func (s *accessSteps) patientNamed(ctx context.Context, name string) error {
	return s.register(name, id.Caller{SubjectID: id.NewSubjectID(), Role: id.RolePatient})
}

func (s *accessSteps) doctorNamed(ctx context.Context, name, authority string) error {
	authorityID, ok := s.authorities[authority]
	if !ok {
		authorityID = id.NewAuthorityID()
		s.authorities[authority] = authorityID
	}
	return s.register(name, id.Caller{SubjectID: id.NewSubjectID(), Role: id.RoleDoctor, AuthorityID: authorityID})
}

func (s *accessSteps) register(name string, caller id.Caller) error {
	token, err := s.tc.MintToken(caller)
	if err != nil {
		return fmt.Errorf("mint token for %s: %w", name, err)
	}
	s.actors[name] = actor{caller: caller, token: token}
	return nil
}

func (s *accessSteps) auth(name string) (map[string]string, error) {
	a, ok := s.actors[name]
	if !ok {
		return nil, fmt.Errorf("unknown actor %q", name)
	}
	return map[string]string{"Authorization": "Bearer " + a.token}, nil
}

func (s *accessSteps) post(name, path string, body any, extra map[string]string) error {
	headers, err := s.auth(name)
	if err != nil {
		return err
	}
	for k, v := range extra {
		headers[k] = v
	}
	return s.tc.POSTWithHeaders(path, body, headers)
}

func (s *accessSteps) get(name, path string) error {
	headers, err := s.auth(name)
	if err != nil {
		return err
	}
	return s.tc.GET(path, headers)
}

func (s *accessSteps) createRecord(ctx context.Context, doctor, patient, field, value string) error {
	owner, ok := s.actors[patient]
	if !ok {
		return fmt.Errorf("unknown patient %q", patient)
	}
	body := map[string]any{
		"owner_id": owner.caller.SubjectID.String(),
		"data":     map[string]string{field: value},
	}
	if err := s.post(doctor, "/records", body, nil); err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() != 201 {
		return nil
	}
	recordID, err := s.stringField("id")
	if err != nil {
		return err
	}
	s.recordID = recordID
	return nil
}

func (s *accessSteps) requestAccess(ctx context.Context, doctor string) error {
	return s.requestAccessWithKey(ctx, doctor, "")
}

func (s *accessSteps) requestAccessWithKey(ctx context.Context, doctor, key string) error {
	var headers map[string]string
	if key != "" {
		headers = map[string]string{"Idempotency-Key": key}
	}
	if err := s.post(doctor, "/records/"+s.recordID+"/access-requests", nil, headers); err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() == 201 {
		requestID, err := s.stringField("id")
		if err != nil {
			return err
		}
		s.previousRequest, s.requestID = s.requestID, requestID
	}
	return nil
}

func (s *accessSteps) decide(ctx context.Context, name, action string) error {
	var path string
	switch action {
	case "approves":
		path = "/approve"
	case "declines":
		path = "/decline"
	case "withdraws":
		path = "/withdraw"
	}
	return s.post(name, "/access-requests/"+s.requestID+path, nil, nil)
}

func (s *accessSteps) list(ctx context.Context, name, box string) error {
	return s.get(name, "/access-requests/"+box)
}

func (s *accessSteps) retrieveKey(ctx context.Context, name string) error {
	if err := s.get(name, "/records/"+s.recordID+"/key"); err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() == 200 {
		key, err := s.stringField("key")
		if err != nil {
			return err
		}
		s.key = key
	}
	return nil
}

func (s *accessSteps) openRecord(ctx context.Context, name string) error {
	return s.post(name, "/records/"+s.recordID+"/open", map[string]string{"key": s.key}, nil)
}

func (s *accessSteps) verify(ctx context.Context, name string) error {
	return s.post(name, "/records/"+s.recordID+"/verify", map[string]string{"key": s.key}, nil)
}

func (s *accessSteps) readAudit(ctx context.Context, name string) error {
	return s.get(name, "/audit/me")
}

func (s *accessSteps) requestStateShouldBe(ctx context.Context, state string) error {
	got, err := s.stringField("state")
	if err != nil {
		return err
	}
	if got != state {
		return fmt.Errorf("expected state %q but got %q", state, got)
	}
	return nil
}

func (s *accessSteps) requestIDShouldMatchPrevious(ctx context.Context) error {
	if s.requestID == "" || s.requestID != s.previousRequest {
		return fmt.Errorf("expected replay of %q, got %q", s.previousRequest, s.requestID)
	}
	return nil
}

func (s *accessSteps) requestIDShouldDiffer(ctx context.Context) error {
	if s.requestID == s.previousRequest {
		return fmt.Errorf("expected a new request, got %q again", s.requestID)
	}
	return nil
}

func (s *accessSteps) responseShouldListRequests(ctx context.Context, n int) error {
	items, err := s.listField("requests")
	if err != nil {
		return err
	}
	if len(items) != n {
		return fmt.Errorf("expected %d requests but got %d: %s", n, len(items), s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *accessSteps) responseShouldListAuditEvents(ctx context.Context, n int, action string) error {
	items, err := s.listField("events")
	if err != nil {
		return err
	}
	count := 0
	for _, item := range items {
		if event, ok := item.(map[string]any); ok && event["action"] == action {
			count++
		}
	}
	if count != n {
		return fmt.Errorf("expected %d %s events but got %d: %s", n, action, count, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *accessSteps) stringField(field string) (string, error) {
	value, err := s.tc.GetResponseField(field)
	if err != nil {
		return "", err
	}
	str, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("field %s is %T, not a string", field, value)
	}
	return str, nil
}

func (s *accessSteps) listField(field string) ([]any, error) {
	value, err := s.tc.GetResponseField(field)
	if err != nil {
		return nil, err
	}
	items, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("field %s is %T, not a list", field, value)
	}
	return items, nil
}
