package handler_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	ledgermocks "medvault/internal/ledger/mocks"
	"medvault/internal/records/handler"
	"medvault/internal/records/service"
	recordstore "medvault/internal/records/store"
	"medvault/internal/vault"
	vaultstore "medvault/internal/vault/store"
	id "medvault/pkg/domain"
	"medvault/pkg/requestcontext"
)

type RecordHandlerSuite struct {
	suite.Suite
	router  *chi.Mux
	ledger  *ledgermocks.MockClient
	vault   *vault.Vault
	doctor  id.Caller
	patient id.Caller
}

func TestRecordHandlerSuite(t *testing.T) {
	suite.Run(t, new(RecordHandlerSuite))
}

func (s *RecordHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.ledger = ledgermocks.NewMockClient(ctrl)
	wrapper, err := vault.NewWrapper(bytes.Repeat([]byte{7}, vault.KeySize))
	s.Require().NoError(err)
	s.vault = vault.New(vaultstore.New(), wrapper)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.New(recordstore.New(), s.vault, s.ledger, service.WithLogger(logger))
	s.router = chi.NewRouter()
	handler.New(svc, logger).Register(s.router)

	s.doctor = id.Caller{SubjectID: id.NewSubjectID(), Role: id.RoleDoctor, AuthorityID: id.NewAuthorityID()}
	s.patient = id.Caller{SubjectID: id.NewSubjectID(), Role: id.RolePatient}
}

func (s *RecordHandlerSuite) do(caller id.Caller, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req = req.WithContext(requestcontext.WithCaller(req.Context(), caller))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *RecordHandlerSuite) create() handler.RecordResponse {
	s.ledger.EXPECT().Anchor(gomock.Any(), gomock.Any()).Return("ref-1", nil)
	body := `{"owner_id":"` + s.patient.SubjectID.String() + `","data":{"diagnosis":"asthma","dose_mg":5}}`
	rec := s.do(s.doctor, http.MethodPost, "/records", body)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var out handler.RecordResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (s *RecordHandlerSuite) TestCreateAndGet() {
	created := s.create()
	s.Equal("ref-1", created.AnchorRef)
	s.Equal(s.patient.SubjectID.String(), created.OwnerID)
	s.NotEmpty(created.Payload)

	rec := s.do(s.patient, http.MethodGet, "/records/"+created.ID, "")
	s.Equal(http.StatusOK, rec.Code)

	rec = s.do(s.patient, http.MethodGet, "/records", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var list handler.RecordListResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &list))
	s.Len(list.Records, 1)

	rec = s.do(s.doctor, http.MethodGet, "/authorities/me/records", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &list))
	s.Len(list.Records, 1)
}

func (s *RecordHandlerSuite) TestCreateErrors() {
	s.Run("invalid owner id", func() {
		rec := s.do(s.doctor, http.MethodPost, "/records", `{"owner_id":"nope","data":{}}`)
		s.Equal(http.StatusBadRequest, rec.Code)
		s.Contains(rec.Body.String(), "owner_id must be a valid uuid")
	})
	s.Run("missing data", func() {
		rec := s.do(s.doctor, http.MethodPost, "/records", `{"owner_id":"`+s.patient.SubjectID.String()+`"}`)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
	s.Run("patient forbidden", func() {
		rec := s.do(s.patient, http.MethodPost, "/records", `{"owner_id":"`+s.patient.SubjectID.String()+`","data":{}}`)
		s.Equal(http.StatusForbidden, rec.Code)
	})
}

func (s *RecordHandlerSuite) TestGetErrors() {
	s.Equal(http.StatusBadRequest, s.do(s.doctor, http.MethodGet, "/records/not-a-uuid", "").Code)
	s.Equal(http.StatusNotFound, s.do(s.doctor, http.MethodGet, "/records/"+id.NewRecordID().String(), "").Code)

	created := s.create()
	stranger := id.Caller{SubjectID: id.NewSubjectID(), Role: id.RolePatient}
	s.Equal(http.StatusForbidden, s.do(stranger, http.MethodGet, "/records/"+created.ID, "").Code)
}

func (s *RecordHandlerSuite) TestOpen() {
	created := s.create()
	recordID, err := id.ParseRecordID(created.ID)
	s.Require().NoError(err)
	grant, err := s.vault.Release(context.Background(), recordID, s.patient.SubjectID)
	s.Require().NoError(err)

	s.Run("right key", func() {
		body := `{"key":"` + base64.StdEncoding.EncodeToString(grant.Key) + `"}`
		rec := s.do(s.patient, http.MethodPost, "/records/"+created.ID+"/open", body)
		s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
		s.Contains(rec.Body.String(), `"data":{"diagnosis":"asthma","dose_mg":5}`)
	})

	s.Run("wrong key", func() {
		body := `{"key":"` + base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{1}, 32)) + `"}`
		rec := s.do(s.patient, http.MethodPost, "/records/"+created.ID+"/open", body)
		s.Equal(http.StatusUnprocessableEntity, rec.Code)
		s.Contains(rec.Body.String(), "invalid_key")
	})

	s.Run("key not base64", func() {
		rec := s.do(s.patient, http.MethodPost, "/records/"+created.ID+"/open", `{"key":"***"}`)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}
