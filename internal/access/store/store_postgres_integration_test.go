//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"medvault/internal/access/models"
	"medvault/internal/access/store"
	recordstore "medvault/internal/records/store"
	id "medvault/pkg/domain"
	"medvault/pkg/platform/sentinel"
	"medvault/pkg/testutil"
	"medvault/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	records  *recordstore.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.records = recordstore.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "access_requests", "records"))
}

// newRequest inserts the referenced record first to satisfy the foreign key.
func (s *PostgresStoreSuite) newRequest() *models.Request {
	record := testutil.NewRecordBuilder().Build()
	s.Require().NoError(s.records.Put(context.Background(), record))
	return testutil.NewRequestBuilder().WithRecord(record).Build()
}

func (s *PostgresStoreSuite) TestPartialUniqueIndex() {
	ctx := context.Background()
	req := s.newRequest()
	s.Require().NoError(s.store.Create(ctx, req))

	dup := *req
	dup.ID = id.NewRequestID()
	s.ErrorIs(s.store.Create(ctx, &dup), sentinel.ErrConflict)

	_, err := s.store.Transition(ctx, req.ID, models.StateRequested, models.StateDeclined, time.Now())
	s.Require().NoError(err)
	s.NoError(s.store.Create(ctx, &dup), "a decided request no longer blocks the pair")

	reused := *s.newRequest()
	reused.ID = req.ID
	s.ErrorIs(s.store.Create(ctx, &reused), sentinel.ErrConflict, "request IDs are unique")
}

func (s *PostgresStoreSuite) TestTransitionCompareAndSet() {
	ctx := context.Background()
	req := s.newRequest()
	s.Require().NoError(s.store.Create(ctx, req))

	result := testutil.RunConcurrent(20, func(i int) error {
		to := models.StateGranted
		if i%2 == 1 {
			to = models.StateDeclined
		}
		_, err := s.store.Transition(ctx, req.ID, models.StateRequested, to, time.Now())
		return err
	})
	s.Equal(int32(1), result.Successes)
	s.Equal(int32(19), result.InvalidStates)

	_, err := s.store.Transition(ctx, id.NewRequestID(), models.StateRequested, models.StateGranted, time.Now())
	s.ErrorIs(err, sentinel.ErrNotFound)

	got, err := s.store.Get(ctx, req.ID)
	s.Require().NoError(err)
	s.True(got.State.IsTerminal())
	s.NotNil(got.DecidedAt)
}

func (s *PostgresStoreSuite) TestHasGrantedAndLists() {
	ctx := context.Background()
	req := s.newRequest()
	s.Require().NoError(s.store.Create(ctx, req))

	granted, err := s.store.HasGranted(ctx, req.RequesterID, req.RecordID)
	s.Require().NoError(err)
	s.False(granted)

	_, err = s.store.Transition(ctx, req.ID, models.StateRequested, models.StateGranted, time.Now())
	s.Require().NoError(err)
	granted, err = s.store.HasGranted(ctx, req.RequesterID, req.RecordID)
	s.Require().NoError(err)
	s.True(granted)

	inbox, err := s.store.ListByOwner(ctx, req.OwnerID, models.Filter{State: models.StateGranted})
	s.Require().NoError(err)
	s.Len(inbox, 1)
	outbox, err := s.store.ListByRequester(ctx, req.RequesterID, models.Filter{State: models.StateRequested})
	s.Require().NoError(err)
	s.Empty(outbox)
}

func (s *PostgresStoreSuite) TestGetForUpdateInsideTx() {
	ctx := context.Background()
	req := s.newRequest()
	s.Require().NoError(s.store.Create(ctx, req))

	tx, err := s.postgres.DB.BeginTx(ctx, nil)
	s.Require().NoError(err)
	defer func() { _ = tx.Rollback() }()

	got, err := store.NewPostgresTx(tx).Get(ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(req.ID, got.ID)
	s.Equal(models.StateRequested, got.State)
}
