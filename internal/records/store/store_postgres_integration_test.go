//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"medvault/internal/records/models"
	"medvault/internal/records/store"
	id "medvault/pkg/domain"
	"medvault/pkg/platform/sentinel"
	"medvault/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
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
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "records"))
}

func (s *PostgresStoreSuite) newRecord(owner id.SubjectID, authority id.AuthorityID, createdAt time.Time) *models.Record {
	return &models.Record{
		ID:          id.NewRecordID(),
		OwnerID:     owner,
		CreatorID:   id.NewSubjectID(),
		AuthorityID: authority,
		CreatedAt:   createdAt.UTC().Truncate(time.Microsecond),
		AnchorRef:   "ref-" + owner.String(),
		Payload:     []byte{0x01, 0x02, 0x03},
	}
}

func (s *PostgresStoreSuite) TestPutGetRoundTrip() {
	ctx := context.Background()
	record := s.newRecord(id.NewSubjectID(), id.NewAuthorityID(), time.Now())

	s.Require().NoError(s.store.Put(ctx, record))
	s.ErrorIs(s.store.Put(ctx, record), sentinel.ErrConflict)

	got, err := s.store.Get(ctx, record.ID)
	s.Require().NoError(err)
	s.Equal(record.OwnerID, got.OwnerID)
	s.Equal(record.CreatorID, got.CreatorID)
	s.Equal(record.AuthorityID, got.AuthorityID)
	s.Equal(record.AnchorRef, got.AnchorRef)
	s.Equal(record.Payload, got.Payload)
	s.True(record.CreatedAt.Equal(got.CreatedAt))

	_, err = s.store.Get(ctx, id.NewRecordID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestListsAreNewestFirst() {
	ctx := context.Background()
	owner := id.NewSubjectID()
	authority := id.NewAuthorityID()
	base := time.Now().Add(-time.Hour)
	older := s.newRecord(owner, authority, base)
	newer := s.newRecord(owner, authority, base.Add(time.Minute))
	s.Require().NoError(s.store.Put(ctx, older))
	s.Require().NoError(s.store.Put(ctx, newer))
	s.Require().NoError(s.store.Put(ctx, s.newRecord(id.NewSubjectID(), id.NewAuthorityID(), base)))

	byOwner, err := s.store.ListByOwner(ctx, owner)
	s.Require().NoError(err)
	s.Require().Len(byOwner, 2)
	s.Equal(newer.ID, byOwner[0].ID)
	s.Equal(older.ID, byOwner[1].ID)

	byAuthority, err := s.store.ListByCreatorAuthority(ctx, authority)
	s.Require().NoError(err)
	s.Len(byAuthority, 2)
}
