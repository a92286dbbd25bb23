package ledger_test

//go:generate mockgen -source=ledger.go -destination=mocks/mocks.go -package=mocks Client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"medvault/internal/ledger"
	"medvault/internal/ledger/mocks"
	"medvault/pkg/platform/circuit"
)

const testFingerprint = "sha256:00000000000000000000000000000000000000000000000000000000000000aa"

type ResilientSuite struct {
	suite.Suite
	ctx       context.Context
	ctrl      *gomock.Controller
	next      *mocks.MockClient
	metrics   *ledger.Metrics
	now       time.Time
	resilient *ledger.Resilient
}

func TestResilientSuite(t *testing.T) {
	suite.Run(t, new(ResilientSuite))
}

func (s *ResilientSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.next = mocks.NewMockClient(s.ctrl)
	s.metrics = ledger.NewMetrics(prometheus.NewRegistry())
	s.now = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	breaker := circuit.New("ledger",
		circuit.WithFailureThreshold(2),
		circuit.WithSuccessThreshold(1),
		circuit.WithCooldown(time.Minute),
		circuit.WithClock(func() time.Time { return s.now }),
	)
	s.resilient = ledger.NewResilient(s.next,
		ledger.WithBreaker(breaker),
		ledger.WithMetrics(s.metrics),
		ledger.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func (s *ResilientSuite) TearDownTest() {
	s.ctrl.Finish()
}

func unavailable() error {
	return ledger.NewError(ledger.CategoryUnavailable, "check", "connection refused", nil)
}

func (s *ResilientSuite) TestPassesThroughResults() {
	s.next.EXPECT().Anchor(gomock.Any(), testFingerprint).Return("ref-1", nil)
	s.next.EXPECT().Check(gomock.Any(), "ref-1", testFingerprint).
		Return(ledger.CheckResult{Match: true, Explanation: "ok"}, nil)

	ref, err := s.resilient.Anchor(s.ctx, testFingerprint)
	s.Require().NoError(err)
	s.Equal("ref-1", ref)

	res, err := s.resilient.Check(s.ctx, ref, testFingerprint)
	s.Require().NoError(err)
	s.True(res.Match)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Calls.WithLabelValues("check", "ok")))
}

func (s *ResilientSuite) TestOpensAfterRetryableFailuresAndFailsFast() {
	s.next.EXPECT().Check(gomock.Any(), "ref", testFingerprint).Return(ledger.CheckResult{}, unavailable()).Times(2)

	for range 2 {
		_, err := s.resilient.Check(s.ctx, "ref", testFingerprint)
		s.True(ledger.IsRetryable(err))
	}

	_, err := s.resilient.Check(s.ctx, "ref", testFingerprint)
	s.ErrorIs(err, ledger.ErrCircuitOpen)
	s.True(ledger.IsRetryable(err))
	s.ErrorIs(s.resilient.Ready(s.ctx), ledger.ErrCircuitOpen)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.CircuitState))
}

func (s *ResilientSuite) TestRejectionsDoNotTripBreaker() {
	rejected := ledger.NewError(ledger.CategoryRejected, "anchor", "bad fingerprint", nil)
	s.next.EXPECT().Anchor(gomock.Any(), "junk").Return("", rejected).Times(3)

	for range 3 {
		_, err := s.resilient.Anchor(s.ctx, "junk")
		s.Equal(ledger.CategoryRejected, ledger.CategoryOf(err))
	}
	s.NoError(s.resilient.Ready(s.ctx))
}

func (s *ResilientSuite) TestProbeAfterCooldownClosesCircuit() {
	s.next.EXPECT().Check(gomock.Any(), "ref", testFingerprint).Return(ledger.CheckResult{}, unavailable()).Times(2)
	for range 2 {
		_, _ = s.resilient.Check(s.ctx, "ref", testFingerprint)
	}
	s.Require().Error(s.resilient.Ready(s.ctx))

	s.now = s.now.Add(time.Minute)
	s.next.EXPECT().Check(gomock.Any(), "ref", testFingerprint).Return(ledger.CheckResult{Match: true}, nil)

	res, err := s.resilient.Check(s.ctx, "ref", testFingerprint)

	s.Require().NoError(err)
	s.True(res.Match)
	s.NoError(s.resilient.Ready(s.ctx))
	s.Equal(0.0, testutil.ToFloat64(s.metrics.CircuitState))
}

func (s *ResilientSuite) TestContextDeadlineCountsAsRetryable() {
	s.next.EXPECT().Check(gomock.Any(), "ref", testFingerprint).Return(ledger.CheckResult{}, context.DeadlineExceeded)

	_, err := s.resilient.Check(s.ctx, "ref", testFingerprint)

	s.True(errors.Is(err, context.DeadlineExceeded))
	s.True(ledger.IsRetryable(err))
}
