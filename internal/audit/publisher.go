package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"medvault/internal/platform/privacy"
	"medvault/pkg/requestcontext"
)

// Publisher captures structured audit events. It is append-only: events go to
// the Store first, then to every Sink.
type Publisher struct {
	store  Store
	sinks  []Sink
	events chan queued
	wg     sync.WaitGroup
	logger *slog.Logger
	async  bool
	now    func() time.Time
}

type queued struct {
	ctx   context.Context
	event Event
}

// PublisherOption configures the Publisher.
type PublisherOption func(*Publisher)

// WithAsyncBuffer enables async processing with the specified buffer size.
// Events are queued and persisted in a background goroutine.
func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.events = make(chan queued, size)
			p.async = true
		}
	}
}

// WithPublisherLogger sets a logger for async and sink error reporting.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithSink adds a fan-out destination such as the Kafka sink.
func WithSink(sink Sink) PublisherOption {
	return func(p *Publisher) {
		if sink != nil {
			p.sinks = append(p.sinks, sink)
		}
	}
}

// WithPublisherClock overrides the event timestamp source.
func WithPublisherClock(now func() time.Time) PublisherOption {
	return func(p *Publisher) {
		if now != nil {
			p.now = now
		}
	}
}

func NewPublisher(store Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{store: store, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	if p.async {
		p.wg.Add(1)
		go p.processEvents()
	}
	return p
}

// processEvents runs in a goroutine and persists events from the channel.
func (p *Publisher) processEvents() {
	defer p.wg.Done()
	for q := range p.events {
		if err := p.persist(q.ctx, q.event); err != nil {
			p.logError("failed to persist audit event", err, q.event)
		}
	}
}

// Close shuts down the async publisher and waits for pending events to drain.
func (p *Publisher) Close() {
	if p.async && p.events != nil {
		close(p.events)
		p.wg.Wait()
	}
}

// Emit records an event. Missing ID, timestamp and client fields are filled
// from the request context.
func (p *Publisher) Emit(ctx context.Context, base Event) error {
	base = p.enrich(ctx, base)
	if p.async {
		// Non-blocking send; drop event if buffer is full to avoid blocking hot path
		select {
		case p.events <- queued{ctx: context.WithoutCancel(ctx), event: base}:
			return nil
		default:
			if p.logger != nil {
				p.logger.Warn("audit buffer full, event dropped",
					"action", base.Action,
					"actor_id", base.ActorID,
				)
			}
			return nil
		}
	}
	return p.persist(ctx, base)
}

func (p *Publisher) persist(ctx context.Context, event Event) error {
	if err := p.store.Append(ctx, event); err != nil {
		return err
	}
	for _, sink := range p.sinks {
		if err := sink.Publish(ctx, event); err != nil {
			p.logError("audit sink publish failed", err, event)
		}
	}
	return nil
}

func (p *Publisher) enrich(ctx context.Context, e Event) Event {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = p.now().UTC()
	}
	if e.CorrelationID == "" {
		e.CorrelationID = requestcontext.RequestID(ctx)
	}
	if ip := requestcontext.ClientIP(ctx); e.ClientIP == "" && ip != "" {
		e.ClientIP = privacy.MaskIP(ip)
	}
	if e.Client == "" {
		e.Client = DescribeClient(requestcontext.UserAgent(ctx))
	}
	return e
}

func (p *Publisher) logError(msg string, err error, event Event) {
	if p.logger == nil {
		return
	}
	p.logger.Error(msg,
		"error", err,
		"action", event.Action,
		"actor_id", event.ActorID,
	)
}

// ListBySubject returns the audit trail visible to subject.
func (p *Publisher) ListBySubject(ctx context.Context, subject string) ([]Event, error) {
	return p.store.ListBySubject(ctx, subject)
}
