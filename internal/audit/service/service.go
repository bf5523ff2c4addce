package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"diocese/internal/audit"
	"diocese/internal/audit/store"
	"diocese/internal/platform/metrics"
	"diocese/pkg/apperrors"
	"diocese/pkg/platform/circuit"
	"diocese/pkg/requestcontext"
)

const (
	appendTimeout  = 2 * time.Second
	retryBatchSize = 64
)

// Sink receives a copy of every entry that lands in the ledger, for fan-out
// to external systems. Delivery is best effort.
type Sink interface {
	Publish(ctx context.Context, entry audit.Entry) error
}

// Service writes and reads the audit ledger. Record never returns an error
// to the caller: a failed append goes to a bounded retry queue that a
// background worker drains, behind a circuit breaker so a dead store is not
// hammered on every mutation.
type Service struct {
	store   store.Store
	sink    Sink
	queue   *retryQueue
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *metrics.Metrics

	retryInterval time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithSink attaches a fan-out sink for recorded entries.
func WithSink(sink Sink) Option {
	return func(s *Service) { s.sink = sink }
}

// WithQueueSize bounds the retry queue.
func WithQueueSize(n int) Option {
	return func(s *Service) { s.queue = newRetryQueue(n) }
}

// WithRetryInterval sets how often the background worker drains the queue.
func WithRetryInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.retryInterval = d
		}
	}
}

func New(st store.Store, logger *slog.Logger, m *metrics.Metrics, opts ...Option) *Service {
	s := &Service{
		store:         st,
		queue:         newRetryQueue(1024),
		breaker:       circuit.New("audit-store"),
		logger:        logger,
		metrics:       m,
		retryInterval: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record appends one entry to the ledger. Actor, client and request metadata
// come from the context; oldValue and newValue are marshalled snapshots and
// may be nil. The mutation that produced the entry has already committed, so
// failures here are queued for retry instead of being surfaced.
func (s *Service) Record(ctx context.Context, action audit.Action, entityType, entityID string, oldValue, newValue any) {
	entry := audit.Entry{
		ID:         uuid.New(),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		ActorID:    requestcontext.ActorID(ctx),
		Timestamp:  requestcontext.Now(ctx).UTC(),
		ClientIP:   requestcontext.ClientIP(ctx),
		UserAgent:  requestcontext.UserAgent(ctx),
		RequestID:  requestcontext.RequestID(ctx),
	}
	entry.OldValue = marshalSnapshot(s.logger, "old_value", entry, oldValue)
	entry.NewValue = marshalSnapshot(s.logger, "new_value", entry, newValue)

	if s.breaker.IsOpen() {
		s.queueForRetry(entry, nil)
		return
	}

	// Detach from the request context so a cancelled request cannot lose
	// the entry, but keep the append itself bounded.
	appendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), appendTimeout)
	defer cancel()

	if err := s.store.Append(appendCtx, entry); err != nil {
		s.queueForRetry(entry, err)
		return
	}
	s.recorded(ctx, entry)
}

// Query returns one page of ledger entries matching the filter, newest
// first.
func (s *Service) Query(ctx context.Context, filter audit.Filter, page audit.Page) (audit.PageResult, error) {
	result, err := s.store.Query(ctx, filter, page)
	if err != nil {
		return audit.PageResult{}, apperrors.Wrap(err, apperrors.CodeInternal, "query audit ledger")
	}
	return result, nil
}

// Run drains the retry queue until ctx is cancelled. While the breaker is
// open only a single probe entry is attempted per interval.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.flush(context.WithoutCancel(ctx))
			return ctx.Err()
		case <-ticker.C:
			batch := retryBatchSize
			if s.breaker.IsOpen() {
				batch = 1
			}
			s.drain(ctx, batch)
		}
	}
}

// QueueDepth reports how many entries are waiting for retry.
func (s *Service) QueueDepth() int {
	return s.queue.len()
}

func (s *Service) queueForRetry(entry audit.Entry, cause error) {
	if cause != nil {
		s.metrics.AuditAppendFailures.Inc()
		if _, change := s.breaker.RecordFailure(); change.Opened {
			s.logger.Error("audit store circuit opened", "breaker", s.breaker.Name(), "error", cause)
		}
		s.logger.Warn("audit append failed, queued for retry",
			"entry_id", entry.ID, "action", entry.Action,
			"entity_type", entry.EntityType, "entity_id", entry.EntityID,
			"error", cause)
	}
	if dropped := s.queue.enqueue(entry); dropped > 0 {
		s.metrics.AuditEntriesDropped.Add(float64(dropped))
		s.logger.Error("audit retry queue full, dropped oldest entry", "queue_size", s.queue.len())
	}
	s.metrics.AuditRetryQueueDepth.Set(float64(s.queue.len()))
}

func (s *Service) recorded(ctx context.Context, entry audit.Entry) {
	s.metrics.AuditEntriesRecorded.Inc()
	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.logger.Info("audit store circuit closed", "breaker", s.breaker.Name())
	}
	if s.sink != nil {
		if err := s.sink.Publish(ctx, entry); err != nil {
			s.logger.Warn("audit sink publish failed", "entry_id", entry.ID, "error", err)
		}
	}
}

func (s *Service) drain(ctx context.Context, max int) {
	batch := s.queue.dequeueBatch(max)
	for i, entry := range batch {
		appendCtx, cancel := context.WithTimeout(ctx, appendTimeout)
		err := s.store.Append(appendCtx, entry)
		cancel()

		if err != nil {
			// Put the failed entry and the rest of the batch back and
			// stop; the store is still unhealthy.
			for _, e := range batch[i:] {
				s.queueForRetry(e, nil)
			}
			s.metrics.AuditAppendFailures.Inc()
			if _, change := s.breaker.RecordFailure(); change.Opened {
				s.logger.Error("audit store circuit opened", "breaker", s.breaker.Name(), "error", err)
			}
			return
		}
		s.recorded(ctx, entry)
	}
	s.metrics.AuditRetryQueueDepth.Set(float64(s.queue.len()))
}

// flush makes one last delivery attempt on shutdown.
func (s *Service) flush(ctx context.Context) {
	flushCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	s.drain(flushCtx, s.queue.len())
	if n := s.queue.len(); n > 0 {
		s.logger.Error("shutting down with undelivered audit entries", "count", n)
	}
}

func marshalSnapshot(logger *slog.Logger, field string, entry audit.Entry, v any) json.RawMessage {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		logger.Error("audit snapshot marshal failed",
			"field", field, "entity_type", entry.EntityType, "entity_id", entry.EntityID, "error", err)
		return nil
	}
	return raw
}
