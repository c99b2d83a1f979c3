// Package outbound batches dispatched records and closed visibility windows
// and flushes them to the backend transport. Failed batches are re-queued
// and spooled to disk; an unavailable transport is detected once and
// subsequent sends short-circuit.
package outbound

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Ines-Abdelaziz/checkmynews-collector/internal/domain"
)

// Config holds batching parameters.
type Config struct {
	// BatchSize triggers an immediate flush when the pending record count
	// reaches it.
	BatchSize int

	// FlushInterval is the periodic flush cadence.
	FlushInterval time.Duration
}

// DefaultConfig matches the capture side's batching parameters.
func DefaultConfig() Config {
	return Config{
		BatchSize:     50,
		FlushInterval: 60 * time.Second,
	}
}

// Stats is a snapshot of queue counters.
type Stats struct {
	Pending        int  `json:"pending"`
	PendingWindows int  `json:"pending_windows"`
	Sent           int  `json:"sent"`
	Failed         int  `json:"failed"`
	Unavailable    bool `json:"unavailable"`
}

// Queue implements domain.OutboundQueue.
type Queue struct {
	mu          sync.Mutex
	records     []*domain.PostRecord
	windows     []domain.VisibilityWindowEvent
	unavailable bool
	sent        int
	failed      int

	cfg       Config
	transport domain.Transport
	spool     domain.SpoolRepository
	logger    *slog.Logger
	kick      chan struct{}
}

// NewQueue creates a queue. spool may be nil; failed batches then stay
// in memory only.
func NewQueue(cfg Config, transport domain.Transport, spool domain.SpoolRepository, logger *slog.Logger) *Queue {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	return &Queue{
		cfg:       cfg,
		transport: transport,
		spool:     spool,
		logger:    logger,
		kick:      make(chan struct{}, 1),
	}
}

// Enqueue adds a dispatched record and triggers a flush when the batch cap
// is reached.
func (q *Queue) Enqueue(rec *domain.PostRecord) {
	if rec == nil {
		return
	}
	q.mu.Lock()
	q.records = append(q.records, rec)
	full := len(q.records) >= q.cfg.BatchSize
	q.mu.Unlock()

	if full {
		select {
		case q.kick <- struct{}{}:
		default:
		}
	}
}

// EnqueueWindow adds a closed visibility window to the current batch.
func (q *Queue) EnqueueWindow(ev domain.VisibilityWindowEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.windows = append(q.windows, ev)
}

// Run restores spooled batches, then flushes on the interval or when a full
// batch kicks it, until the context is cancelled. On shutdown one final
// flush attempt runs, and whatever is still pending goes to the spool.
func (q *Queue) Run(ctx context.Context) error {
	q.restoreSpooled(ctx)

	ticker := time.NewTicker(q.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			q.Flush(context.Background())
			q.spoolPending(context.Background())
			return ctx.Err()
		case <-ticker.C:
			q.Flush(ctx)
		case <-q.kick:
			q.Flush(ctx)
		}
	}
}

// Flush sends everything currently pending. On transient failure the batch
// is put back at the front and retried in memory only; spooling it too
// would re-deliver the whole batch after the next restart once the retry
// succeeds. On transport unavailability the batch goes straight to the
// spool and the queue latches.
func (q *Queue) Flush(ctx context.Context) {
	q.mu.Lock()
	if q.unavailable || (len(q.records) == 0 && len(q.windows) == 0) {
		q.mu.Unlock()
		return
	}
	batch := domain.Batch{Records: q.records, Windows: q.windows}
	q.records = nil
	q.windows = nil
	q.mu.Unlock()

	err := q.transport.Send(ctx, batch)
	if err == nil {
		q.mu.Lock()
		q.sent += len(batch.Records)
		q.mu.Unlock()
		q.logger.Debug("batch sent", "records", len(batch.Records), "windows", len(batch.Windows))
		return
	}

	unavailable := errors.Is(err, domain.ErrTransportUnavailable)
	q.mu.Lock()
	q.failed++
	if unavailable {
		q.unavailable = true
	} else {
		// Put the batch back in front so ordering survives the retry.
		q.records = append(batch.Records, q.records...)
		q.windows = append(batch.Windows, q.windows...)
	}
	q.mu.Unlock()

	if unavailable {
		q.logger.Warn("transport unavailable, further sends short-circuited", "error", err)
		q.saveSpool(ctx, batch)
	} else {
		q.logger.Error("batch send failed, re-queued", "records", len(batch.Records), "error", err)
	}
}

// spoolPending persists everything still in memory, used on shutdown so a
// final failed flush (or a latched transport) loses nothing.
func (q *Queue) spoolPending(ctx context.Context) {
	q.mu.Lock()
	batch := domain.Batch{Records: q.records, Windows: q.windows}
	q.records = nil
	q.windows = nil
	q.mu.Unlock()

	if batch.Empty() {
		return
	}
	q.saveSpool(ctx, batch)
}

// Stats returns a snapshot of queue counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Pending:        len(q.records),
		PendingWindows: len(q.windows),
		Sent:           q.sent,
		Failed:         q.failed,
		Unavailable:    q.unavailable,
	}
}

func (q *Queue) saveSpool(ctx context.Context, batch domain.Batch) {
	if q.spool == nil {
		return
	}
	id := uuid.NewString()
	if err := q.spool.SaveBatch(ctx, id, batch); err != nil {
		q.logger.Error("spool save failed", "batch", id, "error", err)
	}
}

// restoreSpooled loads batches persisted by an earlier run into the pending
// queue. Spool rows are deleted once loaded; a send failure re-spools them.
func (q *Queue) restoreSpooled(ctx context.Context) {
	if q.spool == nil {
		return
	}
	batches, err := q.spool.LoadBatches(ctx)
	if err != nil {
		q.logger.Error("spool load failed", "error", err)
		return
	}
	if len(batches) == 0 {
		return
	}

	q.mu.Lock()
	for _, sb := range batches {
		q.records = append(q.records, sb.Batch.Records...)
		q.windows = append(q.windows, sb.Batch.Windows...)
	}
	q.mu.Unlock()

	for _, sb := range batches {
		if err := q.spool.DeleteBatch(ctx, sb.ID); err != nil {
			q.logger.Error("spool delete failed", "batch", sb.ID, "error", err)
		}
	}
	q.logger.Info("restored spooled batches", "batches", len(batches))
}
