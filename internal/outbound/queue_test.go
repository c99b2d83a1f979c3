package outbound

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ines-Abdelaziz/checkmynews-collector/internal/domain"
)

type fakeTransport struct {
	mu      sync.Mutex
	batches []domain.Batch
	err     error
	sent    chan domain.Batch
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sent: make(chan domain.Batch, 8)}
}

func (f *fakeTransport) Send(_ context.Context, batch domain.Batch) error {
	f.mu.Lock()
	err := f.err
	if err == nil {
		f.batches = append(f.batches, batch)
	}
	f.mu.Unlock()
	if err == nil {
		f.sent <- batch
	}
	return err
}

func (f *fakeTransport) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeTransport) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

type fakeSpool struct {
	mu      sync.Mutex
	batches []domain.SpooledBatch
}

func (s *fakeSpool) SaveBatch(_ context.Context, id string, batch domain.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, domain.SpooledBatch{ID: id, Batch: batch})
	return nil
}

func (s *fakeSpool) LoadBatches(context.Context) ([]domain.SpooledBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SpooledBatch, len(s.batches))
	copy(out, s.batches)
	return out, nil
}

func (s *fakeSpool) DeleteBatch(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sb := range s.batches {
		if sb.ID == id {
			s.batches = append(s.batches[:i], s.batches[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *fakeSpool) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func record(id string) *domain.PostRecord {
	return &domain.PostRecord{Identity: domain.Identity(id), Dispatched: true}
}

func TestFlushSendsRecordsAndWindows(t *testing.T) {
	transport := newFakeTransport()
	q := NewQueue(DefaultConfig(), transport, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	q.Enqueue(record("1"))
	q.Enqueue(record("2"))
	q.EnqueueWindow(domain.VisibilityWindowEvent{PostID: "1", StartedTS: 10, EndTS: 20})

	q.Flush(context.Background())

	require.Equal(t, 1, transport.sendCount())
	batch := transport.batches[0]
	assert.Len(t, batch.Records, 2)
	assert.Len(t, batch.Windows, 1)
	assert.Equal(t, 2, q.Stats().Sent)
	assert.Zero(t, q.Stats().Pending)
}

func TestFlushIsNoopWhenEmpty(t *testing.T) {
	transport := newFakeTransport()
	q := NewQueue(DefaultConfig(), transport, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	q.Flush(context.Background())

	assert.Zero(t, transport.sendCount())
}

func TestTransientFailureRequeuesWithoutSpooling(t *testing.T) {
	transport := newFakeTransport()
	spool := &fakeSpool{}
	q := NewQueue(DefaultConfig(), transport, spool, slog.New(slog.NewTextHandler(io.Discard, nil)))

	transport.fail(errors.New("http 502"))
	q.Enqueue(record("1"))
	q.Flush(context.Background())

	stats := q.Stats()
	assert.Equal(t, 1, stats.Pending, "failed batch is back in the queue")
	assert.Equal(t, 1, stats.Failed)
	assert.False(t, stats.Unavailable)
	assert.Zero(t, spool.count(), "in-memory retry owns the batch, no spool row")

	// Recovery: the next flush delivers the re-queued record and leaves the
	// spool empty, so a later restart cannot re-deliver the batch.
	transport.fail(nil)
	q.Flush(context.Background())
	require.Equal(t, 1, transport.sendCount())
	assert.Equal(t, domain.Identity("1"), transport.batches[0].Records[0].Identity)
	assert.Zero(t, spool.count())
}

func TestRequeuePreservesOrder(t *testing.T) {
	transport := newFakeTransport()
	q := NewQueue(DefaultConfig(), transport, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	transport.fail(errors.New("http 503"))
	q.Enqueue(record("old"))
	q.Flush(context.Background())

	q.Enqueue(record("new"))
	transport.fail(nil)
	q.Flush(context.Background())

	require.Equal(t, 1, transport.sendCount())
	recs := transport.batches[0].Records
	require.Len(t, recs, 2)
	assert.Equal(t, domain.Identity("old"), recs[0].Identity, "re-queued batch goes to the front")
	assert.Equal(t, domain.Identity("new"), recs[1].Identity)
}

func TestUnavailableTransportLatches(t *testing.T) {
	transport := newFakeTransport()
	spool := &fakeSpool{}
	q := NewQueue(DefaultConfig(), transport, spool, slog.New(slog.NewTextHandler(io.Discard, nil)))

	transport.fail(domain.ErrTransportUnavailable)
	q.Enqueue(record("1"))
	q.Flush(context.Background())

	require.True(t, q.Stats().Unavailable)
	assert.Equal(t, 1, spool.count(), "latched batch is persisted, not retried")
	assert.Zero(t, q.Stats().Pending)

	// Even a now-healthy transport is not tried again; the latch is
	// cleared only by a restart.
	transport.fail(nil)
	q.Enqueue(record("2"))
	q.Flush(context.Background())
	assert.Zero(t, transport.sendCount())
	assert.Equal(t, 1, q.Stats().Pending)
}

func TestFullBatchTriggersImmediateFlush(t *testing.T) {
	transport := newFakeTransport()
	q := NewQueue(Config{BatchSize: 2, FlushInterval: time.Hour}, transport, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	q.Enqueue(record("1"))
	q.Enqueue(record("2"))

	select {
	case batch := <-transport.sent:
		assert.Len(t, batch.Records, 2)
	case <-time.After(time.Second):
		t.Fatal("full batch did not flush")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestRunRestoresSpooledBatchesAndFlushesOnShutdown(t *testing.T) {
	transport := newFakeTransport()
	spool := &fakeSpool{}
	require.NoError(t, spool.SaveBatch(context.Background(), "b1", domain.Batch{
		Records: []*domain.PostRecord{record("spooled")},
	}))

	q := NewQueue(Config{BatchSize: 50, FlushInterval: time.Hour}, transport, spool, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	// Shutdown triggers the final flush, which delivers the restored batch.
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	require.Equal(t, 1, transport.sendCount())
	assert.Equal(t, domain.Identity("spooled"), transport.batches[0].Records[0].Identity)
	assert.Zero(t, spool.count(), "restored rows are removed from the spool")
}

func TestShutdownSpoolsWhatTheFinalFlushCouldNotSend(t *testing.T) {
	transport := newFakeTransport()
	spool := &fakeSpool{}
	q := NewQueue(Config{BatchSize: 50, FlushInterval: time.Hour}, transport, spool, slog.New(slog.NewTextHandler(io.Discard, nil)))

	transport.fail(errors.New("http 503"))
	q.Enqueue(record("1"))
	q.EnqueueWindow(domain.VisibilityWindowEvent{PostID: "1", StartedTS: 10, EndTS: 20})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	require.Equal(t, 1, spool.count(), "undelivered batch survives shutdown in the spool")
	batches, err := spool.LoadBatches(context.Background())
	require.NoError(t, err)
	require.Len(t, batches[0].Batch.Records, 1)
	assert.Equal(t, domain.Identity("1"), batches[0].Batch.Records[0].Identity)
	assert.Len(t, batches[0].Batch.Windows, 1)
	assert.Zero(t, q.Stats().Pending)
}
