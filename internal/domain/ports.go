package domain

import (
	"context"
	"errors"
)

// ErrTransportUnavailable is returned by a Transport whose runtime context
// has been torn down. The outbound queue latches on it and short-circuits
// further sends instead of failing repeatedly.
var ErrTransportUnavailable = errors.New("transport unavailable")

// Batch is one outbound flush unit: dispatched records plus the visibility
// windows closed since the previous flush.
type Batch struct {
	Records []*PostRecord           `json:"records"`
	Windows []VisibilityWindowEvent `json:"windows,omitempty"`
}

// Empty reports whether the batch carries nothing worth sending.
func (b Batch) Empty() bool {
	return len(b.Records) == 0 && len(b.Windows) == 0
}

// SpooledBatch is a batch persisted while the backend was unreachable.
type SpooledBatch struct {
	ID    string
	Batch Batch
}

// OutboundQueue accepts finalized records for eventual delivery. The core
// only guarantees at-least-once handoff to this boundary.
type OutboundQueue interface {
	// Enqueue adds a dispatched record to the current batch.
	Enqueue(record *PostRecord)

	// EnqueueWindow adds a closed visibility window to the current batch.
	EnqueueWindow(ev VisibilityWindowEvent)
}

// Transport delivers batches to the backend.
type Transport interface {
	// Send delivers one batch. A failure other than
	// ErrTransportUnavailable is transient and the batch will be retried.
	Send(ctx context.Context, batch Batch) error
}

// SpoolRepository persists batches that could not be sent, so they survive
// a process restart.
type SpoolRepository interface {
	// SaveBatch persists a batch under the given id.
	SaveBatch(ctx context.Context, id string, batch Batch) error

	// LoadBatches returns all persisted batches, oldest first.
	LoadBatches(ctx context.Context) ([]SpooledBatch, error)

	// DeleteBatch removes a persisted batch by id.
	DeleteBatch(ctx context.Context, id string) error
}

// ExplanationFetcher retrieves the platform's "why am I seeing this"
// explanation for a sponsored post. A nil result with a nil error means the
// platform had no explanation for the identifiers; both outcomes are
// non-fatal to dispatch.
type ExplanationFetcher interface {
	Fetch(ctx context.Context, postID, adID, clientToken string) (*ExplanationData, error)
}
