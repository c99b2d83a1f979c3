package source

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Ines-Abdelaziz/checkmynews-collector/internal/domain"
)

// bootstrapBlob is the server-rendered payload embedded in the initial page
// HTML. It exists once per page load.
type bootstrapBlob struct {
	Posts []storyNode `json:"posts"`
}

// BootstrapStats is a snapshot of bootstrap adapter counters.
type BootstrapStats struct {
	Handled   bool `json:"handled"`
	Submitted int  `json:"submitted"`
	Skipped   int  `json:"skipped"`
}

// Bootstrap normalizes the initial-page payload. The capture side can
// deliver it more than once after reconnects; only the first blob per page
// session is processed.
type Bootstrap struct {
	mu        sync.Mutex
	handled   bool
	seen      map[string]struct{}
	submitter Submitter
	logger    *slog.Logger
	stats     BootstrapStats
}

// NewBootstrap creates the bootstrap adapter.
func NewBootstrap(submitter Submitter, logger *slog.Logger) *Bootstrap {
	return &Bootstrap{
		seen:      make(map[string]struct{}),
		submitter: submitter,
		logger:    logger,
	}
}

// HandleBlob parses the embedded payload and submits its posts. Repeated
// blobs are ignored.
func (b *Bootstrap) HandleBlob(data []byte) error {
	b.mu.Lock()
	if b.handled {
		b.mu.Unlock()
		b.logger.Debug("repeated bootstrap blob ignored")
		return nil
	}
	b.handled = true
	b.stats.Handled = true
	b.mu.Unlock()

	var blob bootstrapBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return fmt.Errorf("decode bootstrap blob: %w", err)
	}

	b.mu.Lock()
	var fresh []storyNode
	for _, node := range blob.Posts {
		if !node.usable() {
			b.stats.Skipped++
			continue
		}
		if id := node.strongID(); id != "" {
			if _, dup := b.seen[id]; dup {
				b.stats.Skipped++
				continue
			}
			b.seen[id] = struct{}{}
		}
		b.stats.Submitted++
		fresh = append(fresh, node)
	}
	b.mu.Unlock()

	for _, node := range fresh {
		b.submitter.Submit(node.candidate(), domain.SourceBootstrap)
	}
	b.logger.Info("bootstrap blob processed", "posts", len(fresh))
	return nil
}

// Stats returns a snapshot of adapter counters.
func (b *Bootstrap) Stats() BootstrapStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}
