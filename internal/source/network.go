package source

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/Ines-Abdelaziz/checkmynews-collector/internal/domain"
)

// networkPayload is one intercepted feed response. Responses arrive as one
// or more newline-separated JSON chunks; each chunk carries a payload id and
// a page of posts.
type networkPayload struct {
	PayloadID string      `json:"payload_id"`
	Posts     []storyNode `json:"posts"`
}

// NetworkStats is a snapshot of network adapter counters.
type NetworkStats struct {
	Payloads  int `json:"payloads"`
	Submitted int `json:"submitted"`
	Skipped   int `json:"skipped"`
	Malformed int `json:"malformed"`
}

// Network normalizes intercepted feed responses. The same payload can be
// reported more than once (retries on the capture side); payload ids and
// per-payload post ids dedup that.
type Network struct {
	mu        sync.Mutex
	seen      map[string]struct{} // payloadID + "/" + postID
	submitter Submitter
	logger    *slog.Logger
	stats     NetworkStats
}

// NewNetwork creates the network adapter.
func NewNetwork(submitter Submitter, logger *slog.Logger) *Network {
	return &Network{
		seen:      make(map[string]struct{}),
		submitter: submitter,
		logger:    logger,
	}
}

// HandlePayload parses one intercepted response body and submits every new
// post it carries. A chunk that fails to parse is skipped without affecting
// its siblings; feed responses routinely mix well-formed and truncated chunks.
func (n *Network) HandlePayload(data []byte) {
	for _, chunk := range bytes.Split(data, []byte("\n")) {
		chunk = bytes.TrimSpace(chunk)
		if len(chunk) == 0 {
			continue
		}

		var payload networkPayload
		if err := json.Unmarshal(chunk, &payload); err != nil {
			n.mu.Lock()
			n.stats.Malformed++
			n.mu.Unlock()
			n.logger.Debug("malformed network chunk skipped", "error", err)
			continue
		}
		n.handleChunk(payload)
	}
}

func (n *Network) handleChunk(payload networkPayload) {
	n.mu.Lock()
	n.stats.Payloads++
	var fresh []storyNode
	for _, node := range payload.Posts {
		if !node.usable() {
			n.stats.Skipped++
			continue
		}
		key := payload.PayloadID + "/" + node.strongID()
		if _, dup := n.seen[key]; dup {
			n.stats.Skipped++
			continue
		}
		n.seen[key] = struct{}{}
		n.stats.Submitted++
		fresh = append(fresh, node)
	}
	n.mu.Unlock()

	for _, node := range fresh {
		n.submitter.Submit(node.candidate(), domain.SourceNetwork)
	}
}

// Stats returns a snapshot of adapter counters.
func (n *Network) Stats() NetworkStats {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stats
}
