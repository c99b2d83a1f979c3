// Package capture receives events from the in-page capture bridge over a
// websocket and routes them to the source adapters and the visibility
// tracker.
package capture

import (
	"encoding/json"
	"fmt"
)

// Event kinds emitted by the capture bridge.
const (
	KindNetwork   = "network"
	KindBootstrap = "bootstrap"
	KindDom       = "dom"
	KindGeometry  = "geometry"
	KindRemove    = "remove"
)

// envelope wraps every bridge message: a kind tag plus a kind-specific
// payload left raw until routing decides who decodes it.
type envelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// geometryEvent reports the latest position of a tracked element.
type geometryEvent struct {
	ElementID      string  `json:"element_id"`
	Top            float64 `json:"top"`
	Bottom         float64 `json:"bottom"`
	TotalHeight    float64 `json:"total_height"`
	ViewportHeight float64 `json:"viewport_height"`
}

// removeEvent reports that an element left the DOM.
type removeEvent struct {
	ElementID string `json:"element_id"`
}

func parseEnvelope(data []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Kind == "" {
		return envelope{}, fmt.Errorf("envelope missing kind")
	}
	return env, nil
}
