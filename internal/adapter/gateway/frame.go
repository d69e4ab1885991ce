package gateway

import (
	"encoding/json"
	"time"

	"agenthub/internal/domain"
)

// Frame is the envelope pushed to connected clients over WebSocket.
type Frame struct {
	Event   domain.EventType `json:"event"`
	Payload json.RawMessage  `json:"payload,omitempty"`
	Time    time.Time        `json:"time"`
}
