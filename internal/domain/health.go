package domain

import "time"

// ConnectionStatus describes the connection state of a messaging-channel
// integration.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusDegraded     ConnectionStatus = "degraded"
)

// HealthStatus is a totally ordered severity scale:
// healthy < unknown < warning < critical.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthUnknown  HealthStatus = "unknown"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
)

var healthRank = map[HealthStatus]int{
	HealthHealthy:  0,
	HealthUnknown:  1,
	HealthWarning:  2,
	HealthCritical: 3,
}

// Rank returns the severity rank of s. Unrecognized values rank as unknown.
func (s HealthStatus) Rank() int {
	if r, ok := healthRank[s]; ok {
		return r
	}
	return healthRank[HealthUnknown]
}

// Degrade returns the worse of current and candidate. Combined statuses are
// a one-directional ratchet: a later, better signal never downgrades an
// already-detected worse one within the same evaluation.
func Degrade(current, candidate HealthStatus) HealthStatus {
	if candidate.Rank() > current.Rank() {
		return candidate
	}
	return current
}

// ConnectionInfo is a point-in-time view of a channel integration's state.
type ConnectionInfo struct {
	Status       ConnectionStatus
	PeerOnline   bool
	Reconnecting bool
	LastActivity time.Time // zero when no activity has been observed
}

// AppAdapter exposes the observable state of a messaging-channel
// integration. The concrete client (socket lifecycle, QR login) lives
// outside this process boundary.
type AppAdapter interface {
	UserID() string
	ConnectionInfo() ConnectionInfo
}

// HealthReport is the outcome of one health check evaluation.
type HealthReport struct {
	Healthy        bool           `json:"healthy"`
	Status         HealthStatus   `json:"status"`
	WarningMessage string         `json:"warning_message,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
}
