package health

import (
	"fmt"
	"strings"
	"time"

	"agenthub/internal/domain"
)

// Inactivity thresholds. Staleness past the first threshold is a
// warning; past the second the connection is considered critical.
const (
	WarnInactivity     = 30 * time.Minute
	CriticalInactivity = 2 * time.Hour
)

// Check evaluates a connection snapshot into a health report. Severity
// only ratchets upward across signals, and a disconnected adapter is
// critical regardless of anything else. Each call computes from scratch;
// no state is carried between checks.
func Check(info domain.ConnectionInfo, now time.Time) domain.HealthReport {
	details := map[string]any{
		"status":       string(info.Status),
		"peer_online":  info.PeerOnline,
		"reconnecting": info.Reconnecting,
	}
	if !info.LastActivity.IsZero() {
		details["last_activity"] = info.LastActivity.UTC().Format(time.RFC3339)
	}

	if info.Status != domain.StatusConnected && info.Status != domain.StatusDegraded {
		return domain.HealthReport{
			Healthy:        false,
			Status:         domain.HealthCritical,
			WarningMessage: "Not connected",
			Details:        details,
		}
	}

	status := domain.HealthHealthy
	var msgs []string

	raise := func(candidate domain.HealthStatus, msg string) {
		status = domain.Degrade(status, candidate)
		msgs = append(msgs, msg)
	}

	if !info.PeerOnline {
		raise(domain.HealthWarning, "Peer device appears offline")
	}
	if info.Reconnecting {
		raise(domain.HealthWarning, "Connection is reconnecting")
	}
	if info.Status == domain.StatusDegraded {
		raise(domain.HealthWarning, "Connection is degraded")
	}

	switch inactive := now.Sub(info.LastActivity); {
	case info.LastActivity.IsZero():
		raise(domain.HealthUnknown, "No activity recorded yet")
	case inactive >= CriticalInactivity:
		raise(domain.HealthCritical, fmt.Sprintf("No activity for %s", inactive.Round(time.Minute)))
	case inactive >= WarnInactivity:
		raise(domain.HealthWarning, fmt.Sprintf("No activity for %s", inactive.Round(time.Minute)))
	}

	report := domain.HealthReport{
		Healthy: status == domain.HealthHealthy,
		Status:  status,
		Details: details,
	}
	if len(msgs) > 0 {
		report.WarningMessage = strings.Join(msgs, "; ")
	}
	return report
}
