package gateway

import (
	"net/http"
	"time"
)

// handleHealth is the unauthenticated liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": Version,
	})
}

// handleHealthDetailed reports per-component status for operators.
func (s *Server) handleHealthDetailed(w http.ResponseWriter, r *http.Request) {
	components := map[string]any{
		"uptime_secs":     int(time.Since(s.startTime).Seconds()),
		"event_bus":       map[string]any{"subscribers": s.bus.SubscriberCount()},
		"scheduler":       s.taskScheduler != nil,
		"pending_approvals": len(s.approvals.Pending()),
	}

	channelStatus := map[string]any{}
	for channel, adapter := range s.channels.All() {
		status := adapter.Status()
		health := adapter.HealthCheck(r.Context())
		channelStatus[string(channel)] = map[string]any{
			"connected": status.Connected,
			"healthy":   health.Healthy,
			"message":   health.Message,
		}
	}
	components["channels"] = channelStatus

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"version":    Version,
		"components": components,
	})
}
