package ws

import (
	"context"
	"errors"
	"time"

	"github.com/breaktools/meffec/internal/metrics"
	"github.com/breaktools/meffec/internal/protocol"
	"github.com/breaktools/meffec/internal/session"
	"github.com/rs/zerolog"
)

// Heartbeat periodically sends a liveness frame and a websocket ping to
// every session. Its runs are independent of any session's lifetime. A
// session that cannot take the frame is disconnected; writes that fail later
// in the write pump go through the same path, and a peer that never answers
// the ping hits its read deadline.
type Heartbeat struct {
	registry *session.Registry
	router   *Router
	interval time.Duration
	log      zerolog.Logger
}

func NewHeartbeat(registry *session.Registry, router *Router, interval time.Duration, log zerolog.Logger) *Heartbeat {
	return &Heartbeat{
		registry: registry,
		router:   router,
		interval: interval,
		log:      log,
	}
}

// Run beats every interval until ctx is cancelled.
func (h *Heartbeat) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Beat()
		}
	}
}

// Beat sends one heartbeat to the current sessions and returns how many
// were evicted.
func (h *Heartbeat) Beat() int {
	frame, err := protocol.HeartbeatFrame(time.Now())
	if err != nil {
		h.log.Error().Err(err).Msg("heartbeat encode failed")
		return 0
	}

	evicted := 0
	for _, s := range h.registry.Snapshot() {
		err := s.Send(frame)
		if err == nil {
			err = s.Ping()
		}
		if err == nil {
			continue
		}
		reason := metrics.ReasonHeartbeat
		if errors.Is(err, session.ErrSendQueueFull) {
			reason = metrics.ReasonSlowConsumer
		}
		log := s.Logger(h.log)
		log.Warn().Err(err).Msg("client disconnected during heartbeat")
		h.router.Disconnect(s, reason)
		evicted++
	}
	h.log.Debug().Int("sessions", h.registry.Len()).Int("evicted", evicted).Msg("heartbeat sent")
	return evicted
}
