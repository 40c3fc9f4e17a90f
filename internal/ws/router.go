package ws

import (
	"sync"

	"github.com/breaktools/meffec/internal/metrics"
	"github.com/breaktools/meffec/internal/protocol"
	"github.com/breaktools/meffec/internal/session"
	"github.com/rs/zerolog"
)

// Router applies inbound frames to the registry and fans out the results.
//
// Each mutation and the sends it causes happen under mu, so roster and
// catalog pushes are queued in the order the registry changed. Sessions
// whose send fails during a fan-out are disconnected after mu is released.
type Router struct {
	registry *session.Registry
	log      zerolog.Logger
	metrics  *metrics.Metrics

	mu sync.Mutex
}

func NewRouter(registry *session.Registry, log zerolog.Logger, m *metrics.Metrics) *Router {
	return &Router{registry: registry, log: log, metrics: m}
}

// Connect registers a freshly accepted session.
func (r *Router) Connect(s *session.Session) {
	r.mu.Lock()
	r.registry.Add(s)
	r.observe()
	r.mu.Unlock()

	log := s.Logger(r.log)
	log.Info().Msg("client connected")
}

// Disconnect removes s and refreshes the controller's roster. It is safe to
// call from the read loop, the write pump and the heartbeat; only the first
// call for a session has any effect.
func (r *Router) Disconnect(s *session.Session, reason string) {
	r.mu.Lock()
	removed := r.registry.Remove(s)
	s.Close()
	if !removed {
		r.mu.Unlock()
		return
	}
	failed := r.pushRoster()
	r.observe()
	r.mu.Unlock()

	log := s.Logger(r.log)
	log.Info().Str("reason", reason).Msg("client removed")
	r.metrics.SessionEvicted(reason)
	r.dropFailed(failed)
}

// Handle decodes one frame from s and dispatches it. Decode errors are
// logged and the frame is dropped; the session stays open.
func (r *Router) Handle(s *session.Session, frame []byte) {
	log := s.Logger(r.log)

	msg, err := protocol.Decode(frame)
	if err != nil {
		log.Warn().Err(err).Msg("dropping malformed frame")
		r.metrics.FrameMalformed()
		return
	}
	r.metrics.FrameReceived(msg.Kind())
	log.Debug().Stringer("kind", msg.Kind()).Msg("frame received")

	var failed []*session.Session

	r.mu.Lock()
	switch m := msg.(type) {
	case protocol.Authentication:
		failed = r.authenticate(s, m, log)
	case protocol.AvailableEffects:
		failed = r.replaceCatalog(s, m, log)
	case protocol.ConnectedClients:
		log.Debug().Msg("ignoring connected_clients from a client")
	case protocol.Information:
		log.Debug().Str("information", string(m.Type)).Msg("ignoring unknown information type")
	case protocol.DeviceAction:
		failed = r.forwardDeviceAction(m, log)
	case protocol.PlayEffect, protocol.Heartbeat:
		failed = r.relay(frame)
	case protocol.Unrecognized:
		log.Debug().Str("type", string(m.Type)).Msg("relaying unrecognized envelope to all clients")
		failed = r.relay(frame)
	}
	r.mu.Unlock()

	r.dropFailed(failed)
}

// authenticate always ends with a roster push, even when the claim is
// rejected and nothing changed.
func (r *Router) authenticate(s *session.Session, m protocol.Authentication, log zerolog.Logger) []*session.Session {
	role, ok := protocol.ParseRole(m.Role)
	if !ok {
		log.Warn().Str("claimed_role", m.Role).Msg("unknown client type, leaving session unauthenticated")
		return r.pushRoster()
	}
	if !s.Authenticate(role, m.Name) {
		log.Warn().Str("claimed_role", m.Role).Msg("ignoring repeated authentication")
		return r.pushRoster()
	}
	log = s.Logger(r.log)
	log.Info().Msg("client authenticated")

	var failed []*session.Session
	switch role {
	case protocol.RoleController:
		if prev := r.registry.SetController(s); prev != nil && prev != s {
			prevLog := prev.Logger(r.log)
			prevLog.Warn().Msg("controller replaced by a newer controller session")
		}
	case protocol.RoleApp:
		failed = r.sendCatalog(failed, s, r.registry.Catalog())
	}

	r.observe()
	return append(failed, r.pushRoster()...)
}

func (r *Router) replaceCatalog(s *session.Session, m protocol.AvailableEffects, log zerolog.Logger) []*session.Session {
	if s.Role() != protocol.RoleController {
		log.Warn().Msg("ignoring available_effects from a non-controller session")
		return nil
	}

	r.registry.ReplaceCatalog(m.Catalog)
	r.metrics.CatalogReplaced()
	log.Info().Int("categories", len(m.Catalog)).Int("effects", m.Catalog.EffectCount()).Msg("updated available effects")

	var failed []*session.Session
	catalog := r.registry.Catalog()
	for _, app := range r.registry.WithRole(protocol.RoleApp) {
		failed = r.sendCatalog(failed, app, catalog)
	}
	return failed
}

func (r *Router) forwardDeviceAction(m protocol.DeviceAction, log zerolog.Logger) []*session.Session {
	frame, err := protocol.ForwardedDeviceActionFrame(m.Data)
	if err != nil {
		log.Error().Err(err).Msg("device action encode failed")
		return nil
	}

	devices := r.registry.WithRole(protocol.RoleDevice)
	log.Info().Str("device", m.Device).Int("recipients", len(devices)).Msg("forwarding device action")

	var failed []*session.Session
	for _, d := range devices {
		failed = r.send(failed, d, frame)
	}
	return failed
}

func (r *Router) relay(frame []byte) []*session.Session {
	var failed []*session.Session
	for _, s := range r.registry.Snapshot() {
		failed = r.send(failed, s, frame)
	}
	return failed
}

// pushRoster sends the current roster to the controller, if there is one.
func (r *Router) pushRoster() []*session.Session {
	ctrl := r.registry.Controller()
	if ctrl == nil {
		r.log.Debug().Msg("no controller to send connected clients to")
		return nil
	}
	frame, err := protocol.ConnectedClientsFrame(r.registry.Roster())
	if err != nil {
		r.log.Error().Err(err).Msg("roster encode failed")
		return nil
	}
	return r.send(nil, ctrl, frame)
}

func (r *Router) sendCatalog(failed []*session.Session, s *session.Session, c protocol.Catalog) []*session.Session {
	frame, err := protocol.AvailableEffectsFrame(c)
	if err != nil {
		r.log.Error().Err(err).Msg("catalog encode failed")
		return failed
	}
	return r.send(failed, s, frame)
}

func (r *Router) send(failed []*session.Session, s *session.Session, frame []byte) []*session.Session {
	if err := s.Send(frame); err != nil {
		log := s.Logger(r.log)
		log.Warn().Err(err).Msg("send failed, dropping client")
		return append(failed, s)
	}
	return failed
}

func (r *Router) dropFailed(failed []*session.Session) {
	for _, s := range failed {
		r.Disconnect(s, metrics.ReasonSendFailed)
	}
}

func (r *Router) observe() {
	r.metrics.ObserveSessions(r.registry.CountByRole())
}
