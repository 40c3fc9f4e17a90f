package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/breaktools/meffec/internal/config"
	"github.com/breaktools/meffec/internal/health"
	"github.com/breaktools/meffec/internal/metrics"
	"github.com/breaktools/meffec/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const maxFrameSize = 1 << 20

// Options wires a Server's collaborators.
type Options struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

// Server is the relay: token gate, websocket endpoints, router and
// heartbeat over one registry.
type Server struct {
	config    *config.Config
	log       zerolog.Logger
	metrics   *metrics.Metrics
	gatherer  prometheus.Gatherer
	gate      *Gate
	registry  *session.Registry
	router    *Router
	heartbeat *Heartbeat
	reporter  *health.Reporter
	upgrader  websocket.Upgrader
	origins   originPolicy
}

// NewServer fails with ErrNoSecret when the config carries no token.
func NewServer(opts Options) (*Server, error) {
	cfg := opts.Config
	gate, err := NewGate(cfg.Server.Token, opts.Logger, opts.Metrics)
	if err != nil {
		return nil, err
	}

	registry := session.NewRegistry()
	router := NewRouter(registry, opts.Logger, opts.Metrics)

	s := &Server{
		config:    cfg,
		log:       opts.Logger,
		metrics:   opts.Metrics,
		gatherer:  opts.Gatherer,
		gate:      gate,
		registry:  registry,
		router:    router,
		heartbeat: NewHeartbeat(registry, router, cfg.Heartbeat.Interval, opts.Logger),
		reporter:  health.NewReporter(time.Now()),
		origins:   newOriginPolicy(cfg.Server.AllowedOrigins),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.origins.allows}
	return s, nil
}

func (s *Server) Registry() *session.Registry { return s.registry }

// Routes returns the relay's HTTP handler. Legacy controllers dial the root
// path, so "/" and "/ws" both upgrade.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(s.gate.Middleware)
		r.Get("/", s.handleWS)
		r.Get("/ws", s.handleWS)
		r.With(securityHeaders).Get("/healthz", s.handleHealth)
	})

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// Run serves until ctx is cancelled, with the heartbeat running alongside.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.heartbeat.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", srv.Addr).Dur("heartbeat", s.config.Heartbeat.Interval).Msg("websocket server started")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, sess := range s.registry.Snapshot() {
		s.router.Disconnect(sess, metrics.ReasonClosed)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("ws upgrade error")
		return
	}

	sess := session.New(conn, r.RemoteAddr, session.Options{
		SendBuffer:   s.config.Session.SendBuffer,
		WriteWait:    s.config.WriteWait(),
		OnWriteError: s.onWriteError,
	})
	s.router.Connect(sess)

	go s.readLoop(conn, sess)
}

// readLoop feeds frames to the router in arrival order. Every frame and
// every pong pushes the read deadline out; a peer that goes quiet for longer
// than the liveness timeout is evicted. However the loop ends, the deferred
// Disconnect removes the session.
func (s *Server) readLoop(conn *websocket.Conn, sess *session.Session) {
	reason := metrics.ReasonClosed
	defer func() { s.router.Disconnect(sess, reason) }()

	timeout := s.config.LivenessTimeout()
	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(timeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(timeout))
	})
	sess.MarkReading()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			log := sess.Logger(s.log)
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				reason = metrics.ReasonHeartbeat
				log.Warn().Dur("timeout", timeout).Msg("peer stopped responding")
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Info().Err(err).Msg("connection closed unexpectedly")
			} else {
				log.Info().Msg("connection closed")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(timeout))
		if msgType != websocket.TextMessage {
			log := sess.Logger(s.log)
			log.Debug().Int("message_type", msgType).Msg("ignoring non-text frame")
			continue
		}
		s.router.Handle(sess, data)
	}
}

func (s *Server) onWriteError(sess *session.Session, err error) {
	log := sess.Logger(s.log)
	log.Warn().Err(err).Msg("write failed")
	s.router.Disconnect(sess, metrics.ReasonWriteFailed)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	catalog := s.registry.Catalog()
	snap := s.reporter.Snapshot(health.RelayState{
		Sessions:   s.registry.Len(),
		Controller: s.registry.Controller() != nil,
		Categories: len(catalog),
		Effects:    catalog.EffectCount(),
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'")
		next.ServeHTTP(w, r)
	})
}
