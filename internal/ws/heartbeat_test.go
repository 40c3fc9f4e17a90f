package ws

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/breaktools/meffec/internal/config"
	"github.com/breaktools/meffec/internal/metrics"
	"github.com/breaktools/meffec/internal/protocol"
	"github.com/breaktools/meffec/internal/session"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingConn struct {
	mu       sync.Mutex
	frames   [][]byte
	pings    int
	writeErr error
	closed   bool
}

func (c *recordingConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	if messageType == websocket.PingMessage {
		c.pings++
		return nil
	}
	c.frames = append(c.frames, append([]byte(nil), data...))
	return nil
}

func (c *recordingConn) SetWriteDeadline(time.Time) error { return nil }

func (c *recordingConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *recordingConn) frame(i int) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames[i]
}

func (c *recordingConn) pingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pings
}

func (c *recordingConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

type heartbeatFixture struct {
	registry  *session.Registry
	router    *Router
	heartbeat *Heartbeat
	prom      *prometheus.Registry
}

func newHeartbeatFixture() *heartbeatFixture {
	registry := session.NewRegistry()
	prom := prometheus.NewRegistry()
	m := metrics.New(prom)
	router := NewRouter(registry, zerolog.Nop(), m)
	return &heartbeatFixture{
		registry:  registry,
		router:    router,
		heartbeat: NewHeartbeat(registry, router, 10*time.Millisecond, zerolog.Nop()),
		prom:      prom,
	}
}

func (f *heartbeatFixture) connect(conn *recordingConn) *session.Session {
	s := session.New(conn, "test", session.Options{
		OnWriteError: func(s *session.Session, _ error) {
			f.router.Disconnect(s, metrics.ReasonWriteFailed)
		},
	})
	f.router.Connect(s)
	return s
}

func TestHeartbeat_BeatReachesEverySession(t *testing.T) {
	f := newHeartbeatFixture()
	a, b := &recordingConn{}, &recordingConn{}
	f.connect(a)
	f.connect(b)

	assert.Equal(t, 0, f.heartbeat.Beat())
	require.Eventually(t, func() bool { return a.count() == 1 && b.count() == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return a.pingCount() == 1 && b.pingCount() == 1 }, time.Second, time.Millisecond)

	msg, err := protocol.Decode(a.frame(0))
	require.NoError(t, err)
	assert.IsType(t, protocol.Heartbeat{}, msg)
}

func TestHeartbeat_EvictsClosedSessions(t *testing.T) {
	f := newHeartbeatFixture()
	live := f.connect(&recordingConn{})
	dead := f.connect(&recordingConn{})
	dead.Close()

	assert.Equal(t, 1, f.heartbeat.Beat())
	assert.Equal(t, []*session.Session{live}, f.registry.Snapshot())
	assert.Equal(t, 1.0, counterValue(t, f.prom, "meffec_sessions_evicted_total", metrics.ReasonHeartbeat))
}

func TestHeartbeat_DeadPeerEvictedAfterWriteFailure(t *testing.T) {
	f := newHeartbeatFixture()
	f.connect(&recordingConn{writeErr: errors.New("broken pipe")})
	f.connect(&recordingConn{})

	f.heartbeat.Beat()

	require.Eventually(t, func() bool { return f.registry.Len() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 1.0, counterValue(t, f.prom, "meffec_sessions_evicted_total", metrics.ReasonWriteFailed))
}

func TestHeartbeat_EvictedControllerIsCleared(t *testing.T) {
	f := newHeartbeatFixture()
	conn := &recordingConn{}
	ctrl := f.connect(conn)
	frame, err := protocol.AuthenticationFrame(protocol.RoleController, "Controller")
	require.NoError(t, err)
	f.router.Handle(ctrl, frame)
	require.Same(t, ctrl, f.registry.Controller())

	ctrl.Close()
	f.heartbeat.Beat()

	assert.Nil(t, f.registry.Controller())
	assert.Equal(t, 0, f.registry.Len())
}

func TestHeartbeat_RunStopsWithContext(t *testing.T) {
	f := newHeartbeatFixture()
	conn := &recordingConn{}
	f.connect(conn)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.heartbeat.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return conn.count() >= 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("heartbeat did not stop")
	}
}

func TestHeartbeat_SilentPeerEvictedByReadDeadline(t *testing.T) {
	relay := newTestRelayWith(t, config.HeartbeatConfig{
		Interval: 20 * time.Millisecond,
		Timeout:  150 * time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go relay.server.heartbeat.Run(ctx)

	// Reading lets gorilla answer pings; the silent peer keeps its socket
	// open but never reads, so it never pongs.
	listener := relay.join(t, protocol.RoleDevice, "listener")
	go func() {
		for {
			if _, _, err := listener.ReadMessage(); err != nil {
				return
			}
		}
	}()
	relay.join(t, protocol.RoleDevice, "silent")
	relay.session(t, "listener")
	relay.session(t, "silent")

	require.Eventually(t, func() bool {
		snap := relay.server.Registry().Snapshot()
		return len(snap) == 1 && snap[0].Name() == "listener"
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1.0, counterValue(t, relay.prom, "meffec_sessions_evicted_total", metrics.ReasonHeartbeat))

	// Several timeouts later the responsive peer is still connected.
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, 1, relay.server.Registry().Len())
}
