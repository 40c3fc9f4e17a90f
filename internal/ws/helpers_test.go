package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/breaktools/meffec/internal/config"
	"github.com/breaktools/meffec/internal/metrics"
	"github.com/breaktools/meffec/internal/protocol"
	"github.com/breaktools/meffec/internal/session"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testToken = "stage-secret"

type testRelay struct {
	server *Server
	http   *httptest.Server
	prom   *prometheus.Registry
}

func newTestRelay(t *testing.T) *testRelay {
	t.Helper()
	return newTestRelayWith(t, config.HeartbeatConfig{Interval: time.Hour})
}

func newTestRelayWith(t *testing.T, heartbeat config.HeartbeatConfig) *testRelay {
	t.Helper()

	cfg := &config.Config{
		Server:    config.ServerConfig{Token: testToken},
		Heartbeat: heartbeat,
		Session:   config.SessionConfig{SendBuffer: 64},
	}
	prom := prometheus.NewRegistry()
	s, err := NewServer(Options{
		Config:   cfg,
		Logger:   zerolog.Nop(),
		Metrics:  metrics.New(prom),
		Gatherer: prom,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(s.Routes())
	t.Cleanup(srv.Close)
	return &testRelay{server: s, http: srv, prom: prom}
}

func (r *testRelay) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(r.http.URL, "http") + path
}

// dial connects with the token in the legacy "?token=$" form.
func (r *testRelay) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(r.wsURL("/?token=$"+testToken), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// join dials and authenticates as role/name.
func (r *testRelay) join(t *testing.T, role protocol.Role, name string) *websocket.Conn {
	t.Helper()
	conn := r.dial(t)
	frame, err := protocol.AuthenticationFrame(role, name)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
	return conn
}

// session waits for the server-side session authenticated as name.
func (r *testRelay) session(t *testing.T, name string) *session.Session {
	t.Helper()
	var found *session.Session
	require.Eventually(t, func() bool {
		for _, s := range r.server.Registry().Snapshot() {
			if s.Name() == name {
				found = s
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond, "session %q never authenticated", name)
	return found
}

func send(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func readRaw(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return data
}

func readMessage(t *testing.T, conn *websocket.Conn) protocol.Message {
	t.Helper()
	msg, err := protocol.Decode(readRaw(t, conn))
	require.NoError(t, err)
	return msg
}

func readRoster(t *testing.T, conn *websocket.Conn) protocol.Roster {
	t.Helper()
	msg := readMessage(t, conn)
	cc, ok := msg.(protocol.ConnectedClients)
	require.True(t, ok, "expected connected_clients, got %T", msg)
	return cc.Roster
}

func readCatalog(t *testing.T, conn *websocket.Conn) protocol.Catalog {
	t.Helper()
	msg := readMessage(t, conn)
	ae, ok := msg.(protocol.AvailableEffects)
	require.True(t, ok, "expected available_effects, got %T", msg)
	return ae.Catalog
}

// expectSilence asserts nothing arrives for d. The connection cannot be read
// from afterwards.
func expectSilence(t *testing.T, conn *websocket.Conn, d time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(d)))
	_, data, err := conn.ReadMessage()
	require.Error(t, err, "unexpected frame: %s", data)
}

func catalogFrame(t *testing.T, c protocol.Catalog) string {
	t.Helper()
	frame, err := protocol.AvailableEffectsFrame(c)
	require.NoError(t, err)
	return string(frame)
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

// counterValue reads a counter from g. With label set, only the series
// carrying that label value counts.
func counterValue(t *testing.T, g prometheus.Gatherer, name, label string) float64 {
	t.Helper()
	families, err := g.Gather()
	require.NoError(t, err)
	var total float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			if label != "" && !hasLabelValue(m.GetLabel(), label) {
				continue
			}
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func hasLabelValue(pairs []*dto.LabelPair, value string) bool {
	for _, p := range pairs {
		if p.GetValue() == value {
			return true
		}
	}
	return false
}
