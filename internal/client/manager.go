// Package client keeps a peer connected to the relay: it dials, announces
// the peer's role, resubmits local state after every reconnect and hands
// inbound messages to hooks.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/breaktools/meffec/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var ErrNotConnected = errors.New("not connected")

const (
	defaultReconnectDelay = 3 * time.Second
	defaultWriteWait      = 10 * time.Second
)

// State is the connection manager's position in its
// Disconnected → Connecting → Connected loop.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Hooks receive inbound traffic on the manager's read goroutine. Any hook
// may be nil.
type Hooks struct {
	OnStateChange  func(State)
	OnRoster       func(protocol.Roster)
	OnCatalog      func(protocol.Catalog)
	OnPlayEffect   func(protocol.PlayEffect)
	OnDeviceAction func(data json.RawMessage)
}

type Options struct {
	URL   string
	Token string
	Role  protocol.Role
	Name  string

	ReconnectDelay time.Duration
	// LivenessTimeout bounds the silence between inbound frames. The relay
	// heartbeats every few seconds, so a longer gap means a dead link. Zero
	// disables the check.
	LivenessTimeout time.Duration
	WriteWait       time.Duration

	Dialer *websocket.Dialer
	Logger zerolog.Logger
	Hooks  Hooks
}

// Manager owns one relay connection at a time and replaces it whenever it
// drops.
type Manager struct {
	url    string
	opts   Options
	dialer *websocket.Dialer
	log    zerolog.Logger

	mu      sync.Mutex
	writeMu sync.Mutex // serializes all conn writes
	conn    *websocket.Conn
	state   State
	catalog protocol.Catalog
}

// NewManager fails only when opts.URL cannot be parsed.
func NewManager(opts Options) (*Manager, error) {
	target, err := dialURL(opts.URL, opts.Token)
	if err != nil {
		return nil, err
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = defaultWriteWait
	}
	if opts.Role == "" {
		opts.Role = protocol.RoleController
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	return &Manager{
		url:    target,
		opts:   opts,
		dialer: dialer,
		log:    opts.Logger.With().Str("role", string(opts.Role)).Str("name", opts.Name).Logger(),
	}, nil
}

// dialURL adds the shared secret as the token query parameter.
func dialURL(raw, token string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("parse server url: unsupported scheme %q", u.Scheme)
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Catalog returns the catalog that will be resubmitted on reconnect.
func (m *Manager) Catalog() protocol.Catalog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.catalog.Clone()
}

// SetCatalog stores c for every future connection and pushes it now if the
// manager is connected. Offline it only stores.
func (m *Manager) SetCatalog(c protocol.Catalog) error {
	m.mu.Lock()
	m.catalog = c.Clone()
	m.mu.Unlock()

	err := m.sendCatalog(c)
	if errors.Is(err, ErrNotConnected) {
		m.log.Debug().Msg("not connected, catalog will be sent on reconnect")
		return nil
	}
	return err
}

func (m *Manager) SendDeviceAction(device string, data any) error {
	frame, err := protocol.DeviceActionFrame(device, data)
	if err != nil {
		return err
	}
	return m.Send(frame)
}

func (m *Manager) PlayEffect(category, name string) error {
	frame, err := protocol.PlayEffectFrame(category, name)
	if err != nil {
		return err
	}
	return m.Send(frame)
}

// Send writes one frame on the current connection.
func (m *Manager) Send(frame []byte) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return m.write(conn, frame)
}

// Run connects and keeps reconnecting after a fixed delay until ctx is
// cancelled. It always returns ctx.Err().
func (m *Manager) Run(ctx context.Context) error {
	for {
		m.setState(Connecting)
		conn, _, err := m.dialer.DialContext(ctx, m.url, nil)
		if err != nil {
			m.setState(Disconnected)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.log.Warn().Err(err).Dur("retry_in", m.opts.ReconnectDelay).Msg("dial failed")
		} else {
			err = m.serve(ctx, conn)
			m.setState(Disconnected)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.log.Warn().Err(err).Dur("retry_in", m.opts.ReconnectDelay).Msg("connection lost")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.opts.ReconnectDelay):
		}
	}
}

// serve runs one connection until it fails or ctx ends.
func (m *Manager) serve(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()

	// The connection is not shared yet, so the announcement is always the
	// first frame the relay sees from us.
	auth, err := protocol.AuthenticationFrame(m.opts.Role, m.opts.Name)
	if err != nil {
		return err
	}
	if err := m.write(conn, auth); err != nil {
		return fmt.Errorf("send authentication: %w", err)
	}

	m.mu.Lock()
	m.conn = conn
	catalog := m.catalog.Clone()
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		if m.conn == conn {
			m.conn = nil
		}
		m.mu.Unlock()
	}()

	m.setState(Connected)
	m.log.Info().Msg("connected to relay")

	if len(catalog) > 0 {
		if err := m.sendCatalog(catalog); err != nil {
			return fmt.Errorf("resubmit catalog: %w", err)
		}
		m.log.Info().Int("categories", len(catalog)).Msg("catalog resubmitted")
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	return m.readLoop(conn)
}

func (m *Manager) readLoop(conn *websocket.Conn) error {
	for {
		if m.opts.LivenessTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(m.opts.LivenessTimeout))
		}
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if msgType != websocket.TextMessage {
			continue
		}
		m.dispatch(data)
	}
}

func (m *Manager) dispatch(frame []byte) {
	// The relay forwards device actions as {"type":"device_action","data":<inner>},
	// without the device key Decode requires.
	var env protocol.Envelope
	if err := json.Unmarshal(frame, &env); err == nil && env.Type == protocol.MsgDeviceAction {
		if m.opts.Hooks.OnDeviceAction != nil {
			m.opts.Hooks.OnDeviceAction(env.Data)
		}
		return
	}

	msg, err := protocol.Decode(frame)
	if err != nil {
		m.log.Warn().Err(err).Msg("dropping malformed frame")
		return
	}

	hooks := m.opts.Hooks
	switch msg := msg.(type) {
	case protocol.ConnectedClients:
		m.log.Debug().Int("clients", len(msg.Roster)).Msg("roster received")
		if hooks.OnRoster != nil {
			hooks.OnRoster(msg.Roster)
		}
	case protocol.AvailableEffects:
		if hooks.OnCatalog != nil {
			hooks.OnCatalog(msg.Catalog)
		}
	case protocol.PlayEffect:
		m.log.Info().Str("category", msg.Category).Str("effect", msg.Name).Msg("play effect received")
		if hooks.OnPlayEffect != nil {
			hooks.OnPlayEffect(msg)
		}
	case protocol.Heartbeat:
		m.log.Debug().Msg("heartbeat")
	default:
		m.log.Debug().Stringer("kind", msg.Kind()).Msg("ignoring message")
	}
}

func (m *Manager) sendCatalog(c protocol.Catalog) error {
	frame, err := protocol.AvailableEffectsFrame(c)
	if err != nil {
		return err
	}
	return m.Send(frame)
}

func (m *Manager) write(conn *websocket.Conn, frame []byte) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(m.opts.WriteWait))
	return conn.WriteMessage(websocket.TextMessage, frame)
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	changed := m.state != s
	m.state = s
	m.mu.Unlock()

	if changed && m.opts.Hooks.OnStateChange != nil {
		m.opts.Hooks.OnStateChange(s)
	}
}
