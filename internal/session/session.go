package session

import (
	"errors"
	"sync"
	"time"

	"github.com/breaktools/meffec/internal/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var (
	ErrClosed        = errors.New("session closed")
	ErrSendQueueFull = errors.New("session send queue full")
)

type State int

const (
	Connecting State = iota
	Unauthenticated
	Authenticated
	Closed
)

var stateNames = map[State]string{
	Connecting:      "connecting",
	Unauthenticated: "unauthenticated",
	Authenticated:   "authenticated",
	Closed:          "closed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Conn is the part of a websocket connection a session writes through.
// *websocket.Conn satisfies it.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Options tune a session's outbound queue.
type Options struct {
	// SendBuffer is the capacity of the outbound queue.
	SendBuffer int
	// WriteWait bounds a single frame write.
	WriteWait time.Duration
	// OnWriteError runs once, from the write pump, when a write fails.
	OnWriteError func(*Session, error)
}

// Session is one connection plus the identity it authenticated with.
type Session struct {
	id         string
	remoteAddr string
	conn       Conn
	writeWait  time.Duration
	onWriteErr func(*Session, error)

	send      chan []byte
	ping      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	mu          sync.RWMutex
	state       State
	role        protocol.Role
	name        string
	connectedAt time.Time
}

// New wraps conn and starts its write pump. The session starts in the
// Connecting state.
func New(conn Conn, remoteAddr string, opts Options) *Session {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = 5 * time.Second
	}
	s := &Session{
		id:          uuid.NewString(),
		remoteAddr:  remoteAddr,
		conn:        conn,
		writeWait:   opts.WriteWait,
		onWriteErr:  opts.OnWriteError,
		send:        make(chan []byte, opts.SendBuffer),
		ping:        make(chan struct{}, 1),
		done:        make(chan struct{}),
		state:       Connecting,
		role:        protocol.RoleUnassigned,
		connectedAt: time.Now(),
	}
	go s.writePump()
	return s
}

func (s *Session) ID() string         { return s.id }
func (s *Session) RemoteAddr() string { return s.remoteAddr }

func (s *Session) ConnectedAt() time.Time {
	return s.connectedAt
}

func (s *Session) Role() protocol.Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.role
}

func (s *Session) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// RosterEntry is the {type, name} view the controller gets of this session.
func (s *Session) RosterEntry() protocol.RosterEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return protocol.RosterEntry{Type: s.role, Name: s.name}
}

// MarkReading moves a Connecting session to Unauthenticated once its read
// loop is running.
func (s *Session) MarkReading() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Connecting {
		s.state = Unauthenticated
	}
}

// Authenticate assigns role and name. It only succeeds once; later calls
// and calls on a closed session report false.
func (s *Session) Authenticate(role protocol.Role, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Authenticated || s.state == Closed {
		return false
	}
	s.role = role
	s.name = name
	s.state = Authenticated
	return true
}

// Send queues a frame without blocking. A full queue closes the session
// since the peer is not keeping up.
func (s *Session) Send(frame []byte) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	select {
	case s.send <- frame:
		return nil
	case <-s.done:
		return ErrClosed
	default:
		s.Close()
		return ErrSendQueueFull
	}
}

// Ping asks the write pump to send a websocket ping. At most one ping is
// pending at a time; the peer's pong refreshes the read deadline.
func (s *Session) Ping() error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.ping <- struct{}{}:
	default:
	}
	return nil
}

// Close stops the write pump and closes the connection. Safe to call more
// than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = Closed
		s.mu.Unlock()
		close(s.done)
	})
}

// Done is closed when the session closes.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Logger returns base annotated with this session's identity.
func (s *Session) Logger(base zerolog.Logger) zerolog.Logger {
	entry := s.RosterEntry()
	ctx := base.With().Str("session", s.id).Str("remote", s.remoteAddr)
	if entry.Type != protocol.RoleUnassigned {
		ctx = ctx.Str("role", string(entry.Type)).Str("name", entry.Name)
	}
	return ctx.Logger()
}

func (s *Session) writePump() {
	defer s.conn.Close()
	for {
		select {
		case <-s.done:
			return
		case frame := <-s.send:
			if err := s.write(websocket.TextMessage, frame); err != nil {
				s.writeFailed(err)
				return
			}
		case <-s.ping:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				s.writeFailed(err)
				return
			}
		}
	}
}

func (s *Session) write(messageType int, data []byte) error {
	s.conn.SetWriteDeadline(time.Now().Add(s.writeWait))
	return s.conn.WriteMessage(messageType, data)
}

func (s *Session) writeFailed(err error) {
	s.Close()
	if s.onWriteErr != nil {
		s.onWriteErr(s, err)
	}
}
