package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/breaktools/meffec/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn records writes and can be told to fail or block.
type fakeConn struct {
	mu       sync.Mutex
	frames   [][]byte
	pings    int
	writeErr error
	block    chan struct{}
	closed   bool
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	if c.block != nil {
		<-c.block
	}
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

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.frames))
	for i, f := range c.frames {
		out[i] = string(f)
	}
	return out
}

func (c *fakeConn) pingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pings
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func TestSession_InitialState(t *testing.T) {
	s := New(&fakeConn{}, "10.0.0.1:5000", Options{})
	defer s.Close()

	assert.NotEmpty(t, s.ID())
	assert.Equal(t, Connecting, s.State())
	assert.Equal(t, protocol.RoleUnassigned, s.Role())
	assert.Equal(t, "10.0.0.1:5000", s.RemoteAddr())

	s.MarkReading()
	assert.Equal(t, Unauthenticated, s.State())
}

func TestSession_AuthenticateOnce(t *testing.T) {
	s := New(&fakeConn{}, "", Options{})
	defer s.Close()
	s.MarkReading()

	require.True(t, s.Authenticate(protocol.RoleApp, "Tablet"))
	assert.Equal(t, Authenticated, s.State())

	assert.False(t, s.Authenticate(protocol.RoleController, "Sneaky"))
	assert.Equal(t, protocol.RosterEntry{Type: protocol.RoleApp, Name: "Tablet"}, s.RosterEntry())
}

func TestSession_SendWritesInOrder(t *testing.T) {
	conn := &fakeConn{}
	s := New(conn, "", Options{})
	defer s.Close()

	for _, f := range []string{"one", "two", "three"} {
		require.NoError(t, s.Send([]byte(f)))
	}

	require.Eventually(t, func() bool { return len(conn.written()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"one", "two", "three"}, conn.written())
}

func TestSession_SendAfterClose(t *testing.T) {
	conn := &fakeConn{}
	s := New(conn, "", Options{})
	s.Close()
	s.Close()

	assert.ErrorIs(t, s.Send([]byte("late")), ErrClosed)
	assert.Equal(t, Closed, s.State())
	assert.False(t, s.Authenticate(protocol.RoleApp, "x"))
	require.Eventually(t, conn.isClosed, time.Second, 5*time.Millisecond)
}

func TestSession_PingWritesControlFrame(t *testing.T) {
	conn := &fakeConn{}
	s := New(conn, "", Options{})
	defer s.Close()

	require.NoError(t, s.Send([]byte("beat")))
	require.NoError(t, s.Ping())

	require.Eventually(t, func() bool { return conn.pingCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"beat"}, conn.written())
}

func TestSession_PingAfterClose(t *testing.T) {
	s := New(&fakeConn{}, "", Options{})
	s.Close()
	assert.ErrorIs(t, s.Ping(), ErrClosed)
}

func TestSession_PingWriteErrorCallback(t *testing.T) {
	conn := &fakeConn{writeErr: errors.New("broken pipe")}
	failed := make(chan error, 1)
	s := New(conn, "", Options{OnWriteError: func(_ *Session, err error) { failed <- err }})

	require.NoError(t, s.Ping())
	select {
	case err := <-failed:
		assert.EqualError(t, err, "broken pipe")
	case <-time.After(time.Second):
		t.Fatal("ping write failure was not reported")
	}
	assert.Equal(t, Closed, s.State())
}

func TestSession_FullQueueClosesSession(t *testing.T) {
	conn := &fakeConn{block: make(chan struct{})}
	defer close(conn.block)
	s := New(conn, "", Options{SendBuffer: 1})

	// The pump takes the first frame and blocks on it; the second fills the queue.
	require.NoError(t, s.Send([]byte("a")))
	require.Eventually(t, func() bool { return len(s.send) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, s.Send([]byte("b")))

	assert.ErrorIs(t, s.Send([]byte("c")), ErrSendQueueFull)
	assert.Equal(t, Closed, s.State())
}

func TestSession_WriteErrorCallback(t *testing.T) {
	conn := &fakeConn{writeErr: errors.New("broken pipe")}

	var (
		mu     sync.Mutex
		calls  int
		gotErr error
	)
	s := New(conn, "", Options{OnWriteError: func(_ *Session, err error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		gotErr = err
	}})

	require.NoError(t, s.Send([]byte("x")))

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("session not closed after write error")
	}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	}, time.Second, 5*time.Millisecond)
	assert.EqualError(t, gotErr, "broken pipe")
	assert.ErrorIs(t, s.Send([]byte("y")), ErrClosed)
}

func TestSession_LoggerFields(t *testing.T) {
	s := New(&fakeConn{}, "1.2.3.4:9", Options{})
	defer s.Close()

	var buf syncBuffer
	base := zerolog.New(&buf)

	l := s.Logger(base)
	l.Info().Msg("before")
	assert.Contains(t, buf.String(), `"session":"`+s.ID()+`"`)
	assert.NotContains(t, buf.String(), `"role"`)

	s.Authenticate(protocol.RoleDevice, "fogger")
	l = s.Logger(base)
	l.Info().Msg("after")
	assert.Contains(t, buf.String(), `"role":"device"`)
	assert.Contains(t, buf.String(), `"name":"fogger"`)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "closed", Closed.String())
	assert.Equal(t, "unknown", State(42).String())
}

type syncBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
