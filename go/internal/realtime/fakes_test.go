package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mcdev12/boardwalk/go/internal/session"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

// fakeConn is an in-memory transport. Frames pushed to inbound are read in
// order; drop delivers a close frame with the given code.
type fakeConn struct {
	inbound chan []byte
	closeCh chan int
	done    chan struct{}
	once    sync.Once

	mu       sync.Mutex
	written  [][]byte
	controls []int
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		closeCh: make(chan int, 1),
		done:    make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.inbound:
		return websocket.TextMessage, data, nil
	default:
	}
	select {
	case data := <-c.inbound:
		return websocket.TextMessage, data, nil
	case code := <-c.closeCh:
		return 0, nil, &websocket.CloseError{Code: code}
	case <-c.done:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isClosed() {
		return errors.New("write on closed connection")
	}
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) WriteControl(messageType int, data []byte, deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controls = append(c.controls, messageType)
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *fakeConn) drop(code int) {
	c.closeCh <- code
}

func (c *fakeConn) Written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.written...)
}

func (c *fakeConn) Controls() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.controls...)
}

// pendingDial is one Dial call waiting for the test to answer it.
type pendingDial struct {
	url   string
	reply chan dialResult
}

type dialResult struct {
	conn Conn
	err  error
}

func (p *pendingDial) accept(conn Conn) { p.reply <- dialResult{conn: conn} }
func (p *pendingDial) fail(err error)   { p.reply <- dialResult{err: err} }

// fakeDialer hands every Dial call to the test. It ignores ctx so tests can
// deliver a transport after the attempt was superseded.
type fakeDialer struct {
	calls chan *pendingDial
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{calls: make(chan *pendingDial, 8)}
}

func (d *fakeDialer) Dial(_ context.Context, url string) (Conn, error) {
	p := &pendingDial{url: url, reply: make(chan dialResult, 1)}
	d.calls <- p
	res := <-p.reply
	return res.conn, res.err
}

func (d *fakeDialer) next(t *testing.T) *pendingDial {
	t.Helper()
	select {
	case p := <-d.calls:
		return p
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for dial")
		return nil
	}
}

type fakeTokens struct {
	cred *session.Credential
	err  error
}

func (f fakeTokens) Refreshed(context.Context) (*session.Credential, error) {
	return f.cred, f.err
}

// statusRecorder collects status transitions for assertions.
type statusRecorder struct {
	ch chan Status
}

func newStatusRecorder(m *ConnectionManager) *statusRecorder {
	r := &statusRecorder{ch: make(chan Status, 64)}
	m.OnStatus(func(st Status) { r.ch <- st })
	return r
}

func (r *statusRecorder) waitFor(t *testing.T, state ConnectionState) Status {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case st := <-r.ch:
			if st.State == state {
				return st
			}
		case <-deadline:
			require.FailNow(t, "timed out waiting for state", state.String())
			return Status{}
		}
	}
}
