package wsbridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightforgemedia/go-talkbot/pkg/testutil"
	"github.com/lightforgemedia/go-talkbot/pkg/transport"
	"github.com/lightforgemedia/go-talkbot/pkg/ttevent"
)

// gateway is a scripted in-process stand-in for the protocol gateway. It
// acknowledges every correlated command with cmd_success and answers
// connect with con_success; tests push extra traffic through Send.
type gateway struct {
	t *testing.T

	mu   sync.Mutex
	conn *websocket.Conn
	ops  []string

	ready chan struct{}
}

func newGateway(t *testing.T) (*gateway, string) {
	t.Helper()
	g := &gateway{t: t, ready: make(chan struct{})}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Logf("gateway accept: %v", err)
			return
		}
		g.mu.Lock()
		g.conn = conn
		g.mu.Unlock()
		close(g.ready)
		g.serve(conn)
	}))
	t.Cleanup(srv.Close)

	return g, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func (g *gateway) serve(conn *websocket.Conn) {
	ctx := context.Background()
	for {
		var env envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			return
		}
		g.mu.Lock()
		g.ops = append(g.ops, env.Op)
		g.mu.Unlock()

		switch {
		case env.Op == "connect":
			g.Send(inbound{Event: &ttevent.Event{Code: ttevent.CodeConSuccess}})
		case env.Op == "login":
			g.Send(inbound{Event: &ttevent.Event{Code: ttevent.CodeCmdMyselfLoggedIn, Source: 42}})
		case env.CmdID > 0:
			g.Send(inbound{Event: &ttevent.Event{Code: ttevent.CodeCmdSuccess, Source: env.CmdID}})
		}
	}
}

// Send pushes one inbound message to the bridge.
func (g *gateway) Send(msg inbound) {
	<-g.ready
	g.mu.Lock()
	conn := g.conn
	g.mu.Unlock()
	if err := wsjson.Write(context.Background(), conn, msg); err != nil {
		g.t.Logf("gateway send: %v", err)
	}
}

// Ops returns the operations received so far.
func (g *gateway) Ops() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.ops...)
}

func dialTestBridge(t *testing.T, url string) *Bridge {
	t.Helper()
	b, err := Dial(context.Background(), url, WithLogger(testutil.DefaultLogger))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestDialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, err := Dial(ctx, "ws://127.0.0.1:1/nope")
	require.Error(t, err)
}

func TestConnectDeliversVerdict(t *testing.T) {
	g, url := newGateway(t)
	b := dialTestBridge(t, url)

	require.True(t, b.Connect("tt.example.com", 10333, 10333, false))

	ev, err := b.GetMessage(time.Second)
	require.NoError(t, err)
	assert.Equal(t, ttevent.CodeConSuccess, ev.Code)
	assert.Contains(t, g.Ops(), "connect")
}

func TestCommandCorrelation(t *testing.T) {
	_, url := newGateway(t)
	b := dialTestBridge(t, url)

	id := b.DoKickUser(4, 2)
	require.NotEqual(t, transport.CmdFailure, id)

	ev, err := b.GetMessage(time.Second)
	require.NoError(t, err)
	assert.Equal(t, ttevent.CodeCmdSuccess, ev.Code)
	assert.Equal(t, int(id), ev.CommandID())
}

func TestCommandIDsAreDistinct(t *testing.T) {
	_, url := newGateway(t)
	b := dialTestBridge(t, url)

	first := b.DoLogout()
	second := b.DoLeaveChannel()
	require.NotEqual(t, transport.CmdFailure, first)
	require.NotEqual(t, transport.CmdFailure, second)
	assert.NotEqual(t, first, second)
}

func TestLoginCapturesOwnUserID(t *testing.T) {
	_, url := newGateway(t)
	b := dialTestBridge(t, url)

	assert.Equal(t, 0, b.MyUserID())
	require.NotEqual(t, transport.CmdFailure, b.DoLogin("nick", "bot", "pw", "client"))

	ev, err := b.GetMessage(time.Second)
	require.NoError(t, err)
	require.Equal(t, ttevent.CodeCmdMyselfLoggedIn, ev.Code)
	assert.Equal(t, 42, b.MyUserID())
}

func TestAudioFrameStashedUntilRelease(t *testing.T) {
	g, url := newGateway(t)
	b := dialTestBridge(t, url)

	g.Send(inbound{Audio: &audioFrame{Source: 9, Data: []byte{1, 2, 3}}})

	ev, err := b.GetMessage(time.Second)
	require.NoError(t, err)
	require.Equal(t, ttevent.CodeUserAudioBlock, ev.Code)
	assert.Equal(t, 9, ev.Source)

	block, ok := b.AcquireAudioBlock(9)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, block)
	b.ReleaseAudioBlock(9)

	_, ok = b.AcquireAudioBlock(9)
	assert.False(t, ok)
}

func TestGetMessageTimeout(t *testing.T) {
	_, url := newGateway(t)
	b := dialTestBridge(t, url)

	start := time.Now()
	ev, err := b.GetMessage(50 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, ttevent.CodeNone, ev.Code)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestClosedHandleReportsErrConnClosed(t *testing.T) {
	_, url := newGateway(t)
	b := dialTestBridge(t, url)

	require.NoError(t, b.Close())
	_, err := b.GetMessage(50 * time.Millisecond)
	require.ErrorIs(t, err, transport.ErrConnClosed)

	// Sends on a dead handle are rejected, not raised.
	assert.Equal(t, transport.CmdFailure, b.DoLogout())
	assert.False(t, b.Connect("h", 1, 1, false))
}

func TestFactoryProducesUsableConn(t *testing.T) {
	_, url := newGateway(t)

	factory := Factory(url, WithLogger(testutil.DefaultLogger))
	conn, err := factory(context.Background(), ttevent.ServerInfo{Host: "tt.example.com", TCPPort: 10333})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.True(t, conn.Connect("tt.example.com", 10333, 10333, false))
	ev, err := conn.GetMessage(time.Second)
	require.NoError(t, err)
	assert.Equal(t, ttevent.CodeConSuccess, ev.Code)
}
