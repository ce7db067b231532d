package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/PolarWolf314/enseal/internal/configs"
	kerrors "github.com/PolarWolf314/enseal/internal/errors"
	"github.com/PolarWolf314/enseal/internal/relay"
	"github.com/PolarWolf314/enseal/internal/wire"
)

func newTestServer(t *testing.T, mutate func(*configs.Server)) *Server {
	t.Helper()
	cfg := &configs.ServerConfig{
		Server:  &configs.Server{Address: "127.0.0.1:0", RateLimitPerMinute: -1},
		Logging: &configs.Logging{Disable: true},
		Metrics: &configs.Metrics{Enable: true},
	}
	if mutate != nil {
		mutate(cfg.Server)
	}
	s, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(s.Shutdown)
	return s
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func dial(t *testing.T, ctx context.Context, s *Server) *relay.Conn {
	t.Helper()
	c, err := relay.Dial(ctx, s.URL(), relay.Options{DialAttempts: 1})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// pair opens id on two fresh connections and waits until both see the peer.
func pair(t *testing.T, ctx context.Context, s *Server, id string) (*relay.Conn, *relay.Conn) {
	t.Helper()
	a := dial(t, ctx, s)
	require.NoError(t, a.Open(ctx, id, wire.ModeCreate))
	b := dial(t, ctx, s)
	require.NoError(t, b.Open(ctx, id, wire.ModeJoin))
	require.NoError(t, a.AwaitPeer(ctx))
	require.NoError(t, b.AwaitPeer(ctx))
	return a, b
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)

	resp, err := http.Get("http://" + s.Addr().String() + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "ok", body.Status)
	require.Equal(t, "enseal-relay", body.Service)
	require.Equal(t, Version, body.Version)
	require.Zero(t, body.Channels)
}

func TestRelayForwardsBothWays(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := testContext(t)
	a, b := pair(t, ctx, s, "forward")

	require.NoError(t, a.Send(ctx, []byte("one")))
	require.NoError(t, a.Send(ctx, []byte("two")))
	msg, err := b.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, "one", string(msg))
	msg, err = b.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, "two", string(msg))

	require.NoError(t, b.Send(ctx, []byte("back")))
	msg, err = a.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, "back", string(msg))
	require.Equal(t, 1, s.Channels())
}

func TestConsumedChannelIsGone(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := testContext(t)
	a, b := pair(t, ctx, s, "consume")

	require.NoError(t, a.Send(ctx, []byte("sealed")))
	_, err := b.Recv(ctx)
	require.NoError(t, err)
	require.NoError(t, b.Finish(ctx, wire.ReasonConsumed))

	reason, err := a.AwaitClose(ctx)
	require.NoError(t, err)
	require.Equal(t, wire.ReasonConsumed, reason)
	require.Eventually(t, func() bool { return s.Channels() == 0 }, 2*time.Second, 10*time.Millisecond)

	late := dial(t, ctx, s)
	require.ErrorIs(t, late.Open(ctx, "consume", wire.ModeJoin), kerrors.ErrChannelConsumed)
	again := dial(t, ctx, s)
	require.ErrorIs(t, again.Open(ctx, "consume", wire.ModeAny), kerrors.ErrChannelConsumed)
}

func TestThirdParticipantRefused(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := testContext(t)
	a, b := pair(t, ctx, s, "two-only")

	c := dial(t, ctx, s)
	require.ErrorIs(t, c.Open(ctx, "two-only", wire.ModeAny), kerrors.ErrChannelFull)

	require.NoError(t, a.Send(ctx, []byte("still works")))
	msg, err := b.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, "still works", string(msg))
}

func TestCapacity(t *testing.T) {
	s := newTestServer(t, func(c *configs.Server) { c.MaxChannels = 2 })
	ctx := testContext(t)

	first := dial(t, ctx, s)
	require.NoError(t, first.Open(ctx, "cap-1", wire.ModeCreate))
	second := dial(t, ctx, s)
	require.NoError(t, second.Open(ctx, "cap-2", wire.ModeCreate))

	third := dial(t, ctx, s)
	require.ErrorIs(t, third.Open(ctx, "cap-3", wire.ModeCreate), kerrors.ErrCapacity)

	joiner := dial(t, ctx, s)
	require.NoError(t, joiner.Open(ctx, "cap-1", wire.ModeJoin))
	require.NoError(t, first.AwaitPeer(ctx))
	require.NoError(t, joiner.AwaitPeer(ctx))
	require.NoError(t, first.Send(ctx, []byte("ok")))
	_, err := joiner.Recv(ctx)
	require.NoError(t, err)
}

func TestExpiry(t *testing.T) {
	s := newTestServer(t, func(c *configs.Server) {
		c.ChannelTTL = 300 * time.Millisecond
		c.SweepInterval = 50 * time.Millisecond
	})
	ctx := testContext(t)

	waiting := dial(t, ctx, s)
	require.NoError(t, waiting.Open(ctx, "idle", wire.ModeCreate))
	require.ErrorIs(t, waiting.AwaitPeer(ctx), kerrors.ErrChannelExpired)
	require.Zero(t, s.Channels())

	late := dial(t, ctx, s)
	require.ErrorIs(t, late.Open(ctx, "idle", wire.ModeJoin), kerrors.ErrChannelExpired)
}

func TestJoinMissing(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := testContext(t)

	c := dial(t, ctx, s)
	require.ErrorIs(t, c.Open(ctx, "nobody", wire.ModeJoin), kerrors.ErrChannelNotFound)
}

func TestCreateExisting(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := testContext(t)

	a := dial(t, ctx, s)
	require.NoError(t, a.Open(ctx, "taken", wire.ModeCreate))
	b := dial(t, ctx, s)
	require.ErrorIs(t, b.Open(ctx, "taken", wire.ModeCreate), kerrors.ErrChannelExists)
}

func TestRefusedOpenLeavesConnectionUsable(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := testContext(t)

	a := dial(t, ctx, s)
	require.NoError(t, a.Open(ctx, "reopen", wire.ModeCreate))

	b := dial(t, ctx, s)
	require.ErrorIs(t, b.Open(ctx, "missing-1", wire.ModeJoin), kerrors.ErrChannelNotFound)
	require.ErrorIs(t, b.Open(ctx, "reopen", wire.ModeCreate), kerrors.ErrChannelExists)
	require.False(t, b.Broken())
	require.NoError(t, b.Open(ctx, "reopen", wire.ModeJoin))
	require.Equal(t, "reopen", b.ChannelID())

	require.NoError(t, a.AwaitPeer(ctx))
	require.NoError(t, b.AwaitPeer(ctx))
	require.NoError(t, a.Send(ctx, []byte("after refusals")))
	got, err := b.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("after refusals"), got)
}

func TestTooManyRefusedOpensHangsUp(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := testContext(t)

	c := dial(t, ctx, s)
	for i := 0; i < maxRefusedOpens; i++ {
		require.ErrorIs(t, c.Open(ctx, "nobody", wire.ModeJoin), kerrors.ErrChannelNotFound)
	}
	require.Error(t, c.Open(ctx, "nobody", wire.ModeJoin))
	require.True(t, c.Broken())
}

func TestRequestedTTLShortensChannel(t *testing.T) {
	s := newTestServer(t, func(c *configs.Server) { c.ChannelTTL = time.Hour })
	ctx := testContext(t)

	waiting := dial(t, ctx, s)
	start := time.Now()
	require.NoError(t, waiting.OpenWithTTL(ctx, "brief", wire.ModeCreate, 200*time.Millisecond))
	require.ErrorIs(t, waiting.AwaitPeer(ctx), kerrors.ErrChannelExpired)
	require.Less(t, time.Since(start), 5*time.Second)

	late := dial(t, ctx, s)
	require.ErrorIs(t, late.Open(ctx, "brief", wire.ModeJoin), kerrors.ErrChannelExpired)
}

func TestDisconnectAbortsPeer(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := testContext(t)
	a, b := pair(t, ctx, s, "drop")

	require.NoError(t, a.Close())
	_, err := b.Recv(ctx)
	require.ErrorIs(t, err, kerrors.ErrChannelAborted)
	require.Eventually(t, func() bool { return s.Channels() == 0 }, 2*time.Second, 10*time.Millisecond)

	late := dial(t, ctx, s)
	require.ErrorIs(t, late.Open(ctx, "drop", wire.ModeJoin), kerrors.ErrChannelAborted)
}

func TestPayloadTooLarge(t *testing.T) {
	s := newTestServer(t, func(c *configs.Server) { c.MaxPayloadBytes = 1024 })
	ctx := testContext(t)
	a, b := pair(t, ctx, s, "big")

	require.NoError(t, a.Send(ctx, make([]byte, 8192)))
	_, err := a.Recv(ctx)
	require.ErrorIs(t, err, kerrors.ErrPayloadTooLarge)

	_, err = b.Recv(ctx)
	require.ErrorIs(t, err, kerrors.ErrChannelAborted)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, func(c *configs.Server) { c.RateLimitPerMinute = 2 })
	ctx := testContext(t)

	dial(t, ctx, s)
	dial(t, ctx, s)
	_, err := relay.Dial(ctx, s.URL(), relay.Options{DialAttempts: 3})
	require.ErrorIs(t, err, kerrors.ErrRateLimited)
}

func TestHandshakeTimeout(t *testing.T) {
	s := newTestServer(t, func(c *configs.Server) { c.HandshakeTimeout = 100 * time.Millisecond })
	ctx := testContext(t)

	ws, _, err := websocket.Dial(ctx, s.URL()+wire.Path, nil)
	require.NoError(t, err)
	defer ws.Close(websocket.StatusNormalClosure, "")

	typ, data, err := ws.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, websocket.MessageBinary, typ)
	f, err := wire.Unmarshal(data)
	require.NoError(t, err)
	require.Equal(t, wire.TypeError, f.Type)
	require.ErrorIs(t, f.Err(), kerrors.ErrProtocol)
}

func TestFirstFrameMustBeOpen(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := testContext(t)

	ws, _, err := websocket.Dial(ctx, s.URL()+wire.Path, nil)
	require.NoError(t, err)
	defer ws.Close(websocket.StatusNormalClosure, "")

	data, err := wire.Marshal(wire.Data("sneaky", []byte("x")))
	require.NoError(t, err)
	require.NoError(t, ws.Write(ctx, websocket.MessageBinary, data))

	_, data, err = ws.Read(ctx)
	require.NoError(t, err)
	f, err := wire.Unmarshal(data)
	require.NoError(t, err)
	require.ErrorIs(t, f.Err(), kerrors.ErrProtocol)
	require.Zero(t, s.Channels())
}

func TestMetrics(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := testContext(t)
	a, b := pair(t, ctx, s, "metered")
	require.NoError(t, a.Send(ctx, []byte("12345")))
	_, err := b.Recv(ctx)
	require.NoError(t, err)

	resp, err := http.Get("http://" + s.Addr().String() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	require.True(t, strings.Contains(text, "enseal_relay_channels_opened_total 1"), text)
	require.True(t, strings.Contains(text, "enseal_relay_channels_paired_total 1"), text)
	require.True(t, strings.Contains(text, "enseal_relay_relayed_bytes_total 5"), text)
	require.True(t, strings.Contains(text, "enseal_relay_channels_live 1"), text)
}

func TestShutdownAbortsChannels(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := testContext(t)

	waiting := dial(t, ctx, s)
	require.NoError(t, waiting.Open(ctx, "pending", wire.ModeCreate))

	done := make(chan struct{})
	go func() {
		s.Shutdown()
		close(done)
	}()

	require.ErrorIs(t, waiting.AwaitPeer(ctx), kerrors.ErrChannelAborted)
	select {
	case <-done:
	case <-time.After(8 * time.Second):
		t.Fatal("shutdown did not complete")
	}
	s.Wait()
}

func TestRateLimiterWindow(t *testing.T) {
	l := newRateLimiter(2, 16)
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }

	require.True(t, l.Allow("10.0.0.1"))
	require.True(t, l.Allow("10.0.0.1"))
	require.False(t, l.Allow("10.0.0.1"))
	require.True(t, l.Allow("10.0.0.2"))

	now = now.Add(61 * time.Second)
	require.True(t, l.Allow("10.0.0.1"))

	require.True(t, newRateLimiter(-1, 16).Allow("x"))
}
