package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gopkg.in/op/go-logging.v1"
	"nhooyr.io/websocket"

	kerrors "github.com/PolarWolf314/enseal/internal/errors"
	"github.com/PolarWolf314/enseal/internal/mailbox"
	"github.com/PolarWolf314/enseal/internal/wire"
)

// frameOverhead covers the CBOR framing around a maximal data body.
const frameOverhead = 256

// maxRefusedOpens is how many refused opens one connection may follow with
// another open before the relay hangs up.
const maxRefusedOpens = 32

var (
	// errSessionDone stops a session's pumps once its terminal frame is sent.
	errSessionDone = errors.New("session done")

	errHandshakeTimeout = errors.New("handshake timeout")
)

func (s *Server) handleRelay(w http.ResponseWriter, r *http.Request) {
	addr := clientAddr(r)
	if !s.limiter.Allow(addr) {
		s.metrics.rateLimited.Inc()
		s.log.Warningf("Rate limit exceeded for %s", addr)
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Debugf("Failed to upgrade connection from %s: %v", addr, err)
		return
	}
	ws.SetReadLimit(s.cfg.Server.MaxPayloadBytes + frameOverhead)
	s.metrics.connections.Inc()

	s.Add(1)
	defer s.Done()

	c := &session{
		s:      s,
		ws:     ws,
		connID: uuid.NewString()[:8],
	}
	c.log = s.logBackend.GetLogger("session:" + c.connID)
	c.run(r.Context())
}

// clientAddr is the remote host without its port. Proxy headers are not
// trusted.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// session is one websocket bound to one side of one channel. It only holds
// the channel id and side; all channel state lives in the registry.
type session struct {
	s      *Server
	ws     *websocket.Conn
	log    *logging.Logger
	connID string

	id   string
	side mailbox.Side
}

type readResult struct {
	f   *wire.Frame
	err error
}

func (c *session) run(ctx context.Context) {
	defer c.ws.Close(websocket.StatusNormalClosure, "")

	mode, err := c.bind(ctx)
	if err != nil {
		return
	}
	c.log.Debugf("Opened channel %s as side %s (%s)", shortID(c.id), c.side, mode)

	if err := c.write(ctx, wire.Open(c.id, mode)); err != nil {
		c.s.registry.Close(c.id, mailbox.ReasonAborted)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.readPump(gctx) })
	g.Go(func() error { return c.writePump(gctx) })
	if err := g.Wait(); err != nil && !errors.Is(err, errSessionDone) {
		c.log.Debugf("Session ended: %v", err)
	}
}

// bind reads open frames until the registry accepts one. A refused open is
// reported with an error frame and the client may try again on the same
// connection. A client that goes quiet after a refusal is dropped without
// another frame.
func (c *session) bind(ctx context.Context) (wire.OpenMode, error) {
	for refused := 0; ; refused++ {
		f, err := c.awaitOpen(ctx)
		if err != nil {
			if refused > 0 && errors.Is(err, errHandshakeTimeout) {
				return 0, err
			}
			c.log.Debugf("Handshake failed: %v", err)
			c.fail(ctx, "-", wire.CodeProtocol, err.Error())
			return 0, err
		}
		mode, err := f.Mode()
		if err != nil {
			c.fail(ctx, f.ChannelID, wire.CodeProtocol, "malformed open frame")
			return 0, err
		}

		side, err := c.s.registry.OpenWithTTL(f.ChannelID, mailbox.Mode(mode), f.TTL())
		if err == nil {
			c.id, c.side = f.ChannelID, side
			return mode, nil
		}
		c.log.Debugf("Open refused: %v", err)
		c.fail(ctx, f.ChannelID, wire.CodeFor(err), "")
		if refused+1 >= maxRefusedOpens {
			return 0, err
		}
	}
}

// awaitOpen reads the first frame, which must arrive within the handshake
// timeout and must be an open frame.
func (c *session) awaitOpen(ctx context.Context) (*wire.Frame, error) {
	ch := make(chan readResult, 1)
	go func() {
		f, err := c.read(ctx)
		ch <- readResult{f, err}
	}()

	timer := time.NewTimer(c.s.cfg.Server.HandshakeTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		if res.f.Type != wire.TypeOpen {
			return nil, fmt.Errorf("%w: first frame is %s, not open", kerrors.ErrProtocol, res.f.Type)
		}
		return res.f, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: %w: no open frame within %v", kerrors.ErrProtocol, errHandshakeTimeout, c.s.cfg.Server.HandshakeTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// readPump forwards the client's frames into the registry. A dropped
// connection or a malformed frame aborts the channel.
func (c *session) readPump(ctx context.Context) error {
	for {
		f, err := c.read(ctx)
		if err != nil {
			c.abort("connection lost")
			return err
		}
		if f.ChannelID != c.id {
			c.abort("frame for another channel")
			return kerrors.ErrProtocol
		}

		switch f.Type {
		case wire.TypeData:
			if err := c.s.registry.Relay(ctx, c.id, c.side, f.Body); err != nil {
				// The write pump reports the channel's fate.
				c.log.Debugf("Relay failed: %v", err)
			}
		case wire.TypeClose:
			reason, err := f.Reason()
			if err != nil {
				c.abort("malformed close frame")
				return err
			}
			r := mailbox.ReasonAborted
			if reason == wire.ReasonConsumed {
				r = mailbox.ReasonConsumed
			}
			c.s.registry.Close(c.id, r)
		default:
			c.abort("unexpected " + f.Type.String() + " frame")
			return kerrors.ErrProtocol
		}
	}
}

// writePump announces the peer, forwards the peer's data and finally tells
// the client how the channel ended.
func (c *session) writePump(ctx context.Context) error {
	if c.side == mailbox.SideA {
		if err := c.s.registry.AwaitPeer(ctx, c.id); err != nil {
			return c.terminate(ctx, err)
		}
	}
	if err := c.write(ctx, wire.PeerJoined(c.id)); err != nil {
		return err
	}

	for {
		msg, err := c.s.registry.Receive(ctx, c.id, c.side)
		if err != nil {
			return c.terminate(ctx, err)
		}
		if err := c.write(ctx, wire.Data(c.id, msg)); err != nil {
			return err
		}
	}
}

// terminate sends the frame describing why the channel ended and closes
// the websocket.
func (c *session) terminate(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var f *wire.Frame
	switch {
	case errors.Is(err, kerrors.ErrChannelConsumed):
		f = wire.Close(c.id, wire.ReasonConsumed)
	case errors.Is(err, kerrors.ErrChannelAborted):
		f = wire.Close(c.id, wire.ReasonAborted)
	default:
		f = wire.Error(c.id, wire.CodeFor(err), "")
	}
	if werr := c.write(ctx, f); werr != nil {
		return werr
	}
	c.ws.Close(websocket.StatusNormalClosure, "")
	return errSessionDone
}

func (c *session) abort(why string) {
	if c.s.registry.Close(c.id, mailbox.ReasonAborted) {
		c.log.Debugf("Aborted channel %s: %s", shortID(c.id), why)
	}
}

func (c *session) fail(ctx context.Context, id string, code wire.Code, msg string) {
	_ = c.write(ctx, wire.Error(id, code, msg))
}

func (c *session) read(ctx context.Context) (*wire.Frame, error) {
	typ, data, err := c.ws.Read(ctx)
	if err != nil {
		return nil, err
	}
	if typ != websocket.MessageBinary {
		return nil, fmt.Errorf("%w: text message", kerrors.ErrProtocol)
	}
	return wire.Unmarshal(data)
}

func (c *session) write(ctx context.Context, f *wire.Frame) error {
	data, err := wire.Marshal(f)
	if err != nil {
		return err
	}
	return c.ws.Write(ctx, websocket.MessageBinary, data)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8] + "…"
	}
	return id
}
