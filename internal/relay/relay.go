package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"nhooyr.io/websocket"

	kerrors "github.com/PolarWolf314/enseal/internal/errors"
	logger "github.com/PolarWolf314/enseal/internal/logging"
	"github.com/PolarWolf314/enseal/internal/wire"
)

const (
	// DefaultReadLimit bounds a single frame read from the relay.
	DefaultReadLimit = 4 << 20

	defaultDialAttempts = 4
)

// Options configures Dial.
type Options struct {
	// ReadLimit bounds incoming frames. Defaults to DefaultReadLimit.
	ReadLimit int64

	// DialAttempts is the number of connection attempts before giving up.
	DialAttempts int

	// HTTPClient is used for the websocket handshake when set.
	HTTPClient *http.Client

	Log logger.Logger
}

// Conn is a relay connection bound to at most one channel. An open the
// relay refuses leaves the connection unbound and usable for another open.
type Conn struct {
	ws     *websocket.Conn
	log    logger.Logger
	id     string
	broken bool
}

// NormalizeURL turns a user supplied relay address into a websocket URL
// ending in the relay path. Plain http is upgraded to wss with a warning.
func NormalizeURL(raw string, log logger.Logger) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("relay url is empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "wss://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid relay url %q: %w", raw, err)
	}

	switch u.Scheme {
	case "ws", "wss":
	case "https":
		u.Scheme = "wss"
	case "http":
		log.WarnfAlways("relay url %s uses http, connecting with wss instead", u.Host)
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported relay url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("relay url %q has no host", raw)
	}

	u.Path = strings.TrimSuffix(u.Path, "/")
	if !strings.HasSuffix(u.Path, wire.Path) {
		u.Path += wire.Path
	}
	return u.String(), nil
}

// Dial connects to the relay at rawURL, retrying transient failures with
// exponential backoff.
func Dial(ctx context.Context, rawURL string, opts Options) (*Conn, error) {
	u, err := NormalizeURL(rawURL, opts.Log)
	if err != nil {
		return nil, err
	}
	attempts := opts.DialAttempts
	if attempts <= 0 {
		attempts = defaultDialAttempts
	}
	limit := opts.ReadLimit
	if limit <= 0 {
		limit = DefaultReadLimit
	}

	var ws *websocket.Conn
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxInterval = 2 * time.Second

	err = backoff.RetryNotify(
		func() error {
			c, resp, dialErr := websocket.Dial(ctx, u, &websocket.DialOptions{HTTPClient: opts.HTTPClient})
			if dialErr == nil {
				ws = c
				return nil
			}
			if resp != nil {
				switch resp.StatusCode {
				case http.StatusTooManyRequests:
					return backoff.Permanent(kerrors.ErrRateLimited)
				case http.StatusServiceUnavailable:
					return backoff.Permanent(kerrors.ErrCapacity)
				}
			}
			return dialErr
		},
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(attempts-1)), ctx),
		func(retryErr error, d time.Duration) {
			opts.Log.Debugf("failed to connect to relay, retrying in %s: %v", d, retryErr)
		},
	)
	if err != nil {
		if errors.Is(err, kerrors.ErrRateLimited) || errors.Is(err, kerrors.ErrCapacity) {
			return nil, fmt.Errorf("relay %s refused the connection: %w", u, err)
		}
		return nil, fmt.Errorf("failed to connect to relay %s: %w", u, err)
	}

	ws.SetReadLimit(limit)
	opts.Log.Debugf("connected to relay %s", u)
	return &Conn{ws: ws, log: opts.Log}, nil
}

// ChannelID returns the channel this connection opened, if any.
func (c *Conn) ChannelID() string {
	return c.id
}

// Broken reports whether the websocket has failed. A broken connection
// must be closed and dialed again.
func (c *Conn) Broken() bool {
	return c.broken
}

// Open opens channel id and waits for the relay to accept it.
func (c *Conn) Open(ctx context.Context, id string, mode wire.OpenMode) error {
	return c.OpenWithTTL(ctx, id, mode, 0)
}

// OpenWithTTL is Open asking the relay to expire the channel after ttl if
// this call creates it.
func (c *Conn) OpenWithTTL(ctx context.Context, id string, mode wire.OpenMode, ttl time.Duration) error {
	if c.id != "" {
		return fmt.Errorf("%w: connection already bound to a channel", kerrors.ErrProtocol)
	}
	if !wire.ValidChannelID(id) {
		return fmt.Errorf("%w: invalid channel id", kerrors.ErrProtocol)
	}
	if err := c.write(ctx, wire.OpenWithTTL(id, mode, ttl)); err != nil {
		return err
	}
	c.id = id

	f, err := c.read(ctx)
	if err == nil && f.Type != wire.TypeOpen {
		c.broken = true
		err = fmt.Errorf("%w: expected open acknowledgement, got %s", kerrors.ErrProtocol, f.Type)
	}
	if err != nil {
		c.id = ""
		return err
	}
	c.log.Debugf("channel opened (%s)", mode)
	return nil
}

// AwaitPeer blocks until the relay reports the second participant.
func (c *Conn) AwaitPeer(ctx context.Context) error {
	f, err := c.read(ctx)
	if err != nil {
		return err
	}
	if f.Type != wire.TypePeerJoined {
		return fmt.Errorf("%w: expected peer-joined, got %s", kerrors.ErrProtocol, f.Type)
	}
	c.log.Debugf("peer joined")
	return nil
}

// Send sends one data frame to the peer.
func (c *Conn) Send(ctx context.Context, body []byte) error {
	return c.write(ctx, wire.Data(c.id, body))
}

// Recv returns the body of the next data frame. A close frame from the peer
// is reported as the matching channel error.
func (c *Conn) Recv(ctx context.Context) ([]byte, error) {
	f, err := c.read(ctx)
	if err != nil {
		return nil, err
	}
	switch f.Type {
	case wire.TypeData:
		return f.Body, nil
	case wire.TypeClose:
		reason, err := f.Reason()
		if err != nil {
			return nil, err
		}
		return nil, reasonErr(reason)
	default:
		return nil, fmt.Errorf("%w: unexpected %s frame", kerrors.ErrProtocol, f.Type)
	}
}

// Finish tells the relay the exchange is over.
func (c *Conn) Finish(ctx context.Context, reason wire.CloseReason) error {
	return c.write(ctx, wire.Close(c.id, reason))
}

// AwaitClose waits for the close frame the relay forwards when the peer
// finishes, and returns its reason.
func (c *Conn) AwaitClose(ctx context.Context) (wire.CloseReason, error) {
	f, err := c.read(ctx)
	if err != nil {
		return 0, err
	}
	if f.Type != wire.TypeClose {
		return 0, fmt.Errorf("%w: expected close, got %s", kerrors.ErrProtocol, f.Type)
	}
	return f.Reason()
}

// Close closes the websocket.
func (c *Conn) Close() error {
	err := c.ws.Close(websocket.StatusNormalClosure, "")
	if err != nil && websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		return nil
	}
	return err
}

func (c *Conn) write(ctx context.Context, f *wire.Frame) error {
	data, err := wire.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to encode %s frame: %w", f.Type, err)
	}
	if err := c.ws.Write(ctx, websocket.MessageBinary, data); err != nil {
		return c.transportErr(ctx, err)
	}
	return nil
}

// read returns the next frame, converting error frames into errors.
func (c *Conn) read(ctx context.Context) (*wire.Frame, error) {
	typ, data, err := c.ws.Read(ctx)
	if err != nil {
		return nil, c.transportErr(ctx, err)
	}
	if typ != websocket.MessageBinary {
		c.broken = true
		return nil, fmt.Errorf("%w: unexpected text message", kerrors.ErrProtocol)
	}

	f, err := wire.Unmarshal(data)
	if err != nil {
		c.broken = true
		return nil, err
	}
	if f.Type == wire.TypeError {
		return nil, f.Err()
	}
	if f.ChannelID != c.id {
		c.broken = true
		return nil, fmt.Errorf("%w: frame for another channel", kerrors.ErrProtocol)
	}
	return f, nil
}

func (c *Conn) transportErr(ctx context.Context, err error) error {
	c.broken = true
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusMessageTooBig:
		return fmt.Errorf("%w: frame exceeds the relay limit", kerrors.ErrPayloadTooLarge)
	case websocket.StatusGoingAway, websocket.StatusNormalClosure:
		return fmt.Errorf("%w: relay closed the connection", kerrors.ErrChannelAborted)
	}
	return fmt.Errorf("%w: relay connection lost: %v", kerrors.ErrChannelAborted, err)
}

func reasonErr(r wire.CloseReason) error {
	if r == wire.ReasonConsumed {
		return kerrors.ErrChannelConsumed
	}
	return kerrors.ErrChannelAborted
}
