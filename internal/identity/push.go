package identity

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	kerrors "github.com/PolarWolf314/enseal/internal/errors"
	logger "github.com/PolarWolf314/enseal/internal/logging"
	"github.com/PolarWolf314/enseal/internal/relay"
	"github.com/PolarWolf314/enseal/internal/secrets"
	"github.com/PolarWolf314/enseal/internal/wire"
)

const (
	// DefaultPushTimeout is how long Push waits for a listener.
	DefaultPushTimeout = time.Minute

	tokenSize = 32
)

// PushOptions configures the sending side of a relay push.
type PushOptions struct {
	RelayURL string
	Relay    relay.Options

	Sender    *secrets.KeyPair
	Recipient *Recipient
	Body      []byte

	// Timeout bounds the wait for the recipient to be listening.
	Timeout time.Duration

	// PollInterval is the initial delay between probes. It grows
	// exponentially up to five seconds.
	PollInterval time.Duration

	Log logger.Logger
	Now func() time.Time
}

// Push delivers Body to a listening recipient. It returns
// ErrRecipientUnavailable if no listener appears within Timeout.
func Push(ctx context.Context, opts PushOptions) error {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultPushTimeout
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var conn *relay.Conn
	p := &prober{opts: opts}
	defer p.close()
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = interval
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = 0

	err := backoff.RetryNotify(
		func() error {
			ids, err := senderIDs(opts.Sender, opts.Recipient.Public, now())
			if err != nil {
				return backoff.Permanent(err)
			}
			c, err := p.join(ctx, pollCtx, ids)
			if err != nil {
				return err
			}
			conn = c
			return nil
		},
		backoff.WithContext(policy, pollCtx),
		func(retryErr error, d time.Duration) {
			if errors.Is(retryErr, kerrors.ErrRateLimited) {
				opts.Log.Debugf("relay is rate limiting probes, waiting %s", d)
				return
			}
			opts.Log.Debugf("%s is not listening yet, probing again in %s", opts.Recipient.Name, d)
		},
	)
	if err != nil {
		if pollCtx.Err() != nil && ctx.Err() == nil {
			return fmt.Errorf("%w: %s did not listen within %s", kerrors.ErrRecipientUnavailable, opts.Recipient.Name, timeout)
		}
		return err
	}
	defer conn.Close()
	opts.Log.Debugf("found %s listening", opts.Recipient.Name)

	if err := conn.AwaitPeer(ctx); err != nil {
		return err
	}
	token, err := conn.Recv(ctx)
	if err != nil {
		return err
	}
	if len(token) != tokenSize {
		_ = conn.Finish(ctx, wire.ReasonAborted)
		return fmt.Errorf("%w: listener token is %d bytes", kerrors.ErrProtocol, len(token))
	}

	data, err := Seal(opts.Sender, []*Recipient{opts.Recipient}, opts.Body, token, now())
	if err != nil {
		_ = conn.Finish(ctx, wire.ReasonAborted)
		return err
	}
	if err := conn.Send(ctx, data); err != nil {
		return err
	}

	reason, err := conn.AwaitClose(ctx)
	if err != nil {
		return err
	}
	if reason != wire.ReasonConsumed {
		return fmt.Errorf("%w: %s rejected the envelope", kerrors.ErrChannelAborted, opts.Recipient.Name)
	}
	return nil
}

// prober tries rendezvous ids over a single relay connection that it
// keeps between rounds, so a long wait costs few connections against the
// relay's rate limit.
type prober struct {
	opts PushOptions
	conn *relay.Conn
}

// join joins the first id a listener holds. It returns
// ErrRecipientUnavailable when none is open, and ErrRateLimited when the
// relay refuses a new connection; both are worth another round.
func (p *prober) join(ctx, pollCtx context.Context, ids []string) (*relay.Conn, error) {
	redialed := false
	for i := 0; i < len(ids); {
		if p.conn == nil {
			c, err := relay.Dial(ctx, p.opts.RelayURL, p.opts.Relay)
			if errors.Is(err, kerrors.ErrRateLimited) {
				return nil, err
			}
			if err != nil {
				return nil, backoff.Permanent(err)
			}
			p.conn = c
		}

		err := p.conn.Open(pollCtx, ids[i], wire.ModeJoin)
		switch {
		case err == nil:
			c := p.conn
			p.conn = nil
			return c, nil
		case pollCtx.Err() != nil:
			return nil, pollCtx.Err()
		case p.conn.Broken():
			// The relay hangs up on idle or exhausted probe connections.
			p.close()
			if redialed {
				return nil, backoff.Permanent(err)
			}
			redialed = true
			continue
		case !slotUnavailable(err) && !errors.Is(err, kerrors.ErrChannelNotFound):
			return nil, backoff.Permanent(err)
		}
		i++
	}
	return nil, kerrors.ErrRecipientUnavailable
}

func (p *prober) close() {
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}

func slotUnavailable(err error) bool {
	return errors.Is(err, kerrors.ErrChannelExists) ||
		errors.Is(err, kerrors.ErrChannelFull) ||
		errors.Is(err, kerrors.ErrChannelConsumed) ||
		errors.Is(err, kerrors.ErrChannelExpired) ||
		errors.Is(err, kerrors.ErrChannelAborted)
}

// ListenOptions configures the receiving side of a relay push.
type ListenOptions struct {
	RelayURL string
	Relay    relay.Options

	Keyring Keyring

	// From is the only sender accepted.
	From *Recipient

	// OnListening, if set, is called each time a rendezvous channel is
	// opened.
	OnListening func(channelID string)

	Log logger.Logger
	Now func() time.Time
}

// Listen waits for one push from opts.From and returns the verified
// envelope. Rendezvous channels that expire are replaced until ctx ends.
func Listen(ctx context.Context, opts ListenOptions) (*Opened, error) {
	own, err := opts.Keyring.OwnKeyPair()
	if err != nil {
		return nil, err
	}
	for {
		opened, err := listenOnce(ctx, own, opts)
		if errors.Is(err, kerrors.ErrChannelExpired) && ctx.Err() == nil {
			opts.Log.Debugf("rendezvous channel expired, reopening")
			continue
		}
		return opened, err
	}
}

func listenOnce(ctx context.Context, own *secrets.KeyPair, opts ListenOptions) (*Opened, error) {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	ids, err := listenerIDs(own, opts.From.Public, now())
	if err != nil {
		return nil, err
	}

	conn, err := createFirst(ctx, ids, opts)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	if opts.OnListening != nil {
		opts.OnListening(conn.ChannelID())
	}

	if err := conn.AwaitPeer(ctx); err != nil {
		return nil, err
	}

	token := make([]byte, tokenSize)
	if _, err := rand.Read(token); err != nil {
		_ = conn.Finish(ctx, wire.ReasonAborted)
		return nil, fmt.Errorf("failed to draw token: %w", err)
	}
	if err := conn.Send(ctx, token); err != nil {
		return nil, err
	}
	data, err := conn.Recv(ctx)
	if err != nil {
		return nil, err
	}

	opened, err := Open(opts.Keyring, data, OpenOptions{Token: token, MaxAge: DefaultMaxAge, Now: opts.Now})
	if err == nil && !bytes.Equal(opened.Sender.Signing, opts.From.Signing) {
		err = fmt.Errorf("%w: expected %s, got %s", kerrors.ErrUntrustedSender, opts.From.Name, opened.Sender.Name)
		secrets.Wipe(opened.Body)
	}
	if err != nil {
		_ = conn.Finish(ctx, wire.ReasonAborted)
		return nil, err
	}
	if err := conn.Finish(ctx, wire.ReasonConsumed); err != nil {
		secrets.Wipe(opened.Body)
		return nil, err
	}
	return opened, nil
}

// createFirst creates the first free slot of ids on one connection.
func createFirst(ctx context.Context, ids []string, opts ListenOptions) (*relay.Conn, error) {
	c, err := relay.Dial(ctx, opts.RelayURL, opts.Relay)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		err = c.Open(ctx, id, wire.ModeCreate)
		if err == nil {
			return c, nil
		}
		if c.Broken() || !slotUnavailable(err) {
			c.Close()
			return nil, err
		}
	}
	c.Close()
	return nil, fmt.Errorf("%w: every rendezvous slot of this window is used", kerrors.ErrCapacity)
}
