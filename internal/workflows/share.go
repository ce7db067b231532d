package workflows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PolarWolf314/enseal/internal/audit"
	kerrors "github.com/PolarWolf314/enseal/internal/errors"
	"github.com/PolarWolf314/enseal/internal/identity"
	logger "github.com/PolarWolf314/enseal/internal/logging"
	"github.com/PolarWolf314/enseal/internal/payload"
	"github.com/PolarWolf314/enseal/internal/secrets"
	"github.com/PolarWolf314/enseal/internal/wormhole"
)

// ShareOptions configures the share workflow.
type ShareOptions struct {
	// Payload is what to send.
	Payload payload.Payload

	// To names a recipient, alias, or group. Empty means anonymous mode.
	To string

	// Transport defaults to wormhole. Push and file require To.
	Transport Transport

	// OutputDir is where file drops are written. Defaults to ".".
	OutputDir string

	// Words is the number of code words for wormhole transfers.
	Words int

	// TTL bounds how long the sender waits for the receiver. A wormhole
	// channel is expired by the relay after TTL, so both sides see
	// ErrChannelExpired.
	TTL time.Duration

	Relay   RelayOptions
	Keyring Keyring

	// OnCode is called with the wormhole code as soon as it is reserved,
	// before the receiver connects.
	OnCode func(code string)

	// OnPhase reports wormhole progress.
	OnPhase func(wormhole.Phase)

	Log logger.Logger

	// Now stamps identity envelopes. Defaults to time.Now.
	Now func() time.Time
}

// ShareResult describes a completed share. Exactly one field is set,
// according to the transport.
type ShareResult struct {
	// Code is the wormhole code the receiver used.
	Code string

	// Pushed lists recipients that accepted a relay push.
	Pushed []string

	// FilePaths lists the file drops written.
	FilePaths []string
}

// Mode reports the mode implied by opts.
func (opts *ShareOptions) Mode() Mode {
	if opts.To != "" {
		return ModeIdentity
	}
	return ModeAnonymous
}

// Share sends opts.Payload to one or more receivers.
//
// Returns ErrAuthentication if a wormhole receiver used a wrong code.
// Returns ErrRecipientUnavailable if a push recipient was not listening.
// Returns ErrIdentityNotFound or ErrGroupNotFound if To does not resolve.
func Share(ctx context.Context, opts ShareOptions) (*ShareResult, error) {
	if opts.Transport == "" {
		opts.Transport = TransportWormhole
	}
	entry := audit.LogWithUser(audit.OpShare)
	entry.Mode = string(opts.Mode())
	entry.Transport = string(opts.Transport)
	entry.Kind = opts.Payload.Kind.String()
	entry.Count = len(opts.Payload.Secrets)

	result, recipients, err := share(ctx, opts)
	entry.Recipients = recipientNames(recipients)
	entry.Error = errString(err)
	audit.Log(entry)
	return result, err
}

func share(ctx context.Context, opts ShareOptions) (*ShareResult, []*identity.Recipient, error) {
	if opts.Mode() == ModeAnonymous && opts.Transport != TransportWormhole {
		return nil, nil, fmt.Errorf("%s transport requires a recipient", opts.Transport)
	}

	body, err := payload.Encode(opts.Payload)
	if err != nil {
		return nil, nil, err
	}
	defer secrets.Wipe(body)

	if opts.Now == nil {
		opts.Now = time.Now
	}

	// The relay expires the channel at TTL. A push applies TTL to the wait
	// for a listener instead.
	if opts.TTL > 0 && opts.Transport == TransportWormhole {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, opts.TTL+ttlGrace, kerrors.ErrChannelExpired)
		defer cancel()
	}

	if opts.Mode() == ModeAnonymous {
		code, err := offer(ctx, opts, func() ([]byte, error) {
			return frameBody(bodyAnonymous, body), nil
		})
		if err != nil {
			return nil, nil, err
		}
		return &ShareResult{Code: code}, nil, nil
	}

	if opts.Keyring == nil {
		return nil, nil, kerrors.ErrNoIdentity
	}
	recipients, err := opts.Keyring.ResolveRecipients(opts.To)
	if err != nil {
		return nil, nil, err
	}
	own, err := opts.Keyring.OwnKeyPair()
	if err != nil {
		return nil, recipients, err
	}

	switch opts.Transport {
	case TransportWormhole:
		// Sealed once the receiver is authenticated, so the envelope's age
		// does not include the wait for the receiver.
		code, err := offer(ctx, opts, func() ([]byte, error) {
			env, err := identity.Seal(own, recipients, body, nil, opts.Now())
			if err != nil {
				return nil, err
			}
			return frameBody(bodyIdentity, env), nil
		})
		if err != nil {
			return nil, recipients, err
		}
		return &ShareResult{Code: code}, recipients, nil

	case TransportPush:
		result := &ShareResult{}
		for _, r := range recipients {
			opts.Log.Infof("pushing to %s", r.Name)
			err := identity.Push(ctx, identity.PushOptions{
				RelayURL:  opts.Relay.URL,
				Relay:     opts.Relay.Relay,
				Sender:    own,
				Recipient: r,
				Body:      body,
				Timeout:   opts.TTL,
				Log:       opts.Log,
			})
			if err != nil {
				return result, recipients, fmt.Errorf("push to %s: %w", r.Name, err)
			}
			result.Pushed = append(result.Pushed, r.Name)
		}
		return result, recipients, nil

	case TransportFile:
		dir := opts.OutputDir
		if dir == "" {
			dir = "."
		}
		result := &ShareResult{}
		for _, r := range recipients {
			path, err := identity.WriteDrop(dir, own, r, body)
			if err != nil {
				return result, recipients, err
			}
			result.FilePaths = append(result.FilePaths, path)
		}
		return result, recipients, nil

	default:
		return nil, recipients, fmt.Errorf("unknown transport '%s'", opts.Transport)
	}
}

// ttlGrace lets the relay report expiry before the local deadline fires.
const ttlGrace = 5 * time.Second

// offer reserves a code, reports it and sends the output of build once a
// receiver has proven the code.
func offer(ctx context.Context, opts ShareOptions, build func() ([]byte, error)) (string, error) {
	wopts := wormholeOptions(opts.Relay, opts.Words, opts.OnPhase, opts.Log)
	wopts.TTL = opts.TTL
	sender, err := wormhole.Offer(ctx, wopts)
	if err != nil {
		return "", err
	}
	defer sender.Close()

	code := sender.Code().String()
	if opts.OnCode != nil {
		opts.OnCode(code)
	}
	if err := sender.SendFunc(ctx, build); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && errors.Is(context.Cause(ctx), kerrors.ErrChannelExpired) {
			err = fmt.Errorf("%w: no receiver within %s", kerrors.ErrChannelExpired, opts.TTL)
		}
		return code, err
	}
	return code, nil
}
