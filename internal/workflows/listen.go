package workflows

import (
	"context"
	"time"

	"github.com/PolarWolf314/enseal/internal/audit"
	kerrors "github.com/PolarWolf314/enseal/internal/errors"
	"github.com/PolarWolf314/enseal/internal/identity"
	logger "github.com/PolarWolf314/enseal/internal/logging"
)

// ListenOptions configures the listen workflow.
type ListenOptions struct {
	// From is the sender to accept a push from.
	From string

	// Timeout bounds the whole wait. Zero waits until ctx ends.
	Timeout time.Duration

	// OutputPath, if set, is where the payload is written.
	OutputPath string

	Relay   RelayOptions
	Keyring Keyring

	// OnListening is called each time a rendezvous channel is opened.
	OnListening func()

	Log logger.Logger
}

// Listen waits for a relay push from opts.From.
//
// Returns ErrIdentityNotFound if From has not been imported.
// Returns ErrUntrustedSender if the envelope fails verification.
func Listen(ctx context.Context, opts ListenOptions) (*ReceiveResult, error) {
	entry := audit.LogWithUser(audit.OpListen)
	entry.Mode = string(ModeIdentity)
	entry.Transport = string(TransportPush)
	entry.Sender = opts.From

	result, err := listen(ctx, opts)
	if result != nil {
		for _, r := range result.Received {
			entry.Kind = r.Payload.Kind.String()
			entry.Count = len(r.Payload.Secrets)
		}
		entry.OutputPath = result.OutputPath
	}
	entry.Error = errString(err)
	audit.Log(entry)
	return result, err
}

func listen(ctx context.Context, opts ListenOptions) (*ReceiveResult, error) {
	if opts.Keyring == nil {
		return nil, kerrors.ErrNoIdentity
	}
	from, err := opts.Keyring.LookupPublicKey(opts.From)
	if err != nil {
		return nil, err
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	ro := opts.Relay.Relay
	ro.Log = opts.Log
	opened, err := identity.Listen(ctx, identity.ListenOptions{
		RelayURL: opts.Relay.URL,
		Relay:    ro,
		Keyring:  opts.Keyring,
		From:     from,
		OnListening: func(string) {
			if opts.OnListening != nil {
				opts.OnListening()
			}
		},
		Log: opts.Log,
	})
	if err != nil {
		return nil, err
	}
	r, err := decodeOpened(opened, "")
	if err != nil {
		return nil, err
	}

	result := &ReceiveResult{Received: []*Received{r}}
	if opts.OutputPath != "" {
		if err := writeOutput(opts.OutputPath, result.Received); err != nil {
			return result, err
		}
		result.OutputPath = opts.OutputPath
	}
	return result, nil
}
