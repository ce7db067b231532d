package workflows

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/PolarWolf314/enseal/internal/audit"
	"github.com/PolarWolf314/enseal/internal/envfile"
	kerrors "github.com/PolarWolf314/enseal/internal/errors"
	"github.com/PolarWolf314/enseal/internal/identity"
	logger "github.com/PolarWolf314/enseal/internal/logging"
	"github.com/PolarWolf314/enseal/internal/payload"
	"github.com/PolarWolf314/enseal/internal/utils"
	"github.com/PolarWolf314/enseal/internal/wormhole"
)

// ReceiveOptions configures the receive workflow.
type ReceiveOptions struct {
	// Input is a wormhole code, a file-drop path, or a glob of paths.
	Input string

	// OutputPath, if set, is where received payloads are written with
	// 0600 permissions. Env sets are rendered as a .env file.
	OutputPath string

	// Timeout bounds a wormhole receive.
	Timeout time.Duration

	Relay RelayOptions

	// Keyring is required for identity-mode payloads.
	Keyring Keyring

	OnPhase func(wormhole.Phase)

	Log logger.Logger
}

// Received is one verified payload.
type Received struct {
	Payload payload.Payload

	// Sender is the verified sender, empty in anonymous mode.
	Sender string

	// Source is the file a drop was read from, empty for wormholes.
	Source string
}

// ReceiveResult contains the outcome of a receive.
type ReceiveResult struct {
	Received []*Received

	// OutputPath is set when the payloads were written to disk.
	OutputPath string
}

// Receive redeems a wormhole code or reads file drops.
//
// Returns ErrChannelConsumed, ErrChannelExpired or ErrChannelNotFound for
// a code that can no longer be used.
// Returns ErrAuthentication for a wrong code.
// Returns ErrUntrustedSender if an identity payload's signer is not
// imported; no payload is returned in that case.
func Receive(ctx context.Context, opts ReceiveOptions) (*ReceiveResult, error) {
	entry := audit.LogWithUser(audit.OpReceive)

	result, err := receive(ctx, opts, &entry)
	if result != nil {
		for _, r := range result.Received {
			entry.Count += len(r.Payload.Secrets)
			entry.Kind = r.Payload.Kind.String()
			if r.Sender != "" {
				entry.Sender = r.Sender
			}
		}
		entry.OutputPath = result.OutputPath
	}
	entry.Error = errString(err)
	audit.Log(entry)
	return result, err
}

func receive(ctx context.Context, opts ReceiveOptions, entry *audit.Entry) (*ReceiveResult, error) {
	var (
		received []*Received
		err      error
	)
	if isPath(opts.Input) {
		entry.Mode, entry.Transport = string(ModeIdentity), string(TransportFile)
		received, err = receiveFiles(opts)
	} else {
		entry.Transport = string(TransportWormhole)
		var r *Received
		r, err = receiveWormhole(ctx, opts)
		if r != nil {
			entry.Mode = string(ModeAnonymous)
			if r.Sender != "" {
				entry.Mode = string(ModeIdentity)
			}
			received = []*Received{r}
		}
	}
	if err != nil {
		return nil, err
	}

	result := &ReceiveResult{Received: received}
	if opts.OutputPath != "" {
		if err := writeOutput(opts.OutputPath, received); err != nil {
			return result, err
		}
		result.OutputPath = opts.OutputPath
	}
	return result, nil
}

// isPath reports whether input names files rather than a code.
func isPath(input string) bool {
	if _, err := os.Stat(input); err == nil {
		return true
	}
	if _, err := wormhole.ParseCode(input); err == nil {
		return false
	}
	return filepath.Ext(input) != "" || filepath.Base(input) != input
}

func receiveWormhole(ctx context.Context, opts ReceiveOptions) (*Received, error) {
	code, err := wormhole.ParseCode(opts.Input)
	if err != nil {
		return nil, err
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	// The body is decoded and verified before the channel is marked
	// consumed, so a sender whose envelope is refused sees the abort.
	var received *Received
	wopts := wormholeOptions(opts.Relay, 0, opts.OnPhase, opts.Log)
	wopts.Accept = func(body []byte) error {
		r, err := openBody(body, opts.Keyring)
		received = r
		return err
	}
	if _, err := wormhole.Receive(ctx, code, wopts); err != nil {
		return nil, err
	}
	return received, nil
}

// openBody decodes a wormhole body, verifying identity envelopes against
// keyring.
func openBody(body []byte, keyring Keyring) (*Received, error) {
	kind, rest, err := splitBody(body)
	if err != nil {
		return nil, err
	}

	if kind == bodyAnonymous {
		p, err := payload.Decode(rest)
		if err != nil {
			return nil, err
		}
		return &Received{Payload: p}, nil
	}

	if keyring == nil {
		return nil, fmt.Errorf("%w: the sender encrypted to your identity", kerrors.ErrNoIdentity)
	}
	opened, err := identity.Open(keyring, rest, identity.OpenOptions{MaxAge: identity.DefaultMaxAge})
	if err != nil {
		return nil, err
	}
	return decodeOpened(opened, "")
}

func receiveFiles(opts ReceiveOptions) ([]*Received, error) {
	if opts.Keyring == nil {
		return nil, kerrors.ErrNoIdentity
	}
	paths, err := utils.ExpandPatterns([]string{opts.Input})
	if err != nil {
		return nil, err
	}

	out := make([]*Received, 0, len(paths))
	for _, path := range paths {
		opened, err := identity.ReadDrop(opts.Keyring, path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		r, err := decodeOpened(opened, path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func decodeOpened(opened *identity.Opened, source string) (*Received, error) {
	p, err := payload.Decode(opened.Body)
	if err != nil {
		return nil, err
	}
	return &Received{Payload: p, Sender: opened.Sender.Name, Source: source}, nil
}

// writeOutput writes every payload to path. Env sets are merged in order;
// a raw secret is written verbatim and must be the only payload.
func writeOutput(path string, received []*Received) error {
	var secrets payload.SecretSet
	for _, r := range received {
		switch r.Payload.Kind {
		case payload.KindEnvSet:
			secrets = append(secrets, r.Payload.Secrets...)
		case payload.KindRawSecret:
			if len(received) != 1 {
				return fmt.Errorf("cannot merge raw secret from %s into %s", r.Source, path)
			}
			return utils.WriteFileAtomic(path, r.Payload.Value, 0600)
		}
	}
	return utils.WriteFileAtomic(path, envfile.Render(secrets), 0600)
}
