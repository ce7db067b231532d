package workflows

import (
	"fmt"

	kerrors "github.com/PolarWolf314/enseal/internal/errors"
	"github.com/PolarWolf314/enseal/internal/identity"
	logger "github.com/PolarWolf314/enseal/internal/logging"
	"github.com/PolarWolf314/enseal/internal/relay"
	"github.com/PolarWolf314/enseal/internal/wormhole"
)

// Mode selects how the payload is protected.
type Mode string

const (
	// ModeAnonymous relies on the wormhole code alone.
	ModeAnonymous Mode = "anonymous"

	// ModeIdentity additionally encrypts to recipients' keys and signs.
	ModeIdentity Mode = "identity"
)

// Transport selects how the payload travels.
type Transport string

const (
	TransportWormhole Transport = "wormhole"
	TransportPush     Transport = "push"
	TransportFile     Transport = "file"
)

// ParseTransport validates a transport name.
func ParseTransport(s string) (Transport, error) {
	switch t := Transport(s); t {
	case TransportWormhole, TransportPush, TransportFile:
		return t, nil
	case "":
		return TransportWormhole, nil
	default:
		return "", fmt.Errorf("unknown transport '%s' (use wormhole, push or file)", s)
	}
}

// Keyring is the trust store as the workflows need it.
type Keyring interface {
	identity.Keyring

	// ResolveRecipients resolves a name, alias, or group.
	ResolveRecipients(name string) ([]*identity.Recipient, error)
}

// RelayOptions is the relay connection shared by every workflow.
type RelayOptions struct {
	URL string

	// Relay tunes the websocket client.
	Relay relay.Options
}

// The first byte of a wormhole body says what follows.
const (
	bodyAnonymous byte = 0
	bodyIdentity  byte = 1
)

func frameBody(kind byte, body []byte) []byte {
	out := make([]byte, 0, 1+len(body))
	out = append(out, kind)
	return append(out, body...)
}

func splitBody(b []byte) (byte, []byte, error) {
	if len(b) == 0 {
		return 0, nil, fmt.Errorf("%w: empty transfer body", kerrors.ErrFormat)
	}
	switch b[0] {
	case bodyAnonymous, bodyIdentity:
		return b[0], b[1:], nil
	default:
		return 0, nil, fmt.Errorf("%w: unknown body type %d", kerrors.ErrFormat, b[0])
	}
}

func wormholeOptions(r RelayOptions, words int, onPhase func(wormhole.Phase), log logger.Logger) wormhole.Options {
	ro := r.Relay
	ro.Log = log
	return wormhole.Options{
		RelayURL: r.URL,
		Words:    words,
		Relay:    ro,
		OnPhase:  onPhase,
		Log:      log,
	}
}

func recipientNames(rs []*identity.Recipient) []string {
	names := make([]string, len(rs))
	for i, r := range rs {
		names[i] = r.Name
	}
	return names
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
