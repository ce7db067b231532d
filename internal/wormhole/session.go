package wormhole

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/hkdf"

	kerrors "github.com/PolarWolf314/enseal/internal/errors"
	logger "github.com/PolarWolf314/enseal/internal/logging"
	"github.com/PolarWolf314/enseal/internal/relay"
	"github.com/PolarWolf314/enseal/internal/secrets"
	"github.com/PolarWolf314/enseal/internal/spake2"
	"github.com/PolarWolf314/enseal/internal/wire"
)

// Phase is the observable state of a session.
type Phase uint8

const (
	PhaseCodeGenerated Phase = iota
	PhaseAwaitingPeer
	PhaseKeyExchanging
	PhaseAuthenticated
	PhaseTransferring
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseCodeGenerated:
		return "code-generated"
	case PhaseAwaitingPeer:
		return "awaiting-peer"
	case PhaseKeyExchanging:
		return "key-exchanging"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseTransferring:
		return "transferring"
	case PhaseClosed:
		return "closed"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

const (
	confirmSize = sha256.Size

	// maxNameplateAttempts bounds retries when a drawn nameplate is taken.
	maxNameplateAttempts = 5

	contextPrefix = "enseal/v1/wormhole:"
	payloadPrefix = "enseal/v1/payload:"
)

// Options configures both ends of a transfer.
type Options struct {
	// RelayURL is the relay to rendezvous on.
	RelayURL string

	// Words is the number of code words the sender draws.
	Words int

	// Relay configures the relay connection.
	Relay relay.Options

	// TTL, if set, asks the relay to expire the sender's channel sooner
	// than its own limit. Both sides then see ErrChannelExpired.
	TTL time.Duration

	// Accept, if set, vets the received body before the receiver marks
	// the channel consumed. An error aborts the channel instead, so the
	// sender learns the transfer was rejected.
	Accept func(body []byte) error

	// OnPhase, if set, is called on every phase transition.
	OnPhase func(Phase)

	Log logger.Logger
}

// keys is the schedule derived from the SPAKE2 key.
type keys struct {
	senderConfirm   []byte
	receiverConfirm []byte
	payload         []byte
}

func deriveKeys(shared []byte, channelID string) (*keys, error) {
	derive := func(label string) ([]byte, error) {
		out := make([]byte, 32)
		r := hkdf.New(sha256.New, shared, []byte(channelID), []byte("enseal/v1/wormhole/"+label))
		if _, err := io.ReadFull(r, out); err != nil {
			return nil, err
		}
		return out, nil
	}

	k := new(keys)
	var err error
	if k.senderConfirm, err = derive("confirm-sender"); err != nil {
		return nil, err
	}
	if k.receiverConfirm, err = derive("confirm-receiver"); err != nil {
		return nil, err
	}
	if k.payload, err = derive("payload"); err != nil {
		return nil, err
	}
	return k, nil
}

func (k *keys) wipe() {
	if k == nil {
		return
	}
	secrets.Wipe(k.senderConfirm)
	secrets.Wipe(k.receiverConfirm)
	secrets.Wipe(k.payload)
}

func confirmTag(key, x, y []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(x)
	mac.Write(y)
	return mac.Sum(nil)
}

// session is the state shared by both roles.
type session struct {
	conn  *relay.Conn
	code  Code
	phase Phase
	opts  Options
}

func (s *session) setPhase(p Phase) {
	s.phase = p
	s.opts.Log.Debugf("wormhole %s: %s", s.code.ChannelID(), p)
	if s.opts.OnPhase != nil {
		s.opts.OnPhase(p)
	}
}

// abort tells the relay to destroy the channel. The original error is
// what the caller sees.
func (s *session) abort(ctx context.Context, err error) error {
	if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		_ = s.conn.Finish(ctx, wire.ReasonAborted)
	}
	s.setPhase(PhaseClosed)
	return err
}

func (s *session) context() []byte {
	return []byte(contextPrefix + s.code.ChannelID())
}

func (s *session) payloadAD() []byte {
	return []byte(payloadPrefix + s.code.ChannelID())
}

// Sender is the offering side of a transfer.
type Sender struct {
	session
}

// Offer connects to the relay and reserves a fresh code. The code can be
// shown to the user as soon as Offer returns.
func Offer(ctx context.Context, opts Options) (*Sender, error) {
	words := opts.Words
	if words == 0 {
		words = DefaultWords
	}

	conn, err := relay.Dial(ctx, opts.RelayURL, opts.Relay)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxNameplateAttempts; attempt++ {
		code, err := GenerateCode(words)
		if err != nil {
			conn.Close()
			return nil, err
		}

		err = conn.OpenWithTTL(ctx, code.ChannelID(), wire.ModeCreate, opts.TTL)
		if err == nil {
			s := &Sender{session{conn: conn, code: code, opts: opts}}
			s.setPhase(PhaseCodeGenerated)
			return s, nil
		}
		if conn.Broken() ||
			(!errors.Is(err, kerrors.ErrChannelExists) &&
				!errors.Is(err, kerrors.ErrChannelConsumed) &&
				!errors.Is(err, kerrors.ErrChannelExpired) &&
				!errors.Is(err, kerrors.ErrChannelAborted)) {
			conn.Close()
			return nil, err
		}
		opts.Log.Debugf("nameplate %s unavailable, drawing another", code.Nameplate)
	}
	conn.Close()
	return nil, fmt.Errorf("%w: no free nameplate after %d attempts", kerrors.ErrChannelExists, maxNameplateAttempts)
}

// Code returns the code the receiver must enter.
func (s *Sender) Code() Code {
	return s.code
}

// Phase returns the current phase.
func (s *Sender) Phase() Phase {
	return s.phase
}

// Send waits for the receiver, authenticates it and transfers body. It
// returns once the receiver has confirmed consumption.
func (s *Sender) Send(ctx context.Context, body []byte) error {
	return s.SendFunc(ctx, func() ([]byte, error) { return append([]byte(nil), body...), nil })
}

// SendFunc is Send with the body built only once the receiver has proven
// the code. Content that carries its own timestamp should be built here
// rather than before the wait. The built body is wiped after sealing.
func (s *Sender) SendFunc(ctx context.Context, build func() ([]byte, error)) error {
	s.setPhase(PhaseAwaitingPeer)
	if err := s.conn.AwaitPeer(ctx); err != nil {
		s.setPhase(PhaseClosed)
		return err
	}

	s.setPhase(PhaseKeyExchanging)
	st, x, err := spake2.New(spake2.RoleA, s.code.password(), s.context())
	if err != nil {
		return s.abort(ctx, err)
	}
	defer st.Close()

	if err := s.conn.Send(ctx, x); err != nil {
		return s.abort(ctx, err)
	}

	reply, err := s.conn.Recv(ctx)
	if err != nil {
		return s.abort(ctx, err)
	}
	if len(reply) != spake2.MessageSize+confirmSize {
		return s.abort(ctx, fmt.Errorf("%w: unexpected reply of %d bytes", kerrors.ErrHandshake, len(reply)))
	}
	y, peerConfirm := reply[:spake2.MessageSize], reply[spake2.MessageSize:]

	shared, err := st.Finish(y)
	if err != nil {
		return s.abort(ctx, err)
	}
	k, err := deriveKeys(shared, s.code.ChannelID())
	secrets.Wipe(shared)
	if err != nil {
		return s.abort(ctx, err)
	}
	defer k.wipe()

	// Our own tag is sent even on mismatch so a wrong-code receiver also
	// learns the exchange failed.
	ownConfirm := confirmTag(k.senderConfirm, x, y)
	if !hmac.Equal(peerConfirm, confirmTag(k.receiverConfirm, x, y)) {
		_ = s.conn.Send(ctx, ownConfirm)
		return s.abort(ctx, fmt.Errorf("%w: receiver did not prove the code", kerrors.ErrAuthentication))
	}
	if err := s.conn.Send(ctx, ownConfirm); err != nil {
		return s.abort(ctx, err)
	}
	s.setPhase(PhaseAuthenticated)

	body, err := build()
	if err != nil {
		return s.abort(ctx, err)
	}
	sealed, err := secrets.Seal(k.payload, body, s.payloadAD())
	secrets.Wipe(body)
	if err != nil {
		return s.abort(ctx, err)
	}
	s.setPhase(PhaseTransferring)
	if err := s.conn.Send(ctx, sealed); err != nil {
		return s.abort(ctx, err)
	}

	reason, err := s.conn.AwaitClose(ctx)
	s.setPhase(PhaseClosed)
	if err != nil {
		return err
	}
	if reason != wire.ReasonConsumed {
		return fmt.Errorf("%w: receiver rejected the transfer", kerrors.ErrChannelAborted)
	}
	return nil
}

// Close releases the relay connection. Closing before Send completes
// aborts the channel.
func (s *Sender) Close() error {
	return s.conn.Close()
}

// Receive redeems code and returns the transferred body.
func Receive(ctx context.Context, code Code, opts Options) ([]byte, error) {
	conn, err := relay.Dial(ctx, opts.RelayURL, opts.Relay)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	s := &session{conn: conn, code: code, opts: opts}
	s.setPhase(PhaseAwaitingPeer)
	if err := conn.Open(ctx, code.ChannelID(), wire.ModeJoin); err != nil {
		s.setPhase(PhaseClosed)
		return nil, err
	}
	if err := conn.AwaitPeer(ctx); err != nil {
		s.setPhase(PhaseClosed)
		return nil, err
	}
	return s.receive(ctx)
}

func (s *session) receive(ctx context.Context) ([]byte, error) {
	s.setPhase(PhaseKeyExchanging)
	x, err := s.conn.Recv(ctx)
	if err != nil {
		return nil, s.abort(ctx, err)
	}

	st, y, err := spake2.New(spake2.RoleB, s.code.password(), s.context())
	if err != nil {
		return nil, s.abort(ctx, err)
	}
	defer st.Close()

	shared, err := st.Finish(x)
	if err != nil {
		return nil, s.abort(ctx, err)
	}
	k, err := deriveKeys(shared, s.code.ChannelID())
	secrets.Wipe(shared)
	if err != nil {
		return nil, s.abort(ctx, err)
	}
	defer k.wipe()

	reply := make([]byte, 0, len(y)+confirmSize)
	reply = append(reply, y...)
	reply = append(reply, confirmTag(k.receiverConfirm, x, y)...)
	if err := s.conn.Send(ctx, reply); err != nil {
		return nil, s.abort(ctx, err)
	}

	peerConfirm, err := s.conn.Recv(ctx)
	if err != nil {
		if errors.Is(err, kerrors.ErrChannelAborted) {
			err = fmt.Errorf("%w: sender aborted during authentication", kerrors.ErrAuthentication)
		}
		return nil, s.abort(ctx, err)
	}
	if !hmac.Equal(peerConfirm, confirmTag(k.senderConfirm, x, y)) {
		return nil, s.abort(ctx, fmt.Errorf("%w: wrong code", kerrors.ErrAuthentication))
	}
	s.setPhase(PhaseAuthenticated)

	s.setPhase(PhaseTransferring)
	sealed, err := s.conn.Recv(ctx)
	if err != nil {
		return nil, s.abort(ctx, err)
	}
	body, err := secrets.Open(k.payload, sealed, s.payloadAD())
	if err != nil {
		return nil, s.abort(ctx, err)
	}
	if s.opts.Accept != nil {
		if err := s.opts.Accept(body); err != nil {
			secrets.Wipe(body)
			return nil, s.abort(ctx, err)
		}
	}

	if err := s.conn.Finish(ctx, wire.ReasonConsumed); err != nil {
		secrets.Wipe(body)
		s.setPhase(PhaseClosed)
		return nil, err
	}
	s.setPhase(PhaseClosed)
	return body, nil
}
