// Package spake2 implements the SPAKE2 password-authenticated key exchange
// over the edwards25519 group.
//
// The sender (role A) blinds its ephemeral share with M, the receiver
// (role B) with N:
//
//	X = x*G + w*M
//	Y = y*G + w*N
//	K = h*x*(Y - w*N) = h*y*(X - w*M)
//
// where w is derived from the password and h is the cofactor. M and N are
// fixed points with unknown discrete logarithm, found by hashing a label to
// the curve. The shared key binds the context, both messages, K, and w.
//
// A State finishes at most once. Its ephemeral scalar is erased by Finish
// whether or not the peer message is acceptable.
package spake2

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"io"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/hkdf"

	kerrors "github.com/PolarWolf314/enseal/internal/errors"
)

// MessageSize is the length of every SPAKE2 message.
const MessageSize = 32

// Role selects which blinding point a party uses.
type Role uint8

const (
	RoleA Role = iota + 1
	RoleB
)

func (r Role) String() string {
	switch r {
	case RoleA:
		return "A"
	case RoleB:
		return "B"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

var pointM, pointN = hashToPoint("M"), hashToPoint("N")

// hashToPoint finds a prime-order point by try-and-increment over SHA-512.
func hashToPoint(label string) *edwards25519.Point {
	identity := edwards25519.NewIdentityPoint()
	for ctr := 0; ctr < 256; ctr++ {
		h := sha512.Sum512([]byte(fmt.Sprintf("enseal/v1/spake2/%s/%d", label, ctr)))
		p, err := new(edwards25519.Point).SetBytes(h[:32])
		if err != nil {
			continue
		}
		p.MultByCofactor(p)
		if p.Equal(identity) == 1 {
			continue
		}
		return p
	}
	panic("spake2: no point found for " + label)
}

// State holds one side of an exchange in progress.
type State struct {
	role    Role
	context []byte
	w       *edwards25519.Scalar
	x       *edwards25519.Scalar
	msg     []byte
	done    bool
}

// New starts an exchange and returns the message to send to the peer.
// context binds the exchange to a channel and is mixed into both the
// password scalar and the shared key.
func New(role Role, password, context []byte) (*State, []byte, error) {
	var own *edwards25519.Point
	switch role {
	case RoleA:
		own = pointM
	case RoleB:
		own = pointN
	default:
		return nil, nil, fmt.Errorf("spake2: invalid role %d", role)
	}

	w, err := passwordScalar(password, context)
	if err != nil {
		return nil, nil, err
	}

	var seed [64]byte
	if _, err := io.ReadFull(rand.Reader, seed[:]); err != nil {
		return nil, nil, fmt.Errorf("spake2: reading randomness: %w", err)
	}
	x, err := edwards25519.NewScalar().SetUniformBytes(seed[:])
	clear(seed[:])
	if err != nil {
		return nil, nil, err
	}

	blind := new(edwards25519.Point).ScalarMult(w, own)
	msg := new(edwards25519.Point).ScalarBaseMult(x)
	msg.Add(msg, blind)

	s := &State{
		role:    role,
		context: append([]byte{}, context...),
		w:       w,
		x:       x,
		msg:     msg.Bytes(),
	}
	return s, append([]byte{}, s.msg...), nil
}

func passwordScalar(password, context []byte) (*edwards25519.Scalar, error) {
	var buf [64]byte
	kdf := hkdf.New(sha512.New, password, context, []byte("enseal/v1/spake2/w"))
	if _, err := io.ReadFull(kdf, buf[:]); err != nil {
		return nil, fmt.Errorf("spake2: deriving password scalar: %w", err)
	}
	defer clear(buf[:])
	return edwards25519.NewScalar().SetUniformBytes(buf[:])
}

// Finish consumes the peer's message and returns the 32-byte shared key.
// A malformed, low-order, or reflected peer message yields ErrHandshake.
func (s *State) Finish(peerMsg []byte) ([]byte, error) {
	if s.done {
		return nil, fmt.Errorf("%w: exchange already finished", kerrors.ErrHandshake)
	}
	s.done = true
	defer s.erase()

	if len(peerMsg) != MessageSize {
		return nil, fmt.Errorf("%w: message is %d bytes", kerrors.ErrHandshake, len(peerMsg))
	}
	if bytes.Equal(peerMsg, s.msg) {
		return nil, fmt.Errorf("%w: reflected message", kerrors.ErrHandshake)
	}
	peer, err := new(edwards25519.Point).SetBytes(peerMsg)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid point encoding", kerrors.ErrHandshake)
	}
	identity := edwards25519.NewIdentityPoint()
	if new(edwards25519.Point).MultByCofactor(peer).Equal(identity) == 1 {
		return nil, fmt.Errorf("%w: low order point", kerrors.ErrHandshake)
	}

	peerBlind := pointN
	if s.role == RoleB {
		peerBlind = pointM
	}
	unblinded := new(edwards25519.Point).ScalarMult(s.w, peerBlind)
	unblinded.Subtract(peer, unblinded)

	k := new(edwards25519.Point).ScalarMult(s.x, unblinded)
	k.MultByCofactor(k)
	if k.Equal(identity) == 1 {
		return nil, fmt.Errorf("%w: degenerate shared point", kerrors.ErrHandshake)
	}

	msgA, msgB := s.msg, peerMsg
	if s.role == RoleB {
		msgA, msgB = peerMsg, s.msg
	}
	return transcriptHash(s.context, msgA, msgB, k.Bytes(), s.w.Bytes())
}

// Close erases the state's secrets without finishing. Finish fails
// afterwards.
func (s *State) Close() {
	s.done = true
	s.erase()
}

func (s *State) erase() {
	zero := edwards25519.NewScalar()
	s.x.Set(zero)
	s.w.Set(zero)
}

func transcriptHash(fields ...[]byte) ([]byte, error) {
	var b cryptobyte.Builder
	for _, f := range fields {
		b.AddUint32(uint32(len(f)))
		b.AddBytes(f)
	}
	transcript, err := b.Bytes()
	if err != nil {
		return nil, err
	}
	defer clear(transcript)
	sum := sha256.Sum256(transcript)
	return sum[:], nil
}
