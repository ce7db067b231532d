// Package wire defines the frames exchanged between relay clients and the
// relay server.
//
// Every websocket binary message carries exactly one CBOR-encoded Frame.
// The relay reads the channel id and type of each frame and forwards data
// bodies untouched; it never interprets them.
//
// A session on one connection is:
//
//	client: open(mode[,ttl])  relay: open(mode)     accepted
//	                          relay: peer-joined    both sides present
//	client: data...           relay: data...        forwarded to the peer
//	client: close(reason)     relay: close(reason)  sent to the peer
//
// A refused open is answered with an error frame and leaves the connection
// unbound, so the client may send another open on it. The relay limits how
// many opens one connection may have refused. Any other failure is a
// single error frame, after which the relay closes the connection.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	kerrors "github.com/PolarWolf314/enseal/internal/errors"
)

// Path is the relay websocket endpoint.
const Path = "/v1/relay"

// MaxChannelIDLen bounds channel identifiers.
const MaxChannelIDLen = 128

// FrameType is the kind of a Frame.
type FrameType uint8

const (
	TypeOpen FrameType = iota + 1
	TypePeerJoined
	TypeData
	TypeClose
	TypeError
)

func (t FrameType) String() string {
	switch t {
	case TypeOpen:
		return "open"
	case TypePeerJoined:
		return "peer-joined"
	case TypeData:
		return "data"
	case TypeClose:
		return "close"
	case TypeError:
		return "error"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// OpenMode selects how an open frame treats an existing channel.
type OpenMode uint8

const (
	// ModeAny creates the channel or joins a waiting one.
	ModeAny OpenMode = iota
	// ModeCreate fails with CodeExists if the channel is live.
	ModeCreate
	// ModeJoin fails with CodeNotFound if nobody is waiting.
	ModeJoin
)

func (m OpenMode) String() string {
	switch m {
	case ModeAny:
		return "any"
	case ModeCreate:
		return "create"
	case ModeJoin:
		return "join"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// CloseReason is the body of a close frame.
type CloseReason uint8

const (
	ReasonConsumed CloseReason = iota + 1
	ReasonAborted
)

func (r CloseReason) String() string {
	switch r {
	case ReasonConsumed:
		return "consumed"
	case ReasonAborted:
		return "aborted"
	default:
		return fmt.Sprintf("reason(%d)", uint8(r))
	}
}

// Frame is the unit of the relay protocol.
type Frame struct {
	ChannelID string    `cbor:"c"`
	Type      FrameType `cbor:"t"`
	Body      []byte    `cbor:"b,omitempty"`
}

// Marshal encodes f.
func Marshal(f *Frame) ([]byte, error) {
	return cbor.Marshal(f)
}

// Unmarshal decodes and validates one frame.
func Unmarshal(data []byte) (*Frame, error) {
	f := new(Frame)
	if err := cbor.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("%w: %v", kerrors.ErrProtocol, err)
	}
	if f.Type < TypeOpen || f.Type > TypeError {
		return nil, fmt.Errorf("%w: unknown frame type %d", kerrors.ErrProtocol, f.Type)
	}
	if !ValidChannelID(f.ChannelID) {
		return nil, fmt.Errorf("%w: invalid channel id", kerrors.ErrProtocol)
	}
	return f, nil
}

// ValidChannelID reports whether id is a non-empty, bounded string of
// ASCII letters, digits, '-' and '_'.
func ValidChannelID(id string) bool {
	if id == "" || len(id) > MaxChannelIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}

func Open(id string, mode OpenMode) *Frame {
	return &Frame{ChannelID: id, Type: TypeOpen, Body: []byte{byte(mode)}}
}

// OpenWithTTL is an open frame that asks the relay to expire a channel it
// creates after ttl, in whole milliseconds. The relay never extends a
// channel past its own TTL.
func OpenWithTTL(id string, mode OpenMode, ttl time.Duration) *Frame {
	f := Open(id, mode)
	if ms := ttl.Milliseconds(); ms > 0 {
		f.Body = binary.BigEndian.AppendUint64(f.Body, uint64(ms))
	}
	return f
}

func PeerJoined(id string) *Frame {
	return &Frame{ChannelID: id, Type: TypePeerJoined}
}

func Data(id string, body []byte) *Frame {
	return &Frame{ChannelID: id, Type: TypeData, Body: body}
}

func Close(id string, reason CloseReason) *Frame {
	return &Frame{ChannelID: id, Type: TypeClose, Body: []byte{byte(reason)}}
}

func Error(id string, code Code, msg string) *Frame {
	return &Frame{ChannelID: id, Type: TypeError, Body: append([]byte{byte(code)}, msg...)}
}

// Mode returns the mode of an open frame.
func (f *Frame) Mode() (OpenMode, error) {
	if f.Type != TypeOpen || (len(f.Body) != 1 && len(f.Body) != 9) || OpenMode(f.Body[0]) > ModeJoin {
		return 0, fmt.Errorf("%w: malformed open frame", kerrors.ErrProtocol)
	}
	return OpenMode(f.Body[0]), nil
}

// TTL returns the lifetime requested by an open frame, or zero when it
// requests none.
func (f *Frame) TTL() time.Duration {
	if f.Type != TypeOpen || len(f.Body) != 9 {
		return 0
	}
	ms := binary.BigEndian.Uint64(f.Body[1:])
	if ms > uint64(time.Duration(1<<63-1)/time.Millisecond) {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// Reason returns the reason carried by a close frame.
func (f *Frame) Reason() (CloseReason, error) {
	if f.Type != TypeClose || len(f.Body) != 1 {
		return 0, fmt.Errorf("%w: malformed close frame", kerrors.ErrProtocol)
	}
	r := CloseReason(f.Body[0])
	if r != ReasonConsumed && r != ReasonAborted {
		return 0, fmt.Errorf("%w: unknown close reason %d", kerrors.ErrProtocol, r)
	}
	return r, nil
}

// Err converts an error frame back into the matching sentinel error.
func (f *Frame) Err() error {
	if f.Type != TypeError || len(f.Body) == 0 {
		return fmt.Errorf("%w: malformed error frame", kerrors.ErrProtocol)
	}
	code, msg := Code(f.Body[0]), string(f.Body[1:])
	if msg == "" {
		return code.Err()
	}
	return fmt.Errorf("%w: relay: %s", code.Err(), msg)
}

// Code identifies an error reported by the relay.
type Code uint8

const (
	CodeInternal Code = iota
	CodeProtocol
	CodeExpired
	CodeConsumed
	CodeAborted
	CodeNotFound
	CodeFull
	CodeExists
	CodeCapacity
	CodeTooLarge
	CodeRateLimited
)

var codeErrors = map[Code]error{
	CodeProtocol:    kerrors.ErrProtocol,
	CodeExpired:     kerrors.ErrChannelExpired,
	CodeConsumed:    kerrors.ErrChannelConsumed,
	CodeAborted:     kerrors.ErrChannelAborted,
	CodeNotFound:    kerrors.ErrChannelNotFound,
	CodeFull:        kerrors.ErrChannelFull,
	CodeExists:      kerrors.ErrChannelExists,
	CodeCapacity:    kerrors.ErrCapacity,
	CodeTooLarge:    kerrors.ErrPayloadTooLarge,
	CodeRateLimited: kerrors.ErrRateLimited,
}

var codeNames = [...]string{
	CodeInternal:    "internal",
	CodeProtocol:    "protocol",
	CodeExpired:     "expired",
	CodeConsumed:    "consumed",
	CodeAborted:     "aborted",
	CodeNotFound:    "not-found",
	CodeFull:        "full",
	CodeExists:      "exists",
	CodeCapacity:    "capacity",
	CodeTooLarge:    "too-large",
	CodeRateLimited: "rate-limited",
}

func (c Code) String() string {
	if int(c) < len(codeNames) {
		return codeNames[c]
	}
	return fmt.Sprintf("code(%d)", uint8(c))
}

var errInternal = errors.New("relay internal error")

// Err returns the sentinel error for c.
func (c Code) Err() error {
	if err, ok := codeErrors[c]; ok {
		return err
	}
	return errInternal
}

// CodeFor returns the code that carries err across the wire.
func CodeFor(err error) Code {
	for code, sentinel := range codeErrors {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return CodeInternal
}
