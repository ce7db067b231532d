// Package payload defines the secret set exchanged between two parties and
// its canonical binary encoding.
//
// The encoding is:
//
//	version(1) || kind(1) || body
//
// where the EnvSet body is u32 count followed by count triples of
// u32-length-prefixed key, value, and label, and the RawSecret body is a
// u32-length-prefixed label followed by a u32-length-prefixed value. All
// integers are big endian. Byte strings pass through unmodified.
package payload

import (
	"fmt"

	"golang.org/x/crypto/cryptobyte"

	kerrors "github.com/PolarWolf314/enseal/internal/errors"
)

// Version is the only encoding version Decode accepts.
const Version = 1

// Kind tags the Payload variant.
type Kind uint8

const (
	KindEnvSet    Kind = 0
	KindRawSecret Kind = 1
)

func (k Kind) String() string {
	switch k {
	case KindEnvSet:
		return "env-set"
	case KindRawSecret:
		return "raw-secret"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Secret is one named value. Value is an opaque byte string.
type Secret struct {
	Key   string
	Value []byte
	Label string
}

// SecretSet is an ordered sequence of secrets. Keys are not required to be
// unique.
type SecretSet []Secret

// Payload is exactly one of an EnvSet or a RawSecret, selected by Kind.
type Payload struct {
	Kind Kind

	// Secrets is set for KindEnvSet.
	Secrets SecretSet

	// Label and Value are set for KindRawSecret.
	Label string
	Value []byte
}

// EnvSet returns a Payload carrying a secret set.
func EnvSet(s SecretSet) Payload {
	return Payload{Kind: KindEnvSet, Secrets: s}
}

// RawSecret returns a Payload carrying a single labelled value.
func RawSecret(label string, value []byte) Payload {
	return Payload{Kind: KindRawSecret, Label: label, Value: value}
}

// Summary describes the payload without revealing any value.
func (p Payload) Summary() string {
	switch p.Kind {
	case KindEnvSet:
		if len(p.Secrets) == 1 {
			return "1 variable"
		}
		return fmt.Sprintf("%d variables", len(p.Secrets))
	case KindRawSecret:
		if p.Label == "" {
			return "raw secret"
		}
		return fmt.Sprintf("raw secret %q", p.Label)
	default:
		return p.Kind.String()
	}
}

// Wipe overwrites every value held by the payload.
func (p *Payload) Wipe() {
	for i := range p.Secrets {
		clear(p.Secrets[i].Value)
	}
	clear(p.Value)
}

// Encode serializes p. It fails only for an unknown Kind or a field too
// long for a 32-bit length prefix.
func Encode(p Payload) ([]byte, error) {
	var b cryptobyte.Builder
	b.AddUint8(Version)
	b.AddUint8(uint8(p.Kind))

	switch p.Kind {
	case KindEnvSet:
		b.AddUint32(uint32(len(p.Secrets)))
		for _, s := range p.Secrets {
			addField(&b, []byte(s.Key))
			addField(&b, s.Value)
			addField(&b, []byte(s.Label))
		}
	case KindRawSecret:
		addField(&b, []byte(p.Label))
		addField(&b, p.Value)
	default:
		return nil, fmt.Errorf("%w: unknown payload kind %d", kerrors.ErrFormat, p.Kind)
	}

	out, err := b.Bytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kerrors.ErrFormat, err)
	}
	return out, nil
}

func addField(b *cryptobyte.Builder, v []byte) {
	b.AddUint32(uint32(len(v)))
	b.AddBytes(v)
}

// minSecretLen is the smallest encoding of one secret: three empty fields.
const minSecretLen = 3 * 4

// Decode parses an encoding produced by Encode. Any truncation, overlong
// length, trailing data, or unknown version or kind yields ErrFormat.
func Decode(data []byte) (Payload, error) {
	s := cryptobyte.String(data)

	var version, kind uint8
	if !s.ReadUint8(&version) || !s.ReadUint8(&kind) {
		return Payload{}, fmt.Errorf("%w: truncated header", kerrors.ErrFormat)
	}
	if version != Version {
		return Payload{}, fmt.Errorf("%w: unsupported version %d", kerrors.ErrFormat, version)
	}

	var p Payload
	switch Kind(kind) {
	case KindEnvSet:
		var count uint32
		if !s.ReadUint32(&count) {
			return Payload{}, fmt.Errorf("%w: truncated count", kerrors.ErrFormat)
		}
		if uint64(count)*minSecretLen > uint64(len(s)) {
			return Payload{}, fmt.Errorf("%w: count %d exceeds remaining input", kerrors.ErrFormat, count)
		}
		p.Kind = KindEnvSet
		p.Secrets = make(SecretSet, 0, count)
		for i := uint32(0); i < count; i++ {
			var key, value, label []byte
			if !readField(&s, &key) || !readField(&s, &value) || !readField(&s, &label) {
				return Payload{}, fmt.Errorf("%w: truncated secret %d", kerrors.ErrFormat, i)
			}
			p.Secrets = append(p.Secrets, Secret{Key: string(key), Value: value, Label: string(label)})
		}
	case KindRawSecret:
		var label, value []byte
		if !readField(&s, &label) || !readField(&s, &value) {
			return Payload{}, fmt.Errorf("%w: truncated raw secret", kerrors.ErrFormat)
		}
		p = RawSecret(string(label), value)
	default:
		return Payload{}, fmt.Errorf("%w: unknown payload kind %d", kerrors.ErrFormat, kind)
	}

	if !s.Empty() {
		return Payload{}, fmt.Errorf("%w: %d trailing bytes", kerrors.ErrFormat, len(s))
	}
	return p, nil
}

// readField reads a u32-length-prefixed field into a fresh slice, so the
// result never aliases the input buffer.
func readField(s *cryptobyte.String, out *[]byte) bool {
	var n uint32
	var v []byte
	if !s.ReadUint32(&n) || !s.ReadBytes(&v, int(n)) {
		return false
	}
	*out = append([]byte{}, v...)
	return true
}
