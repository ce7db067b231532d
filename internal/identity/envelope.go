package identity

import (
	"bytes"
	"crypto/ed25519"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/cryptobyte"

	kerrors "github.com/PolarWolf314/enseal/internal/errors"
	"github.com/PolarWolf314/enseal/internal/secrets"
)

const (
	envelopeVersion = 1

	// DefaultMaxAge bounds the age of envelopes received over a relay.
	DefaultMaxAge = 300 * time.Second

	// clockSkew is how far in the future a creation time may lie.
	clockSkew = 30 * time.Second
)

var signatureDomain = []byte("enseal/v1/envelope")

// Recipient is a party's public identity as held by a keyring.
type Recipient struct {
	Name    string
	Public  *[32]byte
	Signing ed25519.PublicKey
}

// Fingerprint returns the fingerprint of the recipient's keys.
func (r *Recipient) Fingerprint() string {
	return secrets.Fingerprint(r.Public, r.Signing)
}

// Keyring resolves names to public keys and holds the local identity.
type Keyring interface {
	// LookupPublicKey resolves a name or alias to a trusted identity.
	LookupPublicKey(name string) (*Recipient, error)

	// LookupGroup resolves a group to its members.
	LookupGroup(name string) ([]*Recipient, error)

	// LookupSigner returns the trusted identity owning a signing key, or
	// ErrUntrustedSender.
	LookupSigner(pub ed25519.PublicKey) (*Recipient, error)

	// OwnKeyPair returns the local identity.
	OwnKeyPair() (*secrets.KeyPair, error)
}

// envelope is the signed wire form.
type envelope struct {
	Version    int    `cbor:"1,keyasint"`
	Sender     []byte `cbor:"2,keyasint"`
	Created    int64  `cbor:"3,keyasint"`
	Token      []byte `cbor:"4,keyasint,omitempty"`
	Ciphertext []byte `cbor:"5,keyasint"`
	Signature  []byte `cbor:"6,keyasint"`
}

func (e *envelope) signedMessage() ([]byte, error) {
	var b cryptobyte.Builder
	b.AddBytes(signatureDomain)
	b.AddUint64(uint64(e.Created))
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(e.Token)
	})
	b.AddBytes(e.Ciphertext)
	return b.Bytes()
}

// Seal encrypts body to recipients and signs the result with sender's
// signing key. token, if non-nil, binds the envelope to one exchange.
func Seal(sender *secrets.KeyPair, recipients []*Recipient, body, token []byte, now time.Time) ([]byte, error) {
	if len(recipients) == 0 {
		return nil, fmt.Errorf("%w: no recipients", kerrors.ErrIdentityNotFound)
	}
	pubs := make([]*[32]byte, len(recipients))
	for i, r := range recipients {
		pubs[i] = r.Public
	}

	ct, err := secrets.HybridEncrypt(pubs, body)
	if err != nil {
		return nil, err
	}

	env := &envelope{
		Version:    envelopeVersion,
		Sender:     sender.SigningPublic(),
		Created:    now.Unix(),
		Token:      token,
		Ciphertext: ct,
	}
	msg, err := env.signedMessage()
	if err != nil {
		return nil, fmt.Errorf("failed to build signed message: %w", err)
	}
	env.Signature = secrets.Sign(sender.Signing, msg)
	return cbor.Marshal(env)
}

// OpenOptions constrains which envelopes Open accepts.
type OpenOptions struct {
	// Token, if set, must equal the token signed into the envelope.
	Token []byte

	// MaxAge rejects envelopes created earlier than now-MaxAge. Zero
	// disables the check.
	MaxAge time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

// Opened is a verified and decrypted envelope.
type Opened struct {
	Sender *Recipient
	Body   []byte
}

// Open verifies data against kr and decrypts it with the local identity.
// Verification happens entirely before decryption, so a body is never
// returned for an untrusted, forged, or stale envelope.
func Open(kr Keyring, data []byte, opts OpenOptions) (*Opened, error) {
	var env envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", kerrors.ErrFormat, err)
	}
	if env.Version != envelopeVersion {
		return nil, fmt.Errorf("%w: unsupported envelope version %d", kerrors.ErrFormat, env.Version)
	}
	if len(env.Sender) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: bad sender key", kerrors.ErrFormat)
	}

	sender, err := kr.LookupSigner(ed25519.PublicKey(env.Sender))
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(sender.Signing, env.Sender) {
		return nil, fmt.Errorf("%w: keyring returned a different signer", kerrors.ErrUntrustedSender)
	}

	msg, err := env.signedMessage()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kerrors.ErrFormat, err)
	}
	if !secrets.Verify(sender.Signing, msg, env.Signature) {
		return nil, fmt.Errorf("%w: signature does not verify for %s", kerrors.ErrUntrustedSender, sender.Name)
	}

	if opts.Token != nil && subtle.ConstantTimeCompare(opts.Token, env.Token) != 1 {
		return nil, fmt.Errorf("%w: token mismatch", kerrors.ErrReplay)
	}

	if opts.MaxAge > 0 {
		now := time.Now
		if opts.Now != nil {
			now = opts.Now
		}
		created := time.Unix(env.Created, 0)
		if age := now().Sub(created); age > opts.MaxAge || age < -clockSkew {
			return nil, fmt.Errorf("%w: created %s", kerrors.ErrReplay, created.UTC().Format(time.RFC3339))
		}
	}

	own, err := kr.OwnKeyPair()
	if err != nil {
		return nil, err
	}
	body, err := secrets.HybridDecrypt(own.Public, own.Private, env.Ciphertext)
	if err != nil {
		return nil, err
	}
	return &Opened{Sender: sender, Body: body}, nil
}
