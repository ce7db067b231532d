package secrets

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/nacl/box"

	kerrors "github.com/PolarWolf314/enseal/internal/errors"
)

// KeySize is the size of every symmetric key used by enseal.
const KeySize = chacha20poly1305.KeySize

// WrapSize is the per-recipient overhead of a hybrid envelope.
const WrapSize = KeySize + box.AnonymousOverhead

const hybridVersion = 1

var hybridAD = []byte("enseal/v1/hybrid")

// CreateSymmetricKey generates a new random 256-bit key.
func CreateSymmetricKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to read random key: %w", err)
	}
	return key, nil
}

// Seal encrypts plaintext under key, binding ad. The random nonce is
// prepended to the returned ciphertext.
func Seal(key, plaintext, ad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to read nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, ad), nil
}

// Open decrypts a ciphertext produced by Seal. Any modification of the
// ciphertext, nonce, or ad yields ErrAuthentication and no plaintext.
func Open(key, sealed, ad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", kerrors.ErrAuthentication)
	}

	nonce, ct := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	pt, err := aead.Open(nil, nonce, ct, ad)
	if err != nil {
		return nil, kerrors.ErrAuthentication
	}
	return pt, nil
}

type hybridEnvelope struct {
	Version    uint8    `cbor:"v"`
	Wraps      [][]byte `cbor:"w"`
	Ciphertext []byte   `cbor:"c"`
}

// HybridEncrypt seals plaintext once under a random content key and wraps
// that key for every recipient.
func HybridEncrypt(recipients []*[32]byte, plaintext []byte) ([]byte, error) {
	if len(recipients) == 0 {
		return nil, fmt.Errorf("hybrid encryption needs at least one recipient")
	}

	contentKey, err := CreateSymmetricKey()
	if err != nil {
		return nil, err
	}
	defer Wipe(contentKey)

	env := hybridEnvelope{Version: hybridVersion, Wraps: make([][]byte, 0, len(recipients))}
	for _, pub := range recipients {
		wrap, err := box.SealAnonymous(nil, contentKey, pub, rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to wrap content key: %w", err)
		}
		env.Wraps = append(env.Wraps, wrap)
	}

	env.Ciphertext, err = Seal(contentKey, plaintext, hybridAD)
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(env)
}

// HybridDecrypt recovers the plaintext of a hybrid envelope with the
// caller's X25519 key pair. Every wrap is tried, so wrap order does not
// matter. If no wrap opens, ErrDecrypt is returned.
func HybridDecrypt(pub, priv *[32]byte, envelope []byte) ([]byte, error) {
	var env hybridEnvelope
	if err := cbor.Unmarshal(envelope, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", kerrors.ErrFormat, err)
	}
	if env.Version != hybridVersion {
		return nil, fmt.Errorf("%w: unsupported envelope version %d", kerrors.ErrFormat, env.Version)
	}

	for _, wrap := range env.Wraps {
		if len(wrap) != WrapSize {
			continue
		}
		contentKey, ok := box.OpenAnonymous(nil, wrap, pub, priv)
		if !ok {
			continue
		}
		pt, err := Open(contentKey, env.Ciphertext, hybridAD)
		Wipe(contentKey)
		if err != nil {
			return nil, err
		}
		return pt, nil
	}
	return nil, kerrors.ErrDecrypt
}

// Sign signs message with an Ed25519 key.
func Sign(priv ed25519.PrivateKey, message []byte) []byte {
	return ed25519.Sign(priv, message)
}

// Verify reports whether sig is a valid signature of message by pub.
func Verify(pub ed25519.PublicKey, message, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, message, sig)
}

// Wipe zeroes b.
func Wipe(b []byte) {
	clear(b)
}
