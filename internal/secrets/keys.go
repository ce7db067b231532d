package secrets

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/ssh"

	kerrors "github.com/PolarWolf314/enseal/internal/errors"
)

const x25519PEMType = "ENSEAL X25519 PRIVATE KEY"

// KeyPair is a local identity: an X25519 key pair for encryption and an
// Ed25519 key for signing.
type KeyPair struct {
	Public  *[32]byte
	Private *[32]byte
	Signing ed25519.PrivateKey
}

// GenerateKeyPair creates a fresh identity.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate X25519 key: %w", err)
	}
	_, signing, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate Ed25519 key: %w", err)
	}
	return &KeyPair{Public: pub, Private: priv, Signing: signing}, nil
}

// SigningPublic returns the Ed25519 public key.
func (k *KeyPair) SigningPublic() ed25519.PublicKey {
	return k.Signing.Public().(ed25519.PublicKey)
}

// Fingerprint returns the fingerprint of this identity's public keys.
func (k *KeyPair) Fingerprint() string {
	return Fingerprint(k.Public, k.SigningPublic())
}

// SharedSecret computes the X25519 secret between this identity and peer.
func (k *KeyPair) SharedSecret(peer *[32]byte) ([]byte, error) {
	s, err := curve25519.X25519(k.Private[:], peer[:])
	if err != nil {
		return nil, fmt.Errorf("failed to compute shared secret: %w", err)
	}
	return s, nil
}

// Wipe zeroes the private key material.
func (k *KeyPair) Wipe() {
	if k.Private != nil {
		clear(k.Private[:])
	}
	clear(k.Signing)
}

// Fingerprint renders SHA256:<base64> over both public keys.
func Fingerprint(pub *[32]byte, signing ed25519.PublicKey) string {
	h := sha256.New()
	h.Write(pub[:])
	h.Write(signing)
	return "SHA256:" + base64.RawStdEncoding.EncodeToString(h.Sum(nil))
}

// EncodePrivateKey renders the key pair as two PEM blocks.
func EncodePrivateKey(k *KeyPair, comment string) ([]byte, error) {
	var buf bytes.Buffer
	if err := pem.Encode(&buf, &pem.Block{Type: x25519PEMType, Bytes: k.Private[:]}); err != nil {
		return nil, fmt.Errorf("failed to PEM encode X25519 key: %w", err)
	}
	block, err := ssh.MarshalPrivateKey(k.Signing, comment)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal signing key: %w", err)
	}
	if err := pem.Encode(&buf, block); err != nil {
		return nil, fmt.Errorf("failed to PEM encode signing key: %w", err)
	}
	return buf.Bytes(), nil
}

// ParsePrivateKey parses the output of EncodePrivateKey.
func ParsePrivateKey(data []byte) (*KeyPair, error) {
	k := &KeyPair{}
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		switch block.Type {
		case x25519PEMType:
			if len(block.Bytes) != 32 {
				return nil, fmt.Errorf("%w: X25519 key is %d bytes", kerrors.ErrInvalidPrivateKey, len(block.Bytes))
			}
			k.Private = new([32]byte)
			copy(k.Private[:], block.Bytes)
		case "OPENSSH PRIVATE KEY":
			raw, err := ssh.ParseRawPrivateKey(pem.EncodeToMemory(block))
			if err != nil {
				return nil, fmt.Errorf("%w: %v", kerrors.ErrInvalidPrivateKey, err)
			}
			switch key := raw.(type) {
			case ed25519.PrivateKey:
				k.Signing = key
			case *ed25519.PrivateKey:
				k.Signing = *key
			default:
				return nil, fmt.Errorf("%w: signing key is %T, want ed25519", kerrors.ErrInvalidPrivateKey, raw)
			}
		}
	}

	if k.Private == nil || k.Signing == nil {
		return nil, fmt.Errorf("%w: missing X25519 or signing key", kerrors.ErrInvalidPrivateKey)
	}
	k.Public = new([32]byte)
	curve25519.ScalarBaseMult(k.Public, k.Private)
	return k, nil
}

// SavePrivateKey writes the key pair to path with 0600 permissions,
// creating the parent directory with 0700.
func SavePrivateKey(path string, k *KeyPair, comment string) error {
	data, err := EncodePrivateKey(k, comment)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory for private key at %s: %w", dir, err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write private key to %s: %w", path, err)
	}
	return nil
}

// LoadPrivateKey reads a key pair written by SavePrivateKey.
func LoadPrivateKey(path string) (*KeyPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParsePrivateKey(data)
}

// CheckKeyPermissions returns an error describing why the private key file
// at path is readable by other users. It returns nil when permissions are
// 0600 or stricter.
func CheckKeyPermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		return fmt.Errorf("private key %s has permissions %04o, expected 0600", path, perm)
	}
	return nil
}

// PublicBundle is the shareable half of an identity.
type PublicBundle struct {
	Name string `toml:"name"`

	// X25519 is the base64 encryption public key.
	X25519 string `toml:"x25519"`

	// Signing is an OpenSSH authorized-key line for the Ed25519 key.
	Signing string `toml:"signing"`
}

// NewPublicBundle builds the bundle for k.
func NewPublicBundle(name string, k *KeyPair) (*PublicBundle, error) {
	sshPub, err := ssh.NewPublicKey(k.SigningPublic())
	if err != nil {
		return nil, fmt.Errorf("failed to encode signing key: %w", err)
	}
	line := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPub)))
	if name != "" {
		line += " " + name
	}
	return &PublicBundle{
		Name:    name,
		X25519:  base64.StdEncoding.EncodeToString(k.Public[:]),
		Signing: line,
	}, nil
}

// Keys decodes the bundle's public keys.
func (b *PublicBundle) Keys() (*[32]byte, ed25519.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(b.X25519)
	if err != nil || len(raw) != 32 {
		return nil, nil, fmt.Errorf("%w: bad x25519 key", kerrors.ErrInvalidPublicKey)
	}
	pub := new([32]byte)
	copy(pub[:], raw)

	sshPub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(b.Signing))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", kerrors.ErrInvalidPublicKey, err)
	}
	cpk, ok := sshPub.(ssh.CryptoPublicKey)
	if !ok {
		return nil, nil, fmt.Errorf("%w: unsupported signing key", kerrors.ErrInvalidPublicKey)
	}
	signing, ok := cpk.CryptoPublicKey().(ed25519.PublicKey)
	if !ok {
		return nil, nil, fmt.Errorf("%w: signing key is %s, want ssh-ed25519", kerrors.ErrInvalidPublicKey, sshPub.Type())
	}
	return pub, signing, nil
}

// Fingerprint returns the fingerprint of the bundle's keys.
func (b *PublicBundle) Fingerprint() (string, error) {
	pub, signing, err := b.Keys()
	if err != nil {
		return "", err
	}
	return Fingerprint(pub, signing), nil
}

// Marshal renders the bundle as TOML.
func (b *PublicBundle) Marshal() ([]byte, error) {
	return toml.Marshal(b)
}

// ParsePublicBundle parses and validates a TOML bundle.
func ParsePublicBundle(data []byte) (*PublicBundle, error) {
	var b PublicBundle
	if err := toml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", kerrors.ErrInvalidPublicKey, err)
	}
	if _, _, err := b.Keys(); err != nil {
		return nil, err
	}
	return &b, nil
}
