package secrets

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"encoding/pem"
	"errors"
	"testing"

	"golang.org/x/crypto/ssh"

	kerrors "github.com/PolarWolf314/enseal/internal/errors"
)

// x25519Block renders the encryption half of kp on its own.
func x25519Block(t *testing.T, kp *KeyPair) []byte {
	t.Helper()
	return pem.EncodeToMemory(&pem.Block{Type: x25519PEMType, Bytes: kp.Private[:]})
}

func TestParsePrivateKey_OpenSSHBlockFirst(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() failed: %v", err)
	}

	// A signing key written by other OpenSSH tooling, placed before the
	// X25519 block.
	block, err := ssh.MarshalPrivateKey(kp.Signing, "alice@laptop")
	if err != nil {
		t.Fatalf("failed to marshal signing key: %v", err)
	}
	data := append(pem.EncodeToMemory(block), x25519Block(t, kp)...)

	parsed, err := ParsePrivateKey(data)
	if err != nil {
		t.Fatalf("ParsePrivateKey failed: %v", err)
	}
	if !bytes.Equal(parsed.Signing, kp.Signing) {
		t.Error("parsed signing key does not match original")
	}
	if *parsed.Public != *kp.Public {
		t.Error("X25519 public key was not derived from the private key")
	}
}

func TestParsePrivateKey_RejectsNonEd25519SigningKey(t *testing.T) {
	kp, _ := GenerateKeyPair()
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}
	block, err := ssh.MarshalPrivateKey(rsaKey, "")
	if err != nil {
		t.Fatalf("failed to marshal RSA key: %v", err)
	}
	data := append(x25519Block(t, kp), pem.EncodeToMemory(block)...)

	_, err = ParsePrivateKey(data)
	if !errors.Is(err, kerrors.ErrInvalidPrivateKey) {
		t.Errorf("expected ErrInvalidPrivateKey, got %v", err)
	}
}

func TestParsePrivateKey_RejectsPassphraseProtectedKey(t *testing.T) {
	kp, _ := GenerateKeyPair()
	block, err := ssh.MarshalPrivateKeyWithPassphrase(kp.Signing, "", []byte("correct horse"))
	if err != nil {
		t.Fatalf("failed to marshal encrypted key: %v", err)
	}
	data := append(x25519Block(t, kp), pem.EncodeToMemory(block)...)

	_, err = ParsePrivateKey(data)
	if !errors.Is(err, kerrors.ErrInvalidPrivateKey) {
		t.Errorf("expected ErrInvalidPrivateKey for encrypted key, got %v", err)
	}
}

func TestParsePrivateKey_RejectsShortX25519Key(t *testing.T) {
	_, signing, _ := ed25519.GenerateKey(rand.Reader)
	block, _ := ssh.MarshalPrivateKey(signing, "")
	data := pem.EncodeToMemory(&pem.Block{Type: x25519PEMType, Bytes: make([]byte, 16)})
	data = append(data, pem.EncodeToMemory(block)...)

	_, err := ParsePrivateKey(data)
	if !errors.Is(err, kerrors.ErrInvalidPrivateKey) {
		t.Errorf("expected ErrInvalidPrivateKey for short key, got %v", err)
	}
}
