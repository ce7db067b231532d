package secrets

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	kerrors "github.com/PolarWolf314/enseal/internal/errors"
)

func TestPrivateKeyRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "keys", "identity.pem")
	if err := SavePrivateKey(path, kp, "alice"); err != nil {
		t.Fatalf("SavePrivateKey() failed: %v", err)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "BEGIN OPENSSH PRIVATE KEY") {
		t.Error("signing key should be stored in OpenSSH format")
	}

	loaded, err := LoadPrivateKey(path)
	if err != nil {
		t.Fatalf("LoadPrivateKey() failed: %v", err)
	}
	if *loaded.Public != *kp.Public || *loaded.Private != *kp.Private {
		t.Error("X25519 key pair did not round trip")
	}
	if !bytes.Equal(loaded.Signing, kp.Signing) {
		t.Error("signing key did not round trip")
	}
	if loaded.Fingerprint() != kp.Fingerprint() {
		t.Error("fingerprint changed across save/load")
	}

	if runtime.GOOS != "windows" {
		if err := CheckKeyPermissions(path); err != nil {
			t.Errorf("freshly saved key reported loose permissions: %v", err)
		}
		os.Chmod(path, 0644)
		if err := CheckKeyPermissions(path); err == nil {
			t.Error("expected warning for 0644 private key")
		}
	}
}

func TestParsePrivateKeyRejectsIncomplete(t *testing.T) {
	kp, _ := GenerateKeyPair()
	data, _ := EncodePrivateKey(kp, "")
	first := data[:bytes.Index(data, []byte("-----BEGIN OPENSSH"))]

	if _, err := ParsePrivateKey(first); !errors.Is(err, kerrors.ErrInvalidPrivateKey) {
		t.Errorf("expected ErrInvalidPrivateKey, got %v", err)
	}
	if _, err := ParsePrivateKey([]byte("garbage")); !errors.Is(err, kerrors.ErrInvalidPrivateKey) {
		t.Errorf("expected ErrInvalidPrivateKey, got %v", err)
	}
}

func TestPublicBundleRoundTrip(t *testing.T) {
	kp, _ := GenerateKeyPair()
	bundle, err := NewPublicBundle("alice", kp)
	if err != nil {
		t.Fatalf("NewPublicBundle() failed: %v", err)
	}
	if !strings.HasPrefix(bundle.Signing, "ssh-ed25519 ") {
		t.Errorf("signing key should be an authorized-key line, got %q", bundle.Signing)
	}

	data, err := bundle.Marshal()
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}
	parsed, err := ParsePublicBundle(data)
	if err != nil {
		t.Fatalf("ParsePublicBundle() failed: %v", err)
	}

	pub, signing, err := parsed.Keys()
	if err != nil {
		t.Fatalf("Keys() failed: %v", err)
	}
	if *pub != *kp.Public || !bytes.Equal(signing, kp.SigningPublic()) {
		t.Error("bundle keys do not match key pair")
	}
	fp, _ := parsed.Fingerprint()
	if fp != kp.Fingerprint() {
		t.Errorf("fingerprint mismatch: %s vs %s", fp, kp.Fingerprint())
	}
}

func TestParsePublicBundleRejectsBadKeys(t *testing.T) {
	cases := map[string]string{
		"bad base64":   "name = \"x\"\nx25519 = \"!!!\"\nsigning = \"ssh-ed25519 AAAA\"\n",
		"bad toml":     "name = ",
		"bad ssh line": "name = \"x\"\nx25519 = \"AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=\"\nsigning = \"nope\"\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParsePublicBundle([]byte(data)); !errors.Is(err, kerrors.ErrInvalidPublicKey) {
				t.Errorf("expected ErrInvalidPublicKey, got %v", err)
			}
		})
	}
}

func TestSharedSecretIsSymmetric(t *testing.T) {
	a, _ := GenerateKeyPair()
	b, _ := GenerateKeyPair()
	ab, err := a.SharedSecret(b.Public)
	if err != nil {
		t.Fatalf("SharedSecret() failed: %v", err)
	}
	ba, _ := b.SharedSecret(a.Public)
	if !bytes.Equal(ab, ba) {
		t.Error("X25519 shared secrets differ")
	}
}
