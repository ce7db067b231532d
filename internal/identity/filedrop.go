package identity

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/PolarWolf314/enseal/internal/secrets"
	"github.com/PolarWolf314/enseal/internal/utils"
)

// DropExtension is the suffix of file-drop envelopes.
const DropExtension = ".env.enseal"

// DropPath returns where WriteDrop puts the envelope for recipient.
func DropPath(dir, recipient string) string {
	return filepath.Join(dir, recipient+DropExtension)
}

// WriteDrop seals body for recipient and writes it under dir with 0600
// permissions. It returns the path written.
func WriteDrop(dir string, sender *secrets.KeyPair, recipient *Recipient, body []byte) (string, error) {
	data, err := Seal(sender, []*Recipient{recipient}, body, nil, time.Now())
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	path := DropPath(dir, recipient.Name)
	if err := utils.WriteFileAtomic(path, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// ReadDrop loads a file-drop envelope and opens it against kr. File drops
// carry no token and have no age limit.
func ReadDrop(kr Keyring, path string) (*Opened, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Open(kr, data, OpenOptions{})
}
