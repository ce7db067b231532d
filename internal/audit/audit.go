package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/PolarWolf314/enseal/internal/configs"
)

// Operation names recorded in the log.
const (
	OpShare   = "share"
	OpReceive = "receive"
	OpListen  = "listen"
	OpKeys    = "keys"
)

// Entry represents a single audit log entry. It never carries secret values,
// wormhole codes or key material.
type Entry struct {
	ID        string `json:"id"`
	Timestamp string `json:"ts"`   // RFC3339 with microseconds.
	User      string `json:"user"` // Identity name of the local user.
	UserUUID  string `json:"uuid"`
	Operation string `json:"op"`

	Mode       string   `json:"mode,omitempty"`      // anonymous or identity.
	Transport  string   `json:"transport,omitempty"` // wormhole, push or file.
	Recipients []string `json:"recipients,omitempty"`
	Sender     string   `json:"sender,omitempty"`
	Kind       string   `json:"kind,omitempty"` // env-set or raw-secret.
	Count      int      `json:"count,omitempty"`
	OutputPath string   `json:"output_path,omitempty"`
	Action     string   `json:"action,omitempty"` // For keys subcommands.
	Error      string   `json:"error,omitempty"`
}

// Log appends an entry to the audit log.
// Failures are swallowed: a transfer never fails because auditing did.
func Log(entry Entry) {
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format("2006-01-02T15:04:05.000000Z")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	logPath := LogPath()
	if logPath == "" {
		return
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0700); err != nil {
		return
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	_, _ = f.Write(append(data, '\n'))
}

// LogWithUser returns an entry with the user fields populated from config.
func LogWithUser(op string) Entry {
	entry := Entry{Operation: op}

	userConfig, err := configs.LoadUserConfig()
	if err != nil {
		return entry
	}

	entry.User = userConfig.User.Name
	entry.UserUUID = userConfig.User.UUID

	return entry
}

// LogPath returns the path to the audit log file, or "" when no data
// directory is configured.
func LogPath() string {
	if configs.UserEnsealSettings == nil || configs.UserEnsealSettings.DataPath == "" {
		return ""
	}
	return filepath.Join(configs.UserEnsealSettings.DataPath, "audit.jsonl")
}

// ReadEntries reads all entries from the audit log.
// Returns an empty slice if the log doesn't exist.
func ReadEntries() ([]Entry, error) {
	logPath := LogPath()
	if logPath == "" {
		return nil, nil
	}

	data, err := os.ReadFile(logPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return ParseEntries(data)
}

// ParseEntries parses JSON Lines data into audit entries.
// Malformed lines are silently skipped.
func ParseEntries(data []byte) ([]Entry, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var entries []Entry
	start := 0

	for i := 0; i <= len(data); i++ {
		if i == len(data) || data[i] == '\n' {
			line := data[start:i]
			start = i + 1

			if len(line) == 0 {
				continue
			}

			var entry Entry
			if err := json.Unmarshal(line, &entry); err != nil {
				continue
			}
			entries = append(entries, entry)
		}
	}

	return entries, nil
}
