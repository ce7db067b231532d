package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PolarWolf314/enseal/internal/configs"
)

func withTempSettings(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	original := configs.UserEnsealSettings
	configs.UserEnsealSettings = configs.NewUserSettings(filepath.Join(dir, "config"), filepath.Join(dir, "data"), "tester")
	t.Cleanup(func() { configs.UserEnsealSettings = original })
	return configs.UserEnsealSettings.DataPath
}

func TestLog_CreatesFile(t *testing.T) {
	dataDir := withTempSettings(t)

	Log(Entry{User: "alice", Operation: OpShare, Transport: "wormhole"})

	logPath := filepath.Join(dataDir, "audit.jsonl")
	info, err := os.Stat(logPath)
	if err != nil {
		t.Fatalf("Audit log file was not created: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected audit log mode 0600, got %o", info.Mode().Perm())
	}
}

func TestLog_AppendsEntries(t *testing.T) {
	dataDir := withTempSettings(t)

	Log(Entry{User: "alice", Operation: OpShare})
	Log(Entry{User: "bob", Operation: OpReceive})
	Log(Entry{User: "carol", Operation: OpListen})

	data, err := os.ReadFile(filepath.Join(dataDir, "audit.jsonl"))
	if err != nil {
		t.Fatalf("Failed to read audit log: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Errorf("Expected 3 lines, got %d", len(lines))
	}
}

func TestLog_FillsIDAndTimestamp(t *testing.T) {
	withTempSettings(t)

	Log(Entry{Operation: OpReceive, Count: 2})
	Log(Entry{Operation: OpReceive, Count: 3})

	entries, err := ReadEntries()
	if err != nil {
		t.Fatalf("ReadEntries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}

	for _, e := range entries {
		if len(e.ID) != 36 {
			t.Errorf("Expected uuid id, got %q", e.ID)
		}
		if !strings.HasSuffix(e.Timestamp, "Z") {
			t.Errorf("Expected UTC timestamp, got %q", e.Timestamp)
		}
	}
	if entries[0].ID == entries[1].ID {
		t.Error("Expected distinct entry ids")
	}
	if entries[1].Count != 3 {
		t.Errorf("Expected count 3, got %d", entries[1].Count)
	}
}

func TestLog_OmitsEmptyFields(t *testing.T) {
	dataDir := withTempSettings(t)

	Log(Entry{User: "alice", Operation: OpShare})

	data, err := os.ReadFile(filepath.Join(dataDir, "audit.jsonl"))
	if err != nil {
		t.Fatalf("Failed to read audit log: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &raw); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	for _, field := range []string{"mode", "transport", "recipients", "count", "error"} {
		if _, ok := raw[field]; ok {
			t.Errorf("Empty %s field should be omitted", field)
		}
	}
}

func TestLog_NoDataPath(t *testing.T) {
	original := configs.UserEnsealSettings
	configs.UserEnsealSettings = &configs.UserSettings{}
	defer func() { configs.UserEnsealSettings = original }()

	Log(Entry{Operation: OpShare})

	if LogPath() != "" {
		t.Errorf("Expected empty path, got %s", LogPath())
	}
}

func TestLogWithUser(t *testing.T) {
	withTempSettings(t)

	config := &configs.UserConfig{User: configs.User{Name: "alice", UUID: "alice-uuid"}}
	if err := configs.SaveUserConfig(config); err != nil {
		t.Fatalf("SaveUserConfig failed: %v", err)
	}

	entry := LogWithUser(OpKeys)
	if entry.User != "alice" || entry.UserUUID != "alice-uuid" {
		t.Errorf("Unexpected user fields %q %q", entry.User, entry.UserUUID)
	}
	if entry.Operation != OpKeys {
		t.Errorf("Expected op %q, got %q", OpKeys, entry.Operation)
	}
}

func TestParseEntries_ValidData(t *testing.T) {
	data := []byte(`{"ts":"2024-01-15T10:30:00.123456Z","user":"alice","op":"share"}
{"ts":"2024-01-15T10:35:00.456789Z","user":"bob","op":"receive"}
`)

	entries, err := ParseEntries(data)
	if err != nil {
		t.Fatalf("ParseEntries failed: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].User != "alice" || entries[1].User != "bob" {
		t.Errorf("Unexpected users %q %q", entries[0].User, entries[1].User)
	}
}

func TestParseEntries_SkipsMalformedLines(t *testing.T) {
	data := []byte(`{"ts":"2024-01-15T10:30:00.123456Z","user":"alice","op":"share"}
this is not valid json
{"ts":"2024-01-15T10:35:00.456789Z","user":"bob","op":"receive"}
`)

	entries, err := ParseEntries(data)
	if err != nil {
		t.Fatalf("ParseEntries failed: %v", err)
	}

	if len(entries) != 2 {
		t.Errorf("Expected 2 valid entries, got %d", len(entries))
	}
}

func TestParseEntries_EmptyData(t *testing.T) {
	entries, err := ParseEntries([]byte{})
	if err != nil {
		t.Fatalf("ParseEntries failed: %v", err)
	}
	if entries != nil {
		t.Errorf("Expected nil entries for empty data, got %v", entries)
	}
}
