package cmd

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/PolarWolf314/enseal/internal/audit"
	kerrors "github.com/PolarWolf314/enseal/internal/errors"
	"github.com/PolarWolf314/enseal/internal/trust"
)

func TestKeysInit(t *testing.T) {
	setupTestEnvironment(t)

	output, err := runCommand(t, nil, "keys", "init", "--name", "alice")
	if err != nil {
		t.Fatalf("keys init failed: %v\n%s", err, output)
	}
	if !strings.Contains(output, "Created identity 'alice'") {
		t.Errorf("unexpected output: %s", output)
	}
	if !strings.Contains(output, "SHA256:") {
		t.Errorf("fingerprint missing from output: %s", output)
	}

	store, err := trust.Load(Logger)
	if err != nil {
		t.Fatalf("failed to load store: %v", err)
	}
	info, err := os.Stat(store.KeyPath())
	if err != nil {
		t.Fatalf("private key not written: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("private key mode = %o, want 600", info.Mode().Perm())
	}

	output, err = runCommand(t, nil, "keys", "show")
	if err != nil {
		t.Fatalf("keys show failed: %v", err)
	}
	if !strings.Contains(output, "'alice'") {
		t.Errorf("keys show did not name the identity: %s", output)
	}
}

func TestKeysInitRefusesOverwrite(t *testing.T) {
	setupTestEnvironment(t)

	if _, err := runCommand(t, nil, "keys", "init", "--name", "alice"); err != nil {
		t.Fatalf("first init failed: %v", err)
	}
	output, err := runCommand(t, nil, "keys", "init", "--name", "alice")
	if !errors.Is(err, kerrors.ErrIdentityExists) {
		t.Fatalf("expected ErrIdentityExists, got %v", err)
	}
	if !strings.Contains(output, "--force") {
		t.Errorf("expected a --force hint, got: %s", output)
	}

	if _, err := runCommand(t, nil, "keys", "init", "--name", "alice", "--force"); err != nil {
		t.Errorf("init --force failed: %v", err)
	}
}

func TestKeysExportImport(t *testing.T) {
	setupTestEnvironment(t)

	if _, err := runCommand(t, nil, "keys", "init", "--name", "alice"); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	bundle, err := runCommand(t, nil, "keys", "export")
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if strings.Contains(bundle, "PRIVATE") {
		t.Fatalf("export leaked private key material")
	}

	switchHome(t)
	if _, err := runCommand(t, nil, "keys", "init", "--name", "bob"); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	output, err := runCommand(t, bytes.NewBufferString(bundle), "keys", "import", "-")
	if err != nil {
		t.Fatalf("import failed: %v\n%s", err, output)
	}
	if !strings.Contains(output, "Trusted 'alice'") {
		t.Errorf("unexpected import output: %s", output)
	}

	output, err = runCommand(t, nil, "keys", "list")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !strings.Contains(output, "Trusted identities (1)") || !strings.Contains(output, "'alice'") {
		t.Errorf("unexpected list output: %s", output)
	}

	if _, err := runCommand(t, bytes.NewBufferString(bundle), "keys", "import", "-"); !errors.Is(err, kerrors.ErrIdentityExists) {
		t.Errorf("expected ErrIdentityExists on re-import, got %v", err)
	}
	if _, err := runCommand(t, bytes.NewBufferString(bundle), "keys", "import", "-", "--name", "al2"); err != nil {
		t.Errorf("import under a new name failed: %v", err)
	}

	if _, err := runCommand(t, nil, "keys", "remove", "al2"); err != nil {
		t.Errorf("remove failed: %v", err)
	}
	if _, err := runCommand(t, nil, "keys", "remove", "al2"); !errors.Is(err, kerrors.ErrIdentityNotFound) {
		t.Errorf("expected ErrIdentityNotFound, got %v", err)
	}
}

func TestKeysImportRejectsGarbage(t *testing.T) {
	setupTestEnvironment(t)

	_, err := runCommand(t, bytes.NewBufferString("not a bundle"), "keys", "import", "-", "--name", "x")
	if !errors.Is(err, kerrors.ErrInvalidPublicKey) {
		t.Errorf("expected ErrInvalidPublicKey, got %v", err)
	}
}

func TestKeysAliasAndGroup(t *testing.T) {
	setupTestEnvironment(t)

	if _, err := runCommand(t, nil, "keys", "init", "--name", "alice"); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	bundle, err := runCommand(t, nil, "keys", "export")
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	switchHome(t)
	if _, err := runCommand(t, bytes.NewBufferString(bundle), "keys", "import", "-"); err != nil {
		t.Fatalf("import failed: %v", err)
	}

	if _, err := runCommand(t, nil, "keys", "alias", "al", "alice"); err != nil {
		t.Fatalf("alias set failed: %v", err)
	}
	output, err := runCommand(t, nil, "keys", "alias", "list")
	if err != nil {
		t.Fatalf("alias list failed: %v", err)
	}
	if !strings.Contains(output, "'al' → alice") {
		t.Errorf("unexpected alias list: %s", output)
	}
	if _, err := runCommand(t, nil, "keys", "alias", "x", "nobody"); !errors.Is(err, kerrors.ErrIdentityNotFound) {
		t.Errorf("expected ErrIdentityNotFound for unknown target, got %v", err)
	}

	if _, err := runCommand(t, nil, "keys", "group", "add", "team", "al"); err != nil {
		t.Fatalf("group add failed: %v", err)
	}
	output, err = runCommand(t, nil, "keys", "group", "list")
	if err != nil {
		t.Fatalf("group list failed: %v", err)
	}
	if !strings.Contains(output, "'team': al") {
		t.Errorf("unexpected group list: %s", output)
	}

	// Aliases and groups survive a reload from config.toml.
	store, err := trust.Load(Logger)
	if err != nil {
		t.Fatalf("failed to load store: %v", err)
	}
	recipients, err := store.ResolveRecipients("team")
	if err != nil || len(recipients) != 1 || recipients[0].Name != "alice" {
		t.Errorf("ResolveRecipients(team) = %v, %v", recipients, err)
	}

	if _, err := runCommand(t, nil, "keys", "group", "remove", "team", "al"); err != nil {
		t.Errorf("group remove failed: %v", err)
	}
	if _, err := runCommand(t, nil, "keys", "group", "delete", "team"); !errors.Is(err, kerrors.ErrGroupNotFound) {
		t.Errorf("emptied group should be gone, got %v", err)
	}
	if _, err := runCommand(t, nil, "keys", "alias", "al", "--remove"); err != nil {
		t.Errorf("alias remove failed: %v", err)
	}
}

func TestKeysActionsAreAudited(t *testing.T) {
	setupTestEnvironment(t)

	if _, err := runCommand(t, nil, "keys", "init", "--name", "alice"); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	_, _ = runCommand(t, nil, "keys", "remove", "nobody")

	entries, err := audit.ReadEntries()
	if err != nil {
		t.Fatalf("failed to read audit log: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(entries))
	}
	if entries[0].Operation != audit.OpKeys || entries[0].Action != "init" || entries[0].Error != "" {
		t.Errorf("unexpected init entry: %+v", entries[0])
	}
	if entries[1].Action != "remove" || entries[1].Error == "" {
		t.Errorf("expected a failed remove entry, got %+v", entries[1])
	}
}

func TestLogCommand(t *testing.T) {
	setupTestEnvironment(t)

	output, err := runCommand(t, nil, "log")
	if err != nil {
		t.Fatalf("log failed: %v", err)
	}
	if !strings.Contains(output, "No audit log entries found.") {
		t.Errorf("unexpected output on empty log: %s", output)
	}

	if _, err := runCommand(t, nil, "keys", "init", "--name", "alice"); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	output, err = runCommand(t, nil, "log", "--operation", "keys")
	if err != nil {
		t.Fatalf("log failed: %v", err)
	}
	if !strings.Contains(output, "init alice") {
		t.Errorf("expected the init entry, got: %s", output)
	}

	if _, err := runCommand(t, nil, "log", "--since", "bad"); !errors.Is(err, kerrors.ErrInvalidDateFormat) {
		t.Errorf("expected ErrInvalidDateFormat, got %v", err)
	}
}
