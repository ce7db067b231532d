package trust

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/PolarWolf314/enseal/internal/configs"
	kerrors "github.com/PolarWolf314/enseal/internal/errors"
	"github.com/PolarWolf314/enseal/internal/identity"
	logger "github.com/PolarWolf314/enseal/internal/logging"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	settings := configs.NewUserSettings(filepath.Join(dir, "config"), filepath.Join(dir, "data"), "tester")
	return New(settings, &configs.UserConfig{}, logger.Logger{})
}

// initStore creates a store with its own identity and returns its bundle.
func initStore(t *testing.T, name string) (*Store, []byte) {
	t.Helper()
	s := newStore(t)
	if _, err := s.Init(name, false); err != nil {
		t.Fatalf("Init(%s) failed: %v", name, err)
	}
	data, err := os.ReadFile(s.BundlePath())
	if err != nil {
		t.Fatalf("failed to read bundle: %v", err)
	}
	return s, data
}

func TestInit(t *testing.T) {
	s := newStore(t)
	if s.Initialized() {
		t.Fatal("fresh store reports an identity")
	}
	if _, err := s.OwnKeyPair(); !errors.Is(err, kerrors.ErrNoIdentity) {
		t.Fatalf("expected ErrNoIdentity, got %v", err)
	}

	bundle, err := s.Init("alice", false)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if bundle.Name != "alice" {
		t.Errorf("bundle name = %q", bundle.Name)
	}

	info, err := os.Stat(s.KeyPath())
	if err != nil {
		t.Fatalf("private key missing: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("private key permissions = %04o, want 0600", perm)
	}

	kp, err := s.OwnKeyPair()
	if err != nil {
		t.Fatalf("OwnKeyPair failed: %v", err)
	}
	own, err := s.OwnBundle()
	if err != nil {
		t.Fatalf("OwnBundle failed: %v", err)
	}
	fp, err := own.Fingerprint()
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	if fp != kp.Fingerprint() {
		t.Errorf("bundle fingerprint %s does not match key %s", fp, kp.Fingerprint())
	}

	if _, err := s.Init("alice", false); !errors.Is(err, kerrors.ErrIdentityExists) {
		t.Fatalf("expected ErrIdentityExists, got %v", err)
	}
	if _, err := s.Init("alice", true); err != nil {
		t.Fatalf("forced Init failed: %v", err)
	}
	if _, err := s.Init("../evil", true); err == nil {
		t.Fatal("expected invalid name to be rejected")
	}
}

func TestImportAndLookup(t *testing.T) {
	bob, _ := initStore(t, "bob")
	alice, aliceBundle := initStore(t, "alice")

	if _, err := bob.Import("", aliceBundle, false); err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if _, err := bob.Import("", aliceBundle, false); !errors.Is(err, kerrors.ErrIdentityExists) {
		t.Fatalf("expected ErrIdentityExists on re-import, got %v", err)
	}
	if _, err := bob.Import("", []byte("garbage"), false); !errors.Is(err, kerrors.ErrInvalidPublicKey) {
		t.Fatalf("expected ErrInvalidPublicKey, got %v", err)
	}

	r, err := bob.LookupPublicKey("alice")
	if err != nil {
		t.Fatalf("LookupPublicKey failed: %v", err)
	}
	akp, _ := alice.OwnKeyPair()
	if *r.Public != *akp.Public {
		t.Error("looked up key does not match alice's")
	}

	signer, err := bob.LookupSigner(akp.SigningPublic())
	if err != nil {
		t.Fatalf("LookupSigner failed: %v", err)
	}
	if signer.Name != "alice" {
		t.Errorf("signer name = %q", signer.Name)
	}

	bkp, _ := bob.OwnKeyPair()
	if _, err := bob.LookupSigner(bkp.SigningPublic()); !errors.Is(err, kerrors.ErrUntrustedSender) {
		t.Fatalf("expected ErrUntrustedSender, got %v", err)
	}
	if _, err := bob.LookupPublicKey("carol"); !errors.Is(err, kerrors.ErrIdentityNotFound) {
		t.Fatalf("expected ErrIdentityNotFound, got %v", err)
	}

	list, err := bob.List()
	if err != nil || len(list) != 1 || list[0].Name != "alice" {
		t.Fatalf("List = %v, %v", list, err)
	}

	if err := bob.Remove("alice"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := bob.LookupSigner(akp.SigningPublic()); !errors.Is(err, kerrors.ErrUntrustedSender) {
		t.Fatalf("expected ErrUntrustedSender after removal, got %v", err)
	}
}

func TestAliasesAndGroups(t *testing.T) {
	s, _ := initStore(t, "me")
	for _, name := range []string{"alice", "bob"} {
		_, data := initStore(t, name)
		if _, err := s.Import("", data, false); err != nil {
			t.Fatalf("Import(%s) failed: %v", name, err)
		}
	}

	if err := s.SetAlias("al", "alice"); err != nil {
		t.Fatalf("SetAlias failed: %v", err)
	}
	if err := s.SetAlias("ghost", "nobody"); !errors.Is(err, kerrors.ErrIdentityNotFound) {
		t.Fatalf("expected ErrIdentityNotFound, got %v", err)
	}
	r, err := s.LookupPublicKey("al")
	if err != nil || r.Name != "alice" {
		t.Fatalf("alias lookup = %v, %v", r, err)
	}

	if err := s.AddToGroup("team", "al", "bob", "bob"); err != nil {
		t.Fatalf("AddToGroup failed: %v", err)
	}
	members, err := s.LookupGroup("team")
	if err != nil || len(members) != 2 {
		t.Fatalf("LookupGroup = %v, %v", members, err)
	}
	recipients, err := s.ResolveRecipients("team")
	if err != nil || len(recipients) != 2 {
		t.Fatalf("ResolveRecipients(team) = %v, %v", recipients, err)
	}
	if _, err := s.LookupGroup("nope"); !errors.Is(err, kerrors.ErrGroupNotFound) {
		t.Fatalf("expected ErrGroupNotFound, got %v", err)
	}

	if err := s.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	var reloaded configs.UserConfig
	if err := configs.LoadTOML(s.settings.ConfigFile(), &reloaded); err != nil {
		t.Fatalf("LoadTOML failed: %v", err)
	}
	if reloaded.Aliases["al"] != "alice" || len(reloaded.Groups["team"]) != 2 {
		t.Fatalf("saved config = %+v", reloaded)
	}

	if err := s.RemoveFromGroup("team", "al"); err != nil {
		t.Fatalf("RemoveFromGroup failed: %v", err)
	}
	if err := s.RemoveFromGroup("team", "bob"); err != nil {
		t.Fatalf("RemoveFromGroup failed: %v", err)
	}
	if _, ok := s.Groups()["team"]; ok {
		t.Fatal("empty group was not deleted")
	}
	if err := s.RemoveAlias("al"); err != nil {
		t.Fatalf("RemoveAlias failed: %v", err)
	}
}

func TestStoreIsKeyring(t *testing.T) {
	alice, aliceBundle := initStore(t, "alice")
	bob, bobBundle := initStore(t, "bob")
	if _, err := alice.Import("", bobBundle, false); err != nil {
		t.Fatal(err)
	}
	if _, err := bob.Import("", aliceBundle, false); err != nil {
		t.Fatal(err)
	}

	var kr identity.Keyring = bob
	akp, err := alice.OwnKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	to, err := alice.LookupPublicKey("bob")
	if err != nil {
		t.Fatal(err)
	}

	data, err := identity.Seal(akp, []*identity.Recipient{to}, []byte("hello"), nil, time.Now())
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	opened, err := identity.Open(kr, data, identity.OpenOptions{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if string(opened.Body) != "hello" || opened.Sender.Name != "alice" {
		t.Fatalf("opened = %q from %s", opened.Body, opened.Sender.Name)
	}
}
