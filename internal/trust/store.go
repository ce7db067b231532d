package trust

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PolarWolf314/enseal/internal/configs"
	kerrors "github.com/PolarWolf314/enseal/internal/errors"
	"github.com/PolarWolf314/enseal/internal/identity"
	logger "github.com/PolarWolf314/enseal/internal/logging"
	"github.com/PolarWolf314/enseal/internal/secrets"
	"github.com/PolarWolf314/enseal/internal/utils"
)

const bundleExt = ".pub"

// Store is a file-backed keyring.
type Store struct {
	settings *configs.UserSettings
	config   *configs.UserConfig
	log      logger.Logger
}

// New returns a store over settings' directories with aliases and groups
// from config.
func New(settings *configs.UserSettings, config *configs.UserConfig, log logger.Logger) *Store {
	if config.Aliases == nil {
		config.Aliases = make(map[string]string)
	}
	if config.Groups == nil {
		config.Groups = make(map[string][]string)
	}
	return &Store{settings: settings, config: config, log: log}
}

// Load opens the store at the default locations.
func Load(log logger.Logger) (*Store, error) {
	config, err := configs.LoadUserConfig()
	if err != nil {
		return nil, err
	}
	return New(configs.UserEnsealSettings, config, log), nil
}

// KeyPath is the own private key file.
func (s *Store) KeyPath() string {
	return filepath.Join(s.settings.KeysPath, "identity.pem")
}

// BundlePath is the own public bundle file.
func (s *Store) BundlePath() string {
	return filepath.Join(s.settings.KeysPath, "identity"+bundleExt)
}

func (s *Store) trustedPath(name string) string {
	return filepath.Join(s.settings.TrustedPath, name+bundleExt)
}

// Initialized reports whether an own identity exists.
func (s *Store) Initialized() bool {
	_, err := os.Stat(s.KeyPath())
	return err == nil
}

// Init creates the own identity under name. An existing identity is only
// replaced when force is set.
func (s *Store) Init(name string, force bool) (*secrets.PublicBundle, error) {
	if !utils.IsValidName(name) {
		return nil, fmt.Errorf("invalid identity name '%s'", name)
	}
	if s.Initialized() && !force {
		return nil, fmt.Errorf("%w: %s", kerrors.ErrIdentityExists, s.KeyPath())
	}

	kp, err := secrets.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	defer kp.Wipe()

	if err := secrets.SavePrivateKey(s.KeyPath(), kp, name); err != nil {
		return nil, err
	}
	bundle, err := secrets.NewPublicBundle(name, kp)
	if err != nil {
		return nil, err
	}
	data, err := bundle.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to encode public bundle: %w", err)
	}
	if err := utils.WriteFileAtomic(s.BundlePath(), data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write public bundle: %w", err)
	}
	return bundle, nil
}

// OwnKeyPair loads the own identity. Loose file permissions produce a
// warning, not an error.
func (s *Store) OwnKeyPair() (*secrets.KeyPair, error) {
	path := s.KeyPath()
	kp, err := secrets.LoadPrivateKey(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: run 'enseal keys init' first", kerrors.ErrNoIdentity)
		}
		return nil, err
	}
	if err := secrets.CheckKeyPermissions(path); err != nil {
		s.log.WarnfAlways("%v", err)
	}
	return kp, nil
}

// OwnBundle returns the own public bundle.
func (s *Store) OwnBundle() (*secrets.PublicBundle, error) {
	data, err := os.ReadFile(s.BundlePath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: run 'enseal keys init' first", kerrors.ErrNoIdentity)
		}
		return nil, err
	}
	return secrets.ParsePublicBundle(data)
}

// Import trusts the bundle in data under name. When name is empty the
// bundle's own name is used.
func (s *Store) Import(name string, data []byte, force bool) (*secrets.PublicBundle, error) {
	bundle, err := secrets.ParsePublicBundle(data)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = bundle.Name
	}
	if !utils.IsValidName(name) {
		return nil, fmt.Errorf("invalid identity name '%s'", name)
	}

	path := s.trustedPath(name)
	if _, err := os.Stat(path); err == nil && !force {
		return nil, fmt.Errorf("%w: %s", kerrors.ErrIdentityExists, name)
	}
	if err := os.MkdirAll(s.settings.TrustedPath, 0700); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", s.settings.TrustedPath, err)
	}

	bundle.Name = name
	out, err := bundle.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to encode public bundle: %w", err)
	}
	if err := utils.WriteFileAtomic(path, out, 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return bundle, nil
}

// Remove stops trusting name.
func (s *Store) Remove(name string) error {
	if err := os.Remove(s.trustedPath(name)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", kerrors.ErrIdentityNotFound, name)
		}
		return err
	}
	return nil
}

// Trusted is one imported identity.
type Trusted struct {
	Name        string
	Fingerprint string
	Recipient   *identity.Recipient
}

// List returns every imported identity sorted by name. Unreadable bundles
// are skipped with a warning.
func (s *Store) List() ([]*Trusted, error) {
	entries, err := os.ReadDir(s.settings.TrustedPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", s.settings.TrustedPath, err)
	}

	var out []*Trusted
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), bundleExt) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), bundleExt)
		r, err := s.load(name)
		if err != nil {
			s.log.Warnf("skipping %s: %v", e.Name(), err)
			continue
		}
		out = append(out, &Trusted{Name: name, Fingerprint: r.Fingerprint(), Recipient: r})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) load(name string) (*identity.Recipient, error) {
	data, err := os.ReadFile(s.trustedPath(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", kerrors.ErrIdentityNotFound, name)
		}
		return nil, err
	}
	bundle, err := secrets.ParsePublicBundle(data)
	if err != nil {
		return nil, err
	}
	pub, signing, err := bundle.Keys()
	if err != nil {
		return nil, err
	}
	return &identity.Recipient{Name: name, Public: pub, Signing: signing}, nil
}

// Resolve maps an alias to the identity name it stands for.
func (s *Store) Resolve(name string) string {
	if target, ok := s.config.Aliases[name]; ok {
		return target
	}
	return name
}

// LookupPublicKey resolves name, following one alias, to a trusted
// identity.
func (s *Store) LookupPublicKey(name string) (*identity.Recipient, error) {
	return s.load(s.Resolve(name))
}

// LookupGroup resolves every member of group.
func (s *Store) LookupGroup(group string) ([]*identity.Recipient, error) {
	members, ok := s.config.Groups[group]
	if !ok {
		return nil, fmt.Errorf("%w: %s", kerrors.ErrGroupNotFound, group)
	}
	out := make([]*identity.Recipient, 0, len(members))
	for _, m := range members {
		r, err := s.LookupPublicKey(m)
		if err != nil {
			return nil, fmt.Errorf("group %s: %w", group, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// LookupSigner finds the imported identity owning pub.
func (s *Store) LookupSigner(pub ed25519.PublicKey) (*identity.Recipient, error) {
	trusted, err := s.List()
	if err != nil {
		return nil, err
	}
	for _, t := range trusted {
		if bytes.Equal(t.Recipient.Signing, pub) {
			return t.Recipient, nil
		}
	}
	return nil, fmt.Errorf("%w: signing key %s is not imported", kerrors.ErrUntrustedSender, shortKey(pub))
}

// ResolveRecipients resolves a name, alias, or group. Groups win when a
// name is both.
func (s *Store) ResolveRecipients(name string) ([]*identity.Recipient, error) {
	if _, ok := s.config.Groups[name]; ok {
		return s.LookupGroup(name)
	}
	r, err := s.LookupPublicKey(name)
	if err != nil {
		return nil, err
	}
	return []*identity.Recipient{r}, nil
}

func shortKey(pub ed25519.PublicKey) string {
	s := base64.RawStdEncoding.EncodeToString(pub)
	if len(s) > 12 {
		return s[:12] + "..."
	}
	return s
}
