package configs

import (
	"log"
	"os"
	"path/filepath"

	"github.com/PolarWolf314/enseal/internal/utils"
)

type UserSettings struct {
	// ConfigPath holds config.toml.
	ConfigPath string

	// KeysPath holds the local identity.
	KeysPath string

	// TrustedPath holds imported public bundles.
	TrustedPath string

	// DataPath holds the audit log.
	DataPath string

	Username string
}

var UserEnsealSettings *UserSettings

func init() {
	username, err := utils.GetUsername()
	if err != nil {
		log.Fatalf("error getting username: %s", err)
	}

	if home := os.Getenv("ENSEAL_HOME"); home != "" {
		UserEnsealSettings = NewUserSettings(filepath.Join(home, "config"), filepath.Join(home, "data"), username)
		return
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Fatalf("error getting home directory: %s", err)
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		log.Fatalf("error getting config directory: %s", err)
	}

	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	UserEnsealSettings = NewUserSettings(filepath.Join(configDir, "enseal"), filepath.Join(dataDir, "enseal"), username)
}

// NewUserSettings lays out the enseal directories under configDir and
// dataDir.
func NewUserSettings(configDir, dataDir, username string) *UserSettings {
	return &UserSettings{
		ConfigPath:  configDir,
		KeysPath:    filepath.Join(configDir, "keys"),
		TrustedPath: filepath.Join(configDir, "trusted"),
		DataPath:    dataDir,
		Username:    username,
	}
}

// ConfigFile returns the path of the user config file.
func (s *UserSettings) ConfigFile() string {
	return filepath.Join(s.ConfigPath, "config.toml")
}
