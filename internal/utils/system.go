package utils

import (
	"os"
	"os/user"
	"regexp"
	"strings"
)

var (
	nameStrip   = regexp.MustCompile(`[^a-z0-9\-_.]`)
	nameHyphens = regexp.MustCompile(`-+`)
)

// GetUsername returns the current username.
func GetUsername() (string, error) {
	u, err := user.Current()
	if err != nil {
		return "", err
	}
	return u.Username, nil
}

// GetHostname returns the system hostname.
func GetHostname() (string, error) {
	return os.Hostname()
}

// SanitizeName lowercases name, turns spaces into hyphens and drops anything
// IsValidName would refuse.
func SanitizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "-")
	name = nameStrip.ReplaceAllString(name, "")
	name = nameHyphens.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-.")
	if len(name) > 64 {
		name = name[:64]
	}
	if name == "" {
		name = "enseal"
	}
	return name
}

// DefaultIdentityName derives an identity name from the user and host names.
func DefaultIdentityName() string {
	username, err := GetUsername()
	if err != nil {
		username = "user"
	}
	hostname, err := GetHostname()
	if err != nil || hostname == "" {
		return SanitizeName(username)
	}
	return SanitizeName(username + "@" + strings.SplitN(hostname, ".", 2)[0])
}
