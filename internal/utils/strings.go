package utils

import (
	"regexp"
	"strings"

	"github.com/PolarWolf314/enseal/internal/ui"
)

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,63}$`)

// FormatPaths formats a slice of paths into a readable string.
func FormatPaths(paths []string) string {
	var b strings.Builder
	b.WriteString("\n")
	for _, path := range paths {
		b.WriteString("    - ")
		b.WriteString(ui.Path.Sprint(path))
		b.WriteString("\n")
	}
	return b.String()
}

// IsValidName reports whether name is usable as an identity, alias or group
// name. Names become file names in the trust store, so separators are refused.
func IsValidName(name string) bool {
	return namePattern.MatchString(name)
}
