package utils

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"golang.org/x/term"
)

func ttyPath() string {
	if runtime.GOOS == "windows" {
		return "CON"
	}
	return "/dev/tty"
}

// ReadHidden prompts on stderr and reads a line from stdin without echoing it.
// Returns an error if stdin is not a terminal.
func ReadHidden(prompt string) ([]byte, error) {
	fd := int(os.Stdin.Fd())

	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("cannot read hidden input: stdin is not a terminal")
	}

	fmt.Fprint(os.Stderr, prompt)
	value, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)

	if err != nil {
		return nil, fmt.Errorf("failed to read hidden input: %w", err)
	}

	return value, nil
}

// ReadHiddenFromTTY is ReadHidden against /dev/tty (or CON on Windows), for
// when stdin carries the data being shared.
func ReadHiddenFromTTY(prompt string) ([]byte, error) {
	path := ttyPath()

	tty, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s for input: %w", path, err)
	}
	defer tty.Close()

	fd := int(tty.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("%s is not a terminal", path)
	}

	fmt.Fprint(os.Stderr, prompt)
	value, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)

	if err != nil {
		return nil, fmt.Errorf("failed to read hidden input: %w", err)
	}

	return value, nil
}

// ReadCode reads a wormhole code without echo, preferring stdin and falling
// back to the controlling terminal.
func ReadCode() (string, error) {
	var (
		raw []byte
		err error
	)
	switch {
	case IsTerminal():
		raw, err = ReadHidden("Enter code: ")
	case IsTTYAvailable():
		raw, err = ReadHiddenFromTTY("Enter code: ")
	default:
		return "", fmt.Errorf("no terminal available to read the code (hint: pass it as an argument)")
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

// IsTerminal returns true if stdin is a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// IsStdoutTerminal returns true if stdout is a terminal.
func IsStdoutTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// IsTTYAvailable returns true if /dev/tty (or CON on Windows) is available for reading.
func IsTTYAvailable() bool {
	tty, err := os.Open(ttyPath())
	if err != nil {
		return false
	}
	defer tty.Close()

	return term.IsTerminal(int(tty.Fd()))
}
