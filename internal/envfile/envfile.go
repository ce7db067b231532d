package envfile

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	kerrors "github.com/PolarWolf314/enseal/internal/errors"
	"github.com/PolarWolf314/enseal/internal/payload"
)

var keyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]*$`)

// File is a parsed .env file.
type File struct {
	Secrets payload.SecretSet

	// Duplicates lists keys that appeared more than once.
	Duplicates []string
}

// ParseFile reads and parses the .env file at path.
func ParseFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	file, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return file, nil
}

// Parse reads .env syntax from r.
func Parse(r io.Reader) (*File, error) {
	var (
		secrets []payload.Secret
		index   = make(map[string]int)
		dups    []string
		label   string
		lineNum int
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" {
			label = ""
			continue
		}
		if strings.HasPrefix(line, "#") {
			label = strings.TrimSpace(strings.TrimPrefix(line, "#"))
			continue
		}

		line = strings.TrimPrefix(line, "export ")
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			return nil, fmt.Errorf("line %d: no '=' found: %w", lineNum, kerrors.ErrFormat)
		}

		key := strings.TrimSpace(line[:eq])
		if !keyPattern.MatchString(key) {
			return nil, fmt.Errorf("line %d: invalid key %q: %w", lineNum, key, kerrors.ErrFormat)
		}

		value, err := parseValue(strings.TrimSpace(line[eq+1:]))
		if err != nil {
			return nil, fmt.Errorf("line %d: %v: %w", lineNum, err, kerrors.ErrFormat)
		}

		secret := payload.Secret{Key: key, Value: []byte(value), Label: label}
		label = ""

		if i, ok := index[key]; ok {
			dups = append(dups, key)
			secrets = append(secrets[:i], secrets[i+1:]...)
			for k, j := range index {
				if j > i {
					index[k] = j - 1
				}
			}
		}
		index[key] = len(secrets)
		secrets = append(secrets, secret)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read env file: %w", err)
	}

	return &File{Secrets: secrets, Duplicates: dups}, nil
}

func parseValue(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}

	switch raw[0] {
	case '"':
		var b strings.Builder
		for i := 1; i < len(raw); i++ {
			c := raw[i]
			switch c {
			case '\\':
				i++
				if i == len(raw) {
					return "", fmt.Errorf("unterminated escape sequence")
				}
				switch raw[i] {
				case 'n':
					b.WriteByte('\n')
				case 'r':
					b.WriteByte('\r')
				case 't':
					b.WriteByte('\t')
				default:
					b.WriteByte(raw[i])
				}
			case '"':
				if err := checkRest(raw[i+1:]); err != nil {
					return "", err
				}
				return b.String(), nil
			default:
				b.WriteByte(c)
			}
		}
		return "", fmt.Errorf("unterminated double quote")

	case '\'':
		end := strings.IndexByte(raw[1:], '\'')
		if end < 0 {
			return "", fmt.Errorf("unterminated single quote")
		}
		if err := checkRest(raw[end+2:]); err != nil {
			return "", err
		}
		return raw[1 : end+1], nil
	}

	if i := strings.Index(raw, " #"); i >= 0 {
		raw = strings.TrimRight(raw[:i], " \t")
	}
	return raw, nil
}

func checkRest(rest string) error {
	rest = strings.TrimSpace(rest)
	if rest != "" && !strings.HasPrefix(rest, "#") {
		return fmt.Errorf("unexpected content after closing quote")
	}
	return nil
}

// Render writes secrets as a .env document. Values that would not survive
// an unquoted round trip are double quoted and escaped.
func Render(secrets payload.SecretSet) []byte {
	var buf bytes.Buffer
	for _, s := range secrets {
		if s.Label != "" {
			for _, l := range strings.Split(s.Label, "\n") {
				fmt.Fprintf(&buf, "# %s\n", l)
			}
		}
		buf.WriteString(s.Key)
		buf.WriteByte('=')
		buf.WriteString(quote(string(s.Value)))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func quote(v string) string {
	if v == "" {
		return ""
	}
	if !strings.ContainsAny(v, " \t\r\n\"'#\\") {
		return v
	}

	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(v); i++ {
		switch c := v[i]; c {
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// Filter keeps the secrets whose key matches include (when set) and does not
// match exclude (when set). Both are regular expressions.
func Filter(secrets payload.SecretSet, include, exclude string) (payload.SecretSet, error) {
	var inc, exc *regexp.Regexp
	var err error
	if include != "" {
		if inc, err = regexp.Compile(include); err != nil {
			return nil, fmt.Errorf("invalid include pattern: %w", err)
		}
	}
	if exclude != "" {
		if exc, err = regexp.Compile(exclude); err != nil {
			return nil, fmt.Errorf("invalid exclude pattern: %w", err)
		}
	}

	out := make(payload.SecretSet, 0, len(secrets))
	for _, s := range secrets {
		if inc != nil && !inc.MatchString(s.Key) {
			continue
		}
		if exc != nil && exc.MatchString(s.Key) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}
