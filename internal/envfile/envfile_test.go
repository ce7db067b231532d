package envfile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	kerrors "github.com/PolarWolf314/enseal/internal/errors"
	"github.com/PolarWolf314/enseal/internal/payload"
)

func parse(t *testing.T, input string) *File {
	t.Helper()
	f, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", input, err)
	}
	return f
}

func get(f *File, key string) (string, bool) {
	for _, s := range f.Secrets {
		if s.Key == key {
			return string(s.Value), true
		}
	}
	return "", false
}

func TestParseValues(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Plain", "KEY=value", "value"},
		{"Empty", "KEY=", ""},
		{"DoubleQuoted", `KEY="hello world"`, "hello world"},
		{"SingleQuoted", `KEY='hello world'`, "hello world"},
		{"EscapedQuotes", `KEY="hello \"world\""`, `hello "world"`},
		{"EscapedNewline", `KEY="a\nb"`, "a\nb"},
		{"SingleQuotedNoEscapes", `KEY='a\nb'`, `a\nb`},
		{"InlineComment", "KEY=value # note", "value"},
		{"HashInURL", "KEY=http://x/#frag", "http://x/#frag"},
		{"CommentAfterQuote", `KEY="v" # note`, "v"},
		{"ExportPrefix", "export KEY=value", "value"},
		{"SpacesAroundEquals", "KEY = value", "value"},
		{"Unicode", "KEY=héllo ✓", "héllo ✓"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := parse(t, tc.input)
			got, ok := get(f, "KEY")
			if !ok {
				t.Fatalf("KEY not found in %q", tc.input)
			}
			if got != tc.expected {
				t.Errorf("Parse(%q) = %q, expected %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	inputs := []string{
		"NOEQUALS",
		"=value",
		"1KEY=value",
		`KEY="unterminated`,
		`KEY='unterminated`,
		`KEY="v" trailing`,
		`KEY="trailing\`,
	}

	for _, input := range inputs {
		if _, err := Parse(strings.NewReader(input)); !errors.Is(err, kerrors.ErrFormat) {
			t.Errorf("Parse(%q) error = %v, expected ErrFormat", input, err)
		}
	}
}

func TestParseOrderAndLabels(t *testing.T) {
	f := parse(t, "# database host\nDB_HOST=h\n\n# orphan\n\nDB_PORT=5432\nAPI_KEY=k\n")

	if len(f.Secrets) != 3 {
		t.Fatalf("Expected 3 secrets, got %d", len(f.Secrets))
	}
	keys := []string{f.Secrets[0].Key, f.Secrets[1].Key, f.Secrets[2].Key}
	if strings.Join(keys, ",") != "DB_HOST,DB_PORT,API_KEY" {
		t.Errorf("Unexpected order %v", keys)
	}
	if f.Secrets[0].Label != "database host" {
		t.Errorf("Expected label on DB_HOST, got %q", f.Secrets[0].Label)
	}
	if f.Secrets[1].Label != "" {
		t.Errorf("Comment separated by a blank line must not label DB_PORT, got %q", f.Secrets[1].Label)
	}
}

func TestParseDuplicatesKeepLast(t *testing.T) {
	f := parse(t, "A=1\nB=2\nA=3\n")

	if len(f.Secrets) != 2 {
		t.Fatalf("Expected 2 secrets, got %d", len(f.Secrets))
	}
	if v, _ := get(f, "A"); v != "3" {
		t.Errorf("Expected last value 3, got %q", v)
	}
	if len(f.Duplicates) != 1 || f.Duplicates[0] != "A" {
		t.Errorf("Expected duplicate A, got %v", f.Duplicates)
	}
}

func TestRenderRoundTrip(t *testing.T) {
	secrets := payload.SecretSet{
		{Key: "PLAIN", Value: []byte("bar")},
		{Key: "EMPTY", Value: []byte("")},
		{Key: "SPACES", Value: []byte("hello world")},
		{Key: "MULTI", Value: []byte("line1\nline2\r\n")},
		{Key: "QUOTES", Value: []byte(`say "hi" it's \ fine`)},
		{Key: "HASH", Value: []byte("a #b")},
		{Key: "UNICODE", Value: []byte("日本語")},
		{Key: "LABELLED", Value: []byte("x"), Label: "rotated monthly"},
	}

	f := parse(t, string(Render(secrets)))
	if len(f.Secrets) != len(secrets) {
		t.Fatalf("Expected %d secrets, got %d", len(secrets), len(f.Secrets))
	}
	for i, want := range secrets {
		got := f.Secrets[i]
		if got.Key != want.Key || string(got.Value) != string(want.Value) || got.Label != want.Label {
			t.Errorf("secret %d: got %+v, expected %+v", i, got, want)
		}
	}
}

func TestFilter(t *testing.T) {
	secrets := parse(t, "DB_HOST=h\nDB_DEBUG=d\nAPI_KEY=k\nPUBLIC_URL=u\n").Secrets

	tests := []struct {
		name     string
		include  string
		exclude  string
		expected int
	}{
		{"NoFilters", "", "", 4},
		{"Include", "^DB_", "", 2},
		{"Exclude", "", "^PUBLIC_", 3},
		{"Both", "^DB_", "DEBUG", 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Filter(secrets, tc.include, tc.exclude)
			if err != nil {
				t.Fatalf("Filter failed: %v", err)
			}
			if len(out) != tc.expected {
				t.Errorf("Expected %d secrets, got %d", tc.expected, len(out))
			}
		})
	}

	if _, err := Filter(secrets, "[invalid", ""); err == nil {
		t.Error("Expected error for invalid pattern")
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("FOO=bar\nBAZ=qux\n"), 0600); err != nil {
		t.Fatal(err)
	}

	f, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	if len(f.Secrets) != 2 {
		t.Errorf("Expected 2 secrets, got %d", len(f.Secrets))
	}

	if _, err := ParseFile(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("Expected error for missing file")
	}
}
