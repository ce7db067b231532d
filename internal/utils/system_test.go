package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"LowercaseSimple", "Alice", "alice"},
		{"SpacesToHyphens", "Alice Laptop", "alice-laptop"},
		{"RemoveSpecialChars", "alice@host#1!", "alicehost1"},
		{"RemoveConsecutiveHyphens", "alice--host", "alice-host"},
		{"TrimHyphens", "-alice-", "alice"},
		{"KeepDots", "alice.work", "alice.work"},
		{"EmptyToDefault", "", "enseal"},
		{"OnlySpecialChars", "@#$%", "enseal"},
		{"TrimWhitespace", "  bob  ", "bob"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := SanitizeName(tc.input)
			if result != tc.expected {
				t.Errorf("SanitizeName(%q) = %q, expected %q", tc.input, result, tc.expected)
			}
			if !IsValidName(result) {
				t.Errorf("SanitizeName(%q) = %q is not a valid name", tc.input, result)
			}
		})
	}
}

func TestIsValidName(t *testing.T) {
	valid := []string{"alice", "bob-2", "team_ops", "a.b", "A1"}
	invalid := []string{"", "-alice", "../alice", "a/b", "a b", ".hidden"}

	for _, name := range valid {
		if !IsValidName(name) {
			t.Errorf("expected %q to be valid", name)
		}
	}
	for _, name := range invalid {
		if IsValidName(name) {
			t.Errorf("expected %q to be invalid", name)
		}
	}
}

func TestDefaultIdentityName(t *testing.T) {
	name := DefaultIdentityName()
	if !IsValidName(name) {
		t.Fatalf("DefaultIdentityName() = %q is not a valid name", name)
	}
}

func TestGetUsername(t *testing.T) {
	username, err := GetUsername()
	if err != nil {
		t.Fatalf("GetUsername failed: %v", err)
	}
	if username == "" {
		t.Fatal("Expected non-empty username")
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", ".env")

	if err := WriteFileAtomic(path, []byte("FOO=bar\n"), 0600); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}
	if err := WriteFileAtomic(path, []byte("FOO=baz\n"), 0600); err != nil {
		t.Fatalf("WriteFileAtomic overwrite failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "FOO=baz\n" {
		t.Errorf("unexpected content %q", data)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected 0600, got %o", info.Mode().Perm())
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the target file, found %d entries", len(entries))
	}
}

func TestExpandPatterns(t *testing.T) {
	dir := t.TempDir()
	for _, p := range []string{"a.enseal", "sub/b.enseal", "sub/deep/c.enseal", "sub/ignore.txt"} {
		full := filepath.Join(dir, p)
		if err := os.MkdirAll(filepath.Dir(full), 0700); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte("x"), 0600); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("Doublestar", func(t *testing.T) {
		got, err := ExpandPatterns([]string{filepath.Join(dir, "**", "*.enseal")})
		if err != nil {
			t.Fatalf("ExpandPatterns failed: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("expected 3 matches, got %v", got)
		}
	})

	t.Run("Dedup", func(t *testing.T) {
		literal := filepath.Join(dir, "a.enseal")
		got, err := ExpandPatterns([]string{literal, filepath.Join(dir, "*.enseal")})
		if err != nil {
			t.Fatalf("ExpandPatterns failed: %v", err)
		}
		if len(got) != 1 || got[0] != literal {
			t.Fatalf("expected [%s], got %v", literal, got)
		}
	})

	t.Run("MissingLiteral", func(t *testing.T) {
		if _, err := ExpandPatterns([]string{filepath.Join(dir, "nope.enseal")}); err == nil {
			t.Fatal("expected error for missing file")
		}
	})

	t.Run("NoMatches", func(t *testing.T) {
		got, err := ExpandPatterns([]string{filepath.Join(dir, "*.none")})
		if err != nil {
			t.Fatalf("ExpandPatterns failed: %v", err)
		}
		if len(got) != 0 {
			t.Fatalf("expected no matches, got %v", got)
		}
	})
}
