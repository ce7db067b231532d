// Package envfile reads and writes .env files as payload secret sets.
//
// Supported syntax: KEY=value, KEY="double quoted" with \n \r \t \\ \"
// escapes, KEY='single quoted' without escapes, an optional `export `
// prefix, blank lines, full-line comments and ` #` inline comments after
// unquoted values. A comment directly above an assignment becomes that
// secret's label, and Render writes it back the same way.
//
// Duplicate keys keep the last value; the shadowed keys are reported in
// File.Duplicates so callers can warn.
package envfile
