// Package ui provides semantic text formatting for CLI output.
//
// Formatters render with color when the terminal supports it. When NO_COLOR
// is set or the terminal does not support colors, text decorations are
// used instead so the output stays readable in logs and pipes.
//
//	ui.Wormhole.Sprint("4821-sunset-marble") // Codes to read aloud
//	ui.Path.Sprint("alice.env.enseal")        // File paths
//	ui.Highlight.Sprint("DATABASE_URL")      // Keys and identity names
//	ui.Fingerprint.Sprint("SHA256:...")      // Key fingerprints
//	ui.Success.Sprint("✓")                    // Success indicators
//
// Secret values are never rendered directly; use Mask.
package ui
