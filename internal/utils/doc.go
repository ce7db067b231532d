// Package utils provides shared helpers for the enseal CLI.
//
// # System Utilities
//
//   - GetUsername, GetHostname: current user and host
//   - SanitizeName, IsValidName: normalize and check identity, alias and group names
//   - DefaultIdentityName: user@host style default for `keys init`
//
// # I/O Utilities
//
//   - ReadStdin: reads piped secret material
//   - WriteFileAtomic: writes received secrets via a temp file and rename
//   - ExpandPatterns: resolves paths and ** globs for file drops
//
// # Terminal Utilities
//
//   - ReadHidden, ReadHiddenFromTTY, ReadCode: input without echo
//   - IsTerminal, IsStdoutTerminal, IsTTYAvailable: terminal detection
package utils
