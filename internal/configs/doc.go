// Package configs manages enseal's configuration files.
//
// Configuration is stored in TOML format:
//
//   - User config: <config dir>/enseal/config.toml (relay, share defaults,
//     aliases, groups)
//   - Relay server config: any path passed to `enseal serve --config`
//
// # User Configuration
//
// The user config stores:
//   - User identity (display name, UUID used in the audit trail)
//   - Relay URL and client timeout
//   - Share defaults (word count, channel TTL)
//   - Aliases mapping short names to trusted identities
//   - Groups mapping a name to a list of identities
//
// The ENSEAL_RELAY environment variable overrides the configured relay URL.
//
// # Relay Server Configuration
//
// ServerConfig follows a Load / FixupAndValidate pattern: defaults are
// filled in for every zero value, then each section is validated.
//
// # Settings
//
// UserEnsealSettings is initialized at startup with the config, keys,
// trusted-keys, and data directories. Setting ENSEAL_HOME moves all of them
// under one directory.
package configs
