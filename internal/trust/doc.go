// Package trust is the local keyring: the user's own identity and the
// public bundles they have imported.
//
// Layout under the config directory:
//
//	keys/identity.pem      own X25519 and Ed25519 private keys (0600)
//	keys/identity.pub      own public bundle, safe to share
//	trusted/<name>.pub     imported public bundles
//
// Aliases and groups live in config.toml. A Store implements
// identity.Keyring.
package trust
