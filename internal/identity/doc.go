// Package identity implements transfers between parties that hold each
// other's public keys.
//
// The body is hybrid-encrypted to every recipient and the ciphertext is
// then signed by the sender, so a receiver can reject an envelope from an
// unknown signer before attempting any decryption. Envelopes travel three
// ways:
//
//   - inside an anonymous wormhole session, as a second encryption layer
//     beneath the one derived from the code
//   - by relay push, where the sender finds a listening recipient on a
//     channel id both sides derive from their key pairs
//   - as a file written to disk, with no relay involved
//
// # Relay Push Rendezvous
//
// Channel ids are HMAC-SHA256 outputs keyed by the X25519 secret the two
// parties share, over the direction, a five minute window number and a
// slot number. A relay observer sees unlinkable ids that change every
// window and cannot compute them without one of the private keys. The
// listener creates the first free slot of the current window and, once
// the sender joins, issues a fresh random token which the sender must sign
// into the envelope. An envelope captured from one push is therefore
// rejected by every later listener.
package identity
