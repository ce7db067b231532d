package errors

import "errors"

// Encoding errors indicate malformed bytes on the wire or in a payload.
var (
	// ErrFormat indicates a payload encoding is truncated, overlong, or of an unknown version or type.
	ErrFormat = errors.New("malformed payload encoding")

	// ErrProtocol indicates a relay frame arrived out of sequence or could not be decoded.
	ErrProtocol = errors.New("relay protocol violation")

	// ErrPayloadTooLarge indicates a frame exceeded the relay's size limit.
	ErrPayloadTooLarge = errors.New("payload exceeds relay size limit")

	// ErrInvalidCode indicates a wormhole code could not be parsed.
	ErrInvalidCode = errors.New("invalid wormhole code")
)

// Handshake errors are terminal for the code in use and are never retried.
var (
	// ErrHandshake indicates a malformed or unexpected PAKE message.
	ErrHandshake = errors.New("key exchange failed")

	// ErrAuthentication indicates mutual authentication failed, usually a wrong code.
	ErrAuthentication = errors.New("authentication failed")
)

// Channel errors describe the relay mailbox lifecycle.
var (
	// ErrChannelExpired indicates the channel outlived its TTL.
	ErrChannelExpired = errors.New("channel expired")

	// ErrChannelConsumed indicates the channel already completed a transfer.
	ErrChannelConsumed = errors.New("channel already consumed")

	// ErrChannelAborted indicates the channel was torn down after a failure or disconnect.
	ErrChannelAborted = errors.New("channel aborted")

	// ErrChannelNotFound indicates no channel is waiting under the given id.
	ErrChannelNotFound = errors.New("channel not found")

	// ErrChannelFull indicates two participants are already attached to the channel.
	ErrChannelFull = errors.New("channel already has two participants")

	// ErrChannelExists indicates a create-only open found a live channel under the id.
	ErrChannelExists = errors.New("channel already exists")

	// ErrCapacity indicates the relay is at its concurrent channel limit.
	ErrCapacity = errors.New("relay at channel capacity")

	// ErrRateLimited indicates the relay refused the connection for this address.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// Identity errors indicate failures in the identity-mode envelope.
var (
	// ErrRecipientUnavailable indicates no listener joined the push channel in time.
	ErrRecipientUnavailable = errors.New("recipient is not listening")

	// ErrUntrustedSender indicates the envelope signer is unknown or the signature does not verify.
	ErrUntrustedSender = errors.New("untrusted sender")

	// ErrDecrypt indicates none of the envelope's wrapped keys matches the caller's key.
	ErrDecrypt = errors.New("no matching recipient key")

	// ErrReplay indicates an envelope was bound to a different exchange or is too old.
	ErrReplay = errors.New("envelope is stale or bound to another exchange")
)

// Key store errors indicate issues with the local trust store.
var (
	// ErrNoIdentity indicates no local identity has been created yet.
	ErrNoIdentity = errors.New("no local identity found")

	// ErrIdentityNotFound indicates a name or alias does not resolve to a trusted key.
	ErrIdentityNotFound = errors.New("identity not found")

	// ErrGroupNotFound indicates the named group does not exist.
	ErrGroupNotFound = errors.New("group not found")

	// ErrIdentityExists indicates an identity already exists and would be overwritten.
	ErrIdentityExists = errors.New("identity already exists")

	// ErrInvalidPrivateKey indicates the private key is malformed or unsupported.
	ErrInvalidPrivateKey = errors.New("invalid or unsupported private key format")

	// ErrInvalidPublicKey indicates a public key bundle is malformed.
	ErrInvalidPublicKey = errors.New("invalid public key bundle")
)

// Audit log errors.
var (
	// ErrInvalidDateFormat indicates a --since or --until date is not YYYY-MM-DD.
	ErrInvalidDateFormat = errors.New("invalid date format")
)
