// Package errors provides typed error values for enseal.
//
// Using sentinel errors allows callers to handle specific error conditions
// programmatically with errors.Is() rather than string matching. The same
// values are used on both sides of the relay: the relay reports failures as
// error codes on the wire, and the client maps each code back to the
// sentinel defined here.
//
// # Error Categories
//
// Errors are grouped by category:
//
//   - Encoding errors: malformed payloads or frames (ErrFormat, ErrProtocol)
//   - Handshake errors: PAKE and confirmation failures (ErrHandshake, ErrAuthentication)
//   - Channel errors: relay mailbox lifecycle (ErrChannelExpired, ErrChannelConsumed, ...)
//   - Identity errors: signing and recipient keys (ErrUntrustedSender, ErrDecrypt, ...)
//
// # Retry Policy
//
// ErrHandshake and ErrAuthentication are terminal for a code. Callers must
// never retry them on the same channel; a new code has to be generated. Only
// transport faults that happen before a channel exists (dial failures) are
// retried automatically.
//
// # Usage
//
// Wrap errors with additional context:
//
//	return fmt.Errorf("opening channel %s: %w", id, errors.ErrChannelFull)
//
// Handle errors in the CLI layer:
//
//	result, err := workflows.Receive(ctx, opts)
//	if errors.Is(err, kerrors.ErrChannelConsumed) {
//	    // Tell the user the code was already used
//	}
package errors
