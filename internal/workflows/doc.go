// Package workflows provides high-level orchestration for enseal commands.
//
// Workflows coordinate multiple operations across packages (payload,
// wormhole, identity, trust, audit) to implement complete user-facing
// features. Each workflow handles a single command's business logic,
// independent of CLI concerns like flag parsing, spinners, and output
// formatting.
//
// # Design Philosophy
//
// The cmd/ package should be a thin layer that:
//   - Parses command-line flags and arguments
//   - Calls the appropriate workflow function
//   - Formats the result for display
//
// Workflows handle everything else:
//   - Resolving recipients against the keyring
//   - Choosing the transport and running the transfer
//   - Writing received payloads to disk
//   - Recording audit trail entries
//
// # Available Workflows
//
//   - Share: sends a payload anonymously by wormhole code, or to named
//     recipients by wormhole, relay push, or file drop
//   - Receive: redeems a wormhole code or opens file drops
//   - Listen: waits for a relay push from one sender
//
// # Transfer Body
//
// A wormhole carries one body whose first byte says what follows: 0 for
// an encoded payload, 1 for a signed identity envelope around one.
//
// # Error Handling
//
// Workflows return typed errors from the internal/errors package, allowing
// the CLI layer to provide appropriate user-facing messages without string
// matching. Use errors.Is() to check for specific error conditions:
//
//	result, err := workflows.Receive(ctx, opts)
//	if errors.Is(err, kerrors.ErrChannelConsumed) {
//	    // The code was already used
//	}
//
// # Context Usage
//
// All workflow functions accept a context.Context as their first parameter.
// Cancelling it aborts any transfer in progress.
package workflows
