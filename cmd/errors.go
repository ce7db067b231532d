package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	kerrors "github.com/PolarWolf314/enseal/internal/errors"
	"github.com/PolarWolf314/enseal/internal/ui"
)

// reportedError wraps an error whose message the command already showed.
type reportedError struct{ error }

func (e *reportedError) Unwrap() error { return e.error }

func reported(err error) error {
	return &reportedError{err}
}

// Execute runs root and exits non-zero on failure.
func Execute(root *cobra.Command) {
	root.SilenceErrors = true
	root.SilenceUsage = true
	if err := root.Execute(); err != nil {
		var r *reportedError
		if !errors.As(err, &r) {
			fmt.Fprintln(os.Stderr, ui.Error.Sprint("Error: ")+err.Error())
		}
		os.Exit(1)
	}
}

// explain turns a workflow error into a message and a next step.
func explain(err error) string {
	switch {
	case errors.Is(err, kerrors.ErrAuthentication):
		return failure("The code did not match, so the transfer was destroyed", nil) +
			hint("Ask the sender to share again and double-check the code")
	case errors.Is(err, kerrors.ErrChannelConsumed):
		return failure("This code has already been used", nil) +
			hint("Codes work exactly once. Ask the sender to share again")
	case errors.Is(err, kerrors.ErrChannelExpired):
		return failure("This code has expired", nil) +
			hint("Ask the sender to share again")
	case errors.Is(err, kerrors.ErrChannelNotFound):
		return failure("No transfer is waiting for this code", nil) +
			hint("Check the number at the start of the code")
	case errors.Is(err, kerrors.ErrChannelAborted):
		return failure("The other side disconnected before the transfer completed", err)
	case errors.Is(err, kerrors.ErrInvalidCode):
		return failure("That is not a valid code", err) +
			hint("Codes look like "+ui.Wormhole.Sprint("4821-copper-falcon"))
	case errors.Is(err, kerrors.ErrRecipientUnavailable):
		return failure("The recipient is not listening", err) +
			hint("Ask them to run "+ui.Code.Sprint("enseal listen --from <you>"))
	case errors.Is(err, kerrors.ErrUntrustedSender):
		return failure("The sender could not be verified, nothing was decrypted", err) +
			hint("Import their key with "+ui.Code.Sprint("enseal keys import <file>"))
	case errors.Is(err, kerrors.ErrDecrypt):
		return failure("This payload was not encrypted to your identity", err)
	case errors.Is(err, kerrors.ErrReplay):
		return failure("The envelope is stale or was replayed", err)
	case errors.Is(err, kerrors.ErrNoIdentity):
		return failure("You have no identity yet", nil) +
			hint("Run "+ui.Code.Sprint("enseal keys init"))
	case errors.Is(err, kerrors.ErrIdentityNotFound), errors.Is(err, kerrors.ErrGroupNotFound):
		return failure("Unknown recipient", err) +
			hint("See "+ui.Code.Sprint("enseal keys list"))
	case errors.Is(err, kerrors.ErrRateLimited):
		return failure("The relay is rate limiting this address", nil) +
			hint("Wait a minute and try again")
	case errors.Is(err, kerrors.ErrCapacity):
		return failure("The relay is at capacity", nil) +
			hint("Try again shortly")
	case errors.Is(err, kerrors.ErrPayloadTooLarge):
		return failure("The payload is larger than the relay allows", nil)
	default:
		return failure("Transfer failed", err)
	}
}
