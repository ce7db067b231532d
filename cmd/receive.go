package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/PolarWolf314/enseal/internal/envfile"
	"github.com/PolarWolf314/enseal/internal/payload"
	"github.com/PolarWolf314/enseal/internal/ui"
	"github.com/PolarWolf314/enseal/internal/utils"
	"github.com/PolarWolf314/enseal/internal/workflows"
	"github.com/PolarWolf314/enseal/internal/wormhole"
)

var (
	receiveOutput  string
	receiveTimeout time.Duration
)

func init() {
	receiveCmd.Flags().StringVarP(&receiveOutput, "output", "o", "", "write the secrets to this file (0600) instead of stdout")
	receiveCmd.Flags().DurationVar(&receiveTimeout, "timeout", 0, "how long to wait for the sender (default from config)")
	addRelayFlag(receiveCmd)
}

func resetReceiveCommandState() {
	receiveOutput = ""
	receiveTimeout = 0
}

var receiveCmd = &cobra.Command{
	Use:   "receive [code|file]",
	Short: "Receive secrets by code or from an encrypted file",
	Long: `Redeems a share code, or opens .env.enseal files encrypted to your identity.

If no code is given you are prompted for it without echo, so it does not end
up in your shell history. Secrets are printed to stdout unless --output is set.

Examples:
  enseal receive 4821-copper-falcon
  enseal receive --output .env
  enseal receive drops/alice.env.enseal
  enseal receive 'drops/*.env.enseal' -o .env`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting receive command")

		input := ""
		if len(args) == 1 {
			input = args[0]
		} else {
			code, err := utils.ReadCode()
			if err != nil {
				return err
			}
			input = code
		}

		cfg, err := loadUserConfig()
		if err != nil {
			return err
		}
		timeout := cfg.Relay.Timeout
		if cmd.Flags().Changed("timeout") {
			timeout = receiveTimeout
		}

		opts := workflows.ReceiveOptions{
			Input:      input,
			OutputPath: receiveOutput,
			Timeout:    timeout,
			Relay:      relayOptions(cfg),
			Keyring:    loadStore(cfg),
			Log:        Logger,
		}

		spinner, cleanup := startSpinner("Connecting to relay...", os.Stderr)
		defer cleanup()
		opts.OnPhase = func(ph wormhole.Phase) {
			switch ph {
			case wormhole.PhaseKeyExchanging:
				setSuffix(spinner, "Verifying code...")
			case wormhole.PhaseTransferring:
				setSuffix(spinner, "Receiving...")
			}
		}

		ctx, cancel := signalContext()
		defer cancel()

		result, err := workflows.Receive(ctx, opts)
		if err != nil {
			spinner.FinalMSG = explain(err)
			return reported(err)
		}

		spinner.FinalMSG = receivedSummary(result)
		if result.OutputPath == "" {
			// Secrets go to stdout after the spinner is gone.
			cleanup()
			return writeReceived(os.Stdout, result)
		}
		return nil
	},
}

// receivedSummary describes what arrived without showing any value.
func receivedSummary(result *workflows.ReceiveResult) string {
	msg := ""
	for i, r := range result.Received {
		if i > 0 {
			msg += "\n"
		}
		msg += ui.Success.Sprint("✓") + " Received " + r.Payload.Summary()
		if r.Sender != "" {
			msg += " from " + ui.Highlight.Sprint(r.Sender) + " (verified)"
		}
		if r.Source != "" {
			msg += " in " + ui.Path.Sprint(r.Source)
		}
	}
	if result.OutputPath != "" {
		msg += "\nWritten to " + ui.Path.Sprint(result.OutputPath)
	}
	return msg
}

// writeReceived prints the payloads: env sets as .env text, raw secrets
// verbatim.
func writeReceived(w io.Writer, result *workflows.ReceiveResult) error {
	for _, r := range result.Received {
		var out []byte
		switch r.Payload.Kind {
		case payload.KindEnvSet:
			out = envfile.Render(r.Payload.Secrets)
		default:
			out = r.Payload.Value
		}
		if _, err := w.Write(out); err != nil {
			return fmt.Errorf("failed to write secrets: %w", err)
		}
		if r.Payload.Kind == payload.KindRawSecret && utils.IsStdoutTerminal() {
			fmt.Fprintln(w)
		}
		r.Payload.Wipe()
	}
	return nil
}
