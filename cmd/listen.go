package cmd

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/PolarWolf314/enseal/internal/ui"
	"github.com/PolarWolf314/enseal/internal/workflows"
)

var (
	listenFrom    string
	listenOutput  string
	listenTimeout time.Duration
)

func init() {
	listenCmd.Flags().StringVar(&listenFrom, "from", "", "identity or alias to accept a push from")
	listenCmd.Flags().StringVarP(&listenOutput, "output", "o", "", "write the secrets to this file (0600) instead of stdout")
	listenCmd.Flags().DurationVar(&listenTimeout, "timeout", 0, "stop waiting after this long (default: until interrupted)")
	_ = listenCmd.MarkFlagRequired("from")
	addRelayFlag(listenCmd)
}

func resetListenCommandState() {
	listenFrom = ""
	listenOutput = ""
	listenTimeout = 0
}

var listenCmd = &cobra.Command{
	Use:   "listen --from <identity>",
	Short: "Wait for secrets pushed to you through the relay",
	Long: `Waits until a trusted sender pushes secrets with
'enseal share --to <you> --via push'. Only the named sender is accepted and
the envelope must carry a valid signature.

Examples:
  enseal listen --from alice
  enseal listen --from alice -o .env --timeout 10m`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting listen command")

		cfg, err := loadUserConfig()
		if err != nil {
			return err
		}

		spinner, cleanup := startSpinner("Connecting to relay...", os.Stderr)
		defer cleanup()

		opts := workflows.ListenOptions{
			From:       listenFrom,
			Timeout:    listenTimeout,
			OutputPath: listenOutput,
			Relay:      relayOptions(cfg),
			Keyring:    loadStore(cfg),
			Log:        Logger,
			OnListening: func() {
				setSuffix(spinner, "Listening for "+ui.Highlight.Sprint(listenFrom)+"...")
			},
		}

		ctx, cancel := signalContext()
		defer cancel()

		result, err := workflows.Listen(ctx, opts)
		if err != nil {
			spinner.FinalMSG = explain(err)
			return reported(err)
		}

		spinner.FinalMSG = receivedSummary(result)
		if result.OutputPath == "" {
			cleanup()
			return writeReceived(os.Stdout, result)
		}
		return nil
	},
}
