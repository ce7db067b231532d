package cmd

import (
	"fmt"
	"os"
	"strings"
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
	shareSecret  bool
	shareLabel   string
	shareInclude string
	shareExclude string
	shareTo      string
	shareVia     string
	shareOut     string
	shareWords   int
	shareTTL     time.Duration
)

func init() {
	shareCmd.Flags().BoolVar(&shareSecret, "secret", false, "share a single raw secret read from stdin or a hidden prompt")
	shareCmd.Flags().StringVar(&shareLabel, "label", "", "label for a raw secret")
	shareCmd.Flags().StringVar(&shareInclude, "include", "", "only share keys matching this regular expression")
	shareCmd.Flags().StringVar(&shareExclude, "exclude", "", "do not share keys matching this regular expression")
	shareCmd.Flags().StringVar(&shareTo, "to", "", "recipient identity, alias or group (enables identity mode)")
	shareCmd.Flags().StringVar(&shareVia, "via", "wormhole", "transport: wormhole, push or file")
	shareCmd.Flags().StringVar(&shareOut, "out", ".", "output directory for --via file")
	shareCmd.Flags().IntVar(&shareWords, "words", 0, "number of code words (default from config)")
	shareCmd.Flags().DurationVar(&shareTTL, "ttl", 0, "how long to wait for the receiver (default from config)")
	addRelayFlag(shareCmd)
}

func resetShareCommandState() {
	shareSecret = false
	shareLabel = ""
	shareInclude = ""
	shareExclude = ""
	shareTo = ""
	shareVia = "wormhole"
	shareOut = "."
	shareWords = 0
	shareTTL = 0
}

var shareCmd = &cobra.Command{
	Use:   "share [file]",
	Short: "Share a .env file or a single secret",
	Long: `Sends secrets to another machine through the relay. The relay only ever
sees ciphertext.

Without --to, a one-time code is printed for the receiver to type. With --to,
the payload is also encrypted to the recipient's key and signed with yours,
and can travel by code, by relay push to a listening recipient, or as a file.

Examples:
  enseal share                          # share ./.env with a code
  enseal share .env.prod --exclude '^DEBUG'
  echo -n sk_live_x | enseal share --secret --label "Stripe key"
  enseal share --to alice --via push    # alice runs 'enseal listen --from <you>'
  enseal share --to team --via file --out drops/`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting share command")

		transport, err := workflows.ParseTransport(shareVia)
		if err != nil {
			return err
		}
		cfg, err := loadUserConfig()
		if err != nil {
			return err
		}

		p, err := readSharePayload(args)
		if err != nil {
			return err
		}
		defer p.Wipe()
		Logger.Infof("Prepared %s", p.Summary())

		words := cfg.Share.Words
		if cmd.Flags().Changed("words") {
			words = shareWords
		}
		ttl := cfg.Share.TTL
		if cmd.Flags().Changed("ttl") {
			ttl = shareTTL
		}

		opts := workflows.ShareOptions{
			Payload:   p,
			To:        shareTo,
			Transport: transport,
			OutputDir: shareOut,
			Words:     words,
			TTL:       ttl,
			Relay:     relayOptions(cfg),
			Log:       Logger,
		}
		if shareTo != "" {
			opts.Keyring = loadStore(cfg)
		}

		spinner, cleanup := startSpinner("Connecting to relay...", os.Stderr)
		defer cleanup()

		opts.OnCode = func(code string) {
			pauseSpinner(spinner, func() {
				fmt.Fprintf(os.Stderr, "Share code: %s\n", ui.Wormhole.Sprint(code))
				fmt.Fprintf(os.Stderr, "On the other machine run: %s\n", ui.Code.Sprint("enseal receive "+code))
			})
			setSuffix(spinner, "Waiting for receiver...")
		}
		opts.OnPhase = func(ph wormhole.Phase) {
			if ph == wormhole.PhaseKeyExchanging {
				setSuffix(spinner, "Verifying code...")
			}
		}
		if transport == workflows.TransportPush {
			setSuffix(spinner, fmt.Sprintf("Waiting for %s to listen...", shareTo))
		}

		ctx, cancel := signalContext()
		defer cancel()

		result, err := workflows.Share(ctx, opts)
		if err != nil {
			spinner.FinalMSG = explain(err)
			return reported(err)
		}

		switch {
		case len(result.Pushed) > 0:
			spinner.FinalMSG = ui.Success.Sprint("✓") + " Delivered " + p.Summary() + " to " + ui.Highlight.Sprint(strings.Join(result.Pushed, ", "))
		case len(result.FilePaths) > 0:
			spinner.FinalMSG = ui.Success.Sprint("✓") + " Encrypted " + p.Summary() + " for " + ui.Highlight.Sprint(shareTo) +
				"\nThe following files were created: " + utils.FormatPaths(result.FilePaths) +
				ui.Info.Sprint("→") + " Send them any way you like; only the recipient can open them"
		default:
			spinner.FinalMSG = ui.Success.Sprint("✓") + " Sent " + p.Summary()
		}
		return nil
	},
}

// readSharePayload builds the payload from --secret, a file, or stdin.
func readSharePayload(args []string) (payload.Payload, error) {
	if shareSecret {
		value, err := readSecretValue()
		if err != nil {
			return payload.Payload{}, err
		}
		return payload.RawSecret(shareLabel, value), nil
	}

	var (
		file *envfile.File
		err  error
	)
	switch {
	case len(args) == 1 && args[0] == "-":
		file, err = envfile.Parse(os.Stdin)
	case len(args) == 1:
		file, err = envfile.ParseFile(args[0])
	case !utils.IsTerminal():
		file, err = envfile.Parse(os.Stdin)
	default:
		file, err = envfile.ParseFile(".env")
	}
	if err != nil {
		return payload.Payload{}, err
	}
	for _, key := range file.Duplicates {
		Logger.WarnfAlways("%s is defined more than once, the last value wins", key)
	}

	set, err := envfile.Filter(file.Secrets, shareInclude, shareExclude)
	if err != nil {
		return payload.Payload{}, err
	}
	if len(set) == 0 {
		return payload.Payload{}, fmt.Errorf("nothing to share: no variables left after filtering")
	}
	return payload.EnvSet(set), nil
}

// readSecretValue reads a raw secret from piped stdin or a hidden prompt.
func readSecretValue() ([]byte, error) {
	if !utils.IsTerminal() {
		return utils.ReadStdin()
	}
	value, err := utils.ReadHidden("Secret: ")
	if err != nil {
		return nil, err
	}
	if len(value) == 0 {
		return nil, fmt.Errorf("empty secret")
	}
	return value, nil
}
