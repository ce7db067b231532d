package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/PolarWolf314/enseal/internal/audit"
	"github.com/PolarWolf314/enseal/internal/trust"
	"github.com/PolarWolf314/enseal/internal/ui"
	"github.com/PolarWolf314/enseal/internal/utils"
)

var (
	keysName  string
	keysForce bool

	// KeysCmd is the top-level keys command.
	KeysCmd = &cobra.Command{
		Use:   "keys",
		Short: "Manage your identity and trusted public keys",
		Long: `Identity mode needs a key pair of your own and the public keys of the
people you share with.

Use these commands to:
  - Create your identity (keys init)
  - Give your public key to others (keys export)
  - Trust someone else's public key (keys import)
  - Name identities with aliases and group them

Examples:
  enseal keys init
  enseal keys export > me.pub
  enseal keys import alice.pub
  enseal keys alias set al alice
  enseal keys group add team alice bob`,
	}
)

func init() {
	keysInitCmd.Flags().StringVar(&keysName, "name", "", "identity name (default user@host)")
	keysInitCmd.Flags().BoolVarP(&keysForce, "force", "f", false, "replace an existing identity")
	keysImportCmd.Flags().StringVar(&keysName, "name", "", "name to trust the key under (default: the name in the bundle)")
	keysImportCmd.Flags().BoolVarP(&keysForce, "force", "f", false, "replace an already imported key")

	KeysCmd.AddCommand(keysInitCmd)
	KeysCmd.AddCommand(keysShowCmd)
	KeysCmd.AddCommand(keysExportCmd)
	KeysCmd.AddCommand(keysImportCmd)
	KeysCmd.AddCommand(keysListCmd)
	KeysCmd.AddCommand(keysRemoveCmd)
	KeysCmd.AddCommand(keysAliasCmd)
	KeysCmd.AddCommand(keysGroupCmd)
}

func resetKeysCommandState() {
	keysName = ""
	keysForce = false
	aliasRemove = false
}

// openStore loads the user config and the trust store over it.
func openStore() (*trust.Store, error) {
	cfg, err := loadUserConfig()
	if err != nil {
		return nil, err
	}
	return loadStore(cfg), nil
}

// logKeysAction records a keys subcommand in the audit log.
func logKeysAction(action, subject string, err error) {
	entry := audit.LogWithUser(audit.OpKeys)
	entry.Action = action
	if subject != "" {
		entry.Recipients = []string{subject}
	}
	if err != nil {
		entry.Error = err.Error()
	}
	audit.Log(entry)
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create your identity key pair",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting keys init command")
		out := cmd.OutOrStdout()

		store, err := openStore()
		if err != nil {
			return err
		}
		name := keysName
		if name == "" {
			name = utils.DefaultIdentityName()
		}
		Logger.Debugf("Creating identity %s at %s", name, store.KeyPath())

		bundle, err := store.Init(name, keysForce)
		logKeysAction("init", name, err)
		if err != nil {
			fmt.Fprintln(out, failure("Could not create identity", err))
			if !keysForce && store.Initialized() {
				fmt.Fprintln(out, hint("Use "+ui.Flag.Sprint("--force")+" to replace it"))
			}
			return reported(err)
		}
		fp, err := bundle.Fingerprint()
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "%s Created identity %s\n", ui.Success.Sprint("✓"), ui.Highlight.Sprint(name))
		fmt.Fprintf(out, "Fingerprint: %s\n", ui.Fingerprint.Sprint(fp))
		fmt.Fprintf(out, "Private key: %s\n", ui.Path.Sprint(store.KeyPath()))
		fmt.Fprintln(out, hint("Share your public key with "+ui.Code.Sprint("enseal keys export")))
		return nil
	},
}

var keysShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show your identity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		store, err := openStore()
		if err != nil {
			return err
		}
		bundle, err := store.OwnBundle()
		if err != nil {
			fmt.Fprintln(out, explain(err))
			return reported(err)
		}
		fp, err := bundle.Fingerprint()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Name:        %s\n", ui.Highlight.Sprint(bundle.Name))
		fmt.Fprintf(out, "Fingerprint: %s\n", ui.Fingerprint.Sprint(fp))
		fmt.Fprintf(out, "Public key:  %s\n", ui.Path.Sprint(store.BundlePath()))
		return nil
	},
}

var keysExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print your public key bundle",
	Long: `Prints your public key bundle. It is safe to publish; others import it
with 'enseal keys import'.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		bundle, err := store.OwnBundle()
		if err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), explain(err))
			return reported(err)
		}
		data, err := bundle.Marshal()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var keysImportCmd = &cobra.Command{
	Use:   "import <file|->",
	Short: "Trust someone's public key bundle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting keys import command")
		out := cmd.OutOrStdout()

		data, err := readBundleArg(cmd.InOrStdin(), args[0])
		if err != nil {
			return err
		}
		store, err := openStore()
		if err != nil {
			return err
		}

		bundle, err := store.Import(keysName, data, keysForce)
		subject := keysName
		if bundle != nil {
			subject = bundle.Name
		}
		logKeysAction("import", subject, err)
		if err != nil {
			fmt.Fprintln(out, failure("Could not import key", err))
			return reported(err)
		}
		fp, err := bundle.Fingerprint()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s Trusted %s\n", ui.Success.Sprint("✓"), ui.Highlight.Sprint(bundle.Name))
		fmt.Fprintf(out, "Fingerprint: %s\n", ui.Fingerprint.Sprint(fp))
		fmt.Fprintln(out, hint("Confirm the fingerprint with "+bundle.Name+" over a channel you trust"))
		return nil
	},
}

func readBundleArg(stdin io.Reader, arg string) ([]byte, error) {
	if arg == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", arg, err)
	}
	return data, nil
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List trusted identities",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		store, err := openStore()
		if err != nil {
			return err
		}
		trusted, err := store.List()
		if err != nil {
			return err
		}
		if len(trusted) == 0 {
			fmt.Fprintln(out, "No trusted identities yet.")
			fmt.Fprintln(out, hint("Import one with "+ui.Code.Sprint("enseal keys import <file>")))
			return nil
		}
		fmt.Fprintf(out, "Trusted identities (%d):\n", len(trusted))
		for _, t := range trusted {
			fmt.Fprintln(out, ui.Bullet(ui.Highlight.Sprint(t.Name)+"  "+ui.Fingerprint.Sprint(t.Fingerprint)))
		}
		return nil
	},
}

var keysRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Stop trusting an identity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		store, err := openStore()
		if err != nil {
			return err
		}
		err = store.Remove(args[0])
		logKeysAction("remove", args[0], err)
		if err != nil {
			fmt.Fprintln(out, failure("Could not remove key", err))
			return reported(err)
		}
		fmt.Fprintf(out, "%s Removed %s\n", ui.Success.Sprint("✓"), ui.Highlight.Sprint(args[0]))
		return nil
	},
}
