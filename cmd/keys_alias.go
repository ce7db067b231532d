package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PolarWolf314/enseal/internal/ui"
)

var aliasRemove bool

func init() {
	keysAliasCmd.Flags().BoolVar(&aliasRemove, "remove", false, "remove the alias")
	keysAliasCmd.AddCommand(keysAliasListCmd)
}

var keysAliasCmd = &cobra.Command{
	Use:   "alias <alias> [identity]",
	Short: "Name a trusted identity with a short alias",
	Long: `Sets alias to point at an imported identity, or removes it with --remove.

Examples:
  enseal keys alias al alice
  enseal keys alias al --remove
  enseal keys alias list`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if !aliasRemove && len(args) != 2 {
			return fmt.Errorf("expected an alias and an identity")
		}
		store, err := openStore()
		if err != nil {
			return err
		}

		action := "alias-set"
		if aliasRemove {
			action = "alias-remove"
			err = store.RemoveAlias(args[0])
		} else {
			err = store.SetAlias(args[0], args[1])
		}
		if err == nil {
			err = store.Save()
		}
		logKeysAction(action, args[0], err)
		if err != nil {
			fmt.Fprintln(out, failure("Could not update alias", err))
			return reported(err)
		}

		if aliasRemove {
			fmt.Fprintf(out, "%s Removed alias %s\n", ui.Success.Sprint("✓"), ui.Highlight.Sprint(args[0]))
		} else {
			fmt.Fprintf(out, "%s %s now refers to %s\n", ui.Success.Sprint("✓"), ui.Highlight.Sprint(args[0]), ui.Highlight.Sprint(args[1]))
		}
		return nil
	},
}

var keysAliasListCmd = &cobra.Command{
	Use:   "list",
	Short: "List aliases",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		store, err := openStore()
		if err != nil {
			return err
		}
		aliases := store.Aliases()
		if len(aliases) == 0 {
			fmt.Fprintln(out, "No aliases.")
			return nil
		}
		for _, a := range aliases {
			fmt.Fprintln(out, ui.Bullet(ui.Highlight.Sprint(a[0])+" → "+a[1]))
		}
		return nil
	},
}
