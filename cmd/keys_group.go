package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PolarWolf314/enseal/internal/trust"
	"github.com/PolarWolf314/enseal/internal/ui"
)

func init() {
	keysGroupCmd.AddCommand(keysGroupAddCmd)
	keysGroupCmd.AddCommand(keysGroupRemoveCmd)
	keysGroupCmd.AddCommand(keysGroupDeleteCmd)
	keysGroupCmd.AddCommand(keysGroupListCmd)
}

var keysGroupCmd = &cobra.Command{
	Use:   "group",
	Short: "Manage named groups of recipients",
	Long: `A group lets 'enseal share --to <group>' encrypt to several identities at
once.

Examples:
  enseal keys group add team alice bob
  enseal keys group remove team bob
  enseal keys group delete team
  enseal keys group list`,
}

// updateGroups applies fn to the store, saves, and audits it as action.
func updateGroups(cmd *cobra.Command, action, group string, fn func(*trust.Store) error, done string) error {
	out := cmd.OutOrStdout()
	store, err := openStore()
	if err != nil {
		return err
	}
	err = fn(store)
	if err == nil {
		err = store.Save()
	}
	logKeysAction(action, group, err)
	if err != nil {
		fmt.Fprintln(out, failure("Could not update group", err))
		return reported(err)
	}
	fmt.Fprintln(out, ui.Success.Sprint("✓")+" "+done)
	return nil
}

var keysGroupAddCmd = &cobra.Command{
	Use:   "add <group> <identity>...",
	Short: "Add identities to a group, creating it if needed",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		group, members := args[0], args[1:]
		return updateGroups(cmd, "group-add", group, func(s *trust.Store) error {
			return s.AddToGroup(group, members...)
		}, fmt.Sprintf("Added %s to %s", strings.Join(members, ", "), ui.Highlight.Sprint(group)))
	},
}

var keysGroupRemoveCmd = &cobra.Command{
	Use:   "remove <group> <identity>",
	Short: "Remove an identity from a group",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		group, member := args[0], args[1]
		return updateGroups(cmd, "group-remove", group, func(s *trust.Store) error {
			return s.RemoveFromGroup(group, member)
		}, fmt.Sprintf("Removed %s from %s", member, ui.Highlight.Sprint(group)))
	},
}

var keysGroupDeleteCmd = &cobra.Command{
	Use:   "delete <group>",
	Short: "Delete a group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		group := args[0]
		return updateGroups(cmd, "group-delete", group, func(s *trust.Store) error {
			return s.DeleteGroup(group)
		}, "Deleted "+ui.Highlight.Sprint(group))
	},
}

var keysGroupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List groups and their members",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		store, err := openStore()
		if err != nil {
			return err
		}
		groups := store.Groups()
		if len(groups) == 0 {
			fmt.Fprintln(out, "No groups.")
			return nil
		}
		names := make([]string, 0, len(groups))
		for name := range groups {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintln(out, ui.Bullet(ui.Highlight.Sprint(name)+": "+strings.Join(groups[name], ", ")))
		}
		return nil
	},
}
