package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PolarWolf314/enseal/internal/audit"
	kerrors "github.com/PolarWolf314/enseal/internal/errors"
	"github.com/PolarWolf314/enseal/internal/ui"
	"github.com/PolarWolf314/enseal/internal/workflows"
)

var (
	logLimit     int
	logReverse   bool
	logPeer      string
	logOperation string
	logSince     string
	logUntil     string
	logFailed    bool
	logJSON      bool
)

func init() {
	logCmd.Flags().IntVarP(&logLimit, "number", "n", 0, "limit number of entries shown")
	logCmd.Flags().BoolVar(&logReverse, "reverse", false, "show most recent entries first")
	logCmd.Flags().StringVar(&logPeer, "peer", "", "only transfers with this sender or recipient")
	logCmd.Flags().StringVar(&logOperation, "operation", "", "filter by operation: share, receive, listen, keys (comma-separated)")
	logCmd.Flags().StringVar(&logSince, "since", "", "show entries on or after date (YYYY-MM-DD)")
	logCmd.Flags().StringVar(&logUntil, "until", "", "show entries on or before date (YYYY-MM-DD)")
	logCmd.Flags().BoolVar(&logFailed, "failed", false, "only show operations that failed")
	logCmd.Flags().BoolVar(&logJSON, "json", false, "output as JSON array")
}

func resetLogCommandState() {
	logLimit = 0
	logReverse = false
	logPeer = ""
	logOperation = ""
	logSince = ""
	logUntil = ""
	logFailed = false
	logJSON = false
}

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "View the local audit log",
	Long: `Displays what this machine shared and received, and when. The log holds
metadata only: never values, codes or keys.

Examples:
  enseal log                        # View full log
  enseal log -n 10 --reverse        # Ten most recent entries
  enseal log --peer alice           # Transfers with alice
  enseal log --operation share      # Only shares
  enseal log --since 2026-01-01     # Filter by date
  enseal log --json                 # JSON output`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting log command")
		out := cmd.OutOrStdout()

		result, err := workflows.Log(workflows.LogOptions{
			Limit:      logLimit,
			Reverse:    logReverse,
			Peer:       logPeer,
			Operations: logOperation,
			Since:      logSince,
			Until:      logUntil,
			FailedOnly: logFailed,
		})
		if err != nil {
			if errors.Is(err, kerrors.ErrInvalidDateFormat) {
				fmt.Fprintln(out, ui.Error.Sprint("✗")+" "+err.Error())
				return reported(err)
			}
			return err
		}
		Logger.Debugf("Parsed %d entries from %s", result.TotalEntriesBeforeFilter, audit.LogPath())

		if len(result.Entries) == 0 {
			if result.TotalEntriesBeforeFilter == 0 {
				fmt.Fprintln(out, "No audit log entries found.")
			} else {
				fmt.Fprintln(out, "No audit log entries found matching the filters.")
			}
			return nil
		}

		if logJSON {
			data, err := json.MarshalIndent(result.Entries, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal entries to JSON: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		for _, e := range result.Entries {
			fmt.Fprintf(out, "%-19s  %-8s  %s\n", workflows.FormatDateTime(e.Timestamp), e.Operation, workflows.FormatDetails(e))
		}
		return nil
	},
}
