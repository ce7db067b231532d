package cmd

import (
	"github.com/spf13/cobra"

	logger "github.com/PolarWolf314/enseal/internal/logging"
)

var (
	verbose  bool
	debug    bool
	relayURL string
	Logger   logger.Logger
)

// Setup registers the global flags and every subcommand on root.
func Setup(root *cobra.Command) {
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	root.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug output")
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		Logger = logger.Logger{
			Verbose: verbose,
			Debug:   debug,
		}
		Logger.Debugf("Initializing %s command with verbose=%t, debug=%t", cmd.Name(), verbose, debug)
	}

	root.AddCommand(shareCmd)
	root.AddCommand(receiveCmd)
	root.AddCommand(listenCmd)
	root.AddCommand(serveCmd)
	root.AddCommand(KeysCmd)
	root.AddCommand(logCmd)
}

// addRelayFlag registers --relay on a command that talks to a relay.
func addRelayFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&relayURL, "relay", "", "relay URL (default from ENSEAL_RELAY or config)")
}

// ResetGlobalState resets all global variables to their default values for testing.
func ResetGlobalState() {
	verbose = false
	debug = false
	relayURL = ""
	resetShareCommandState()
	resetReceiveCommandState()
	resetListenCommandState()
	resetServeCommandState()
	resetKeysCommandState()
	resetLogCommandState()
}

// SetLogger sets the logger for testing.
func SetLogger(l logger.Logger) {
	Logger = l
}
