package main

import (
	"github.com/spf13/cobra"

	"github.com/PolarWolf314/enseal/cmd"
)

var rootCmd = &cobra.Command{
	Use:   "enseal",
	Short: "enseal - share .env files and secrets without leaving them in chat",
	Long: `enseal moves secrets between machines end to end encrypted. The relay
in the middle only ever sees ciphertext.

Features:
  - Share a .env file or a single secret with a one-time code
  - Encrypt to a colleague's public key and sign with yours
  - Push to someone listening, or drop an encrypted file anywhere
  - Run your own relay

Usage:
  enseal <command> [flags]

Available Commands:
  share      Share a .env file or a single secret
  receive    Receive secrets by code or from an encrypted file
  listen     Wait for secrets pushed to you
  keys       Manage your identity and trusted keys
  serve      Run a relay server

Run 'enseal help <command>' for more details on a specific command.
`,
}

func main() {
	cmd.Setup(rootCmd)
	cmd.Execute(rootCmd)
}
