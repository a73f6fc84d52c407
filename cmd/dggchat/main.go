// Command dggchat keeps a chat session open, prints the conversation and
// optionally archives it to PostgreSQL.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dggchat",
		Short: "Persistent destiny.gg chat client",
		Long: `dggchat connects to a destiny.gg chat server and keeps the session
alive across network failures. Chat lines are printed to stdout; logs go to
stderr.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		runCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
