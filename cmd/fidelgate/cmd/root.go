package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fidelgate",
	Short: "Fidelgate is the loyalty program security service",
	Long: `The session and security backend for the loyalty card program:
customer and admin authentication, lockout and rate limiting, CSRF
protection and the security event log.`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
