package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "companion",
	Short: "Local personal assistant daemon and CLI",
	Long: `companion is a local personal assistant. It keeps conversations,
reminders, notifications, and preferences in a local SQLite database and
talks to a hosted model for replies.

Run "companion start" to launch the daemon, then use the other commands
to talk to it.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the companion version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("companion version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(remindCmd)
	rootCmd.AddCommand(notificationsCmd)
	rootCmd.AddCommand(topicsCmd)
	rootCmd.AddCommand(prefsCmd)
	rootCmd.AddCommand(weatherCmd)
	rootCmd.AddCommand(dataCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
