package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	authToken string
	apiURL    string = "http://localhost:8787"
	output    string = "text" // "text" or "json"
)

var rootCmd = &cobra.Command{
	Use:   "kinfolk",
	Short: "Kinfolk CLI - friends, messages and notifications from the terminal",
	Long: `Kinfolk CLI provides command-line access to your Kinfolk account.
Manage friends and presence settings, read and send direct messages,
check notifications, and watch real-time events as they arrive.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if authToken == "" {
			authToken = os.Getenv("KINFOLK_TOKEN")
		}
		if authToken == "" && cmd.Name() != "help" && cmd.Parent() != nil {
			fmt.Fprintf(os.Stderr, "Error: KINFOLK_TOKEN environment variable not set\n")
			fmt.Fprintf(os.Stderr, "Please set your auth token: export KINFOLK_TOKEN=<your-token>\n")
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "Authentication token (defaults to KINFOLK_TOKEN env var)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", apiURL, "API server URL")
	rootCmd.PersistentFlags().StringVar(&output, "output", output, "Output format: text or json")

	// Add command groups
	rootCmd.AddCommand(friendsCmd)
	rootCmd.AddCommand(preferencesCmd)
	rootCmd.AddCommand(messagesCmd)
	rootCmd.AddCommand(notificationsCmd)
	rootCmd.AddCommand(onlineCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
