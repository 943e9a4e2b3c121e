package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var preferencesCmd = &cobra.Command{
	Use:   "preferences",
	Short: "Show or change presence and email settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showPreferences()
	},
}

var presenceCmd = &cobra.Command{
	Use:   "presence <on|off>",
	Short: "Show or hide your online status from friends",
	Long: `Hide or show your online status. While hidden:
- Friends see you as offline, even while connected
- You still see your friends' status`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		on, err := parseToggle(args[0])
		if err != nil {
			return err
		}
		return updatePreferences(map[string]bool{"show_presence": on})
	},
}

var emailCmd = &cobra.Command{
	Use:   "email <on|off>",
	Short: "Enable or disable email for notifications received while offline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		on, err := parseToggle(args[0])
		if err != nil {
			return err
		}
		return updatePreferences(map[string]bool{"email_notifications": on})
	},
}

func init() {
	preferencesCmd.AddCommand(presenceCmd)
	preferencesCmd.AddCommand(emailCmd)
}

type preferences struct {
	EmailNotifications bool `json:"email_notifications"`
	ShowPresence       bool `json:"show_presence"`
}

func parseToggle(s string) (bool, error) {
	switch s {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	on, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("expected on or off, got %q", s)
	}
	return on, nil
}

func showPreferences() error {
	var result struct {
		User struct {
			Username string `json:"username"`
			preferences
		} `json:"user"`
	}
	body, err := call("GET", "/api/v1/auth/me", nil, &result)
	if err != nil {
		return err
	}
	if printJSON(body) {
		return nil
	}

	printPreferences(result.User.Username, result.User.preferences)
	return nil
}

func updatePreferences(changes map[string]bool) error {
	var result preferences
	body, err := call("PUT", "/api/v1/users/me/preferences", changes, &result)
	if err != nil {
		return err
	}
	if printJSON(body) {
		return nil
	}

	fmt.Printf("✓ Preferences updated\n")
	printPreferences("", result)
	return nil
}

func printPreferences(username string, p preferences) {
	if username != "" {
		fmt.Printf("\n⚙️  Preferences for @%s\n", username)
	} else {
		fmt.Printf("\n⚙️  Preferences\n")
	}
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Printf("Show presence:        %s\n", onOff(p.ShowPresence))
	fmt.Printf("Email notifications:  %s\n", onOff(p.EmailNotifications))
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
