package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var notificationsLimit int
var notificationsOffset int

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "List notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listNotifications()
	},
}

var countsCmd = &cobra.Command{
	Use:   "counts",
	Short: "Show unread and total notification counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return notificationCounts()
	},
}

var markReadCmd = &cobra.Command{
	Use:   "read [notification-id...]",
	Short: "Mark notifications read (all of them when no ids are given)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return markNotificationsRead(args)
	},
}

func init() {
	notificationsCmd.Flags().IntVar(&notificationsLimit, "limit", 20, "Number of notifications to show (max 100)")
	notificationsCmd.Flags().IntVar(&notificationsOffset, "offset", 0, "Number of notifications to skip")

	notificationsCmd.AddCommand(countsCmd)
	notificationsCmd.AddCommand(markReadCmd)
}

type notification struct {
	ID        string  `json:"id"`
	Kind      string  `json:"kind"`
	ActorID   *string `json:"actor_id,omitempty"`
	PostID    *string `json:"post_id,omitempty"`
	IsRead    bool    `json:"is_read"`
	CreatedAt string  `json:"created_at"`
}

func listNotifications() error {
	path := "/api/v1/notifications?limit=" + strconv.Itoa(notificationsLimit) + "&offset=" + strconv.Itoa(notificationsOffset)

	var result struct {
		Notifications []notification `json:"notifications"`
		Unread        int64          `json:"unread"`
	}
	body, err := call("GET", path, nil, &result)
	if err != nil {
		return err
	}
	if printJSON(body) {
		return nil
	}

	if len(result.Notifications) == 0 {
		fmt.Printf("✓ No notifications\n")
		return nil
	}

	fmt.Printf("\n🔔 Notifications (%d unread)\n", result.Unread)
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\tID\tKIND\tFROM\tPOST\tCREATED")
	for _, n := range result.Notifications {
		marker := "•"
		if n.IsRead {
			marker = " "
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			marker,
			n.ID,
			n.Kind,
			truncateString(deref(n.ActorID), 8),
			truncateString(deref(n.PostID), 8),
			n.CreatedAt)
	}
	return w.Flush()
}

func notificationCounts() error {
	var result struct {
		Unread int64 `json:"unread"`
		Total  int64 `json:"total"`
	}
	body, err := call("GET", "/api/v1/notifications/counts", nil, &result)
	if err != nil {
		return err
	}
	if !printJSON(body) {
		fmt.Printf("🔔 %d unread of %d\n", result.Unread, result.Total)
	}
	return nil
}

func markNotificationsRead(ids []string) error {
	var result struct {
		Updated int64 `json:"updated"`
		Unread  int64 `json:"unread"`
	}
	body, err := call("POST", "/api/v1/notifications/read", map[string][]string{"ids": ids}, &result)
	if err != nil {
		return err
	}
	if !printJSON(body) {
		fmt.Printf("✓ Marked %d notification(s) read, %d unread remaining\n", result.Updated, result.Unread)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
