package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var onlineCmd = &cobra.Command{
	Use:   "online <user-id...>",
	Short: "Check which users are online",
	Long:  "Check which users are online. Users who hide their presence are reported offline.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return checkOnline(args)
	},
}

func checkOnline(userIDs []string) error {
	var result struct {
		Statuses map[string]bool `json:"statuses"`
	}
	body, err := call("POST", "/api/v1/ws/online", map[string][]string{"user_ids": userIDs}, &result)
	if err != nil {
		return err
	}
	if printJSON(body) {
		return nil
	}

	ids := make([]string, 0, len(result.Statuses))
	for id := range result.Statuses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if result.Statuses[id] {
			fmt.Printf("🟢 %s online\n", id)
		} else {
			fmt.Printf("⚪ %s offline\n", id)
		}
	}
	return nil
}
