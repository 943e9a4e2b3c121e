package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var friendsCmd = &cobra.Command{
	Use:   "friends",
	Short: "Manage friends and friend requests",
	Long:  "Commands for listing friends, answering friend requests and unfriending",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listFriends()
	},
}

var friendRequestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "List pending friend requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listFriendRequests()
	},
}

var addFriendCmd = &cobra.Command{
	Use:   "add <user-id>",
	Short: "Send a friend request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendFriendRequest(args[0])
	},
}

var acceptFriendCmd = &cobra.Command{
	Use:   "accept <request-id>",
	Short: "Accept a friend request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return answerFriendRequest(args[0], "accept")
	},
}

var rejectFriendCmd = &cobra.Command{
	Use:   "reject <request-id>",
	Short: "Reject a friend request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return answerFriendRequest(args[0], "reject")
	},
}

var removeFriendCmd = &cobra.Command{
	Use:   "remove <user-id>",
	Short: "Unfriend a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return removeFriend(args[0])
	},
}

func init() {
	friendsCmd.AddCommand(friendRequestsCmd)
	friendsCmd.AddCommand(addFriendCmd)
	friendsCmd.AddCommand(acceptFriendCmd)
	friendsCmd.AddCommand(rejectFriendCmd)
	friendsCmd.AddCommand(removeFriendCmd)
}

type publicUser struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	IsOnline    bool   `json:"is_online"`
}

type friendRequest struct {
	ID        string     `json:"id"`
	Requester publicUser `json:"requester"`
	Status    string     `json:"status"`
	CreatedAt string     `json:"created_at"`
}

func listFriends() error {
	var result struct {
		Friends []publicUser `json:"friends"`
		Count   int          `json:"count"`
	}
	body, err := call("GET", "/api/v1/friends", nil, &result)
	if err != nil {
		return err
	}
	if printJSON(body) {
		return nil
	}

	if result.Count == 0 {
		fmt.Printf("✓ No friends yet\n")
		return nil
	}

	fmt.Printf("\n👥 Friends (%d)\n", result.Count)
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tNAME\tSTATUS")
	for _, f := range result.Friends {
		status := "offline"
		if f.IsOnline {
			status = "🟢 online"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.ID, f.Username, f.DisplayName, status)
	}
	return w.Flush()
}

func listFriendRequests() error {
	var result struct {
		Requests []friendRequest `json:"requests"`
	}
	body, err := call("GET", "/api/v1/friends/requests", nil, &result)
	if err != nil {
		return err
	}
	if printJSON(body) {
		return nil
	}

	if len(result.Requests) == 0 {
		fmt.Printf("✓ No pending friend requests\n")
		return nil
	}

	fmt.Printf("\n📝 Pending Friend Requests (%d)\n", len(result.Requests))
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFROM\tCREATED")
	for _, req := range result.Requests {
		fmt.Fprintf(w, "%s\t%s\t%s\n", req.ID, req.Requester.Username, req.CreatedAt)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\nUse: kinfolk friends accept <id>\n")
	fmt.Printf("     kinfolk friends reject <id>\n")
	return nil
}

func sendFriendRequest(userID string) error {
	body, err := call("POST", "/api/v1/friends/requests", map[string]string{"user_id": userID}, nil)
	if err != nil {
		return err
	}
	if !printJSON(body) {
		fmt.Printf("✓ Friend request sent to %s\n", truncateString(userID, 8))
	}
	return nil
}

func answerFriendRequest(requestID, action string) error {
	body, err := call("POST", "/api/v1/friends/requests/"+requestID+"/"+action, nil, nil)
	if err != nil {
		return err
	}
	if !printJSON(body) {
		fmt.Printf("✓ Friend request %sed\n", action)
	}
	return nil
}

func removeFriend(userID string) error {
	body, err := call("DELETE", "/api/v1/friends/"+userID, nil, nil)
	if err != nil {
		return err
	}
	if !printJSON(body) {
		fmt.Printf("✓ Unfriended %s\n", truncateString(userID, 8))
	}
	return nil
}
