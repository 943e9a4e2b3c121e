package main

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var messagesLimit int
var messagesBefore string

var messagesCmd = &cobra.Command{
	Use:   "messages",
	Short: "Read and send direct messages",
}

var historyCmd = &cobra.Command{
	Use:   "history <user-id>",
	Short: "Show the conversation with a user, newest last",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return showConversation(args[0])
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <user-id> <message...>",
	Short: "Send a direct message",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendMessage(args[0], strings.Join(args[1:], " "))
	},
}

var readCmd = &cobra.Command{
	Use:   "read <user-id>",
	Short: "Mark the conversation with a user as read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return markConversationRead(args[0])
	},
}

func init() {
	historyCmd.Flags().IntVar(&messagesLimit, "limit", 50, "Number of messages to show (max 100)")
	historyCmd.Flags().StringVar(&messagesBefore, "before", "", "Only show messages older than this RFC 3339 time")

	messagesCmd.AddCommand(historyCmd)
	messagesCmd.AddCommand(sendCmd)
	messagesCmd.AddCommand(readCmd)
}

type directMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
	ReadAt    string `json:"read_at,omitempty"`
}

func showConversation(userID string) error {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(messagesLimit))
	if messagesBefore != "" {
		q.Set("before", messagesBefore)
	}

	var result struct {
		Messages []directMessage `json:"messages"`
		Meta     struct {
			NextBefore string `json:"next_before"`
		} `json:"meta"`
	}
	body, err := call("GET", "/api/v1/messages/"+userID+"?"+q.Encode(), nil, &result)
	if err != nil {
		return err
	}
	if printJSON(body) {
		return nil
	}

	if len(result.Messages) == 0 {
		fmt.Printf("✓ No messages\n")
		return nil
	}

	fmt.Printf("\n💬 Conversation with %s\n", truncateString(userID, 8))
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	// History comes newest first
	for i := len(result.Messages) - 1; i >= 0; i-- {
		m := result.Messages[i]
		who := "them"
		if m.From != userID {
			who = "you"
		}
		fmt.Printf("[%s] %-4s: %s\n", m.CreatedAt, who, m.Content)
	}
	if result.Meta.NextBefore != "" {
		fmt.Printf("\nOlder: kinfolk messages history %s --before %s\n", userID, result.Meta.NextBefore)
	}
	return nil
}

func sendMessage(userID, content string) error {
	var result struct {
		Message directMessage `json:"message"`
	}
	body, err := call("POST", "/api/v1/messages", map[string]string{"to": userID, "content": content}, &result)
	if err != nil {
		return err
	}
	if !printJSON(body) {
		fmt.Printf("✓ Sent (%s)\n", truncateString(result.Message.ID, 8))
	}
	return nil
}

func markConversationRead(userID string) error {
	var result struct {
		Updated     int64 `json:"updated"`
		UnreadCount int64 `json:"unread_count"`
	}
	body, err := call("POST", "/api/v1/messages/"+userID+"/read", nil, &result)
	if err != nil {
		return err
	}
	if !printJSON(body) {
		fmt.Printf("✓ Marked %d message(s) read, %d unread remaining\n", result.Updated, result.UnreadCount)
	}
	return nil
}
