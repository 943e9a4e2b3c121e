package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	ws "github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/kinfolk/backend/internal/websocket"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream real-time events (messages, presence, notifications)",
	Long: `Open a WebSocket connection and print every event as it arrives.
Being connected makes you appear online to your friends. Press Ctrl-C to stop.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return watch(ctx)
	},
}

// wsURL turns the API base URL into the WebSocket endpoint
func wsURL() (string, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return "", fmt.Errorf("invalid API URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/v1/ws"
	return u.String(), nil
}

func watch(ctx context.Context) error {
	endpoint, err := wsURL()
	if err != nil {
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := ws.Dial(dialCtx, endpoint, &ws.DialOptions{
		HTTPHeader: map[string][]string{"Authorization": {"Bearer " + authToken}},
	})
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.CloseNow()

	if output != "json" {
		fmt.Printf("📡 Connected to %s, waiting for events...\n", endpoint)
	}

	for {
		var raw json.RawMessage
		if err := wsjson.Read(ctx, conn, &raw); err != nil {
			if ctx.Err() != nil {
				conn.Close(ws.StatusNormalClosure, "bye")
				return nil
			}
			if status := ws.CloseStatus(err); status != -1 {
				fmt.Printf("🔌 Server closed the connection (%d)\n", status)
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("connection lost: %w", err)
		}

		if output == "json" {
			fmt.Println(string(raw))
			continue
		}
		printEvent(raw)
	}
}

func printEvent(raw json.RawMessage) {
	var msg websocket.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		fmt.Printf("? %s\n", raw)
		return
	}

	stamp := time.Now().Format("15:04:05")
	switch msg.Type {
	case websocket.MessageTypeDirectMessage:
		var p websocket.DirectMessagePayload
		if msg.ParsePayload(&p) == nil {
			fmt.Printf("[%s] 💬 %s: %s\n", stamp, truncateString(p.From, 8), p.Content)
			return
		}
	case websocket.MessageTypePresence:
		var p websocket.PresencePayload
		if msg.ParsePayload(&p) == nil {
			state := "⚪ offline"
			if p.IsOnline {
				state = "🟢 online"
			}
			fmt.Printf("[%s] %s %s\n", stamp, p.UserID, state)
			return
		}
	case websocket.MessageTypeNotification:
		var p websocket.NotificationPayload
		if msg.ParsePayload(&p) == nil {
			fmt.Printf("[%s] 🔔 %s from %s\n", stamp, p.Kind, deref(p.ActorID))
			return
		}
	case websocket.MessageTypeNotificationCount:
		var p websocket.NotificationCountPayload
		if msg.ParsePayload(&p) == nil {
			fmt.Printf("[%s] 🔔 %d unread\n", stamp, p.UnreadCount)
			return
		}
	case websocket.MessageTypeSystem:
		var p websocket.SystemPayload
		if msg.ParsePayload(&p) == nil {
			fmt.Printf("[%s] 📢 %s: %s\n", stamp, p.Event, p.Message)
			return
		}
	case websocket.MessageTypeError:
		var p websocket.ErrorPayload
		if msg.ParsePayload(&p) == nil {
			fmt.Printf("[%s] ⚠️  %s: %s\n", stamp, p.Code, p.Message)
			return
		}
	}
	fmt.Printf("[%s] %s %s\n", stamp, msg.Type, raw)
}
