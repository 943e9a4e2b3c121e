// Package email sends offline notification emails through AWS SES.
package email

import (
	"context"
	"fmt"
	"html"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/kinfolk/backend/internal/models"
)

// SendEmailAPI is the slice of the SES client used here
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// EmailService handles sending emails via AWS SES
type EmailService struct {
	client    SendEmailAPI
	fromEmail string
	fromName  string
	baseURL   string
}

// NewEmailService creates a new email service using AWS SES
func NewEmailService(region, fromEmail, fromName, baseURL string) (*EmailService, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewEmailServiceWithClient(ses.NewFromConfig(cfg), fromEmail, fromName, baseURL), nil
}

// NewEmailServiceWithClient builds the service around an existing SES client
func NewEmailServiceWithClient(client SendEmailAPI, fromEmail, fromName, baseURL string) *EmailService {
	return &EmailService{
		client:    client,
		fromEmail: fromEmail,
		fromName:  fromName,
		baseURL:   baseURL,
	}
}

// SendNotificationEmail tells an offline user something happened. actorName
// may be empty for notifications without an actor.
func (e *EmailService) SendNotificationEmail(ctx context.Context, to *models.User, kind models.NotificationKind, actorName string) error {
	subject, line := NotificationCopy(kind, actorName)
	link := fmt.Sprintf("%s/notifications", e.baseURL)

	htmlBody := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; color: #333;">
	<p>Hi %s,</p>
	<p>%s</p>
	<p><a href="%s">Open Kinfolk</a></p>
	<hr>
	<p style="color: #999; font-size: 12px;">You can turn these emails off in your settings.</p>
</body>
</html>`, html.EscapeString(to.DisplayName), html.EscapeString(line), link)

	textBody := fmt.Sprintf("Hi %s,\n\n%s\n\n%s\n\nYou can turn these emails off in your settings.\n",
		to.DisplayName, line, link)

	from := e.fromEmail
	if e.fromName != "" {
		from = fmt.Sprintf("%s <%s>", e.fromName, e.fromEmail)
	}

	input := &ses.SendEmailInput{
		Source: aws.String(from),
		Destination: &types.Destination{
			ToAddresses: []string{to.Email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data:    aws.String(htmlBody),
					Charset: aws.String("UTF-8"),
				},
				Text: &types.Content{
					Data:    aws.String(textBody),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	if _, err := e.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("failed to send notification email: %w", err)
	}
	return nil
}

// NotificationCopy returns the subject and body line for a notification kind
func NotificationCopy(kind models.NotificationKind, actorName string) (subject, line string) {
	if actorName == "" {
		actorName = "Someone"
	}

	switch kind {
	case models.NotificationMention:
		return "You were mentioned on Kinfolk", actorName + " mentioned you in a comment."
	case models.NotificationLike:
		return "New like on your post", actorName + " liked your post."
	case models.NotificationComment:
		return "New comment on Kinfolk", actorName + " commented on your post."
	case models.NotificationShare:
		return "Your post was shared", actorName + " shared your post."
	case models.NotificationFriendAccept:
		return "Friend request accepted", actorName + " accepted your friend request."
	case models.NotificationDirectMessage:
		return "New message on Kinfolk", actorName + " sent you a message."
	default:
		return "New activity on Kinfolk", "You have new activity."
	}
}
