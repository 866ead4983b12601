// Package notifications tells site operators about integration problems that need
// a person, such as an expired provider authorization.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jsmooother/ej-development-sub001/internal/services"
	"github.com/jsmooother/ej-development-sub001/pkg/mail"
)

// EmailNotifier mails reconnect notices to a fixed list of operators.
type EmailNotifier struct {
	mailer       mail.Mailer
	to           []string
	reconnectURL string
}

// NewEmailNotifier constructs an EmailNotifier. reconnectURL is where the operator
// restarts the consent flow; it may be empty.
func NewEmailNotifier(mailer mail.Mailer, to []string, reconnectURL string) (*EmailNotifier, error) {
	if mailer == nil {
		return nil, errors.New("notifications: mailer is required")
	}
	recipients := make([]string, 0, len(to))
	for _, addr := range to {
		if addr = strings.TrimSpace(addr); addr != "" {
			recipients = append(recipients, addr)
		}
	}
	if len(recipients) == 0 {
		return nil, errors.New("notifications: at least one recipient is required")
	}
	return &EmailNotifier{mailer: mailer, to: recipients, reconnectURL: strings.TrimSpace(reconnectURL)}, nil
}

// ReconnectRequired implements services.ReconnectNotifier.
func (n *EmailNotifier) ReconnectRequired(ctx context.Context, notice services.ReconnectNotice) error {
	account := notice.Username
	if account == "" {
		account = "the connected account"
	} else {
		account = "@" + account
	}

	var body strings.Builder
	fmt.Fprintf(&body, "The %s connection for %s stopped working at %s.\n\n",
		notice.Provider, account, notice.At.UTC().Format(time.RFC1123))
	body.WriteString("The site keeps showing the media it already has, but no new posts will appear until the account is reconnected.\n")
	if n.reconnectURL != "" {
		fmt.Fprintf(&body, "\nReconnect here: %s\n", n.reconnectURL)
	}
	if notice.Reason != "" {
		fmt.Fprintf(&body, "\nProvider response: %s\n", notice.Reason)
	}

	return n.mailer.Send(ctx, mail.Message{
		To:      n.to,
		Subject: fmt.Sprintf("Action needed: reconnect %s", notice.Provider),
		Body:    body.String(),
	})
}
