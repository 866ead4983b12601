package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jsmooother/ej-development-sub001/internal/services"
	"github.com/jsmooother/ej-development-sub001/pkg/mail"
)

type captureMailer struct {
	sent []mail.Message
}

func (m *captureMailer) Send(_ context.Context, msg mail.Message) error {
	m.sent = append(m.sent, msg)
	return nil
}

func TestNewEmailNotifierValidates(t *testing.T) {
	_, err := NewEmailNotifier(nil, []string{"a@example.com"}, "")
	require.Error(t, err)

	_, err = NewEmailNotifier(&captureMailer{}, []string{" "}, "")
	require.ErrorContains(t, err, "recipient")
}

func TestReconnectRequiredSendsMail(t *testing.T) {
	mailer := &captureMailer{}
	n, err := NewEmailNotifier(mailer, []string{"owner@example.com"}, "https://www.example-studio.com/admin/integrations")
	require.NoError(t, err)

	err = n.ReconnectRequired(context.Background(), services.ReconnectNotice{
		Provider: "instagram",
		Username: "studio",
		Reason:   "REFRESH_FAILED: Session has expired",
		At:       time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, mailer.sent, 1)

	msg := mailer.sent[0]
	require.Equal(t, []string{"owner@example.com"}, msg.To)
	require.Equal(t, "Action needed: reconnect instagram", msg.Subject)
	require.Contains(t, msg.Body, "@studio")
	require.Contains(t, msg.Body, "Sat, 01 Mar 2025 12:00:00 UTC")
	require.Contains(t, msg.Body, "Reconnect here: https://www.example-studio.com/admin/integrations")
	require.Contains(t, msg.Body, "Session has expired")
}

func TestReconnectRequiredWithoutUsername(t *testing.T) {
	mailer := &captureMailer{}
	n, err := NewEmailNotifier(mailer, []string{"owner@example.com"}, "")
	require.NoError(t, err)

	require.NoError(t, n.ReconnectRequired(context.Background(), services.ReconnectNotice{Provider: "instagram"}))
	require.Contains(t, mailer.sent[0].Body, "the connected account")
	require.NotContains(t, mailer.sent[0].Body, "Reconnect here")
}
