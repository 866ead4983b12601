package app

import (
	"strings"

	"github.com/jsmooother/ej-development-sub001/pkg/mail"
)

// MailSettings converts the email section into SMTP settings.
func (e EmailConfig) MailSettings() mail.Settings {
	return mail.Settings{
		Enabled:     e.Enabled,
		Host:        strings.TrimSpace(e.Host),
		Port:        e.Port,
		Username:    strings.TrimSpace(e.Username),
		Password:    e.Password,
		From:        strings.TrimSpace(e.From),
		ImplicitTLS: e.ImplicitTLS,
		Timeout:     e.Timeout,
	}
}

// ReconnectURL is the admin page linked from reconnect notices. Empty when
// site.base_url is unset.
func (c *Config) ReconnectURL() string {
	base := strings.TrimRight(strings.TrimSpace(c.Site.BaseURL), "/")
	if base == "" {
		return ""
	}
	return base + c.Site.AdminStatusPath
}
