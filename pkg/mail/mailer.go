// Package mail delivers plain text operator email over SMTP.
package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	netmail "net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrDisabled is returned by Send when delivery is switched off.
var ErrDisabled = errors.New("mail: delivery disabled")

const defaultTimeout = 10 * time.Second

// Message is a plain text email.
type Message struct {
	To      []string
	Subject string
	Body    string
}

// Mailer sends messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Settings configure the SMTP relay. ImplicitTLS dials TLS directly (port 465);
// otherwise STARTTLS is used whenever the server offers it.
type Settings struct {
	Enabled     bool
	Host        string
	Port        int
	Username    string
	Password    string
	From        string
	ImplicitTLS bool
	Timeout     time.Duration
}

// session is the subset of *smtp.Client used for delivery.
type session interface {
	Extension(name string) (bool, string)
	Auth(a smtp.Auth) error
	Mail(from string) error
	Rcpt(to string) error
	Data() (io.WriteCloser, error)
	Quit() error
	Close() error
}

type dialFunc func(ctx context.Context, cfg Settings) (session, error)

// SMTPMailer delivers through a single SMTP relay, one connection per message.
type SMTPMailer struct {
	cfg  Settings
	from *netmail.Address
	dial dialFunc
	now  func() time.Time
}

// NewSMTPMailer validates cfg. A disabled configuration yields a mailer whose Send
// always returns ErrDisabled.
func NewSMTPMailer(cfg Settings) (*SMTPMailer, error) {
	m := &SMTPMailer{cfg: cfg, dial: dialSMTP, now: time.Now}
	if !cfg.Enabled {
		return m, nil
	}

	cfg.Host = strings.TrimSpace(cfg.Host)
	switch {
	case cfg.Host == "":
		return nil, errors.New("mail: host is required")
	case cfg.Port <= 0 || cfg.Port > 65535:
		return nil, fmt.Errorf("mail: invalid port %d", cfg.Port)
	}
	from, err := netmail.ParseAddress(strings.TrimSpace(cfg.From))
	if err != nil {
		return nil, fmt.Errorf("mail: invalid sender %q: %w", cfg.From, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	m.cfg = cfg
	m.from = from
	return m, nil
}

// Send delivers msg. Recipients are de-duplicated case-insensitively.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if !m.cfg.Enabled {
		return ErrDisabled
	}

	recipients, err := parseRecipients(msg.To)
	if err != nil {
		return err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.Timeout)
		defer cancel()
	}

	s, err := m.dial(ctx, m.cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if m.cfg.Username != "" {
		if ok, _ := s.Extension("AUTH"); !ok {
			return errors.New("mail: server does not support AUTH")
		}
		if err := s.Auth(smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)); err != nil {
			return fmt.Errorf("mail: auth: %w", err)
		}
	}

	if err := s.Mail(m.from.Address); err != nil {
		return fmt.Errorf("mail: MAIL FROM: %w", err)
	}
	for _, rcpt := range recipients {
		if err := s.Rcpt(rcpt.Address); err != nil {
			return fmt.Errorf("mail: RCPT TO %s: %w", rcpt.Address, err)
		}
	}

	w, err := s.Data()
	if err != nil {
		return fmt.Errorf("mail: DATA: %w", err)
	}
	if _, err := w.Write(m.render(recipients, msg)); err != nil {
		_ = w.Close()
		return fmt.Errorf("mail: write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("mail: finish message: %w", err)
	}
	return s.Quit()
}

func (m *SMTPMailer) render(to []*netmail.Address, msg Message) []byte {
	rcpts := make([]string, len(to))
	for i, addr := range to {
		rcpts[i] = addr.String()
	}

	var buf bytes.Buffer
	header := func(k, v string) {
		buf.WriteString(k)
		buf.WriteString(": ")
		buf.WriteString(v)
		buf.WriteString("\r\n")
	}
	header("From", m.from.String())
	header("To", strings.Join(rcpts, ", "))
	header("Subject", mime.QEncoding.Encode("utf-8", singleLine(msg.Subject)))
	header("Date", m.now().Format(time.RFC1123Z))
	header("Message-ID", "<"+uuid.NewString()+"@"+m.cfg.Host+">")
	header("MIME-Version", "1.0")
	header("Content-Type", "text/plain; charset=UTF-8")
	header("Content-Transfer-Encoding", "8bit")
	buf.WriteString("\r\n")

	body := strings.ReplaceAll(msg.Body, "\r\n", "\n")
	buf.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	if !strings.HasSuffix(body, "\n") {
		buf.WriteString("\r\n")
	}
	return buf.Bytes()
}

func parseRecipients(addresses []string) ([]*netmail.Address, error) {
	seen := make(map[string]struct{}, len(addresses))
	var out []*netmail.Address
	for _, raw := range addresses {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		addr, err := netmail.ParseAddress(raw)
		if err != nil {
			return nil, fmt.Errorf("mail: invalid recipient %q: %w", raw, err)
		}
		key := strings.ToLower(addr.Address)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, addr)
	}
	if len(out) == 0 {
		return nil, errors.New("mail: at least one recipient is required")
	}
	return out, nil
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func dialSMTP(ctx context.Context, cfg Settings) (session, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	tlsCfg := &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}

	var (
		conn net.Conn
		err  error
	)
	if cfg.ImplicitTLS {
		conn, err = (&tls.Dialer{Config: tlsCfg}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = (&net.Dialer{}).DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("mail: dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("mail: greeting: %w", err)
	}
	if !cfg.ImplicitTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsCfg); err != nil {
				_ = client.Close()
				return nil, fmt.Errorf("mail: STARTTLS: %w", err)
			}
		}
	}
	return client, nil
}
