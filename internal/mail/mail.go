// Package mail delivers plain-text e-mail over SMTP.
package mail

import (
	"context"
	"errors"
	"fmt"
	"net/textproto"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"

	"github.com/teclab-at/logic-nodes/internal/delivery"
)

// DefaultFromName is the display name used when none is configured.
const DefaultFromName = "X1"

// Encryption selects how the SMTP connection is secured.
type Encryption string

const (
	EncryptionNone     Encryption = "none"
	EncryptionAuto     Encryption = "auto"
	EncryptionSSL      Encryption = "ssl"
	EncryptionSTARTTLS Encryption = "starttls"
)

// ParseEncryption maps a config value. The empty string is EncryptionAuto.
func ParseEncryption(s string) (Encryption, error) {
	switch e := Encryption(strings.ToLower(strings.TrimSpace(s))); e {
	case "":
		return EncryptionAuto, nil
	case EncryptionNone, EncryptionAuto, EncryptionSSL, EncryptionSTARTTLS:
		return e, nil
	}
	return "", fmt.Errorf("mail: unknown encryption %q", s)
}

// Config holds the SMTP server settings.
type Config struct {
	Host       string        `yaml:"host"`
	Port       int           `yaml:"port"`
	Encryption Encryption    `yaml:"encryption"`
	Username   string        `yaml:"username"`
	Password   string        `yaml:"password"`
	From       string        `yaml:"from"`
	FromName   string        `yaml:"from_name"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Message is one e-mail. An empty From uses the configured sender.
type Message struct {
	From    string `json:"from,omitempty"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Transport sends messages through the configured server. It implements
// delivery.Transport[Message]. Bad addresses and incomplete server settings
// are reported as delivery.Fatal, as is a 5xx reply while connecting (a
// rejected AUTH). Network failures and later protocol errors are retryable.
type Transport struct {
	cfg Config
}

// NewTransport creates a Transport.
func NewTransport(cfg Config) *Transport {
	if cfg.Encryption == "" {
		cfg.Encryption = EncryptionAuto
	}
	if cfg.FromName == "" {
		cfg.FromName = DefaultFromName
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Transport{cfg: cfg}
}

// Send delivers msg in a single SMTP session.
func (t *Transport) Send(ctx context.Context, msg Message) error {
	m, err := t.build(msg)
	if err != nil {
		return delivery.Fatal(err)
	}

	client, err := t.client()
	if err != nil {
		return delivery.Fatal(err)
	}

	if err := client.DialWithContext(ctx); err != nil {
		err = fmt.Errorf("mail: connect to %s: %w", t.cfg.Host, err)
		if permanentReply(err) {
			return delivery.Fatal(err)
		}
		return err
	}
	defer client.Close()

	if err := client.Send(m); err != nil {
		return fmt.Errorf("mail: send to %s: %w", msg.To, err)
	}
	return nil
}

// permanentReply reports whether err carries an SMTP 5xx reply code.
func permanentReply(err error) bool {
	var tpErr *textproto.Error
	return errors.As(err, &tpErr) && tpErr.Code >= 500 && tpErr.Code < 600
}

func (t *Transport) build(msg Message) (*gomail.Msg, error) {
	from := msg.From
	if from == "" {
		from = t.cfg.From
	}
	if strings.TrimSpace(from) == "" {
		return nil, errors.New("mail: no sender address")
	}
	if strings.TrimSpace(msg.To) == "" {
		return nil, errors.New("mail: no recipient address")
	}

	m := gomail.NewMsg()
	if err := m.FromFormat(t.cfg.FromName, from); err != nil {
		return nil, fmt.Errorf("mail: invalid sender: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("mail: invalid recipient: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextPlain, msg.Body)
	return m, nil
}

func (t *Transport) client() (*gomail.Client, error) {
	if t.cfg.Host == "" {
		return nil, errors.New("mail: no SMTP host configured")
	}

	opts := []gomail.Option{gomail.WithTimeout(t.cfg.Timeout)}
	switch t.cfg.Encryption {
	case EncryptionNone:
		opts = append(opts, gomail.WithTLSPolicy(gomail.NoTLS))
	case EncryptionSSL:
		opts = append(opts, gomail.WithSSL())
	case EncryptionSTARTTLS:
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	default:
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSOpportunistic))
	}
	if t.cfg.Port > 0 {
		opts = append(opts, gomail.WithPort(t.cfg.Port))
	}
	if t.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(t.cfg.Username),
			gomail.WithPassword(t.cfg.Password),
		)
	}

	c, err := gomail.NewClient(t.cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("mail: client: %w", err)
	}
	return c, nil
}
