// Package telegram sends chat messages through the Telegram Bot HTTP API.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/teclab-at/logic-nodes/internal/delivery"
)

const (
	// DefaultBaseURL is the public Bot API endpoint.
	DefaultBaseURL = "https://api.telegram.org"
	// DefaultText is sent when a trigger carries no text.
	DefaultText = "Message from X1"
	// DefaultTimeout bounds one API call.
	DefaultTimeout = 10 * time.Second
)

// Message is one chat message. Second, if set, is appended as a new line.
type Message struct {
	Text   string `json:"text"`
	Second string `json:"second,omitempty"`
}

// Content returns the text as sent.
func (m Message) Content() string {
	text := m.Text
	if text == "" {
		text = DefaultText
	}
	if m.Second != "" {
		text += "\n" + m.Second
	}
	return text
}

// Response is the Bot API reply.
type Response struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// APIError is a request the API rejected.
type APIError struct {
	StatusCode  int
	ErrorCode   int
	Description string
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("telegram: HTTP %d: %s", e.StatusCode, e.Description)
	}
	return fmt.Sprintf("telegram: HTTP %d", e.StatusCode)
}

// Config configures a Transport.
type Config struct {
	BaseURL    string
	BotToken   string
	ChatID     string
	HTTPClient *http.Client
}

// Transport implements delivery.Transport[Message].
type Transport struct {
	base   string
	token  string
	chatID string
	client *http.Client
}

// NewTransport creates a Transport.
func NewTransport(cfg Config) *Transport {
	t := &Transport{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		token:  cfg.BotToken,
		chatID: cfg.ChatID,
		client: cfg.HTTPClient,
	}
	if t.base == "" {
		t.base = DefaultBaseURL
	}
	if t.client == nil {
		t.client = &http.Client{Timeout: DefaultTimeout}
	}
	return t
}

// Send issues one sendmessage call.
//
// A missing token or chat id and the client errors 400, 401, 403 and 404
// are fatal. Transport failures, other non-200 answers and ok=false are
// retryable.
func (t *Transport) Send(ctx context.Context, msg Message) error {
	if t.token == "" {
		return delivery.Fatal(errors.New("telegram: no bot token configured"))
	}
	if t.chatID == "" {
		return delivery.Fatal(errors.New("telegram: no chat id configured"))
	}

	q := url.Values{}
	q.Set("chat_id", t.chatID)
	q.Set("text", msg.Content())
	endpoint := fmt.Sprintf("%s/bot%s/sendmessage?%s", t.base, t.token, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return delivery.Fatal(fmt.Errorf("telegram: build request: %w", err))
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: %w", redact(err, t.token))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("telegram: read response: %w", err)
	}

	var r Response
	decodeErr := json.Unmarshal(body, &r)

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, ErrorCode: r.ErrorCode, Description: r.Description}
		if apiErr.Description == "" {
			apiErr.Description = strings.TrimSpace(string(body))
		}
		switch resp.StatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return delivery.Fatal(apiErr)
		}
		return apiErr
	}

	if decodeErr != nil {
		return fmt.Errorf("telegram: decode response: %w", decodeErr)
	}
	if !r.OK {
		return &APIError{StatusCode: resp.StatusCode, ErrorCode: r.ErrorCode, Description: r.Description}
	}
	return nil
}

// redact strips the bot token from URL errors.
func redact(err error, token string) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return &url.Error{Op: uerr.Op, URL: strings.ReplaceAll(uerr.URL, token, "<token>"), Err: uerr.Err}
	}
	return err
}
