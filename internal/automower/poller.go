package automower

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/teclab-at/logic-nodes/internal/auth"
	"github.com/teclab-at/logic-nodes/internal/metrics"
)

// DefaultTimeout bounds a single device list request.
const DefaultTimeout = 10 * time.Second

const maxBodyBytes = 1 << 20

// ErrPollInFlight is returned when a poll is already running for the node.
var ErrPollInFlight = errors.New("automower: poll already in progress")

// PollErrorKind classifies a failed poll.
type PollErrorKind int

const (
	// PollAuth means no valid credential could be negotiated.
	PollAuth PollErrorKind = iota + 1
	// PollNetwork covers transport failures, timeouts and non-200 responses.
	PollNetwork
	// PollApplication means the API answered with an error envelope or an
	// unreadable document.
	PollApplication
)

func (k PollErrorKind) String() string {
	switch k {
	case PollAuth:
		return "auth"
	case PollNetwork:
		return "network"
	case PollApplication:
		return "application"
	}
	return "unknown"
}

// PollError describes a failed poll. Body holds the response body, if any,
// for diagnostics.
type PollError struct {
	Kind       PollErrorKind
	StatusCode int
	Body       string
	Err        error
}

func (e *PollError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("automower: %s error (HTTP %d): %v", e.Kind, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("automower: %s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("automower: %s error", e.Kind)
}

func (e *PollError) Unwrap() error {
	return e.Err
}

// CredentialSource supplies a valid bearer credential. *auth.Broker
// satisfies it.
type CredentialSource interface {
	EnsureValid(ctx context.Context) (auth.Credential, error)
}

// PollerConfig configures a Poller.
type PollerConfig struct {
	// Name labels metrics and logs.
	Name        string
	URL         string
	AppID       string
	Credentials CredentialSource
	HTTPClient  *http.Client
	Logger      zerolog.Logger
	Metrics     *metrics.Metrics
}

// Poller fetches the device list. At most one poll runs at a time; a poll
// requested while another is in flight returns ErrPollInFlight immediately.
type Poller struct {
	name    string
	url     string
	appID   string
	creds   CredentialSource
	client  *http.Client
	log     zerolog.Logger
	metrics *metrics.Metrics
	guard   *semaphore.Weighted

	mu   sync.Mutex
	last []DeviceRecord
}

// NewPoller creates a Poller.
func NewPoller(cfg PollerConfig) *Poller {
	p := &Poller{
		name:    cfg.Name,
		url:     cfg.URL,
		appID:   cfg.AppID,
		creds:   cfg.Credentials,
		client:  cfg.HTTPClient,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
		guard:   semaphore.NewWeighted(1),
	}
	if p.client == nil {
		p.client = &http.Client{Timeout: DefaultTimeout}
	}
	return p
}

// Poll fetches and decodes the device list.
func (p *Poller) Poll(ctx context.Context) ([]DeviceRecord, error) {
	if !p.guard.TryAcquire(1) {
		p.metrics.PollSkipped(p.name)
		return nil, ErrPollInFlight
	}
	defer p.guard.Release(1)

	start := time.Now()
	records, err := p.poll(ctx)

	kind := "success"
	var perr *PollError
	if errors.As(err, &perr) {
		kind = perr.Kind.String()
	}
	p.metrics.Poll(p.name, kind, time.Since(start).Seconds())

	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.last = records
	p.mu.Unlock()
	return records, nil
}

// Last returns the records of the most recent successful poll.
func (p *Poller) Last() []DeviceRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]DeviceRecord(nil), p.last...)
}

func (p *Poller) poll(ctx context.Context) ([]DeviceRecord, error) {
	cred, err := p.creds.EnsureValid(ctx)
	if err != nil {
		return nil, &PollError{Kind: PollAuth, Err: err}
	}
	if cred.AccessToken == "" {
		return nil, &PollError{Kind: PollAuth, Err: errors.New("empty access token")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, &PollError{Kind: PollNetwork, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/vnd.api+json")
	req.Header.Set("Authorization-Provider", cred.Provider)
	req.Header.Set("X-Api-Key", p.appID)
	req.Header.Set("Authorization", cred.AuthorizationHeader())

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &PollError{Kind: PollNetwork, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &PollError{Kind: PollNetwork, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	p.log.Debug().Int("status", resp.StatusCode).Bytes("body", body).Msg("device list response")

	if resp.StatusCode != http.StatusOK {
		return nil, &PollError{
			Kind:       PollNetwork,
			StatusCode: resp.StatusCode,
			Body:       string(body),
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	return decodeList(body)
}

func decodeList(body []byte) ([]DeviceRecord, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, &PollError{Kind: PollApplication, Err: errors.New("empty response")}
	}

	var doc listResponse
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, &PollError{Kind: PollApplication, Body: string(body), Err: fmt.Errorf("decode device list: %w", err)}
	}
	if len(doc.Errors) > 0 {
		return nil, &PollError{Kind: PollApplication, Body: string(body), Err: describeErrors(doc.Errors)}
	}

	records := make([]DeviceRecord, 0, len(doc.Data))
	for _, d := range doc.Data {
		records = append(records, d.record())
	}
	return records, nil
}

func describeErrors(errs []apiError) error {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		msg := e.Title
		if e.Detail != "" {
			msg += ": " + e.Detail
		}
		if e.Code != "" {
			msg = e.Code + " " + msg
		}
		parts = append(parts, strings.TrimSpace(msg))
	}
	return fmt.Errorf("remote error: %s", strings.Join(parts, "; "))
}
