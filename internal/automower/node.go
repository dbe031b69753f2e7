package automower

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/teclab-at/logic-nodes/internal/auth"
	"github.com/teclab-at/logic-nodes/internal/metrics"
	"github.com/teclab-at/logic-nodes/internal/node"
)

// Default endpoints of the Husqvarna Automower Connect API.
const (
	DefaultAuthURL   = "https://api.authentication.husqvarnagroup.dev/v1/oauth2/token"
	DefaultMowersURL = "https://api.amc.husqvarna.dev/v1/mowers"
)

// NodeConfig configures a mower status node.
type NodeConfig struct {
	Name      string
	AppID     string
	Username  string
	Password  string
	MowerName string
	AuthURL   string
	MowersURL string
	// Timeout bounds each network call. Defaults to DefaultTimeout.
	Timeout time.Duration
	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
	Sink       node.Sink
	Now        func() time.Time
	Logger     zerolog.Logger
	Metrics    *metrics.Metrics
}

// Node runs the broker, poller and projector pipeline for one mower.
type Node struct {
	state  *node.Context
	broker *auth.Broker
	poller *Poller
	target string
	log    zerolog.Logger

	wg sync.WaitGroup
}

// NewNode wires a mower node. The node context doubles as the credential
// store so credential and outputs share one lock.
func NewNode(cfg NodeConfig) *Node {
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.MowersURL == "" {
		cfg.MowersURL = DefaultMowersURL
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	state := node.New(node.Config{
		Name: cfg.Name,
		Sink: cfg.Sink,
		Now:  cfg.Now,
	})

	var recorder auth.Recorder
	if cfg.Metrics != nil {
		recorder = cfg.Metrics
	}
	broker := auth.NewBroker(auth.Config{
		TokenURL:   cfg.AuthURL,
		ClientID:   cfg.AppID,
		Username:   cfg.Username,
		Password:   cfg.Password,
		Store:      state,
		HTTPClient: client,
		Now:        cfg.Now,
		Logger:     cfg.Logger,
		Metrics:    recorder,
	})

	return &Node{
		state:  state,
		broker: broker,
		poller: NewPoller(PollerConfig{
			Name:        cfg.Name,
			URL:         cfg.MowersURL,
			AppID:       cfg.AppID,
			Credentials: broker,
			HTTPClient:  client,
			Logger:      cfg.Logger,
			Metrics:     cfg.Metrics,
		}),
		target: cfg.MowerName,
		log:    cfg.Logger,
	}
}

// State returns the node context.
func (n *Node) State() *node.Context {
	return n.state
}

// Trigger starts a poll on a worker goroutine and returns immediately.
// A trigger while a poll is running is dropped.
func (n *Node) Trigger() {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.Run(context.Background())
	}()
}

// Wait blocks until all triggered polls have finished.
func (n *Node) Wait() {
	n.wg.Wait()
}

// Run executes one poll and projection synchronously. Errors are recorded
// on the node outputs and returned for logging.
func (n *Node) Run(ctx context.Context) error {
	records, err := n.poller.Poll(ctx)
	if errors.Is(err, ErrPollInFlight) {
		n.log.Debug().Msg("poll already in progress, trigger dropped")
		return err
	}
	if err != nil {
		ev := n.log.Error().Err(err)
		var perr *PollError
		if errors.As(err, &perr) && perr.Body != "" {
			ev = ev.Str("body", perr.Body)
		}
		ev.Msg("status poll failed")
		n.state.SignalError(err.Error())
		return err
	}

	res := Project(n.state, records, n.target)
	if !res.Found {
		n.log.Error().Str("mower", n.target).Int("devices", len(records)).Msg("mower name not found")
		return res.Err
	}

	n.state.Apply(node.Text(OutputMowerID, res.Device.ID))
	n.log.Debug().
		Str("mower", n.target).
		Str("activity", res.Device.Activity.String()).
		Str("state", res.Device.State.String()).
		Uint8("battery", res.Device.BatteryPercent).
		Int("changed", len(res.Changed)).
		Msg("mower status updated")
	return nil
}
