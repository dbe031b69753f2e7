package mail

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/teclab-at/logic-nodes/internal/delivery"
	"github.com/teclab-at/logic-nodes/internal/metrics"
	"github.com/teclab-at/logic-nodes/internal/node"
)

// Output names of the mail node.
const (
	OutputErrorStatus  = "ErrorStatus"
	OutputErrorMessage = "ErrorMessage"
)

// NodeConfig configures a mail node.
type NodeConfig struct {
	Name       string
	SMTP       Config
	Retries    int
	RetryDelay time.Duration
	// Transport overrides the SMTP transport.
	Transport delivery.Transport[Message]
	Sink      node.Sink
	Sleep     delivery.SleepFunc
	Logger    zerolog.Logger
	Metrics   *metrics.Metrics
}

// Node sends one e-mail per trigger. Every trigger runs its own job.
type Node struct {
	state      *node.Context
	dispatcher *delivery.Dispatcher[Message]
	log        zerolog.Logger
}

// NewNode creates a mail node.
func NewNode(cfg NodeConfig) *Node {
	if cfg.Retries <= 0 {
		cfg.Retries = delivery.DefaultMaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = delivery.DefaultRetryDelay
	}
	tr := cfg.Transport
	if tr == nil {
		tr = NewTransport(cfg.SMTP)
	}

	state := node.New(node.Config{
		Name:          cfg.Name,
		ErrorOutput:   OutputErrorStatus,
		MessageOutput: OutputErrorMessage,
		Sink:          cfg.Sink,
	})

	var rec delivery.Recorder
	if cfg.Metrics != nil {
		rec = cfg.Metrics
	}
	sender := delivery.NewSender(delivery.Config[Message]{
		Name:      cfg.Name,
		Transport: tr,
		Outputs:   state,
		Sleep:     cfg.Sleep,
		Logger:    cfg.Logger,
		Metrics:   rec,
	})

	return &Node{
		state:      state,
		dispatcher: delivery.NewDispatcher(sender, cfg.Retries, cfg.RetryDelay),
		log:        cfg.Logger,
	}
}

// State returns the node context.
func (n *Node) State() *node.Context {
	return n.state
}

// Send queues msg for delivery and returns the job ID.
func (n *Node) Send(msg Message) string {
	id := n.dispatcher.Submit(context.Background(), msg)
	n.log.Debug().Str("job", id).Str("to", msg.To).Msg("mail queued")
	return id
}

// Last returns the outcome of the most recently finished job.
func (n *Node) Last() (delivery.Outcome, bool) {
	return n.dispatcher.Last()
}

// Wait blocks until all queued jobs have finished.
func (n *Node) Wait() {
	n.dispatcher.Wait()
}
