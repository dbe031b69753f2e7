// Package natspub mirrors node output changes and lifecycle events onto
// NATS subjects.
package natspub

import (
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/teclab-at/logic-nodes/internal/mqtt"
	"github.com/teclab-at/logic-nodes/internal/node"
)

// DefaultSubjectPrefix roots every subject.
const DefaultSubjectPrefix = "logic-nodes"

// Options configures a Publisher.
type Options struct {
	URL           string
	Name          string
	SubjectPrefix string
	Logger        zerolog.Logger
}

// conn is the subset of *nats.Conn used here.
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
	IsConnected() bool
}

// Publisher publishes events as JSON using the same payloads as the MQTT
// publisher. Core NATS publishes are fire-and-forget; the client buffers
// while reconnecting.
type Publisher struct {
	nc     conn
	prefix string
	log    zerolog.Logger
}

// Connect dials the NATS server.
func Connect(o Options) (*Publisher, error) {
	if o.Name == "" {
		o.Name = "logic-nodes"
	}
	log := o.Logger

	nc, err := nats.Connect(o.URL,
		nats.Name(o.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return newPublisher(nc, o.SubjectPrefix, log), nil
}

func newPublisher(nc conn, prefix string, log zerolog.Logger) *Publisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Publisher{nc: nc, prefix: prefix, log: log}
}

// OutputSubject is the subject of one node output.
func OutputSubject(prefix, nodeName, output string) string {
	return prefix + "." + token(nodeName) + "." + token(output)
}

// SystemSubject carries lifecycle events.
func SystemSubject(prefix string) string {
	return prefix + ".system"
}

// token makes s usable as a single subject token.
func token(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}

// PublishOutput sends one changed output.
func (p *Publisher) PublishOutput(event mqtt.OutputEvent) error {
	payload, err := mqtt.FormatOutputPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	subject := OutputSubject(p.prefix, event.Node, event.Name)
	if err := p.nc.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// PublishSystem sends a lifecycle event.
func (p *Publisher) PublishSystem(event mqtt.SystemEvent) error {
	payload, err := mqtt.FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	if err := p.nc.Publish(SystemSubject(p.prefix), payload); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}
	return nil
}

// IsConnected reports whether the server connection is up.
func (p *Publisher) IsConnected() bool {
	return p.nc.IsConnected()
}

// Emit implements node.Sink. Publish failures are logged and dropped.
func (p *Publisher) Emit(nodeName string, out node.Output) {
	if err := p.PublishOutput(mqtt.OutputEventFrom(nodeName, out)); err != nil {
		p.log.Warn().Err(err).Str("node", nodeName).Str("output", out.Name).Msg("nats publish failed")
	}
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() error {
	return p.nc.Drain()
}
