// Package mqtt publishes node output changes and daemon lifecycle events to
// an MQTT broker.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/teclab-at/logic-nodes/internal/node"
)

// DefaultTopicPrefix roots every topic.
const DefaultTopicPrefix = "logic-nodes"

// OutputTopic is the retained topic of one node output.
func OutputTopic(prefix, nodeName, output string) string {
	return prefix + "/" + nodeName + "/" + output
}

// SystemTopic carries lifecycle events.
func SystemTopic(prefix string) string {
	return prefix + "/system"
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// PublishOutput sends one changed node output.
	// Returns error if publishing fails (should not crash the process).
	PublishOutput(event OutputEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// OutputEvent is a node output that changed.
type OutputEvent struct {
	Node      string
	Name      string
	Value     any
	Timestamp time.Time
}

// OutputEventFrom converts a node output.
func OutputEventFrom(nodeName string, out node.Output) OutputEvent {
	return OutputEvent{Node: nodeName, Name: out.Name, Value: out.Value, Timestamp: out.Time}
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "OFFLINE"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload of an output change.
type Payload struct {
	Output OutputPayload `json:"output"`
}

// OutputPayload contains the output details.
type OutputPayload struct {
	Node      string `json:"node"`
	Name      string `json:"name"`
	Value     any    `json:"value"`
	Timestamp string `json:"timestamp"`
}

// FormatOutputPayload creates the JSON payload for an output change.
func FormatOutputPayload(event OutputEvent) ([]byte, error) {
	payload := Payload{
		Output: OutputPayload{
			Node:      event.Node,
			Name:      event.Name,
			Value:     event.Value,
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events
// that don't carry a full status snapshot (LWT, RECONNECTED).
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// Sink forwards node output changes to a Publisher. Publish failures are
// logged and dropped.
type Sink struct {
	pub Publisher
	log zerolog.Logger
}

// NewSink creates a node.Sink backed by pub.
func NewSink(pub Publisher, log zerolog.Logger) *Sink {
	return &Sink{pub: pub, log: log}
}

// Emit publishes out.
func (s *Sink) Emit(nodeName string, out node.Output) {
	if err := s.pub.PublishOutput(OutputEventFrom(nodeName, out)); err != nil {
		s.log.Warn().Err(err).Str("node", nodeName).Str("output", out.Name).Msg("mqtt publish failed")
	}
}
