// Package status provides a thread-safe status tracker for the logic-nodes
// daemon. It is read by the HTTP handlers and by the lifecycle events.
package status

import (
	"sort"
	"sync"
	"time"

	"github.com/teclab-at/logic-nodes/internal/node"
)

// Config contains daemon configuration for display.
type Config struct {
	PollInterval time.Duration
	Broker       string
	NATS         string
	HTTPAddr     string
	ConfigFile   string
}

// NodeSource reports the outputs of one node. *node.Context satisfies it.
type NodeSource interface {
	Snapshot() node.Snapshot
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	NATSConnected bool
	Config        Config
	Nodes         []node.Snapshot
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Node returns the snapshot of the named node.
func (s Snapshot) Node(name string) (node.Snapshot, bool) {
	for _, n := range s.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return node.Snapshot{}, false
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu    sync.RWMutex
	snap  Snapshot
	nodes []NodeSource
	now   func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// AddNode registers a node whose outputs appear in snapshots.
func (t *Tracker) AddNode(src NodeSource) {
	t.mu.Lock()
	t.nodes = append(t.nodes, src)
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNATSConnected sets the NATS connection status.
func (t *Tracker) SetNATSConnected(connected bool) {
	t.mu.Lock()
	t.snap.NATSConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state, with nodes
// sorted by name. The Now field is set to the current time.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	nodes := append([]NodeSource(nil), t.nodes...)
	t.mu.RUnlock()

	s.Nodes = make([]node.Snapshot, 0, len(nodes))
	for _, n := range nodes {
		s.Nodes = append(s.Nodes, n.Snapshot())
	}
	sort.Slice(s.Nodes, func(i, j int) bool { return s.Nodes[i].Name < s.Nodes[j].Name })

	s.Now = t.now()
	return s
}
