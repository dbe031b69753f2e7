package status

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/teclab-at/logic-nodes/internal/node"
)

var (
	start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg   = Config{
		PollInterval: time.Minute,
		Broker:       "tcp://192.168.1.200:1883",
		HTTPAddr:     ":8080",
	}
)

func newTracker(now time.Time) *Tracker {
	tr := NewTracker(start, cfg)
	tr.now = func() time.Time { return now }
	return tr
}

func stampedNode(name string, outs ...node.Output) *node.Context {
	c := node.New(node.Config{Name: name, Now: func() time.Time { return start.Add(time.Minute) }})
	c.Apply(outs...)
	return c
}

func TestSnapshotUptime(t *testing.T) {
	tr := newTracker(start.Add(90 * time.Second))
	snap := tr.Snapshot()

	if snap.Uptime() != 90*time.Second {
		t.Errorf("Uptime: got %v, want 90s", snap.Uptime())
	}
	if snap.Config != cfg {
		t.Errorf("Config: got %+v, want %+v", snap.Config, cfg)
	}
}

func TestSnapshotNodesSorted(t *testing.T) {
	tr := newTracker(start)
	tr.AddNode(stampedNode("thermostat", node.Bool("Valve", true)))
	tr.AddNode(stampedNode("mower", node.Byte("BatteryCapacity", 77)))

	snap := tr.Snapshot()
	if len(snap.Nodes) != 2 {
		t.Fatalf("Nodes: got %d, want 2", len(snap.Nodes))
	}
	if snap.Nodes[0].Name != "mower" || snap.Nodes[1].Name != "thermostat" {
		t.Errorf("order: got %s, %s", snap.Nodes[0].Name, snap.Nodes[1].Name)
	}

	n, ok := snap.Node("mower")
	if !ok || len(n.Outputs) != 1 || n.Outputs[0].Value != uint8(77) {
		t.Errorf("Node(mower): got %+v, %v", n, ok)
	}
	if _, ok := snap.Node("missing"); ok {
		t.Error("Node(missing) should not be found")
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := newTracker(start)
	c := stampedNode("mower", node.Bool("ActivityMowing", true))
	tr.AddNode(c)

	snap := tr.Snapshot()
	c.Apply(node.Bool("ActivityMowing", false))

	if snap.Nodes[0].Outputs[0].Value != true {
		t.Error("snapshot changed after node update")
	}
}

func TestConnectionFlags(t *testing.T) {
	tr := newTracker(start)
	tr.SetMQTTConnected(true)
	tr.SetNATSConnected(true)

	snap := tr.Snapshot()
	if !snap.MQTTConnected || !snap.NATSConnected {
		t.Errorf("connected flags: got mqtt=%v nats=%v", snap.MQTTConnected, snap.NATSConnected)
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := newTracker(start)
	tr.AddNode(stampedNode("mower"))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			tr.SetMQTTConnected(i%2 == 0)
		}(i)
		go func() {
			defer wg.Done()
			_ = tr.Snapshot()
		}()
	}
	wg.Wait()
}

func TestFormatJSON(t *testing.T) {
	tr := newTracker(start.Add(125 * time.Second))
	tr.SetMQTTConnected(true)
	tr.AddNode(stampedNode("mower", node.Byte("BatteryCapacity", 77), node.Bool("ActivityMowing", true)))

	var sj StatusJSON
	if err := json.Unmarshal(FormatJSON(tr.Snapshot()), &sj); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	s := sj.Status
	if s.Event != "" || s.Reason != "" {
		t.Errorf("web JSON must omit event/reason, got %q/%q", s.Event, s.Reason)
	}
	if s.UptimeSeconds != 125 {
		t.Errorf("UptimeSeconds: got %d, want 125", s.UptimeSeconds)
	}
	if s.StartTime != "2026-01-01T00:00:00Z" {
		t.Errorf("StartTime: got %q", s.StartTime)
	}
	if !s.MQTT.Connected || s.MQTT.URL != cfg.Broker {
		t.Errorf("MQTT: got %+v", s.MQTT)
	}
	if s.Config.PollSeconds != 60 {
		t.Errorf("PollSeconds: got %d, want 60", s.Config.PollSeconds)
	}
	if len(s.Nodes) != 1 {
		t.Fatalf("Nodes: got %d, want 1", len(s.Nodes))
	}
	battery := s.Nodes[0].Outputs["BatteryCapacity"]
	if battery.Value != float64(77) {
		t.Errorf("BatteryCapacity: got %v", battery.Value)
	}
	if battery.UpdatedAt != "2026-01-01T00:01:00Z" {
		t.Errorf("UpdatedAt: got %q", battery.UpdatedAt)
	}
}

func TestFormatStatusEvent(t *testing.T) {
	tr := newTracker(start)
	data := FormatStatusEvent(tr.Snapshot(), "SHUTDOWN", "SIGTERM")

	if strings.Contains(string(data), "\n") {
		t.Error("event payload should be compact")
	}

	var sj StatusJSON
	if err := json.Unmarshal(data, &sj); err != nil {
		t.Fatal(err)
	}
	if sj.Status.Event != "SHUTDOWN" || sj.Status.Reason != "SIGTERM" {
		t.Errorf("event/reason: got %q/%q", sj.Status.Event, sj.Status.Reason)
	}
	if sj.Status.Nodes == nil {
		t.Error("nodes should encode as an empty list")
	}
}
