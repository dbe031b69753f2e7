package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string     `json:"event,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	MQTT          LinkStatus `json:"mqtt"`
	NATS          LinkStatus `json:"nats"`
	Nodes         []NodeJSON `json:"nodes"`
	Config        ConfigJSON `json:"config"`
}

// LinkStatus reports a broker connection.
type LinkStatus struct {
	Connected bool   `json:"connected"`
	URL       string `json:"url,omitempty"`
}

// NodeJSON lists one node's outputs.
type NodeJSON struct {
	Name    string                `json:"name"`
	Outputs map[string]OutputJSON `json:"outputs"`
}

// OutputJSON is one output value.
type OutputJSON struct {
	Value     any    `json:"value"`
	UpdatedAt string `json:"updated_at"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollSeconds int64  `json:"poll_seconds"`
	Broker      string `json:"broker,omitempty"`
	NATS        string `json:"nats,omitempty"`
	HTTPAddr    string `json:"http_addr"`
	ConfigFile  string `json:"config_file,omitempty"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          LinkStatus{Connected: snap.MQTTConnected, URL: snap.Config.Broker},
		NATS:          LinkStatus{Connected: snap.NATSConnected, URL: snap.Config.NATS},
		Nodes:         make([]NodeJSON, 0, len(snap.Nodes)),
		Config: ConfigJSON{
			PollSeconds: int64(snap.Config.PollInterval / time.Second),
			Broker:      snap.Config.Broker,
			NATS:        snap.Config.NATS,
			HTTPAddr:    snap.Config.HTTPAddr,
			ConfigFile:  snap.Config.ConfigFile,
		},
	}

	for _, n := range snap.Nodes {
		nj := NodeJSON{Name: n.Name, Outputs: make(map[string]OutputJSON, len(n.Outputs))}
		for _, o := range n.Outputs {
			nj.Outputs[o.Name] = OutputJSON{Value: o.Value, UpdatedAt: o.Time.UTC().Format(time.RFC3339)}
		}
		inner.Nodes = append(inner.Nodes, nj)
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for a system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
