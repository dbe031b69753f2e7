package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/teclab-at/logic-nodes/internal/mail"
	"github.com/teclab-at/logic-nodes/internal/metrics"
	"github.com/teclab-at/logic-nodes/internal/node"
	"github.com/teclab-at/logic-nodes/internal/status"
	"github.com/teclab-at/logic-nodes/internal/telegram"
	"github.com/teclab-at/logic-nodes/internal/thermostat"
)

type fakeTrigger struct {
	mu    sync.Mutex
	count int
}

func (f *fakeTrigger) Trigger() {
	f.mu.Lock()
	f.count++
	f.mu.Unlock()
}

type fakeMail struct{ got []mail.Message }

func (f *fakeMail) Send(msg mail.Message) string {
	f.got = append(f.got, msg)
	return "job-mail"
}

type fakeChat struct{ got []telegram.Message }

func (f *fakeChat) Send(msg telegram.Message) string {
	f.got = append(f.got, msg)
	return "job-chat"
}

type fakeThermostat struct {
	got []thermostat.Update
	err error
}

func (f *fakeThermostat) Update(u thermostat.Update) (thermostat.Result, error) {
	f.got = append(f.got, u)
	if f.err != nil {
		return thermostat.Result{}, f.err
	}
	return thermostat.Result{Ready: true, Valve: true, Stored: 21.5}, nil
}

type fixture struct {
	ts         *httptest.Server
	tracker    *status.Tracker
	trigger    *fakeTrigger
	mail       *fakeMail
	chat       *fakeChat
	thermostat *fakeThermostat
	metrics    *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := &fixture{
		tracker: status.NewTracker(start, status.Config{
			PollInterval: time.Minute,
			Broker:       "tcp://192.168.1.200:1883",
			HTTPAddr:     ":8080",
		}),
		trigger:    &fakeTrigger{},
		mail:       &fakeMail{},
		chat:       &fakeChat{},
		thermostat: &fakeThermostat{},
		metrics:    metrics.New(),
	}

	reg := prometheus.NewRegistry()
	if err := f.metrics.Register(reg); err != nil {
		t.Fatal(err)
	}

	srv := New(Options{
		Addr:       ":0",
		Tracker:    f.tracker,
		Gatherer:   reg,
		Triggers:   map[string]Triggerer{"mower": f.trigger},
		Mail:       f.mail,
		Telegram:   f.chat,
		Thermostat: f.thermostat,
		Logger:     zerolog.Nop(),
	})
	f.ts = httptest.NewServer(srv.Handler())
	t.Cleanup(f.ts.Close)
	return f
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestJSONEndpoint(t *testing.T) {
	f := newFixture(t)
	mower := node.New(node.Config{Name: "mower"})
	mower.Apply(node.Byte("BatteryCapacity", 77), node.Bool("ActivityMowing", true))
	f.tracker.AddNode(mower)
	f.tracker.SetMQTTConnected(true)

	resp, err := http.Get(f.ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if len(sj.Status.Nodes) != 1 || sj.Status.Nodes[0].Name != "mower" {
		t.Fatalf("nodes: got %+v", sj.Status.Nodes)
	}
	if v := sj.Status.Nodes[0].Outputs["ActivityMowing"].Value; v != true {
		t.Errorf("ActivityMowing: got %v, want true", v)
	}
}

func TestIndexHTML(t *testing.T) {
	f := newFixture(t)
	th := node.New(node.Config{Name: "thermostat"})
	th.Apply(node.Bool("Valve", true))
	f.tracker.AddNode(th)

	for _, path := range []string{"/", "/index.html"} {
		resp, err := http.Get(f.ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != 200 {
			t.Errorf("%s: status %d, want 200", path, resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			t.Errorf("%s: Content-Type %q", path, ct)
		}
		html := string(body)
		for _, want := range []string{"<h2>thermostat</h2>", "Valve", `class="on"`, "tcp://192.168.1.200:1883"} {
			if !strings.Contains(html, want) {
				t.Errorf("%s: body missing %q", path, want)
			}
		}
	}
}

func TestUnknownPath(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.ts.URL + "/nope")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.metrics.PollSkipped("mower")

	resp, err := http.Get(f.ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if !strings.Contains(string(body), `logic_nodes_status_polls_skipped_total{node="mower"} 1`) {
		t.Errorf("metrics output missing skipped poll counter:\n%s", body)
	}
}

func TestTriggerEndpoint(t *testing.T) {
	f := newFixture(t)

	resp := post(t, f.ts.URL+"/nodes/mower/trigger", "")
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status: got %d, want 202", resp.StatusCode)
	}
	if f.trigger.count != 1 {
		t.Errorf("trigger count: got %d, want 1", f.trigger.count)
	}

	resp = post(t, f.ts.URL+"/nodes/garage/trigger", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown node: got %d, want 404", resp.StatusCode)
	}

	before := f.trigger.count
	get, err := http.Get(f.ts.URL + "/nodes/mower/trigger")
	if err != nil {
		t.Fatal(err)
	}
	get.Body.Close()
	if get.StatusCode == http.StatusAccepted {
		t.Error("GET must not trigger a node")
	}
	if f.trigger.count != before {
		t.Errorf("trigger count changed on GET: %d", f.trigger.count)
	}
}

func TestMailEndpoint(t *testing.T) {
	f := newFixture(t)

	resp := post(t, f.ts.URL+"/nodes/mail/send", `{"to":"owner@example.com","subject":"Door","body":"open"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status: got %d, want 202", resp.StatusCode)
	}
	var jr jobResponse
	json.NewDecoder(resp.Body).Decode(&jr)
	if jr.JobID != "job-mail" {
		t.Errorf("job id: got %q", jr.JobID)
	}
	if len(f.mail.got) != 1 || f.mail.got[0].To != "owner@example.com" || f.mail.got[0].Body != "open" {
		t.Errorf("mail: got %+v", f.mail.got)
	}

	resp = post(t, f.ts.URL+"/nodes/mail/send", `{"recipient":"x"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown field: got %d, want 400", resp.StatusCode)
	}
}

func TestTelegramEndpoint(t *testing.T) {
	f := newFixture(t)

	resp := post(t, f.ts.URL+"/nodes/telegram/send", `{"text":"Door open","second":"Garage"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status: got %d, want 202", resp.StatusCode)
	}
	if len(f.chat.got) != 1 || f.chat.got[0].Second != "Garage" {
		t.Errorf("chat: got %+v", f.chat.got)
	}

	// empty body sends the default text
	post(t, f.ts.URL+"/nodes/telegram/send", "")
	if len(f.chat.got) != 2 || f.chat.got[1].Content() != telegram.DefaultText {
		t.Errorf("default message: got %+v", f.chat.got)
	}
}

func TestThermostatEndpoint(t *testing.T) {
	f := newFixture(t)

	resp := post(t, f.ts.URL+"/nodes/thermostat/inputs", `{"set_temp":21.5,"heating":true}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	var tr thermostatResponse
	json.NewDecoder(resp.Body).Decode(&tr)
	if !tr.Ready || !tr.Valve || tr.Stored != 21.5 {
		t.Errorf("response: got %+v", tr)
	}

	u := f.thermostat.got[0]
	if u.SetTemp == nil || *u.SetTemp != 21.5 || u.Heating == nil || !*u.Heating || u.CurTemp != nil {
		t.Errorf("update: got %+v", u)
	}

	f.thermostat.err = errors.New("drive valve: line busy")
	resp = post(t, f.ts.URL+"/nodes/thermostat/inputs", `{"manual":true}`)
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("valve failure: got %d, want 502", resp.StatusCode)
	}
}

func TestDisabledNodes(t *testing.T) {
	srv := New(Options{Tracker: status.NewTracker(time.Now(), status.Config{})})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	for _, path := range []string{"/nodes/mail/send", "/nodes/telegram/send", "/nodes/thermostat/inputs"} {
		resp := post(t, ts.URL+path, "{}")
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s: got %d, want 404", path, resp.StatusCode)
		}
	}

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("/metrics without gatherer: got %d, want 404", resp.StatusCode)
	}
}
