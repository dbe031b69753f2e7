package node

import (
	"sync"
	"testing"
	"time"

	"github.com/teclab-at/logic-nodes/internal/auth"
)

// recordingSink records emitted outputs. Safe for concurrent use.
type recordingSink struct {
	mu  sync.Mutex
	got []Output
}

func (r *recordingSink) Emit(_ string, out Output) {
	r.mu.Lock()
	r.got = append(r.got, out)
	r.mu.Unlock()
}

func (r *recordingSink) last(name string) (Output, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.got) - 1; i >= 0; i-- {
		if r.got[i].Name == name {
			return r.got[i], true
		}
	}
	return Output{}, false
}

func TestApplyOnlyChanged(t *testing.T) {
	sink := &recordingSink{}
	c := New(Config{Name: "mower", Sink: sink})

	changed := c.Apply(Byte("BatteryCapacity", 80), Bool("ActivityMowing", true))
	if len(changed) != 2 {
		t.Fatalf("first write: got %d changes, want 2", len(changed))
	}

	changed = c.Apply(Byte("BatteryCapacity", 80), Bool("ActivityMowing", false))
	if len(changed) != 1 || changed[0].Name != "ActivityMowing" {
		t.Errorf("second write: got %+v, want only ActivityMowing", changed)
	}
	if len(sink.got) != 3 {
		t.Errorf("sink: got %d emissions, want 3", len(sink.got))
	}
}

func TestErrorOutputs(t *testing.T) {
	sink := &recordingSink{}
	c := New(Config{Name: "mail", ErrorOutput: "ErrorStatus", MessageOutput: OutputErrorMessage, Sink: sink})

	c.SignalError("dial tcp: connection refused")
	if v, ok := c.Bool("ErrorStatus"); !ok || !v {
		t.Errorf("ErrorStatus: got %v (set=%v), want true", v, ok)
	}
	if v, _ := c.Value(OutputErrorMessage); v != "dial tcp: connection refused" {
		t.Errorf("ErrorMessage: got %v", v)
	}

	c.ClearError()
	if v, _ := c.Bool("ErrorStatus"); v {
		t.Error("ErrorStatus should be cleared")
	}
	if v, _ := c.Value(OutputErrorMessage); v != "" {
		t.Errorf("ErrorMessage: got %q, want empty", v)
	}
	if _, ok := c.Value(OutputLogicError); ok {
		t.Error("default LogicError must not be written when ErrorOutput is overridden")
	}
}

func TestCredentialStore(t *testing.T) {
	c := New(Config{Name: "mower"})
	c.Set(auth.Credential{AccessToken: "a", RefreshToken: "r", ExpiresIn: 3600, IssuedAt: time.Now()})

	if got := c.Get(); got.AccessToken != "a" || got.RefreshToken != "r" {
		t.Errorf("Get: got %+v", got)
	}
	c.Clear()
	if got := c.Get(); got.AccessToken != "" || got.RefreshToken != "" {
		t.Errorf("after Clear: got %+v", got)
	}
}

func TestSnapshotSorted(t *testing.T) {
	c := New(Config{Name: "thermostat"})
	c.Apply(Bool("Valve", true), Number("StoTemp", 21), Bool("LogicError", false))

	snap := c.Snapshot()
	if snap.Name != "thermostat" {
		t.Errorf("name: got %q", snap.Name)
	}
	want := []string{"LogicError", "StoTemp", "Valve"}
	if len(snap.Outputs) != len(want) {
		t.Fatalf("outputs: got %d, want %d", len(snap.Outputs), len(want))
	}
	for i, name := range want {
		if snap.Outputs[i].Name != name {
			t.Errorf("output %d: got %s, want %s", i, snap.Outputs[i].Name, name)
		}
	}
}

// blockingSink holds the first emission until release is closed.
type blockingSink struct {
	recordingSink
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSink) Emit(nodeName string, out Output) {
	first := false
	b.once.Do(func() { first = true })
	if first {
		close(b.entered)
		<-b.release
	}
	b.recordingSink.Emit(nodeName, out)
}

func TestConcurrentApplyKeepsSinkOrder(t *testing.T) {
	sink := &blockingSink{entered: make(chan struct{}), release: make(chan struct{})}
	c := New(Config{Name: "telegram", MessageOutput: OutputErrorMessage, Sink: sink})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.SignalError("HTTP 502")
	}()
	<-sink.entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.ClearError()
	}()

	// Give the second writer time to run ahead of the blocked sink.
	time.Sleep(20 * time.Millisecond)
	close(sink.release)
	wg.Wait()

	cached, _ := c.Bool(OutputLogicError)
	emitted, ok := sink.last(OutputLogicError)
	if !ok {
		t.Fatal("LogicError never emitted")
	}
	if emitted.Value != cached {
		t.Errorf("last emitted LogicError=%v, cached=%v", emitted.Value, cached)
	}
	if cached {
		t.Error("ClearError ran last, LogicError should be false")
	}

	msg, _ := sink.last(OutputErrorMessage)
	if v, _ := c.Value(OutputErrorMessage); msg.Value != v {
		t.Errorf("last emitted ErrorMessage=%v, cached=%v", msg.Value, v)
	}
}
