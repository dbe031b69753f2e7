// Package node holds the per-instance state of a logic node: the stored
// bearer credential and the node's output values, both behind a single lock.
//
// Outputs are written with change detection. A value that equals the cached
// value is not written again and is not forwarded to the Sink, so downstream
// consumers only see real transitions.
package node

import (
	"sort"
	"sync"
	"time"

	"github.com/teclab-at/logic-nodes/internal/auth"
)

// Default output names shared by every node.
const (
	OutputLogicError   = "LogicError"
	OutputErrorMessage = "ErrorMessage"
)

// Output is a single named node output value.
// Value holds one of bool, uint8, float64 or string.
type Output struct {
	Name  string
	Value any
	Time  time.Time
}

// Bool builds a boolean output.
func Bool(name string, v bool) Output { return Output{Name: name, Value: v} }

// Byte builds a byte output (e.g. a battery percentage).
func Byte(name string, v uint8) Output { return Output{Name: name, Value: v} }

// Number builds a floating point output.
func Number(name string, v float64) Output { return Output{Name: name, Value: v} }

// Text builds a string output.
func Text(name string, v string) Output { return Output{Name: name, Value: v} }

// Sink receives output values that changed.
// Implementations must be safe for concurrent use.
type Sink interface {
	Emit(node string, out Output)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(node string, out Output)

// Emit calls f.
func (f SinkFunc) Emit(node string, out Output) { f(node, out) }

// MultiSink forwards every change to each sink in order.
type MultiSink []Sink

// Emit forwards out to every non-nil sink.
func (m MultiSink) Emit(node string, out Output) {
	for _, s := range m {
		if s != nil {
			s.Emit(node, out)
		}
	}
}

// Config configures a Context.
type Config struct {
	// Name identifies the node in sinks, logs and the status page.
	Name string
	// ErrorOutput is the boolean error output. Defaults to OutputLogicError.
	ErrorOutput string
	// MessageOutput, if set, carries the human readable error text.
	MessageOutput string
	// Sink receives changed outputs. May be nil.
	Sink Sink
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Context is the node-scoped state shared between the host trigger path
// and the worker goroutines. One mutex guards the credential and all
// output values; critical sections never perform I/O.
type Context struct {
	name          string
	errorOutput   string
	messageOutput string
	sink          Sink
	now           func() time.Time

	mu     sync.Mutex
	cred   auth.Credential
	values map[string]Output

	// emitMu is taken before mu and held across sink delivery so sinks see
	// changes in cache write order.
	emitMu sync.Mutex
}

// Snapshot is a point-in-time copy of a node's outputs, sorted by name.
type Snapshot struct {
	Name    string
	Outputs []Output
}

// New creates a node context.
func New(cfg Config) *Context {
	c := &Context{
		name:          cfg.Name,
		errorOutput:   cfg.ErrorOutput,
		messageOutput: cfg.MessageOutput,
		sink:          cfg.Sink,
		now:           cfg.Now,
		values:        make(map[string]Output),
	}
	if c.errorOutput == "" {
		c.errorOutput = OutputLogicError
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Name returns the node name.
func (c *Context) Name() string {
	return c.name
}

// Get returns the stored credential.
func (c *Context) Get() auth.Credential {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cred
}

// Set replaces the stored credential.
func (c *Context) Set(cred auth.Credential) {
	c.mu.Lock()
	c.cred = cred
	c.mu.Unlock()
}

// Clear drops the access and refresh tokens together.
func (c *Context) Clear() {
	c.mu.Lock()
	c.cred = c.cred.Cleared()
	c.mu.Unlock()
}

// Apply writes the given outputs, skipping values equal to the cached ones.
// Changed outputs are returned and forwarded to the sink after the state
// lock is released. Concurrent Apply calls reach the sink in the order their
// values were cached.
func (c *Context) Apply(outs ...Output) []Output {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	now := c.now()

	var changed []Output
	c.mu.Lock()
	for _, o := range outs {
		if cur, ok := c.values[o.Name]; ok && cur.Value == o.Value {
			continue
		}
		o.Time = now
		c.values[o.Name] = o
		changed = append(changed, o)
	}
	c.mu.Unlock()

	if c.sink != nil {
		for _, o := range changed {
			c.sink.Emit(c.name, o)
		}
	}
	return changed
}

// Value returns the cached value of an output.
func (c *Context) Value(name string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.values[name]
	return o.Value, ok
}

// Bool returns a boolean output. ok is false when the output is unset.
func (c *Context) Bool(name string) (v bool, ok bool) {
	raw, ok := c.Value(name)
	if !ok {
		return false, false
	}
	v, ok = raw.(bool)
	return v, ok
}

// SignalError raises the error output and records msg on the message output.
func (c *Context) SignalError(msg string) {
	outs := []Output{Bool(c.errorOutput, true)}
	if c.messageOutput != "" {
		outs = append(outs, Text(c.messageOutput, msg))
	}
	c.Apply(outs...)
}

// ClearError lowers the error output and empties the message output.
func (c *Context) ClearError() {
	outs := []Output{Bool(c.errorOutput, false)}
	if c.messageOutput != "" {
		outs = append(outs, Text(c.messageOutput, ""))
	}
	c.Apply(outs...)
}

// Snapshot returns a copy of all output values.
func (c *Context) Snapshot() Snapshot {
	c.mu.Lock()
	outs := make([]Output, 0, len(c.values))
	for _, o := range c.values {
		outs = append(outs, o)
	}
	c.mu.Unlock()

	sort.Slice(outs, func(i, j int) bool { return outs[i].Name < outs[j].Name })
	return Snapshot{Name: c.name, Outputs: outs}
}
