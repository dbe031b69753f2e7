package gpio

import "sync"

// FakeValve records valve commands for tests.
type FakeValve struct {
	mu sync.Mutex

	// History holds every value passed to Set.
	History []bool

	// Closed tracks if Close was called
	Closed bool

	// SetError, if set, will be returned by Set()
	SetError error
}

// NewFakeValve creates a closed FakeValve.
func NewFakeValve() *FakeValve {
	return &FakeValve{}
}

// Set records open.
func (f *FakeValve) Set(open bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.History = append(f.History, open)
	return nil
}

// Open reports the last commanded state.
func (f *FakeValve) Open() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.History) == 0 {
		return false
	}
	return f.History[len(f.History)-1]
}

// Close marks the valve as closed.
func (f *FakeValve) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}
