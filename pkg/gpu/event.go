package gpu

import (
	"fmt"
	"sync"
)

// Event marks a point in a stream's work queue. Query polls completion
// without blocking; Synchronize waits. Events are reusable: Record
// resets the previous state.
type Event struct {
	dev *Device

	mu       sync.Mutex
	recorded bool
	signaled bool
	wait     chan struct{}
}

// NewEvent creates an event on d.
func (d *Device) NewEvent() (*Event, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	return &Event{dev: d}, nil
}

// Record enqueues a completion marker on s. All work issued to s before
// Record is observed by a later Query/Synchronize of the event.
func (e *Event) Record(s *Stream) error {
	if s.Capturing() {
		return fmt.Errorf("gpu: event record inside capture")
	}
	e.mu.Lock()
	e.recorded = true
	e.signaled = false
	ch := make(chan struct{})
	e.wait = ch
	e.mu.Unlock()

	return s.launch("event-record", func() error {
		e.mu.Lock()
		// A newer Record supersedes this marker.
		if e.wait == ch {
			e.signaled = true
		}
		e.mu.Unlock()
		close(ch)
		return nil
	})
}

// Query reports whether the most recent Record point has completed. It
// never blocks. Querying a never-recorded event reports true, matching
// the semantics of an idle marker.
func (e *Event) Query() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.recorded {
		return true, nil
	}
	return e.signaled, nil
}

// Synchronize blocks until the most recent Record point completes.
func (e *Event) Synchronize() error {
	e.mu.Lock()
	if !e.recorded {
		e.mu.Unlock()
		return nil
	}
	ch := e.wait
	e.mu.Unlock()
	<-ch
	return nil
}
