package gpu

import (
	"errors"
	"fmt"
	"sync"
)

// ErrCaptureUnsupported is returned by BeginCapture when the device does
// not support graph capture. Callers treat it as a signal to dispatch
// directly instead.
var ErrCaptureUnsupported = errors.New("gpu: graph capture unsupported on this device")

type op struct {
	name string
	fn   func() error
}

// Stream is an in-order asynchronous work queue. Operations launched on
// a stream return immediately; Synchronize is the blocking point. A
// stream is owned by one issuing goroutine; the completion side runs on
// the stream's own executor goroutine.
type Stream struct {
	dev *Device

	mu        sync.Mutex
	err       error // sticky, reported at sync points
	capturing bool
	capMode   CaptureMode
	captured  []op
	closed    bool

	ops chan streamWork
	wg  sync.WaitGroup
}

type streamWork struct {
	op   op
	done chan struct{} // non-nil for sync markers
}

// NewStream creates a non-blocking stream on d.
func (d *Device) NewStream() (*Stream, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	s := &Stream{
		dev: d,
		ops: make(chan streamWork, 256),
	}
	s.wg.Add(1)
	go s.run()
	return s, nil
}

func (s *Stream) run() {
	defer s.wg.Done()
	for w := range s.ops {
		if w.op.fn != nil {
			if err := w.op.fn(); err != nil {
				s.mu.Lock()
				if s.err == nil {
					s.err = fmt.Errorf("gpu: %s: %w", w.op.name, err)
				}
				s.mu.Unlock()
			}
		}
		if w.done != nil {
			close(w.done)
		}
	}
}

// launch enqueues one operation. Under capture, the operation is
// recorded instead of executed.
func (s *Stream) launch(name string, fn func() error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("gpu: launch %s on closed stream", name)
	}
	if s.capturing {
		s.captured = append(s.captured, op{name: name, fn: fn})
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	s.ops <- streamWork{op: op{name: name, fn: fn}}
	return nil
}

// Capturing reports whether the stream is in capture mode.
func (s *Stream) Capturing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capturing
}

// Synchronize blocks until all previously issued work has executed and
// returns the first asynchronous error observed on this stream, if any.
func (s *Stream) Synchronize() error {
	s.mu.Lock()
	if s.closed {
		err := s.err
		s.mu.Unlock()
		return err
	}
	if s.capturing {
		s.mu.Unlock()
		return fmt.Errorf("gpu: synchronize on capturing stream")
	}
	s.mu.Unlock()

	done := make(chan struct{})
	s.ops <- streamWork{done: done}
	<-done

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close drains the stream and stops its executor. Pending work runs to
// completion first.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	if s.capturing {
		// Abandoning a capture discards recorded work.
		s.capturing = false
		s.captured = nil
		if s.capMode == CaptureModeGlobal {
			s.dev.capturing.Add(-1)
		}
	}
	s.closed = true
	s.mu.Unlock()

	close(s.ops)
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
