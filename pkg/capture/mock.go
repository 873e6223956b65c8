package capture

import (
	"context"
	"sync"
	"time"
)

// MockDevice is a scripted Device for tests. Frames are served in the order
// queued; an exhausted queue blocks until the context or timeout expires.
type MockDevice struct {
	mu       sync.Mutex
	frames   []Frame
	armed    bool
	closed   bool
	seq      uint64
	armErr   error
	capErr   error
	strobes  []StrobeCall
	released chan struct{}
}

// StrobeCall records one FireStrobe invocation.
type StrobeCall struct {
	Pulses   int
	Interval time.Duration
}

// NewMockDevice creates an empty scripted device.
func NewMockDevice() *MockDevice {
	return &MockDevice{released: make(chan struct{})}
}

// QueueFrame appends a frame to the script.
func (m *MockDevice) QueueFrame(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.frames = append(m.frames, Frame{Data: data, Seq: m.seq, CapturedAt: time.Now()})
}

// FailArm makes subsequent Arm calls return err.
func (m *MockDevice) FailArm(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armErr = err
}

// FailCapture makes subsequent Capture calls return err.
func (m *MockDevice) FailCapture(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.capErr = err
}

func (m *MockDevice) Arm() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.armErr != nil {
		return m.armErr
	}
	m.armed = true
	return nil
}

func (m *MockDevice) Disarm() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armed = false
	return nil
}

func (m *MockDevice) Capture(ctx context.Context, timeout time.Duration) (Frame, error) {
	deadline := time.After(timeout)
	tick := time.NewTicker(time.Millisecond)
	defer tick.Stop()
	for {
		m.mu.Lock()
		if m.capErr != nil {
			err := m.capErr
			m.mu.Unlock()
			return Frame{}, err
		}
		if len(m.frames) > 0 {
			f := m.frames[0]
			m.frames = m.frames[1:]
			m.mu.Unlock()
			return f, nil
		}
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case <-deadline:
			return Frame{}, ErrTimeout
		case <-tick.C:
		}
	}
}

func (m *MockDevice) FireStrobe(pulses int, interval time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strobes = append(m.strobes, StrobeCall{Pulses: pulses, Interval: interval})
	return nil
}

// StrobeCalls returns the recorded FireStrobe invocations.
func (m *MockDevice) StrobeCalls() []StrobeCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StrobeCall, len(m.strobes))
	copy(out, m.strobes)
	return out
}

// Armed reports the current armed state.
func (m *MockDevice) Armed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.armed
}

// Closed reports whether Close was called.
func (m *MockDevice) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockDevice) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.released)
	}
	return nil
}

// Released is closed when the device has been closed. Lets tests wait for
// shutdown to release the hardware.
func (m *MockDevice) Released() <-chan struct{} { return m.released }
