package soft

import (
	"sync"

	"github.com/MrWong99/pranimitra/pkg/audio"
)

var _ audio.Microphone = (*Microphone)(nil)

// Microphone is an [audio.Microphone] fed by [Microphone.Push]. Hardware
// adapters push from their capture callback; tests push directly.
type Microphone struct {
	rate   int
	closer func() error

	mu        sync.RWMutex
	listeners map[uint64]func([]float32)
	next      uint64
	closed    bool
}

// MicOption configures a [Microphone].
type MicOption func(*Microphone)

// WithCloser registers fn to run once when the microphone is closed, e.g. to
// stop the underlying capture device.
func WithCloser(fn func() error) MicOption {
	return func(m *Microphone) {
		m.closer = fn
	}
}

// NewMicrophone creates a microphone delivering samples at sampleRate.
func NewMicrophone(sampleRate int, opts ...MicOption) *Microphone {
	m := &Microphone{
		rate:      sampleRate,
		listeners: make(map[uint64]func([]float32)),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// SampleRate implements [audio.Microphone].
func (m *Microphone) SampleRate() int { return m.rate }

// Listen implements [audio.Microphone].
func (m *Microphone) Listen(fn func(samples []float32)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.next
	m.next++
	m.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// Push delivers samples to every listener on the calling goroutine. Pushes
// after Close are dropped.
func (m *Microphone) Push(samples []float32) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return
	}
	fns := make([]func([]float32), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.RUnlock()

	for _, fn := range fns {
		fn(samples)
	}
}

// Listeners returns the number of registered listeners.
func (m *Microphone) Listeners() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.listeners)
}

// Closed reports whether Close has been called.
func (m *Microphone) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// Close implements [audio.Microphone]. Close is idempotent.
func (m *Microphone) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	clear(m.listeners)
	closer := m.closer
	m.mu.Unlock()

	if closer != nil {
		return closer()
	}
	return nil
}
