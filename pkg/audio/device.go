// Package audio defines the PCM codec, buffer types and device abstractions
// used by a voice call.
//
// The device abstractions mirror what a call needs from the host:
//
//   - [Backend] grants microphone access and creates device contexts.
//   - [InputContext] runs fixed-size block processing over the microphone at
//     the capture rate.
//   - [OutputContext] owns a monotonic playback clock, schedules [Buffer]s at
//     exact clock positions and routes audio into [Tap]s such as a recorder.
//
// The software implementation lives in audio/soft; audio/native binds it to
// real sound hardware.
package audio

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrPermissionDenied is returned by [Backend.RequestMicrophone] when the
	// host refuses microphone access.
	ErrPermissionDenied = errors.New("audio: microphone permission denied")

	// ErrContextClosed is returned when scheduling on, or attaching to, a
	// context that has already been closed.
	ErrContextClosed = errors.New("audio: device context closed")
)

// Backend is the host audio system a call acquires its devices from.
type Backend interface {
	// RequestMicrophone asks for access to the capture device. The returned
	// Microphone streams until closed.
	RequestMicrophone(ctx context.Context) (Microphone, error)

	// NewInputContext creates a capture-side context running at sampleRate.
	NewInputContext(sampleRate int) (InputContext, error)

	// NewOutputContext creates a playback-side context running at sampleRate.
	NewOutputContext(sampleRate int) (OutputContext, error)
}

// Microphone is a granted capture stream. It fans out normalized mono
// samples to every listener.
type Microphone interface {
	// SampleRate returns the rate of the samples delivered to listeners.
	SampleRate() int

	// Listen registers fn to receive captured samples. fn runs on the
	// capture goroutine and must not block or retain the slice. The
	// returned function removes the listener.
	Listen(fn func(samples []float32)) (cancel func())

	// Close releases the capture device. Close is idempotent.
	Close() error
}

// Node is an attached processing node that can be detached from its source.
type Node interface {
	Disconnect()
}

// Clock reports the position of a device context's monotonic clock.
type Clock interface {
	CurrentTime() time.Duration
}

// InputContext is a device context hosting capture processing.
type InputContext interface {
	Clock
	SampleRate() int

	// Process attaches a block processor to mic. fn is invoked once for each
	// completed block of blockSize mono samples, in capture order, on the
	// capture goroutine. The block slice is owned by fn.
	Process(mic Microphone, blockSize int, fn func(block []float32)) (Node, error)

	// Closed reports whether Close has been called.
	Closed() bool
	Close() error
}

// Tap receives audio routed into a destination, positioned on the output
// clock of the context that routes it.
type Tap interface {
	Write(at time.Duration, samples []float32, sampleRate int)
}

// PlaybackHandle represents one scheduled buffer.
type PlaybackHandle interface {
	// Stop halts playback immediately. Stop after completion is a no-op.
	Stop()

	// Done is closed when the buffer finishes playing or is stopped.
	Done() <-chan struct{}
}

// OutputContext is a device context hosting playback.
type OutputContext interface {
	Clock
	SampleRate() int

	// Schedule plays buf starting exactly at clock position at. The samples
	// are also written to every tap at the same position. onEnded, if not
	// nil, runs once when the buffer finishes or is stopped; it runs on the
	// render goroutine and must not block.
	Schedule(buf *Buffer, at time.Duration, onEnded func(), taps ...Tap) (PlaybackHandle, error)

	// Monitor routes live microphone audio into tap, resampled to the
	// context rate and positioned at the current clock.
	Monitor(mic Microphone, tap Tap) (Node, error)

	// Closed reports whether Close has been called.
	Closed() bool

	// Close stops every scheduled buffer and releases the device.
	Close() error
}
