// Package mock provides an in-memory [audio.Backend] for unit tests.
//
// The backend hands out real software contexts from audio/soft so tests can
// drive the playback clock with Render and feed the microphone with Push.
// Exported fields control failures; recorded fields expose what was created.
//
// Typical usage:
//
//	backend := &mock.Backend{}
//	mic, _ := backend.RequestMicrophone(ctx)
//	backend.Microphone().Push(make([]float32, 4096))
//	backend.Output().Render(make([]float32, 2400))
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/pranimitra/pkg/audio"
	"github.com/MrWong99/pranimitra/pkg/audio/soft"
)

var _ audio.Backend = (*Backend)(nil)

// Backend is a mock implementation of [audio.Backend].
// Set the exported error fields before use; inspect the recorded fields after.
type Backend struct {
	mu sync.Mutex

	// MicrophoneErr is returned by RequestMicrophone when non-nil.
	MicrophoneErr error

	// InputErr is returned by NewInputContext when non-nil.
	InputErr error

	// OutputErr is returned by NewOutputContext when non-nil.
	OutputErr error

	// MicrophoneRate is the sample rate of granted microphones. Defaults to
	// [audio.CaptureSampleRate].
	MicrophoneRate int

	// Microphones records every granted microphone in order.
	Microphones []*soft.Microphone

	// Inputs records every created input context in order.
	Inputs []*soft.InputContext

	// Outputs records every created output context in order.
	Outputs []*soft.OutputContext

	// CallCountRequestMicrophone records how many times RequestMicrophone was called.
	CallCountRequestMicrophone int
}

// RequestMicrophone implements [audio.Backend].
func (b *Backend) RequestMicrophone(ctx context.Context) (audio.Microphone, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.CallCountRequestMicrophone++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.MicrophoneErr != nil {
		return nil, b.MicrophoneErr
	}
	rate := b.MicrophoneRate
	if rate == 0 {
		rate = audio.CaptureSampleRate
	}
	mic := soft.NewMicrophone(rate)
	b.Microphones = append(b.Microphones, mic)
	return mic, nil
}

// NewInputContext implements [audio.Backend].
func (b *Backend) NewInputContext(sampleRate int) (audio.InputContext, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.InputErr != nil {
		return nil, b.InputErr
	}
	c, err := soft.NewInputContext(sampleRate)
	if err != nil {
		return nil, err
	}
	b.Inputs = append(b.Inputs, c)
	return c, nil
}

// NewOutputContext implements [audio.Backend].
func (b *Backend) NewOutputContext(sampleRate int) (audio.OutputContext, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.OutputErr != nil {
		return nil, b.OutputErr
	}
	c, err := soft.NewOutputContext(sampleRate)
	if err != nil {
		return nil, err
	}
	b.Outputs = append(b.Outputs, c)
	return c, nil
}

// Microphone returns the most recently granted microphone, or nil.
func (b *Backend) Microphone() *soft.Microphone {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.Microphones) == 0 {
		return nil
	}
	return b.Microphones[len(b.Microphones)-1]
}

// Input returns the most recently created input context, or nil.
func (b *Backend) Input() *soft.InputContext {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.Inputs) == 0 {
		return nil
	}
	return b.Inputs[len(b.Inputs)-1]
}

// Output returns the most recently created output context, or nil.
func (b *Backend) Output() *soft.OutputContext {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.Outputs) == 0 {
		return nil
	}
	return b.Outputs[len(b.Outputs)-1]
}
