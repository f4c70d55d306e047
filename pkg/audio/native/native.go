// Package native binds the software device contexts from audio/soft to the
// host sound hardware. Capture runs on a malgo (miniaudio) device that pushes
// into a [soft.Microphone]; playback streams an output context's render
// clock into an oto player.
//
// Only one oto context may exist per process, so every output context of a
// [Backend] must use the same sample rate.
package native

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/gen2brain/malgo"

	"github.com/MrWong99/pranimitra/pkg/audio"
	"github.com/MrWong99/pranimitra/pkg/audio/soft"
)

var _ audio.Backend = (*Backend)(nil)

const (
	// capturePeriod is the malgo capture callback period.
	capturePeriod = 20

	// playerBuffer is how much rendered audio oto keeps queued.
	playerBuffer = 100 * time.Millisecond
)

// Backend is an [audio.Backend] on the default capture and playback devices.
type Backend struct {
	mctx *malgo.AllocatedContext

	mu      sync.Mutex
	oto     *oto.Context
	otoRate int
}

// New initialises the capture backend. Call [Backend.Close] when done.
func New() (*Backend, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{
		ThreadPriority: malgo.ThreadPriorityRealtime,
	}, func(msg string) {
		slog.Debug("malgo", "msg", strings.TrimSpace(msg))
	})
	if err != nil {
		return nil, fmt.Errorf("native: init capture context: %w", err)
	}
	return &Backend{mctx: mctx}, nil
}

// RequestMicrophone opens the default capture device as mono float32 at
// [audio.CaptureSampleRate]. Access refused by the host is reported as
// [audio.ErrPermissionDenied].
func (b *Backend) RequestMicrophone(ctx context.Context) (audio.Microphone, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = 1
	cfg.SampleRate = audio.CaptureSampleRate
	cfg.PeriodSizeInMilliseconds = capturePeriod

	var device *malgo.Device
	mic := soft.NewMicrophone(audio.CaptureSampleRate, soft.WithCloser(func() error {
		device.Uninit()
		return nil
	}))

	device, err := malgo.InitDevice(b.mctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, in []byte, frames uint32) {
			mic.Push(decodeFloat32(in, int(frames)))
		},
	})
	if err != nil {
		return nil, classify(err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, classify(err)
	}
	return mic, nil
}

// NewInputContext implements [audio.Backend].
func (b *Backend) NewInputContext(sampleRate int) (audio.InputContext, error) {
	return soft.NewInputContext(sampleRate)
}

// NewOutputContext creates a software output context and starts a player
// that pulls its rendered clock.
func (b *Backend) NewOutputContext(sampleRate int) (audio.OutputContext, error) {
	octx, err := b.speaker(sampleRate)
	if err != nil {
		return nil, err
	}
	out, err := soft.NewOutputContext(sampleRate)
	if err != nil {
		return nil, err
	}
	player := octx.NewPlayer(out.Reader())
	player.Play()
	return &outputContext{OutputContext: out, player: player}, nil
}

func (b *Backend) speaker(rate int) (*oto.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.oto != nil {
		if b.otoRate != rate {
			return nil, fmt.Errorf("native: speaker already runs at %d Hz, cannot open at %d Hz", b.otoRate, rate)
		}
		return b.oto, nil
	}
	octx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   rate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
		BufferSize:   playerBuffer,
	})
	if err != nil {
		return nil, fmt.Errorf("native: init speaker: %w", err)
	}
	<-ready
	b.oto, b.otoRate = octx, rate
	return octx, nil
}

// Close releases the capture backend. Open microphones must be closed first.
func (b *Backend) Close() error {
	err := b.mctx.Uninit()
	b.mctx.Free()
	return err
}

// outputContext stops the player before closing the software context.
type outputContext struct {
	*soft.OutputContext
	player *oto.Player
}

func (c *outputContext) Close() error {
	if n := c.Scheduled(); n > 0 {
		slog.Debug("native: discarding unplayed buffers", "buffers", n)
	}
	c.player.Pause()
	return errors.Join(c.player.Close(), c.OutputContext.Close())
}

// classify maps host refusals to [audio.ErrPermissionDenied]. miniaudio only
// reports them through its result text.
func classify(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "access denied") || strings.Contains(msg, "permission") {
		return fmt.Errorf("%w: %v", audio.ErrPermissionDenied, err)
	}
	return fmt.Errorf("native: open capture device: %w", err)
}
