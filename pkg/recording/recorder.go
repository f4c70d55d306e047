// Package recording captures the merged audio of a call and keeps the
// finalized result available to the hosting process.
//
// A [Recorder] is an [audio.Tap]: the output context writes every scheduled
// playback buffer into it, and the microphone reaches it through
// [audio.OutputContext.Monitor]. Writes are summed onto a single timeline at
// the recorder's sample rate, positioned by the output clock. [Recorder.Stop]
// finalizes the timeline into a WAV file and registers it in a [Store], which
// hands out a [Handle].
package recording

import (
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/pranimitra/pkg/audio"
)

var _ audio.Tap = (*Recorder)(nil)

// Recorder mixes tapped audio into one mono timeline.
//
// All methods are safe for concurrent use.
type Recorder struct {
	clock audio.Clock
	rate  int
	store *Store

	mu      sync.Mutex
	started bool
	stopped bool
	origin  time.Duration
	mix     []float32
}

// New creates a Recorder positioned on clock that mixes at sampleRate and
// registers finalized recordings in store.
func New(clock audio.Clock, sampleRate int, store *Store) *Recorder {
	return &Recorder{
		clock: clock,
		rate:  sampleRate,
		store: store,
	}
}

// Start begins the timeline at the current clock position. Audio written
// before Start, or positioned before the start position, is ignored. Calling
// Start more than once has no effect.
func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.stopped {
		return
	}
	r.started = true
	r.origin = r.clock.CurrentTime()
}

// Write implements [audio.Tap]. Samples at another rate are resampled to the
// recorder rate and summed into the timeline at position at.
func (r *Recorder) Write(at time.Duration, samples []float32, sampleRate int) {
	if len(samples) == 0 || sampleRate <= 0 {
		return
	}
	samples = audio.ResampleMono(samples, sampleRate, r.rate)

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started || r.stopped {
		return
	}

	off := audio.DurationToFrames(at-r.origin, r.rate)
	if off < 0 {
		if -off >= int64(len(samples)) {
			return
		}
		samples = samples[-off:]
		off = 0
	}
	end := int(off) + len(samples)
	if end > len(r.mix) {
		r.mix = append(r.mix, make([]float32, end-len(r.mix))...)
	}
	dst := r.mix[off:end]
	for i, s := range samples {
		dst[i] += s
	}
}

// Stop ends the timeline at the current clock position and finalizes it in
// the background. The returned channel yields exactly one value and is then
// closed: the registered [Handle], or nil when the recorder was never
// started, captured nothing, or finalization failed.
//
// Calling Stop again returns a channel yielding nil.
func (r *Recorder) Stop() <-chan *Handle {
	out := make(chan *Handle, 1)

	r.mu.Lock()
	if !r.started || r.stopped {
		r.stopped = true
		r.mu.Unlock()
		out <- nil
		close(out)
		return out
	}
	r.stopped = true
	cut := audio.DurationToFrames(r.clock.CurrentTime()-r.origin, r.rate)
	mix := r.mix
	r.mix = nil
	r.mu.Unlock()

	if cut < int64(len(mix)) {
		mix = mix[:max(cut, 0)]
	}

	go func() {
		defer close(out)
		out <- r.finalize(mix)
	}()
	return out
}

// Discard stops the recorder and drops everything captured without
// finalizing it.
func (r *Recorder) Discard() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	r.mix = nil
}

func (r *Recorder) finalize(mix []float32) *Handle {
	if len(mix) == 0 {
		slog.Debug("recording: nothing captured")
		return nil
	}
	data, err := EncodeWAV(mix, r.rate)
	if err != nil {
		slog.Warn("recording: finalize failed", "err", err)
		return nil
	}
	if r.store == nil {
		slog.Warn("recording: finalize failed", "err", "no store configured")
		return nil
	}
	h := r.store.Put(data, audio.FramesToDuration(len(mix), r.rate))
	slog.Info("recording: finalized", "id", h.ID, "bytes", h.Size, "duration", h.Duration)
	return h
}
