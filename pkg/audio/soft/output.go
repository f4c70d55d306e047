package soft

import (
	"container/heap"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/pranimitra/pkg/audio"
)

var (
	_ audio.OutputContext  = (*OutputContext)(nil)
	_ audio.PlaybackHandle = (*voice)(nil)
)

// OutputContext is an [audio.OutputContext] that mixes scheduled buffers
// into mono float output. Its clock is the number of frames rendered so far.
//
// All exported methods are safe for concurrent use.
type OutputContext struct {
	rate int

	mu       sync.Mutex
	rendered int64     // frames rendered; the clock
	pending  voiceHeap // scheduled, not yet reached by the clock
	playing  []*voice
	seq      uint64
	monitors map[*monitor]struct{}
	closed   bool
}

// NewOutputContext creates an output context running at sampleRate.
func NewOutputContext(sampleRate int) (*OutputContext, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("soft: output context: invalid sample rate %d", sampleRate)
	}
	c := &OutputContext{
		rate:     sampleRate,
		pending:  make(voiceHeap, 0, 16),
		monitors: make(map[*monitor]struct{}),
	}
	heap.Init(&c.pending)
	return c, nil
}

// SampleRate implements [audio.OutputContext].
func (c *OutputContext) SampleRate() int { return c.rate }

// CurrentTime implements [audio.Clock].
func (c *OutputContext) CurrentTime() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return audio.FramesToDuration(int(c.rendered), c.rate)
}

// Schedule implements [audio.OutputContext]. Buffers at another sample rate
// are resampled to the context rate; multi-channel buffers are downmixed.
// A start position the clock has already passed plays as soon as the next
// render begins.
func (c *OutputContext) Schedule(buf *audio.Buffer, at time.Duration, onEnded func(), taps ...audio.Tap) (audio.PlaybackHandle, error) {
	if buf == nil {
		return nil, errors.New("soft: schedule: nil buffer")
	}
	samples := audio.ResampleMono(buf.Mono(), buf.SampleRate, c.rate)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, audio.ErrContextClosed
	}
	c.seq++
	v := &voice{
		ctx:     c,
		samples: samples,
		start:   audio.DurationToFrames(at, c.rate),
		seq:     c.seq,
		done:    make(chan struct{}),
		onEnded: onEnded,
	}
	heap.Push(&c.pending, v)
	c.mu.Unlock()

	for _, t := range taps {
		t.Write(at, samples, c.rate)
	}
	return v, nil
}

// Monitor implements [audio.OutputContext].
func (c *OutputContext) Monitor(mic audio.Microphone, tap audio.Tap) (audio.Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, audio.ErrContextClosed
	}

	m := &monitor{ctx: c}
	srcRate := mic.SampleRate()
	m.cancel = mic.Listen(func(samples []float32) {
		rs := audio.ResampleMono(samples, srcRate, c.rate)
		at := c.CurrentTime() - audio.FramesToDuration(len(rs), c.rate)
		tap.Write(max(at, 0), rs, c.rate)
	})
	c.monitors[m] = struct{}{}
	return m, nil
}

// Render mixes the next len(out) frames into out and advances the clock by
// the same amount. Buffers that finish during the render are completed after
// the lock is released.
func (c *OutputContext) Render(out []float32) {
	clear(out)

	c.mu.Lock()
	from := c.rendered
	to := from + int64(len(out))

	for c.pending.Len() > 0 && c.pending[0].start < to {
		v := heap.Pop(&c.pending).(*voice)
		if v.stopped {
			continue
		}
		v.start = max(v.start, from)
		c.playing = append(c.playing, v)
	}

	var finished []*voice
	kept := c.playing[:0]
	for _, v := range c.playing {
		if v.stopped {
			continue
		}
		off := int(max(v.start-from, 0))
		n := min(len(out)-off, len(v.samples)-v.pos)
		for i := range n {
			out[off+i] += v.samples[v.pos+i]
		}
		v.pos += n
		if v.pos >= len(v.samples) {
			v.stopped = true
			finished = append(finished, v)
			continue
		}
		kept = append(kept, v)
	}
	clear(c.playing[len(kept):])
	c.playing = kept
	c.rendered = to
	c.mu.Unlock()

	for _, v := range finished {
		v.finish()
	}
}

// Scheduled returns the number of buffers not yet finished or stopped.
func (c *OutputContext) Scheduled() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.playing)
	for _, v := range c.pending {
		if !v.stopped {
			n++
		}
	}
	return n
}

// Closed implements [audio.OutputContext].
func (c *OutputContext) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close stops every scheduled buffer and detaches every monitor. Closing
// twice returns [audio.ErrContextClosed].
func (c *OutputContext) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return audio.ErrContextClosed
	}
	c.closed = true

	var stopped []*voice
	for _, v := range c.playing {
		if !v.stopped {
			v.stopped = true
			stopped = append(stopped, v)
		}
	}
	for _, v := range c.pending {
		if !v.stopped {
			v.stopped = true
			stopped = append(stopped, v)
		}
	}
	c.playing = nil
	c.pending = c.pending[:0]

	monitors := make([]*monitor, 0, len(c.monitors))
	for m := range c.monitors {
		monitors = append(monitors, m)
	}
	c.mu.Unlock()

	for _, m := range monitors {
		m.Disconnect()
	}
	for _, v := range stopped {
		v.finish()
	}
	return nil
}

// ── voice ───────────────────────────────────────────────────────────────────

// voice is one scheduled buffer. start, pos and stopped are guarded by the
// owning context's mutex.
type voice struct {
	ctx     *OutputContext
	samples []float32
	start   int64
	pos     int
	seq     uint64
	stopped bool

	done    chan struct{}
	onEnded func()
	once    sync.Once
}

// Stop implements [audio.PlaybackHandle].
func (v *voice) Stop() {
	v.ctx.mu.Lock()
	already := v.stopped
	v.stopped = true
	v.ctx.mu.Unlock()
	if !already {
		v.finish()
	}
}

// Done implements [audio.PlaybackHandle].
func (v *voice) Done() <-chan struct{} { return v.done }

func (v *voice) finish() {
	v.once.Do(func() {
		close(v.done)
		if v.onEnded != nil {
			v.onEnded()
		}
	})
}

// ── monitor ─────────────────────────────────────────────────────────────────

type monitor struct {
	ctx    *OutputContext
	cancel func()
	once   sync.Once
}

// Disconnect implements [audio.Node].
func (m *monitor) Disconnect() {
	m.once.Do(func() {
		m.cancel()
		m.ctx.mu.Lock()
		delete(m.ctx.monitors, m)
		m.ctx.mu.Unlock()
	})
}
