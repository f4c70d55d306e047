package call

import (
	"context"
	"fmt"
	"time"

	"github.com/MrWong99/pranimitra/internal/observe"
	"github.com/MrWong99/pranimitra/pkg/audio"
)

// Playback is one buffer scheduled by a [PlaybackScheduler].
type Playback struct {
	// Start is the output clock position the buffer was scheduled at.
	Start time.Duration

	// Duration is the buffer length.
	Duration time.Duration

	handle audio.PlaybackHandle
}

// Stop force-stops the buffer.
func (p *Playback) Stop() { p.handle.Stop() }

// Done is closed when the buffer finishes or is stopped.
func (p *Playback) Done() <-chan struct{} { return p.handle.Done() }

// PlaybackScheduler plays assistant audio gaplessly and in arrival order on
// an output context. Each buffer starts where the previous one ends, or at
// the current clock position if playback has drained.
//
// PlaybackScheduler is not safe for concurrent use; it is owned by the call's
// event loop. Completion notifications arrive on the render goroutine through
// the onEnded function and must be handed back to the owner, which then calls
// [PlaybackScheduler.Complete].
type PlaybackScheduler struct {
	out     audio.OutputContext
	metrics *observe.Metrics
	onEnded func(*Playback)

	nextStart time.Duration
	scheduled int
	active    map[*Playback]struct{}
}

// NewPlaybackScheduler creates a scheduler on out. onEnded, if not nil, is
// invoked on the render goroutine when a buffer finishes or is stopped; it
// must not block.
func NewPlaybackScheduler(out audio.OutputContext, metrics *observe.Metrics, onEnded func(*Playback)) *PlaybackScheduler {
	return &PlaybackScheduler{
		out:     out,
		metrics: metrics,
		onEnded: onEnded,
		active:  make(map[*Playback]struct{}),
	}
}

// Schedule plays buf right after everything scheduled so far. The samples
// are also written to taps at the same clock position.
func (s *PlaybackScheduler) Schedule(buf *audio.Buffer, taps ...audio.Tap) (*Playback, error) {
	ctx := context.Background()
	if now := s.out.CurrentTime(); now > s.nextStart {
		if s.scheduled > 0 {
			s.metrics.PlaybackGaps.Add(ctx, 1)
		}
		s.nextStart = now
	}

	p := &Playback{Start: s.nextStart, Duration: buf.Duration()}
	var ended func()
	if s.onEnded != nil {
		ended = func() { s.onEnded(p) }
	}
	h, err := s.out.Schedule(buf, p.Start, ended, taps...)
	if err != nil {
		return nil, fmt.Errorf("call: schedule playback: %w", err)
	}
	p.handle = h

	s.active[p] = struct{}{}
	s.nextStart += p.Duration
	s.scheduled++
	s.metrics.BuffersScheduled.Add(ctx, 1)
	return p, nil
}

// Complete removes p from the active set. Unknown or already removed
// buffers are ignored.
func (s *PlaybackScheduler) Complete(p *Playback) {
	delete(s.active, p)
}

// StopAll force-stops every active buffer and clears the active set.
func (s *PlaybackScheduler) StopAll() {
	stopping := make([]*Playback, 0, len(s.active))
	for p := range s.active {
		stopping = append(stopping, p)
	}
	clear(s.active)
	for _, p := range stopping {
		p.Stop()
	}
}

// Active returns the number of buffers that have not yet completed.
func (s *PlaybackScheduler) Active() int { return len(s.active) }

