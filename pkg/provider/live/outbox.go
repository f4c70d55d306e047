package live

import (
	"context"
	"sync"

	"github.com/MrWong99/pranimitra/pkg/audio"
)

// DefaultOutboxSize is the number of frames an [Outbox] buffers. At 4096
// samples per 16 kHz frame this is about 16 seconds of microphone audio.
const DefaultOutboxSize = 64

// Outbox is the non-blocking outbound frame queue shared by the session
// implementations. Push never blocks; a single writer goroutine drains the
// queue through [Outbox.Run].
type Outbox struct {
	ch   chan audio.Frame
	done chan struct{}
	once sync.Once
}

// NewOutbox creates an outbox holding up to size frames. A non-positive size
// selects [DefaultOutboxSize].
func NewOutbox(size int) *Outbox {
	if size <= 0 {
		size = DefaultOutboxSize
	}
	return &Outbox{
		ch:   make(chan audio.Frame, size),
		done: make(chan struct{}),
	}
}

// Push queues frame. It returns [ErrClosed] after Close and
// [ErrSendQueueFull] when the queue has no room.
func (o *Outbox) Push(frame audio.Frame) error {
	select {
	case <-o.done:
		return ErrClosed
	default:
	}
	select {
	case o.ch <- frame:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Run delivers queued frames to send in order until the outbox is closed,
// ctx is done, or send fails. Frames still queued at that point are dropped.
func (o *Outbox) Run(ctx context.Context, send func(context.Context, audio.Frame) error) error {
	for {
		select {
		case <-o.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case f := <-o.ch:
			if err := send(ctx, f); err != nil {
				return err
			}
		}
	}
}

// Close stops the outbox. Close is idempotent.
func (o *Outbox) Close() {
	o.once.Do(func() { close(o.done) })
}
