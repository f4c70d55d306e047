package call

import (
	"context"
	"errors"
	"log/slog"

	"github.com/MrWong99/pranimitra/internal/observe"
	"github.com/MrWong99/pranimitra/pkg/audio"
	"github.com/MrWong99/pranimitra/pkg/provider/live"
)

// CaptureProcessor encodes captured microphone blocks and hands them to the
// live session. Process runs on the capture goroutine and never waits on the
// network: frames the session cannot queue are dropped.
type CaptureProcessor struct {
	session live.Session
	metrics *observe.Metrics
	log     *slog.Logger
}

// NewCaptureProcessor creates a processor sending to session.
func NewCaptureProcessor(session live.Session, metrics *observe.Metrics, log *slog.Logger) *CaptureProcessor {
	if log == nil {
		log = slog.Default()
	}
	return &CaptureProcessor{session: session, metrics: metrics, log: log}
}

// Process encodes block as exactly one frame and submits it.
func (p *CaptureProcessor) Process(block []float32) {
	frame := audio.EncodeOutbound(block)
	err := p.session.SendAudio(frame)
	ctx := context.Background()
	if err == nil {
		p.metrics.FramesSent.Add(ctx, 1)
		return
	}

	reason := "error"
	switch {
	case errors.Is(err, live.ErrSendQueueFull):
		reason = "queue_full"
	case errors.Is(err, live.ErrClosed):
		reason = "closed"
	}
	p.metrics.RecordFrameDropped(ctx, reason)
	p.log.Debug("capture frame dropped", "reason", reason, "samples", len(block), "err", err)
}
