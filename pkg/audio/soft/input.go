package soft

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/pranimitra/pkg/audio"
)

var _ audio.InputContext = (*InputContext)(nil)

// InputContext is an [audio.InputContext] whose clock counts the samples its
// processors have consumed.
type InputContext struct {
	rate int

	mu        sync.Mutex
	processed int64
	nodes     map[*processor]struct{}
	closed    bool
}

// NewInputContext creates an input context running at sampleRate.
func NewInputContext(sampleRate int) (*InputContext, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("soft: input context: invalid sample rate %d", sampleRate)
	}
	return &InputContext{
		rate:  sampleRate,
		nodes: make(map[*processor]struct{}),
	}, nil
}

// SampleRate implements [audio.InputContext].
func (c *InputContext) SampleRate() int { return c.rate }

// CurrentTime implements [audio.Clock].
func (c *InputContext) CurrentTime() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return audio.FramesToDuration(int(c.processed), c.rate)
}

// Process implements [audio.InputContext]. Microphone audio at a different
// rate is resampled to the context rate before blocking.
func (c *InputContext) Process(mic audio.Microphone, blockSize int, fn func(block []float32)) (audio.Node, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("soft: process: invalid block size %d", blockSize)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, audio.ErrContextClosed
	}

	p := &processor{
		ctx:   c,
		size:  blockSize,
		block: make([]float32, 0, blockSize),
		fn:    fn,
	}
	srcRate := mic.SampleRate()
	p.cancel = mic.Listen(func(samples []float32) {
		p.feed(audio.ResampleMono(samples, srcRate, c.rate))
	})
	c.nodes[p] = struct{}{}
	return p, nil
}

// Closed implements [audio.InputContext].
func (c *InputContext) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close detaches every processor. Closing twice returns
// [audio.ErrContextClosed].
func (c *InputContext) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return audio.ErrContextClosed
	}
	c.closed = true
	nodes := make([]*processor, 0, len(c.nodes))
	for p := range c.nodes {
		nodes = append(nodes, p)
	}
	c.mu.Unlock()

	for _, p := range nodes {
		p.Disconnect()
	}
	return nil
}

func (c *InputContext) advance(n int) {
	c.mu.Lock()
	c.processed += int64(n)
	c.mu.Unlock()
}

func (c *InputContext) detach(p *processor) {
	c.mu.Lock()
	delete(c.nodes, p)
	c.mu.Unlock()
}

// processor accumulates samples into blocks. feed runs only on the
// microphone goroutine.
type processor struct {
	ctx    *InputContext
	size   int
	block  []float32
	fn     func([]float32)
	cancel func()
	off    atomic.Bool
	once   sync.Once
}

func (p *processor) feed(samples []float32) {
	for len(samples) > 0 && !p.off.Load() {
		n := min(p.size-len(p.block), len(samples))
		p.block = append(p.block, samples[:n]...)
		samples = samples[n:]
		if len(p.block) < p.size {
			return
		}
		blk := p.block
		p.block = make([]float32, 0, p.size)
		p.ctx.advance(p.size)
		p.fn(blk)
	}
}

// Disconnect implements [audio.Node].
func (p *processor) Disconnect() {
	p.once.Do(func() {
		p.off.Store(true)
		p.cancel()
		p.ctx.detach(p)
	})
}
