package soft

import (
	"encoding/binary"
	"io"
	"math"
)

// Reader returns an io.Reader that renders the context as little-endian
// float32 mono PCM. Each Read advances the clock by the number of whole
// frames it returns; samples are clipped to [-1, 1].
func (c *OutputContext) Reader() io.Reader {
	return &renderReader{ctx: c}
}

type renderReader struct {
	ctx *OutputContext
	buf []float32
}

func (r *renderReader) Read(p []byte) (int, error) {
	frames := len(p) / 4
	if frames == 0 {
		return 0, nil
	}
	if cap(r.buf) < frames {
		r.buf = make([]float32, frames)
	}
	buf := r.buf[:frames]
	r.ctx.Render(buf)
	for i, s := range buf {
		s = max(-1, min(1, s))
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(s))
	}
	return frames * 4, nil
}
