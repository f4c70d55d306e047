package audio

import "encoding/binary"

// ResampleMono resamples normalized mono samples from srcRate to dstRate by
// linear interpolation. Matching or non-positive rates return the input.
func ResampleMono(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	n := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if n == 0 {
		return nil
	}

	last := len(samples) - 1
	step := float64(srcRate) / float64(dstRate)
	out := make([]float32, n)
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = samples[last]
			continue
		}
		w := float32(pos - float64(j))
		out[i] = samples[j] + (samples[j+1]-samples[j])*w
	}
	return out
}

// ResampleMono16 is [ResampleMono] for little-endian 16-bit PCM. A trailing
// odd byte is ignored.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768
	}
	out := ResampleMono(samples, srcRate, dstRate)
	if out == nil {
		return nil
	}
	return PCM16FromFloat(out)
}
