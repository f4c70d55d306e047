package audio

import "time"

// MIMEPCM16k is the MIME descriptor attached to every outbound capture frame.
const MIMEPCM16k = "audio/pcm;rate=16000"

// Sample rates of the two device contexts owned by a call.
const (
	// CaptureSampleRate is the rate microphone audio is processed and encoded at.
	CaptureSampleRate = 16000

	// PlaybackSampleRate is the rate inbound synthesized speech is produced at
	// and the output context runs at.
	PlaybackSampleRate = 24000

	// CaptureBlockSize is the number of mono samples per capture callback.
	CaptureBlockSize = 4096
)

// Frame is one encoded block of outbound audio. Data holds the base64 text
// of little-endian 16-bit PCM. Frames are immutable once produced and are sent
// exactly once.
type Frame struct {
	Data     string
	MIMEType string
}

// Buffer is a decoded PCM buffer ready for scheduling on an output context.
// Channels holds one slice of normalized float samples per channel; all
// channel slices have the same length.
type Buffer struct {
	Channels   [][]float32
	SampleRate int
}

// NumChannels returns the channel count of the buffer.
func (b *Buffer) NumChannels() int { return len(b.Channels) }

// Frames returns the number of sample frames (samples per channel).
func (b *Buffer) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the playback length of the buffer at its own sample rate.
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return FramesToDuration(b.Frames(), b.SampleRate)
}

// Mono returns the buffer downmixed to a single channel. A mono buffer
// returns its only channel without copying.
func (b *Buffer) Mono() []float32 {
	switch len(b.Channels) {
	case 0:
		return nil
	case 1:
		return b.Channels[0]
	}
	out := make([]float32, b.Frames())
	scale := 1 / float32(len(b.Channels))
	for _, ch := range b.Channels {
		for i, s := range ch {
			out[i] += s * scale
		}
	}
	return out
}

// FramesToDuration converts a frame count at sampleRate into a duration.
func FramesToDuration(frames, sampleRate int) time.Duration {
	return time.Duration(int64(frames) * int64(time.Second) / int64(sampleRate))
}

// DurationToFrames converts d into a frame count at sampleRate, rounding to
// the nearest frame. Negative durations round symmetrically.
func DurationToFrames(d time.Duration, sampleRate int) int64 {
	if d < 0 {
		return -DurationToFrames(-d, sampleRate)
	}
	return (int64(d)*int64(sampleRate) + int64(time.Second)/2) / int64(time.Second)
}
