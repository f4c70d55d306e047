package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrOddLength is returned by [DecodeAudioData] when the payload does not
// hold a whole number of 16-bit sample frames across all channels.
var ErrOddLength = errors.New("audio: pcm payload is not a whole number of 16-bit frames")

// EncodeOutbound converts normalized float samples to little-endian 16-bit
// PCM and returns it as a base64 [Frame] tagged with [MIMEPCM16k].
//
// Each sample is scaled by 32768 and rounded. The result is not clamped:
// samples outside [-1, 1] wrap around the int16 range, so +1.0 encodes as
// -32768.
func EncodeOutbound(samples []float32) Frame {
	return Frame{
		Data:     EncodeBytes(PCM16FromFloat(samples)),
		MIMEType: MIMEPCM16k,
	}
}

// PCM16FromFloat packs normalized float samples as little-endian int16 using
// the wrapping conversion described on [EncodeOutbound].
func PCM16FromFloat(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int16(int64(math.Round(float64(s) * 32768)))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// EncodeBytes returns the standard base64 text of data.
func EncodeBytes(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeInbound reverses the base64 framing of an inbound audio payload.
func DecodeInbound(text string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("audio: decode inbound: %w", err)
	}
	return data, nil
}

// DecodeAudioData interprets data as interleaved little-endian 16-bit PCM
// with the given channel count and returns a [Buffer] tagged with
// sampleRate. Samples are normalized by dividing by 32768.
func DecodeAudioData(data []byte, sampleRate, channels int) (*Buffer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("audio: decode audio data: invalid sample rate %d", sampleRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("audio: decode audio data: invalid channel count %d", channels)
	}
	if len(data)%(2*channels) != 0 {
		return nil, fmt.Errorf("audio: decode audio data: %d bytes for %d channels: %w", len(data), channels, ErrOddLength)
	}

	frames := len(data) / (2 * channels)
	buf := &Buffer{
		Channels:   make([][]float32, channels),
		SampleRate: sampleRate,
	}
	for c := range buf.Channels {
		buf.Channels[c] = make([]float32, frames)
	}
	for i := range frames {
		for c := range channels {
			off := (i*channels + c) * 2
			v := int16(binary.LittleEndian.Uint16(data[off:]))
			buf.Channels[c][i] = float32(v) / 32768.0
		}
	}
	return buf, nil
}
