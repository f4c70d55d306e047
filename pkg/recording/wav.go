package recording

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// MIMEType is the content type of finalized recordings.
const MIMEType = "audio/wav"

// wavHeader is the canonical 44-byte RIFF header for 16-bit PCM.
type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

// EncodeWAV encodes mono float samples as a 16-bit PCM WAV file. Samples are
// clamped to [-1, 1] before conversion.
func EncodeWAV(samples []float32, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("recording: encode wav: invalid sample rate %d", sampleRate)
	}
	dataSize := uint32(len(samples) * 2)
	hdr := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   1,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * 2),
		BlockAlign:    2,
		BitsPerSample: 16,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	var buf bytes.Buffer
	buf.Grow(44 + int(dataSize))
	if err := binary.Write(&buf, binary.LittleEndian, hdr); err != nil {
		return nil, fmt.Errorf("recording: encode wav header: %w", err)
	}
	pcm := make([]int16, len(samples))
	for i, s := range samples {
		pcm[i] = int16(math.Round(float64(min(max(s, -1), 1)) * math.MaxInt16))
	}
	if err := binary.Write(&buf, binary.LittleEndian, pcm); err != nil {
		return nil, fmt.Errorf("recording: encode wav samples: %w", err)
	}
	return buf.Bytes(), nil
}
