package audio_test

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/MrWong99/pranimitra/pkg/audio"
)

func TestEncodeOutbound_ZeroBlock(t *testing.T) {
	t.Parallel()

	frame := audio.EncodeOutbound(make([]float32, audio.CaptureBlockSize))
	if frame.MIMEType != "audio/pcm;rate=16000" {
		t.Errorf("MIMEType = %q, want %q", frame.MIMEType, "audio/pcm;rate=16000")
	}

	raw, err := audio.DecodeInbound(frame.Data)
	if err != nil {
		t.Fatalf("DecodeInbound: %v", err)
	}
	buf, err := audio.DecodeAudioData(raw, audio.CaptureSampleRate, 1)
	if err != nil {
		t.Fatalf("DecodeAudioData: %v", err)
	}
	if buf.Frames() != audio.CaptureBlockSize {
		t.Fatalf("Frames() = %d, want %d", buf.Frames(), audio.CaptureBlockSize)
	}
	for i, s := range buf.Channels[0] {
		if s != 0 {
			t.Fatalf("sample %d = %v, want 0", i, s)
		}
	}
}

func TestEncodeOutbound_Scaling(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   float32
		want int16
	}{
		{"zero", 0, 0},
		{"half", 0.5, 16384},
		{"negative full scale", -1, -32768},
		{"rounds to nearest", 0.000046, 2},
		// No clamping: +1.0 is 32768 which wraps to the int16 minimum.
		{"positive full scale wraps", 1, -32768},
		{"overdriven wraps", 1.5, -16384},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			raw, err := audio.DecodeInbound(audio.EncodeOutbound([]float32{tc.in}).Data)
			if err != nil {
				t.Fatalf("DecodeInbound: %v", err)
			}
			got := bytesToSamples(raw)
			if len(got) != 1 || got[0] != tc.want {
				t.Errorf("encode(%v) = %v, want [%d]", tc.in, got, tc.want)
			}
		})
	}
}

func TestBase64RoundTrip(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewPCG(1, 2))
	for _, n := range []int{0, 1, 2, 3, 255, 8192} {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(r.UintN(256))
		}
		got, err := audio.DecodeInbound(audio.EncodeBytes(data))
		if err != nil {
			t.Fatalf("DecodeInbound(%d bytes): %v", n, err)
		}
		if !bytes.Equal(got, data) {
			t.Errorf("round trip of %d bytes changed the payload", n)
		}
	}
}

func TestDecodeInbound_Invalid(t *testing.T) {
	t.Parallel()

	if _, err := audio.DecodeInbound("not base64!"); err == nil {
		t.Error("expected error for invalid base64")
	}
}

func TestDecodeAudioData(t *testing.T) {
	t.Parallel()

	t.Run("mono", func(t *testing.T) {
		buf, err := audio.DecodeAudioData(samplesToBytes([]int16{16384, -32768, 0}), audio.PlaybackSampleRate, 1)
		if err != nil {
			t.Fatalf("DecodeAudioData: %v", err)
		}
		if buf.SampleRate != audio.PlaybackSampleRate || buf.NumChannels() != 1 {
			t.Fatalf("buffer tagged %d Hz × %d, want 24000 Hz × 1", buf.SampleRate, buf.NumChannels())
		}
		want := []float32{0.5, -1, 0}
		for i, s := range buf.Channels[0] {
			if s != want[i] {
				t.Errorf("sample %d = %v, want %v", i, s, want[i])
			}
		}
	})

	t.Run("stereo deinterleaves", func(t *testing.T) {
		buf, err := audio.DecodeAudioData(samplesToBytes([]int16{16384, -16384, 0, 8192}), audio.PlaybackSampleRate, 2)
		if err != nil {
			t.Fatalf("DecodeAudioData: %v", err)
		}
		if buf.Frames() != 2 {
			t.Fatalf("Frames() = %d, want 2", buf.Frames())
		}
		if buf.Channels[0][0] != 0.5 || buf.Channels[1][0] != -0.5 || buf.Channels[1][1] != 0.25 {
			t.Errorf("unexpected channel data %v", buf.Channels)
		}
	})

	t.Run("odd length", func(t *testing.T) {
		_, err := audio.DecodeAudioData([]byte{1, 2, 3}, audio.PlaybackSampleRate, 1)
		if !errors.Is(err, audio.ErrOddLength) {
			t.Errorf("err = %v, want ErrOddLength", err)
		}
	})

	t.Run("partial stereo frame", func(t *testing.T) {
		// Three samples cannot fill two stereo frames.
		_, err := audio.DecodeAudioData(samplesToBytes([]int16{100, 200, 300}), audio.PlaybackSampleRate, 2)
		if !errors.Is(err, audio.ErrOddLength) {
			t.Errorf("err = %v, want ErrOddLength", err)
		}
	})

	t.Run("invalid rate", func(t *testing.T) {
		if _, err := audio.DecodeAudioData([]byte{0, 0}, 0, 1); err == nil {
			t.Error("expected error for zero sample rate")
		}
	})
}
