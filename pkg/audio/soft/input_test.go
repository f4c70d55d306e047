package soft_test

import (
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/pranimitra/pkg/audio"
	"github.com/MrWong99/pranimitra/pkg/audio/soft"
)

func TestInputContext_BlocksInCaptureOrder(t *testing.T) {
	t.Parallel()

	c, err := soft.NewInputContext(1000)
	if err != nil {
		t.Fatalf("NewInputContext: %v", err)
	}
	mic := soft.NewMicrophone(1000)

	var blocks [][]float32
	if _, err := c.Process(mic, 4, func(b []float32) { blocks = append(blocks, b) }); err != nil {
		t.Fatalf("Process: %v", err)
	}

	mic.Push([]float32{1, 2, 3})
	if len(blocks) != 0 {
		t.Fatalf("got %d blocks before a block was full", len(blocks))
	}
	mic.Push([]float32{4, 5, 6, 7, 8, 9})

	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(blocks))
	}
	for i, want := range [][]float32{{1, 2, 3, 4}, {5, 6, 7, 8}} {
		for j := range want {
			if blocks[i][j] != want[j] {
				t.Errorf("block %d = %v, want %v", i, blocks[i], want)
				break
			}
		}
	}
	if got, want := c.CurrentTime(), 8*time.Millisecond; got != want {
		t.Errorf("CurrentTime() = %v, want %v", got, want)
	}
}

func TestInputContext_ResamplesMicrophone(t *testing.T) {
	t.Parallel()

	c, _ := soft.NewInputContext(1000)
	mic := soft.NewMicrophone(2000)
	var got int
	if _, err := c.Process(mic, 5, func(b []float32) { got += len(b) }); err != nil {
		t.Fatalf("Process: %v", err)
	}
	mic.Push(make([]float32, 20))
	if got != 10 {
		t.Errorf("processed %d samples, want 10", got)
	}
}

func TestInputContext_DisconnectAndClose(t *testing.T) {
	t.Parallel()

	c, _ := soft.NewInputContext(1000)
	mic := soft.NewMicrophone(1000)
	var blocks int
	node, _ := c.Process(mic, 2, func([]float32) { blocks++ })

	node.Disconnect()
	node.Disconnect()
	mic.Push(make([]float32, 4))
	if blocks != 0 {
		t.Errorf("blocks after Disconnect = %d, want 0", blocks)
	}
	if n := mic.Listeners(); n != 0 {
		t.Errorf("Listeners() = %d after Disconnect, want 0", n)
	}

	if _, err := c.Process(mic, 2, func([]float32) { blocks++ }); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if n := mic.Listeners(); n != 0 {
		t.Errorf("Listeners() = %d after Close, want 0", n)
	}
	if err := c.Close(); !errors.Is(err, audio.ErrContextClosed) {
		t.Errorf("second Close() = %v, want ErrContextClosed", err)
	}
	if _, err := c.Process(mic, 2, nil); !errors.Is(err, audio.ErrContextClosed) {
		t.Errorf("Process after Close = %v, want ErrContextClosed", err)
	}
}

func TestMicrophone_CloseRunsCloserOnce(t *testing.T) {
	t.Parallel()

	var calls int
	mic := soft.NewMicrophone(16000, soft.WithCloser(func() error {
		calls++
		return nil
	}))
	var got int
	mic.Listen(func(s []float32) { got += len(s) })

	_ = mic.Close()
	_ = mic.Close()
	mic.Push(make([]float32, 8))

	if calls != 1 {
		t.Errorf("closer calls = %d, want 1", calls)
	}
	if got != 0 {
		t.Errorf("listener received %d samples after Close, want 0", got)
	}
	if !mic.Closed() {
		t.Error("Closed() = false after Close")
	}
}
