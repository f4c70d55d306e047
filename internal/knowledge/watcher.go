package knowledge

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Watcher keeps the current corpus of a [Source] and reloads it by polling.
// A reload that fails keeps the previous corpus.
type Watcher struct {
	src      Source
	interval time.Duration
	onChange func(old, new []Entry)

	mu       sync.RWMutex
	current  []Entry
	lastHash [sha256.Size]byte

	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 30 seconds. A
// non-positive interval disables polling.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.interval = d
	}
}

// WithOnChange registers a callback invoked after a reload changed the
// corpus.
func WithOnChange(fn func(old, new []Entry)) WatcherOption {
	return func(w *Watcher) {
		w.onChange = fn
	}
}

// NewWatcher loads the initial corpus from src and starts polling in a
// background goroutine.
func NewWatcher(ctx context.Context, src Source, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		src:      src,
		interval: 30 * time.Second,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	entries, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("knowledge: watcher initial load: %w", err)
	}
	w.current = entries
	w.lastHash = hashEntries(entries)

	if w.interval > 0 {
		go w.poll()
	}
	return w, nil
}

// Current returns the most recently loaded corpus. The slice must not be
// modified.
func (w *Watcher) Current() []Entry {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Load implements [Source] by returning a copy of the current corpus.
func (w *Watcher) Load(context.Context) ([]Entry, error) {
	cur := w.Current()
	out := make([]Entry, len(cur))
	copy(out, cur)
	return out, nil
}

// Stop stops polling.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
}

func (w *Watcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), w.interval)
			w.Reload(ctx)
			cancel()
		}
	}
}

// Reload loads the source once and swaps the corpus if its content changed.
// It reports whether the corpus changed.
func (w *Watcher) Reload(ctx context.Context) bool {
	entries, err := w.src.Load(ctx)
	if err != nil {
		slog.Warn("knowledge watcher: reload failed", "err", err)
		return false
	}
	hash := hashEntries(entries)

	w.mu.Lock()
	if hash == w.lastHash {
		w.mu.Unlock()
		return false
	}
	old := w.current
	w.current = entries
	w.lastHash = hash
	w.mu.Unlock()

	slog.Info("knowledge watcher: corpus reloaded", "entries", len(entries))
	if w.onChange != nil {
		w.onChange(old, entries)
	}
	return true
}

func hashEntries(entries []Entry) [sha256.Size]byte {
	h := sha256.New()
	for _, e := range entries {
		fmt.Fprintf(h, "%d:%s%d:%s", len(e.Question), e.Question, len(e.Answer), e.Answer)
	}
	var sum [sha256.Size]byte
	copy(sum[:], h.Sum(nil))
	return sum
}
