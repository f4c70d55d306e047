package recording

import (
	"bytes"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Handle references one finalized recording held by a [Store]. It stays
// valid until revoked or until the process exits.
type Handle struct {
	// ID identifies the recording in its store.
	ID string

	// URL is an opaque "blob:" reference to the recording.
	URL string

	// MIMEType is the content type of the encoded data.
	MIMEType string

	// Size is the encoded length in bytes.
	Size int

	// Duration is the length of the recorded audio.
	Duration time.Duration

	// CreatedAt is when the recording was registered.
	CreatedAt time.Time

	data []byte
}

// Open returns a reader over the encoded recording.
func (h *Handle) Open() io.ReadSeeker {
	return bytes.NewReader(h.data)
}

// Store keeps finalized recordings in memory, keyed by ID.
//
// All methods are safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	handles map[string]*Handle
	now     func() time.Time
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		handles: make(map[string]*Handle),
		now:     time.Now,
	}
}

// Put registers encoded WAV data and returns its handle.
func (s *Store) Put(data []byte, duration time.Duration) *Handle {
	id := uuid.NewString()
	h := &Handle{
		ID:        id,
		URL:       "blob:" + id,
		MIMEType:  MIMEType,
		Size:      len(data),
		Duration:  duration,
		CreatedAt: s.now(),
		data:      data,
	}
	s.mu.Lock()
	s.handles[id] = h
	s.mu.Unlock()
	return h
}

// Get returns the recording with the given ID.
func (s *Store) Get(id string) (*Handle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handles[id]
	return h, ok
}

// Revoke drops the recording with the given ID. It reports whether the
// recording existed.
func (s *Store) Revoke(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.handles[id]
	delete(s.handles, id)
	return ok
}

// Len returns the number of recordings held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handles)
}
