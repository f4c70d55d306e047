package recording_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrWong99/pranimitra/pkg/recording"
)

func newTestServer(t *testing.T) (*httptest.Server, *recording.Store) {
	t.Helper()
	store := recording.NewStore()
	mux := http.NewServeMux()
	recording.NewHandler(store).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, store
}

func TestHandler_Get(t *testing.T) {
	t.Parallel()

	srv, store := newTestServer(t)
	data, err := recording.EncodeWAV(make([]float32, 240), 24000)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	h := store.Put(data, 10*time.Millisecond)

	resp, err := http.Get(srv.URL + "/recordings/" + h.ID)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != recording.MIMEType {
		t.Errorf("Content-Type = %q, want %q", ct, recording.MIMEType)
	}
	if resp.ContentLength != int64(len(data)) {
		t.Errorf("Content-Length = %d, want %d", resp.ContentLength, len(data))
	}
	if d := resp.Header.Get("X-Recording-Duration-Ms"); d != "10" {
		t.Errorf("X-Recording-Duration-Ms = %q, want 10", d)
	}
}

func TestHandler_Range(t *testing.T) {
	t.Parallel()

	srv, store := newTestServer(t)
	h := store.Put(make([]byte, 100), time.Second)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/recordings/"+h.ID, nil)
	req.Header.Set("Range", "bytes=0-43")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		t.Errorf("status = %d, want 206", resp.StatusCode)
	}
	if resp.ContentLength != 44 {
		t.Errorf("Content-Length = %d, want 44", resp.ContentLength)
	}
}

func TestHandler_DeleteAndNotFound(t *testing.T) {
	t.Parallel()

	srv, store := newTestServer(t)
	h := store.Put([]byte("RIFF"), time.Millisecond)

	del := func() int {
		req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/recordings/"+h.ID, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("DELETE: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if got := del(); got != http.StatusNoContent {
		t.Errorf("first DELETE status = %d, want 204", got)
	}
	if got := del(); got != http.StatusNotFound {
		t.Errorf("second DELETE status = %d, want 404", got)
	}

	resp, err := http.Get(srv.URL + "/recordings/" + h.ID)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET after revoke status = %d, want 404", resp.StatusCode)
	}
}
