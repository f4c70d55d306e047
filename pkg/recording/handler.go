package recording

import (
	"net/http"
	"strconv"
)

// Handler serves recordings from a [Store] over HTTP.
type Handler struct {
	store *Store
}

// NewHandler creates a Handler backed by store.
func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

// Register adds the recording routes to mux:
//
//	GET    /recordings/{id}  streams the WAV file (range requests supported)
//	DELETE /recordings/{id}  revokes the recording
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /recordings/{id}", h.Get)
	mux.HandleFunc("DELETE /recordings/{id}", h.Delete)
}

// Get serves the recording named by the id path value.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.store.Get(r.PathValue("id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", rec.MIMEType)
	w.Header().Set("X-Recording-Duration-Ms", strconv.FormatInt(rec.Duration.Milliseconds(), 10))
	http.ServeContent(w, r, rec.ID+".wav", rec.CreatedAt, rec.Open())
}

// Delete revokes the recording named by the id path value.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.store.Revoke(r.PathValue("id")) {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
