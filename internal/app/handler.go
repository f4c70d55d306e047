package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/MrWong99/pranimitra/internal/call"
	"github.com/MrWong99/pranimitra/internal/prompt"
	"github.com/MrWong99/pranimitra/internal/transcript"
)

// callHandler controls the live call over HTTP:
//
//	GET    /call  reports the live call, if any
//	POST   /call  starts a call; the JSON body may override the defaults
//	DELETE /call  ends the live call and returns its transcript and recording
type callHandler struct {
	app *App
}

func newCallHandler(a *App) *callHandler {
	return &callHandler{app: a}
}

func (h *callHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /call", h.get)
	mux.HandleFunc("POST /call", h.start)
	mux.HandleFunc("DELETE /call", h.end)
}

type callStatus struct {
	Active   bool   `json:"active"`
	ID       string `json:"id,omitempty"`
	State    string `json:"state,omitempty"`
	Language string `json:"language,omitempty"`
	Service  string `json:"service,omitempty"`
	Record   bool   `json:"record,omitempty"`
}

type startRequest struct {
	Language string `json:"language"`
	Service  string `json:"service"`
	Record   *bool  `json:"record"`
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type transcriptEntry struct {
	Speaker   transcript.Speaker `json:"speaker"`
	Text      string             `json:"text"`
	Timestamp time.Time          `json:"timestamp"`
}

type recordingRef struct {
	ID       string  `json:"id"`
	URL      string  `json:"url"`
	MIMEType string  `json:"mime_type"`
	Size     int     `json:"size"`
	Duration float64 `json:"duration_seconds"`
}

type callResult struct {
	ID         string            `json:"id"`
	Transcript []transcriptEntry `json:"transcript"`
	Recording  *recordingRef     `json:"recording,omitempty"`
}

func resultOf(id string, res call.Result) callResult {
	out := callResult{ID: id, Transcript: make([]transcriptEntry, 0, len(res.Transcript))}
	for _, e := range res.Transcript {
		out.Transcript = append(out.Transcript, transcriptEntry{Speaker: e.Speaker, Text: e.Text, Timestamp: e.Timestamp})
	}
	if h := res.Recording; h != nil {
		out.Recording = &recordingRef{
			ID:       h.ID,
			URL:      "/recordings/" + h.ID,
			MIMEType: h.MIMEType,
			Size:     h.Size,
			Duration: h.Duration.Seconds(),
		}
	}
	return out
}

func statusOf(c *call.Call) callStatus {
	if c == nil {
		return callStatus{}
	}
	p := c.Params()
	return callStatus{
		Active:   true,
		ID:       c.ID(),
		State:    c.State().String(),
		Language: string(p.Language),
		Service:  string(p.Service),
		Record:   p.Record,
	}
}

func (h *callHandler) get(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusOf(h.app.calls.Current()))
}

func (h *callHandler) start(w http.ResponseWriter, r *http.Request) {
	p, err := h.app.DefaultParams()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error()})
		return
	}
	if req.Language != "" {
		if p.Language, err = prompt.ParseLanguage(req.Language); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}
	}
	if req.Service != "" {
		if p.Service, err = prompt.ParseService(req.Service); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}
	}
	if req.Record != nil {
		p.Record = *req.Record
	}

	// The call outlives the request.
	c, err := h.app.StartCall(context.WithoutCancel(r.Context()), p)
	if errors.Is(err, call.ErrCallInProgress) {
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, statusOf(c))
}

func (h *callHandler) end(w http.ResponseWriter, r *http.Request) {
	c := h.app.calls.Current()
	if c == nil {
		http.NotFound(w, r)
		return
	}
	c.End()

	// Teardown finalizes the recording; wait for it unless the client leaves.
	res, err := c.Result(r.Context())
	var ce *call.Error
	switch {
	case err == nil, errors.Is(err, call.ErrEnded):
		writeJSON(w, http.StatusOK, resultOf(c.ID(), res))
	case errors.As(err, &ce):
		writeJSON(w, http.StatusBadGateway, errorBody{Error: ce.Message, Kind: ce.Kind.String()})
	default:
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
