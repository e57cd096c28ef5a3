package app

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"

	"github.com/MrWong99/parley/internal/pipeline"
	"github.com/MrWong99/parley/pkg/memory"
)

// maxListLimit caps GET /v1/sessions.
const maxListLimit = 1000

// stateResponse is the body of GET /v1/state.
type stateResponse struct {
	State   pipeline.State     `json:"state"`
	Session *pipeline.Snapshot `json:"session,omitempty"`
}

// listResponse is the body of GET /v1/sessions.
type listResponse struct {
	Sessions []memory.Record `json:"sessions"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *App) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sessions", a.handleStart)
	mux.HandleFunc("POST /v1/sessions/stop", a.handleStop)
	mux.HandleFunc("POST /v1/sessions/cancel", a.handleCancel)
	mux.HandleFunc("GET /v1/sessions", a.handleList)
	mux.HandleFunc("GET /v1/sessions/{id}", a.handleGet)
	mux.HandleFunc("GET /v1/state", a.handleState)
	mux.HandleFunc("GET /v1/events", a.handleEvents)
	mux.Handle("GET /metrics", a.scrape)
	a.health.Register(mux)
	return mux
}

// handleStart begins a session and answers with its first snapshot. The
// session outlives the request.
func (a *App) handleStart(w http.ResponseWriter, _ *http.Request) {
	sess, err := a.orch.Start(a.base)
	switch {
	case errors.Is(err, pipeline.ErrBusy):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, pipeline.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusAccepted, sess.Snapshot())
	}
}

func (a *App) handleStop(w http.ResponseWriter, _ *http.Request) {
	if err := a.orch.Stop(); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	a.writeState(w, http.StatusAccepted)
}

func (a *App) handleCancel(w http.ResponseWriter, _ *http.Request) {
	if err := a.orch.Cancel(); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	a.writeState(w, http.StatusAccepted)
}

func (a *App) handleState(w http.ResponseWriter, _ *http.Request) {
	a.writeState(w, http.StatusOK)
}

func (a *App) writeState(w http.ResponseWriter, status int) {
	resp := stateResponse{State: a.orch.State()}
	if sess := a.orch.Current(); sess != nil {
		snap := sess.Snapshot()
		resp.Session = &snap
	}
	writeJSON(w, status, resp)
}

// handleList serves the journal. Query parameters: outcome, kind, q, limit,
// after and before (RFC 3339).
func (a *App) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := memory.ListOpts{
		Outcome:     q.Get("outcome"),
		FailureKind: q.Get("kind"),
		Query:       q.Get("q"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a non-negative integer"))
			return
		}
		opts.Limit = min(n, maxListLimit)
	}
	for _, p := range []struct {
		key string
		dst *time.Time
	}{{"after", &opts.After}, {"before", &opts.Before}} {
		v := q.Get(p.key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New(p.key+" must be an RFC 3339 timestamp"))
			return
		}
		*p.dst = t
	}

	recs, err := a.journal.List(r.Context(), opts)
	if err != nil {
		slog.Warn("journal list failed", "err", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if recs == nil {
		recs = []memory.Record{}
	}
	writeJSON(w, http.StatusOK, listResponse{Sessions: recs})
}

func (a *App) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := a.journal.Get(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, memory.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		slog.Warn("journal get failed", "err", err)
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, rec)
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := sonic.Marshal(v)
	if err != nil {
		slog.Error("encode response", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
