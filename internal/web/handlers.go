package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"ruptura/internal/extract"
	"ruptura/internal/logging"
	"ruptura/internal/report"
	"ruptura/internal/worker"
)

// startReportRequest is the body of POST /api/reports. Either Dir or Files
// selects the store databases; Dir is scanned recursively.
type startReportRequest struct {
	Kind   string   `json:"kind"`
	Format string   `json:"format"`
	Dir    string   `json:"dir,omitempty"`
	Files  []string `json:"files,omitempty"`
}

// eventPayload is the wire form of a run event.
type eventPayload struct {
	Type    string `json:"type"`
	Index   int    `json:"index,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func toPayload(ev report.Event) eventPayload {
	p := eventPayload{Index: ev.Index, Message: ev.Message}
	switch ev.Type {
	case report.EventProgress:
		p.Type = "progress"
	case report.EventDone:
		p.Type = "done"
	case report.EventFailed:
		p.Type = "failed"
		if ev.Err != nil {
			p.Error = ev.Err.Error()
		}
	}
	return p
}

// handleStartReport validates the request, claims a worker slot and starts
// the run. Responds 202 with the run id; progress is consumed via
// /api/runs/{runID}/events.
func (s *Server) handleStartReport(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req startReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	kind := report.Kind(req.Kind)
	if !kind.Valid() {
		respondError(w, http.StatusBadRequest,
			fmt.Sprintf("kind must be %q or %q", report.KindProdutos, report.KindRuptura))
		return
	}
	format := report.Format(req.Format)
	if req.Format == "" {
		format = report.FormatXLSX
	}
	if !format.Valid() {
		respondError(w, http.StatusBadRequest, "format must be xlsx, csv or parquet")
		return
	}
	if kind == report.KindProdutos && !s.creds.Complete() {
		respondError(w, http.StatusForbidden,
			"product reports need the remote query credentials configured")
		return
	}

	files := req.Files
	if req.Dir != "" {
		scanned, err := extract.ScanDir(req.Dir, s.scanExt)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		files = append(files, scanned...)
	}
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "no store databases to process")
		return
	}

	runReq := report.Request{Kind: kind, Files: files, Format: format}

	// The run outlives the HTTP request that started it.
	events, err := s.pool.Start(context.Background(), func(ctx context.Context, emit report.EventFunc) error {
		_, err := s.runner.Run(ctx, runReq, emit)
		return err
	})
	if err != nil {
		if errors.Is(err, worker.ErrBusy) {
			respondError(w, http.StatusTooManyRequests, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	id := uuid.New().String()
	rs := &runState{kind: kind, started: time.Now()}
	s.putRun(id, rs)
	go func() {
		for ev := range events {
			rs.append(ev)
		}
	}()

	log.Info("run started", "run_id", id, "kind", kind, "files", len(files), "format", format)
	respondJSON(w, http.StatusAccepted, map[string]any{
		"run_id": id,
		"kind":   kind,
		"files":  len(files),
	})
}

// handleRunStatus returns a snapshot of one run.
func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "runID")
	rs, ok := s.getRun(id)
	if !ok {
		respondError(w, http.StatusNotFound, "run not found")
		return
	}

	events, done, failed, errMsg := rs.snapshot()
	status := "running"
	if done {
		status = "done"
		if failed {
			status = "failed"
		}
	}
	resp := map[string]any{
		"run_id":  id,
		"kind":    rs.kind,
		"started": rs.started.Format(time.RFC3339),
		"status":  status,
		"events":  len(events),
	}
	if len(events) > 0 {
		resp["last_event"] = toPayload(events[len(events)-1])
	}
	if errMsg != "" {
		resp["error"] = errMsg
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleRunEvents streams a run's events as Server-Sent Events. Events
// already emitted are replayed first, so late subscribers see the full
// sequence. The stream ends after the terminal event.
func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "runID")
	rs, ok := s.getRun(id)
	if !ok {
		respondError(w, http.StatusNotFound, "run not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	cursor := 0
	for {
		events, done, _, _ := rs.snapshot()
		for ; cursor < len(events); cursor++ {
			if err := writeSSE(w, toPayload(events[cursor])); err != nil {
				return
			}
			flusher.Flush()
		}
		if done {
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

// writeSSE writes one event in SSE wire format.
func writeSSE(w http.ResponseWriter, p eventPayload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", p.Type, data)
	return err
}

// handleHealth reports liveness and pool occupancy.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"active":  s.pool.ActiveCount(),
		"workers": s.pool.MaxConcurrent(),
	})
}
