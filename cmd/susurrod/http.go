package main

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/johnnybonaci/susurro/transcriber/application"
	"github.com/johnnybonaci/susurro/transcriber/domain"
	"github.com/johnnybonaci/susurro/transcriber/infra"
)

// api é a borda HTTP fina: traduz requisições para o orquestrador e
// desfechos para JSON. Nenhuma regra de negócio vive aqui.
type api struct {
	orc     *application.Orchestrator
	scratch *infra.Scratch
	limiter *infra.SubmitLimiter
	log     zerolog.Logger
}

func (a *api) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /transcribe", a.handleSubmit)
	mux.HandleFunc("GET /jobs/pending", a.handlePending)
	mux.HandleFunc("GET /jobs/recent", a.handleRecent)
	mux.HandleFunc("GET /jobs/{id}", a.handleGetJob)
	mux.HandleFunc("DELETE /jobs/{id}", a.handleDeleteJob)
	mux.HandleFunc("GET /queue/stats", a.handleQueueStats)
	mux.HandleFunc("GET /status", a.handleStatus)
	mux.HandleFunc("POST /admin/force-release", a.handleForceRelease)
	mux.HandleFunc("POST /admin/stats/reset", a.handleStatsReset)
	mux.HandleFunc("GET /health", a.handleHealth)
	return mux
}

func (a *api) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if !a.limiter.Allow(clientIP(r)) {
		writeError(w, http.StatusTooManyRequests, "too many submissions, slow down")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	id := uuid.NewString()
	path := a.scratch.Path(id, header.Filename)
	size, err := saveUpload(path, file)
	if err != nil {
		a.log.Error().Err(err).Msg("upload write failed")
		writeError(w, http.StatusInternalServerError, "could not store upload")
		return
	}

	resp, err := a.orc.Submit(r.Context(), application.SubmitRequest{
		JobID:    id,
		Filename: header.Filename,
		FileSize: size,
		Path:     path,
		Language: r.FormValue("language"),
	})
	if err != nil {
		// admissão rejeitada: o artefato órfão sai na hora.
		_ = os.Remove(path)
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Error())
			return
		}
		a.log.Error().Err(err).Msg("submit failed")
		writeError(w, http.StatusServiceUnavailable, "submission unavailable")
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (a *api) handleGetJob(w http.ResponseWriter, r *http.Request) {
	view, ok, err := a.orc.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "lookup unavailable")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "job not found or expired")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *api) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	removed, err := a.orc.DeleteJob(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "delete unavailable")
		return
	}
	_ = a.scratch.Remove(id)
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": removed})
}

func (a *api) handlePending(w http.ResponseWriter, r *http.Request) {
	views, err := a.orc.PendingJobs(r.Context(), queryLimit(r, 50))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "listing unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": views})
}

func (a *api) handleRecent(w http.ResponseWriter, r *http.Request) {
	ok := r.URL.Query().Get("status") != "failed"
	views, err := a.orc.RecentJobs(r.Context(), ok, queryLimit(r, 20))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "listing unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": views})
}

func (a *api) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.orc.QueueStats(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "stats unavailable")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *api) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := a.orc.CurrentStatus(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "status unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"busy":    st != nil,
		"current": st,
	})
}

func (a *api) handleForceRelease(w http.ResponseWriter, r *http.Request) {
	released, err := a.orc.ForceRelease(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "release unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"released": released})
}

func (a *api) handleStatsReset(w http.ResponseWriter, r *http.Request) {
	if err := a.orc.ResetDailyStats(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "reset unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := a.orc.HealthCheck(r.Context())
	code := http.StatusOK
	if !h.OK() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, h)
}

func saveUpload(path string, src io.Reader) (int64, error) {
	dst, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, err
	}
	return n, nil
}

func queryLimit(r *http.Request, def int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
