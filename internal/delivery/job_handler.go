package delivery

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/Vovarama1992/dubflow/internal/ports"
	"github.com/Vovarama1992/dubflow/internal/subtitle"
	"github.com/Vovarama1992/dubflow/internal/translate"
)

const (
	maxUploadMemory = 32 << 20 // multipart form buffer; the file itself spools to disk
	presignExpiry   = time.Hour
)

type JobHandler struct {
	jobs ports.JobService
	log  *logger.ZapLogger
}

func NewJobHandler(jobs ports.JobService, log *logger.ZapLogger) *JobHandler {
	return &JobHandler{jobs: jobs, log: log}
}

func (h *JobHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		http.Error(w, "invalid multipart: "+err.Error(), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	job, err := h.jobs.Submit(r.Context(), ports.SubmitRequest{
		Filename:   header.Filename,
		TargetLang: r.FormValue("target_lang"),
		Source:     file,
	})
	if err != nil {
		h.log.Log(logger.LogEntry{Level: "error", Message: "submit failed", Error: err})
		http.Error(w, "failed to submit job: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(job)
}

func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(job)
}

func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	jobs, err := h.jobs.List(r.Context(), limit)
	if err != nil {
		h.log.Log(logger.LogEntry{Level: "error", Message: "list jobs failed", Error: err})
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if jobs == nil {
		jobs = []ports.Job{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(jobs)
}

func (h *JobHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "job_id")

	job, err := h.jobs.Retry(r.Context(), id)
	if errors.Is(err, ports.ErrNotFound) {
		http.Error(w, "no failed job with that id", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "retry failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(job)
}

// Subtitles renders the stored cue document as SRT (default) or WebVTT.
func (h *JobHandler) Subtitles(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}
	if job.Subtitles == nil {
		http.Error(w, "subtitles not ready", http.StatusConflict)
		return
	}

	rc, err := h.jobs.OpenArtifact(r.Context(), *job.Subtitles)
	if err != nil {
		http.Error(w, "failed to load subtitles: "+err.Error(), http.StatusInternalServerError)
		return
	}
	defer rc.Close()

	var doc translate.Document
	if err := json.NewDecoder(rc).Decode(&doc); err != nil {
		http.Error(w, "corrupt subtitle artifact: "+err.Error(), http.StatusInternalServerError)
		return
	}

	switch r.URL.Query().Get("format") {
	case "vtt":
		w.Header().Set("Content-Type", "text/vtt; charset=utf-8")
		_, _ = io.WriteString(w, subtitle.RenderVTT(doc.Cues))
	case "", "srt":
		w.Header().Set("Content-Type", "application/x-subrip; charset=utf-8")
		_, _ = io.WriteString(w, subtitle.RenderSRT(doc.Cues))
	default:
		http.Error(w, "format must be srt or vtt", http.StatusBadRequest)
	}
}

// Video redirects to a presigned link for the final dubbed video.
func (h *JobHandler) Video(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}
	if job.FinalVideo == nil {
		http.Error(w, "final video not ready", http.StatusConflict)
		return
	}

	url, err := h.jobs.ArtifactURL(r.Context(), *job.FinalVideo, presignExpiry)
	if err != nil {
		http.Error(w, "failed to presign: "+err.Error(), http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

func (h *JobHandler) loadJob(w http.ResponseWriter, r *http.Request) (*ports.Job, bool) {
	id := chi.URLParam(r, "job_id")

	job, err := h.jobs.Get(r.Context(), id)
	if errors.Is(err, ports.ErrNotFound) {
		http.Error(w, "job not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		h.log.Log(logger.LogEntry{Level: "error", Message: "load job failed", Error: err})
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	return job, true
}
