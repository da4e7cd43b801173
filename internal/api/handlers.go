// Package api exposes the job queue over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/maltedev/domeme-scraper/internal/jobs"
	"github.com/maltedev/domeme-scraper/internal/models"
)

// JobService is the part of the job manager the handlers use.
type JobService interface {
	CreateSearch(p jobs.SearchParams) (*jobs.Job, error)
	CreateStaging(p jobs.StagingParams) (*jobs.Job, error)
	GetJob(id string) (*jobs.Job, error)
	ListJobs() []*jobs.Job
	Records(id string) ([]models.ProductRecord, error)
	QueueSize() int
}

// OutboxHealth reports relay backlog. It is optional.
type OutboxHealth interface {
	PendingCount(ctx context.Context) (int64, error)
	DeadLetterCount(ctx context.Context) (int64, error)
}

const (
	pendingWarnThreshold    = 1000
	deadLetterFailThreshold = 100
)

type Handlers struct {
	jobs   JobService
	outbox OutboxHealth
	logger *slog.Logger
}

func NewHandlers(jobs JobService, outbox OutboxHealth, logger *slog.Logger) *Handlers {
	return &Handlers{
		jobs:   jobs,
		outbox: outbox,
		logger: logger.With("component", "api"),
	}
}

type CreateJobResponse struct {
	JobID   string      `json:"job_id"`
	Status  jobs.Status `json:"status"`
	Message string      `json:"message"`
}

type RecordsResponse struct {
	JobID   string                 `json:"job_id"`
	Count   int                    `json:"count"`
	Records []models.ProductRecord `json:"records"`
}

// CreateSearch queues a keyword search.
func (h *Handlers) CreateSearch(w http.ResponseWriter, r *http.Request) {
	var req jobs.SearchParams
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	job, err := h.jobs.CreateSearch(req)
	if err != nil {
		h.respondCreateError(w, err)
		return
	}

	h.respondJSON(w, http.StatusAccepted, CreateJobResponse{
		JobID:   job.ID,
		Status:  job.Status,
		Message: "search queued",
	})
}

// CreateStaging queues a staging run for product ids. An empty list stages
// every product on the current result page.
func (h *Handlers) CreateStaging(w http.ResponseWriter, r *http.Request) {
	var req jobs.StagingParams
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	job, err := h.jobs.CreateStaging(req)
	if err != nil {
		h.respondCreateError(w, err)
		return
	}

	h.respondJSON(w, http.StatusAccepted, CreateJobResponse{
		JobID:   job.ID,
		Status:  job.Status,
		Message: "staging queued",
	})
}

func (h *Handlers) respondCreateError(w http.ResponseWriter, err error) {
	if errors.Is(err, jobs.ErrInvalidJob) {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.logger.Error("failed to create job", "error", err)
	h.respondError(w, http.StatusServiceUnavailable, "failed to queue job")
}

func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		h.respondError(w, http.StatusBadRequest, "job ID is required")
		return
	}

	job, err := h.jobs.GetJob(jobID)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "job not found")
		return
	}

	h.respondJSON(w, http.StatusOK, job)
}

func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.jobs.ListJobs())
}

// GetJobRecords returns the records a finished search produced.
func (h *Handlers) GetJobRecords(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		h.respondError(w, http.StatusBadRequest, "job ID is required")
		return
	}

	records, err := h.jobs.Records(jobID)
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		h.respondError(w, http.StatusNotFound, "job not found")
		return
	case errors.Is(err, jobs.ErrRecordsNotReady):
		h.respondError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, jobs.ErrRecordsEvicted):
		h.respondError(w, http.StatusGone, err.Error())
		return
	case err != nil:
		h.logger.Error("failed to get job records", "job_id", jobID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get records")
		return
	}

	if records == nil {
		records = []models.ProductRecord{}
	}
	h.respondJSON(w, http.StatusOK, RecordsResponse{
		JobID:   jobID,
		Count:   len(records),
		Records: records,
	})
}

// Health reports queue depth and, when a relay is wired, the outbox backlog.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{
		"status": "ok",
		"queue":  map[string]any{"size": h.jobs.QueueSize()},
	}
	status := http.StatusOK

	if h.outbox != nil {
		pending, perr := h.outbox.PendingCount(r.Context())
		dead, derr := h.outbox.DeadLetterCount(r.Context())
		health["outbox"] = map[string]any{
			"pending":     pending,
			"dead_letter": dead,
		}

		switch {
		case perr != nil || derr != nil:
			health["status"] = "error"
			health["message"] = "outbox unavailable"
			status = http.StatusServiceUnavailable
		case dead > deadLetterFailThreshold:
			health["status"] = "error"
			health["message"] = "High number of dead letter events"
			status = http.StatusServiceUnavailable
		case pending > pendingWarnThreshold:
			health["status"] = "warning"
			health["message"] = "High number of pending outbox events"
		}
	}

	h.respondJSON(w, status, health)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
