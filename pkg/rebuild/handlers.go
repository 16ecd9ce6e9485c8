package rebuild

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// jobResponse is the JSON shape of a rebuild job.
type jobResponse struct {
	ID             string     `json:"id"`
	EntityType     string     `json:"entityType"`
	Filter         string     `json:"filter,omitempty"`
	BatchSize      int        `json:"batchSize,omitempty"`
	RequestedBy    string     `json:"requestedBy"`
	RequestedAt    time.Time  `json:"requestedAt"`
	State          JobState   `json:"state"`
	Message        string     `json:"message,omitempty"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	FinishedAt     *time.Time `json:"finishedAt,omitempty"`
	AttemptCount   int        `json:"attemptCount"`
	LastError      string     `json:"lastError,omitempty"`
	EntitiesSynced int        `json:"entitiesSynced"`
	PathsChanged   int        `json:"pathsChanged"`
	EntitiesFailed int        `json:"entitiesFailed"`
	DurationMs     int64      `json:"durationMs"`
}

func jobToResponse(j *RebuildJob) jobResponse {
	return jobResponse{
		ID:             j.ID,
		EntityType:     j.EntityType,
		Filter:         j.Filter,
		BatchSize:      j.BatchSize,
		RequestedBy:    j.RequestedBy,
		RequestedAt:    j.RequestedAt,
		State:          j.State,
		Message:        j.Message,
		StartedAt:      j.StartedAt,
		FinishedAt:     j.FinishedAt,
		AttemptCount:   j.AttemptCount,
		LastError:      j.LastError,
		EntitiesSynced: j.EntitiesSynced,
		PathsChanged:   j.PathsChanged,
		EntitiesFailed: j.EntitiesFailed,
		DurationMs:     j.DurationMs,
	}
}

// TypeChecker reports whether an entity type is known to the registry.
type TypeChecker func(entityType string) bool

// EnqueueJobHandler handles POST /rebuild
// Body: {"entityType": "...", "filter": "...", "batchSize": 100, "idempotencyKey": "..."}
func EnqueueJobHandler(store *JobStore, typeExists TypeChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			EntityType     string `json:"entityType"`
			Filter         string `json:"filter"`
			BatchSize      int    `json:"batchSize"`
			IdempotencyKey string `json:"idempotencyKey"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		if req.EntityType == "" {
			writeError(w, http.StatusBadRequest, "entityType is required")
			return
		}
		if typeExists != nil && !typeExists(req.EntityType) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown entity type %q", req.EntityType))
			return
		}

		requestedBy := r.Header.Get("X-Requested-By")
		if requestedBy == "" {
			requestedBy = "anonymous"
		}

		job, err := store.Enqueue(&RebuildJob{
			ID:             uuid.NewString(),
			EntityType:     req.EntityType,
			Filter:         req.Filter,
			BatchSize:      req.BatchSize,
			RequestedBy:    requestedBy,
			RequestedAt:    time.Now(),
			IdempotencyKey: req.IdempotencyKey,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to enqueue job: %v", err))
			return
		}

		writeJSON(w, http.StatusAccepted, jobToResponse(job))
	}
}

// GetJobHandler handles GET /rebuild/{jobId}
func GetJobHandler(store *JobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobId")
		if jobID == "" {
			writeError(w, http.StatusBadRequest, "missing job ID")
			return
		}

		job, err := store.Get(jobID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get job: %v", err))
			return
		}
		if job == nil {
			writeError(w, http.StatusNotFound, fmt.Sprintf("job %q not found", jobID))
			return
		}

		writeJSON(w, http.StatusOK, jobToResponse(job))
	}
}

// ListJobsHandler handles GET /rebuild
// Query params: entityType, state, requestedBy, pageSize, pageToken
func ListJobsHandler(store *JobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := JobListFilter{
			EntityType:  r.URL.Query().Get("entityType"),
			State:       r.URL.Query().Get("state"),
			RequestedBy: r.URL.Query().Get("requestedBy"),
		}

		pageSize := 20
		if ps := r.URL.Query().Get("pageSize"); ps != "" {
			if v, err := strconv.Atoi(ps); err == nil && v > 0 {
				pageSize = v
			}
		}
		pageToken := r.URL.Query().Get("pageToken")

		records, nextToken, total, err := store.List(filter, pageSize, pageToken)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list jobs: %v", err))
			return
		}

		jobs := make([]jobResponse, len(records))
		for i := range records {
			jobs[i] = jobToResponse(&records[i])
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"jobs":          jobs,
			"nextPageToken": nextToken,
			"totalSize":     total,
		})
	}
}

// CancelJobHandler handles POST /rebuild/{jobId}:cancel
func CancelJobHandler(store *JobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobId")
		if jobID == "" {
			writeError(w, http.StatusBadRequest, "missing job ID")
			return
		}

		if err := store.Cancel(jobID); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to cancel job: %v", err))
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "canceled"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
