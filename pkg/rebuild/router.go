package rebuild

import (
	"github.com/go-chi/chi/v5"
)

// Router creates a chi.Router for the bulk rebuild job API.
func Router(store *JobStore, typeExists TypeChecker) chi.Router {
	r := chi.NewRouter()

	r.Post("/rebuild", EnqueueJobHandler(store, typeExists))
	r.Get("/rebuild", ListJobsHandler(store))
	r.Get("/rebuild/{jobId}", GetJobHandler(store))
	r.Post("/rebuild/{jobId}:cancel", CancelJobHandler(store))

	return r
}
