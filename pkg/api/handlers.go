package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/jdziat/keyed-jobs/pkg/core"
	"github.com/jdziat/keyed-jobs/pkg/orders"
	"github.com/jdziat/keyed-jobs/pkg/queue"
)

// Simulate handles POST /api/orders/simulate
func (s *Server) Simulate(w http.ResponseWriter, r *http.Request) {
	var req orders.SimulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.VendorID == "" {
		s.writeError(w, http.StatusBadRequest, "vendorId is required")
		return
	}

	count := req.Count
	if count == 0 {
		count = orders.DefaultCount
	}
	if count > 0 && count <= orders.MaxCount && !s.allow(count) {
		s.logger.Warn("submission rate limit exceeded", "key", req.VendorID, "count", count)
		s.writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	res, err := s.orders.Simulate(r.Context(), req)
	if err != nil {
		s.writeError(w, submitStatus(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// Report handles GET /api/orders/simulate
func (s *Server) Report(w http.ResponseWriter, r *http.Request) {
	report, err := s.orders.Report(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

// SubmitJobRequest is the body of POST /api/jobs.
type SubmitJobRequest struct {
	Type  string          `json:"type"`
	Key   string          `json:"key"`
	Args  json.RawMessage `json:"args,omitempty"`
	JobID string          `json:"jobId,omitempty"`
}

// SubmitJobResponse is returned once a job is accepted.
type SubmitJobResponse struct {
	Message string `json:"message"`
	JobID   string `json:"jobId"`
}

// SubmitJob handles POST /api/jobs
func (s *Server) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req SubmitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Type == "" || req.Key == "" {
		s.writeError(w, http.StatusBadRequest, "type and key are required")
		return
	}
	if !s.allow(1) {
		s.logger.Warn("submission rate limit exceeded", "key", req.Key, "type", req.Type)
		s.writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var opts []queue.Option
	if req.JobID != "" {
		opts = append(opts, queue.JobID(req.JobID))
	}

	var args any
	if len(req.Args) > 0 {
		args = req.Args
	}

	id, err := s.queue.Submit(r.Context(), req.Type, req.Key, args, opts...)
	if err != nil {
		s.writeError(w, submitStatus(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, SubmitJobResponse{Message: "Job submitted", JobID: id})
}

// JobStatus handles GET /api/jobs/status?id=
func (s *Server) JobStatus(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "Missing id parameter")
		return
	}

	view, err := s.queue.Status(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

// jobResponse is the full view of a job record.
type jobResponse struct {
	*core.JobRecord
	Args   json.RawMessage `json:"args,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// GetJob handles GET /api/jobs/{id}
func (s *Server) GetJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	job, err := s.queue.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job == nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, jobResponse{
		JobRecord: job,
		Args:      json.RawMessage(job.Args),
		Result:    json.RawMessage(job.Result),
	})
}

// KeyStateResponse describes the gate state of one key.
type KeyStateResponse struct {
	Key     string   `json:"key"`
	Active  string   `json:"active,omitempty"`
	Waiting []string `json:"waiting"`
}

// KeyState handles GET /api/keys/{key}
func (s *Server) KeyState(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	g := s.queue.Gate()

	active, _ := g.Active(key)
	waiting := g.Waiting(key)
	if waiting == nil {
		waiting = []string{}
	}
	s.writeJSON(w, http.StatusOK, KeyStateResponse{Key: key, Active: active, Waiting: waiting})
}

// Health handles GET /health
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
