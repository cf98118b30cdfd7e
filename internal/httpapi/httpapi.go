// Package httpapi exposes HAL's logical request surface (spec §6) over
// plain net/http + encoding/json, matching the teacher's own preference for
// a ConnectRPC-free health endpoint (cmd/worker/cmd/serve.go's "/health")
// generalized into a full JSON API since no .proto definitions exist in
// this repository to generate an RPC service from.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nexar/hal/internal/admission"
	"github.com/nexar/hal/internal/job"
	"github.com/nexar/hal/internal/provider"
	"github.com/nexar/hal/internal/scheduler"
	"github.com/nexar/hal/internal/statustracker"
	"github.com/nexar/hal/internal/store"
)

// Server wires the admission/status/provider layers to HTTP handlers.
type Server struct {
	admitter *admission.Admitter
	tracker  *statustracker.Tracker
	store    store.Store
	queues   *scheduler.Queues
}

func New(admitter *admission.Admitter, tracker *statustracker.Tracker, st store.Store, queues *scheduler.Queues) *Server {
	return &Server{admitter: admitter, tracker: tracker, store: st, queues: queues}
}

// Routes returns the configured mux, matching the teacher's pattern of one
// handler registered per logical operation plus a health check.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/submit", s.handleSubmit)
	mux.HandleFunc("/submit_code", s.handleSubmitCode)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/result", s.handleResult)
	mux.HandleFunc("/cancel", s.handleCancel)
	mux.HandleFunc("/list_scheduled", s.handleListScheduled)
	mux.HandleFunc("/providers", s.handleProviders)
	mux.HandleFunc("/devices", s.handleDevices)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// submitRequest is the wire shape for both POST submit and POST submit_code;
// the latter sets IsSourceCode/SourceCode instead of Task.
type submitRequest struct {
	Task               any        `json:"task,omitempty"`
	SourceCode         string     `json:"source_code,omitempty"`
	Provider           string     `json:"provider"`
	Device             string     `json:"device"`
	Shots              int        `json:"shots"`
	Priority           string     `json:"priority,omitempty"`
	Strategy           string     `json:"strategy,omitempty"`
	ScheduledTime      *time.Time `json:"scheduled_time,omitempty"`
	QueueIfUnavailable bool       `json:"queue_if_unavailable,omitempty"`
	UserID             string     `json:"user_id,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	s.submit(w, r, false)
}

func (s *Server) handleSubmitCode(w http.ResponseWriter, r *http.Request) {
	s.submit(w, r, true)
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, sourceCode bool) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "INVALID_REQUEST", "POST required")
		return
	}
	var body submitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "malformed JSON body: "+err.Error())
		return
	}

	req := job.Request{
		Task:               body.Task,
		ProviderName:       body.Provider,
		DeviceName:         body.Device,
		Shots:              body.Shots,
		Priority:           job.Priority(body.Priority),
		Strategy:           job.Strategy(body.Strategy),
		UserID:             body.UserID,
		ScheduledTime:      body.ScheduledTime,
		QueueIfUnavailable: body.QueueIfUnavailable,
		IsSourceCode:       sourceCode,
		SourceCode:         body.SourceCode,
	}
	if req.Priority == "" {
		req.Priority = job.PriorityStandard
	}

	jobID, err := s.admitter.Submit(r.Context(), req)
	if err != nil {
		writeAdmissionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "job_id is required")
		return
	}
	status, err := s.tracker.GetStatus(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID, "status": string(status)})
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "job_id is required")
		return
	}
	result, err := s.tracker.GetResult(r.Context(), jobID)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"job_id": jobID, "ready": false, "reason": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job_id": jobID, "ready": true, "result": result})
}

type cancelRequest struct {
	JobID string `json:"job_id"`
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "INVALID_REQUEST", "POST required")
		return
	}
	var body cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.JobID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "job_id is required")
		return
	}

	accepted, err := s.cancel(r.Context(), body.JobID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	if !accepted {
		writeError(w, http.StatusConflict, "CONFLICT", "job is not cancellable in its current state")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": body.JobID, "status": string(job.StatusCancelled)})
}

// cancel implements the cancel(job_id) edge cases from spec §4.4: removes a
// SCHEDULED or QUEUED(/QUEUED_UNAVAILABLE) job from its index/queue and
// transitions it to CANCELLED; a SUBMITTED job is cancelled best-effort via
// the provider. Terminal jobs are not cancellable. The CANCELLED status and
// an audit row are persisted; no lifecycle event is published.
func (s *Server) cancel(ctx context.Context, jobID string) (bool, error) {
	sub, ok, err := s.store.Get(ctx, jobID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, errors.New("job not found")
	}
	if !job.CanTransition(sub.Status, job.StatusCancelled) {
		return false, nil
	}

	switch sub.Status {
	case job.StatusScheduled:
		_ = s.store.RemoveScheduled(ctx, jobID)
	case job.StatusQueued, job.StatusQueuedUnavailable:
		s.queues.Remove(job.BatchKey{Provider: sub.Request.ProviderName, Device: sub.Request.DeviceName, Shots: sub.Request.Shots}, jobID)
	case job.StatusSubmitted:
		if prov, err := provider.New(ctx, provider.Config{Name: sub.Request.ProviderName}); err == nil {
			_ = prov.CancelJob(ctx, sub.ProviderJobID)
		}
	}

	from := sub.Status
	sub.Status = job.StatusCancelled
	sub.UpdatedAt = time.Now().UTC()
	if err := s.store.Put(ctx, sub); err != nil {
		return false, err
	}
	if err := s.store.AppendTransition(ctx, job.StateTransition{
		JobID:        sub.ID,
		TransitionID: uuid.New().String(),
		FromStatus:   string(from),
		ToStatus:     string(job.StatusCancelled),
		At:           sub.UpdatedAt,
		Reason:       "cancelled by caller",
	}); err != nil {
		log.Printf("httpapi: append transition for %s: %v", sub.ID, err)
	}
	return true, nil
}

type scheduledEntry struct {
	JobID         string    `json:"job_id"`
	Device        string    `json:"device"`
	ScheduledTime time.Time `json:"scheduled_time"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

func (s *Server) handleListScheduled(w http.ResponseWriter, r *http.Request) {
	all, err := s.store.LoadAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	out := make([]scheduledEntry, 0)
	for _, sub := range all {
		if sub.Status != job.StatusScheduled || sub.Request.ScheduledTime == nil {
			continue
		}
		out = append(out, scheduledEntry{
			JobID:         sub.ID,
			Device:        sub.Request.DeviceName,
			ScheduledTime: *sub.Request.ScheduledTime,
			Status:        string(sub.Status),
			CreatedAt:     sub.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, provider.RegisteredNames())
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("provider")
	if name == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "provider is required")
		return
	}
	prov, err := provider.New(r.Context(), provider.Config{Name: name})
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	devices, err := prov.ListDevices(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

func writeAdmissionError(w http.ResponseWriter, err error) {
	var admissionErr *admission.Error
	if errors.As(err, &admissionErr) {
		status := http.StatusBadRequest
		switch admissionErr.Code {
		case admission.ErrBackpressure, admission.ErrProviderUnavailable:
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, errorCodeForAdmission(admissionErr.Code), admissionErr.Message)
		return
	}
	writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
}

func errorCodeForAdmission(code string) string {
	switch code {
	case admission.ErrBackpressure, admission.ErrProviderUnavailable:
		return "UNAVAILABLE"
	default:
		return "INVALID_REQUEST"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error_code": code, "message": message})
}
