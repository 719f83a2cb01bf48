package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"petnet-coordinator/internal/auth"
	"petnet-coordinator/internal/db"
	"petnet-coordinator/internal/httpx"
	"petnet-coordinator/internal/jobmgr"
)

type api struct {
	mgr *jobmgr.Manager
}

type submitRequest struct {
	MissionName    string         `json:"mission_name"`
	MissionVersion string         `json:"mission_version"`
	MainParty      string         `json:"main_party"`
	MissionParams  map[string]any `json:"mission_params"`
	JobID          string         `json:"job_id" validate:"omitempty"`
}

func (h *api) submit(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Write(w, r, httpx.BadRequest("malformed request body"))
		return
	}
	if verr := validatePayload(&req); verr != nil {
		httpx.Write(w, r, verr)
		return
	}

	jobID, err := h.mgr.Submit(r.Context(), jobmgr.SubmitParams{
		MissionName:    req.MissionName,
		MissionVersion: req.MissionVersion,
		MainParty:      req.MainParty,
		MissionParams:  req.MissionParams,
		JobID:          req.JobID,
	}, user.Name)
	if err != nil {
		httpx.Write(w, r, httpx.Internal(err))
		return
	}
	httpx.WriteJSON(w, map[string]any{"success": true, "job_id": jobID})
}

func (h *api) rerun(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := h.requireOwner(r, jobID); err != nil {
		httpx.Write(w, r, err)
		return
	}
	if err := h.mgr.Rerun(r.Context(), jobID); err != nil {
		httpx.Write(w, r, httpx.Internal(err))
		return
	}
	httpx.WriteJSON(w, map[string]any{"success": true})
}

func (h *api) cancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := h.requireOwner(r, jobID); err != nil {
		httpx.Write(w, r, err)
		return
	}
	if err := h.mgr.Cancel(r.Context(), jobID); err != nil {
		httpx.Write(w, r, httpx.Internal(err))
		return
	}
	httpx.WriteJSON(w, map[string]any{"success": true})
}

func (h *api) getJobDetails(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := h.requireOwner(r, jobID); err != nil {
		httpx.Write(w, r, err)
		return
	}
	details, err := h.mgr.GetJobDetails(r.Context(), jobID)
	if err != nil {
		httpx.Write(w, r, httpx.NotFound("job not found"))
		return
	}
	httpx.WriteJSON(w, map[string]any{"success": true, "job": details})
}

func (h *api) getJobs(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	q := r.URL.Query()
	hours, _ := strconv.Atoi(q.Get("hours"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	jobs, err := h.mgr.GetJobs(r.Context(), user.Name, jobmgr.JobsFilter{
		Status: q.Get("status"),
		Hours:  hours,
		Limit:  limit,
	})
	if err != nil {
		httpx.Write(w, r, httpx.Internal(err))
		return
	}
	httpx.WriteJSON(w, map[string]any{"success": true, "jobs": jobs})
}

type updateTaskRequest struct {
	TaskStatus string         `json:"task_status" validate:"required,oneof=RUNNING SUCCESS FAILED"`
	JobContext map[string]any `json:"job_context"`
	Errors     string         `json:"errors"`
}

func (h *api) updateTask(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	taskName := chi.URLParam(r, "taskName")

	var req updateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Write(w, r, httpx.BadRequest("malformed request body"))
		return
	}
	if verr := validatePayload(&req); verr != nil {
		httpx.Write(w, r, verr)
		return
	}

	err := h.mgr.UpdateTask(r.Context(), jobID, taskName, jobmgr.UpdateTaskParams{
		TaskStatus: req.TaskStatus,
		JobContext: req.JobContext,
		Errors:     req.Errors,
	})
	if err != nil {
		httpx.Write(w, r, httpx.Internal(err))
		return
	}
	httpx.WriteJSON(w, map[string]any{"success": true})
}

// requireOwner enforces that only the Operator who submitted a job (or an
// Admin) may rerun/cancel/inspect it.
func (h *api) requireOwner(r *http.Request, jobID string) *httpx.HTTPError {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		return httpx.Unauthorized("no authenticated user")
	}
	if user.Role == db.RoleAdmin {
		return nil
	}
	owner, err := h.mgr.JobOwner(r.Context(), jobID)
	if err != nil {
		return httpx.NotFound("job not found")
	}
	if owner != user.Name {
		return httpx.Forbidden("not the job owner")
	}
	return nil
}
