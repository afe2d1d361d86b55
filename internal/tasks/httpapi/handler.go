// Package httpapi exposes the task lifecycle over a JSON REST surface.
// Every mutation goes through the engine's guarded transitions, so a stale
// client can never force an invalid state change.
package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	apperrors "github.com/banuni/haxor-mk2/internal/errors"
	"github.com/banuni/haxor-mk2/internal/storage"
	tasksdomain "github.com/banuni/haxor-mk2/internal/tasks/domain"
)

// Engine is the task lifecycle surface the REST handlers drive.
type Engine interface {
	Create(ctx context.Context, input tasksdomain.CreateTaskInput) (tasksdomain.Task, error)
	ResolveAnalysis(ctx context.Context, id string, input tasksdomain.AnalysisInput) (tasksdomain.Task, error)
	StartTask(ctx context.Context, id string) (tasksdomain.Task, error)
	Resolve(ctx context.Context, id string, outcome tasksdomain.TaskStatus) (tasksdomain.Task, error)
	Abort(ctx context.Context, id string) (tasksdomain.Task, error)
	Archive(ctx context.Context, id string) (tasksdomain.Task, error)
	Get(ctx context.Context, id string) (tasksdomain.Task, error)
	List(ctx context.Context, filter storage.TaskFilter) ([]tasksdomain.Task, error)
}

// Handler serves the /api/tasks routes.
type Handler struct {
	engine Engine
}

// NewHandler creates the REST handler over the given engine.
func NewHandler(engine Engine) *Handler {
	return &Handler{engine: engine}
}

// Register mounts the task routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/tasks", h.listTasks)
	mux.HandleFunc("POST /api/tasks", h.createTask)
	mux.HandleFunc("GET /api/tasks/{id}", h.getTask)
	mux.HandleFunc("POST /api/tasks/{id}/analysis", h.resolveAnalysis)
	mux.HandleFunc("POST /api/tasks/{id}/start", h.startTask)
	mux.HandleFunc("POST /api/tasks/{id}/resolve", h.resolveTask)
	mux.HandleFunc("POST /api/tasks/{id}/abort", h.abortTask)
	mux.HandleFunc("POST /api/tasks/{id}/archive", h.archiveTask)
}

type createTaskRequest struct {
	Goal          string `json:"goal"`
	TargetName    string `json:"target_name"`
	AlgorithmName string `json:"algorithm_name"`
	TaskType      string `json:"task_type"`
}

type resolveAnalysisRequest struct {
	DistanceMeters float64 `json:"distance_meters"`
	Defense        string  `json:"defense"`
	Size           string  `json:"size"`
}

type resolveTaskRequest struct {
	Outcome string `json:"outcome"`
}

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	filter := storage.TaskFilter{
		IncludeAborted:  r.URL.Query().Get("includeAborted") == "true",
		IncludeArchived: r.URL.Query().Get("includeArchived") == "true",
	}
	tasks, err := h.engine.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if tasks == nil {
		tasks = []tasksdomain.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *Handler) createTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if !decodeBody(w, r, &req) {
		return
	}
	task, err := h.engine.Create(r.Context(), tasksdomain.CreateTaskInput{
		Goal:          req.Goal,
		TargetName:    req.TargetName,
		AlgorithmName: req.AlgorithmName,
		Type:          tasksdomain.TaskType(req.TaskType),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (h *Handler) getTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.engine.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *Handler) resolveAnalysis(w http.ResponseWriter, r *http.Request) {
	var req resolveAnalysisRequest
	if !decodeBody(w, r, &req) {
		return
	}
	task, err := h.engine.ResolveAnalysis(r.Context(), r.PathValue("id"), tasksdomain.AnalysisInput{
		DistanceMeters: req.DistanceMeters,
		Defense:        tasksdomain.DefenseLevel(req.Defense),
		Size:           tasksdomain.TargetSize(req.Size),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *Handler) startTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.engine.StartTask(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *Handler) resolveTask(w http.ResponseWriter, r *http.Request) {
	var req resolveTaskRequest
	if !decodeBody(w, r, &req) {
		return
	}
	task, err := h.engine.Resolve(r.Context(), r.PathValue("id"), tasksdomain.TaskStatus(req.Outcome))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *Handler) abortTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.engine.Abort(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *Handler) archiveTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.engine.Archive(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		writeError(w, apperrors.Wrap(apperrors.CodeDecodeError, "invalid request body", err))
		return false
	}
	return true
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, apperrors.HTTPStatus(err), errorBody{
		Error: errorDetail{
			Code:    string(apperrors.GetCode(err)),
			Message: err.Error(),
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("tasks api: encode response: %v", err)
	}
}
