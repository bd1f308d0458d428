package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pamsync/internal/model"
	"pamsync/internal/service/lifecycle"
)

type TaskHandler struct {
	tasks  TaskService
	logger *zap.Logger
}

func NewTaskHandler(tasks TaskService, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{tasks: tasks, logger: logger}
}

// ListPeriod handles GET /pam/weeks/:year/:week/tasks
func (h *TaskHandler) ListPeriod(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	year, errY := strconv.Atoi(c.Param("year"))
	week, errW := strconv.Atoi(c.Param("week"))
	if errY != nil || errW != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid period"})
		return
	}

	views, err := h.tasks.ListPeriod(c.Request.Context(), actor, model.PeriodRef{Year: year, Week: week})
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]taskResponse, 0, len(views))
	for _, v := range views {
		out = append(out, toTaskResponse(v))
	}
	c.JSON(http.StatusOK, gin.H{"tasks": out})
}

// Get handles GET /pam/tasks/:id
func (h *TaskHandler) Get(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	v, err := h.tasks.GetTask(c.Request.Context(), actor, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTaskResponse(v))
}

// Create handles POST /pam/tasks
func (h *TaskHandler) Create(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	in, err := req.toNewTask()
	if err != nil {
		writeError(c, err)
		return
	}

	v, err := h.tasks.CreateTask(c.Request.Context(), actor, in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toTaskResponse(v))
}

// Update handles PATCH /pam/tasks/:id
func (h *TaskHandler) Update(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		writeError(c, err)
		return
	}

	v, err := h.tasks.UpdateTask(c.Request.Context(), actor, id, patch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTaskResponse(v))
}

// Delete handles DELETE /pam/tasks/:id
func (h *TaskHandler) Delete(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.tasks.DeleteTask(c.Request.Context(), actor, id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Acknowledge handles POST /pam/tasks/:id/acknowledge
func (h *TaskHandler) Acknowledge(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	v, err := h.tasks.Acknowledge(c.Request.Context(), actor, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTaskResponse(v))
}

// UploadEvidence handles POST /pam/tasks/:id/evidence
func (h *TaskHandler) UploadEvidence(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req evidenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file_ref is required"})
		return
	}

	ev, err := h.tasks.UploadEvidence(c.Request.Context(), actor, id, lifecycle.EvidenceUpload{FileRef: req.FileRef, Note: req.Note})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ev)
}

// ListEvidence handles GET /pam/tasks/:id/evidence
func (h *TaskHandler) ListEvidence(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	list, err := h.tasks.ListEvidence(c.Request.Context(), actor, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"evidence": list})
}

// Approve handles POST /pam/tasks/:id/approve
func (h *TaskHandler) Approve(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	v, err := h.tasks.ApproveEvidence(c.Request.Context(), actor, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTaskResponse(v))
}

// Reject handles POST /pam/tasks/:id/reject，comment 可选
func (h *TaskHandler) Reject(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req rejectRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
	}
	v, err := h.tasks.RejectEvidence(c.Request.Context(), actor, id, req.Comment)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTaskResponse(v))
}
