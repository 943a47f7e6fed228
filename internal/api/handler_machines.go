package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"laundry-smart-queue/internal/auth"
	"laundry-smart-queue/internal/laundry"
	"laundry-smart-queue/internal/model"
)

// machineResponse adds server-derived fields to a machine.
type machineResponse struct {
	model.Machine
	RemainingSeconds int64 `json:"remaining_seconds"`
}

func newMachineResponse(m model.Machine, now time.Time) machineResponse {
	return machineResponse{
		Machine:          m,
		RemainingSeconds: int64(m.Remaining(now).Seconds()),
	}
}

func machineResponses(machines []model.Machine, now time.Time) []machineResponse {
	out := make([]machineResponse, len(machines))
	for i, m := range machines {
		out[i] = newMachineResponse(m, now)
	}
	return out
}

// ListPrograms handles GET /api/programs?type=washer|dryer.
func (h *Handler) ListPrograms(c *gin.Context) {
	t := model.MachineType(c.Query("type"))
	if t != "" && !t.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type must be washer or dryer", "field": "type"})
		return
	}
	c.JSON(http.StatusOK, h.svc.Programs(t))
}

// ListMachines handles GET /api/machines.
func (h *Handler) ListMachines(c *gin.Context) {
	machines, err := h.svc.ListMachines(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, machineResponses(machines, time.Now()))
}

// GetMachine handles GET /api/machines/:id.
func (h *Handler) GetMachine(c *gin.Context) {
	m, err := h.svc.GetMachine(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newMachineResponse(m, time.Now()))
}

type startRequest struct {
	ProgramID  string `json:"program_id"`
	UserName   string `json:"user_name"`
	RoomNumber string `json:"room_number"`
}

// StartProgram handles POST /api/machines/:id/start.
func (h *Handler) StartProgram(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	sess, _ := auth.SessionFrom(c)

	m, err := h.svc.StartProgram(c.Request.Context(), sess, c.Param("id"), laundry.StartRequest{
		ProgramID:  req.ProgramID,
		UserName:   req.UserName,
		RoomNumber: req.RoomNumber,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newMachineResponse(m, time.Now()))
}

// StopProgram handles POST /api/machines/:id/stop.
func (h *Handler) StopProgram(c *gin.Context) {
	sess, _ := auth.SessionFrom(c)
	m, err := h.svc.StopProgram(c.Request.Context(), sess, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newMachineResponse(m, time.Now()))
}
