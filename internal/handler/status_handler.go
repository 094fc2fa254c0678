package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/funtusov/telequery/internal/pkg/response"
	"github.com/funtusov/telequery/internal/service"
)

type StatusHandler struct {
	expansion *service.ExpansionService
}

func NewStatusHandler(expansion *service.ExpansionService) *StatusHandler {
	return &StatusHandler{expansion: expansion}
}

// Status reports expansion backlog progress; it doubles as a health check.
func (h *StatusHandler) Status(c *gin.Context) {
	stats, err := h.expansion.Stats(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{
		"status":    "ok",
		"expansion": stats,
	})
}
