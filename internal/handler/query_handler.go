package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/funtusov/telequery/internal/model"
	"github.com/funtusov/telequery/internal/pkg/errcode"
	"github.com/funtusov/telequery/internal/pkg/response"
	"github.com/funtusov/telequery/internal/service"
)

type QueryHandler struct {
	agent *service.AgentService
}

func NewQueryHandler(agent *service.AgentService) *QueryHandler {
	return &QueryHandler{agent: agent}
}

// Query answers a question over the archive. The response always carries a
// status field; even internal failures come back as HTTP 200 with
// status "error" so clients only branch on one field.
func (h *QueryHandler) Query(c *gin.Context) {
	var req model.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request body")
		return
	}
	resp := h.agent.ProcessQuery(c.Request.Context(), &req)
	c.JSON(http.StatusOK, resp)
}
