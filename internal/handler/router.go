package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/funtusov/telequery/internal/middleware"
)

type RouterDeps struct {
	Query           *QueryHandler
	Status          *StatusHandler
	CORSAllowlist   []string
	RateLimitWindow time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.Use(middleware.CORS(deps.CORSAllowlist))

	queryGroup := api.Group("")
	if deps.RateLimitWindow > 0 {
		queryGroup.Use(middleware.RateLimit(deps.RateLimitWindow))
	}
	queryGroup.POST("/query", deps.Query.Query)

	api.GET("/status", deps.Status.Status)
}
