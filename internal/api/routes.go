package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"callscribe/internal/ingest"
	"callscribe/internal/query"
)

// Handlers holds the pipeline and query service the routes dispatch to.
// Both are constructed once at startup and injected here.
type Handlers struct {
	pipeline *ingest.Pipeline
	queries  *query.Service
	log      *logrus.Entry
}

func NewHandlers(pipeline *ingest.Pipeline, queries *query.Service, log *logrus.Entry) *Handlers {
	return &Handlers{pipeline: pipeline, queries: queries, log: log}
}

func RegisterRoutes(r *gin.Engine, h *Handlers) {
	// Health check
	r.GET("/health", h.healthCheck)

	calls := r.Group("/api/calls")
	{
		calls.POST("/upload", h.uploadCall)
		calls.GET("", h.listCalls)
		calls.GET("/tags", h.listTags)
		calls.GET("/:id", h.getCall)
		calls.GET("/:id/audio", h.getCallAudio)
	}
}
