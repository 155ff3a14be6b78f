package api

import (
	"github.com/gin-gonic/gin"

	"github.com/fleetdiag/log-ingest/internal/files"
	"github.com/fleetdiag/log-ingest/internal/logs"
	"github.com/fleetdiag/log-ingest/internal/notify"
)

// NewRouter builds the HTTP API.
func NewRouter(fileSvc *files.Service, logSvc *logs.Service, hub *notify.Hub) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	h := &handlers{files: fileSvc, logs: logSvc, hub: hub}

	api := r.Group("/api")
	{
		api.GET("/health", h.health)

		f := api.Group("/files")
		{
			f.POST("/upload-url", h.generateUploadURL)
			f.POST("/:id/upload-complete", h.uploadComplete)
			f.GET("", h.listFiles)
			f.GET("/:id", h.getFile)
			f.GET("/:id/progress", h.getProgress)
			f.GET("/:id/events", h.streamEvents)
			f.DELETE("/:id", h.deleteFile)
		}

		l := api.Group("/logs")
		{
			l.GET("", h.queryLogs)
			l.GET("/count", h.countLogs)
		}
	}

	return r
}
