package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/fleetdiag/log-ingest/internal/domain"
	"github.com/fleetdiag/log-ingest/internal/files"
	"github.com/fleetdiag/log-ingest/internal/logs"
	"github.com/fleetdiag/log-ingest/internal/notify"
)

type handlers struct {
	files *files.Service
	logs  *logs.Service
	hub   *notify.Hub
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	}
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func fileID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file id"})
		return 0, false
	}
	return uint(id), true
}

func respondError(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrFileNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

type uploadURLRequest struct {
	Filename string `json:"filename" binding:"required"`
}

func (h *handlers) generateUploadURL(c *gin.Context) {
	var req uploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "filename is required"})
		return
	}

	ticket, err := h.files.GenerateUploadURL(c.Request.Context(), req.Filename)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, ticket)
}

func (h *handlers) uploadComplete(c *gin.Context) {
	id, ok := fileID(c)
	if !ok {
		return
	}

	if err := h.files.NotifyUploadComplete(c.Request.Context(), id); err != nil {
		if errors.Is(err, domain.ErrFileNotFound) {
			respondError(c, err)
			return
		}
		// Validation failures are recorded on the file row; report them
		// to the caller as a client error.
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"fileId": id, "status": "queued"})
}

func (h *handlers) listFiles(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	recs, err := h.files.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": recs})
}

func (h *handlers) getFile(c *gin.Context) {
	id, ok := fileID(c)
	if !ok {
		return
	}

	rec, err := h.files.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *handlers) getProgress(c *gin.Context) {
	id, ok := fileID(c)
	if !ok {
		return
	}

	p, err := h.files.GetProgress(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// streamEvents pushes live progress events for one file as SSE.
func (h *handlers) streamEvents(c *gin.Context) {
	id, ok := fileID(c)
	if !ok {
		return
	}

	ch, cancel := h.hub.Subscribe(id, 16)
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev, open := <-ch:
			if !open {
				return false
			}
			c.SSEvent("progress", ev)
			// Terminal states end the stream.
			return ev.Status != domain.StatusCompleted && ev.Status != domain.StatusFailed
		}
	})
}

func (h *handlers) deleteFile(c *gin.Context) {
	id, ok := fileID(c)
	if !ok {
		return
	}

	if err := h.files.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fileId": id, "status": "deleted"})
}

func parseTimeParam(c *gin.Context, name string) time.Time {
	v := c.Query(name)
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func logQuery(c *gin.Context) logs.Query {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	fid, _ := strconv.ParseUint(c.Query("fileId"), 10, 32)

	return logs.Query{
		Vehicle:   c.Query("vehicle"),
		Code:      c.Query("code"),
		Level:     c.Query("level"),
		Search:    c.Query("search"),
		From:      parseTimeParam(c, "from"),
		To:        parseTimeParam(c, "to"),
		FileID:    uint(fid),
		Page:      page,
		Limit:     limit,
		SortBy:    c.DefaultQuery("sortBy", "timestamp"),
		SortOrder: c.DefaultQuery("sortOrder", "desc"),
	}
}

func (h *handlers) queryLogs(c *gin.Context) {
	q := logQuery(c)

	records, err := h.logs.Find(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"logs":  records,
		"page":  q.Page,
		"limit": q.Limit,
	})
}

func (h *handlers) countLogs(c *gin.Context) {
	count, err := h.logs.Count(c.Request.Context(), logQuery(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}
