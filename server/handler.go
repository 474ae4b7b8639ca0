// Package server exposes stored segments over a JSON HTTP API.
package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robertmeta/ainews/model"
	"github.com/robertmeta/ainews/store"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Store is the read side of the segment store.
type Store interface {
	GetSegments(opts store.QueryOptions) ([]*model.Segment, error)
	GetSegment(id int64) (*model.Segment, error)
	TopicCounts(since *int64) ([]model.TopicCount, error)
	GetAllSources() ([]*model.Source, error)
}

// Handler serves the segment feed API.
type Handler struct {
	store     Store
	logger    *slog.Logger
	scheduler interface {
		NextRun() time.Time
	}
}

// NewHandler creates a Handler. A nil logger falls back to slog.Default().
func NewHandler(st Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: st, logger: logger}
}

// SetScheduler lets the status endpoint report the next ingestion run.
func (h *Handler) SetScheduler(scheduler interface{ NextRun() time.Time }) {
	h.scheduler = scheduler
}

// RegisterRoutes mounts the API on r.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", h.Health)

	api := r.Group("/api")
	{
		api.GET("/segments", h.ListSegments)
		api.GET("/segments/:id", h.GetSegment)
		api.GET("/topics", h.ListTopics)
		api.GET("/sources", h.ListSources)
		api.GET("/periods", h.ListPeriods)
		api.GET("/status", h.GetStatus)
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListSegments handles GET /api/segments?type=&topic=&company=&since=&limit=&offset=
func (h *Handler) ListSegments(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
		return
	}

	opts, err := store.BuildQueryOptions(limit, offset, c.Query("since"), c.Query("type"), c.Query("topic"), c.Query("company"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	segments, err := h.store.GetSegments(opts)
	if err != nil {
		h.internalError(c, err)
		return
	}
	if segments == nil {
		segments = []*model.Segment{}
	}

	c.JSON(http.StatusOK, gin.H{
		"count":    len(segments),
		"limit":    opts.Limit,
		"offset":   opts.Offset,
		"segments": segments,
	})
}

func (h *Handler) GetSegment(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid segment id"})
		return
	}

	segment, err := h.store.GetSegment(id)
	if errors.Is(err, store.ErrSegmentNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, segment)
}

// ListTopics handles GET /api/topics?since= and returns per-topic counts.
func (h *Handler) ListTopics(c *gin.Context) {
	since, err := store.SinceToUnixTime(c.Query("since"), time.Now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	counts, err := h.store.TopicCounts(since)
	if err != nil {
		h.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"topics": counts})
}

func (h *Handler) ListSources(c *gin.Context) {
	sources, err := h.store.GetAllSources()
	if err != nil {
		h.internalError(c, err)
		return
	}
	if sources == nil {
		sources = []*model.Source{}
	}
	c.JSON(http.StatusOK, sources)
}

func (h *Handler) ListPeriods(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"periods": store.Periods})
}

func (h *Handler) GetStatus(c *gin.Context) {
	status := gin.H{"scheduled": h.scheduler != nil}
	if h.scheduler != nil {
		if next := h.scheduler.NextRun(); !next.IsZero() {
			status["next_run"] = next
		}
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) internalError(c *gin.Context, err error) {
	h.logger.Error("request failed", "path", c.Request.URL.Path, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
