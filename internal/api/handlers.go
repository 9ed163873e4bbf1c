package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"NewsAggregator/internal/domain"
	"NewsAggregator/internal/ports"
	"NewsAggregator/internal/usecase"
)

// MaxBackfillDays bounds the backfill window accepted over HTTP.
const MaxBackfillDays = 30

type handler struct {
	deps   Deps
	logger *slog.Logger
}

type runRequest struct {
	BackfillDays *int `json:"backfill_days"`
}

type runResponse struct {
	Status  string                `json:"status"`
	RunID   string                `json:"run_id,omitempty"`
	Message string                `json:"message"`
	Stats   *usecase.PayloadStats `json:"stats"`
}

type itemsResponse struct {
	Items []usecase.PublishedItem `json:"items"`
	Count int                     `json:"count"`
	Total int                     `json:"total"`
}

type runView struct {
	RunID            string     `json:"run_id"`
	RunDate          time.Time  `json:"run_date"`
	Status           string     `json:"status"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at"`
	DurationSeconds  *float64   `json:"duration_seconds"`
	ItemsCollected   int        `json:"items_collected"`
	ItemsProcessed   int        `json:"items_processed"`
	ItemsPersisted   int        `json:"items_persisted"`
	CollectionErrors int        `json:"collection_errors"`
	ErrorMessage     string     `json:"error_message,omitempty"`
}

func (h *handler) health(c *gin.Context) {
	status, code, dbOK := "healthy", http.StatusOK, true
	if h.deps.Health != nil {
		if err := h.deps.Health(c.Request.Context()); err != nil {
			h.logger.Warn("health check failed", "error", err)
			status, code, dbOK = "unhealthy", http.StatusServiceUnavailable, false
		}
	}
	c.JSON(code, gin.H{
		"status":    status,
		"database":  dbOK,
		"timestamp": time.Now().UTC(),
	})
}

func (h *handler) triggerRun(c *gin.Context) {
	if h.deps.Runner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "pipeline is not configured"})
		return
	}

	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	days := h.deps.DefaultBackfillDays
	if req.BackfillDays != nil {
		days = *req.BackfillDays
	}
	if days < 0 || days > MaxBackfillDays {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("backfill_days must be between 0 and %d", MaxBackfillDays)})
		return
	}

	h.logger.Info("pipeline run triggered", "backfill_days", days)

	// The run outlives a dropped client connection.
	state, err := h.deps.Runner.Run(context.WithoutCancel(c.Request.Context()), days)
	if err != nil {
		resp := runResponse{Status: string(domain.RunStatusFailed), Message: "Pipeline failed: " + err.Error()}
		if state != nil {
			resp.RunID = state.RunID
		}
		c.JSON(http.StatusInternalServerError, resp)
		return
	}

	resp := runResponse{
		Status: string(state.Status),
		RunID:  state.RunID,
	}
	if state.Payload != nil {
		stats := state.Payload.Stats
		resp.Stats = &stats
		resp.Message = fmt.Sprintf("Pipeline completed. Processed %d items.", stats.TotalItems)
	} else {
		resp.Message = "Pipeline completed."
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handler) listItems(c *gin.Context) {
	if h.deps.Items == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "item store is not configured"})
		return
	}

	filter, err := parseItemFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	items, err := h.deps.Items.ListItems(ctx, filter)
	if err != nil {
		h.logger.Error("list items failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch items"})
		return
	}
	total, err := h.deps.Items.CountItems(ctx, filter)
	if err != nil {
		h.logger.Error("count items failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch items"})
		return
	}

	resp := itemsResponse{Items: make([]usecase.PublishedItem, 0, len(items)), Total: total}
	for _, item := range items {
		resp.Items = append(resp.Items, usecase.ToPublished(item))
	}
	resp.Count = len(resp.Items)
	c.JSON(http.StatusOK, resp)
}

func (h *handler) getItem(c *gin.Context) {
	if h.deps.Items == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "item store is not configured"})
		return
	}

	id := c.Param("id")
	item, err := h.deps.Items.GetItem(c.Request.Context(), id)
	if errors.Is(err, domain.ErrItemNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
		return
	}
	if err != nil {
		h.logger.Error("get item failed", "item_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch item"})
		return
	}
	c.JSON(http.StatusOK, usecase.ToPublished(item))
}

func (h *handler) listRuns(c *gin.Context) {
	if h.deps.Runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run store is not configured"})
		return
	}

	limit, err := intQuery(c, "limit", ports.DefaultItemLimit)
	if err != nil || limit < 1 || limit > ports.MaxItemLimit {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("limit must be between 1 and %d", ports.MaxItemLimit)})
		return
	}

	runs, err := h.deps.Runs.ListRuns(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("list runs failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch runs"})
		return
	}

	views := make([]runView, 0, len(runs))
	for _, run := range runs {
		views = append(views, toRunView(run))
	}
	c.JSON(http.StatusOK, gin.H{"runs": views, "count": len(views)})
}

func (h *handler) topics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"topics": domain.TopicCategories})
}

func (h *handler) articleTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"article_types": domain.ArticleTypes})
}

func parseItemFilter(c *gin.Context) (ports.ItemFilter, error) {
	var filter ports.ItemFilter

	limit, err := intQuery(c, "limit", ports.DefaultItemLimit)
	if err != nil || limit < 1 || limit > ports.MaxItemLimit {
		return filter, fmt.Errorf("limit must be between 1 and %d", ports.MaxItemLimit)
	}
	filter.Limit = limit

	offset, err := intQuery(c, "offset", 0)
	if err != nil || offset < 0 {
		return filter, errors.New("offset must be a non-negative integer")
	}
	filter.Offset = offset

	if raw := c.Query("topic"); raw != "" {
		topic, ok := domain.CanonicalTopic(raw)
		if !ok {
			return filter, fmt.Errorf("unknown topic %q", raw)
		}
		filter.Topic = topic
	}

	if raw := c.Query("article_type"); raw != "" {
		kind, ok := domain.ParseArticleType(raw)
		if !ok {
			return filter, fmt.Errorf("unknown article type %q", raw)
		}
		filter.ArticleType = kind
	}

	if raw := c.Query("min_relevance"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 1 {
			return filter, errors.New("min_relevance must be between 0 and 1")
		}
		filter.MinRelevance = v
	}
	return filter, nil
}

func intQuery(c *gin.Context, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func toRunView(run domain.PipelineRun) runView {
	view := runView{
		RunID:            run.RunID,
		RunDate:          run.RunDate.UTC(),
		Status:           string(run.Status),
		StartedAt:        run.StartedAt.UTC(),
		CompletedAt:      run.CompletedAt,
		ItemsCollected:   run.Counters.ItemsCollected,
		ItemsProcessed:   run.Counters.ItemsProcessed,
		ItemsPersisted:   run.Counters.ItemsPersisted,
		CollectionErrors: run.Counters.CollectionErrors,
		ErrorMessage:     run.ErrorMessage,
	}
	if run.CompletedAt != nil {
		seconds := run.Duration().Seconds()
		view.DurationSeconds = &seconds
	}
	return view
}
