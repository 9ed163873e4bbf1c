package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"NewsAggregator/internal/ports"
	"NewsAggregator/internal/usecase"
)

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context, backfillDays int) (*usecase.RunState, error)
}

// Deps wires the HTTP surface. Health and Metrics are optional.
type Deps struct {
	Runner              Runner
	Items               ports.ItemReader
	Runs                ports.RunReader
	Health              func(ctx context.Context) error
	Metrics             http.Handler
	DefaultBackfillDays int
	Logger              *slog.Logger
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(deps Deps) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "http")

	router := gin.New()
	router.Use(requestLogger(log))
	router.Use(gin.Recovery())

	h := &handler{deps: deps, logger: log}

	router.GET("/health", h.health)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	v1 := router.Group("/api/v1")
	v1.POST("/run", h.triggerRun)
	v1.GET("/items", h.listItems)
	v1.GET("/items/:id", h.getItem)
	v1.GET("/runs", h.listRuns)
	v1.GET("/topics", h.topics)
	v1.GET("/article-types", h.articleTypes)

	return router
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		log.Info("http request",
			"method", method,
			"path", path,
			"status_code", c.Writer.Status(),
			"client_ip", c.ClientIP(),
			"duration", time.Since(start),
		)
	}
}
