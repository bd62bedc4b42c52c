package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/telemacho-dev/pressgen/internal/pipeline"
	"github.com/telemacho-dev/pressgen/internal/queue/streams"
	"github.com/telemacho-dev/pressgen/internal/telemetry"
)

// GenerationStore is the persistence surface the HTTP layer consumes.
type GenerationStore interface {
	CreateSubscription(ctx context.Context, topic, scheduleCron string) (pipeline.Subscription, error)
	GetSubscription(ctx context.Context, id string) (pipeline.Subscription, bool, error)
	CreateGeneration(ctx context.Context, subscriptionID string) (pipeline.Generation, error)
	GetGeneration(ctx context.Context, id string) (pipeline.Generation, bool, error)
	HasActiveGeneration(ctx context.Context, subscriptionID string) (bool, error)
}

// StageRunner executes one pipeline stage synchronously.
type StageRunner interface {
	Run(ctx context.Context, stage, generationID string) error
}

// StagePublisher enqueues asynchronous stage work.
type StagePublisher interface {
	PublishStageRequest(ctx context.Context, stream string, req streams.StageRequest, opts ...streams.PublishOption) (string, error)
}

// Server exposes the generation trigger surface and record reads.
type Server struct {
	echo      *echo.Echo
	store     GenerationStore
	runner    StageRunner
	publisher StagePublisher
	stream    string
	logger    *log.Logger
}

func New(st GenerationStore, runner StageRunner, publisher StagePublisher, stream string, metrics *telemetry.Metrics) *Server {
	logger := log.New(log.Writer(), "[SERVER] ", log.LstdFlags)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		logger.Printf("%d %s %s: %v", code, req.Method, req.URL.Path, err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}

	s := &Server{
		echo:      e,
		store:     st,
		runner:    runner,
		publisher: publisher,
		stream:    stream,
		logger:    logger,
	}

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	}

	api := e.Group("/api")
	api.POST("/subscriptions", s.createSubscription)
	api.POST("/subscriptions/:id/generations", s.requestGeneration)
	api.GET("/generations/:id", s.getGeneration)

	e.POST("/internal/stages/:stage", s.runStage)

	return s
}

// Start serves until the listener fails or is shut down.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the routing tree, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }
