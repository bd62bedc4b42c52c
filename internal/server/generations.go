package server

import (
	"net/http"
	"strings"

	"github.com/gorhill/cronexpr"
	"github.com/labstack/echo/v4"

	"github.com/telemacho-dev/pressgen/internal/pipeline"
	"github.com/telemacho-dev/pressgen/internal/queue/streams"
)

func (s *Server) createSubscription(c echo.Context) error {
	var req struct {
		Topic    string `json:"topic"`
		Schedule string `json:"schedule"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.Topic = strings.TrimSpace(req.Topic)
	if req.Topic == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "topic required")
	}
	if _, err := cronexpr.Parse(req.Schedule); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid schedule: "+err.Error())
	}
	sub, err := s.store.CreateSubscription(c.Request().Context(), req.Topic, req.Schedule)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]string{"id": sub.ID})
}

// requestGeneration admits one generation at a time per subscription, opens
// the record and hands it to the planner stage asynchronously.
func (s *Server) requestGeneration(c echo.Context) error {
	ctx := c.Request().Context()
	subID := c.Param("id")

	if _, ok, err := s.store.GetSubscription(ctx, subID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	} else if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "subscription not found")
	}

	active, err := s.store.HasActiveGeneration(ctx, subID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if active {
		return echo.NewHTTPError(http.StatusConflict, "a generation is already in progress for this subscription")
	}

	gen, err := s.store.CreateGeneration(ctx, subID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	req := streams.StageRequest{GenerationID: gen.ID, Stage: pipeline.StagePlan}
	if _, err := s.publisher.PublishStageRequest(ctx, s.stream, req); err != nil {
		// The pending record stays behind for the sweeper to pick up.
		s.logger.Printf("generation %s: publish plan handoff: %v", gen.ID, err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"generation_id": gen.ID})
}

func (s *Server) getGeneration(c echo.Context) error {
	gen, ok, err := s.store.GetGeneration(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "generation not found")
	}
	return c.JSON(http.StatusOK, gen)
}

// runStage invokes one stage synchronously by name.
func (s *Server) runStage(c echo.Context) error {
	stage := c.Param("stage")
	if !pipeline.KnownStage(stage) {
		return echo.NewHTTPError(http.StatusNotFound, "unknown stage")
	}
	var req struct {
		GenerationRecordID string `json:"generation_record_id"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.GenerationRecordID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "generation_record_id required")
	}
	if err := s.runner.Run(c.Request().Context(), stage, req.GenerationRecordID); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{
			"status": "failed",
			"error":  err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
