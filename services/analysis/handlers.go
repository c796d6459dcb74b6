// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Handlers holds the HTTP handlers for the analysis service.
type Handlers struct {
	svc *Service
}

// NewHandlers creates the handler set for a service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// ErrorResponse is the standard error body for all endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// AskRequest is the request body for POST /ask.
type AskRequest struct {
	// Text is the natural-language question.
	Text string `json:"text" binding:"required"`

	// HouseholdID scopes every query the agent runs.
	HouseholdID string `json:"household_id" binding:"required"`

	// UserID identifies the asking user for the audit log. Optional.
	UserID string `json:"user_id"`
}

// getOrCreateRequestID returns the inbound X-Request-ID header, or a fresh
// UUID when the caller did not send one. The ID is echoed on the response.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}

// HandleAsk answers a natural-language analytics question.
//
// Description:
//
//	Binds the question, runs the full agent pipeline, and returns the
//	sanitized response. Agent failures are reported inside the response
//	body with a reduced confidence score, not as HTTP errors; only
//	malformed requests get a 4xx.
//
// Request Body:
//
//	{"text": "how much did we spend on food last month?",
//	 "household_id": "…", "user_id": "…"}
//
// Response:
//
//	200 OK: AskResponse
//	400 Bad Request: Missing text or household_id
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleAsk(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleAsk")

	// Correlate with the distributed trace when the otelgin middleware
	// extracted one from the inbound headers.
	if spanCtx := oteltrace.SpanFromContext(c.Request.Context()).SpanContext(); spanCtx.HasTraceID() {
		logger = logger.With("trace_id", spanCtx.TraceID().String())
	}

	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "text and household_id are required",
			Code:  "INVALID_REQUEST",
		})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "text must not be blank",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	start := time.Now()
	response := h.svc.Ask(c.Request.Context(), req.HouseholdID, req.UserID, req.Text)
	recordAskMetrics(time.Since(start), response.Confidence)

	logger.Info("analysis question answered",
		slog.Float64("confidence", response.Confidence),
		slog.Int("trace_steps", len(response.ToolTrace)),
		slog.Duration("duration", time.Since(start)),
	)
	c.JSON(http.StatusOK, response)
}

// HandleHealth is a liveness check.
//
// Response:
//
//	200 OK: {"status": "healthy"}
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// HandleReady reports whether the service can reach its database.
//
// Response:
//
//	200 OK: {"status": "ready"}
//	503 Service Unavailable: {"status": "not_ready", "error": "..."}
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleReady(c *gin.Context) {
	if err := h.svc.Store().DB().PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
