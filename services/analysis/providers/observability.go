// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package providers

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/AleutianLedger/services/llm"
)

// Package-level Prometheus metrics for ChatClient adapter operations.
// Auto-registered via promauto so no explicit registry wiring is needed.
var (
	// chatCallDuration measures the duration of ChatClient API calls.
	//
	// Labels:
	//   - provider: "cerebras", "groq", "openai", "gemini"
	//   - status: "success" or "error"
	chatCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "analysis",
			Subsystem: "chat",
			Name:      "call_duration_seconds",
			Help:      "Duration of ChatClient API calls in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "status"},
	)

	// chatCallsTotal counts the total number of ChatClient API calls.
	//
	// Labels:
	//   - provider: "cerebras", "groq", "openai", "gemini"
	//   - status: "success" or "error"
	chatCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "analysis",
			Subsystem: "chat",
			Name:      "calls_total",
			Help:      "Total number of ChatClient API calls.",
		},
		[]string{"provider", "status"},
	)

	// chatErrorsTotal counts the total ChatClient errors by type.
	//
	// Labels:
	//   - provider: "cerebras", "groq", "openai", "gemini"
	//   - error_type: "timeout", "auth", "rate_limit", "server", "nil_client", "unknown"
	chatErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "analysis",
			Subsystem: "chat",
			Name:      "errors_total",
			Help:      "Total ChatClient errors by type.",
		},
		[]string{"provider", "error_type"},
	)
)

// classifyChatError maps an error to a label-safe error type string.
//
// Description:
//
//	Inspects the error message to categorize it into one of the predefined
//	error types. Used for Prometheus labels to avoid high cardinality.
//
// Inputs:
//
//	err - The error to classify. May be nil.
//
// Outputs:
//
//	string - One of: "timeout", "auth", "rate_limit", "server",
//	         "nil_client", "unknown". Returns empty string for nil error.
//
// Thread Safety: Safe for concurrent use.
func classifyChatError(err error) string {
	if err == nil {
		return ""
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "client is nil"):
		return "nil_client"
	case strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "context canceled") ||
		strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "returned status 401") ||
		strings.Contains(msg, "returned status 403") ||
		strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "authentication") ||
		strings.Contains(msg, "api key"):
		return "auth"
	case strings.Contains(msg, "returned status 429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests"):
		return "rate_limit"
	case strings.Contains(msg, "returned status 500") ||
		strings.Contains(msg, "returned status 502") ||
		strings.Contains(msg, "returned status 503") ||
		strings.Contains(msg, "server error") ||
		strings.Contains(msg, "internal error"):
		return "server"
	default:
		return "unknown"
	}
}

// recordChatMetrics records Prometheus metrics for a completed ChatClient call.
//
// Description:
//
//	One-shot metric recording for both success and error paths.
//
// Inputs:
//
//	provider - Provider name ("cerebras", "groq", "openai", "gemini").
//	duration - How long the call took.
//	err - The error, if any. Nil means success.
//
// Thread Safety: Safe for concurrent use.
func recordChatMetrics(provider string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		errType := classifyChatError(err)
		chatErrorsTotal.WithLabelValues(provider, errType).Inc()
	}

	chatCallDuration.WithLabelValues(provider, status).Observe(duration.Seconds())
	chatCallsTotal.WithLabelValues(provider, status).Inc()
}

// instrumentedChatClient wraps a ChatClient with Prometheus metrics.
type instrumentedChatClient struct {
	inner    llm.ChatClient
	provider string
}

// Chat implements llm.ChatClient.Chat with metric recording.
func (c *instrumentedChatClient) Chat(ctx context.Context, messages []llm.Message,
	params llm.GenerationParams) (string, error) {
	start := time.Now()
	out, err := c.inner.Chat(ctx, messages, params)
	recordChatMetrics(c.provider, time.Since(start), err)
	return out, err
}

// instrumentedToolClient additionally forwards ChatWithTools. Kept as a
// separate type so wrapping never grants tool calling to a client that
// does not support it.
type instrumentedToolClient struct {
	instrumentedChatClient
	tools llm.ToolCallingClient
}

// ChatWithTools implements llm.ToolCallingClient.ChatWithTools with
// metric recording.
func (c *instrumentedToolClient) ChatWithTools(ctx context.Context, messages []llm.ChatMessage,
	params llm.GenerationParams, tools []llm.ToolDef) (*llm.ChatWithToolsResult, error) {
	start := time.Now()
	result, err := c.tools.ChatWithTools(ctx, messages, params, tools)
	recordChatMetrics(c.provider, time.Since(start), err)
	return result, err
}

// instrumentClient wraps the client so every model call records metrics.
//
// Inputs:
//   - client: The raw provider client. Nil passes through unchanged.
//   - provider: The provider label for the recorded metrics.
//
// Outputs:
//   - llm.ChatClient: The wrapped client. Implements llm.ToolCallingClient
//     exactly when the wrapped client does.
func instrumentClient(client llm.ChatClient, provider string) llm.ChatClient {
	if client == nil {
		return nil
	}
	base := instrumentedChatClient{inner: client, provider: provider}
	if tc, ok := client.(llm.ToolCallingClient); ok {
		return &instrumentedToolClient{instrumentedChatClient: base, tools: tc}
	}
	return &base
}
