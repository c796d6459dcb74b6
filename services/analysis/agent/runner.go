// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/AleutianLedger/services/llm"
)

// Strategy names select how the runner orchestrates the model.
const (
	StrategyToolLoop      = "tool_loop"
	StrategySequential    = "sequential"
	StrategyDeterministic = "deterministic"
)

// Runner executes the bounded SQL authoring loop for one provider.
//
// # Thread Safety
//
// Safe for concurrent use; all per-run state lives on the stack.
type Runner struct {
	provider   string
	strategy   string
	client     llm.ChatClient
	toolClient llm.ToolCallingClient
	deps       Deps
}

// NewRunner builds a Runner.
//
// # Inputs
//
//   - provider: Provider name for logging and trace labels.
//   - strategy: One of the Strategy constants. Unknown values degrade to
//     sequential, or deterministic when no client is available.
//   - client: Chat client for generate/fix/summarize calls. May be nil,
//     which forces the deterministic strategy.
//   - deps: Injected validator, executor, fallback and answer builders.
func NewRunner(provider, strategy string, client llm.ChatClient, deps Deps) *Runner {
	r := &Runner{
		provider: strings.ToLower(strings.TrimSpace(provider)),
		strategy: strings.ToLower(strings.TrimSpace(strategy)),
		client:   client,
		deps:     deps,
	}
	if tc, ok := client.(llm.ToolCallingClient); ok {
		r.toolClient = tc
	}
	if client == nil {
		r.strategy = StrategyDeterministic
	}
	return r
}

// Run answers one question.
//
// # Description
//
//	Dispatches on strategy. The tool loop hands SQL authoring to the
//	model through a run_sql_query tool and falls back to the sequential
//	loop when the model never produces an executed statement. The
//	sequential loop alternates generate and fix prompts. Deterministic
//	skips the model entirely and runs the rule-built query.
func (r *Runner) Run(ctx context.Context, question string) Result {
	switch r.strategy {
	case StrategyDeterministic:
		return r.runDeterministic(ctx, question)
	case StrategyToolLoop:
		if r.toolClient != nil {
			result := r.runToolLoop(ctx, question)
			if result.Success {
				return result
			}
			slog.Debug("tool loop did not succeed, falling back to sequential",
				slog.String("provider", r.provider),
				slog.String("reason", result.FailureReason),
			)
		}
		return r.runSequential(ctx, question)
	default:
		return r.runSequential(ctx, question)
	}
}

type sqlPayload struct {
	SQL    string `json:"sql"`
	Reason string `json:"reason"`
}

type answerPayload struct {
	Answer string `json:"answer"`
}

// callSQLJSON asks the chat client for a JSON SQL payload. A transport
// error or unparseable reply returns an empty payload; callers treat that
// as "nothing usable" and fall back to deterministic SQL.
func (r *Runner) callSQLJSON(ctx context.Context, systemPrompt, userPrompt string) sqlPayload {
	if r.client == nil {
		return sqlPayload{}
	}
	messages := []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}
	reply, err := r.client.Chat(ctx, messages, llm.GenerationParams{})
	if err != nil {
		slog.Warn("sql authoring call failed",
			slog.String("provider", r.provider),
			slog.String("error", err.Error()),
		)
		return sqlPayload{}
	}
	var payload sqlPayload
	if err := llm.ExtractJSONObject(reply, &payload); err != nil {
		slog.Debug("sql authoring reply was not JSON",
			slog.String("provider", r.provider),
		)
		return sqlPayload{}
	}
	payload.SQL = strings.TrimSpace(payload.SQL)
	payload.Reason = strings.TrimSpace(payload.Reason)
	return payload
}

// summarize builds the final answer for an executed result set, using the
// model when available and the deterministic default otherwise.
func (r *Runner) summarize(ctx context.Context, question, sqlQuery string, cols []string, rows [][]any) string {
	if r.client == nil {
		return r.deps.DefaultAnswer(question, cols, rows)
	}

	sample := rows
	if len(sample) > 30 {
		sample = sample[:30]
	}
	colsJSON, _ := json.Marshal(cols)
	rowsJSON, _ := json.Marshal(sample)

	messages := []llm.Message{
		{Role: "system", Content: sqlSummarySystemPrompt},
		{Role: "user", Content: buildSQLSummaryUserPrompt(question, sqlQuery, string(colsJSON), string(rowsJSON))},
	}
	reply, err := r.client.Chat(ctx, messages, llm.GenerationParams{})
	if err == nil {
		var payload answerPayload
		if jsonErr := llm.ExtractJSONObject(reply, &payload); jsonErr == nil {
			if answer := strings.TrimSpace(payload.Answer); answer != "" {
				return answer
			}
		}
	}
	return r.deps.DefaultAnswer(question, cols, rows)
}

func failureAnswer(attemptCount int, reason string) string {
	return fmt.Sprintf("SQL execution failed after %d attempt(s): %s", attemptCount, reason)
}

func traceFix(attemptNumber int) string {
	return fmt.Sprintf("sql_fix_%d", attemptNumber)
}
