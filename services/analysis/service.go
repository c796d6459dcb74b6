// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analysis answers natural-language questions about household
// expenses by generating, validating, and executing SQL inside a
// tenant-scoped sandbox.
//
// Description:
//
//	The service wires the context-resolution pipeline, the SQL authoring
//	agent, the sandbox executor, and the audit log. Handlers stay thin;
//	all orchestration lives here.
package analysis

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianLedger/services/analysis/agent"
	"github.com/AleutianAI/AleutianLedger/services/analysis/config"
	"github.com/AleutianAI/AleutianLedger/services/analysis/pipeline"
	"github.com/AleutianAI/AleutianLedger/services/analysis/providers"
	"github.com/AleutianAI/AleutianLedger/services/analysis/queryplan"
	"github.com/AleutianAI/AleutianLedger/services/analysis/sandbox"
	"github.com/AleutianAI/AleutianLedger/services/analysis/sqlguard"
	"github.com/AleutianAI/AleutianLedger/services/analysis/storage"
	"github.com/AleutianAI/AleutianLedger/services/llm"
)

// AskTable is the sanitized result table returned on success.
type AskTable struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// AskResponse is the wire shape of a completed ask.
//
// Description:
//
//	SQL and Chart are always null; the raw statement never leaves the
//	server and chart rendering is a client concern. Table is present only
//	on success.
type AskResponse struct {
	Mode       string    `json:"mode"`
	Route      string    `json:"route"`
	Confidence float64   `json:"confidence"`
	Tool       string    `json:"tool"`
	ToolTrace  []string  `json:"tool_trace"`
	SQL        *string   `json:"sql"`
	Answer     string    `json:"answer"`
	Chart      *string   `json:"chart"`
	Table      *AskTable `json:"table"`
}

// Service answers analysis questions for authenticated households.
//
// # Thread Safety
//
// Safe for concurrent use. Per-request state lives on the stack; the
// store, executor, and chat client are all concurrency-safe.
type Service struct {
	cfg      providers.RuntimeConfig
	store    *storage.Store
	executor *sandbox.Executor
	client   llm.ChatClient
	taxonomy *config.Taxonomy
}

// NewService builds the analysis service over an open database handle.
//
// Inputs:
//   - cfg: Resolved provider and runtime configuration.
//   - db: Open database handle, already migrated.
//
// Outputs:
//   - *Service: The ready service.
//   - error: Non-nil when the chat client or taxonomy cannot be built.
func NewService(cfg providers.RuntimeConfig, db *sql.DB) (*Service, error) {
	client, err := providers.CreateChatClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("analysis: creating chat client: %w", err)
	}
	taxonomy, err := config.LoadTaxonomy()
	if err != nil {
		return nil, fmt.Errorf("analysis: loading taxonomy: %w", err)
	}
	return &Service{
		cfg:      cfg,
		store:    storage.NewStore(db),
		executor: sandbox.NewExecutor(db),
		client:   client,
		taxonomy: taxonomy,
	}, nil
}

// Store exposes the audit and snapshot store, used by readiness checks.
func (s *Service) Store() *storage.Store { return s.store }

// referenceDate returns today at midnight UTC in the configured timezone.
func (s *Service) referenceDate() time.Time {
	now := time.Now()
	if tz := strings.TrimSpace(s.cfg.Timezone); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			now = now.In(loc)
		}
	}
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// Ask answers one natural-language question for a household.
//
// Description:
//
//	Runs the full pipeline: audit log creation, context resolution, the
//	bounded SQL agent with optional fuzzy retry, table sanitation, and
//	answer finalization. Audit writes are best-effort and never fail the
//	request. Setup failures (snapshot or schema load) return a degraded
//	response rather than an error so the caller always gets an answer.
//
// Inputs:
//   - ctx: Context carrying the request deadline.
//   - householdID: Tenant scope for every query the agent runs.
//   - userID: The asking user, recorded in the audit log.
//   - question: The natural-language question.
//
// Outputs:
//   - *AskResponse: The completed response, never nil.
func (s *Service) Ask(ctx context.Context, householdID, userID, question string) *AskResponse {
	question = strings.TrimSpace(question)

	queryLogID := s.createQueryLog(ctx, householdID, userID, question)

	hc, err := s.store.LoadHouseholdContext(ctx, householdID)
	if err != nil {
		return s.failRun(ctx, queryLogID, question, err)
	}
	schemaText, err := s.store.SchemaText(ctx)
	if err != nil {
		return s.failRun(ctx, queryLogID, question, err)
	}

	refDate := s.referenceDate()
	deps := agent.Deps{
		Validate: func(sqlText string) (bool, string) {
			return sqlguard.Validate(sqlText, sandbox.AllowedTables)
		},
		Execute: func(ctx context.Context, sqlText string) ([]string, [][]any, error) {
			return s.executor.Execute(ctx, householdID, sqlText)
		},
		FallbackSQL: func(q string) string {
			return queryplan.Build(queryplan.Params{
				Question:            q,
				ReferenceDate:       refDate,
				HouseholdCategories: hc.CategoryNames,
				HouseholdMembers:    hc.MemberNames,
				Taxonomy:            s.taxonomy,
			}).SQL
		},
		DefaultAnswer:       defaultAnswer,
		SchemaText:          schemaText,
		HouseholdCategories: hc.CategoryNames,
		HouseholdMembers:    hc.MemberNames,
		ReferenceDate:       refDate,
		MaxAttempts:         s.cfg.MaxAttempts,
	}
	runner := agent.NewRunner(s.cfg.Provider, s.cfg.Strategy, s.client, deps)

	pipe := &pipeline.Pipeline{
		Timezone: s.cfg.Timezone,
		LoadSnapshot: func(ctx context.Context) (pipeline.Snapshot, error) {
			return pipeline.Snapshot{
				MemberNames:      hc.MemberNames,
				CategoryNames:    hc.CategoryNames,
				SubcategoryNames: hc.SubcategoryNames,
				MinDate:          hc.MinDate,
				MaxDate:          hc.MaxDate,
			}, nil
		},
		RunAgent: func(ctx context.Context, q string) agent.Result {
			return runner.Run(ctx, q)
		},
	}

	result := pipe.Run(ctx, question)

	s.logAttempts(ctx, queryLogID, result.Attempts)

	safeColumns, safeRows := sanitizeTable(result.Columns, result.Rows)
	confidence := 0.35
	var table *AskTable
	if result.Success {
		confidence = 0.85
		table = &AskTable{Columns: safeColumns, Rows: safeRows}
	}
	response := &AskResponse{
		Mode:       "analytics",
		Route:      "agent",
		Confidence: confidence,
		Tool:       "sql_chat_agent",
		ToolTrace:  result.ToolTrace,
		Answer:     finalizeUserAnswer(question, result.Answer, safeColumns, safeRows, result.Success),
		Table:      table,
	}

	status := "success"
	if !result.Success {
		status = "failed"
	}
	s.finalizeQueryLog(ctx, queryLogID, status, response.Answer,
		result.FinalSQL, result.FailureReason, len(result.Attempts))
	return response
}

// failRun is the degraded path when the agent could not be set up at all.
func (s *Service) failRun(ctx context.Context, queryLogID, question string, err error) *AskResponse {
	slog.Error("analysis run setup failed",
		slog.String("error", err.Error()),
	)
	answer := fmt.Sprintf("SQL agent failed to run: %v", err)
	response := &AskResponse{
		Mode:       "analytics",
		Route:      "agent",
		Confidence: 0.2,
		Tool:       "sql_chat_agent",
		ToolTrace:  []string{"tool_select"},
		Answer:     answer,
	}
	s.finalizeQueryLog(ctx, queryLogID, "failed", answer, "", err.Error(), 0)
	return response
}

// createQueryLog opens the audit row. Returns empty on failure; audit
// problems never block a run.
func (s *Service) createQueryLog(ctx context.Context, householdID, userID, question string) string {
	id, err := s.store.CreateQueryLog(ctx, storage.QueryLogParams{
		HouseholdID: householdID,
		UserID:      userID,
		Provider:    s.cfg.Provider,
		Model:       s.cfg.Model,
		Question:    question,
		Mode:        "analytics",
		Route:       "agent",
		Tool:        "sql_chat_agent",
	})
	if err != nil {
		slog.Warn("could not create query log", slog.String("error", err.Error()))
		return ""
	}
	return id
}

func (s *Service) logAttempts(ctx context.Context, queryLogID string, attempts []agent.Attempt) {
	if queryLogID == "" {
		return
	}
	for _, attempt := range attempts {
		err := s.store.AddAttemptLog(ctx, queryLogID, storage.AttemptLog{
			AttemptNumber:    attempt.AttemptNumber,
			GeneratedSQL:     attempt.GeneratedSQL,
			Reason:           attempt.Reason,
			ValidationOK:     attempt.ValidationOK,
			ValidationReason: attempt.ValidationReason,
			ExecutionOK:      attempt.ExecutionOK,
			DBError:          attempt.DBError,
		})
		if err != nil {
			slog.Warn("could not record attempt log",
				slog.Int("attempt", attempt.AttemptNumber),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *Service) finalizeQueryLog(ctx context.Context, queryLogID, status, finalAnswer, finalSQL, failureReason string, attemptCount int) {
	if queryLogID == "" {
		return
	}
	err := s.store.FinalizeQueryLog(ctx, queryLogID, status, finalAnswer, finalSQL, failureReason, attemptCount)
	if err != nil {
		slog.Warn("could not finalize query log", slog.String("error", err.Error()))
	}
}
