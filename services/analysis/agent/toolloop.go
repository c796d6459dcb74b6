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
	"log/slog"
	"strings"

	"github.com/AleutianAI/AleutianLedger/services/llm"
)

const maxToolRounds = 4

var runSQLQueryTool = llm.ToolDef{
	Type: "function",
	Function: llm.ToolFunction{
		Name:        "run_sql_query",
		Description: "Execute a SQL SELECT query against household expense analytics data.",
		Parameters: llm.ToolParameters{
			Type: "object",
			Properties: map[string]llm.ToolParamDef{
				"sql": {
					Type:        "string",
					Description: "A single SQLite SELECT statement over the household_expenses view.",
				},
			},
			Required: []string{"sql"},
		},
	},
}

type runSQLQueryArgs struct {
	SQL string `json:"sql"`
}

type toolLoopState struct {
	attempts  []Attempt
	toolTrace []string
	finalSQL  string
	finalCols []string
	finalRows [][]any
	lastError string
}

// runToolLoop lets the model drive SQL authoring through the
// run_sql_query tool. Each tool call runs an inner validate-execute-fix
// cycle against the shared attempt budget; the model's final message
// becomes the answer when any attempt executed.
func (r *Runner) runToolLoop(ctx context.Context, question string) Result {
	state := &toolLoopState{toolTrace: []string{"tool_select"}}
	maxAttempts := r.deps.maxAttempts()

	messages := []llm.ChatMessage{
		{Role: "system", Content: buildToolLoopSystemPrompt(r.deps.SchemaText, r.deps.HintsText)},
		{Role: "user", Content: question},
	}
	tools := []llm.ToolDef{runSQLQueryTool}

	var finalContent string
	for round := 0; round < maxToolRounds; round++ {
		reply, err := r.toolClient.ChatWithTools(ctx, messages, llm.GenerationParams{}, tools)
		if err != nil {
			slog.Warn("tool loop chat failed",
				slog.String("provider", r.provider),
				slog.String("error", err.Error()),
			)
			break
		}
		if reply.StopReason != "tool_use" || len(reply.ToolCalls) == 0 {
			finalContent = reply.Content
			break
		}

		messages = append(messages, llm.ChatMessage{
			Role:      "assistant",
			Content:   reply.Content,
			ToolCalls: reply.ToolCalls,
		})
		for _, call := range reply.ToolCalls {
			var args runSQLQueryArgs
			if err := json.Unmarshal(call.Arguments, &args); err != nil {
				args.SQL = ""
			}
			state.toolTrace = append(state.toolTrace, "sql_generate")
			outcome := r.executeWithRepair(ctx, question, args.SQL, state, maxAttempts)
			payload, _ := json.Marshal(outcome)
			messages = append(messages, llm.ChatMessage{
				Role:       "tool",
				Content:    string(payload),
				ToolCallID: call.ID,
				ToolName:   call.Name,
			})
		}
	}

	success := false
	for _, attempt := range state.attempts {
		if attempt.ExecutionOK {
			success = true
			break
		}
	}

	if success {
		answer := strings.TrimSpace(finalContent)
		if answer == "" {
			answer = r.deps.DefaultAnswer(question, state.finalCols, state.finalRows)
		}
		return Result{
			Success:   true,
			FinalSQL:  state.finalSQL,
			Answer:    answer,
			Attempts:  state.attempts,
			Columns:   state.finalCols,
			Rows:      state.finalRows,
			ToolTrace: state.toolTrace,
		}
	}

	if len(state.attempts) == 0 {
		fallbackSQL := r.deps.FallbackSQL(coreQuestion(question))
		validationOK, validationReason := r.deps.Validate(fallbackSQL)
		dbError := "Tool call was not executed."
		if !validationOK {
			dbError = validationReason
		}
		attempt := Attempt{
			AttemptNumber: 1,
			GeneratedSQL:  fallbackSQL,
			Reason:        "tool_agent_missing_tool_call",
			ValidationOK:  validationOK,
			DBError:       dbError,
		}
		if !validationOK {
			attempt.ValidationReason = validationReason
		}
		state.attempts = append(state.attempts, attempt)
		state.lastError = dbError
	}

	failureReason := state.lastError
	if failureReason == "" {
		failureReason = "SQL execution failed."
	}
	return Result{
		Success:       false,
		FinalSQL:      state.attempts[len(state.attempts)-1].GeneratedSQL,
		Answer:        failureAnswer(len(state.attempts), failureReason),
		Attempts:      state.attempts,
		ToolTrace:     state.toolTrace,
		FailureReason: failureReason,
	}
}

type toolOutcome struct {
	OK      bool     `json:"ok"`
	SQL     string   `json:"sql"`
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
	Error   string   `json:"error,omitempty"`
}

// executeWithRepair validates and executes one tool-supplied statement,
// asking the fixer prompt for a replacement on failure until the attempt
// budget runs out.
func (r *Runner) executeWithRepair(ctx context.Context, question, sql string, state *toolLoopState, maxAttempts int) toolOutcome {
	sqlQuery := strings.TrimSpace(sql)
	if sqlQuery == "" {
		sqlQuery = r.deps.FallbackSQL(coreQuestion(question))
	}
	nextReason := "tool_loop_sql"

	for len(state.attempts) < maxAttempts {
		attemptNumber := len(state.attempts) + 1
		state.toolTrace = append(state.toolTrace, "sql_validate")
		validationOK, validationReason := r.deps.Validate(sqlQuery)

		executionOK := false
		dbError := ""
		var cols []string
		var rows [][]any
		if validationOK {
			state.toolTrace = append(state.toolTrace, "sql_execute")
			execCols, execRows, err := r.deps.Execute(ctx, sqlQuery)
			if err != nil {
				dbError = err.Error()
				state.lastError = dbError
			} else {
				cols, rows = execCols, execRows
				executionOK = true
				state.finalSQL = sqlQuery
				state.finalCols = cols
				state.finalRows = rows
			}
		} else {
			dbError = validationReason
			state.lastError = validationReason
		}

		attempt := Attempt{
			AttemptNumber: attemptNumber,
			GeneratedSQL:  sqlQuery,
			Reason:        nextReason,
			ValidationOK:  validationOK,
			ExecutionOK:   executionOK,
		}
		if !validationOK {
			attempt.ValidationReason = validationReason
		}
		if !executionOK {
			attempt.DBError = dbError
		}
		state.attempts = append(state.attempts, attempt)

		if executionOK {
			return toolOutcome{OK: true, SQL: sqlQuery, Columns: cols, Rows: rows}
		}
		if len(state.attempts) >= maxAttempts {
			break
		}

		state.toolTrace = append(state.toolTrace, traceFix(len(state.attempts)+1))
		dbErrorText := state.lastError
		if dbErrorText == "" {
			dbErrorText = "unknown execution error"
		}
		payload := r.callSQLJSON(ctx,
			buildSQLFixerSystemPrompt(r.deps.SchemaText, r.deps.HintsText),
			buildSQLFixerUserPrompt(question, sqlQuery, dbErrorText),
		)
		if payload.SQL == "" {
			break
		}
		sqlQuery = payload.SQL
		nextReason = payload.Reason
		if nextReason == "" {
			nextReason = "sql_fix_retry"
		}
	}

	errorText := state.lastError
	if errorText == "" {
		errorText = "SQL execution failed."
	}
	return toolOutcome{OK: false, SQL: sqlQuery, Error: errorText}
}
