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

import "context"

// runSequential alternates generate and fix prompts until a statement
// validates and executes, or the attempt budget is spent.
//
// Trace markers per cycle: sql_generate or sql_fix_N, then sql_validate,
// then sql_execute when validation passed, and answer_summarize on the
// winning attempt.
func (r *Runner) runSequential(ctx context.Context, question string) Result {
	var (
		attempts  []Attempt
		toolTrace []string
		sqlQuery  string
		lastError string
		cols      []string
		rows      [][]any
	)

	maxAttempts := r.deps.maxAttempts()
	for idx := 1; idx <= maxAttempts; idx++ {
		var payload sqlPayload
		if idx == 1 {
			toolTrace = append(toolTrace, "sql_generate")
			payload = r.callSQLJSON(ctx,
				buildSQLGeneratorSystemPrompt(r.deps.SchemaText, r.deps.HintsText),
				buildSQLGeneratorUserPrompt(question),
			)
		} else {
			toolTrace = append(toolTrace, traceFix(idx))
			dbError := lastError
			if dbError == "" {
				dbError = "unknown execution error"
			}
			payload = r.callSQLJSON(ctx,
				buildSQLFixerSystemPrompt(r.deps.SchemaText, r.deps.HintsText),
				buildSQLFixerUserPrompt(question, sqlQuery, dbError),
			)
		}

		sqlQuery = payload.SQL
		if sqlQuery == "" {
			sqlQuery = r.deps.FallbackSQL(coreQuestion(question))
		}

		toolTrace = append(toolTrace, "sql_validate")
		validationOK, validationReason := r.deps.Validate(sqlQuery)

		executionOK := false
		dbError := ""
		if validationOK {
			toolTrace = append(toolTrace, "sql_execute")
			execCols, execRows, err := r.deps.Execute(ctx, sqlQuery)
			if err != nil {
				dbError = err.Error()
				lastError = dbError
			} else {
				cols, rows = execCols, execRows
				executionOK = true
			}
		} else {
			dbError = validationReason
			lastError = validationReason
		}

		attempt := Attempt{
			AttemptNumber: idx,
			GeneratedSQL:  sqlQuery,
			Reason:        payload.Reason,
			ValidationOK:  validationOK,
			ExecutionOK:   executionOK,
		}
		if !validationOK {
			attempt.ValidationReason = validationReason
		}
		if !executionOK {
			attempt.DBError = dbError
		}
		attempts = append(attempts, attempt)

		if executionOK {
			toolTrace = append(toolTrace, "answer_summarize")
			return Result{
				Success:   true,
				FinalSQL:  sqlQuery,
				Answer:    r.summarize(ctx, question, sqlQuery, cols, rows),
				Attempts:  attempts,
				Columns:   cols,
				Rows:      rows,
				ToolTrace: toolTrace,
			}
		}
	}

	failureReason := "No SQL attempt executed."
	if len(attempts) > 0 && attempts[len(attempts)-1].DBError != "" {
		failureReason = attempts[len(attempts)-1].DBError
	}
	return Result{
		Success:       false,
		FinalSQL:      sqlQuery,
		Answer:        failureAnswer(maxAttempts, failureReason),
		Attempts:      attempts,
		ToolTrace:     toolTrace,
		FailureReason: failureReason,
	}
}
