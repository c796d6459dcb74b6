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
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianLedger/services/analysis/queryplan"
)

// augmentationMarkers delimit the context sections the pipeline appends
// to the question for model prompts. The deterministic planner keys off
// the user's own words, so those sections are cut before planning.
var augmentationMarkers = []string{
	"\n\nKnown household",
	"\n\nColumn usage hints:",
	"\n\nResolved context hints:",
	"\n\nFallback mode for recall:",
}

func coreQuestion(question string) string {
	for _, marker := range augmentationMarkers {
		if idx := strings.Index(question, marker); idx >= 0 {
			question = question[:idx]
		}
	}
	return strings.TrimSpace(question)
}

// runDeterministic answers without a model. The rule-built query still
// passes the validator before execution so every execution path shares
// one gate.
func (r *Runner) runDeterministic(ctx context.Context, question string) Result {
	built := queryplan.Build(queryplan.Params{
		Question:            coreQuestion(question),
		ReferenceDate:       r.deps.ReferenceDate,
		HouseholdCategories: r.deps.HouseholdCategories,
		HouseholdMembers:    r.deps.HouseholdMembers,
	})
	reason := fmt.Sprintf("intent=%s; period=%s; category=%s; member=%s",
		built.Intent, built.PeriodLabel,
		orNone(built.ResolvedCategory), orNone(built.ResolvedMember))

	toolTrace := []string{"tool_select", built.ToolName, "sql_validate"}
	validationOK, validationReason := r.deps.Validate(built.SQL)
	if !validationOK {
		return Result{
			Success:  false,
			FinalSQL: built.SQL,
			Answer:   "Tool-based analysis failed: " + validationReason,
			Attempts: []Attempt{{
				AttemptNumber:    1,
				GeneratedSQL:     built.SQL,
				Reason:           reason,
				ValidationReason: validationReason,
				DBError:          validationReason,
			}},
			ToolTrace:     append(toolTrace, "tool_failed"),
			FailureReason: validationReason,
		}
	}

	toolTrace = append(toolTrace, "sql_execute")
	cols, rows, err := r.deps.Execute(ctx, built.SQL)
	if err != nil {
		return Result{
			Success:  false,
			FinalSQL: built.SQL,
			Answer:   "Tool-based analysis failed: " + err.Error(),
			Attempts: []Attempt{{
				AttemptNumber: 1,
				GeneratedSQL:  built.SQL,
				Reason:        reason,
				ValidationOK:  true,
				DBError:       err.Error(),
			}},
			ToolTrace:     append(toolTrace, "tool_failed"),
			FailureReason: err.Error(),
		}
	}

	return Result{
		Success:  true,
		FinalSQL: built.SQL,
		Answer:   queryplan.BuildAnswer(built, cols, rows),
		Attempts: []Attempt{{
			AttemptNumber: 1,
			GeneratedSQL:  built.SQL,
			Reason:        reason,
			ValidationOK:  true,
			ExecutionOK:   true,
		}},
		Columns:   cols,
		Rows:      rows,
		ToolTrace: toolTrace,
	}
}

func orNone(value string) string {
	if value == "" {
		return "none"
	}
	return value
}
