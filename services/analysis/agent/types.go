// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agent runs the bounded generate-validate-execute-repair loop
// that turns a natural-language question into executed analytics SQL.
//
// The runner never trusts model output: every candidate statement passes
// the injected validator before it reaches the injected executor, and the
// loop is hard-capped at a configured attempt count. A model that cannot
// produce working SQL yields a failed Result, never a panic and never an
// unvalidated execution.
package agent

import (
	"context"
	"time"
)

// Attempt records one generate-validate-execute cycle.
type Attempt struct {
	AttemptNumber    int    `json:"attempt_number"`
	GeneratedSQL     string `json:"generated_sql"`
	Reason           string `json:"llm_reason,omitempty"`
	ValidationOK     bool   `json:"validation_ok"`
	ValidationReason string `json:"validation_reason,omitempty"`
	ExecutionOK      bool   `json:"execution_ok"`
	DBError          string `json:"db_error,omitempty"`
}

// Result is the terminal outcome of one agent run.
type Result struct {
	Success       bool
	FinalSQL      string
	Answer        string
	Attempts      []Attempt
	Columns       []string
	Rows          [][]any
	ToolTrace     []string
	FailureReason string
}

// ValidateFunc checks a candidate statement. It returns ok and, when not
// ok, a human-readable reason.
type ValidateFunc func(sql string) (bool, string)

// ExecuteFunc runs validated SQL inside the tenant sandbox.
type ExecuteFunc func(ctx context.Context, sql string) ([]string, [][]any, error)

// FallbackSQLFunc builds deterministic SQL for a question, used when the
// model returns nothing usable.
type FallbackSQLFunc func(question string) string

// DefaultAnswerFunc summarizes a result set without a model.
type DefaultAnswerFunc func(question string, cols []string, rows [][]any) string

// Deps carries everything a Runner needs. All function fields are
// required except as noted on Runner strategies.
type Deps struct {
	Validate      ValidateFunc
	Execute       ExecuteFunc
	FallbackSQL   FallbackSQLFunc
	DefaultAnswer DefaultAnswerFunc

	// SchemaText is the live schema description injected into prompts.
	SchemaText string

	// HintsText carries resolved household hints, may be empty.
	HintsText string

	HouseholdCategories []string
	HouseholdMembers    []string
	ReferenceDate       time.Time

	// MaxAttempts caps the repair loop. Zero means 3.
	MaxAttempts int
}

func (d Deps) maxAttempts() int {
	if d.MaxAttempts <= 0 {
		return 3
	}
	return d.MaxAttempts
}
