// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// QueryLogParams describes one analysis question for the audit log.
type QueryLogParams struct {
	HouseholdID string
	UserID      string
	Provider    string
	Model       string
	Question    string
	Mode        string
	Route       string
	Tool        string
}

// AttemptLog is one recorded SQL attempt for the audit trail.
type AttemptLog struct {
	AttemptNumber    int
	GeneratedSQL     string
	Reason           string
	ValidationOK     bool
	ValidationReason string
	ExecutionOK      bool
	DBError          string
}

// CreateQueryLog inserts a running audit row for a question and returns
// its ID. Audit writes are best-effort at the call site; this function
// itself reports failures normally.
func (s *Store) CreateQueryLog(ctx context.Context, p QueryLogParams) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO analysis_query_logs
		 (id, household_id, user_id, provider, model, question, mode, route, tool, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'running', ?)`,
		id, p.HouseholdID, p.UserID, p.Provider, p.Model, p.Question, p.Mode, p.Route, p.Tool,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("storage: creating query log: %w", err)
	}
	return id, nil
}

// AddAttemptLog appends one attempt row to a query log.
func (s *Store) AddAttemptLog(ctx context.Context, queryLogID string, a AttemptLog) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO analysis_query_attempts
		 (id, query_log_id, attempt_number, generated_sql, reason,
		  validation_ok, validation_reason, execution_ok, db_error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), queryLogID, a.AttemptNumber, a.GeneratedSQL, a.Reason,
		boolToInt(a.ValidationOK), a.ValidationReason, boolToInt(a.ExecutionOK), a.DBError,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("storage: adding attempt log: %w", err)
	}
	return nil
}

// FinalizeQueryLog records the outcome of a question.
func (s *Store) FinalizeQueryLog(ctx context.Context, queryLogID, status, finalAnswer, finalSQL, failureReason string, attemptCount int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE analysis_query_logs
		 SET status = ?, final_answer = ?, final_sql = ?, failure_reason = ?,
		     attempt_count = ?, finished_at = ?
		 WHERE id = ?`,
		status, finalAnswer, finalSQL, failureReason, attemptCount,
		time.Now().UTC().Format(time.RFC3339), queryLogID,
	)
	if err != nil {
		return fmt.Errorf("storage: finalizing query log: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
