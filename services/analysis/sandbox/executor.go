// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sandbox executes validated SQL against a tenant-scoped virtual
// view. The agent never touches base tables: every statement is wrapped in
// a CTE that defines household_expenses for exactly one household, and the
// outer query caps the result size.
package sandbox

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// ViewName is the only table the agent may query.
const ViewName = "household_expenses"

// resultLimit caps rows returned from any agent query.
const resultLimit = 200

// AllowedTables is the validator allow list for agent SQL.
var AllowedTables = map[string]struct{}{ViewName: {}}

// householdCTE defines the virtual view. IDs are cast to text so cells stay
// in the string/number value domain, and the logger's display name is joined
// in so queries never need the users table.
const householdCTE = `WITH household_expenses AS (
  SELECT
    CAST(e.id AS TEXT) AS expense_id,
    CAST(e.household_id AS TEXT) AS household_id,
    CAST(e.logged_by_user_id AS TEXT) AS logged_by_user_id,
    COALESCE(u.full_name,'Unknown') AS logged_by,
    CAST(e.status AS TEXT) AS status,
    COALESCE(e.category,'Other') AS category,
    e.subcategory AS subcategory,
    e.description AS description,
    e.merchant_or_item AS merchant_or_item,
    e.amount AS amount,
    e.currency AS currency,
    CAST(e.date_incurred AS TEXT) AS date_incurred,
    e.is_recurring AS is_recurring,
    e.confidence AS confidence,
    CAST(e.created_at AS TEXT) AS created_at,
    CAST(e.updated_at AS TEXT) AS updated_at
  FROM expenses e
  LEFT JOIN users u ON u.id = e.logged_by_user_id
  WHERE CAST(e.household_id AS TEXT) = ?
)`

// Executor runs validated agent SQL inside the household sandbox.
//
// Description:
//
//	Holds no per-request state; one Executor serves all requests. Errors
//	from the database are surfaced verbatim so the repair loop can feed
//	them back to the SQL author. The executor never retries.
//
// Thread Safety: Executor is safe for concurrent use.
type Executor struct {
	db *sql.DB
}

// NewExecutor creates an Executor over an open database handle.
func NewExecutor(db *sql.DB) *Executor {
	return &Executor{db: db}
}

// Wrap returns the sandboxed form of a validated statement.
//
// Description:
//
//	Prepends the household CTE and wraps the statement in an outer
//	SELECT with a hard row cap. The inner statement must already have
//	passed validation; Wrap adds scoping, not safety checks.
func Wrap(sqlQuery string) string {
	return fmt.Sprintf("%s\nSELECT * FROM (\n%s\n) AS agent_result\nLIMIT %d", householdCTE, sqlQuery, resultLimit)
}

// Execute runs a validated statement scoped to one household.
//
// Inputs:
//   - ctx: Context for cancellation; carries the request deadline.
//   - householdID: Tenant scope. Injected as a bind parameter, never
//     interpolated into SQL text.
//   - sqlQuery: The validated statement referencing only household_expenses.
//
// Outputs:
//   - []string: Column names, present even for empty result sets.
//   - [][]any: Row cells coerced to string, int64, or float64.
//   - error: The database error, text unmodified.
//
// Thread Safety: Safe for concurrent use.
func (e *Executor) Execute(ctx context.Context, householdID, sqlQuery string) ([]string, [][]any, error) {
	start := time.Now()
	rows, err := e.db.QueryContext(ctx, Wrap(sqlQuery), householdID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var result [][]any
	for rows.Next() {
		raw := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		cells := make([]any, len(columns))
		for i, v := range raw {
			cells[i] = Cell(v)
		}
		result = append(result, cells)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	slog.Debug("sandbox query executed",
		slog.Int("columns", len(columns)),
		slog.Int("rows", len(result)),
		slog.Duration("elapsed", time.Since(start)),
	)

	return columns, result, nil
}

// Cell coerces a scanned database value into the closed cell domain of
// string, int64, or float64. NULL becomes the empty string and booleans
// become "true"/"false" so JSON output stays uniform.
func Cell(value any) any {
	switch v := value.(type) {
	case nil:
		return ""
	case bool:
		if v {
			return "true"
		}
		return "false"
	case int64:
		return v
	case float64:
		return v
	case []byte:
		return string(v)
	case string:
		return v
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}
