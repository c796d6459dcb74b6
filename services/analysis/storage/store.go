// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package storage owns the expense database: schema migration, per-request
// household context snapshots for prompt grounding, and the query audit log.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	_ "modernc.org/sqlite"
)

// Open opens (or creates) the sqlite database at path.
//
// Description:
//
//	Uses the pure-Go sqlite driver. WAL mode and foreign keys are enabled
//	via pragmas on the connection string. Use ":memory:" for tests.
//
// Outputs:
//   - *sql.DB: The open handle.
//   - error: Non-nil if the database cannot be opened or pinged.
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: pinging database: %w", err)
	}
	slog.Info("Opened expense database", slog.String("path", path))
	return db, nil
}

// migrations are executed in order. Each statement is idempotent.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS households (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		full_name TEXT NOT NULL,
		household_id TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'member',
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS expenses (
		id TEXT PRIMARY KEY,
		household_id TEXT NOT NULL,
		logged_by_user_id TEXT NOT NULL,
		amount REAL,
		currency TEXT NOT NULL DEFAULT 'INR',
		category TEXT,
		subcategory TEXT,
		description TEXT,
		merchant_or_item TEXT,
		date_incurred TEXT NOT NULL,
		is_recurring INTEGER NOT NULL DEFAULT 0,
		confidence REAL NOT NULL DEFAULT 1.0,
		status TEXT NOT NULL DEFAULT 'confirmed',
		source_text TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_expenses_household_date
		ON expenses (household_id, date_incurred)`,
	`CREATE TABLE IF NOT EXISTS analysis_query_logs (
		id TEXT PRIMARY KEY,
		household_id TEXT NOT NULL,
		user_id TEXT,
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		question TEXT NOT NULL,
		mode TEXT NOT NULL,
		route TEXT NOT NULL,
		tool TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'running',
		final_answer TEXT,
		final_sql TEXT,
		failure_reason TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		finished_at TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS analysis_query_attempts (
		id TEXT PRIMARY KEY,
		query_log_id TEXT NOT NULL REFERENCES analysis_query_logs(id),
		attempt_number INTEGER NOT NULL,
		generated_sql TEXT NOT NULL,
		reason TEXT,
		validation_ok INTEGER NOT NULL,
		validation_reason TEXT,
		execution_ok INTEGER NOT NULL,
		db_error TEXT,
		created_at TEXT NOT NULL
	)`,
}

// Migrate creates the schema if it does not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("storage: applying migration: %w", err)
		}
	}
	return nil
}

// Store provides household context snapshots and the audit log over an
// open database handle.
//
// Thread Safety: Store is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store over an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for the sandbox executor.
func (s *Store) DB() *sql.DB { return s.db }

// HouseholdContext is a per-request snapshot of the names and date bounds
// a question may refer to. Loaded fresh for every question; never cached
// across requests.
type HouseholdContext struct {
	MemberNames      []string
	CategoryNames    []string
	SubcategoryNames []string
	MinDate          string
	MaxDate          string
}

// LoadHouseholdContext loads the member, category, and subcategory names
// plus the expense date bounds for one household.
//
// Inputs:
//   - ctx: Context for cancellation.
//   - householdID: The tenant to snapshot.
//
// Outputs:
//   - *HouseholdContext: Sorted, de-duplicated name lists. Empty lists and
//     empty date bounds are valid for a household with no data.
//   - error: Non-nil on query failure.
func (s *Store) LoadHouseholdContext(ctx context.Context, householdID string) (*HouseholdContext, error) {
	hc := &HouseholdContext{}

	members, err := s.queryDistinctStrings(ctx,
		`SELECT full_name FROM users WHERE household_id = ? AND is_active = 1`, householdID)
	if err != nil {
		return nil, fmt.Errorf("storage: loading members: %w", err)
	}
	hc.MemberNames = members

	categories, err := s.queryDistinctStrings(ctx,
		`SELECT DISTINCT category FROM expenses WHERE household_id = ? AND category IS NOT NULL`, householdID)
	if err != nil {
		return nil, fmt.Errorf("storage: loading categories: %w", err)
	}
	hc.CategoryNames = categories

	subcategories, err := s.queryDistinctStrings(ctx,
		`SELECT DISTINCT subcategory FROM expenses WHERE household_id = ? AND subcategory IS NOT NULL`, householdID)
	if err != nil {
		return nil, fmt.Errorf("storage: loading subcategories: %w", err)
	}
	hc.SubcategoryNames = subcategories

	row := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MIN(date_incurred),''), COALESCE(MAX(date_incurred),'')
		 FROM expenses WHERE household_id = ?`, householdID)
	if err := row.Scan(&hc.MinDate, &hc.MaxDate); err != nil {
		return nil, fmt.Errorf("storage: loading date bounds: %w", err)
	}

	return hc, nil
}

// queryDistinctStrings runs a single-column query and returns the trimmed,
// de-duplicated, sorted values.
func (s *Store) queryDistinctStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	for rows.Next() {
		var value sql.NullString
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		trimmed := strings.TrimSpace(value.String)
		if trimmed == "" {
			continue
		}
		seen[trimmed] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	values := make([]string, 0, len(seen))
	for v := range seen {
		values = append(values, v)
	}
	sort.Strings(values)
	return values, nil
}

// SchemaText renders the live base-table schema as prompt-ready text.
//
// Description:
//
//	Introspects the expenses and users tables via PRAGMA table_info so the
//	generator prompt always describes the schema actually deployed rather
//	than a hardcoded copy that can drift.
func (s *Store) SchemaText(ctx context.Context) (string, error) {
	var b strings.Builder
	for _, table := range []string{"expenses", "users", "households"} {
		rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
		if err != nil {
			return "", fmt.Errorf("storage: introspecting %s: %w", table, err)
		}
		fmt.Fprintf(&b, "### Table: %s\n", table)
		for rows.Next() {
			var (
				cid     int
				name    string
				colType string
				notNull int
				dflt    sql.NullString
				pk      int
			)
			if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
				rows.Close()
				return "", fmt.Errorf("storage: scanning %s column: %w", table, err)
			}
			attrs := []string{strings.ToUpper(colType)}
			if pk > 0 {
				attrs = append(attrs, "primary key")
			} else if notNull > 0 {
				attrs = append(attrs, "not null")
			}
			fmt.Fprintf(&b, "- %s (%s)\n", name, strings.Join(attrs, ", "))
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return "", err
		}
		rows.Close()
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
