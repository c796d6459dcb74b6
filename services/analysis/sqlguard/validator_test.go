// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sqlguard

import (
	"strings"
	"testing"
)

var testAllowed = map[string]struct{}{"household_expenses": {}}

func TestValidateAcceptsSafeSelect(t *testing.T) {
	queries := []string{
		"SELECT COALESCE(SUM(amount), 0) AS total_spend FROM household_expenses",
		"select category, sum(amount) from household_expenses group by category order by 2 desc limit 50",
		"SELECT * FROM household_expenses WHERE date_incurred >= '2026-01-01' LIMIT 10",
		"WITH recent AS (SELECT * FROM household_expenses WHERE date_incurred >= '2026-01-01') SELECT COUNT(*) FROM recent",
	}

	for _, q := range queries {
		ok, reason := Validate(q, testAllowed)
		if !ok {
			t.Errorf("Validate(%q) rejected: %s", q, reason)
		}
		if reason != "" {
			t.Errorf("Validate(%q) valid but reason = %q, want empty", q, reason)
		}
	}
}

func TestValidateRejectsWriteKeywords(t *testing.T) {
	queries := map[string]string{
		"INSERT INTO household_expenses VALUES (1)":                 "INSERT",
		"UPDATE household_expenses SET amount = 0":                  "UPDATE",
		"DELETE FROM household_expenses":                            "DELETE",
		"DROP TABLE household_expenses":                             "DROP",
		"SELECT * FROM household_expenses WHERE id IN (DELETE FROM household_expenses)": "DELETE",
	}

	for q, keyword := range queries {
		ok, reason := Validate(q, testAllowed)
		if ok {
			t.Errorf("Validate(%q) accepted a write statement", q)
			continue
		}
		if !strings.Contains(strings.ToUpper(reason), keyword) &&
			!strings.Contains(reason, "only SELECT") {
			t.Errorf("Validate(%q) reason = %q, expected mention of %s", q, reason, keyword)
		}
	}
}

func TestValidateRejectsEmptyAndMultiStatement(t *testing.T) {
	if ok, _ := Validate("", testAllowed); ok {
		t.Error("empty statement accepted")
	}
	if ok, _ := Validate("   \n\t ", testAllowed); ok {
		t.Error("whitespace statement accepted")
	}

	ok, reason := Validate("SELECT 1 FROM household_expenses; SELECT 2 FROM household_expenses", testAllowed)
	if ok {
		t.Error("multi-statement accepted")
	}
	if !strings.Contains(reason, "multiple statements") {
		t.Errorf("reason = %q, want multiple statements", reason)
	}
}

func TestValidateNamesDisallowedTable(t *testing.T) {
	ok, reason := Validate("SELECT * FROM users", testAllowed)
	if ok {
		t.Fatal("query against foreign table accepted")
	}
	if !strings.Contains(reason, "users") {
		t.Errorf("reason = %q, should name the offending table", reason)
	}
}

func TestValidateRejectsJoinToForeignTable(t *testing.T) {
	q := "SELECT e.amount FROM household_expenses e JOIN users u ON u.id = e.logged_by_user_id"
	ok, reason := Validate(q, testAllowed)
	if ok {
		t.Fatal("join to foreign table accepted")
	}
	if !strings.Contains(reason, "users") {
		t.Errorf("reason = %q, should name users", reason)
	}
}

func TestValidateRejectsCatalogReferences(t *testing.T) {
	queries := []string{
		"SELECT table_name FROM information_schema.tables",
		"SELECT name FROM sqlite_master",
		"SELECT * FROM pg_catalog.pg_tables",
	}
	for _, q := range queries {
		if ok, _ := Validate(q, testAllowed); ok {
			t.Errorf("Validate(%q) accepted a catalog reference", q)
		}
	}
}

func TestValidateRejectsForbiddenFunctions(t *testing.T) {
	ok, reason := Validate("SELECT pg_sleep(10) FROM household_expenses", testAllowed)
	if ok {
		t.Fatal("pg_sleep accepted")
	}
	if !strings.Contains(reason, "pg_sleep") {
		t.Errorf("reason = %q, should name pg_sleep", reason)
	}
}

func TestValidateRejectsUnparsableSQL(t *testing.T) {
	ok, reason := Validate("SELECT FROM WHERE", testAllowed)
	if ok {
		t.Fatal("unparsable SQL accepted")
	}
	if reason == "" {
		t.Error("expected a non-empty rejection reason")
	}
}

func TestValidateAllowsCTENames(t *testing.T) {
	q := "WITH monthly AS (SELECT substr(date_incurred,1,7) AS ym, SUM(amount) AS total FROM household_expenses GROUP BY 1) SELECT * FROM monthly ORDER BY ym"
	ok, reason := Validate(q, testAllowed)
	if !ok {
		t.Errorf("CTE-referencing query rejected: %s", reason)
	}
}

func TestValidateIsPure(t *testing.T) {
	q := "SELECT COUNT(*) FROM household_expenses"
	ok1, r1 := Validate(q, testAllowed)
	ok2, r2 := Validate(q, testAllowed)
	if ok1 != ok2 || r1 != r2 {
		t.Errorf("Validate is not deterministic: (%v,%q) vs (%v,%q)", ok1, r1, ok2, r2)
	}
}
