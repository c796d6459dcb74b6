// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"strings"
	"testing"
)

func TestSanitizeTableStripsInternalColumns(t *testing.T) {
	columns := []string{"expense_id", "logged_by", "amount", "household_id"}
	rows := [][]any{
		{"3f2b8c1e-1111-4aaa-8bbb-0123456789ab", "Pooja Sharma", 450.0, "uuid-here"},
	}

	safeColumns, safeRows := sanitizeTable(columns, rows)

	if len(safeColumns) != 2 || safeColumns[0] != "logged_by" || safeColumns[1] != "amount" {
		t.Fatalf("safeColumns = %v", safeColumns)
	}
	if len(safeRows) != 1 || len(safeRows[0]) != 2 {
		t.Fatalf("safeRows = %v", safeRows)
	}
	if safeRows[0][0] != "Pooja Sharma" || safeRows[0][1] != 450.0 {
		t.Errorf("row = %v", safeRows[0])
	}
}

func TestSanitizeTableKeepsAllWhenEverythingWouldBeStripped(t *testing.T) {
	columns := []string{"expense_id", "user_id"}
	rows := [][]any{{"a", "b"}}

	safeColumns, safeRows := sanitizeTable(columns, rows)

	if len(safeColumns) != 2 {
		t.Errorf("safeColumns = %v, want both columns kept", safeColumns)
	}
	if len(safeRows) != 1 || len(safeRows[0]) != 2 {
		t.Errorf("safeRows = %v", safeRows)
	}
}

func TestSanitizeTableRedactsUUIDsInCells(t *testing.T) {
	columns := []string{"note"}
	rows := [][]any{{"logged by 3f2b8c1e-1111-4aaa-8bbb-0123456789ab today"}}

	_, safeRows := sanitizeTable(columns, rows)

	if safeRows[0][0] != "logged by member today" {
		t.Errorf("cell = %v", safeRows[0][0])
	}
}

func TestIsInternalIDColumn(t *testing.T) {
	for _, name := range []string{"expense_id", "Household_ID", " user_id ", "merchant_id"} {
		if !isInternalIDColumn(name) {
			t.Errorf("isInternalIDColumn(%q) = false, want true", name)
		}
	}
	for _, name := range []string{"amount", "logged_by", "identity", "idea"} {
		if isInternalIDColumn(name) {
			t.Errorf("isInternalIDColumn(%q) = true, want false", name)
		}
	}
}

func TestFormatDateForAnswer(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2026-02-05", "Feb 5, 2026"},
		{"2026-11-21T14:30:00Z", "Nov 21, 2026"},
		{"2026-11-21 14:30:00", "Nov 21, 2026"},
		{"not a date", "not a date"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := formatDateForAnswer(tt.in); got != tt.want {
			t.Errorf("formatDateForAnswer(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatAmountForAnswer(t *testing.T) {
	if got := formatAmountForAnswer(1234567.891, ""); got != "1,234,567.89 INR" {
		t.Errorf("got %q", got)
	}
	if got := formatAmountForAnswer(int64(450), "usd"); got != "450.00 USD" {
		t.Errorf("got %q", got)
	}
	if got := formatAmountForAnswer("89.5", "INR"); got != "89.50 INR" {
		t.Errorf("got %q", got)
	}
	if got := formatAmountForAnswer("n/a", "INR"); got != "n/a" {
		t.Errorf("got %q", got)
	}
}

func TestBuildFriendlyRowSummary(t *testing.T) {
	columns := []string{"logged_by", "amount", "currency", "category", "subcategory", "description", "date_incurred"}
	row := []any{"Pooja Sharma", 450.0, "INR", "Food & Dining", "Groceries", "weekly veggies", "2026-02-05"}

	got := buildFriendlyRowSummary(columns, row)
	want := "Pooja Sharma spent 450.00 INR in Food & Dining > Groceries for weekly veggies on Feb 5, 2026."
	if got != want {
		t.Errorf("summary = %q, want %q", got, want)
	}
}

func TestBuildFriendlyRowSummaryMinimalRow(t *testing.T) {
	got := buildFriendlyRowSummary([]string{"whatever"}, []any{"x"})
	if got != "A household member logged an expense." {
		t.Errorf("summary = %q", got)
	}
}

func TestBuildFriendlyRowSummarySkipsDuplicateSubcategory(t *testing.T) {
	columns := []string{"category", "subcategory"}
	row := []any{"Transport", "transport"}

	got := buildFriendlyRowSummary(columns, row)
	if !strings.Contains(got, "in Transport.") || strings.Contains(got, ">") {
		t.Errorf("summary = %q, want category without subcategory", got)
	}
}

func TestBuildFriendlyAnswerEmptyRows(t *testing.T) {
	got := buildFriendlyAnswer("food spend", []string{"amount"}, nil)
	if !strings.HasPrefix(got, "I could not find matching confirmed expenses") {
		t.Errorf("answer = %q", got)
	}
}

func TestBuildFriendlyAnswerPreviewsThreeRows(t *testing.T) {
	columns := []string{"logged_by", "amount"}
	rows := [][]any{
		{"A", 1.0}, {"B", 2.0}, {"C", 3.0}, {"D", 4.0}, {"E", 5.0},
	}

	got := buildFriendlyAnswer("top spends", columns, rows)
	lines := strings.Split(got, "\n")
	if len(lines) != 5 {
		t.Fatalf("lines = %d: %q", len(lines), got)
	}
	if !strings.Contains(lines[0], "top spends") {
		t.Errorf("header = %q", lines[0])
	}
	if lines[4] != "I found 5 matching rows in total, and showed the first 3 above." {
		t.Errorf("overflow line = %q", lines[4])
	}
}

func TestLooksLikeRawTableDump(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"empty", "   ", true},
		{"ascii table", "amount | category\n------+-------\n450 | Food", true},
		{"internal column leak", "The user_id with most spend is X", true},
		{"python repr", "[{'amount': 450}]", true},
		{"row objects", "Row(amount=450)", true},
		{"markdown table passes", "| a | b |\n| - | - |\n| 1 | 2 |", false},
		{"plain prose", "You spent 450.00 INR on groceries.", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := looksLikeRawTableDump(tt.text); got != tt.want {
				t.Errorf("looksLikeRawTableDump(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestFinalizeUserAnswerRedactsAndTrims(t *testing.T) {
	raw := "  Expense 3f2b8c1e-1111-4aaa-8bbb-0123456789ab by user_id 7 was largest.  "
	got := finalizeUserAnswer("q", raw, nil, nil, false)
	if strings.Contains(got, "3f2b8c1e") || strings.Contains(strings.ToLower(got), "user_id") {
		t.Errorf("answer leaked identifiers: %q", got)
	}
	if strings.HasPrefix(got, " ") || strings.HasSuffix(got, " ") {
		t.Errorf("answer not trimmed: %q", got)
	}
}

func TestFinalizeUserAnswerReplacesDumpOnSuccess(t *testing.T) {
	columns := []string{"logged_by", "amount"}
	rows := [][]any{{"Pooja Sharma", 450.0}}

	got := finalizeUserAnswer("food spend", "[{'amount': 450}]", columns, rows, true)
	if !strings.HasPrefix(got, "Sure - here is what I found for") {
		t.Errorf("answer = %q, want friendly rewrite", got)
	}
	if !strings.Contains(got, "Pooja Sharma spent 450.00 INR.") {
		t.Errorf("answer = %q, want row summary", got)
	}
}

func TestFinalizeUserAnswerKeepsProse(t *testing.T) {
	got := finalizeUserAnswer("q", "You spent 450.00 INR on groceries.", nil, [][]any{{1.0}}, true)
	if got != "You spent 450.00 INR on groceries." {
		t.Errorf("answer = %q", got)
	}
}

func TestDefaultAnswer(t *testing.T) {
	if got := defaultAnswer("q", nil, nil); got != "No matching expenses were found." {
		t.Errorf("got %q", got)
	}

	got := defaultAnswer("food", []string{"a", "b", "c", "d", "e"}, [][]any{{1, 2, 3, 4, 5}})
	if got != "Result for 'food': a=1, b=2, c=3, d=4." {
		t.Errorf("got %q", got)
	}

	got = defaultAnswer("food", []string{"a"}, [][]any{{1}, {2}})
	if got != "I found 2 row(s) for 'food'." {
		t.Errorf("got %q", got)
	}
}
