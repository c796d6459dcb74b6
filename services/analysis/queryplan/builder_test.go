// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package queryplan

import (
	"strings"
	"testing"
	"time"
)

var testRef = time.Date(2026, time.February, 15, 10, 30, 0, 0, time.UTC)

func TestInferIntent(t *testing.T) {
	tests := []struct {
		question string
		explicit string
		want     Intent
	}{
		{"how much did we spend last month", "", IntentTotalSpend},
		{"total food spend", "", IntentTotalSpend},
		{"top 5 expenses this month", "", IntentTopExpenses},
		{"largest expense last week", "", IntentTopExpenses},
		{"spending trend over time", "", IntentMonthlyTrend},
		{"who spent most this month", "", IntentMemberBreakdown},
		{"spend by person", "", IntentMemberBreakdown},
		{"category breakdown please", "", IntentCategoryBreakdown},
		{"show me something", "", IntentTotalSpend},
		// An explicit intent sticks.
		{"show me something", "monthly_trend", IntentMonthlyTrend},
		// Except category_breakdown when the question asks for a total.
		{"how much on food", "category_breakdown", IntentTotalSpend},
	}
	for _, tt := range tests {
		if got := InferIntent(tt.question, tt.explicit); got != tt.want {
			t.Errorf("InferIntent(%q, %q) = %v, want %v", tt.question, tt.explicit, got, tt.want)
		}
	}
}

func TestExtractNumberWords(t *testing.T) {
	got := extractNumber(`top\s+(`+numberToken+`)`, "Top Three expenses")
	if got == nil || *got != 3 {
		t.Fatalf("extractNumber(top three) = %v, want 3", got)
	}
	if n := extractNumber(`top\s+(`+numberToken+`)`, "top expenses"); n != nil {
		t.Errorf("extractNumber without a count = %v, want nil", n)
	}
}

func TestResolveMemberName(t *testing.T) {
	members := []string{"Alice Johnson", "Bob Smith"}

	if got := ResolveMemberName("alice johnson", members); got != "Alice Johnson" {
		t.Errorf("exact match = %q", got)
	}
	if got := ResolveMemberName("alice", members); got != "Alice Johnson" {
		t.Errorf("substring match = %q", got)
	}
	if got := ResolveMemberName("  Charlie  ", members); got != "Charlie" {
		t.Errorf("unmatched member = %q, want trimmed passthrough", got)
	}
	if got := ResolveMemberName("alice", nil); got != "alice" {
		t.Errorf("no member list = %q, want raw", got)
	}
	if got := ResolveMemberName("", members); got != "" {
		t.Errorf("empty member = %q, want empty", got)
	}
}

func TestBuildCategoryExpansion(t *testing.T) {
	bq := Build(Params{
		Question:      "how much did we spend on food last month",
		ReferenceDate: testRef,
	})
	if bq.Intent != IntentTotalSpend {
		t.Fatalf("intent = %v, want total_spend", bq.Intent)
	}
	for _, term := range []string{"'food'", "'groceries'"} {
		if !strings.Contains(bq.SQL, term) {
			t.Errorf("SQL missing expanded category term %s:\n%s", term, bq.SQL)
		}
	}
	if !strings.Contains(bq.SQL, "LOWER(REPLACE(REPLACE(COALESCE(category,''),' ','_'),'-','_')) IN (") {
		t.Errorf("SQL missing normalized category filter:\n%s", bq.SQL)
	}
}

func TestBuildTopThreeLastOneMonth(t *testing.T) {
	bq := Build(Params{
		Question:      "top three expenses in the last one month",
		ReferenceDate: testRef,
	})
	if bq.Intent != IntentTopExpenses {
		t.Fatalf("intent = %v, want top_expenses", bq.Intent)
	}
	if bq.TopN != 3 || !strings.Contains(bq.SQL, "LIMIT 3") {
		t.Errorf("top_n = %d, SQL = %s; want LIMIT 3", bq.TopN, bq.SQL)
	}
	// "last one month" at a mid-February reference is all of January.
	if !strings.Contains(bq.SQL, "date_incurred >= '2026-01-01'") ||
		!strings.Contains(bq.SQL, "date_incurred <= '2026-01-31'") {
		t.Errorf("period bounds wrong:\n%s", bq.SQL)
	}
	if bq.PeriodLabel != "Last month" {
		t.Errorf("period label = %q, want Last month", bq.PeriodLabel)
	}
}

func TestBuildTopDigitsAndWordsAgree(t *testing.T) {
	words := Build(Params{Question: "top three expenses", ReferenceDate: testRef})
	digits := Build(Params{Question: "top 3 expenses", ReferenceDate: testRef})
	if words.SQL != digits.SQL {
		t.Errorf("spelled and numeric counts diverge:\n%s\n%s", words.SQL, digits.SQL)
	}
}

func TestBuildMonthlyTrendLastSixMonths(t *testing.T) {
	bq := Build(Params{
		Question:      "spending trend over the last six months",
		ReferenceDate: testRef,
	})
	if bq.Intent != IntentMonthlyTrend {
		t.Fatalf("intent = %v, want monthly_trend", bq.Intent)
	}
	if bq.Months != 6 {
		t.Errorf("months = %d, want 6", bq.Months)
	}
	if bq.PeriodLabel != "Last 6 months" {
		t.Errorf("label = %q, want Last 6 months", bq.PeriodLabel)
	}
	// Six months back from February 2026 starts September 2025.
	if !strings.Contains(bq.SQL, "date_incurred >= '2025-09-01'") {
		t.Errorf("trend window start wrong:\n%s", bq.SQL)
	}
	if !strings.Contains(bq.SQL, "substr(date_incurred,1,7)") {
		t.Errorf("trend SQL missing month bucket:\n%s", bq.SQL)
	}
}

func TestBuildTopNClamped(t *testing.T) {
	bq := Build(Params{Question: "top 99 expenses", ReferenceDate: testRef})
	if bq.TopN != 20 {
		t.Errorf("top_n = %d, want clamp to 20", bq.TopN)
	}
	bq = Build(Params{Question: "largest expense", TopN: -4, ReferenceDate: testRef})
	if bq.TopN != 1 {
		t.Errorf("top_n = %d, want clamp to 1", bq.TopN)
	}
}

func TestBuildStatusFilter(t *testing.T) {
	confirmed := Build(Params{Question: "total spend", ReferenceDate: testRef})
	if !strings.Contains(confirmed.SQL, "LOWER(status) = 'confirmed'") {
		t.Errorf("default status filter missing:\n%s", confirmed.SQL)
	}
	all := Build(Params{Question: "total spend", Status: "all", ReferenceDate: testRef})
	if strings.Contains(all.SQL, "LOWER(status)") {
		t.Errorf("status all should drop the filter:\n%s", all.SQL)
	}
}

func TestBuildMemberFilterEscapesQuotes(t *testing.T) {
	bq := Build(Params{
		Question:      "how much did o'brien spend",
		Member:        "O'Brien",
		ReferenceDate: testRef,
	})
	if !strings.Contains(bq.SQL, "LOWER(logged_by) = 'o''brien'") {
		t.Errorf("member literal not escaped:\n%s", bq.SQL)
	}
}

func TestBuildAllTimeHasNoDateBounds(t *testing.T) {
	bq := Build(Params{Question: "total spend all time", Status: "all", ReferenceDate: testRef})
	if strings.Contains(bq.SQL, "date_incurred") {
		t.Errorf("all_time query should be unbounded:\n%s", bq.SQL)
	}
	if !strings.Contains(bq.SQL, "WHERE 1=1") {
		t.Errorf("empty filter set should fall back to 1=1:\n%s", bq.SQL)
	}
}

func TestInferPeriodFromQuestion(t *testing.T) {
	tests := []struct {
		question string
		want     string
	}{
		{"spend today", PeriodToday},
		{"spend yesterday", PeriodYesterday},
		{"spend this week", PeriodThisWeek},
		{"spend this year", PeriodThisYear},
		{"all time spend", PeriodAllTime},
		{"spend last month", PeriodLastMonth},
		{"spend in the past 5 days", PeriodLast7Days},
		{"spend in the last 21 days", PeriodLast30Days},
		{"spend in the last 45 days", PeriodLast60Days},
		{"spend in the last 80 days", PeriodLast90Days},
		{"spend in the last 2 months", PeriodLast60Days},
		{"spend in the last three months", PeriodLast90Days},
		{"spend in the last 8 months", PeriodAllTime},
		{"just spend", "this_month"},
	}
	for _, tt := range tests {
		if got := inferPeriodFromQuestion(tt.question, "this_month"); got != tt.want {
			t.Errorf("inferPeriodFromQuestion(%q) = %q, want %q", tt.question, got, tt.want)
		}
	}
}

func TestResolvePeriodBoundsThisWeekStartsMonday(t *testing.T) {
	// 2026-02-15 is a Sunday, so the week began 2026-02-09.
	start, end, label := resolvePeriodBounds(PeriodThisWeek, testRef)
	if start == nil || start.Format(time.DateOnly) != "2026-02-09" {
		t.Errorf("week start = %v, want 2026-02-09", start)
	}
	if end == nil || end.Format(time.DateOnly) != "2026-02-15" {
		t.Errorf("week end = %v, want 2026-02-15", end)
	}
	if label != "This week" {
		t.Errorf("label = %q", label)
	}
}

func TestBuildAnswerTemplates(t *testing.T) {
	total := BuildAnswer(
		BuiltQuery{Intent: IntentTotalSpend, PeriodLabel: "Last month", ResolvedCategory: "food"},
		[]string{"total_spend", "expense_count"},
		[][]any{{float64(123.456), int64(7)}},
	)
	if total != "Total spend for last month for category food is 123.46 across 7 expense(s)." {
		t.Errorf("total answer = %q", total)
	}

	empty := BuildAnswer(
		BuiltQuery{Intent: IntentTotalSpend, PeriodLabel: "This month"}, nil, nil)
	if empty != "No matching expenses found for this month." {
		t.Errorf("empty answer = %q", empty)
	}

	trend := BuildAnswer(
		BuiltQuery{Intent: IntentMonthlyTrend, PeriodLabel: "Last 3 months"},
		[]string{"month", "total_spend"},
		[][]any{{"2026-01", float64(10)}, {"2026-02", float64(90)}, {"2026-03", float64(5)}},
	)
	if !strings.Contains(trend, "Highest month is 2026-02 at 90.00.") {
		t.Errorf("trend answer = %q", trend)
	}

	top := BuildAnswer(
		BuiltQuery{Intent: IntentTopExpenses, PeriodLabel: "This month"},
		[]string{"date_incurred", "logged_by", "category", "amount", "note"},
		[][]any{{"2026-02-10", "Alice", "food", float64(250), "Groceries"}},
	)
	if top != "Top 1 expense(s) for this month are listed. Highest is 250.00." {
		t.Errorf("top answer = %q", top)
	}
}
