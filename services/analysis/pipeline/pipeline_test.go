// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianLedger/services/analysis/agent"
)

func TestResolveAliasMapsFirstNameToFullName(t *testing.T) {
	resolved, ambiguous := resolveAlias("pooja", []string{"Pooja Sharma", "Amit Verma"}, 0.55)
	if resolved != "Pooja Sharma" {
		t.Errorf("resolved = %q, want Pooja Sharma", resolved)
	}
	if len(ambiguous) != 0 {
		t.Errorf("ambiguous = %v, want none", ambiguous)
	}
}

func TestResolveAliasMapsCategoryFragment(t *testing.T) {
	resolved, ambiguous := resolveAlias("food", []string{"Groceries", "Food & Dining", "Healthcare"}, 0.5)
	if resolved != "Food & Dining" {
		t.Errorf("resolved = %q, want Food & Dining", resolved)
	}
	if len(ambiguous) != 0 {
		t.Errorf("ambiguous = %v, want none", ambiguous)
	}
}

func TestResolveAliasReportsAmbiguity(t *testing.T) {
	resolved, ambiguous := resolveAlias("amit", []string{"Amit Verma", "Amit Sharma"}, 0.55)
	if resolved != "" {
		t.Errorf("resolved = %q, want ambiguity", resolved)
	}
	if len(ambiguous) != 2 {
		t.Errorf("ambiguous = %v, want both candidates", ambiguous)
	}
}

func TestExtractDescriptionPhrase(t *testing.T) {
	fromKeyword := extractDescriptionPhrase("Show me expenses where description contains gym membership")
	if fromKeyword != "gym membership" {
		t.Errorf("keyword phrase = %q", fromKeyword)
	}
	fromQuote := extractDescriptionPhrase("How much did we spend for 'uber airport' rides?")
	if fromQuote != "uber airport" {
		t.Errorf("quoted phrase = %q", fromQuote)
	}
}

func TestExtractPersonFragment(t *testing.T) {
	fragment := extractFirstFragment("expenses spent by Pooja this month", personFragmentPatterns)
	if !strings.Contains(strings.ToLower(fragment), "pooja") {
		t.Errorf("person fragment = %q", fragment)
	}
	fragment = extractFirstFragment("what were Amit's expenses", personFragmentPatterns)
	if !strings.Contains(strings.ToLower(fragment), "amit") {
		t.Errorf("possessive fragment = %q", fragment)
	}
}

func TestExtractCategoryFragmentTrimsTrailingNoun(t *testing.T) {
	fragment := extractFirstFragment("spend in food category", categoryFragmentPatterns)
	if fragment != "food" {
		t.Errorf("category fragment = %q, want food", fragment)
	}
}

func TestExtractTimeWindowLastThreeDays(t *testing.T) {
	today := time.Date(2026, time.February, 21, 0, 0, 0, 0, time.UTC)
	window := extractTimeWindow("groceries in the last 3 days", today)
	if window == nil {
		t.Fatal("window = nil")
	}
	if got := window.StartDate.Format(time.DateOnly); got != "2026-02-19" {
		t.Errorf("start = %s, want 2026-02-19", got)
	}
	if got := window.EndDate.Format(time.DateOnly); got != "2026-02-21" {
		t.Errorf("end = %s, want 2026-02-21", got)
	}
	hint := buildTimeWindowHint(window, "UTC")
	if !strings.Contains(hint, "date_incurred BETWEEN '2026-02-19' AND '2026-02-21'") {
		t.Errorf("hint = %q", hint)
	}
}

func TestExtractTimeWindowKeywords(t *testing.T) {
	// 2026-02-21 is a Saturday.
	today := time.Date(2026, time.February, 21, 0, 0, 0, 0, time.UTC)

	window := extractTimeWindow("spend last week", today)
	if window == nil {
		t.Fatal("last week window = nil")
	}
	if window.StartDate.Format(time.DateOnly) != "2026-02-09" ||
		window.EndDate.Format(time.DateOnly) != "2026-02-15" {
		t.Errorf("last week = %s..%s, want 2026-02-09..2026-02-15",
			window.StartDate.Format(time.DateOnly), window.EndDate.Format(time.DateOnly))
	}

	window = extractTimeWindow("spend last month", today)
	if window == nil {
		t.Fatal("last month window = nil")
	}
	if window.StartDate.Format(time.DateOnly) != "2026-01-01" ||
		window.EndDate.Format(time.DateOnly) != "2026-01-31" {
		t.Errorf("last month = %s..%s", window.StartDate.Format(time.DateOnly),
			window.EndDate.Format(time.DateOnly))
	}

	if extractTimeWindow("total spend by category", today) != nil {
		t.Error("question without time phrase should yield no window")
	}
}

func TestAugmentQuestionSections(t *testing.T) {
	snapshot := Snapshot{
		MemberNames:   []string{"Pooja Sharma", "Amit Verma"},
		CategoryNames: []string{"Food", "Groceries", "Healthcare"},
	}
	hints := []string{"Person mention 'pooja' maps to household member 'Pooja Sharma'."}
	augmented := augmentQuestion("How much did pooja spend on food?", hints, snapshot, true)

	for _, section := range []string{
		"Known household members",
		"Known household categories",
		"Column usage hints",
		"Resolved context hints",
		"Fallback mode for recall",
	} {
		if !strings.Contains(augmented, section) {
			t.Errorf("augmented question missing section %q", section)
		}
	}
	if !strings.HasPrefix(augmented, "How much did pooja spend on food?") {
		t.Errorf("augmented question should start with the raw question")
	}
}

func TestAugmentQuestionPassthroughWhenNothingKnown(t *testing.T) {
	got := augmentQuestion("  plain question  ", nil, Snapshot{}, false)
	if got != "plain question" {
		t.Errorf("augmented = %q, want trimmed passthrough", got)
	}
}

func TestShouldRetryOnEmptyPrimaryRows(t *testing.T) {
	p := &Pipeline{}
	resolved := resolvedContext{
		shouldFuzzyRetry: true,
		resolvedQuestion: "q1",
		fallbackQuestion: "q2",
	}
	primary := agent.Result{
		Success: true,
		Columns: []string{"amount"},
	}
	if !p.shouldRetry(resolved, primary) {
		t.Error("empty primary rows should trigger the fuzzy retry")
	}
}

func TestShouldRetryOnZeroAggregate(t *testing.T) {
	p := &Pipeline{}
	resolved := resolvedContext{
		shouldFuzzyRetry: true,
		resolvedQuestion: "q1",
		fallbackQuestion: "q2",
	}
	primary := agent.Result{
		Success: true,
		Columns: []string{"total_spend"},
		Rows:    [][]any{{float64(0)}},
	}
	if !p.shouldRetry(resolved, primary) {
		t.Error("all-zero aggregate should trigger the fuzzy retry")
	}

	primary.Rows = [][]any{{float64(120.5)}}
	if p.shouldRetry(resolved, primary) {
		t.Error("non-zero aggregate should not retry")
	}
}

func TestShouldRetryRespectsGates(t *testing.T) {
	p := &Pipeline{}
	primary := agent.Result{Success: true, Columns: []string{"amount"}}

	if p.shouldRetry(resolvedContext{shouldFuzzyRetry: false, fallbackQuestion: "q2"}, primary) {
		t.Error("retry without the fuzzy flag")
	}
	same := resolvedContext{shouldFuzzyRetry: true, resolvedQuestion: "q", fallbackQuestion: "q"}
	if p.shouldRetry(same, primary) {
		t.Error("retry with an identical fallback question")
	}
}

func TestLooksLikeZeroAggregateNonNumericMetric(t *testing.T) {
	result := agent.Result{
		Success: true,
		Columns: []string{"total_spend"},
		Rows:    [][]any{{"not a number"}},
	}
	if looksLikeZeroAggregate(result) {
		t.Error("non-numeric metric should not read as a zero aggregate")
	}
}

func TestMergeResultsPrefersFallbackWithRows(t *testing.T) {
	primary := agent.Result{
		Success:   true,
		Answer:    "nothing found",
		Attempts:  []agent.Attempt{{AttemptNumber: 1, GeneratedSQL: "SELECT a"}},
		ToolTrace: []string{"sql_generate"},
	}
	fallback := agent.Result{
		Success:   true,
		FinalSQL:  "SELECT b",
		Answer:    "found rows",
		Attempts:  []agent.Attempt{{AttemptNumber: 1, GeneratedSQL: "SELECT b"}},
		Columns:   []string{"amount"},
		Rows:      [][]any{{float64(10)}},
		ToolTrace: []string{"sql_generate", "sql_execute"},
	}

	merged := mergeResults(primary, fallback)
	if merged.Answer != "found rows" || merged.FinalSQL != "SELECT b" {
		t.Errorf("merged chose the wrong result: %+v", merged)
	}
	if len(merged.Attempts) != 2 {
		t.Fatalf("attempt count = %d, want 2", len(merged.Attempts))
	}
	if merged.Attempts[0].AttemptNumber != 1 || merged.Attempts[1].AttemptNumber != 2 {
		t.Errorf("attempts not renumbered: %+v", merged.Attempts)
	}
	wantTrace := []string{"sql_generate", "fuzzy_retry", "sql_generate", "sql_execute"}
	if len(merged.ToolTrace) != len(wantTrace) {
		t.Fatalf("trace = %v, want %v", merged.ToolTrace, wantTrace)
	}
	for i, marker := range wantTrace {
		if merged.ToolTrace[i] != marker {
			t.Errorf("trace[%d] = %q, want %q", i, merged.ToolTrace[i], marker)
		}
	}
}

func TestMergeResultsKeepsPrimaryWhenFallbackIsAlsoEmpty(t *testing.T) {
	primary := agent.Result{Success: true, Answer: "primary", ToolTrace: []string{"a"}}
	fallback := agent.Result{Success: true, Answer: "fallback", ToolTrace: []string{"b"}}
	merged := mergeResults(primary, fallback)
	if merged.Answer != "primary" {
		t.Errorf("merged answer = %q, want primary", merged.Answer)
	}
}

func TestPipelineRunRetriesAndMerges(t *testing.T) {
	snapshot := Snapshot{
		MemberNames: []string{"Pooja Sharma"},
		MinDate:     "2025-01-03",
		MaxDate:     "2026-02-20",
	}
	var questions []string
	p := &Pipeline{
		Timezone: "UTC",
		Now: func() time.Time {
			return time.Date(2026, time.February, 21, 9, 0, 0, 0, time.UTC)
		},
		LoadSnapshot: func(context.Context) (Snapshot, error) { return snapshot, nil },
		RunAgent: func(_ context.Context, question string) agent.Result {
			questions = append(questions, question)
			if len(questions) == 1 {
				return agent.Result{
					Success:   true,
					Columns:   []string{"total_spend"},
					Rows:      [][]any{{float64(0)}},
					Attempts:  []agent.Attempt{{AttemptNumber: 1}},
					ToolTrace: []string{"sql_generate"},
				}
			}
			return agent.Result{
				Success:   true,
				Answer:    "fuzzy found it",
				Columns:   []string{"total_spend"},
				Rows:      [][]any{{float64(250)}},
				Attempts:  []agent.Attempt{{AttemptNumber: 1}},
				ToolTrace: []string{"sql_generate"},
			}
		},
	}

	result := p.Run(context.Background(), "how much pooja spent in the last 3 days")
	if len(questions) != 2 {
		t.Fatalf("agent ran %d time(s), want 2", len(questions))
	}
	if !strings.Contains(questions[0], "maps to household member 'Pooja Sharma'") {
		t.Errorf("primary question missing resolved hint:\n%s", questions[0])
	}
	if !strings.Contains(questions[0], "BETWEEN '2026-02-19' AND '2026-02-21'") {
		t.Errorf("primary question missing time window hint:\n%s", questions[0])
	}
	if !strings.Contains(questions[1], "Fallback mode for recall") {
		t.Errorf("fallback question missing relaxed instructions:\n%s", questions[1])
	}
	if result.Answer != "fuzzy found it" {
		t.Errorf("merged answer = %q", result.Answer)
	}
	if len(result.Attempts) != 2 {
		t.Errorf("merged attempts = %d, want 2", len(result.Attempts))
	}
}

func TestPipelineRunWithoutRetrySignals(t *testing.T) {
	calls := 0
	p := &Pipeline{
		LoadSnapshot: func(context.Context) (Snapshot, error) {
			return Snapshot{CategoryNames: []string{"Food"}}, nil
		},
		RunAgent: func(context.Context, string) agent.Result {
			calls++
			return agent.Result{
				Success: true,
				Answer:  "done",
				Columns: []string{"category"},
				Rows:    [][]any{{"Food"}},
			}
		},
	}
	result := p.Run(context.Background(), "breakdown by category")
	if calls != 1 {
		t.Errorf("agent ran %d time(s), want 1", calls)
	}
	if result.Answer != "done" {
		t.Errorf("answer = %q", result.Answer)
	}
}
