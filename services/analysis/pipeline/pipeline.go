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
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianLedger/services/analysis/agent"
)

// metricColumnPattern marks columns whose values make a result "all
// zeros" worth retrying.
var metricColumnPattern = regexp.MustCompile(`(?i)(amount|total|sum|spend|value|count)`)

// Snapshot is the household vocabulary the resolver matches against.
type Snapshot struct {
	MemberNames      []string
	CategoryNames    []string
	SubcategoryNames []string
	MinDate          string
	MaxDate          string
}

// RunAgentFunc executes the SQL agent for one (possibly augmented)
// question.
type RunAgentFunc func(ctx context.Context, question string) agent.Result

// Pipeline orchestrates context resolution, the primary agent pass, and
// the optional fuzzy retry.
//
// # Thread Safety
//
// Safe for concurrent use; all per-run state lives on the stack.
type Pipeline struct {
	// Timezone names the household's timezone for date resolution and
	// hint text. Empty means UTC.
	Timezone string

	// LoadSnapshot fetches the household vocabulary and date bounds.
	LoadSnapshot func(ctx context.Context) (Snapshot, error)

	// RunAgent executes the SQL agent once.
	RunAgent RunAgentFunc

	// Now supplies the clock, overridable in tests. Nil means time.Now.
	Now func() time.Time
}

type resolvedContext struct {
	hints            []string
	shouldFuzzyRetry bool
	snapshot         Snapshot
	timeWindow       *resolvedTimeWindow
	resolvedQuestion string
	fallbackQuestion string
}

func (p *Pipeline) today() time.Time {
	now := time.Now()
	if p.Now != nil {
		now = p.Now()
	}
	tz := strings.TrimSpace(p.Timezone)
	if tz == "" {
		return dayOf(now.UTC())
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return dayOf(now.UTC())
	}
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

func (p *Pipeline) timezoneName() string {
	if tz := strings.TrimSpace(p.Timezone); tz != "" {
		return tz
	}
	return "UTC"
}

// Run answers one question through the full pipeline.
//
// # Description
//
//	Resolves household context and builds two question variants: a
//	strict one with exact-name hints and a fallback one that adds
//	relaxed LIKE-matching instructions. The agent runs on the strict
//	variant; when that pass produced nothing useful and the fallback
//	variant differs, the agent runs once more and the merged result is
//	returned with both attempt lists stitched together.
func (p *Pipeline) Run(ctx context.Context, question string) agent.Result {
	resolved := p.resolveContext(ctx, question)

	primary := p.RunAgent(ctx, resolved.resolvedQuestion)
	if !p.shouldRetry(resolved, primary) {
		return primary
	}

	slog.Info("primary analysis pass was empty, retrying with fuzzy matching",
		slog.Int("primary_attempts", len(primary.Attempts)),
		slog.Bool("primary_success", primary.Success),
	)
	fallback := p.RunAgent(ctx, resolved.fallbackQuestion)
	return mergeResults(primary, fallback)
}

// resolveContext mines the question for mentions and resolves them
// against the household snapshot. Errors loading the snapshot degrade to
// an unaugmented question rather than failing the run.
func (p *Pipeline) resolveContext(ctx context.Context, question string) resolvedContext {
	question = strings.TrimSpace(question)
	resolved := resolvedContext{
		resolvedQuestion: question,
		fallbackQuestion: question,
	}
	if question == "" || p.LoadSnapshot == nil {
		return resolved
	}

	snapshot, err := p.LoadSnapshot(ctx)
	if err != nil {
		slog.Warn("household snapshot load failed, running without context hints",
			slog.String("error", err.Error()),
		)
		return resolved
	}
	resolved.snapshot = snapshot

	var hints []string
	shouldRetry := false

	if snapshot.MinDate != "" && snapshot.MaxDate != "" {
		hints = append(hints, fmt.Sprintf(
			"Expense dates available in `date_incurred` run from '%s' to '%s'.",
			snapshot.MinDate, snapshot.MaxDate))
	}
	if hasRelativeTimeIntent(question) && snapshot.MaxDate != "" {
		hints = append(hints, fmt.Sprintf(
			"Relative-time request detected. Prefer `date_incurred` filtering and use household reference date "+
				"'%s' (timezone '%s') unless the user gave an explicit date.",
			snapshot.MaxDate, p.timezoneName()))
		shouldRetry = true
	}
	if window := extractTimeWindow(question, p.today()); window != nil {
		resolved.timeWindow = window
		hints = append(hints, buildTimeWindowHint(window, p.timezoneName()))
		shouldRetry = true
	}

	if fragment := extractFirstFragment(question, personFragmentPatterns); fragment != "" {
		winner, ambiguous := resolveAlias(fragment, snapshot.MemberNames, 0.58)
		switch {
		case winner != "":
			hints = append(hints, fmt.Sprintf(
				"Person mention '%s' maps to household member '%s'.", fragment, winner))
			shouldRetry = true
		case len(ambiguous) > 0:
			hints = append(hints, fmt.Sprintf(
				"Person mention '%s' is ambiguous across: %s.", fragment, strings.Join(ambiguous, ", ")))
			shouldRetry = true
		}
	}

	if fragment := extractFirstFragment(question, categoryFragmentPatterns); fragment != "" {
		winner, ambiguous := resolveAlias(fragment, snapshot.CategoryNames, 0.55)
		switch {
		case winner != "":
			hints = append(hints, fmt.Sprintf(
				"Category mention '%s' maps to '%s'.", fragment, winner))
			shouldRetry = true
		case len(ambiguous) > 0:
			hints = append(hints, fmt.Sprintf(
				"Category mention '%s' is ambiguous across: %s.", fragment, strings.Join(ambiguous, ", ")))
			shouldRetry = true
		}
	}

	if fragment := extractFirstFragment(question, subcategoryFragmentPatterns); fragment != "" {
		winner, ambiguous := resolveAlias(fragment, snapshot.SubcategoryNames, 0.55)
		switch {
		case winner != "":
			hints = append(hints, fmt.Sprintf(
				"Subcategory mention '%s' maps to '%s'.", fragment, winner))
			shouldRetry = true
		case len(ambiguous) > 0:
			hints = append(hints, fmt.Sprintf(
				"Subcategory mention '%s' is ambiguous across: %s.", fragment, strings.Join(ambiguous, ", ")))
			shouldRetry = true
		}
	}

	if phrase := extractDescriptionPhrase(question); phrase != "" {
		hints = append(hints, fmt.Sprintf(
			"Description text filter detected: '%s'. Search across description and merchant_or_item.", phrase))
		shouldRetry = true
	}

	resolved.hints = hints
	resolved.shouldFuzzyRetry = shouldRetry
	resolved.resolvedQuestion = augmentQuestion(question, hints, snapshot, false)
	resolved.fallbackQuestion = augmentQuestion(question, hints, snapshot, true)
	return resolved
}

// augmentQuestion attaches the household vocabulary, column usage hints,
// resolved context hints, and (in fuzzy mode) relaxed matching
// instructions to the raw question.
func augmentQuestion(question string, hints []string, snapshot Snapshot, fuzzyMode bool) string {
	clean := strings.TrimSpace(question)
	if len(hints) == 0 && !fuzzyMode &&
		len(snapshot.MemberNames) == 0 &&
		len(snapshot.CategoryNames) == 0 &&
		len(snapshot.SubcategoryNames) == 0 {
		return clean
	}

	sections := []string{clean}
	if len(snapshot.MemberNames) > 0 {
		sections = append(sections,
			"Known household members (exact names):\n"+bulletList(snapshot.MemberNames, 20))
	}
	if len(snapshot.CategoryNames) > 0 {
		sections = append(sections,
			"Known household categories (unique):\n"+bulletList(snapshot.CategoryNames, 30))
	}
	if len(snapshot.SubcategoryNames) > 0 {
		sections = append(sections,
			"Known household subcategories (unique):\n"+bulletList(snapshot.SubcategoryNames, 50))
	}
	sections = append(sections,
		"Column usage hints:\n"+
			"- Person/member name: logged_by\n"+
			"- Category: category\n"+
			"- Subcategory: subcategory\n"+
			"- Free text: description + merchant_or_item\n"+
			"- Expense date: date_incurred\n"+
			"- Amount: amount\n"+
			"- Status: status")
	if len(hints) > 0 {
		sections = append(sections, "Resolved context hints:\n"+bulletList(hints, len(hints)))
	}
	if fuzzyMode {
		sections = append(sections,
			"Fallback mode for recall: if strict filters return no rows, relax filters with "+
				"LOWER(column) LIKE '%term%' for logged_by, category, and subcategory. "+
				"For free-text matching, search LOWER(COALESCE(description,'') || ' ' || COALESCE(merchant_or_item,'')) "+
				"with LIKE.")
	}
	return strings.Join(sections, "\n\n")
}

func bulletList(items []string, limit int) string {
	if len(items) > limit {
		items = items[:limit]
	}
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = "- " + item
	}
	return strings.Join(lines, "\n")
}

// shouldRetry decides whether the fallback pass is worth running.
func (p *Pipeline) shouldRetry(resolved resolvedContext, primary agent.Result) bool {
	if !resolved.shouldFuzzyRetry {
		return false
	}
	if primary.Success && len(primary.Rows) > 0 && !looksLikeZeroAggregate(primary) {
		return false
	}
	fallback := strings.TrimSpace(resolved.fallbackQuestion)
	if fallback == "" || fallback == strings.TrimSpace(resolved.resolvedQuestion) {
		return false
	}
	return true
}

// looksLikeZeroAggregate reports whether a successful result is really an
// all-zero aggregate, which usually means strict filters matched nothing.
// A non-numeric value in a metric column disqualifies the result from
// retry since the zeros are then not trustworthy signals.
func looksLikeZeroAggregate(result agent.Result) bool {
	if !result.Success || len(result.Rows) == 0 || len(result.Columns) == 0 {
		return false
	}
	var metricIndexes []int
	for idx, column := range result.Columns {
		if metricColumnPattern.MatchString(column) {
			metricIndexes = append(metricIndexes, idx)
		}
	}
	if len(metricIndexes) == 0 {
		return false
	}

	foundMetric := false
	for _, row := range result.Rows {
		for _, idx := range metricIndexes {
			if idx >= len(row) {
				continue
			}
			value, ok := toFloat(row[idx])
			if !ok {
				if row[idx] == nil || row[idx] == "" {
					continue
				}
				return false
			}
			foundMetric = true
			if math.Abs(value) > 1e-9 {
				return false
			}
		}
	}
	return foundMetric
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case string:
		if v == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// mergeResults combines the primary and fallback passes. The fallback
// wins when it actually produced rows, or when it succeeded and the
// primary did not. Attempts are renumbered sequentially across both
// passes and the combined trace records the retry boundary.
func mergeResults(primary, fallback agent.Result) agent.Result {
	useFallback := (fallback.Success && len(fallback.Rows) > 0) ||
		(!primary.Success && fallback.Success)
	chosen := primary
	if useFallback {
		chosen = fallback
	}

	merged := reindexAttempts(primary.Attempts, 0)
	merged = append(merged, reindexAttempts(fallback.Attempts, len(merged))...)
	if len(merged) == 0 {
		merged = chosen.Attempts
	}

	trace := make([]string, 0, len(primary.ToolTrace)+len(fallback.ToolTrace)+1)
	trace = append(trace, primary.ToolTrace...)
	trace = append(trace, "fuzzy_retry")
	trace = append(trace, fallback.ToolTrace...)

	return agent.Result{
		Success:       chosen.Success,
		FinalSQL:      chosen.FinalSQL,
		Answer:        chosen.Answer,
		Attempts:      merged,
		Columns:       chosen.Columns,
		Rows:          chosen.Rows,
		ToolTrace:     trace,
		FailureReason: chosen.FailureReason,
	}
}

func reindexAttempts(attempts []agent.Attempt, start int) []agent.Attempt {
	reindexed := make([]agent.Attempt, len(attempts))
	for i, attempt := range attempts {
		attempt.AttemptNumber = start + i + 1
		reindexed[i] = attempt
	}
	return reindexed
}
