// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package queryplan builds analytics SQL deterministically from a question
// and explicit parameters, with no model in the loop. It is the zero-cost,
// fully predictable authoring strategy: intent inference, period
// resolution, taxonomy-based category expansion, and member resolution all
// happen with rules, and the SQL comes from fixed templates.
//
// Thread Safety: All functions in this package are pure and safe for
// concurrent use.
package queryplan

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianLedger/services/analysis/config"
)

// Intent names the analytic shape of a question.
type Intent string

const (
	IntentTotalSpend        Intent = "total_spend"
	IntentCategoryBreakdown Intent = "category_breakdown"
	IntentMemberBreakdown   Intent = "member_breakdown"
	IntentTopExpenses       Intent = "top_expenses"
	IntentMonthlyTrend      Intent = "monthly_trend"
)

// numberWords maps spelled-out counts zero through twenty.
var numberWords = map[string]int{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4,
	"five": 5, "six": 6, "seven": 7, "eight": 8, "nine": 9,
	"ten": 10, "eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14,
	"fifteen": 15, "sixteen": 16, "seventeen": 17, "eighteen": 18,
	"nineteen": 19, "twenty": 20,
}

// numberToken matches a one-or-two digit number or a spelled-out count.
const numberToken = `(?:\d{1,2}|zero|one|two|three|four|five|six|seven|eight|nine|ten|` +
	`eleven|twelve|thirteen|fourteen|fifteen|sixteen|seventeen|eighteen|nineteen|twenty)`

// BuiltQuery is the immutable product of one Build call.
type BuiltQuery struct {
	Intent           Intent
	ToolName         string
	SQL              string
	PeriodLabel      string
	TopN             int
	Months           int
	ResolvedCategory string
	ResolvedMember   string
}

// Params carries everything Build needs. The zero value of optional fields
// means "infer from the question or use the default".
type Params struct {
	// Question is the user's natural-language question.
	Question string

	// Intent optionally forces an intent; inference still overrides a
	// forced category_breakdown when the question asks for a total.
	Intent string

	// Period is the caller's period hint; question phrasing overrides it.
	Period string

	// Status filters by expense status: "confirmed" (default), "draft",
	// or "all".
	Status string

	// Category optionally forces a category; otherwise inferred.
	Category string

	// Member optionally names a household member.
	Member string

	// TopN is the caller hint for top_expenses row count (default 5).
	TopN int

	// Months is the caller hint for monthly_trend depth (default 6).
	Months int

	// ReferenceDate anchors all relative periods.
	ReferenceDate time.Time

	// HouseholdCategories and HouseholdMembers ground category expansion
	// and member resolution in the tenant's actual data.
	HouseholdCategories []string
	HouseholdMembers    []string

	// Taxonomy provides category expansion. Nil loads the embedded one.
	Taxonomy *config.Taxonomy
}

func extractNumber(pattern, text string) *int {
	re := regexp.MustCompile(pattern)
	match := re.FindStringSubmatch(strings.ToLower(text))
	if match == nil {
		return nil
	}
	token := strings.TrimSpace(match[1])
	if n, err := strconv.Atoi(token); err == nil {
		return &n
	}
	if n, ok := numberWords[token]; ok {
		return &n
	}
	return nil
}

func clamp(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func escapeSQLLiteral(value string) string {
	return strings.ReplaceAll(value, "'", "''")
}

// InferIntent decides the analytic shape from keywords.
//
// Description:
//
//	Keyword priority: total phrasing beats everything (including a forced
//	category_breakdown, since "how much on food" wants one number), then
//	top expenses, trend, member breakdown, category breakdown. The
//	default is total_spend.
func InferIntent(question, explicitIntent string) Intent {
	explicit := strings.ToLower(strings.TrimSpace(explicitIntent))
	q := strings.ToLower(question)

	isTotal := strings.Contains(q, "how much") || strings.Contains(q, "total") || strings.Contains(q, "sum")

	switch Intent(explicit) {
	case IntentTotalSpend, IntentCategoryBreakdown, IntentMemberBreakdown, IntentTopExpenses, IntentMonthlyTrend:
		if Intent(explicit) == IntentCategoryBreakdown && isTotal {
			return IntentTotalSpend
		}
		return Intent(explicit)
	}

	if isTotal {
		return IntentTotalSpend
	}
	if (strings.Contains(q, "top ") || strings.Contains(q, "largest") ||
		strings.Contains(q, "highest") || strings.Contains(q, "biggest")) &&
		strings.Contains(q, "expense") {
		return IntentTopExpenses
	}
	if strings.Contains(q, "trend") || strings.Contains(q, "month over month") || strings.Contains(q, "over time") {
		return IntentMonthlyTrend
	}
	for _, token := range []string{"who", "member", "by user", "by person", "spent most"} {
		if strings.Contains(q, token) {
			return IntentMemberBreakdown
		}
	}
	if strings.Contains(q, "category") || strings.Contains(q, "breakdown") {
		return IntentCategoryBreakdown
	}
	return IntentTotalSpend
}

// ResolveMemberName maps a member mention onto a known household member.
//
// Description:
//
//	Exact case-insensitive match wins, then bidirectional substring
//	containment. An unmatched mention passes through trimmed so the SQL
//	filter still reflects the user's words.
func ResolveMemberName(rawMember string, householdMembers []string) string {
	needle := strings.ToLower(strings.TrimSpace(rawMember))
	if needle == "" {
		return ""
	}

	members := make([]string, 0, len(householdMembers))
	for _, m := range householdMembers {
		if trimmed := strings.TrimSpace(m); trimmed != "" {
			members = append(members, trimmed)
		}
	}
	if len(members) == 0 {
		return strings.TrimSpace(rawMember)
	}

	for _, m := range members {
		if strings.ToLower(m) == needle {
			return m
		}
	}
	for _, m := range members {
		lower := strings.ToLower(m)
		if strings.Contains(lower, needle) || strings.Contains(needle, lower) {
			return m
		}
	}
	return strings.TrimSpace(rawMember)
}

// buildWhereClause assembles the shared filter set: status, period bounds,
// expanded category IN-list, and member equality. All values are escaped
// literals; the sandbox supplies tenant scoping separately.
func buildWhereClause(p Params, taxonomy *config.Taxonomy, period string) (where, periodLabel, resolvedCategory, resolvedMember string) {
	var clauses []string

	status := strings.ToLower(strings.TrimSpace(p.Status))
	if status != "confirmed" && status != "draft" && status != "all" {
		status = "confirmed"
	}
	if status != "all" {
		clauses = append(clauses, fmt.Sprintf("LOWER(status) = '%s'", escapeSQLLiteral(status)))
	}

	periodStart, periodEnd, label := resolvePeriodBounds(period, p.ReferenceDate)
	if periodStart != nil {
		clauses = append(clauses, fmt.Sprintf("date_incurred >= '%s'", periodStart.Format(time.DateOnly)))
	}
	if periodEnd != nil {
		clauses = append(clauses, fmt.Sprintf("date_incurred <= '%s'", periodEnd.Format(time.DateOnly)))
	}

	category := strings.TrimSpace(p.Category)
	if category == "" {
		category = taxonomy.InferCategory(p.Question, p.HouseholdCategories)
	}
	if category != "" {
		terms := taxonomy.ExpandCategoryTerms(category, p.HouseholdCategories)
		if len(terms) > 0 {
			quoted := make([]string, len(terms))
			for i, term := range terms {
				quoted[i] = fmt.Sprintf("'%s'", escapeSQLLiteral(term))
			}
			clauses = append(clauses, fmt.Sprintf(
				"LOWER(REPLACE(REPLACE(COALESCE(category,''),' ','_'),'-','_')) IN (%s)",
				strings.Join(quoted, ", ")))
		}
	}

	member := ResolveMemberName(p.Member, p.HouseholdMembers)
	if member != "" {
		clauses = append(clauses, fmt.Sprintf("LOWER(logged_by) = '%s'", escapeSQLLiteral(strings.ToLower(member))))
	}

	if len(clauses) == 0 {
		return "1=1", label, category, member
	}
	return strings.Join(clauses, " AND "), label, category, member
}

// Build produces a BuiltQuery for the question.
//
// Description:
//
//	Infers intent, extracts explicit counts ("top three", "last 6
//	months") with number-word support, clamps top_n to [1,20] and months
//	to [1,24], resolves the effective period, and renders the intent's
//	SQL template. Every invocation re-derives everything from its inputs;
//	nothing is cached.
//
// Thread Safety: Safe for concurrent use.
func Build(p Params) BuiltQuery {
	taxonomy := p.Taxonomy
	if taxonomy == nil {
		taxonomy = config.MustLoadTaxonomy()
	}

	intent := InferIntent(p.Question, p.Intent)

	topN := p.TopN
	if extracted := extractNumber(`top\s+(`+numberToken+`)`, p.Question); extracted != nil {
		topN = *extracted
	}
	if topN == 0 {
		topN = 5
	}
	topN = clamp(topN, 1, 20)

	months := p.Months
	if extracted := extractNumber(`(?:last|past)\s+(`+numberToken+`)\s+months?`, p.Question); extracted != nil {
		months = *extracted
	}
	if months == 0 {
		months = 6
	}
	months = clamp(months, 1, 24)

	effectivePeriod := inferPeriodFromQuestion(p.Question, p.Period)
	where, periodLabel, resolvedCategory, resolvedMember := buildWhereClause(p, taxonomy, effectivePeriod)

	bq := BuiltQuery{
		Intent:           intent,
		PeriodLabel:      periodLabel,
		TopN:             topN,
		Months:           months,
		ResolvedCategory: resolvedCategory,
		ResolvedMember:   resolvedMember,
	}

	switch intent {
	case IntentCategoryBreakdown:
		bq.ToolName = "get_category_breakdown"
		bq.SQL = "SELECT category, ROUND(COALESCE(SUM(amount),0),2) AS total_spend, " +
			"COUNT(*) AS expense_count " +
			"FROM household_expenses " +
			fmt.Sprintf("WHERE %s ", where) +
			"GROUP BY category " +
			"ORDER BY total_spend DESC " +
			"LIMIT 50"

	case IntentMemberBreakdown:
		bq.ToolName = "get_member_breakdown"
		bq.SQL = "SELECT logged_by, ROUND(COALESCE(SUM(amount),0),2) AS total_spend, " +
			"COUNT(*) AS expense_count " +
			"FROM household_expenses " +
			fmt.Sprintf("WHERE %s ", where) +
			"GROUP BY logged_by " +
			"ORDER BY total_spend DESC " +
			"LIMIT 50"

	case IntentTopExpenses:
		bq.ToolName = "get_top_expenses"
		bq.SQL = "SELECT date_incurred, logged_by, category, amount, " +
			"COALESCE(description, merchant_or_item, 'Expense') AS note " +
			"FROM household_expenses " +
			fmt.Sprintf("WHERE %s ", where) +
			"ORDER BY amount DESC " +
			fmt.Sprintf("LIMIT %d", topN)

	case IntentMonthlyTrend:
		monthStart := shiftMonths(firstDayOfMonth(firstOfDay(p.ReferenceDate)), -(months - 1))
		trendWhere := fmt.Sprintf("%s AND date_incurred >= '%s'", where, monthStart.Format(time.DateOnly))
		bq.ToolName = "get_monthly_trend"
		bq.PeriodLabel = fmt.Sprintf("Last %d months", months)
		bq.SQL = "SELECT substr(date_incurred,1,7) AS month, " +
			"ROUND(COALESCE(SUM(amount),0),2) AS total_spend " +
			"FROM household_expenses " +
			fmt.Sprintf("WHERE %s ", trendWhere) +
			"GROUP BY substr(date_incurred,1,7) " +
			"ORDER BY month"

	default:
		bq.Intent = IntentTotalSpend
		bq.ToolName = "get_total_spend"
		bq.SQL = "SELECT ROUND(COALESCE(SUM(amount),0),2) AS total_spend, " +
			"COUNT(*) AS expense_count " +
			"FROM household_expenses " +
			fmt.Sprintf("WHERE %s", where)
	}

	return bq
}
