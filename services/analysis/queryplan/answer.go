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
	"fmt"
	"strconv"
	"strings"
)

func cellFloat(row []any, index int) float64 {
	if index >= len(row) {
		return 0
	}
	switch v := row[index].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case string:
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return parsed
		}
	}
	return 0
}

func cellInt(row []any, index int) int {
	if index >= len(row) {
		return 0
	}
	switch v := row[index].(type) {
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return parsed
		}
	}
	return 0
}

func cellString(row []any, index int) string {
	if index >= len(row) {
		return "Unknown"
	}
	if s, ok := row[index].(string); ok && s != "" {
		return s
	}
	if row[index] == nil {
		return "Unknown"
	}
	return fmt.Sprintf("%v", row[index])
}

// BuildAnswer renders a short natural-language summary of a deterministic
// query result. Each intent has a fixed template; the period label is
// lowercased for mid-sentence use.
func BuildAnswer(query BuiltQuery, cols []string, rows [][]any) string {
	period := strings.ToLower(query.PeriodLabel)

	switch query.Intent {
	case IntentTotalSpend:
		if len(rows) == 0 {
			return fmt.Sprintf("No matching expenses found for %s.", period)
		}
		total := cellFloat(rows[0], 0)
		count := cellInt(rows[0], 1)
		var subjectParts []string
		if query.ResolvedCategory != "" {
			subjectParts = append(subjectParts, "category "+query.ResolvedCategory)
		}
		if query.ResolvedMember != "" {
			subjectParts = append(subjectParts, "member "+query.ResolvedMember)
		}
		subject := ""
		if len(subjectParts) > 0 {
			subject = " for " + strings.Join(subjectParts, " and ")
		}
		return fmt.Sprintf("Total spend for %s%s is %.2f across %d expense(s).",
			period, subject, total, count)

	case IntentCategoryBreakdown:
		if len(rows) == 0 {
			return fmt.Sprintf("No category expenses found for %s.", period)
		}
		return fmt.Sprintf("Category breakdown for %s is ready. Top category is %s at %.2f.",
			period, cellString(rows[0], 0), cellFloat(rows[0], 1))

	case IntentMemberBreakdown:
		if len(rows) == 0 {
			return fmt.Sprintf("No member expenses found for %s.", period)
		}
		return fmt.Sprintf("Member breakdown for %s is ready. Highest spender is %s at %.2f.",
			period, cellString(rows[0], 0), cellFloat(rows[0], 1))

	case IntentTopExpenses:
		if len(rows) == 0 {
			return fmt.Sprintf("No expenses found for %s.", period)
		}
		return fmt.Sprintf("Top %d expense(s) for %s are listed. Highest is %.2f.",
			len(rows), period, cellFloat(rows[0], 3))

	case IntentMonthlyTrend:
		if len(rows) == 0 {
			return fmt.Sprintf("No monthly trend data found for %s.", period)
		}
		peakMonth, peakValue := "n/a", 0.0
		for i, row := range rows {
			value := cellFloat(row, 1)
			if i == 0 || value > peakValue {
				peakMonth = cellString(row, 0)
				peakValue = value
			}
		}
		return fmt.Sprintf("Monthly trend for %s is ready. Highest month is %s at %.2f.",
			period, peakMonth, peakValue)
	}

	if len(rows) == 0 {
		return "No matching expenses found."
	}
	if len(rows) == 1 {
		parts := make([]string, 0, 3)
		for i := 0; i < len(cols) && i < 3; i++ {
			parts = append(parts, fmt.Sprintf("%s=%v", cols[i], rows[0][i]))
		}
		return fmt.Sprintf("Computed result: %s.", strings.Join(parts, ", "))
	}
	return fmt.Sprintf("Found %d row(s) matching your question.", len(rows))
}
