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
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Output sanitation for the ask endpoint. Internal identifier columns and
// raw UUIDs must never reach the user, no matter what SQL the model wrote
// or what text it produced.
var (
	uuidPattern = regexp.MustCompile(
		`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[1-5][0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}\b`)
	internalIDColumnPattern = regexp.MustCompile(`(?i)_id$`)
	internalTokenPattern    = regexp.MustCompile(
		`(?i)\b(?:expense_id|household_id|logged_by_user_id|user_id)\b`)
	markdownTablePattern = regexp.MustCompile(
		`\|.+\|\s*\n\|\s*[-:| ]+\|\s*\n\|.+\|`)
)

// redactUUIDs replaces every UUID in the text with the word "member".
func redactUUIDs(text string) string {
	return uuidPattern.ReplaceAllString(text, "member")
}

// isInternalIDColumn reports whether a result column must be stripped
// before the table is returned to the user.
func isInternalIDColumn(column string) bool {
	normalized := strings.ToLower(strings.TrimSpace(column))
	switch normalized {
	case "expense_id", "household_id", "logged_by_user_id", "user_id":
		return true
	}
	return internalIDColumnPattern.MatchString(normalized)
}

// sanitizeTable strips internal identifier columns and redacts UUIDs that
// appear in string cells.
//
// Description:
//
//	If every column would be stripped, all columns are kept instead so the
//	caller never receives an empty table for a non-empty result. Rows
//	shorter than the column list are padded with empty strings.
//
// Inputs:
//   - columns: Result column names.
//   - rows: Result rows. Cells are string, int64, or float64.
//
// Outputs:
//   - []string: The surviving column names.
//   - [][]any: The sanitized rows, same order as the input.
func sanitizeTable(columns []string, rows [][]any) ([]string, [][]any) {
	if len(columns) == 0 {
		return []string{}, [][]any{}
	}

	keep := make([]int, 0, len(columns))
	for idx, column := range columns {
		if !isInternalIDColumn(column) {
			keep = append(keep, idx)
		}
	}
	if len(keep) == 0 {
		keep = keep[:0]
		for idx := range columns {
			keep = append(keep, idx)
		}
	}

	safeColumns := make([]string, 0, len(keep))
	for _, idx := range keep {
		safeColumns = append(safeColumns, columns[idx])
	}

	safeRows := make([][]any, 0, len(rows))
	for _, row := range rows {
		safeRow := make([]any, 0, len(keep))
		for _, idx := range keep {
			var value any = ""
			if idx < len(row) {
				value = row[idx]
			}
			if text, ok := value.(string); ok {
				safeRow = append(safeRow, redactUUIDs(text))
			} else {
				safeRow = append(safeRow, value)
			}
		}
		safeRows = append(safeRows, safeRow)
	}
	return safeColumns, safeRows
}

// findColumnIndex returns the index of the first column whose name matches
// one of the candidates, case-insensitively. Returns -1 when none match.
func findColumnIndex(columns []string, names ...string) int {
	lowered := make(map[string]int, len(columns))
	for idx, column := range columns {
		key := strings.ToLower(column)
		if _, exists := lowered[key]; !exists {
			lowered[key] = idx
		}
	}
	for _, name := range names {
		if idx, ok := lowered[strings.ToLower(name)]; ok {
			return idx
		}
	}
	return -1
}

// formatDateForAnswer renders an ISO date or timestamp as "Jan 2, 2006".
// Unparseable input comes back unchanged.
func formatDateForAnswer(value string) string {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return ""
	}
	normalized := strings.Replace(raw, "Z", "+00:00", 1)
	for _, layout := range []string{
		"2006-01-02T15:04:05.999999999-07:00",
		"2006-01-02T15:04:05-07:00",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	} {
		if parsed, err := time.Parse(layout, normalized); err == nil {
			return parsed.Format("Jan 2, 2006")
		}
	}
	return raw
}

// formatAmountForAnswer renders an amount cell as "1,234.56 INR".
// Non-numeric cells come back as plain strings. The currency defaults to
// INR when blank.
func formatAmountForAnswer(value any, currency string) string {
	numeric, ok := numericCell(value)
	if !ok {
		return fmt.Sprintf("%v", value)
	}
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" {
		code = "INR"
	}
	return fmt.Sprintf("%s %s", groupThousands(numeric), code)
}

// numericCell coerces a result cell to float64 when possible.
func numericCell(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// groupThousands formats a float with two decimals and comma separators.
func groupThousands(value float64) string {
	text := strconv.FormatFloat(value, 'f', 2, 64)
	sign := ""
	if strings.HasPrefix(text, "-") {
		sign = "-"
		text = text[1:]
	}
	whole, frac, _ := strings.Cut(text, ".")
	if len(whole) <= 3 {
		return sign + whole + "." + frac
	}
	var parts []string
	for len(whole) > 3 {
		parts = append([]string{whole[len(whole)-3:]}, parts...)
		whole = whole[:len(whole)-3]
	}
	parts = append([]string{whole}, parts...)
	return sign + strings.Join(parts, ",") + "." + frac
}

// cellText renders a result cell the way the friendly summary needs it.
func cellText(row []any, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(fmt.Sprintf("%v", row[idx]))
}

// buildFriendlyRowSummary turns one result row into a readable sentence.
//
// Description:
//
//	Looks up the well-known expense columns and assembles whatever is
//	present: "<person> spent <amount> in <category> for <description> on
//	<date>.". A row with none of them still gets a sentence.
func buildFriendlyRowSummary(columns []string, row []any) string {
	personIdx := findColumnIndex(columns, "logged_by", "user_name", "member", "person")
	amountIdx := findColumnIndex(columns, "amount", "total", "sum", "spend")
	currencyIdx := findColumnIndex(columns, "currency")
	categoryIdx := findColumnIndex(columns, "category")
	subcategoryIdx := findColumnIndex(columns, "subcategory")
	descIdx := findColumnIndex(columns, "description", "merchant_or_item", "merchant")
	dateIdx := findColumnIndex(columns, "date_incurred", "date", "created_at")

	person := cellText(row, personIdx)
	category := cellText(row, categoryIdx)
	subcategory := cellText(row, subcategoryIdx)
	description := cellText(row, descIdx)

	dateText := ""
	if dateIdx >= 0 && dateIdx < len(row) {
		dateText = formatDateForAnswer(cellText(row, dateIdx))
	}

	currency := "INR"
	if currencyIdx >= 0 && currencyIdx < len(row) {
		currency = cellText(row, currencyIdx)
	}

	amountText := ""
	if amountIdx >= 0 && amountIdx < len(row) {
		amountText = formatAmountForAnswer(row[amountIdx], currency)
	}

	categoryLabel := category
	if category != "" && subcategory != "" && !strings.EqualFold(subcategory, category) {
		categoryLabel = category + " > " + subcategory
	}

	subject := person
	if subject == "" {
		subject = "A household member"
	}

	var parts []string
	if amountText != "" {
		parts = append(parts, "spent "+amountText)
	}
	if categoryLabel != "" {
		parts = append(parts, "in "+categoryLabel)
	}
	if description != "" {
		parts = append(parts, "for "+description)
	}
	if dateText != "" {
		parts = append(parts, "on "+dateText)
	}
	if len(parts) > 0 {
		return subject + " " + strings.Join(parts, " ") + "."
	}
	return subject + " logged an expense."
}

// buildFriendlyAnswer renders the result table as a short readable reply
// with at most three bullet summaries.
func buildFriendlyAnswer(question string, columns []string, rows [][]any) string {
	if len(rows) == 0 {
		return "I could not find matching confirmed expenses for that request. " +
			"If you want, I can try a wider date range or include draft entries."
	}
	previewCount := len(rows)
	if previewCount > 3 {
		previewCount = 3
	}
	lines := []string{fmt.Sprintf("Sure - here is what I found for %q:", question)}
	for _, row := range rows[:previewCount] {
		lines = append(lines, "- "+buildFriendlyRowSummary(columns, row))
	}
	if len(rows) > previewCount {
		lines = append(lines, fmt.Sprintf(
			"I found %d matching rows in total, and showed the first %d above.",
			len(rows), previewCount))
	}
	return strings.Join(lines, "\n")
}

// containsMarkdownTable reports whether the text includes a well-formed
// markdown table, which renders fine and does not need rewriting.
func containsMarkdownTable(text string) bool {
	return markdownTablePattern.MatchString(text)
}

// looksLikeRawTableDump reports whether the model's answer is a raw result
// dump rather than prose, in which case it is replaced with the friendly
// summary.
func looksLikeRawTableDump(text string) bool {
	stripped := strings.TrimSpace(text)
	if stripped == "" {
		return true
	}
	if containsMarkdownTable(stripped) {
		return false
	}
	low := strings.ToLower(stripped)
	if strings.Contains(stripped, "------") && strings.Contains(stripped, "|") {
		return true
	}
	for _, token := range []string{"user_id", "expense_id", "household_id", "logged_by_user_id"} {
		if strings.Contains(low, token) {
			return true
		}
	}
	if strings.HasPrefix(stripped, "[{") || strings.HasPrefix(stripped, "{'") ||
		strings.HasPrefix(stripped, "[(") {
		return true
	}
	if strings.Contains(low, "row(") || strings.Contains(low, "mappings()") {
		return true
	}
	return false
}

// finalizeUserAnswer cleans the model's answer for the user.
//
// Description:
//
//	UUIDs and internal column tokens are redacted unconditionally. On a
//	successful run, an answer that still reads like a raw table dump is
//	replaced with the friendly summary built from the sanitized rows.
func finalizeUserAnswer(question, rawAnswer string, columns []string, rows [][]any, success bool) string {
	clean := redactUUIDs(rawAnswer)
	clean = strings.TrimSpace(internalTokenPattern.ReplaceAllString(clean, "member"))
	if !success {
		return clean
	}
	if looksLikeRawTableDump(clean) {
		return buildFriendlyAnswer(question, columns, rows)
	}
	return clean
}

// defaultAnswer is the fallback text when the model produced no usable
// answer for an executed query.
func defaultAnswer(question string, columns []string, rows [][]any) string {
	if len(rows) == 0 {
		return "No matching expenses were found."
	}
	if len(rows) == 1 {
		limit := len(columns)
		if limit > 4 {
			limit = 4
		}
		parts := make([]string, 0, limit)
		for i := 0; i < limit; i++ {
			var value any = ""
			if i < len(rows[0]) {
				value = rows[0][i]
			}
			parts = append(parts, fmt.Sprintf("%s=%v", columns[i], value))
		}
		return fmt.Sprintf("Result for '%s': %s.", question, strings.Join(parts, ", "))
	}
	return fmt.Sprintf("I found %d row(s) for '%s'.", len(rows), question)
}
