// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"fmt"
	"strings"
)

// =============================================================================
// Prompt Construction
// =============================================================================

const sqlGeneratorRules = `## Rules
- Only SELECT (or WITH + SELECT), no semicolon.
- Never use INSERT/UPDATE/DELETE/DROP/ALTER/TRUNCATE/CREATE.
- Query ONLY the household_expenses view. It already contains joined,
  household-scoped data. Do not query expenses, users, or households directly.
- Default to confirmed expenses unless the user explicitly asks for draft/all.
- Use LOWER(column) for case-insensitive text comparisons.
- Respect explicit constraints exactly (top N, last N days/months, this month, etc).
- Currency is INR unless the user asks otherwise.`

func buildSQLGeneratorSystemPrompt(schemaText, hintsText string) string {
	var b strings.Builder
	b.WriteString("You are a SQL generator for a household expense analytics assistant.\n")
	b.WriteString("Convert the user question into one valid SQLite SELECT statement.\n\n")
	b.WriteString("Return JSON only:\n")
	b.WriteString(`{"sql":"SELECT ...","reason":"..."}` + "\n\n")
	b.WriteString("## Database schema\n\n")
	b.WriteString(strings.TrimSpace(schemaText))
	b.WriteString("\n\n")
	b.WriteString(sqlGeneratorRules)
	if hints := strings.TrimSpace(hintsText); hints != "" {
		b.WriteString("\n\n## Household context\n")
		b.WriteString(hints)
	}
	return b.String()
}

func buildSQLGeneratorUserPrompt(question string) string {
	return fmt.Sprintf("user_question: %s\nReturn the SQL in JSON.", question)
}

func buildSQLFixerSystemPrompt(schemaText, hintsText string) string {
	var b strings.Builder
	b.WriteString("You fix SQLite SELECT statements for a household expense analytics assistant.\n\n")
	b.WriteString("Return JSON only:\n")
	b.WriteString(`{"sql":"SELECT ...","reason":"..."}` + "\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Keep original user intent.\n")
	b.WriteString("- Query only household_expenses.\n")
	b.WriteString("- Only SELECT (or WITH + SELECT), no semicolon.\n")
	b.WriteString("- No write/schema operations.\n")
	b.WriteString("- Use LOWER(column) for case-insensitive text comparisons if needed.\n\n")
	b.WriteString("## Database schema\n\n")
	b.WriteString(strings.TrimSpace(schemaText))
	if hints := strings.TrimSpace(hintsText); hints != "" {
		b.WriteString("\n\n## Household context\n")
		b.WriteString(hints)
	}
	return b.String()
}

func buildSQLFixerUserPrompt(question, failedSQL, dbError string) string {
	return fmt.Sprintf(
		"user_question: %s\nfailed_sql: %s\ndb_error: %s\nReturn corrected SQL in JSON.",
		question, failedSQL, dbError,
	)
}

const sqlSummarySystemPrompt = `You summarize SQL query results for a household expense assistant.

Return JSON only:
{"answer":"..."}

Rules:
- Answer the user's question directly in one to three sentences.
- Use the numbers from the rows; never invent values.
- Format amounts with two decimals.
- Never mention SQL, tables, columns, or internal identifiers.`

func buildSQLSummaryUserPrompt(question, sqlQuery, columnsJSON, rowsJSON string) string {
	return fmt.Sprintf(
		"user_question: %s\nsql: %s\ncolumns: %s\nrows: %s\nReturn the answer in JSON.",
		question, sqlQuery, columnsJSON, rowsJSON,
	)
}

// buildToolLoopSystemPrompt frames the tool-calling strategy: the model
// drives run_sql_query and then narrates the result.
func buildToolLoopSystemPrompt(schemaText, hintsText string) string {
	var b strings.Builder
	b.WriteString("You are a SQL analyst for a household expense assistant.\n\n")
	b.WriteString("## Task\n")
	b.WriteString("- Convert user questions into valid SQLite SELECT queries.\n")
	b.WriteString("- Always use the run_sql_query tool to execute SQL.\n")
	b.WriteString("- After tool output, answer in clear text.\n")
	b.WriteString("- If tabular rows are returned, prefer markdown table output.\n\n")
	b.WriteString("## Database schema\n\n")
	b.WriteString(strings.TrimSpace(schemaText))
	b.WriteString("\n\n")
	b.WriteString(sqlGeneratorRules)
	if hints := strings.TrimSpace(hintsText); hints != "" {
		b.WriteString("\n\n## Household context\n")
		b.WriteString(hints)
	}
	return b.String()
}
