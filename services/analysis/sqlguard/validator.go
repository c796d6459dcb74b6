// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sqlguard validates model-generated SQL before execution.
//
// Description:
//
//	Defense in depth with three layers that all must pass:
//	  1. Lexical: statement shape (single statement, SELECT/WITH prefix)
//	     and a keyword deny list matched on whole tokens.
//	  2. Structural: a real SQL parse that rejects write/DDL statements,
//	     references to tables outside the allow list, deny-listed function
//	     calls, and empty projections.
//	  3. Regex: a FROM/JOIN table scan that always runs in addition to the
//	     structural layer, so a parser gap can only make validation
//	     stricter, never looser.
//
//	Validation is pure: no I/O, no logging, no shared state.
//
// Thread Safety: All functions in this package are safe for concurrent use.
package sqlguard

import (
	"fmt"
	"regexp"
	"strings"
)

// forbiddenKeywords are statement keywords that must never appear anywhere
// in a candidate query, not even in subqueries.
var forbiddenKeywords = map[string]struct{}{
	"insert":   {},
	"update":   {},
	"delete":   {},
	"drop":     {},
	"alter":    {},
	"truncate": {},
	"create":   {},
	"replace":  {},
	"attach":   {},
	"detach":   {},
	"pragma":   {},
	"vacuum":   {},
	"reindex":  {},
	"grant":    {},
	"revoke":   {},
	"copy":     {},
	"execute":  {},
}

// forbiddenSchemas are catalog/metadata namespaces that would let a query
// enumerate tables outside the sandbox.
var forbiddenSchemas = []string{
	"information_schema",
	"sqlite_master",
	"pg_catalog",
}

// forbiddenFunctions are server-side functions with I/O or timing side
// effects. Matched case-insensitively against every function call.
var forbiddenFunctions = map[string]struct{}{
	"pg_sleep":       {},
	"dblink_connect": {},
	"dblink_exec":    {},
	"pg_read_file":   {},
	"lo_import":      {},
}

var (
	tokenPattern     = regexp.MustCompile(`[a-z_][a-z0-9_$]*`)
	fromJoinPattern  = regexp.MustCompile(`(?i)\b(?:from|join)\s+([a-zA-Z_][a-zA-Z0-9_.]*)`)
	functionPattern  = regexp.MustCompile(`(?i)\b([a-z_][a-z0-9_]*)\s*\(`)
	leadingWSPattern = regexp.MustCompile(`^\s+`)
)

// Validate checks a candidate SQL statement against all three layers.
//
// Description:
//
//	Runs the lexical layer, then the structural (parser) layer, then the
//	regex table scan. The first failing layer short-circuits with a
//	machine-readable reason. A query is only executable when every layer
//	passes.
//
// Inputs:
//   - sql: The candidate statement. Leading/trailing whitespace is ignored.
//   - allowedTables: Lowercased table names the query may reference.
//     CTE names defined by the query itself are additionally allowed.
//
// Outputs:
//   - bool: True if the statement is safe to execute.
//   - string: Empty when valid, otherwise the rejection reason.
//
// Thread Safety: Safe for concurrent use.
func Validate(sql string, allowedTables map[string]struct{}) (bool, string) {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return false, "empty SQL statement"
	}

	if strings.Contains(trimmed, ";") {
		return false, "multiple statements are not allowed"
	}

	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return false, "only SELECT statements are allowed"
	}

	if ok, reason := checkForbiddenTokens(trimmed); !ok {
		return false, reason
	}

	cteNames, ok, reason := validateAST(trimmed, allowedTables)
	if !ok {
		return false, reason
	}

	// The regex scan runs even after a clean parse. It can only reject.
	if ok, reason := checkTablesByRegex(trimmed, allowedTables, cteNames); !ok {
		return false, reason
	}

	if ok, reason := checkFunctionsByRegex(trimmed); !ok {
		return false, reason
	}

	return true, ""
}

// checkForbiddenTokens tokenizes the statement and rejects deny-listed
// keywords and catalog schema references.
func checkForbiddenTokens(sql string) (bool, string) {
	lower := strings.ToLower(sql)

	for _, schema := range forbiddenSchemas {
		if strings.Contains(lower, schema) {
			return false, fmt.Sprintf("forbidden reference: %s", schema)
		}
	}

	for _, token := range tokenPattern.FindAllString(lower, -1) {
		if _, bad := forbiddenKeywords[token]; bad {
			return false, fmt.Sprintf("forbidden keyword: %s", strings.ToUpper(token))
		}
	}

	return true, ""
}

// checkTablesByRegex scans FROM/JOIN targets and requires each to be an
// allowed table or a CTE defined by the statement itself.
func checkTablesByRegex(sql string, allowedTables, cteNames map[string]struct{}) (bool, string) {
	for _, match := range fromJoinPattern.FindAllStringSubmatch(sql, -1) {
		name := strings.ToLower(match[1])
		// Strip a schema qualifier; the bare name must still be allowed.
		if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
			return false, fmt.Sprintf("schema-qualified table is not allowed: %s", name)
		}
		if _, ok := allowedTables[name]; ok {
			continue
		}
		if _, ok := cteNames[name]; ok {
			continue
		}
		return false, fmt.Sprintf("table is not allowed: %s", name)
	}
	return true, ""
}

// checkFunctionsByRegex rejects deny-listed function calls even when the
// structural layer did not surface them.
func checkFunctionsByRegex(sql string) (bool, string) {
	for _, match := range functionPattern.FindAllStringSubmatch(sql, -1) {
		name := strings.ToLower(match[1])
		if _, bad := forbiddenFunctions[name]; bad {
			return false, fmt.Sprintf("forbidden function: %s", name)
		}
	}
	return true, ""
}
