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
	"fmt"
	"strings"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"
)

// validateAST parses the statement and walks the tree for structural
// violations.
//
// Description:
//
//	A statement that fails to parse is rejected outright; the regex layer
//	is a second check on parsed statements, not a substitute for parsing.
//	The walk rejects any table reference outside the allow list (naming
//	the offending table in the reason), schema-qualified references,
//	deny-listed function calls, and SELECTs with an empty projection.
//
// Outputs:
//   - map[string]struct{}: Lowercased CTE names defined by the statement,
//     for use by the regex table scan.
//   - bool: True if the structural layer passed.
//   - string: Rejection reason when false.
func validateAST(sql string, allowedTables map[string]struct{}) (map[string]struct{}, bool, string) {
	p := parser.New()
	stmts, _, err := p.ParseSQL(sql)
	if err != nil {
		return nil, false, fmt.Sprintf("SQL parse failed: %v", err)
	}
	if len(stmts) != 1 {
		return nil, false, "multiple statements are not allowed"
	}

	switch stmts[0].(type) {
	case *ast.SelectStmt, *ast.SetOprStmt:
		// read-only statement shapes
	default:
		return nil, false, "only SELECT statements are allowed"
	}

	ctes := collectCTENames(stmts[0])

	v := &guardVisitor{
		allowedTables: allowedTables,
		cteNames:      ctes,
	}
	stmts[0].Accept(v)
	if v.reason != "" {
		return ctes, false, v.reason
	}

	return ctes, true, ""
}

// collectCTENames walks the statement once to gather WITH-clause names so
// that references to them are not treated as foreign tables.
func collectCTENames(stmt ast.StmtNode) map[string]struct{} {
	c := &cteCollector{names: make(map[string]struct{})}
	stmt.Accept(c)
	return c.names
}

type cteCollector struct {
	names map[string]struct{}
}

func (c *cteCollector) Enter(in ast.Node) (ast.Node, bool) {
	if cte, ok := in.(*ast.CommonTableExpression); ok {
		c.names[cte.Name.L] = struct{}{}
	}
	return in, false
}

func (c *cteCollector) Leave(in ast.Node) (ast.Node, bool) {
	return in, true
}

// guardVisitor records the first structural violation it encounters.
type guardVisitor struct {
	allowedTables map[string]struct{}
	cteNames      map[string]struct{}
	reason        string
}

func (v *guardVisitor) Enter(in ast.Node) (ast.Node, bool) {
	switch n := in.(type) {
	case *ast.SelectStmt:
		if n.Fields == nil || len(n.Fields.Fields) == 0 {
			v.reason = "SELECT with empty projection"
			return in, true
		}
	case *ast.TableName:
		if n.Schema.L != "" {
			v.reason = fmt.Sprintf("schema-qualified table is not allowed: %s.%s", n.Schema.L, n.Name.L)
			return in, true
		}
		name := n.Name.L
		if _, ok := v.allowedTables[name]; ok {
			return in, false
		}
		if _, ok := v.cteNames[name]; ok {
			return in, false
		}
		v.reason = fmt.Sprintf("table is not allowed: %s", name)
		return in, true
	case *ast.FuncCallExpr:
		fn := strings.ToLower(n.FnName.L)
		if _, bad := forbiddenFunctions[fn]; bad {
			v.reason = fmt.Sprintf("forbidden function: %s", fn)
			return in, true
		}
	}
	return in, false
}

func (v *guardVisitor) Leave(in ast.Node) (ast.Node, bool) {
	// A recorded reason aborts the walk early.
	return in, v.reason == ""
}
