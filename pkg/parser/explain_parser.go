package parser

import (
	"github.com/aodsql/aodsql/pkg/ast"
	"github.com/aodsql/aodsql/pkg/dbfmt"
	"github.com/aodsql/aodsql/pkg/lexer"
)

// parseExplainStatement parses EXPLAIN [ANALYZE] stmt per spec §4.2/§8,
// simplified from the teacher's multi-dialect EXPLAIN options (FORMAT=...,
// VERBOSE, etc.) since AODSQL drops the dialect abstraction entirely.
func (p *Parser) parseExplainStatement() (ast.Statement, *dbfmt.Error) {
	pos := p.pos()
	p.nextToken() // EXPLAIN
	analyze := false
	if p.curTokenIs(lexer.ANALYZE) {
		analyze = true
		p.nextToken()
	}
	inner, err := p.ParseStatement()
	if err != nil {
		return nil, err
	}
	return &ast.ExplainStatement{BaseNode: ast.BaseNode{Position: pos}, Analyze: analyze, Statement: inner}, nil
}
