package parser

import (
	"github.com/aodsql/aodsql/pkg/ast"
	"github.com/aodsql/aodsql/pkg/dbfmt"
	"github.com/aodsql/aodsql/pkg/lexer"
)

// parseDeclareCursorStatement parses DECLARE name CURSOR FOR select-stmt,
// spec §4.2's cursor grammar, grounded on the teacher's procedure_parser.go
// cursor handling but trimmed of stored-procedure-local-variable scope.
func (p *Parser) parseDeclareCursorStatement() (ast.Statement, *dbfmt.Error) {
	pos := p.pos()
	p.nextToken() // DECLARE
	name, err := p.expect(lexer.IDENT)
	if err != nil {
		return nil, err
	}
	if _, e := p.expect(lexer.CURSOR); e != nil {
		return nil, e
	}
	if _, e := p.expect(lexer.FOR); e != nil {
		return nil, e
	}
	sel, serr := p.parseSelectStatement()
	if serr != nil {
		return nil, serr
	}
	return &ast.DeclareCursorStatement{BaseNode: ast.BaseNode{Position: pos}, Name: name.Literal, Select: sel.(*ast.SelectStatement)}, nil
}

func (p *Parser) parseOpenCursorStatement() (ast.Statement, *dbfmt.Error) {
	pos := p.pos()
	p.nextToken() // OPEN
	name, err := p.expect(lexer.IDENT)
	if err != nil {
		return nil, err
	}
	return &ast.OpenCursorStatement{BaseNode: ast.BaseNode{Position: pos}, Name: name.Literal}, nil
}

func (p *Parser) parseFetchCursorStatement() (ast.Statement, *dbfmt.Error) {
	pos := p.pos()
	p.nextToken() // FETCH
	if p.curTokenIs(lexer.FROM) {
		p.nextToken()
	}
	name, err := p.expect(lexer.IDENT)
	if err != nil {
		return nil, err
	}
	return &ast.FetchCursorStatement{BaseNode: ast.BaseNode{Position: pos}, Name: name.Literal}, nil
}

func (p *Parser) parseCloseCursorStatement() (ast.Statement, *dbfmt.Error) {
	pos := p.pos()
	p.nextToken() // CLOSE
	name, err := p.expect(lexer.IDENT)
	if err != nil {
		return nil, err
	}
	return &ast.CloseCursorStatement{BaseNode: ast.BaseNode{Position: pos}, Name: name.Literal}, nil
}
