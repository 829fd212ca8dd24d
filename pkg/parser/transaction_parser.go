package parser

import (
	"github.com/aodsql/aodsql/pkg/ast"
	"github.com/aodsql/aodsql/pkg/dbfmt"
	"github.com/aodsql/aodsql/pkg/lexer"
)

func (p *Parser) parseBeginStatement() (ast.Statement, *dbfmt.Error) {
	pos := p.pos()
	p.nextToken() // BEGIN or START
	if p.curTokenIs(lexer.TRANSACTION) || p.curTokenIs(lexer.WORK) {
		p.nextToken()
	}
	return &ast.BeginStatement{BaseNode: ast.BaseNode{Position: pos}}, nil
}

func (p *Parser) parseCommitStatement() (ast.Statement, *dbfmt.Error) {
	pos := p.pos()
	p.nextToken() // COMMIT
	if p.curTokenIs(lexer.WORK) {
		p.nextToken()
	}
	return &ast.CommitStatement{BaseNode: ast.BaseNode{Position: pos}}, nil
}

func (p *Parser) parseRollbackStatement() (ast.Statement, *dbfmt.Error) {
	pos := p.pos()
	p.nextToken() // ROLLBACK
	if p.curTokenIs(lexer.WORK) {
		p.nextToken()
	}
	stmt := &ast.RollbackStatement{BaseNode: ast.BaseNode{Position: pos}}
	if p.curTokenIs(lexer.TO) {
		p.nextToken()
		if p.curTokenIs(lexer.SAVEPOINT) {
			p.nextToken()
		}
		name, err := p.expect(lexer.IDENT)
		if err != nil {
			return nil, err
		}
		stmt.ToSavepoint = name.Literal
	}
	return stmt, nil
}

func (p *Parser) parseSavepointStatement() (ast.Statement, *dbfmt.Error) {
	pos := p.pos()
	p.nextToken() // SAVEPOINT
	name, err := p.expect(lexer.IDENT)
	if err != nil {
		return nil, err
	}
	return &ast.SavepointStatement{BaseNode: ast.BaseNode{Position: pos}, Name: name.Literal}, nil
}

func (p *Parser) parseReleaseSavepointStatement() (ast.Statement, *dbfmt.Error) {
	pos := p.pos()
	p.nextToken() // RELEASE
	if p.curTokenIs(lexer.SAVEPOINT) {
		p.nextToken()
	}
	name, err := p.expect(lexer.IDENT)
	if err != nil {
		return nil, err
	}
	return &ast.ReleaseSavepointStatement{BaseNode: ast.BaseNode{Position: pos}, Name: name.Literal}, nil
}
