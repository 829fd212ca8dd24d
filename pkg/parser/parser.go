// Package parser implements the recursive-descent parser of spec §4.2,
// lowering a token stream from pkg/lexer into the pkg/ast tree. Grounded on
// the teacher's parser.go structure (cur/peek token pair, context threaded
// for cancellation, accumulated error list) generalized to the spec's
// grammar subset and pkg/ast's canonical node set.
package parser

import (
	"context"
	"strconv"

	"github.com/aodsql/aodsql/pkg/ast"
	"github.com/aodsql/aodsql/pkg/dbfmt"
	"github.com/aodsql/aodsql/pkg/lexer"
)

// Parser turns a token stream into one or more ast.Statement trees.
type Parser struct {
	l   *lexer.Lexer
	ctx context.Context

	curToken  lexer.Token
	peekToken lexer.Token

	errors []string
}

// New creates a Parser over SQL source text.
func New(input string) *Parser {
	return NewWithContext(context.Background(), input)
}

// NewWithContext creates a Parser whose parsing loop checks ctx for
// cancellation between statements, matching the teacher's context-aware
// parsing convention.
func NewWithContext(ctx context.Context, input string) *Parser {
	p := &Parser{l: lexer.New(input), ctx: ctx}
	p.nextToken()
	p.nextToken()
	return p
}

func (p *Parser) Errors() []string { return p.errors }

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
}

func (p *Parser) curTokenIs(t lexer.TokenType) bool  { return p.curToken.Type == t }
func (p *Parser) peekTokenIs(t lexer.TokenType) bool { return p.peekToken.Type == t }

func (p *Parser) pos() dbfmt.Position {
	return dbfmt.Position{Line: p.curToken.Line, Column: p.curToken.Column}
}

func (p *Parser) errorf(format string, args ...interface{}) *dbfmt.Error {
	err := dbfmt.Parse(p.pos(), format, args...)
	p.errors = append(p.errors, err.Error())
	return err
}

func (p *Parser) expect(t lexer.TokenType) (lexer.Token, *dbfmt.Error) {
	if !p.curTokenIs(t) {
		return lexer.Token{}, p.errorf("expected %s, got %s (%q)", t, p.curToken.Type, p.curToken.Literal)
	}
	tok := p.curToken
	p.nextToken()
	return tok, nil
}

// ParseProgram parses every statement in the input, each terminated by an
// optional trailing semicolon, until EOF.
func (p *Parser) ParseProgram() ([]ast.Statement, *dbfmt.Error) {
	var stmts []ast.Statement
	for !p.curTokenIs(lexer.EOF) {
		select {
		case <-p.ctx.Done():
			return stmts, dbfmt.Parse(p.pos(), "parsing cancelled")
		default:
		}
		if p.curTokenIs(lexer.SEMICOLON) {
			p.nextToken()
			continue
		}
		stmt, err := p.ParseStatement()
		if err != nil {
			return stmts, err
		}
		stmts = append(stmts, stmt)
		if p.curTokenIs(lexer.SEMICOLON) {
			p.nextToken()
		}
	}
	return stmts, nil
}

// ParseStatement dispatches on the current token to the appropriate
// statement-level parse function.
func (p *Parser) ParseStatement() (ast.Statement, *dbfmt.Error) {
	if lexErr := p.l.Err(); lexErr != nil {
		return nil, lexErr
	}
	switch p.curToken.Type {
	case lexer.SELECT:
		return p.parseSelectStatement()
	case lexer.INSERT:
		return p.parseInsertStatement()
	case lexer.UPDATE:
		return p.parseUpdateStatement()
	case lexer.DELETE:
		return p.parseDeleteStatement()
	case lexer.CREATE:
		return p.parseCreateStatement()
	case lexer.DROP:
		return p.parseDropStatement()
	case lexer.ALTER:
		return p.parseAlterStatement()
	case lexer.SHOW:
		return p.parseShowStatement()
	case lexer.EXPLAIN:
		return p.parseExplainStatement()
	case lexer.BEGIN, lexer.START:
		return p.parseBeginStatement()
	case lexer.COMMIT:
		return p.parseCommitStatement()
	case lexer.ROLLBACK:
		return p.parseRollbackStatement()
	case lexer.SAVEPOINT:
		return p.parseSavepointStatement()
	case lexer.RELEASE:
		return p.parseReleaseSavepointStatement()
	case lexer.DECLARE:
		return p.parseDeclareCursorStatement()
	case lexer.OPEN:
		return p.parseOpenCursorStatement()
	case lexer.FETCH:
		return p.parseFetchCursorStatement()
	case lexer.CLOSE:
		return p.parseCloseCursorStatement()
	case lexer.USE:
		return p.parseUseStatement()
	default:
		return nil, p.errorf("unexpected token %s at start of statement", p.curToken.Type)
	}
}

// ---------------------------------------------------------------------
// SELECT
// ---------------------------------------------------------------------

func (p *Parser) parseSelectStatement() (ast.Statement, *dbfmt.Error) {
	stmt := &ast.SelectStatement{BaseNode: ast.BaseNode{Position: p.pos()}}
	p.nextToken() // consume SELECT

	if p.curTokenIs(lexer.DISTINCT) {
		stmt.Distinct = true
		p.nextToken()
	}

	cols, err := p.parseSelectList()
	if err != nil {
		return nil, err
	}
	stmt.Columns = cols

	if p.curTokenIs(lexer.FROM) {
		p.nextToken()
		from, ferr := p.parseFromClause()
		if ferr != nil {
			return nil, ferr
		}
		stmt.From = from
	}

	if p.curTokenIs(lexer.WHERE) {
		p.nextToken()
		cond, werr := p.parseExpression()
		if werr != nil {
			return nil, werr
		}
		stmt.Where = cond
	}

	if p.curTokenIs(lexer.GROUP) {
		p.nextToken()
		if _, e := p.expect(lexer.BY); e != nil {
			return nil, e
		}
		gb, gerr := p.parseExpressionList()
		if gerr != nil {
			return nil, gerr
		}
		stmt.GroupBy = gb
	}

	if p.curTokenIs(lexer.HAVING) {
		p.nextToken()
		cond, herr := p.parseExpression()
		if herr != nil {
			return nil, herr
		}
		stmt.Having = cond
	}

	if p.curTokenIs(lexer.ORDER) {
		p.nextToken()
		if _, e := p.expect(lexer.BY); e != nil {
			return nil, e
		}
		ob, oerr := p.parseOrderByList()
		if oerr != nil {
			return nil, oerr
		}
		stmt.OrderBy = ob
	}

	if p.curTokenIs(lexer.LIMIT) {
		p.nextToken()
		n, lerr := p.parseIntLiteralValue()
		if lerr != nil {
			return nil, lerr
		}
		stmt.Limit = &n
		if p.curTokenIs(lexer.OFFSET) {
			p.nextToken()
			m, oerr := p.parseIntLiteralValue()
			if oerr != nil {
				return nil, oerr
			}
			stmt.Offset = &m
		}
	}

	return stmt, nil
}

func (p *Parser) parseIntLiteralValue() (int64, *dbfmt.Error) {
	if !p.curTokenIs(lexer.NUMBER) {
		return 0, p.errorf("expected integer, got %s", p.curToken.Type)
	}
	n, convErr := strconv.ParseInt(p.curToken.Literal, 10, 64)
	if convErr != nil {
		return 0, p.errorf("invalid integer literal %q", p.curToken.Literal)
	}
	p.nextToken()
	return n, nil
}

func (p *Parser) parseSelectList() ([]ast.Expression, *dbfmt.Error) {
	var items []ast.Expression
	for {
		item, err := p.parseSelectItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if p.curTokenIs(lexer.COMMA) {
			p.nextToken()
			continue
		}
		break
	}
	return items, nil
}

func (p *Parser) parseSelectItem() (ast.Expression, *dbfmt.Error) {
	pos := p.pos()
	if p.curTokenIs(lexer.ASTERISK) {
		p.nextToken()
		return &ast.StarExpr{BaseNode: ast.BaseNode{Position: pos}}, nil
	}
	if p.curTokenIs(lexer.IDENT) && p.peekTokenIs(lexer.DOT) {
		// could be table.* or table.column
		table := p.curToken.Literal
		p.nextToken() // ident
		p.nextToken() // dot
		if p.curTokenIs(lexer.ASTERISK) {
			p.nextToken()
			return &ast.StarExpr{BaseNode: ast.BaseNode{Position: pos}, Table: table}, nil
		}
		col, err := p.expect(lexer.IDENT)
		if err != nil {
			return nil, err
		}
		expr := ast.Expression(&ast.ColumnRef{BaseNode: ast.BaseNode{Position: pos}, Table: table, Column: col.Literal})
		return p.maybeParseFollowingExprAndAlias(expr, pos)
	}

	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return p.maybeAlias(expr, pos)
}

// maybeParseFollowingExprAndAlias allows a qualified column reference to
// participate in a larger binary expression before alias detection.
func (p *Parser) maybeParseFollowingExprAndAlias(expr ast.Expression, pos dbfmt.Position) (ast.Expression, *dbfmt.Error) {
	full, err := p.continueBinaryExpression(expr, 0)
	if err != nil {
		return nil, err
	}
	return p.maybeAlias(full, pos)
}

func (p *Parser) maybeAlias(expr ast.Expression, pos dbfmt.Position) (ast.Expression, *dbfmt.Error) {
	if p.curTokenIs(lexer.AS) {
		p.nextToken()
		name, err := p.expect(lexer.IDENT)
		if err != nil {
			return nil, err
		}
		return &ast.AliasedExpr{BaseNode: ast.BaseNode{Position: pos}, Expr: expr, Alias: name.Literal}, nil
	}
	if p.curTokenIs(lexer.IDENT) {
		alias := p.curToken.Literal
		p.nextToken()
		return &ast.AliasedExpr{BaseNode: ast.BaseNode{Position: pos}, Expr: expr, Alias: alias}, nil
	}
	return expr, nil
}

func (p *Parser) parseExpressionList() ([]ast.Expression, *dbfmt.Error) {
	var list []ast.Expression
	for {
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		list = append(list, e)
		if p.curTokenIs(lexer.COMMA) {
			p.nextToken()
			continue
		}
		break
	}
	return list, nil
}

func (p *Parser) parseOrderByList() ([]ast.OrderByItem, *dbfmt.Error) {
	var items []ast.OrderByItem
	for {
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		item := ast.OrderByItem{Expr: e}
		if p.curTokenIs(lexer.DESC) {
			item.Desc = true
			p.nextToken()
		} else if p.curTokenIs(lexer.ASC) {
			p.nextToken()
		}
		items = append(items, item)
		if p.curTokenIs(lexer.COMMA) {
			p.nextToken()
			continue
		}
		break
	}
	return items, nil
}

// ---------------------------------------------------------------------
// FROM / JOIN
// ---------------------------------------------------------------------

func (p *Parser) parseFromClause() (*ast.FromClause, *dbfmt.Error) {
	from := &ast.FromClause{BaseNode: ast.BaseNode{Position: p.pos()}}
	first, err := p.parseTableRef()
	if err != nil {
		return nil, err
	}
	from.Tables = append(from.Tables, first)

	for p.curTokenIs(lexer.COMMA) {
		p.nextToken()
		t, terr := p.parseTableRef()
		if terr != nil {
			return nil, terr
		}
		from.Tables = append(from.Tables, t)
	}

	for p.curTokenIs(lexer.JOIN) || p.curTokenIs(lexer.INNER) || p.curTokenIs(lexer.LEFT) ||
		p.curTokenIs(lexer.RIGHT) || p.curTokenIs(lexer.FULL) {
		j, jerr := p.parseJoinClause()
		if jerr != nil {
			return nil, jerr
		}
		from.Joins = append(from.Joins, j)
	}

	return from, nil
}

func (p *Parser) parseTableRef() (*ast.TableRef, *dbfmt.Error) {
	pos := p.pos()
	if p.curTokenIs(lexer.LPAREN) {
		p.nextToken()
		sub, err := p.parseSelectStatement()
		if err != nil {
			return nil, err
		}
		if _, e := p.expect(lexer.RPAREN); e != nil {
			return nil, e
		}
		ref := &ast.TableRef{BaseNode: ast.BaseNode{Position: pos}, Subquery: sub.(*ast.SelectStatement)}
		if p.curTokenIs(lexer.AS) {
			p.nextToken()
		}
		if p.curTokenIs(lexer.IDENT) {
			ref.Alias = p.curToken.Literal
			p.nextToken()
		}
		return ref, nil
	}
	name, err := p.expect(lexer.IDENT)
	if err != nil {
		return nil, err
	}
	ref := &ast.TableRef{BaseNode: ast.BaseNode{Position: pos}, Name: name.Literal}
	if p.curTokenIs(lexer.AS) {
		p.nextToken()
		alias, aerr := p.expect(lexer.IDENT)
		if aerr != nil {
			return nil, aerr
		}
		ref.Alias = alias.Literal
	} else if p.curTokenIs(lexer.IDENT) {
		ref.Alias = p.curToken.Literal
		p.nextToken()
	}
	return ref, nil
}

func (p *Parser) parseJoinClause() (*ast.JoinClause, *dbfmt.Error) {
	pos := p.pos()
	joinType := ast.JoinInner
	switch p.curToken.Type {
	case lexer.INNER:
		p.nextToken()
	case lexer.LEFT:
		joinType = ast.JoinLeft
		p.nextToken()
		if p.curTokenIs(lexer.JOIN) {
			// plain LEFT JOIN
		}
	case lexer.RIGHT:
		joinType = ast.JoinRight
		p.nextToken()
	case lexer.FULL:
		joinType = ast.JoinFull
		p.nextToken()
	}
	if _, err := p.expect(lexer.JOIN); err != nil {
		return nil, err
	}
	table, err := p.parseTableRef()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.ON); err != nil {
		return nil, err
	}
	cond, cerr := p.parseExpression()
	if cerr != nil {
		return nil, cerr
	}
	return &ast.JoinClause{BaseNode: ast.BaseNode{Position: pos}, Type: joinType, Table: table, On: cond}, nil
}

// ---------------------------------------------------------------------
// INSERT / UPDATE / DELETE
// ---------------------------------------------------------------------

func (p *Parser) parseInsertStatement() (ast.Statement, *dbfmt.Error) {
	pos := p.pos()
	p.nextToken() // INSERT
	if _, err := p.expect(lexer.INTO); err != nil {
		return nil, err
	}
	table, err := p.expect(lexer.IDENT)
	if err != nil {
		return nil, err
	}
	stmt := &ast.InsertStatement{BaseNode: ast.BaseNode{Position: pos}, Table: table.Literal}

	if p.curTokenIs(lexer.LPAREN) {
		p.nextToken()
		for {
			col, cerr := p.expect(lexer.IDENT)
			if cerr != nil {
				return nil, cerr
			}
			stmt.Columns = append(stmt.Columns, col.Literal)
			if p.curTokenIs(lexer.COMMA) {
				p.nextToken()
				continue
			}
			break
		}
		if _, e := p.expect(lexer.RPAREN); e != nil {
			return nil, e
		}
	}

	if p.curTokenIs(lexer.SELECT) {
		sel, serr := p.parseSelectStatement()
		if serr != nil {
			return nil, serr
		}
		stmt.Select = sel.(*ast.SelectStatement)
		return stmt, nil
	}

	if _, err := p.expect(lexer.VALUES); err != nil {
		return nil, err
	}
	for {
		if _, e := p.expect(lexer.LPAREN); e != nil {
			return nil, e
		}
		row, rerr := p.parseExpressionList()
		if rerr != nil {
			return nil, rerr
		}
		if _, e := p.expect(lexer.RPAREN); e != nil {
			return nil, e
		}
		stmt.Values = append(stmt.Values, row)
		if p.curTokenIs(lexer.COMMA) {
			p.nextToken()
			continue
		}
		break
	}
	return stmt, nil
}

func (p *Parser) parseUpdateStatement() (ast.Statement, *dbfmt.Error) {
	pos := p.pos()
	p.nextToken() // UPDATE
	table, err := p.expect(lexer.IDENT)
	if err != nil {
		return nil, err
	}
	stmt := &ast.UpdateStatement{BaseNode: ast.BaseNode{Position: pos}, Table: table.Literal}
	if _, e := p.expect(lexer.SET); e != nil {
		return nil, e
	}
	for {
		col, cerr := p.expect(lexer.IDENT)
		if cerr != nil {
			return nil, cerr
		}
		if _, e := p.expect(lexer.ASSIGN); e != nil {
			return nil, e
		}
		val, verr := p.parseExpression()
		if verr != nil {
			return nil, verr
		}
		stmt.Assignments = append(stmt.Assignments, ast.Assignment{Column: col.Literal, Value: val})
		if p.curTokenIs(lexer.COMMA) {
			p.nextToken()
			continue
		}
		break
	}
	if p.curTokenIs(lexer.WHERE) {
		p.nextToken()
		cond, werr := p.parseExpression()
		if werr != nil {
			return nil, werr
		}
		stmt.Where = cond
	}
	return stmt, nil
}

func (p *Parser) parseDeleteStatement() (ast.Statement, *dbfmt.Error) {
	pos := p.pos()
	p.nextToken() // DELETE
	if _, err := p.expect(lexer.FROM); err != nil {
		return nil, err
	}
	table, err := p.expect(lexer.IDENT)
	if err != nil {
		return nil, err
	}
	stmt := &ast.DeleteStatement{BaseNode: ast.BaseNode{Position: pos}, Table: table.Literal}
	if p.curTokenIs(lexer.WHERE) {
		p.nextToken()
		cond, werr := p.parseExpression()
		if werr != nil {
			return nil, werr
		}
		stmt.Where = cond
	}
	return stmt, nil
}

// ---------------------------------------------------------------------
// Expressions (left-to-right precedence climbing)
// ---------------------------------------------------------------------

// precedence levels, lowest to highest.
const (
	precLowest = iota
	precOr
	precAnd
	precNot
	precComparison
	precAdditive
	precMultiplicative
)

func precedenceOf(t lexer.TokenType) int {
	switch t {
	case lexer.OR:
		return precOr
	case lexer.AND:
		return precAnd
	case lexer.ASSIGN, lexer.NOT_EQ, lexer.LT, lexer.LTE, lexer.GT, lexer.GTE, lexer.LIKE:
		return precComparison
	case lexer.PLUS, lexer.MINUS:
		return precAdditive
	case lexer.ASTERISK, lexer.SLASH, lexer.PERCENT:
		return precMultiplicative
	default:
		return precLowest
	}
}

func binaryOpOf(t lexer.TokenType) ast.BinaryOp {
	switch t {
	case lexer.PLUS:
		return ast.OpAdd
	case lexer.MINUS:
		return ast.OpSub
	case lexer.ASTERISK:
		return ast.OpMul
	case lexer.SLASH:
		return ast.OpDiv
	case lexer.PERCENT:
		return ast.OpMod
	case lexer.ASSIGN:
		return ast.OpEq
	case lexer.NOT_EQ:
		return ast.OpNotEq
	case lexer.LT:
		return ast.OpLt
	case lexer.LTE:
		return ast.OpLte
	case lexer.GT:
		return ast.OpGt
	case lexer.GTE:
		return ast.OpGte
	case lexer.AND:
		return ast.OpAnd
	case lexer.OR:
		return ast.OpOr
	case lexer.LIKE:
		return ast.OpLike
	default:
		return ast.OpEq
	}
}

func (p *Parser) parseExpression() (ast.Expression, *dbfmt.Error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return p.continueBinaryExpression(left, precLowest)
}

// parseOperand parses a single unary term and immediately binds any
// BETWEEN/IN/IS postfix to it. These bind tighter than AND/OR/arithmetic so
// they must attach only to the term that precedes them, never to an
// already-combined binary expression built up the stack.
func (p *Parser) parseOperand() (ast.Expression, *dbfmt.Error) {
	term, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.curTokenIs(lexer.BETWEEN):
			term, err = p.parseBetween(term, false)
		case p.curTokenIs(lexer.NOT) && p.peekTokenIs(lexer.BETWEEN):
			p.nextToken()
			term, err = p.parseBetween(term, true)
		case p.curTokenIs(lexer.IN):
			term, err = p.parseIn(term, false)
		case p.curTokenIs(lexer.NOT) && p.peekTokenIs(lexer.IN):
			p.nextToken()
			term, err = p.parseIn(term, true)
		case p.curTokenIs(lexer.IS):
			term, err = p.parseIsNull(term)
		default:
			return term, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (p *Parser) continueBinaryExpression(left ast.Expression, minPrec int) (ast.Expression, *dbfmt.Error) {
	for {
		prec := precedenceOf(p.curToken.Type)
		if prec == precLowest || prec <= minPrec {
			return left, nil
		}
		op := binaryOpOf(p.curToken.Type)
		pos := p.pos()
		p.nextToken()
		right, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		// climb higher-precedence operators on the right before folding
		nextPrec := precedenceOf(p.curToken.Type)
		for nextPrec > prec {
			right, err = p.continueBinaryExpression(right, prec)
			if err != nil {
				return nil, err
			}
			nextPrec = precedenceOf(p.curToken.Type)
		}
		left = &ast.BinaryExpr{BaseNode: ast.BaseNode{Position: pos}, Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseBetween(left ast.Expression, negated bool) (ast.Expression, *dbfmt.Error) {
	pos := p.pos()
	p.nextToken() // BETWEEN
	low, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if _, e := p.expect(lexer.AND); e != nil {
		return nil, e
	}
	high, herr := p.parseUnary()
	if herr != nil {
		return nil, herr
	}
	return &ast.BetweenExpr{BaseNode: ast.BaseNode{Position: pos}, Expr: left, Low: low, High: high, Negated: negated}, nil
}

func (p *Parser) parseIn(left ast.Expression, negated bool) (ast.Expression, *dbfmt.Error) {
	pos := p.pos()
	p.nextToken() // IN
	if _, e := p.expect(lexer.LPAREN); e != nil {
		return nil, e
	}
	if p.curTokenIs(lexer.SELECT) {
		sub, serr := p.parseSelectStatement()
		if serr != nil {
			return nil, serr
		}
		if _, e := p.expect(lexer.RPAREN); e != nil {
			return nil, e
		}
		return &ast.InSubqueryExpr{BaseNode: ast.BaseNode{Position: pos}, Expr: left, Subquery: sub.(*ast.SelectStatement), Negated: negated}, nil
	}
	list, lerr := p.parseExpressionList()
	if lerr != nil {
		return nil, lerr
	}
	if _, e := p.expect(lexer.RPAREN); e != nil {
		return nil, e
	}
	return &ast.InListExpr{BaseNode: ast.BaseNode{Position: pos}, Expr: left, List: list, Negated: negated}, nil
}

func (p *Parser) parseIsNull(left ast.Expression) (ast.Expression, *dbfmt.Error) {
	pos := p.pos()
	p.nextToken() // IS
	negated := false
	if p.curTokenIs(lexer.NOT) {
		negated = true
		p.nextToken()
	}
	if _, e := p.expect(lexer.NULL); e != nil {
		return nil, e
	}
	right := ast.Expression(&ast.Literal{BaseNode: ast.BaseNode{Position: pos}, Kind: ast.NullLiteral})
	op := ast.OpEq
	if negated {
		op = ast.OpNotEq
	}
	return &ast.BinaryExpr{BaseNode: ast.BaseNode{Position: pos}, Op: op, Left: left, Right: right}, nil
}

func (p *Parser) parseUnary() (ast.Expression, *dbfmt.Error) {
	pos := p.pos()
	if p.curTokenIs(lexer.NOT) {
		p.nextToken()
		if p.curTokenIs(lexer.EXISTS) {
			return p.parseExists(true)
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{BaseNode: ast.BaseNode{Position: pos}, Op: "NOT", Operand: operand}, nil
	}
	if p.curTokenIs(lexer.EXISTS) {
		return p.parseExists(false)
	}
	if p.curTokenIs(lexer.MINUS) {
		p.nextToken()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{BaseNode: ast.BaseNode{Position: pos}, Op: "-", Operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parseExists(negated bool) (ast.Expression, *dbfmt.Error) {
	pos := p.pos()
	p.nextToken() // EXISTS
	if _, e := p.expect(lexer.LPAREN); e != nil {
		return nil, e
	}
	sub, serr := p.parseSelectStatement()
	if serr != nil {
		return nil, serr
	}
	if _, e := p.expect(lexer.RPAREN); e != nil {
		return nil, e
	}
	return &ast.ExistsExpr{BaseNode: ast.BaseNode{Position: pos}, Subquery: sub.(*ast.SelectStatement), Negated: negated}, nil
}

func (p *Parser) parsePrimary() (ast.Expression, *dbfmt.Error) {
	pos := p.pos()
	switch p.curToken.Type {
	case lexer.NUMBER:
		lit := p.curToken.Literal
		p.nextToken()
		return parseNumberLiteral(pos, lit), nil
	case lexer.STRING:
		lit := p.curToken.Literal
		p.nextToken()
		return &ast.Literal{BaseNode: ast.BaseNode{Position: pos}, Kind: ast.StringLiteral, Value: lit}, nil
	case lexer.NULL:
		p.nextToken()
		return &ast.Literal{BaseNode: ast.BaseNode{Position: pos}, Kind: ast.NullLiteral}, nil
	case lexer.LPAREN:
		p.nextToken()
		if p.curTokenIs(lexer.SELECT) {
			sub, err := p.parseSelectStatement()
			if err != nil {
				return nil, err
			}
			if _, e := p.expect(lexer.RPAREN); e != nil {
				return nil, e
			}
			return &ast.SubqueryExpr{BaseNode: ast.BaseNode{Position: pos}, Subquery: sub.(*ast.SelectStatement)}, nil
		}
		inner, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, e := p.expect(lexer.RPAREN); e != nil {
			return nil, e
		}
		return inner, nil
	case lexer.CASE:
		return p.parseCaseExpression()
	case lexer.IDENT:
		return p.parseIdentOrCallOrAggregate(pos)
	default:
		return nil, p.errorf("unexpected token %s in expression", p.curToken.Type)
	}
}

func parseNumberLiteral(pos dbfmt.Position, lit string) ast.Expression {
	if containsDot(lit) {
		f, _ := strconv.ParseFloat(lit, 64)
		return &ast.Literal{BaseNode: ast.BaseNode{Position: pos}, Kind: ast.FloatLiteral, Value: f}
	}
	n, err := strconv.ParseInt(lit, 10, 64)
	if err != nil {
		f, _ := strconv.ParseFloat(lit, 64)
		return &ast.Literal{BaseNode: ast.BaseNode{Position: pos}, Kind: ast.FloatLiteral, Value: f}
	}
	return &ast.Literal{BaseNode: ast.BaseNode{Position: pos}, Kind: ast.IntLiteral, Value: n}
}

func containsDot(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return true
		}
	}
	return false
}

var aggByName = map[string]ast.AggFunc{
	"COUNT": ast.AggCount, "SUM": ast.AggSum, "AVG": ast.AggAvg, "MIN": ast.AggMin, "MAX": ast.AggMax,
}

func (p *Parser) parseIdentOrCallOrAggregate(pos dbfmt.Position) (ast.Expression, *dbfmt.Error) {
	name := p.curToken.Literal
	p.nextToken()

	if p.curTokenIs(lexer.LPAREN) {
		if fn, ok := aggByName[upperAscii(name)]; ok {
			return p.parseAggregateCallArgs(pos, fn)
		}
		return nil, p.errorf("unknown function %q", name)
	}

	if p.curTokenIs(lexer.DOT) {
		p.nextToken()
		col, err := p.expect(lexer.IDENT)
		if err != nil {
			return nil, err
		}
		return &ast.ColumnRef{BaseNode: ast.BaseNode{Position: pos}, Table: name, Column: col.Literal}, nil
	}

	switch upperAscii(name) {
	case "TRUE":
		return &ast.Literal{BaseNode: ast.BaseNode{Position: pos}, Kind: ast.BoolLiteral, Value: true}, nil
	case "FALSE":
		return &ast.Literal{BaseNode: ast.BaseNode{Position: pos}, Kind: ast.BoolLiteral, Value: false}, nil
	}

	return &ast.ColumnRef{BaseNode: ast.BaseNode{Position: pos}, Column: name}, nil
}

func (p *Parser) parseAggregateCallArgs(pos dbfmt.Position, fn ast.AggFunc) (ast.Expression, *dbfmt.Error) {
	p.nextToken() // LPAREN
	agg := &ast.AggregateExpr{BaseNode: ast.BaseNode{Position: pos}, Func: fn}
	if p.curTokenIs(lexer.DISTINCT) {
		agg.Distinct = true
		p.nextToken()
	}
	if p.curTokenIs(lexer.ASTERISK) {
		agg.Star = true
		p.nextToken()
	} else {
		arg, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		agg.Arg = arg
	}
	if _, e := p.expect(lexer.RPAREN); e != nil {
		return nil, e
	}
	return agg, nil
}

func (p *Parser) parseCaseExpression() (ast.Expression, *dbfmt.Error) {
	pos := p.pos()
	p.nextToken() // CASE
	ce := &ast.CaseExpr{BaseNode: ast.BaseNode{Position: pos}}
	for p.curTokenIs(lexer.WHEN) {
		p.nextToken()
		cond, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, e := p.expect(lexer.THEN); e != nil {
			return nil, e
		}
		result, rerr := p.parseExpression()
		if rerr != nil {
			return nil, rerr
		}
		ce.Whens = append(ce.Whens, ast.WhenClause{Cond: cond, Result: result})
	}
	if p.curTokenIs(lexer.ELSE) {
		p.nextToken()
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		ce.Else = e
	}
	if _, e := p.expect(lexer.END); e != nil {
		return nil, e
	}
	return ce, nil
}

func upperAscii(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}
