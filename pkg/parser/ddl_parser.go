package parser

import (
	"github.com/aodsql/aodsql/pkg/ast"
	"github.com/aodsql/aodsql/pkg/dbfmt"
	"github.com/aodsql/aodsql/pkg/lexer"
)

func (p *Parser) parseCreateStatement() (ast.Statement, *dbfmt.Error) {
	pos := p.pos()
	p.nextToken() // CREATE

	switch p.curToken.Type {
	case lexer.TABLE:
		return p.parseCreateTable(pos)
	case lexer.UNIQUE:
		p.nextToken()
		if !p.curTokenIs(lexer.INDEX) {
			return nil, p.errorf("expected INDEX after UNIQUE, got %s", p.curToken.Type)
		}
		return p.parseCreateIndex(pos, true)
	case lexer.INDEX:
		return p.parseCreateIndex(pos, false)
	case lexer.VIEW:
		return p.parseCreateView(pos)
	case lexer.TRIGGER:
		return p.parseCreateTrigger(pos)
	case lexer.DATABASE, lexer.SCHEMA:
		return p.parseCreateDatabase(pos)
	default:
		return nil, p.errorf("expected TABLE, INDEX, VIEW, TRIGGER or DATABASE after CREATE, got %s", p.curToken.Type)
	}
}

func (p *Parser) parseIfNotExists() bool {
	if p.curTokenIs(lexer.IF) {
		p.nextToken()
		if p.curTokenIs(lexer.NOT) {
			p.nextToken()
		}
		if p.curTokenIs(lexer.EXISTS) {
			p.nextToken()
		}
		return true
	}
	return false
}

func (p *Parser) parseIfExists() bool {
	if p.curTokenIs(lexer.IF) {
		p.nextToken()
		if p.curTokenIs(lexer.EXISTS) {
			p.nextToken()
		}
		return true
	}
	return false
}

func (p *Parser) parseCreateTable(pos dbfmt.Position) (ast.Statement, *dbfmt.Error) {
	p.nextToken() // TABLE
	ifNotExists := p.parseIfNotExists()
	name, err := p.expect(lexer.IDENT)
	if err != nil {
		return nil, err
	}
	stmt := &ast.CreateTableStatement{BaseNode: ast.BaseNode{Position: pos}, Name: name.Literal, IfNotExists: ifNotExists}

	if _, e := p.expect(lexer.LPAREN); e != nil {
		return nil, e
	}
	for {
		if p.curTokenIs(lexer.PRIMARY) || p.curTokenIs(lexer.FOREIGN) || p.curTokenIs(lexer.CONSTRAINT) || p.curTokenIs(lexer.UNIQUE) {
			if e := p.skipTableConstraint(); e != nil {
				return nil, e
			}
		} else {
			col, cerr := p.parseColumnDef()
			if cerr != nil {
				return nil, cerr
			}
			stmt.Columns = append(stmt.Columns, col)
		}
		if p.curTokenIs(lexer.COMMA) {
			p.nextToken()
			continue
		}
		break
	}
	if _, e := p.expect(lexer.RPAREN); e != nil {
		return nil, e
	}
	return stmt, nil
}

// skipTableConstraint consumes a table-level constraint clause — e.g.
// PRIMARY KEY(a,b), FOREIGN KEY(...) REFERENCES t(...), UNIQUE(...) — up to
// the closing paren; column-level constraints on CREATE TABLE cover the
// common single-column case and are tracked on ColumnDef itself.
func (p *Parser) skipTableConstraint() *dbfmt.Error {
	if p.curTokenIs(lexer.CONSTRAINT) {
		p.nextToken()
		if _, e := p.expect(lexer.IDENT); e != nil {
			return e
		}
	}
	depth := 0
	for {
		switch p.curToken.Type {
		case lexer.LPAREN:
			depth++
		case lexer.RPAREN:
			if depth == 0 {
				return nil
			}
			depth--
		case lexer.COMMA:
			if depth == 0 {
				return nil
			}
		case lexer.EOF:
			return p.errorf("unexpected EOF in table constraint")
		}
		p.nextToken()
	}
}

func (p *Parser) parseColumnDef() (ast.ColumnDef, *dbfmt.Error) {
	col := ast.ColumnDef{}
	name, err := p.expect(lexer.IDENT)
	if err != nil {
		return col, err
	}
	col.Name = name.Literal

	typeName, terr := p.expect(lexer.IDENT)
	if terr != nil {
		return col, terr
	}
	col.TypeName = upperAscii(typeName.Literal)

	if p.curTokenIs(lexer.LPAREN) {
		p.nextToken()
		n, nerr := p.parseIntLiteralValue()
		if nerr != nil {
			return col, nerr
		}
		col.Length = int(n)
		col.Precision = int(n)
		if p.curTokenIs(lexer.COMMA) {
			p.nextToken()
			scale, serr := p.parseIntLiteralValue()
			if serr != nil {
				return col, serr
			}
			col.Scale = int(scale)
		}
		if _, e := p.expect(lexer.RPAREN); e != nil {
			return col, e
		}
	}

	for {
		switch p.curToken.Type {
		case lexer.NOT:
			p.nextToken()
			if _, e := p.expect(lexer.NULL); e != nil {
				return col, e
			}
			col.NotNull = true
		case lexer.NULL:
			p.nextToken()
		case lexer.PRIMARY:
			p.nextToken()
			if _, e := p.expect(lexer.KEY); e != nil {
				return col, e
			}
			col.PrimaryKey = true
			col.NotNull = true
		case lexer.UNIQUE:
			p.nextToken()
			col.Unique = true
		case lexer.AUTO_INCREMENT:
			p.nextToken()
			col.AutoIncrement = true
		case lexer.DEFAULT:
			p.nextToken()
			def, derr := p.parseUnary()
			if derr != nil {
				return col, derr
			}
			col.Default = def
		default:
			return col, nil
		}
	}
}

func (p *Parser) parseCreateIndex(pos dbfmt.Position, unique bool) (ast.Statement, *dbfmt.Error) {
	p.nextToken() // INDEX
	ifNotExists := p.parseIfNotExists()
	name, err := p.expect(lexer.IDENT)
	if err != nil {
		return nil, err
	}
	if _, e := p.expect(lexer.ON); e != nil {
		return nil, e
	}
	table, terr := p.expect(lexer.IDENT)
	if terr != nil {
		return nil, terr
	}
	stmt := &ast.CreateIndexStatement{BaseNode: ast.BaseNode{Position: pos}, Name: name.Literal, Table: table.Literal, Unique: unique, IfNotExists: ifNotExists}
	if _, e := p.expect(lexer.LPAREN); e != nil {
		return nil, e
	}
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
	return stmt, nil
}

func (p *Parser) parseCreateView(pos dbfmt.Position) (ast.Statement, *dbfmt.Error) {
	p.nextToken() // VIEW
	name, err := p.expect(lexer.IDENT)
	if err != nil {
		return nil, err
	}
	if _, e := p.expect(lexer.AS); e != nil {
		return nil, e
	}
	sel, serr := p.parseSelectStatement()
	if serr != nil {
		return nil, serr
	}
	return &ast.CreateViewStatement{BaseNode: ast.BaseNode{Position: pos}, Name: name.Literal, Definition: sel.(*ast.SelectStatement)}, nil
}

func (p *Parser) parseCreateTrigger(pos dbfmt.Position) (ast.Statement, *dbfmt.Error) {
	p.nextToken() // TRIGGER
	name, err := p.expect(lexer.IDENT)
	if err != nil {
		return nil, err
	}
	stmt := &ast.CreateTriggerStatement{BaseNode: ast.BaseNode{Position: pos}, Name: name.Literal}

	switch p.curToken.Type {
	case lexer.BEFORE:
		stmt.Timing = ast.TriggerBefore
		p.nextToken()
	case lexer.AFTER:
		stmt.Timing = ast.TriggerAfter
		p.nextToken()
	default:
		return nil, p.errorf("expected BEFORE or AFTER, got %s", p.curToken.Type)
	}

	for {
		switch p.curToken.Type {
		case lexer.INSERT:
			stmt.Events = append(stmt.Events, ast.TriggerInsert)
			p.nextToken()
		case lexer.UPDATE:
			stmt.Events = append(stmt.Events, ast.TriggerUpdate)
			p.nextToken()
		case lexer.DELETE:
			stmt.Events = append(stmt.Events, ast.TriggerDelete)
			p.nextToken()
		default:
			return nil, p.errorf("expected INSERT, UPDATE or DELETE in trigger event, got %s", p.curToken.Type)
		}
		if p.curTokenIs(lexer.OR) {
			p.nextToken()
			continue
		}
		break
	}

	if _, e := p.expect(lexer.ON); e != nil {
		return nil, e
	}
	table, terr := p.expect(lexer.IDENT)
	if terr != nil {
		return nil, terr
	}
	stmt.Table = table.Literal

	stmt.RowLevel = true
	if p.curTokenIs(lexer.FOR) {
		p.nextToken()
		if _, e := p.expect(lexer.EACH); e != nil {
			return nil, e
		}
		if p.curTokenIs(lexer.ROW) {
			stmt.RowLevel = true
			p.nextToken()
		} else if p.curTokenIs(lexer.STATEMENT) {
			stmt.RowLevel = false
			p.nextToken()
		}
	}

	if p.curTokenIs(lexer.WHEN) {
		p.nextToken()
		if _, e := p.expect(lexer.LPAREN); e != nil {
			return nil, e
		}
		cond, cerr := p.parseExpression()
		if cerr != nil {
			return nil, cerr
		}
		stmt.When = cond
		if _, e := p.expect(lexer.RPAREN); e != nil {
			return nil, e
		}
	}

	if _, e := p.expect(lexer.BEGIN); e != nil {
		return nil, e
	}
	body, berr := p.ParseStatement()
	if berr != nil {
		return nil, berr
	}
	stmt.Body = body
	if p.curTokenIs(lexer.SEMICOLON) {
		p.nextToken()
	}
	if _, e := p.expect(lexer.END); e != nil {
		return nil, e
	}
	return stmt, nil
}

func (p *Parser) parseCreateDatabase(pos dbfmt.Position) (ast.Statement, *dbfmt.Error) {
	p.nextToken() // DATABASE|SCHEMA
	ifNotExists := p.parseIfNotExists()
	name, err := p.expect(lexer.IDENT)
	if err != nil {
		return nil, err
	}
	return &ast.CreateDatabaseStatement{BaseNode: ast.BaseNode{Position: pos}, Name: name.Literal, IfNotExists: ifNotExists}, nil
}

// ---------------------------------------------------------------------
// DROP
// ---------------------------------------------------------------------

func (p *Parser) parseDropStatement() (ast.Statement, *dbfmt.Error) {
	pos := p.pos()
	p.nextToken() // DROP

	switch p.curToken.Type {
	case lexer.TABLE:
		p.nextToken()
		ifExists := p.parseIfExists()
		name, err := p.expect(lexer.IDENT)
		if err != nil {
			return nil, err
		}
		cascade := false
		if p.curTokenIs(lexer.CASCADE) {
			cascade = true
			p.nextToken()
		}
		return &ast.DropTableStatement{BaseNode: ast.BaseNode{Position: pos}, Name: name.Literal, IfExists: ifExists, Cascade: cascade}, nil
	case lexer.INDEX:
		p.nextToken()
		ifExists := p.parseIfExists()
		name, err := p.expect(lexer.IDENT)
		if err != nil {
			return nil, err
		}
		stmt := &ast.DropIndexStatement{BaseNode: ast.BaseNode{Position: pos}, Name: name.Literal, IfExists: ifExists}
		if p.curTokenIs(lexer.ON) {
			p.nextToken()
			table, terr := p.expect(lexer.IDENT)
			if terr != nil {
				return nil, terr
			}
			stmt.Table = table.Literal
		}
		return stmt, nil
	case lexer.VIEW:
		p.nextToken()
		ifExists := p.parseIfExists()
		name, err := p.expect(lexer.IDENT)
		if err != nil {
			return nil, err
		}
		return &ast.DropViewStatement{BaseNode: ast.BaseNode{Position: pos}, Name: name.Literal, IfExists: ifExists}, nil
	case lexer.TRIGGER:
		p.nextToken()
		ifExists := p.parseIfExists()
		name, err := p.expect(lexer.IDENT)
		if err != nil {
			return nil, err
		}
		stmt := &ast.DropTriggerStatement{BaseNode: ast.BaseNode{Position: pos}, Name: name.Literal, IfExists: ifExists}
		if p.curTokenIs(lexer.ON) {
			p.nextToken()
			table, terr := p.expect(lexer.IDENT)
			if terr != nil {
				return nil, terr
			}
			stmt.Table = table.Literal
		}
		return stmt, nil
	case lexer.DATABASE, lexer.SCHEMA:
		p.nextToken()
		ifExists := p.parseIfExists()
		name, err := p.expect(lexer.IDENT)
		if err != nil {
			return nil, err
		}
		return &ast.DropDatabaseStatement{BaseNode: ast.BaseNode{Position: pos}, Name: name.Literal, IfExists: ifExists}, nil
	default:
		return nil, p.errorf("expected TABLE, INDEX, VIEW, TRIGGER or DATABASE after DROP, got %s", p.curToken.Type)
	}
}

// ---------------------------------------------------------------------
// ALTER
// ---------------------------------------------------------------------

func (p *Parser) parseAlterStatement() (ast.Statement, *dbfmt.Error) {
	pos := p.pos()
	p.nextToken() // ALTER

	if p.curTokenIs(lexer.VIEW) {
		p.nextToken()
		name, err := p.expect(lexer.IDENT)
		if err != nil {
			return nil, err
		}
		if _, e := p.expect(lexer.AS); e != nil {
			return nil, e
		}
		sel, serr := p.parseSelectStatement()
		if serr != nil {
			return nil, serr
		}
		return &ast.AlterViewStatement{BaseNode: ast.BaseNode{Position: pos}, Name: name.Literal, Definition: sel.(*ast.SelectStatement)}, nil
	}

	if _, e := p.expect(lexer.TABLE); e != nil {
		return nil, e
	}
	table, terr := p.expect(lexer.IDENT)
	if terr != nil {
		return nil, terr
	}
	stmt := &ast.AlterTableStatement{BaseNode: ast.BaseNode{Position: pos}, Table: table.Literal}

	switch p.curToken.Type {
	case lexer.ADD:
		p.nextToken()
		if p.curTokenIs(lexer.COLUMN) {
			p.nextToken()
		}
		col, cerr := p.parseColumnDef()
		if cerr != nil {
			return nil, cerr
		}
		stmt.Action = ast.AlterAddColumn
		stmt.ColumnDef = col
	case lexer.DROP:
		p.nextToken()
		if p.curTokenIs(lexer.COLUMN) {
			p.nextToken()
		}
		name, nerr := p.expect(lexer.IDENT)
		if nerr != nil {
			return nil, nerr
		}
		stmt.Action = ast.AlterDropColumn
		stmt.DropName = name.Literal
	case lexer.MODIFY, lexer.CHANGE:
		p.nextToken()
		if p.curTokenIs(lexer.COLUMN) {
			p.nextToken()
		}
		col, cerr := p.parseColumnDef()
		if cerr != nil {
			return nil, cerr
		}
		stmt.Action = ast.AlterModifyColumn
		stmt.ColumnDef = col
	default:
		return nil, p.errorf("expected ADD, DROP or MODIFY after ALTER TABLE %s, got %s", table.Literal, p.curToken.Type)
	}
	return stmt, nil
}

func (p *Parser) parseUseStatement() (ast.Statement, *dbfmt.Error) {
	pos := p.pos()
	p.nextToken() // USE
	name, err := p.expect(lexer.IDENT)
	if err != nil {
		return nil, err
	}
	return &ast.UseStatement{BaseNode: ast.BaseNode{Position: pos}, Name: name.Literal}, nil
}

// ---------------------------------------------------------------------
// SHOW
// ---------------------------------------------------------------------

func (p *Parser) parseShowStatement() (ast.Statement, *dbfmt.Error) {
	pos := p.pos()
	p.nextToken() // SHOW

	stmt := &ast.ShowStatement{BaseNode: ast.BaseNode{Position: pos}}
	switch p.curToken.Type {
	case lexer.DATABASES:
		stmt.Kind = ast.ShowDatabasesKind
		p.nextToken()
	case lexer.TABLES:
		stmt.Kind = ast.ShowTablesKind
		p.nextToken()
	case lexer.VIEWS:
		stmt.Kind = ast.ShowViewsKind
		p.nextToken()
	case lexer.TRIGGERS:
		stmt.Kind = ast.ShowTriggersKind
		p.nextToken()
	case lexer.COLUMNS:
		stmt.Kind = ast.ShowColumnsKind
		p.nextToken()
		if _, e := p.expect(lexer.FROM); e != nil {
			return nil, e
		}
		table, terr := p.expect(lexer.IDENT)
		if terr != nil {
			return nil, terr
		}
		stmt.Table = table.Literal
	case lexer.INDEX, lexer.INDEXES:
		stmt.Kind = ast.ShowIndexKind
		p.nextToken()
		if _, e := p.expect(lexer.FROM); e != nil {
			return nil, e
		}
		table, terr := p.expect(lexer.IDENT)
		if terr != nil {
			return nil, terr
		}
		stmt.Table = table.Literal
	default:
		return nil, p.errorf("unsupported SHOW target %s", p.curToken.Type)
	}
	return stmt, nil
}
