package lexer

import "testing"

func TestNextTokenBasicSelect(t *testing.T) {
	input := `SELECT id, name FROM users WHERE id = 1;`
	want := []TokenType{
		SELECT, IDENT, COMMA, IDENT, FROM, IDENT, WHERE, IDENT, ASSIGN, NUMBER, SEMICOLON, EOF,
	}
	l := New(input)
	for i, exp := range want {
		tok := l.NextToken()
		if tok.Type != exp {
			t.Fatalf("token %d: want %s, got %s (%q)", i, exp, tok.Type, tok.Literal)
		}
	}
}

func TestStringEscape(t *testing.T) {
	l := New(`'it''s here'`)
	tok := l.NextToken()
	if tok.Type != STRING {
		t.Fatalf("want STRING, got %s", tok.Type)
	}
	if tok.Literal != "it's here" {
		t.Fatalf("want %q, got %q", "it's here", tok.Literal)
	}
}

func TestUnterminatedString(t *testing.T) {
	l := New(`'abc`)
	tok := l.NextToken()
	if tok.Type != ILLEGAL {
		t.Fatalf("want ILLEGAL, got %s", tok.Type)
	}
	if l.Err() == nil {
		t.Fatalf("expected lex error")
	}
}

func TestComments(t *testing.T) {
	input := "SELECT 1 -- trailing comment\n /* block\ncomment */ FROM t"
	l := New(input)
	var types []TokenType
	for {
		tok := l.NextToken()
		types = append(types, tok.Type)
		if tok.Type == EOF {
			break
		}
	}
	want := []TokenType{SELECT, NUMBER, FROM, IDENT, EOF}
	if len(types) != len(want) {
		t.Fatalf("want %d tokens, got %d: %v", len(want), len(types), types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("token %d: want %s got %s", i, want[i], types[i])
		}
	}
}

func TestNotEqualBothSpellings(t *testing.T) {
	for _, src := range []string{"a != b", "a <> b"} {
		l := New(src)
		l.NextToken() // a
		tok := l.NextToken()
		if tok.Type != NOT_EQ {
			t.Fatalf("%q: want NOT_EQ, got %s", src, tok.Type)
		}
	}
}

func TestKeywordsCaseInsensitive(t *testing.T) {
	l := New("select SeLeCt SELECT")
	for i := 0; i < 3; i++ {
		if tok := l.NextToken(); tok.Type != SELECT {
			t.Fatalf("iteration %d: want SELECT, got %s", i, tok.Type)
		}
	}
}

func TestDecimalNumber(t *testing.T) {
	l := New("3.14")
	tok := l.NextToken()
	if tok.Type != NUMBER || tok.Literal != "3.14" {
		t.Fatalf("want NUMBER 3.14, got %s %q", tok.Type, tok.Literal)
	}
}

func TestPositions(t *testing.T) {
	l := New("SELECT\n  id")
	tok := l.NextToken()
	if tok.Line != 1 || tok.Column != 1 {
		t.Fatalf("want 1:1, got %d:%d", tok.Line, tok.Column)
	}
	tok = l.NextToken()
	if tok.Line != 2 {
		t.Fatalf("want line 2, got %d", tok.Line)
	}
}
