package exec

import (
	"context"
	"strings"
	"sync"

	"github.com/aodsql/aodsql/pkg/dbfmt"
	"github.com/aodsql/aodsql/pkg/physplan"
)

// Cursor is one DECLARE'd cursor's runtime state: the plan it was declared
// over, and (once OPENed) the live iterator and most recent fetch result.
type Cursor struct {
	Name string
	Plan *physplan.Node
	Iter Iterator
	Open bool

	batch *Batch
	pos   int
}

// CursorTable is a session's set of DECLAREd cursors, scoped per spec §9's
// note that cursors belong to the session issuing them rather than to the
// engine globally (keeping one session's OPEN/FETCH/CLOSE sequence from
// interfering with another's).
type CursorTable struct {
	mu      sync.Mutex
	cursors map[string]*Cursor
}

func NewCursorTable() *CursorTable {
	return &CursorTable{cursors: map[string]*Cursor{}}
}

func (ct *CursorTable) Declare(name string, plan *physplan.Node) *dbfmt.Error {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	key := strings.ToLower(name)
	if _, exists := ct.cursors[key]; exists {
		return dbfmt.Exec("cursor %q already declared", name)
	}
	ct.cursors[key] = &Cursor{Name: name, Plan: plan}
	return nil
}

func (ct *CursorTable) get(name string) (*Cursor, *dbfmt.Error) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	c, ok := ct.cursors[strings.ToLower(name)]
	if !ok {
		return nil, dbfmt.Exec("cursor %q is not declared", name)
	}
	return c, nil
}

// Open compiles the cursor's stored plan into a live iterator. compile is
// injected by the caller (compile.go's Compile) to avoid an import cycle
// between cursor state and plan compilation.
func (ct *CursorTable) Open(ctx context.Context, name string, c *Context, compile func(*Context, *physplan.Node) (Iterator, *dbfmt.Error)) *dbfmt.Error {
	cur, err := ct.get(name)
	if err != nil {
		return err
	}
	iter, err := compile(c, cur.Plan)
	if err != nil {
		return err
	}
	cur.Iter = iter
	cur.Open = true
	cur.batch = nil
	cur.pos = 0
	return nil
}

// Fetch returns the next row from the cursor's current batch, pulling a
// fresh batch from the underlying iterator when the current one is
// exhausted. A nil row with no error means the cursor is exhausted.
func (ct *CursorTable) Fetch(ctx context.Context, name string) (*Row, []physplan.Column, *dbfmt.Error) {
	cur, err := ct.get(name)
	if err != nil {
		return nil, nil, err
	}
	if !cur.Open {
		return nil, nil, dbfmt.Exec("cursor %q is not open", name)
	}
	for cur.batch == nil || cur.pos >= len(cur.batch.Rows) {
		b, err := cur.Iter.Next(ctx)
		if err != nil {
			return nil, nil, err
		}
		if b == nil {
			return nil, cur.Iter.Schema(), nil
		}
		cur.batch = b
		cur.pos = 0
	}
	row := cur.batch.Rows[cur.pos]
	cur.pos++
	return &row, cur.Iter.Schema(), nil
}

func (ct *CursorTable) Close(name string) *dbfmt.Error {
	cur, err := ct.get(name)
	if err != nil {
		return err
	}
	if cur.Iter != nil {
		cur.Iter.Close()
	}
	cur.Open = false
	cur.Iter = nil
	cur.batch = nil
	return nil
}
