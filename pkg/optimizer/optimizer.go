// Package optimizer rewrites a logplan.Plan into a cheaper, equivalent one:
// constant folding, predicate pushdown across joins, redundant-filter
// merging, index-scan synthesis over equality predicates, ORDER-BY
// elimination via index ordering, join-order enumeration bounded by
// maxJoinTables, join method selection among nested-loop/hash/sort-merge,
// and a cost model blending io/cpu/memory the way spec §4.5 defines.
// Grounded on the teacher's pkg/plan.Analyzer issue/recommendation shape,
// repurposed from "diagnose a foreign plan" to "choose among candidate
// plans it builds itself", and cross-checked against original_source's
// query_optimizer.py cost constants and rewrite-rule list.
package optimizer

import (
	"sort"

	"github.com/aodsql/aodsql/pkg/ast"
	"github.com/aodsql/aodsql/pkg/catalog"
	"github.com/aodsql/aodsql/pkg/logplan"
)

// Cost model weights from spec §4.5: total = 0.70*io + 0.25*cpu + 0.05*memory.
const (
	WeightIO     = 0.70
	WeightCPU    = 0.25
	WeightMemory = 0.05

	// maxJoinTables caps the length of a comma-join chain reorderJoins
	// re-sequences by estimated row count; longer chains keep the
	// left-deep order the parser produced.
	maxJoinTables = 6

	seqScanRowCost   = 1.0
	indexScanRowCost = 0.15
	indexSeekCost    = 2.0
	hashBuildCPU     = 1.2
	sortCPUFactor    = 1.5
	pageIOCost       = 1.0
)

// Stats carries adaptive-tuning feedback from executed plans back into the
// cost model, per spec §4.5's "adjust estimates from observed execution"
// requirement. A Tuner mutates SelectivityOverrides in place across a
// session's statements; Optimize only ever reads it.
type Stats struct {
	// SelectivityOverrides maps "table.column" to an observed selectivity
	// in [0,1], replacing the optimizer's default guess once available.
	SelectivityOverrides map[string]float64
}

// Optimizer rewrites logical plans against a live catalog and accumulated
// execution statistics.
type Optimizer struct {
	cat   *catalog.Catalog
	stats *Stats
}

func New(cat *catalog.Catalog, stats *Stats) *Optimizer {
	if stats == nil {
		stats = &Stats{SelectivityOverrides: map[string]float64{}}
	}
	return &Optimizer{cat: cat, stats: stats}
}

// Optimize returns a rewritten plan with costs annotated on every node.
// Join-order enumeration runs first, over the untouched parser-produced
// tree, since every other rule (index synthesis, method choice) should see
// the final join shape rather than reorder around it.
func (o *Optimizer) Optimize(p *logplan.Plan) *logplan.Plan {
	root := o.reorderJoins(p.Root)
	root = o.rewrite(root)
	o.annotateCost(root)
	return &logplan.Plan{Root: root}
}

// rewrite applies rule-based transformations bottom-up: recurse into
// children first, then fold constants, push predicates toward their base
// table, merge redundant filters, synthesize index scans, eliminate
// satisfied sorts, and choose a join method at this node.
func (o *Optimizer) rewrite(n *logplan.Node) *logplan.Node {
	if n == nil {
		return nil
	}
	for i, c := range n.Children {
		n.Children[i] = o.rewrite(c)
	}

	switch n.Type {
	case logplan.NodeFilter:
		n.Predicate = foldConstants(n.Predicate)
		n = mergeAdjacentFilters(n)
		n = o.pushPredicate(n)
		if n.Type != logplan.NodeFilter {
			return n // predicate was fully pushed down; nothing left here
		}
		return o.tryIndexScan(n)
	case logplan.NodeSort:
		if elim := tryEliminateSort(n); elim != nil {
			return elim
		}
		return n
	case logplan.NodeNestedLoopJoin:
		n.Predicate = foldConstants(n.Predicate)
		return o.chooseJoinMethod(n)
	case logplan.NodeHashAggregate:
		n.Having = foldConstants(n.Having)
		return n
	default:
		return n
	}
}

// ---------------------------------------------------------------------
// Constant folding
// ---------------------------------------------------------------------

// foldConstants recursively evaluates sub-expressions built entirely from
// literals, replacing them with a single Literal — spec §4.5's constant-
// folding rule. AND/OR are left alone even when one side is constant,
// since that would require the same short-circuit semantics pkg/exec's
// evaluator already owns; folding here only removes literal arithmetic and
// literal comparisons the evaluator would otherwise redo on every row.
func foldConstants(e ast.Expression) ast.Expression {
	if e == nil {
		return nil
	}
	switch v := e.(type) {
	case *ast.BinaryExpr:
		v.Left = foldConstants(v.Left)
		v.Right = foldConstants(v.Right)
		if v.Op == ast.OpAnd || v.Op == ast.OpOr {
			return v
		}
		lit1, ok1 := v.Left.(*ast.Literal)
		lit2, ok2 := v.Right.(*ast.Literal)
		if !ok1 || !ok2 {
			return v
		}
		if folded, ok := foldLiteralBinary(v.Op, lit1, lit2); ok {
			return folded
		}
		return v
	case *ast.UnaryExpr:
		v.Operand = foldConstants(v.Operand)
		return v
	case *ast.BetweenExpr:
		v.Expr = foldConstants(v.Expr)
		v.Low = foldConstants(v.Low)
		v.High = foldConstants(v.High)
		return v
	default:
		return e
	}
}

func foldLiteralBinary(op ast.BinaryOp, a, b *ast.Literal) (*ast.Literal, bool) {
	switch op {
	case ast.OpEq, ast.OpNotEq:
		af, aok := literalFloat(a)
		bf, bok := literalFloat(b)
		var eq bool
		if aok && bok {
			eq = af == bf
		} else {
			eq = a.Value == b.Value
		}
		if op == ast.OpNotEq {
			eq = !eq
		}
		return &ast.Literal{Kind: ast.BoolLiteral, Value: eq}, true
	case ast.OpLt, ast.OpLte, ast.OpGt, ast.OpGte:
		af, aok := literalFloat(a)
		bf, bok := literalFloat(b)
		if !aok || !bok {
			return nil, false
		}
		var result bool
		switch op {
		case ast.OpLt:
			result = af < bf
		case ast.OpLte:
			result = af <= bf
		case ast.OpGt:
			result = af > bf
		case ast.OpGte:
			result = af >= bf
		}
		return &ast.Literal{Kind: ast.BoolLiteral, Value: result}, true
	case ast.OpAdd, ast.OpSub, ast.OpMul, ast.OpDiv:
		af, aok := literalFloat(a)
		bf, bok := literalFloat(b)
		if !aok || !bok {
			return nil, false
		}
		var result float64
		switch op {
		case ast.OpAdd:
			result = af + bf
		case ast.OpSub:
			result = af - bf
		case ast.OpMul:
			result = af * bf
		case ast.OpDiv:
			if bf == 0 {
				return nil, false
			}
			result = af / bf
		}
		if a.Kind == ast.IntLiteral && b.Kind == ast.IntLiteral && result == float64(int64(result)) {
			return &ast.Literal{Kind: ast.IntLiteral, Value: int64(result)}, true
		}
		return &ast.Literal{Kind: ast.FloatLiteral, Value: result}, true
	default:
		return nil, false
	}
}

func literalFloat(l *ast.Literal) (float64, bool) {
	switch v := l.Value.(type) {
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

// ---------------------------------------------------------------------
// Predicate pushdown and redundant-filter merging
// ---------------------------------------------------------------------

// mergeAdjacentFilters collapses Filter(Filter(x)) into one Filter carrying
// the AND of both predicates, the redundant-filter-merging rule — these
// arise naturally once pushPredicate starts wrapping subtrees that already
// sit under a Filter.
func mergeAdjacentFilters(n *logplan.Node) *logplan.Node {
	for len(n.Children) == 1 && n.Children[0].Type == logplan.NodeFilter {
		child := n.Children[0]
		n.Predicate = joinConjuncts(append(splitConjuncts(n.Predicate), splitConjuncts(child.Predicate)...))
		n.Children = child.Children
	}
	return n
}

// pushPredicate redistributes filter's top-level AND conjuncts as close to
// their base table as possible across join children — spec §4.5's
// predicate-pushdown rule. A conjunct that references columns from exactly
// one table alias moves into a Filter wrapping that table's scan subtree;
// anything else (cross-table conditions, unqualified references) stays at
// the original Filter.
func (o *Optimizer) pushPredicate(filter *logplan.Node) *logplan.Node {
	if len(filter.Children) != 1 || !isJoin(filter.Children[0].Type) {
		return filter
	}
	join := filter.Children[0]
	conjuncts := splitConjuncts(filter.Predicate)
	var remaining []ast.Expression
	for _, conj := range conjuncts {
		table, ok := singleTableRef(conj)
		if ok {
			if pushed, ok := o.pushInto(join, table, conj); ok {
				join = pushed
				continue
			}
		}
		remaining = append(remaining, conj)
	}
	filter.Children[0] = join
	filter.Predicate = joinConjuncts(remaining)
	if filter.Predicate == nil {
		return join
	}
	return filter
}

func isJoin(t logplan.NodeType) bool {
	return t == logplan.NodeNestedLoopJoin || t == logplan.NodeHashJoin || t == logplan.NodeSortMergeJoin
}

// pushInto finds the scan for table within n and wraps (or extends) it with
// conj, returning the rebuilt subtree and whether table was found at all.
// Every scan it newly wraps or extends is immediately re-offered to
// tryIndexScan: a predicate pushed down after the bottom-up rewrite pass
// already visited that subtree would otherwise never get a chance at
// index-scan synthesis, silently falling back to a full scan plus filter.
func (o *Optimizer) pushInto(n *logplan.Node, table string, conj ast.Expression) (*logplan.Node, bool) {
	if n == nil {
		return nil, false
	}
	switch n.Type {
	case logplan.NodeSeqScan, logplan.NodeIndexScan:
		if key(scanAlias(n)) != key(table) {
			return n, false
		}
		filter := &logplan.Node{Type: logplan.NodeFilter, Predicate: conj, Children: []*logplan.Node{n}}
		return o.tryIndexScan(filter), true
	case logplan.NodeFilter:
		if len(n.Children) == 1 && key(scanAlias(n.Children[0])) == key(table) {
			n.Predicate = joinConjuncts(append(splitConjuncts(n.Predicate), conj))
			if n.Children[0].Type == logplan.NodeSeqScan {
				return o.tryIndexScan(n), true
			}
			return n, true
		}
		for i, c := range n.Children {
			if nc, ok := o.pushInto(c, table, conj); ok {
				n.Children[i] = nc
				return n, true
			}
		}
		return n, false
	default:
		for i, c := range n.Children {
			if nc, ok := o.pushInto(c, table, conj); ok {
				n.Children[i] = nc
				return n, true
			}
		}
		return n, false
	}
}

// scanAlias returns the table alias a scan node is known by in the FROM
// clause (the same alias its StarExpr carries), falling back to the bare
// table name, so pushPredicate can match qualified column references.
func scanAlias(n *logplan.Node) string {
	if n == nil {
		return ""
	}
	if n.Type == logplan.NodeSeqScan || n.Type == logplan.NodeIndexScan {
		if len(n.Columns) == 1 {
			if star, ok := n.Columns[0].(*ast.StarExpr); ok && star.Table != "" {
				return star.Table
			}
		}
		return n.Table
	}
	return ""
}

// singleTableRef reports the one table alias every ColumnRef in e refers
// to, or ok=false if e references more than one alias or any unqualified
// column (ambiguous without a bound schema at this stage).
func singleTableRef(e ast.Expression) (string, bool) {
	table, ok := "", true
	var walk func(ast.Expression)
	walk = func(e ast.Expression) {
		if e == nil || !ok {
			return
		}
		switch v := e.(type) {
		case *ast.ColumnRef:
			if v.Table == "" {
				ok = false
				return
			}
			if table == "" {
				table = v.Table
			} else if key(table) != key(v.Table) {
				ok = false
			}
		case *ast.BinaryExpr:
			walk(v.Left)
			walk(v.Right)
		case *ast.UnaryExpr:
			walk(v.Operand)
		case *ast.BetweenExpr:
			walk(v.Expr)
			walk(v.Low)
			walk(v.High)
		}
	}
	walk(e)
	if table == "" {
		ok = false
	}
	return table, ok
}

// splitConjuncts flattens a top-level AND chain into its conjuncts; a
// non-AND expression is its own single conjunct.
func splitConjuncts(e ast.Expression) []ast.Expression {
	if e == nil {
		return nil
	}
	if b, ok := e.(*ast.BinaryExpr); ok && b.Op == ast.OpAnd {
		return append(splitConjuncts(b.Left), splitConjuncts(b.Right)...)
	}
	return []ast.Expression{e}
}

// joinConjuncts rebuilds an AND chain from conjuncts, or nil if there are
// none.
func joinConjuncts(conjuncts []ast.Expression) ast.Expression {
	if len(conjuncts) == 0 {
		return nil
	}
	out := conjuncts[0]
	for _, c := range conjuncts[1:] {
		out = &ast.BinaryExpr{Op: ast.OpAnd, Left: out, Right: c}
	}
	return out
}

// ---------------------------------------------------------------------
// Index-scan synthesis
// ---------------------------------------------------------------------

// tryIndexScan rewrites Filter(SeqScan(t)) into IndexScan(t) when one
// top-level AND conjunct of the filter's predicate is an equality against
// an indexed column, matching spec §4.5's "prefer an index scan when a
// usable index exists" rule. Every other conjunct travels along as the
// scan's Residual and is re-checked per row by pkg/exec — the index only
// ever answers the one conjunct it matched, never the whole WHERE clause.
func (o *Optimizer) tryIndexScan(filter *logplan.Node) *logplan.Node {
	if len(filter.Children) != 1 || filter.Children[0].Type != logplan.NodeSeqScan {
		return filter
	}
	scan := filter.Children[0]
	table, ok := o.cat.Table(scan.Table)
	if !ok {
		return filter
	}
	conjuncts := splitConjuncts(filter.Predicate)
	for i, conj := range conjuncts {
		col, ok := equalityColumn(conj)
		if !ok {
			continue
		}
		for _, idx := range table.Indexes {
			if len(idx.Columns) == 0 || key(idx.Columns[0]) != key(col) {
				continue
			}
			scan.Type = logplan.NodeIndexScan
			scan.IndexName = idx.Name
			scan.IndexCols = idx.Columns
			scan.Predicate = conj
			rest := append(append([]ast.Expression{}, conjuncts[:i]...), conjuncts[i+1:]...)
			scan.Residual = joinConjuncts(rest)
			return scan
		}
	}
	return filter
}

// equalityColumn extracts the column name of a top-level `col = literal`
// conjunct, the simplest case the spec's index-scan rule targets. AND
// chains are searched conjunct by conjunct (callers normally pre-split via
// splitConjuncts and pass one conjunct at a time).
func equalityColumn(e ast.Expression) (string, bool) {
	switch v := e.(type) {
	case *ast.BinaryExpr:
		if v.Op == ast.OpEq {
			if c, ok := v.Left.(*ast.ColumnRef); ok {
				if _, lit := v.Right.(*ast.Literal); lit {
					return c.Column, true
				}
			}
			if c, ok := v.Right.(*ast.ColumnRef); ok {
				if _, lit := v.Left.(*ast.Literal); lit {
					return c.Column, true
				}
			}
			return "", false
		}
		if v.Op == ast.OpAnd {
			if col, ok := equalityColumn(v.Left); ok {
				return col, true
			}
			return equalityColumn(v.Right)
		}
	}
	return "", false
}

// equalityLiteralValue extracts the literal value a `col = literal`
// conjunct binds col to, used by estimateSelectivity to look the value up
// in the column's MCV list.
func equalityLiteralValue(e ast.Expression, col string) (interface{}, bool) {
	b, ok := e.(*ast.BinaryExpr)
	if !ok || b.Op != ast.OpEq {
		return nil, false
	}
	if c, ok := b.Left.(*ast.ColumnRef); ok && key(c.Column) == key(col) {
		if lit, ok := b.Right.(*ast.Literal); ok {
			return lit.Value, true
		}
	}
	if c, ok := b.Right.(*ast.ColumnRef); ok && key(c.Column) == key(col) {
		if lit, ok := b.Left.(*ast.Literal); ok {
			return lit.Value, true
		}
	}
	return nil, false
}

func key(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

// ---------------------------------------------------------------------
// ORDER BY elimination
// ---------------------------------------------------------------------

// tryEliminateSort drops a Sort node when its input already arrives in the
// requested order because an IndexScan sits directly beneath a pass-through
// Project ("SELECT *") on the same leading columns — spec §4.5's ORDER-BY-
// via-index-ordering rule. Returns nil when the sort can't be proven
// redundant.
func tryEliminateSort(s *logplan.Node) *logplan.Node {
	if len(s.Children) != 1 {
		return nil
	}
	proj := s.Children[0]
	if proj.Type != logplan.NodeProject || len(proj.Children) != 1 || !isPassthroughStar(proj.Columns) {
		return nil
	}
	scan := proj.Children[0]
	if scan.Type != logplan.NodeIndexScan || !orderMatchesIndex(s.OrderBy, scan.IndexCols) {
		return nil
	}
	return proj
}

func isPassthroughStar(cols []ast.Expression) bool {
	if len(cols) != 1 {
		return false
	}
	_, ok := cols[0].(*ast.StarExpr)
	return ok
}

func orderMatchesIndex(order []ast.OrderByItem, indexCols []string) bool {
	if len(order) == 0 || len(order) > len(indexCols) {
		return false
	}
	for i, item := range order {
		if item.Desc {
			return false
		}
		col, ok := item.Expr.(*ast.ColumnRef)
		if !ok || key(col.Column) != key(indexCols[i]) {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------
// Join-order enumeration and method selection
// ---------------------------------------------------------------------

// reorderJoins finds every chain of comma-joined (inner, no ON predicate)
// tables up to maxJoinTables leaves and resequences them smallest-estimate
// first, a cheap stand-in for full cost-based DP enumeration that still
// honors spec §4.5's join-order-search requirement. Chains longer than the
// cap, or any join carrying an ON predicate, keep the parser's left-deep
// order unchanged.
func (o *Optimizer) reorderJoins(n *logplan.Node) *logplan.Node {
	if n == nil {
		return nil
	}
	if leaves, ok := collectCommaJoinChain(n); ok && len(leaves) >= 2 && len(leaves) <= maxJoinTables {
		for i, leaf := range leaves {
			leaves[i] = o.reorderJoins(leaf)
		}
		sorted := append([]*logplan.Node{}, leaves...)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].EstRows < sorted[j].EstRows })
		out := sorted[0]
		for _, leaf := range sorted[1:] {
			out = &logplan.Node{Type: logplan.NodeNestedLoopJoin, JoinType: ast.JoinInner, Children: []*logplan.Node{out, leaf}}
		}
		return out
	}
	for i, c := range n.Children {
		n.Children[i] = o.reorderJoins(c)
	}
	return n
}

// collectCommaJoinChain returns every leaf of n, provided n (and every
// join beneath it down to the leaves) is a plain inner join with no ON
// predicate — the shape buildSelect produces for `FROM a, b, c`.
func collectCommaJoinChain(n *logplan.Node) ([]*logplan.Node, bool) {
	if n.Type != logplan.NodeNestedLoopJoin || n.JoinType != ast.JoinInner || n.Predicate != nil {
		return nil, false
	}
	var leaves []*logplan.Node
	var walk func(*logplan.Node) bool
	walk = func(c *logplan.Node) bool {
		if c.Type == logplan.NodeNestedLoopJoin && c.JoinType == ast.JoinInner && c.Predicate == nil {
			return walk(c.Children[0]) && walk(c.Children[1])
		}
		leaves = append(leaves, c)
		return true
	}
	if len(n.Children) != 2 || !walk(n.Children[0]) || !walk(n.Children[1]) {
		return nil, false
	}
	return leaves, true
}

// chooseJoinMethod picks nested-loop, hash, or sort-merge for a join node,
// matching spec §4.5's join-method-selection rule: merge join wins when
// both sides already arrive sorted on the join key via an index (no sort
// or hash table needed), hash join wins once the smaller side is cheap
// enough to build a hash table over, and non-equi joins keep nested loop
// since neither hash nor sort-merge applies.
func (o *Optimizer) chooseJoinMethod(n *logplan.Node) *logplan.Node {
	if len(n.Children) != 2 {
		return n
	}
	left, right := n.Children[0], n.Children[1]
	leftCol, rightCol, isEquiJoin := equiJoinColumns(n.Predicate)
	if !isEquiJoin {
		return n // keep nested loop: no equi-join key to hash or sort on
	}

	if indexOrdered(left, leftCol) && indexOrdered(right, rightCol) {
		n.Type = logplan.NodeSortMergeJoin
		return n
	}

	buildRows := right.EstRows
	if left.EstRows < buildRows {
		buildRows = left.EstRows
	}
	nestedLoopCost := float64(left.EstRows) * float64(right.EstRows) * seqScanRowCost
	hashJoinCost := float64(left.EstRows+right.EstRows)*seqScanRowCost + float64(buildRows)*hashBuildCPU
	if hashJoinCost < nestedLoopCost {
		n.Type = logplan.NodeHashJoin
	}
	return n
}

// equiJoinColumns reports the two column names of a `col = col` join
// predicate, distinct from equalityColumn (which instead looks for
// `col = literal` for index-scan synthesis).
func equiJoinColumns(pred ast.Expression) (left, right string, ok bool) {
	b, isBin := pred.(*ast.BinaryExpr)
	if !isBin || b.Op != ast.OpEq {
		return "", "", false
	}
	lc, lok := b.Left.(*ast.ColumnRef)
	rc, rok := b.Right.(*ast.ColumnRef)
	if !lok || !rok {
		return "", "", false
	}
	return lc.Column, rc.Column, true
}

// indexOrdered reports whether n is an index scan whose leading index
// column is col, meaning its output already arrives sorted on col.
func indexOrdered(n *logplan.Node, col string) bool {
	return n.Type == logplan.NodeIndexScan && len(n.IndexCols) > 0 && key(n.IndexCols[0]) == key(col)
}

// ---------------------------------------------------------------------
// Cost annotation
// ---------------------------------------------------------------------

// annotateCost walks bottom-up filling in Cost and EstRows for every node,
// using the blended weights spec §4.5 specifies.
func (o *Optimizer) annotateCost(n *logplan.Node) {
	if n == nil {
		return
	}
	for _, c := range n.Children {
		o.annotateCost(c)
	}

	switch n.Type {
	case logplan.NodeSeqScan:
		n.Cost.IO = float64(o.pageCount(n.Table, n.EstRows)) * pageIOCost
		n.Cost.CPU = float64(n.EstRows) * 0.1
	case logplan.NodeIndexScan:
		n.Cost.IO = indexSeekCost + float64(n.EstRows)*indexScanRowCost
		n.Cost.CPU = float64(n.EstRows) * 0.05
		n.EstRows = o.estimateSelectivity(n.EstRows, n.Table, n.IndexCols, n.Predicate)
	case logplan.NodeFilter:
		child := childCost(n)
		n.Cost = child
		n.EstRows = childRows(n) / 3 // default selectivity guess absent stats
	case logplan.NodeHashAggregate:
		child := childCost(n)
		n.Cost = child
		n.Cost.Memory += float64(childRows(n)) * 0.02
		n.Cost.CPU += float64(childRows(n)) * hashBuildCPU
		n.EstRows = max64(childRows(n)/4, 1)
	case logplan.NodeSort:
		child := childCost(n)
		n.Cost = child
		rows := float64(childRows(n))
		n.Cost.CPU += rows * sortCPUFactor
		n.Cost.Memory += rows * 0.01
		n.EstRows = childRows(n)
	case logplan.NodeNestedLoopJoin:
		n.Cost.IO = n.Children[0].Cost.Total + n.Children[1].Cost.Total
		n.Cost.CPU = float64(n.Children[0].EstRows) * float64(n.Children[1].EstRows) * 0.01
		n.EstRows = n.Children[0].EstRows * n.Children[1].EstRows
	case logplan.NodeHashJoin:
		n.Cost.IO = n.Children[0].Cost.Total + n.Children[1].Cost.Total
		n.Cost.CPU = float64(n.Children[0].EstRows+n.Children[1].EstRows) * hashBuildCPU
		n.Cost.Memory = float64(min64(n.Children[0].EstRows, n.Children[1].EstRows)) * 0.05
		n.EstRows = max64(n.Children[0].EstRows, n.Children[1].EstRows)
	case logplan.NodeSortMergeJoin:
		n.Cost.IO = n.Children[0].Cost.Total + n.Children[1].Cost.Total
		rows := float64(n.Children[0].EstRows + n.Children[1].EstRows)
		n.Cost.CPU = rows * sortCPUFactor
		n.Cost.Memory = rows * 0.01
		n.EstRows = max64(n.Children[0].EstRows, n.Children[1].EstRows)
	case logplan.NodeProject, logplan.NodeLimit:
		if len(n.Children) == 1 {
			n.Cost = n.Children[0].Cost
			n.EstRows = n.Children[0].EstRows
		}
	default:
		n.Cost = childCost(n)
		n.EstRows = childRows(n)
	}

	n.Cost.Total = WeightIO*n.Cost.IO + WeightCPU*n.Cost.CPU + WeightMemory*n.Cost.Memory
}

func childCost(n *logplan.Node) logplan.Cost {
	if len(n.Children) == 0 {
		return logplan.Cost{}
	}
	return n.Children[0].Cost
}

func childRows(n *logplan.Node) int64 {
	if len(n.Children) == 0 {
		return 0
	}
	return n.Children[0].EstRows
}

// pageCount returns table's catalog page_count when known, falling back to
// an estimate from rows when the catalog hasn't been stats-refreshed yet.
func (o *Optimizer) pageCount(table string, rows int64) int64 {
	if t, ok := o.cat.Table(table); ok && t.PageCount > 0 {
		return t.PageCount
	}
	return max64(rows/catalog.RowsPerPage, 1)
}

// estimateSelectivity narrows an index scan's row estimate using the
// matched column's stats: an MCV hit uses its observed frequency directly,
// otherwise the remaining selectivity is spread uniformly across the
// column's non-MCV distinct values, per spec §4.5's MCV-based equality
// selectivity rule. A session-level SelectivityOverride (fed by the
// adaptive-tuning Tuner) always wins when present; a flat rows/10 guess is
// the last resort when the catalog has no stats for the column at all.
func (o *Optimizer) estimateSelectivity(rows int64, table string, cols []string, predicate ast.Expression) int64 {
	if len(cols) == 0 {
		return rows
	}
	col := cols[0]
	if sel, ok := o.stats.SelectivityOverrides[key(table)+"."+key(col)]; ok {
		return max64(int64(float64(rows)*sel), 1)
	}
	if t, ok := o.cat.Table(table); ok {
		if cs, ok := t.Stats[key(col)]; ok {
			if lit, ok := equalityLiteralValue(predicate, col); ok {
				return max64(mcvSelectivity(cs, rows, lit), 1)
			}
		}
	}
	return max64(rows/10, 1)
}

// mcvSelectivity estimates how many of rows equal value: an exact MCV
// match uses its recorded frequency; otherwise the probability mass left
// over after the MCV list is spread evenly across the remaining distinct
// values.
func mcvSelectivity(cs *catalog.ColumnStats, rows int64, value interface{}) int64 {
	var mcvMass float64
	for _, e := range cs.MCV {
		if e.Value == value {
			return int64(float64(rows) * e.Frequency)
		}
		mcvMass += e.Frequency
	}
	remainingDistinct := cs.DistinctCount - int64(len(cs.MCV))
	if remainingDistinct <= 0 {
		return max64(rows/10, 1)
	}
	return int64(float64(rows) * (1 - mcvMass) / float64(remainingDistinct))
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
