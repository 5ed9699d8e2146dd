// Package gql - query executor.
//
// Execute parses query text, then runs the statements. A query with
// any mutating statement runs inside a single storage transaction:
// later statements see earlier writes, and the first failure rolls the
// whole query back. Pure reads run directly against the engine under
// its read lock.
package gql

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/deepgraph/graphlite/pkg/storage"
)

// Graph is the read surface an executor needs. Both storage.Engine and
// *storage.Tx satisfy it, so match enumeration is identical inside and
// outside a transaction.
type Graph interface {
	GetNode(id storage.NodeID) (*storage.Node, error)
	GetEdge(id storage.EdgeID) (*storage.Edge, error)
	NodesByLabel(label string) ([]*storage.Node, error)
	EdgesByType(edgeType string) ([]*storage.Edge, error)
	OutgoingEdges(id storage.NodeID) ([]*storage.Edge, error)
	IncomingEdges(id storage.NodeID) ([]*storage.Edge, error)
	AllNodes() ([]*storage.Node, error)
	AllEdges() ([]*storage.Edge, error)
}

// Mutator adds the write surface. *storage.Tx satisfies it.
type Mutator interface {
	Graph
	CreateNode(labels []string, props map[string]storage.Value) (storage.NodeID, error)
	CreateEdge(source, target storage.NodeID, edgeType string, props map[string]storage.Value) (storage.EdgeID, error)
	SetNodeProperty(id storage.NodeID, key string, value storage.Value) error
	RemoveNodeProperty(id storage.NodeID, key string) error
	DeleteNode(id storage.NodeID) error
	SetEdgeProperty(id storage.EdgeID, key string, value storage.Value) error
	RemoveEdgeProperty(id storage.EdgeID, key string) error
	DeleteEdge(id storage.EdgeID) error
}

var (
	_ Graph   = (storage.Engine)(nil)
	_ Mutator = (*storage.Tx)(nil)
)

// Executor runs parsed queries against a storage engine.
type Executor struct {
	store storage.Engine
	log   *logrus.Logger
}

// NewExecutor wires an executor to its engine. A nil logger falls back
// to the logrus standard logger.
func NewExecutor(store storage.Engine, log *logrus.Logger) *Executor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Executor{store: store, log: log}
}

// Execute runs query text and returns the last statement's result.
func (e *Executor) Execute(ctx context.Context, query string) (*Result, error) {
	start := time.Now()

	stmts, err := Parse(query)
	if err != nil {
		return nil, err
	}

	mutates := false
	for _, stmt := range stmts {
		if stmt.Mutates() {
			mutates = true
			break
		}
	}

	var result *Result
	if mutates {
		tx, err := e.store.Begin()
		if err != nil {
			return nil, err
		}
		// Roll back on any exit that did not commit, panics included,
		// so the engine write lock is always released and the store is
		// left untouched by a failed query.
		committed := false
		defer func() {
			if !committed {
				tx.Rollback()
			}
		}()
		for _, stmt := range stmts {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			result, err = e.runStatement(tx, tx, stmt)
			if err != nil {
				return nil, err
			}
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		committed = true
	} else {
		for _, stmt := range stmts {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			result, err = e.runStatement(e.store, nil, stmt)
			if err != nil {
				return nil, err
			}
		}
	}

	e.log.WithFields(logrus.Fields{
		"statements": len(stmts),
		"rows":       result.RowCount,
		"mutates":    mutates,
		"duration":   time.Since(start),
	}).Debug("query executed")

	return result, nil
}

func (e *Executor) runStatement(g Graph, mut Mutator, stmt Statement) (*Result, error) {
	switch s := stmt.(type) {
	case *MatchStatement:
		return e.runMatch(g, mut, s)
	case *InsertStatement:
		return e.runInsert(mut, s)
	default:
		return nil, errf(-1, "unsupported statement")
	}
}

// ---------------------------------------------------------------------------
// Bindings
// ---------------------------------------------------------------------------

// binding holds the entity a variable is bound to. Exactly one of
// node/edge is set.
type binding struct {
	node *storage.Node
	edge *storage.Edge
}

type bindings map[string]binding

func (b bindings) clone() bindings {
	cp := make(bindings, len(b))
	for k, v := range b {
		cp[k] = v
	}
	return cp
}

// ---------------------------------------------------------------------------
// MATCH
// ---------------------------------------------------------------------------

func (e *Executor) runMatch(g Graph, mut Mutator, stmt *MatchStatement) (*Result, error) {
	if err := validateMatchVars(stmt); err != nil {
		return nil, err
	}

	plan := planMatch(stmt.Patterns, stmt.Where)
	ev := &evaluator{g: g}

	// Enumerate every binding before touching the store: mutations
	// apply immediately inside a transaction and must not feed back
	// into the scan that produced them.
	var matched []bindings
	if err := e.enumerate(g, ev, plan.Steps, 0, bindings{}, &matched); err != nil {
		return nil, err
	}

	if stmt.Mutates() {
		if mut == nil {
			return nil, errf(-1, "mutation outside transaction")
		}
		if err := e.applyMutations(mut, ev, stmt, matched); err != nil {
			return nil, err
		}
	}

	if stmt.Return == nil {
		return emptyResult(), nil
	}
	return e.project(ev, stmt.Return, matched)
}

// validateMatchVars rejects references to variables no pattern
// declares before any enumeration happens. A match producing zero
// rows must fail the same way a populated one would.
func validateMatchVars(stmt *MatchStatement) error {
	declared := make(map[string]bool)
	for _, pat := range stmt.Patterns {
		declarePatternVars(pat, declared)
	}

	if err := checkVarRefs(stmt.Where, declared); err != nil {
		return err
	}
	for _, item := range stmt.Sets {
		if !declared[item.Variable] {
			return errf(item.Pos, "unknown variable %q", item.Variable)
		}
		if err := checkVarRefs(item.Value, declared); err != nil {
			return err
		}
	}
	for _, item := range stmt.Removes {
		if !declared[item.Variable] {
			return errf(item.Pos, "unknown variable %q", item.Variable)
		}
	}
	for _, item := range stmt.Deletes {
		if !declared[item.Variable] {
			return errf(item.Pos, "unknown variable %q", item.Variable)
		}
	}

	// An INSERT tail declares further variables the trailing RETURN
	// can reference.
	for _, pat := range stmt.Inserts {
		declarePatternVars(pat, declared)
	}
	if stmt.Return != nil {
		for _, item := range stmt.Return.Items {
			if err := checkVarRefs(item.Expression, declared); err != nil {
				return err
			}
		}
		for _, ord := range stmt.Return.OrderBy {
			if err := checkVarRefs(ord.Expression, declared); err != nil {
				return err
			}
		}
	}
	return nil
}

func declarePatternVars(pat Pattern, declared map[string]bool) {
	for _, n := range pat.Nodes {
		declared[n.Variable] = true
	}
	for _, e := range pat.Edges {
		declared[e.Variable] = true
	}
}

// checkVarRefs reports the first variable reference in expr that is
// not in declared.
func checkVarRefs(expr Expression, declared map[string]bool) error {
	switch ex := expr.(type) {
	case *VariableRef:
		if !declared[ex.Name] {
			return errf(ex.Pos, "unknown variable %q", ex.Name)
		}
	case *PropertyAccess:
		if !declared[ex.Variable] {
			return errf(ex.Pos, "unknown variable %q", ex.Variable)
		}
	case *Comparison:
		if err := checkVarRefs(ex.Left, declared); err != nil {
			return err
		}
		return checkVarRefs(ex.Right, declared)
	case *LogicalExpr:
		if err := checkVarRefs(ex.Left, declared); err != nil {
			return err
		}
		return checkVarRefs(ex.Right, declared)
	case *NotExpr:
		return checkVarRefs(ex.Inner, declared)
	}
	return nil
}

// enumerate recursively extends b step by step, appending every
// complete binding to out.
func (e *Executor) enumerate(g Graph, ev *evaluator, steps []Step, idx int, b bindings, out *[]bindings) error {
	if idx == len(steps) {
		*out = append(*out, b.clone())
		return nil
	}
	step := steps[idx]

	accept := func(b bindings) error {
		for _, pred := range step.Predicates {
			ok, err := ev.predicate(b, pred)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
		}
		return e.enumerate(g, ev, steps, idx+1, b, out)
	}

	switch step.Kind {
	case StepScan:
		if prev, bound := b[step.Node.Variable]; bound {
			// Variable reused across patterns: the existing node just
			// has to satisfy this pattern too.
			if prev.node == nil || !nodeMatches(prev.node, step.Node) {
				return nil
			}
			return accept(b)
		}
		candidates, err := scanCandidates(g, step.Node)
		if err != nil {
			return err
		}
		for _, n := range candidates {
			if !nodeMatches(n, step.Node) {
				continue
			}
			b[step.Node.Variable] = binding{node: n}
			if err := accept(b); err != nil {
				return err
			}
			delete(b, step.Node.Variable)
		}
		return nil

	case StepExpand:
		from, bound := b[step.From]
		if !bound || from.node == nil {
			return errf(step.Edge.Pos, "internal: expansion from unbound variable %q", step.From)
		}
		cands, err := expandCandidates(g, from.node.ID, step)
		if err != nil {
			return err
		}
		for _, cand := range cands {
			if !edgeMatches(cand.edge, step.Edge) {
				continue
			}
			if prev, ok := b[step.Edge.Variable]; ok {
				if prev.edge == nil || prev.edge.ID != cand.edge.ID {
					continue
				}
			}
			far, err := g.GetNode(cand.far)
			if err != nil {
				return err
			}
			if prev, ok := b[step.Node.Variable]; ok {
				if prev.node == nil || prev.node.ID != far.ID {
					continue
				}
				if !nodeMatches(far, step.Node) {
					continue
				}
				b[step.Edge.Variable] = binding{edge: cand.edge}
				if err := accept(b); err != nil {
					return err
				}
				delete(b, step.Edge.Variable)
				continue
			}
			if !nodeMatches(far, step.Node) {
				continue
			}
			b[step.Edge.Variable] = binding{edge: cand.edge}
			b[step.Node.Variable] = binding{node: far}
			if err := accept(b); err != nil {
				return err
			}
			delete(b, step.Edge.Variable)
			delete(b, step.Node.Variable)
		}
		return nil

	default:
		return errf(-1, "internal: unknown plan step")
	}
}

// scanCandidates picks the narrowest read for a node pattern.
func scanCandidates(g Graph, node NodePattern) ([]*storage.Node, error) {
	if len(node.Labels) > 0 {
		return g.NodesByLabel(node.Labels[0])
	}
	return g.AllNodes()
}

type edgeCandidate struct {
	edge *storage.Edge
	far  storage.NodeID
}

// expandCandidates lists edges leaving (or entering) the bound
// endpoint, honoring the pattern direction as written. Reverse flips
// the direction because the traversal starts from the pattern's
// right-hand node.
func expandCandidates(g Graph, from storage.NodeID, step Step) ([]edgeCandidate, error) {
	dir := step.Edge.Direction
	if step.Reverse {
		switch dir {
		case EdgeOutgoing:
			dir = EdgeIncoming
		case EdgeIncoming:
			dir = EdgeOutgoing
		}
	}

	var cands []edgeCandidate
	seen := make(map[storage.EdgeID]bool)

	if dir == EdgeOutgoing || dir == EdgeBoth {
		edges, err := g.OutgoingEdges(from)
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			if !seen[e.ID] {
				seen[e.ID] = true
				cands = append(cands, edgeCandidate{edge: e, far: e.Target})
			}
		}
	}
	if dir == EdgeIncoming || dir == EdgeBoth {
		edges, err := g.IncomingEdges(from)
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			if !seen[e.ID] {
				seen[e.ID] = true
				cands = append(cands, edgeCandidate{edge: e, far: e.Source})
			}
		}
	}
	return cands, nil
}

func nodeMatches(n *storage.Node, pat NodePattern) bool {
	for _, label := range pat.Labels {
		if !n.HasLabel(label) {
			return false
		}
	}
	for key, want := range pat.Properties {
		have, ok := n.Properties[key]
		if !ok || !have.Equal(want) {
			return false
		}
	}
	return true
}

func edgeMatches(e *storage.Edge, pat EdgePattern) bool {
	if pat.Type != "" && e.Type != pat.Type {
		return false
	}
	for key, want := range pat.Properties {
		have, ok := e.Properties[key]
		if !ok || !have.Equal(want) {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// INSERT
// ---------------------------------------------------------------------------

func (e *Executor) runInsert(mut Mutator, stmt *InsertStatement) (*Result, error) {
	if mut == nil {
		return nil, errf(-1, "mutation outside transaction")
	}
	ev := &evaluator{g: mut}

	b := bindings{}
	if err := insertPatterns(mut, b, stmt.Patterns); err != nil {
		return nil, err
	}

	if stmt.Return == nil {
		return emptyResult(), nil
	}
	return e.project(ev, stmt.Return, []bindings{b})
}

// insertPatterns creates the nodes and edges of INSERT patterns,
// binding their variables as it goes. A bare bound variable reuses the
// existing node as an endpoint; re-declaring it with labels or
// properties is an error.
func insertPatterns(mut Mutator, b bindings, patterns []Pattern) error {
	for _, pat := range patterns {
		ids := make([]storage.NodeID, len(pat.Nodes))

		for i, node := range pat.Nodes {
			if prev, bound := b[node.Variable]; bound {
				if prev.node == nil {
					return errf(node.Pos, "variable %q is not a node", node.Variable)
				}
				if len(node.Labels) > 0 || len(node.Properties) > 0 {
					return errf(node.Pos, "variable %q is already bound", node.Variable)
				}
				ids[i] = prev.node.ID
				continue
			}
			id, err := mut.CreateNode(node.Labels, node.Properties)
			if err != nil {
				return err
			}
			created, err := mut.GetNode(id)
			if err != nil {
				return err
			}
			b[node.Variable] = binding{node: created}
			ids[i] = id
		}

		for i, edge := range pat.Edges {
			if _, bound := b[edge.Variable]; bound && !edge.Anonymous {
				return errf(edge.Pos, "variable %q is already bound", edge.Variable)
			}
			if edge.Type == "" {
				return errf(edge.Pos, "inserted edge requires a type")
			}
			var source, target storage.NodeID
			switch edge.Direction {
			case EdgeOutgoing:
				source, target = ids[i], ids[i+1]
			case EdgeIncoming:
				source, target = ids[i+1], ids[i]
			default:
				return errf(edge.Pos, "inserted edge requires a direction")
			}
			id, err := mut.CreateEdge(source, target, edge.Type, edge.Properties)
			if err != nil {
				return err
			}
			created, err := mut.GetEdge(id)
			if err != nil {
				return err
			}
			b[edge.Variable] = binding{edge: created}
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Mutation tails (SET / REMOVE / DELETE / MATCH-INSERT)
// ---------------------------------------------------------------------------

func (e *Executor) applyMutations(mut Mutator, ev *evaluator, stmt *MatchStatement, matched []bindings) error {
	for _, item := range stmt.Sets {
		for _, b := range matched {
			value, err := ev.eval(b, item.Value)
			if err != nil {
				return err
			}
			bd, ok := b[item.Variable]
			if !ok {
				return errf(item.Pos, "unknown variable %q", item.Variable)
			}
			switch {
			case bd.node != nil:
				err = mut.SetNodeProperty(bd.node.ID, item.Property, value)
			case bd.edge != nil:
				err = mut.SetEdgeProperty(bd.edge.ID, item.Property, value)
			}
			if err != nil {
				return err
			}
		}
	}

	for _, item := range stmt.Removes {
		for _, b := range matched {
			bd, ok := b[item.Variable]
			if !ok {
				return errf(item.Pos, "unknown variable %q", item.Variable)
			}
			var err error
			switch {
			case bd.node != nil:
				err = mut.RemoveNodeProperty(bd.node.ID, item.Property)
			case bd.edge != nil:
				err = mut.RemoveEdgeProperty(bd.edge.ID, item.Property)
			}
			if err != nil {
				return err
			}
		}
	}

	if len(stmt.Deletes) > 0 {
		// Collect targets first: the same entity can appear in many
		// bindings, and node deletion cascades to attached edges.
		delNodes := make(map[storage.NodeID]bool)
		delEdges := make(map[storage.EdgeID]bool)
		for _, item := range stmt.Deletes {
			for _, b := range matched {
				bd, ok := b[item.Variable]
				if !ok {
					return errf(item.Pos, "unknown variable %q", item.Variable)
				}
				switch {
				case bd.node != nil:
					delNodes[bd.node.ID] = true
				case bd.edge != nil:
					delEdges[bd.edge.ID] = true
				}
			}
		}
		for _, id := range sortedEdgeIDSet(delEdges) {
			if err := mut.DeleteEdge(id); err != nil && err != storage.ErrNotFound {
				return err
			}
		}
		for _, id := range sortedNodeIDSet(delNodes) {
			if err := mut.DeleteNode(id); err != nil && err != storage.ErrNotFound {
				return err
			}
		}
	}

	if len(stmt.Inserts) > 0 {
		// The tail binds new variables; the trailing RETURN projects
		// over the enriched tuples.
		for i, b := range matched {
			enriched := b.clone()
			if err := insertPatterns(mut, enriched, stmt.Inserts); err != nil {
				return err
			}
			matched[i] = enriched
		}
	}

	return nil
}

func sortedNodeIDSet(set map[storage.NodeID]bool) []storage.NodeID {
	ids := make([]storage.NodeID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedEdgeIDSet(set map[storage.EdgeID]bool) []storage.EdgeID {
	ids := make([]storage.EdgeID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ---------------------------------------------------------------------------
// RETURN
// ---------------------------------------------------------------------------

type projectedRow struct {
	b   bindings
	row Row
}

func (e *Executor) project(ev *evaluator, ret *ReturnClause, matched []bindings) (*Result, error) {
	variables := make([]string, len(ret.Items))
	for i, item := range ret.Items {
		variables[i] = item.Name()
	}

	rows := make([]projectedRow, 0, len(matched))
	for _, b := range matched {
		row := make(Row, len(ret.Items))
		for i, item := range ret.Items {
			value, err := ev.eval(b, item.Expression)
			if err != nil {
				return nil, err
			}
			row[variables[i]] = value
		}
		rows = append(rows, projectedRow{b: b, row: row})
	}

	if len(ret.OrderBy) > 0 {
		if err := sortRows(ev, ret.OrderBy, rows); err != nil {
			return nil, err
		}
	}

	if ret.Skip != nil {
		n := *ret.Skip
		if n > len(rows) {
			n = len(rows)
		}
		rows = rows[n:]
	}
	if ret.Limit != nil && *ret.Limit < len(rows) {
		rows = rows[:*ret.Limit]
	}

	result := &Result{Variables: variables, RowCount: len(rows)}
	for _, r := range rows {
		result.Rows = append(result.Rows, r.row)
	}
	return result, nil
}

// sortRows orders rows by the ORDER BY expressions. NULL sorts before
// every other value; otherwise values must be mutually comparable.
func sortRows(ev *evaluator, orderBy []OrderItem, rows []projectedRow) error {
	keys := make([][]storage.Value, len(rows))
	for i, r := range rows {
		keys[i] = make([]storage.Value, len(orderBy))
		for j, item := range orderBy {
			value, err := ev.eval(r.b, item.Expression)
			if err != nil {
				return err
			}
			keys[i][j] = value
		}
	}

	// Sort a permutation so keys stay index-aligned during comparison.
	perm := make([]int, len(rows))
	for i := range perm {
		perm[i] = i
	}
	var sortErr error
	sort.SliceStable(perm, func(i, j int) bool {
		ki, kj := keys[perm[i]], keys[perm[j]]
		for k, item := range orderBy {
			cmp, err := compareForSort(ki[k], kj[k])
			if err != nil && sortErr == nil {
				sortErr = errf(item.Expression.Position(), "%v in ORDER BY", err)
			}
			if cmp == 0 {
				continue
			}
			if item.Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	if sortErr != nil {
		return sortErr
	}

	sorted := make([]projectedRow, len(rows))
	for i, p := range perm {
		sorted[i] = rows[p]
	}
	copy(rows, sorted)
	return nil
}

func compareForSort(a, bv storage.Value) (int, error) {
	switch {
	case a.IsNull() && bv.IsNull():
		return 0, nil
	case a.IsNull():
		return -1, nil
	case bv.IsNull():
		return 1, nil
	}
	return a.Compare(bv)
}

// ---------------------------------------------------------------------------
// Expression evaluation
// ---------------------------------------------------------------------------

// evaluator resolves expressions against bindings, re-reading entities
// from the graph so projections after SET see fresh values.
type evaluator struct {
	g Graph
}

func (ev *evaluator) eval(b bindings, expr Expression) (storage.Value, error) {
	switch ex := expr.(type) {
	case *Literal:
		return ex.Value, nil

	case *VariableRef:
		bd, ok := b[ex.Name]
		if !ok {
			return storage.NewNull(), errf(ex.Pos, "unknown variable %q", ex.Name)
		}
		return ev.projectBinding(bd)

	case *PropertyAccess:
		bd, ok := b[ex.Variable]
		if !ok {
			return storage.NewNull(), errf(ex.Pos, "unknown variable %q", ex.Variable)
		}
		props, err := ev.freshProperties(bd)
		if err != nil {
			return storage.NewNull(), err
		}
		value, ok := props[ex.Property]
		if !ok {
			return storage.NewNull(), nil
		}
		return value, nil

	case *Comparison:
		return ev.evalComparison(b, ex)

	case *LogicalExpr:
		left, err := ev.eval(b, ex.Left)
		if err != nil {
			return storage.NewNull(), err
		}
		right, err := ev.eval(b, ex.Right)
		if err != nil {
			return storage.NewNull(), err
		}
		lt, err := truth(left, ex.Left.Position())
		if err != nil {
			return storage.NewNull(), err
		}
		rt, err := truth(right, ex.Right.Position())
		if err != nil {
			return storage.NewNull(), err
		}
		if ex.Operator == "AND" {
			return storage.NewBool(lt && rt), nil
		}
		return storage.NewBool(lt || rt), nil

	case *NotExpr:
		inner, err := ev.eval(b, ex.Inner)
		if err != nil {
			return storage.NewNull(), err
		}
		if inner.IsNull() {
			return storage.NewNull(), nil
		}
		t, err := truth(inner, ex.Inner.Position())
		if err != nil {
			return storage.NewNull(), err
		}
		return storage.NewBool(!t), nil

	default:
		return storage.NewNull(), errf(expr.Position(), "unsupported expression")
	}
}

func (ev *evaluator) evalComparison(b bindings, cmp *Comparison) (storage.Value, error) {
	left, err := ev.eval(b, cmp.Left)
	if err != nil {
		return storage.NewNull(), err
	}
	right, err := ev.eval(b, cmp.Right)
	if err != nil {
		return storage.NewNull(), err
	}

	// Comparing against NULL never matches.
	if left.IsNull() || right.IsNull() {
		return storage.NewNull(), nil
	}

	switch cmp.Operator {
	case "=":
		return storage.NewBool(left.Equal(right)), nil
	case "<>":
		return storage.NewBool(!left.Equal(right)), nil

	case "<", "<=", ">", ">=":
		c, err := left.Compare(right)
		if err != nil {
			return storage.NewNull(), errf(cmp.Pos,
				"cannot compare %s with %s", left.Kind(), right.Kind())
		}
		var ok bool
		switch cmp.Operator {
		case "<":
			ok = c < 0
		case "<=":
			ok = c <= 0
		case ">":
			ok = c > 0
		case ">=":
			ok = c >= 0
		}
		return storage.NewBool(ok), nil

	case "CONTAINS", "STARTS WITH":
		if left.Kind() != storage.KindString || right.Kind() != storage.KindString {
			return storage.NewNull(), errf(cmp.Pos,
				"%s requires string operands, got %s and %s",
				cmp.Operator, left.Kind(), right.Kind())
		}
		if cmp.Operator == "CONTAINS" {
			return storage.NewBool(strings.Contains(left.Str(), right.Str())), nil
		}
		return storage.NewBool(strings.HasPrefix(left.Str(), right.Str())), nil

	default:
		return storage.NewNull(), errf(cmp.Pos, "unsupported operator %q", cmp.Operator)
	}
}

// predicate evaluates a WHERE conjunct to a match decision. NULL and
// false both reject the binding.
func (ev *evaluator) predicate(b bindings, expr Expression) (bool, error) {
	value, err := ev.eval(b, expr)
	if err != nil {
		return false, err
	}
	if value.IsNull() {
		return false, nil
	}
	return truth(value, expr.Position())
}

func truth(v storage.Value, pos int) (bool, error) {
	switch v.Kind() {
	case storage.KindBool:
		return v.Bool(), nil
	case storage.KindNull:
		return false, nil
	default:
		return false, errf(pos, "expected a boolean, got %s", v.Kind())
	}
}

// freshProperties re-reads the bound entity so values set earlier in
// the same query are visible. A miss falls back to the copy captured
// at bind time.
func (ev *evaluator) freshProperties(bd binding) (map[string]storage.Value, error) {
	switch {
	case bd.node != nil:
		n, err := ev.g.GetNode(bd.node.ID)
		if err == storage.ErrNotFound {
			return bd.node.Properties, nil
		}
		if err != nil {
			return nil, err
		}
		return n.Properties, nil
	case bd.edge != nil:
		e, err := ev.g.GetEdge(bd.edge.ID)
		if err == storage.ErrNotFound {
			return bd.edge.Properties, nil
		}
		if err != nil {
			return nil, err
		}
		return e.Properties, nil
	default:
		return nil, errf(-1, "internal: empty binding")
	}
}

// projectBinding renders an entity as a map value:
// nodes   {id, labels, properties}
// edges   {id, source, target, type, properties}
func (ev *evaluator) projectBinding(bd binding) (storage.Value, error) {
	switch {
	case bd.node != nil:
		n, err := ev.g.GetNode(bd.node.ID)
		if err == storage.ErrNotFound {
			n = bd.node
		} else if err != nil {
			return storage.NewNull(), err
		}
		labels := make([]storage.Value, len(n.Labels))
		for i, l := range n.Labels {
			labels[i] = storage.NewString(l)
		}
		return storage.NewMap(map[string]storage.Value{
			"id":         storage.NewInt(int64(n.ID)),
			"labels":     storage.NewList(labels),
			"properties": storage.NewMap(n.Properties),
		}), nil

	case bd.edge != nil:
		e, err := ev.g.GetEdge(bd.edge.ID)
		if err == storage.ErrNotFound {
			e = bd.edge
		} else if err != nil {
			return storage.NewNull(), err
		}
		return storage.NewMap(map[string]storage.Value{
			"id":         storage.NewInt(int64(e.ID)),
			"source":     storage.NewInt(int64(e.Source)),
			"target":     storage.NewInt(int64(e.Target)),
			"type":       storage.NewString(e.Type),
			"properties": storage.NewMap(e.Properties),
		}), nil

	default:
		return storage.NewNull(), errf(-1, "internal: empty binding")
	}
}
