// Package gql - abstract syntax tree.
package gql

import (
	"github.com/deepgraph/graphlite/pkg/storage"
)

// Statement is one statement of a query text. A query text holds one or
// more statements separated by ';'; all of their mutations form a single
// atomic unit.
type Statement interface {
	stmtMarker()
	// Mutates reports whether the statement can change the graph.
	Mutates() bool
}

// MatchStatement is MATCH ... [WHERE ...] followed by a tail: RETURN,
// SET, REMOVE, DELETE or INSERT. SET/REMOVE/INSERT may carry a trailing
// RETURN of their own.
type MatchStatement struct {
	Patterns []Pattern
	Where    Expression // nil when absent

	Return  *ReturnClause // nil when absent
	Sets    []SetItem
	Removes []RemoveItem
	Deletes []DeleteItem
	Inserts []Pattern // MATCH ... INSERT: executed once per binding
}

func (s *MatchStatement) stmtMarker() {}

// Mutates reports whether the statement carries a mutation tail.
func (s *MatchStatement) Mutates() bool {
	return len(s.Sets) > 0 || len(s.Removes) > 0 || len(s.Deletes) > 0 || len(s.Inserts) > 0
}

// InsertStatement is a standalone INSERT of one or more patterns.
type InsertStatement struct {
	Patterns []Pattern
	Return   *ReturnClause // nil when absent
}

func (s *InsertStatement) stmtMarker() {}

// Mutates always reports true for INSERT.
func (s *InsertStatement) Mutates() bool { return true }

// Pattern is a linear node-edge-node chain, written
// (a:L)-[r:T]->(b:M)-[...]->... . Nodes has exactly one more element
// than Edges; Edges[i] connects Nodes[i] and Nodes[i+1].
type Pattern struct {
	Nodes []NodePattern
	Edges []EdgePattern
}

// NodePattern is one node element of a pattern.
type NodePattern struct {
	// Variable binds the matched node. Anonymous nodes get a generated
	// name (prefixed "$anon") that cannot collide with user identifiers.
	Variable string
	// Anonymous marks generated variables; they are never projectable.
	Anonymous  bool
	Labels     []string
	Properties map[string]storage.Value
	Pos        int
}

// EdgeDirection is the direction of an edge pattern element.
type EdgeDirection int

const (
	// EdgeBoth matches the edge in either direction (-[r]- syntax).
	EdgeBoth EdgeDirection = iota
	// EdgeOutgoing matches left-to-right (-[r]-> syntax).
	EdgeOutgoing
	// EdgeIncoming matches right-to-left (<-[r]- syntax).
	EdgeIncoming
)

// EdgePattern is one edge element of a pattern.
type EdgePattern struct {
	Variable   string
	Anonymous  bool
	Type       string // empty matches any type
	Direction  EdgeDirection
	Properties map[string]storage.Value
	Pos        int
}

// Expression is a GQL expression over bound variables and literals.
type Expression interface {
	exprMarker()
	// Position returns the byte offset of the expression's start.
	Position() int
}

// VariableRef references a bound pattern variable (node or edge).
type VariableRef struct {
	Name string
	Pos  int
}

func (e *VariableRef) exprMarker() {}
func (e *VariableRef) Position() int { return e.Pos }

// PropertyAccess is variable.property.
type PropertyAccess struct {
	Variable string
	Property string
	Pos      int
}

func (e *PropertyAccess) exprMarker() {}
func (e *PropertyAccess) Position() int { return e.Pos }

// Literal is a constant value.
type Literal struct {
	Value storage.Value
	Pos   int
}

func (e *Literal) exprMarker() {}
func (e *Literal) Position() int { return e.Pos }

// Comparison is a binary predicate. Operator is one of
// = <> < <= > >= CONTAINS "STARTS WITH".
type Comparison struct {
	Left     Expression
	Operator string
	Right    Expression
	Pos      int
}

func (e *Comparison) exprMarker() {}
func (e *Comparison) Position() int { return e.Pos }

// LogicalExpr combines two predicates with AND or OR.
type LogicalExpr struct {
	Operator string // "AND" or "OR"
	Left     Expression
	Right    Expression
	Pos      int
}

func (e *LogicalExpr) exprMarker() {}
func (e *LogicalExpr) Position() int { return e.Pos }

// NotExpr negates a predicate.
type NotExpr struct {
	Inner Expression
	Pos   int
}

func (e *NotExpr) exprMarker() {}
func (e *NotExpr) Position() int { return e.Pos }

// ReturnClause is RETURN items [ORDER BY ...] [SKIP n] [LIMIT n].
type ReturnClause struct {
	Items   []ReturnItem
	OrderBy []OrderItem
	Skip    *int
	Limit   *int
}

// ReturnItem is one projected column.
type ReturnItem struct {
	Expression Expression
	// Alias is the AS name, or "" when absent.
	Alias string
	// Text is the expression's source text, used as the column name when
	// no alias is given.
	Text string
}

// Name returns the output column name.
func (it ReturnItem) Name() string {
	if it.Alias != "" {
		return it.Alias
	}
	return it.Text
}

// OrderItem is one ORDER BY key.
type OrderItem struct {
	Expression Expression
	Descending bool
}

// SetItem is one SET variable.property = expression assignment.
type SetItem struct {
	Variable string
	Property string
	Value    Expression
	Pos      int
}

// RemoveItem is one REMOVE variable.property item.
type RemoveItem struct {
	Variable string
	Property string
	Pos      int
}

// DeleteItem is one DELETE target variable.
type DeleteItem struct {
	Variable string
	Pos      int
}

// collectVars appends the names of all variables an expression
// references, in source order.
func collectVars(expr Expression, out *[]string) {
	switch e := expr.(type) {
	case *VariableRef:
		*out = append(*out, e.Name)
	case *PropertyAccess:
		*out = append(*out, e.Variable)
	case *Comparison:
		collectVars(e.Left, out)
		collectVars(e.Right, out)
	case *LogicalExpr:
		collectVars(e.Left, out)
		collectVars(e.Right, out)
	case *NotExpr:
		collectVars(e.Inner, out)
	}
}
