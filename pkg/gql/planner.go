// Package gql - match planner.
//
// A plan is an ordered list of binding steps. Scans bind a node
// variable from an index or full scan; expands walk an edge out of an
// already-bound node. Steps carry the WHERE conjuncts that become
// evaluable once the step's variable is bound, so filters run as early
// as possible.
package gql

// StepKind discriminates plan steps.
type StepKind int

const (
	// StepScan binds a node variable from a label index or full scan.
	StepScan StepKind = iota
	// StepExpand binds an edge variable and its far node by walking
	// the adjacency of an already-bound node.
	StepExpand
)

// Step is one binding operation of a plan.
type Step struct {
	Kind StepKind

	// Node is the node pattern bound by this step. For StepExpand it
	// is the far endpoint of the edge.
	Node NodePattern

	// StepExpand only.
	Edge EdgePattern
	From string // bound node variable the expansion starts from
	// Reverse is set when the expansion starts from the pattern's
	// right-hand node, so the written direction must be mirrored.
	Reverse bool

	// Predicates are WHERE conjuncts whose variables are all bound
	// once this step has run.
	Predicates []Expression
}

// Plan is the ordered binding strategy for one MATCH.
type Plan struct {
	Steps []Step
}

type plannedEdge struct {
	edge  EdgePattern
	left  int // index into flattened node list
	right int
	done  bool
}

// planMatch orders the patterns of a MATCH into scans and expansions.
//
// Unbound nodes are scored by selectivity: labels and properties 3,
// labels only 2, properties only 1, bare 0. The highest score is
// scanned first; edges expand outward from bound endpoints in written
// order; ties keep written order.
func planMatch(patterns []Pattern, where Expression) Plan {
	var nodes []NodePattern
	var nodeDone []bool
	var edges []plannedEdge

	for _, pat := range patterns {
		base := len(nodes)
		nodes = append(nodes, pat.Nodes...)
		nodeDone = append(nodeDone, make([]bool, len(pat.Nodes))...)
		for i, e := range pat.Edges {
			edges = append(edges, plannedEdge{edge: e, left: base + i, right: base + i + 1})
		}
	}

	conjuncts := splitConjuncts(where)
	attached := make([]bool, len(conjuncts))
	bound := make(map[string]bool)

	attach := func(step *Step) {
		for i, c := range conjuncts {
			if attached[i] {
				continue
			}
			var vars []string
			collectVars(c, &vars)
			ok := true
			for _, v := range vars {
				if !bound[v] {
					ok = false
					break
				}
			}
			if ok {
				step.Predicates = append(step.Predicates, c)
				attached[i] = true
			}
		}
	}

	var steps []Step
	remaining := len(nodes) + len(edges)

	for remaining > 0 {
		// Expand any edge with a bound endpoint before scanning anew.
		expanded := false
		for i := range edges {
			pe := &edges[i]
			if pe.done {
				continue
			}
			var step Step
			switch {
			case bound[nodes[pe.left].Variable]:
				step = Step{
					Kind: StepExpand,
					Node: nodes[pe.right],
					Edge: pe.edge,
					From: nodes[pe.left].Variable,
				}
			case bound[nodes[pe.right].Variable]:
				step = Step{
					Kind:    StepExpand,
					Node:    nodes[pe.left],
					Edge:    pe.edge,
					From:    nodes[pe.right].Variable,
					Reverse: true,
				}
			default:
				continue
			}
			pe.done = true
			remaining--
			if !nodeDone[pe.left] {
				nodeDone[pe.left] = true
				remaining--
			}
			if !nodeDone[pe.right] {
				nodeDone[pe.right] = true
				remaining--
			}
			bound[step.Node.Variable] = true
			bound[pe.edge.Variable] = true
			attach(&step)
			steps = append(steps, step)
			expanded = true
			break
		}
		if expanded {
			continue
		}

		// No expandable edge: scan the most selective pending node.
		best := -1
		bestScore := -1
		for i, n := range nodes {
			if nodeDone[i] {
				continue
			}
			score := nodeScore(n)
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		if best < 0 {
			break // edges left but no nodes: cannot happen for well-formed patterns
		}
		nodeDone[best] = true
		remaining--
		bound[nodes[best].Variable] = true
		step := Step{Kind: StepScan, Node: nodes[best]}
		attach(&step)
		steps = append(steps, step)
	}

	// Conjuncts never fully bound keep evaluating on the last step.
	// Variable references are validated before planning, so this only
	// backstops planner gaps.
	if len(steps) > 0 {
		last := &steps[len(steps)-1]
		for i, c := range conjuncts {
			if !attached[i] {
				last.Predicates = append(last.Predicates, c)
				attached[i] = true
			}
		}
	}

	return Plan{Steps: steps}
}

func nodeScore(n NodePattern) int {
	score := 0
	if len(n.Labels) > 0 {
		score += 2
	}
	if len(n.Properties) > 0 {
		score++
	}
	return score
}

// splitConjuncts flattens top-level ANDs into a conjunct list.
func splitConjuncts(expr Expression) []Expression {
	if expr == nil {
		return nil
	}
	if and, ok := expr.(*LogicalExpr); ok && and.Operator == "AND" {
		return append(splitConjuncts(and.Left), splitConjuncts(and.Right)...)
	}
	return []Expression{expr}
}
