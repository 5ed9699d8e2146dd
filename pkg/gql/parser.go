// Package gql - recursive descent parser.
//
// Grammar (statements separated by ';'):
//
//	statement  := MATCH patterns [WHERE expr] tail | INSERT patterns [RETURN ...]
//	tail       := RETURN items [ORDER BY ...] [SKIP n] [LIMIT n]
//	            | SET setItems [RETURN ...]
//	            | REMOVE removeItems [RETURN ...]
//	            | DELETE vars
//	            | INSERT patterns [RETURN ...]
//	pattern    := node (edge node)*
//	node       := '(' [var] (':' label)* [props] ')'
//	edge       := '-[' [var] [':' type] [props] ']->'
//	            | '<-[' ... ']-'  |  '-[' ... ']-'
//
// Syntax errors carry the byte offset of the offending token.
package gql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/deepgraph/graphlite/pkg/storage"
)

type parser struct {
	src    string
	tokens []Token
	pos    int
	anon   int
}

// Parse compiles query text into its statement list.
func Parse(query string) ([]Statement, error) {
	tokens, err := tokenize(query)
	if err != nil {
		return nil, err
	}

	p := &parser{src: query, tokens: tokens}
	if p.cur().Type == TokenEOF {
		return nil, errf(0, "empty query")
	}

	var stmts []Statement
	for p.cur().Type != TokenEOF {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)

		if p.matchSymbol(";") {
			continue
		}
		if p.cur().Type != TokenEOF {
			return nil, errf(p.cur().Pos, "unexpected %q after statement", p.cur().Text)
		}
	}
	if len(stmts) == 0 {
		return nil, errf(0, "empty query")
	}
	return stmts, nil
}

// ---------------------------------------------------------------------------
// Token helpers
// ---------------------------------------------------------------------------

func (p *parser) cur() Token { return p.tokens[p.pos] }

func (p *parser) advance() Token {
	tok := p.tokens[p.pos]
	if tok.Type != TokenEOF {
		p.pos++
	}
	return tok
}

func (p *parser) isSymbol(text string) bool {
	return p.cur().Type == TokenSymbol && p.cur().Text == text
}

func (p *parser) isKeyword(kw string) bool {
	return p.cur().Type == TokenKeyword && p.cur().Text == kw
}

func (p *parser) matchSymbol(text string) bool {
	if p.isSymbol(text) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) matchKeyword(kw string) bool {
	if p.isKeyword(kw) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expectSymbol(text string) (Token, error) {
	if !p.isSymbol(text) {
		return Token{}, errf(p.cur().Pos, "expected %q, found %q", text, p.describeCur())
	}
	return p.advance(), nil
}

func (p *parser) expectIdentifier(what string) (Token, error) {
	if p.cur().Type != TokenIdentifier {
		return Token{}, errf(p.cur().Pos, "expected %s, found %q", what, p.describeCur())
	}
	return p.advance(), nil
}

func (p *parser) describeCur() string {
	if p.cur().Type == TokenEOF {
		return "end of query"
	}
	return p.cur().Text
}

func (p *parser) anonVar() string {
	p.anon++
	return fmt.Sprintf("$anon%d", p.anon)
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (p *parser) parseStatement() (Statement, error) {
	switch {
	case p.isKeyword("MATCH"):
		return p.parseMatchStatement()
	case p.isKeyword("INSERT"):
		return p.parseInsertStatement()
	default:
		return nil, errf(p.cur().Pos, "expected MATCH or INSERT, found %q", p.describeCur())
	}
}

func (p *parser) parseMatchStatement() (Statement, error) {
	p.advance() // MATCH

	patterns, err := p.parsePatterns()
	if err != nil {
		return nil, err
	}

	stmt := &MatchStatement{Patterns: patterns}

	if p.matchKeyword("WHERE") {
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		stmt.Where = expr
	}

	switch {
	case p.isKeyword("RETURN"):
		ret, err := p.parseReturnClause()
		if err != nil {
			return nil, err
		}
		stmt.Return = ret

	case p.matchKeyword("SET"):
		items, err := p.parseSetItems()
		if err != nil {
			return nil, err
		}
		stmt.Sets = items
		if p.isKeyword("RETURN") {
			ret, err := p.parseReturnClause()
			if err != nil {
				return nil, err
			}
			stmt.Return = ret
		}

	case p.matchKeyword("REMOVE"):
		items, err := p.parseRemoveItems()
		if err != nil {
			return nil, err
		}
		stmt.Removes = items
		if p.isKeyword("RETURN") {
			ret, err := p.parseReturnClause()
			if err != nil {
				return nil, err
			}
			stmt.Return = ret
		}

	case p.matchKeyword("DELETE"):
		items, err := p.parseDeleteItems()
		if err != nil {
			return nil, err
		}
		stmt.Deletes = items

	case p.matchKeyword("INSERT"):
		inserted, err := p.parsePatterns()
		if err != nil {
			return nil, err
		}
		stmt.Inserts = inserted
		if p.isKeyword("RETURN") {
			ret, err := p.parseReturnClause()
			if err != nil {
				return nil, err
			}
			stmt.Return = ret
		}

	default:
		return nil, errf(p.cur().Pos,
			"expected RETURN, SET, REMOVE, DELETE or INSERT after MATCH, found %q", p.describeCur())
	}

	return stmt, nil
}

func (p *parser) parseInsertStatement() (Statement, error) {
	p.advance() // INSERT

	patterns, err := p.parsePatterns()
	if err != nil {
		return nil, err
	}

	stmt := &InsertStatement{Patterns: patterns}
	if p.isKeyword("RETURN") {
		ret, err := p.parseReturnClause()
		if err != nil {
			return nil, err
		}
		stmt.Return = ret
	}
	return stmt, nil
}

// ---------------------------------------------------------------------------
// Patterns
// ---------------------------------------------------------------------------

func (p *parser) parsePatterns() ([]Pattern, error) {
	var patterns []Pattern
	for {
		pat, err := p.parsePattern()
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, pat)
		if !p.matchSymbol(",") {
			return patterns, nil
		}
	}
}

func (p *parser) parsePattern() (Pattern, error) {
	var pat Pattern

	node, err := p.parseNodePattern()
	if err != nil {
		return pat, err
	}
	pat.Nodes = append(pat.Nodes, node)

	for p.isSymbol("-") || p.isSymbol("<-") {
		edge, err := p.parseEdgePattern()
		if err != nil {
			return pat, err
		}
		next, err := p.parseNodePattern()
		if err != nil {
			return pat, err
		}
		pat.Edges = append(pat.Edges, edge)
		pat.Nodes = append(pat.Nodes, next)
	}

	return pat, nil
}

func (p *parser) parseNodePattern() (NodePattern, error) {
	open, err := p.expectSymbol("(")
	if err != nil {
		return NodePattern{}, err
	}

	node := NodePattern{Pos: open.Pos}

	if p.cur().Type == TokenIdentifier {
		node.Variable = p.advance().Text
	}

	for p.matchSymbol(":") {
		label, err := p.expectIdentifier("label")
		if err != nil {
			return node, err
		}
		node.Labels = append(node.Labels, label.Text)
	}

	if p.isSymbol("{") {
		props, err := p.parsePropertyMap()
		if err != nil {
			return node, err
		}
		node.Properties = props
	}

	if _, err := p.expectSymbol(")"); err != nil {
		return node, err
	}

	if node.Variable == "" {
		node.Variable = p.anonVar()
		node.Anonymous = true
	}
	return node, nil
}

func (p *parser) parseEdgePattern() (EdgePattern, error) {
	start := p.cur()
	edge := EdgePattern{Pos: start.Pos}

	// Leading arrow: '-' or '<-'
	incoming := false
	switch {
	case p.matchSymbol("<-"):
		incoming = true
	case p.matchSymbol("-"):
	default:
		return edge, errf(start.Pos, "expected edge pattern, found %q", p.describeCur())
	}

	if _, err := p.expectSymbol("["); err != nil {
		return edge, err
	}

	if p.cur().Type == TokenIdentifier {
		edge.Variable = p.advance().Text
	}
	if p.matchSymbol(":") {
		typ, err := p.expectIdentifier("edge type")
		if err != nil {
			return edge, err
		}
		edge.Type = typ.Text
	}
	if p.isSymbol("{") {
		props, err := p.parsePropertyMap()
		if err != nil {
			return edge, err
		}
		edge.Properties = props
	}

	if _, err := p.expectSymbol("]"); err != nil {
		return edge, err
	}

	// Trailing arrow: '->' or '-'
	switch {
	case p.matchSymbol("->"):
		if incoming {
			return edge, errf(start.Pos, "edge pattern cannot point both ways")
		}
		edge.Direction = EdgeOutgoing
	case p.matchSymbol("-"):
		if incoming {
			edge.Direction = EdgeIncoming
		} else {
			edge.Direction = EdgeBoth
		}
	default:
		return edge, errf(p.cur().Pos, "expected \"->\" or \"-\" after edge pattern, found %q", p.describeCur())
	}

	if edge.Variable == "" {
		edge.Variable = p.anonVar()
		edge.Anonymous = true
	}
	return edge, nil
}

// parsePropertyMap parses a literal property map {k: v, ...}.
func (p *parser) parsePropertyMap() (map[string]storage.Value, error) {
	if _, err := p.expectSymbol("{"); err != nil {
		return nil, err
	}

	props := make(map[string]storage.Value)
	if p.matchSymbol("}") {
		return props, nil
	}

	for {
		var key string
		switch p.cur().Type {
		case TokenIdentifier, TokenString:
			key = p.advance().Text
		default:
			return nil, errf(p.cur().Pos, "expected property key, found %q", p.describeCur())
		}

		if _, err := p.expectSymbol(":"); err != nil {
			return nil, err
		}
		value, err := p.parseLiteralValue()
		if err != nil {
			return nil, err
		}
		props[key] = value

		if p.matchSymbol(",") {
			continue
		}
		if _, err := p.expectSymbol("}"); err != nil {
			return nil, err
		}
		return props, nil
	}
}

// parseLiteralValue parses a literal: null, booleans, numbers (with
// optional leading minus), strings, lists and maps.
func (p *parser) parseLiteralValue() (storage.Value, error) {
	tok := p.cur()

	switch {
	case tok.Type == TokenKeyword && tok.Text == "NULL":
		p.advance()
		return storage.NewNull(), nil

	case tok.Type == TokenKeyword && tok.Text == "TRUE":
		p.advance()
		return storage.NewBool(true), nil

	case tok.Type == TokenKeyword && tok.Text == "FALSE":
		p.advance()
		return storage.NewBool(false), nil

	case tok.Type == TokenString:
		p.advance()
		return storage.NewString(tok.Text), nil

	case tok.Type == TokenNumber:
		p.advance()
		return parseNumber(tok)

	case tok.Type == TokenSymbol && tok.Text == "-":
		p.advance()
		if p.cur().Type != TokenNumber {
			return storage.NewNull(), errf(p.cur().Pos, "expected number after '-', found %q", p.describeCur())
		}
		num := p.advance()
		value, err := parseNumber(num)
		if err != nil {
			return storage.NewNull(), err
		}
		if value.Kind() == storage.KindInt {
			return storage.NewInt(-value.Int()), nil
		}
		return storage.NewFloat(-value.Float()), nil

	case tok.Type == TokenSymbol && tok.Text == "[":
		p.advance()
		var items []storage.Value
		if p.matchSymbol("]") {
			return storage.NewList(items), nil
		}
		for {
			item, err := p.parseLiteralValue()
			if err != nil {
				return storage.NewNull(), err
			}
			items = append(items, item)
			if p.matchSymbol(",") {
				continue
			}
			if _, err := p.expectSymbol("]"); err != nil {
				return storage.NewNull(), err
			}
			return storage.NewList(items), nil
		}

	case tok.Type == TokenSymbol && tok.Text == "{":
		entries, err := p.parsePropertyMap()
		if err != nil {
			return storage.NewNull(), err
		}
		return storage.NewMap(entries), nil

	default:
		return storage.NewNull(), errf(tok.Pos, "expected literal value, found %q", p.describeCur())
	}
}

func parseNumber(tok Token) (storage.Value, error) {
	if strings.Contains(tok.Text, ".") {
		f, err := strconv.ParseFloat(tok.Text, 64)
		if err != nil {
			return storage.NewNull(), errf(tok.Pos, "invalid number %q", tok.Text)
		}
		return storage.NewFloat(f), nil
	}
	i, err := strconv.ParseInt(tok.Text, 10, 64)
	if err != nil {
		return storage.NewNull(), errf(tok.Pos, "invalid number %q", tok.Text)
	}
	return storage.NewInt(i), nil
}

// ---------------------------------------------------------------------------
// Expressions (precedence: OR < AND < NOT < comparison < operand)
// ---------------------------------------------------------------------------

func (p *parser) parseExpression() (Expression, error) {
	return p.parseOr()
}

func (p *parser) parseOr() (Expression, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("OR") {
		pos := p.advance().Pos
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &LogicalExpr{Operator: "OR", Left: left, Right: right, Pos: pos}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expression, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("AND") {
		pos := p.advance().Pos
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &LogicalExpr{Operator: "AND", Left: left, Right: right, Pos: pos}
	}
	return left, nil
}

func (p *parser) parseNot() (Expression, error) {
	if p.isKeyword("NOT") {
		pos := p.advance().Pos
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &NotExpr{Inner: inner, Pos: pos}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (Expression, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	var op string
	pos := p.cur().Pos
	switch {
	case p.cur().Type == TokenSymbol:
		switch p.cur().Text {
		case "=", "<>", "<", "<=", ">", ">=":
			op = p.advance().Text
		default:
			return left, nil
		}
	case p.isKeyword("CONTAINS"):
		p.advance()
		op = "CONTAINS"
	case p.isKeyword("STARTS"):
		p.advance()
		if !p.matchKeyword("WITH") {
			return nil, errf(p.cur().Pos, "expected WITH after STARTS, found %q", p.describeCur())
		}
		op = "STARTS WITH"
	default:
		return left, nil
	}

	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return &Comparison{Left: left, Operator: op, Right: right, Pos: pos}, nil
}

func (p *parser) parseOperand() (Expression, error) {
	tok := p.cur()

	if p.matchSymbol("(") {
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return expr, nil
	}

	if tok.Type == TokenIdentifier {
		p.advance()
		if p.matchSymbol(".") {
			prop, err := p.expectIdentifier("property name")
			if err != nil {
				return nil, err
			}
			return &PropertyAccess{Variable: tok.Text, Property: prop.Text, Pos: tok.Pos}, nil
		}
		return &VariableRef{Name: tok.Text, Pos: tok.Pos}, nil
	}

	value, err := p.parseLiteralValue()
	if err != nil {
		return nil, err
	}
	return &Literal{Value: value, Pos: tok.Pos}, nil
}

// ---------------------------------------------------------------------------
// RETURN / SET / REMOVE / DELETE
// ---------------------------------------------------------------------------

func (p *parser) parseReturnClause() (*ReturnClause, error) {
	p.advance() // RETURN

	clause := &ReturnClause{}
	for {
		start := p.cur().Pos
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		item := ReturnItem{
			Expression: expr,
			Text:       strings.TrimSpace(p.src[start:p.cur().Pos]),
		}
		if p.matchKeyword("AS") {
			alias, err := p.expectIdentifier("alias")
			if err != nil {
				return nil, err
			}
			item.Alias = alias.Text
		}
		clause.Items = append(clause.Items, item)

		if !p.matchSymbol(",") {
			break
		}
	}

	if p.matchKeyword("ORDER") {
		if !p.matchKeyword("BY") {
			return nil, errf(p.cur().Pos, "expected BY after ORDER, found %q", p.describeCur())
		}
		for {
			expr, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			item := OrderItem{Expression: expr}
			switch {
			case p.matchKeyword("DESC"):
				item.Descending = true
			case p.matchKeyword("ASC"):
			}
			clause.OrderBy = append(clause.OrderBy, item)
			if !p.matchSymbol(",") {
				break
			}
		}
	}

	if p.matchKeyword("SKIP") {
		n, err := p.parseNonNegativeInt("SKIP")
		if err != nil {
			return nil, err
		}
		clause.Skip = &n
	}
	if p.matchKeyword("LIMIT") {
		n, err := p.parseNonNegativeInt("LIMIT")
		if err != nil {
			return nil, err
		}
		clause.Limit = &n
	}

	return clause, nil
}

func (p *parser) parseNonNegativeInt(kw string) (int, error) {
	if p.cur().Type != TokenNumber {
		return 0, errf(p.cur().Pos, "expected number after %s, found %q", kw, p.describeCur())
	}
	tok := p.advance()
	n, err := strconv.Atoi(tok.Text)
	if err != nil || n < 0 {
		return 0, errf(tok.Pos, "invalid %s count %q", kw, tok.Text)
	}
	return n, nil
}

func (p *parser) parseSetItems() ([]SetItem, error) {
	var items []SetItem
	for {
		variable, err := p.expectIdentifier("variable")
		if err != nil {
			return nil, err
		}
		if _, err := p.expectSymbol("."); err != nil {
			return nil, err
		}
		prop, err := p.expectIdentifier("property name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expectSymbol("="); err != nil {
			return nil, err
		}
		value, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		items = append(items, SetItem{
			Variable: variable.Text,
			Property: prop.Text,
			Value:    value,
			Pos:      variable.Pos,
		})
		if !p.matchSymbol(",") {
			return items, nil
		}
	}
}

func (p *parser) parseRemoveItems() ([]RemoveItem, error) {
	var items []RemoveItem
	for {
		variable, err := p.expectIdentifier("variable")
		if err != nil {
			return nil, err
		}
		if _, err := p.expectSymbol("."); err != nil {
			return nil, err
		}
		prop, err := p.expectIdentifier("property name")
		if err != nil {
			return nil, err
		}
		items = append(items, RemoveItem{
			Variable: variable.Text,
			Property: prop.Text,
			Pos:      variable.Pos,
		})
		if !p.matchSymbol(",") {
			return items, nil
		}
	}
}

func (p *parser) parseDeleteItems() ([]DeleteItem, error) {
	var items []DeleteItem
	for {
		variable, err := p.expectIdentifier("variable")
		if err != nil {
			return nil, err
		}
		items = append(items, DeleteItem{Variable: variable.Text, Pos: variable.Pos})
		if !p.matchSymbol(",") {
			return items, nil
		}
	}
}
