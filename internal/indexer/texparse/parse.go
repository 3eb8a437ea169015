// Package texparse turns a TeX math expression into an operator tree and
// emits its leaf-to-root subpaths, the unit the math index stores.
package texparse

import (
	"fmt"
	"strings"
	"sync"
)

// maxDepth bounds brace nesting while parsing. maxHeight and maxPathNodes
// bound the emitted subpaths, since operator chains like a^a^a grow the tree
// without nesting and every leaf repeats its path to the root.
const (
	maxDepth     = 256
	maxHeight    = 256
	maxPathNodes = 1 << 18
)

// ParseError reports where parsing failed.
type ParseError struct {
	Pos int
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("tex parse error at byte %d: %s", e.Pos, e.Msg)
}

// Subpath is one leaf of the operator tree and the edge labels from that
// leaf up to the root, nearest first.
type Subpath struct {
	Leaf  string
	Nodes []string
}

// Path renders the subpath as "leaf/parent/.../root".
func (s Subpath) Path() string {
	if len(s.Nodes) == 0 {
		return s.Leaf
	}
	return s.Leaf + "/" + strings.Join(s.Nodes, "/")
}

// Subpaths is a pooled collection returned by Parse. The caller owns it and
// must call Release exactly once when done.
type Subpaths struct {
	paths []Subpath
}

var subpathPool = sync.Pool{
	New: func() any { return &Subpaths{paths: make([]Subpath, 0, 16)} },
}

func (s *Subpaths) Len() int        { return len(s.paths) }
func (s *Subpaths) All() []Subpath { return s.paths }

// Release returns the collection to the pool. s must not be used afterwards.
func (s *Subpaths) Release() {
	if s == nil {
		return
	}
	clear(s.paths)
	s.paths = s.paths[:0]
	subpathPool.Put(s)
}

// collect appends the subpath of every leaf under n. budget is the number of
// path labels that may still be emitted.
func (s *Subpaths) collect(n *node, roles []string, budget *int) error {
	if len(roles) > maxHeight {
		return &ParseError{Msg: fmt.Sprintf("expression tree taller than %d", maxHeight)}
	}
	if len(n.kids) == 0 {
		*budget -= len(roles) + 1
		if *budget < 0 {
			return &ParseError{Msg: fmt.Sprintf("expression has more than %d subpath nodes", maxPathNodes)}
		}
		nodes := make([]string, len(roles))
		for i := range roles {
			nodes[i] = roles[len(roles)-1-i]
		}
		s.paths = append(s.paths, Subpath{Leaf: n.label, Nodes: nodes})
		return nil
	}
	for _, e := range n.kids {
		if err := s.collect(e.n, append(roles, e.role), budget); err != nil {
			return err
		}
	}
	return nil
}

// Parse parses tex and returns its subpaths. In strict mode any stray or
// missing token is an error; otherwise parsing recovers and returns the
// subpaths of whatever could be read. An expression with no leaves is always
// an error.
func Parse(tex string, strict bool) (*Subpaths, error) {
	p := &parser{toks: tokenize(tex)}
	var roots []*node
	for {
		if n := p.parseRel(); n != nil {
			roots = append(roots, n)
		}
		t := p.peek()
		if t.kind == tEOF {
			break
		}
		p.fail(t.pos, "unexpected %q", t.val)
		p.next()
	}
	if p.tooDeep != nil {
		return nil, p.tooDeep
	}
	if strict && p.err != nil {
		return nil, p.err
	}
	root := nary("seq", roots...)
	if root == nil {
		return nil, &ParseError{Pos: 0, Msg: "empty expression"}
	}
	sp := subpathPool.Get().(*Subpaths)
	budget := maxPathNodes
	if err := sp.collect(root, make([]string, 0, 8), &budget); err != nil {
		sp.Release()
		return nil, err
	}
	return sp, nil
}

type node struct {
	label string
	kids  []edge
}

type edge struct {
	role string
	n    *node
}

func leaf(s string) *node { return &node{label: s} }

func wrap(op string, n *node) *node {
	if n == nil {
		return nil
	}
	return &node{label: op, kids: []edge{{op, n}}}
}

// nary joins kids under op, flattening kids that are themselves op nodes.
// A single kid is returned unchanged.
func nary(op string, kids ...*node) *node {
	var edges []edge
	for _, k := range kids {
		if k == nil {
			continue
		}
		if k.label == op && len(k.kids) > 0 {
			edges = append(edges, k.kids...)
			continue
		}
		edges = append(edges, edge{op, k})
	}
	switch len(edges) {
	case 0:
		return nil
	case 1:
		return edges[0].n
	}
	return &node{label: op, kids: edges}
}

func pair(op, roleA string, a *node, roleB string, b *node) *node {
	n := &node{label: op}
	if a != nil {
		n.kids = append(n.kids, edge{roleA, a})
	}
	if b != nil {
		n.kids = append(n.kids, edge{roleB, b})
	}
	if len(n.kids) == 0 {
		return nil
	}
	return n
}

var relations = map[string]string{
	"=": "eq", "<": "lt", ">": "gt",
	`\leq`: "le", `\le`: "le", `\geq`: "ge", `\ge`: "ge",
	`\neq`: "ne", `\ne`: "ne", `\approx`: "approx", `\equiv`: "equiv",
	`\sim`: "sim", `\to`: "to", `\in`: "in", `\subset`: "subset",
}

var fontCommands = map[string]bool{
	`\mathrm`: true, `\mathbf`: true, `\mathit`: true, `\mathbb`: true,
	`\mathcal`: true, `\text`: true, `\operatorname`: true, `\boldsymbol`: true,
}

type parser struct {
	toks    []token
	i       int
	depth   int
	err     error
	tooDeep error
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tEOF {
		p.i++
	}
	return t
}

func (p *parser) fail(pos int, format string, args ...any) {
	if p.err == nil {
		p.err = &ParseError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
	}
}

func (p *parser) is(vals ...string) bool {
	t := p.peek()
	if t.kind != tSymbol && t.kind != tCommand {
		return false
	}
	for _, v := range vals {
		if t.val == v {
			return true
		}
	}
	return false
}

func (p *parser) parseRel() *node {
	left := p.parseAdd()
	for {
		t := p.peek()
		op, ok := relations[t.val]
		if !ok || (t.kind != tSymbol && t.kind != tCommand) {
			return left
		}
		p.next()
		right := p.parseAdd()
		if left == nil || right == nil {
			p.fail(t.pos, "relation %q is missing an operand", t.val)
		}
		left = nary(op, left, right)
	}
}

func (p *parser) parseAdd() *node {
	var terms []*node
	if p.is("-") {
		p.next()
		terms = append(terms, wrap("neg", p.parseMul()))
	} else {
		if p.is("+") {
			p.next()
		}
		terms = append(terms, p.parseMul())
	}
	for {
		t := p.peek()
		var term *node
		switch {
		case p.is("+"):
			p.next()
			term = p.parseMul()
		case p.is("-"):
			p.next()
			term = wrap("neg", p.parseMul())
		case p.is(`\pm`, `\mp`):
			p.next()
			term = wrap("pm", p.parseMul())
		default:
			return nary("add", terms...)
		}
		if term == nil {
			p.fail(t.pos, "operator %q is missing an operand", t.val)
		}
		terms = append(terms, term)
	}
}

func (p *parser) parseMul() *node {
	var factors []*node
	if f := p.parsePostfix(); f != nil {
		factors = append(factors, f)
	}
	for {
		t := p.peek()
		switch {
		case p.is("*", `\cdot`, `\times`):
			p.next()
			f := p.parsePostfix()
			if f == nil {
				p.fail(t.pos, "operator %q is missing an operand", t.val)
			}
			factors = append(factors, f)
		case p.is("/", `\div`):
			p.next()
			den := p.parsePostfix()
			if den == nil {
				p.fail(t.pos, "operator %q is missing an operand", t.val)
			}
			factors = []*node{pair("frac", "frac.num", nary("times", factors...), "frac.den", den)}
		case p.startsAtom():
			factors = append(factors, p.parsePostfix())
		default:
			return nary("times", factors...)
		}
	}
}

func (p *parser) parsePostfix() *node {
	base := p.parseAtom()
	for {
		t := p.peek()
		switch {
		case p.is("^"), p.is("_"):
			p.next()
			kind := "sup"
			if t.val == "_" {
				kind = "sub"
			}
			script := p.parseArg()
			if base == nil || script == nil {
				p.fail(t.pos, "%q needs a base and a script", t.val)
			}
			base = pair(kind, kind+".base", base, kind+".script", script)
		case p.is("'"):
			p.next()
			base = wrap("prime", base)
		case p.is("!"):
			p.next()
			base = wrap("fact", base)
		default:
			return base
		}
	}
}

func (p *parser) startsAtom() bool {
	t := p.peek()
	switch t.kind {
	case tLetter, tNumber:
		return true
	case tCommand:
		_, rel := relations[t.val]
		return !rel && !p.is(`\pm`, `\mp`, `\cdot`, `\times`, `\div`)
	case tSymbol:
		return p.is("{", "(", "[", "|")
	}
	return false
}

// parseArg reads a single-token or braced argument, as after ^ or \frac.
// A multi-digit number contributes only its first digit.
func (p *parser) parseArg() *node {
	t := p.peek()
	if t.kind == tNumber && len(t.val) > 1 {
		p.toks[p.i].val = t.val[1:]
		p.toks[p.i].pos++
		return leaf(t.val[:1])
	}
	if !p.startsAtom() {
		p.fail(t.pos, "missing argument")
		return nil
	}
	return p.parseAtom()
}

func (p *parser) parseAtom() *node {
	p.depth++
	defer func() { p.depth-- }()
	t := p.peek()
	if p.depth > maxDepth {
		if p.tooDeep == nil {
			p.tooDeep = &ParseError{Pos: t.pos, Msg: "expression nested too deeply"}
		}
		p.i = len(p.toks) - 1
		return nil
	}

	switch t.kind {
	case tLetter, tNumber:
		p.next()
		return leaf(t.val)
	case tCommand:
		p.next()
		switch {
		case t.val == `\frac` || t.val == `\dfrac` || t.val == `\tfrac` || t.val == `\cfrac`:
			num := p.parseArg()
			den := p.parseArg()
			return pair("frac", "frac.num", num, "frac.den", den)
		case t.val == `\sqrt`:
			var index *node
			if p.is("[") {
				p.next()
				index = p.parseGroup("]")
			}
			return pair("sqrt", "sqrt", p.parseArg(), "sqrt.index", index)
		case fontCommands[t.val]:
			return p.parseArg()
		}
		return leaf(t.val)
	case tSymbol:
		switch t.val {
		case "{":
			p.next()
			return p.parseGroup("}")
		case "(":
			p.next()
			return p.parseGroup(")")
		case "[":
			p.next()
			return p.parseGroup("]")
		case "|":
			p.next()
			return leaf("|")
		}
	}
	return nil
}

// parseGroup reads comma separated expressions up to and including close.
func (p *parser) parseGroup(close string) *node {
	var items []*node
	for {
		if n := p.parseRel(); n != nil {
			items = append(items, n)
		}
		t := p.peek()
		switch {
		case p.is(close):
			p.next()
			return nary("seq", items...)
		case p.is(","):
			p.next()
		case t.kind == tEOF:
			p.fail(t.pos, "missing %q", close)
			return nary("seq", items...)
		default:
			p.fail(t.pos, "unexpected %q", t.val)
			p.next()
		}
	}
}
