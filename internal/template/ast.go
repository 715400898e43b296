// Package template implements the compile-time template engine for model
// SQL. Templates contain literal SQL, {{ expr }} expressions, and
// {% if %} / {% for %} control blocks. Expressions are evaluated with
// Starlark over configuration-known values only, so rendering is a
// constant-folding pass: the output is a fully resolved SQL string plus
// an exact static dependency set captured from ref() and source() calls.
package template

// Position tracks a source location for error reporting.
type Position struct {
	File   string
	Line   int
	Column int
}

// Node is a parsed template fragment.
type Node interface {
	Pos() Position
	node()
}

type nodeBase struct {
	pos Position
}

func (n nodeBase) Pos() Position { return n.pos }
func (n nodeBase) node()         {}

// Text is literal SQL passed through unchanged.
type Text struct {
	nodeBase
	Value string
}

// Expr is a {{ expr }} expression to be evaluated and substituted.
type Expr struct {
	nodeBase
	Source string
}

// If is a complete {% if %}/{% elif %}/{% else %}/{% endif %} block.
type If struct {
	nodeBase
	Branches []Branch // if plus any elifs, in order
	Else     []Node   // nil when absent
}

// Branch is one condition/body pair of an If block.
type Branch struct {
	Condition string
	Body      []Node
	pos       Position
}

// For is a complete {% for x in expr %}/{% endfor %} block.
type For struct {
	nodeBase
	Var  string
	Iter string
	Body []Node
}

// Template is a fully parsed model template.
type Template struct {
	File  string
	Nodes []Node
}
