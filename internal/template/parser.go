package template

import (
	"regexp"
	"strings"
)

// Parse lexes and parses a template into its AST.
func Parse(input, file string) (*Template, error) {
	tokens, err := newLexer(input, file).tokenize()
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens, file: file}
	nodes, err := p.parseNodes(nil)
	if err != nil {
		return nil, err
	}
	if !p.atEOF() {
		tok := p.peek()
		return nil, errAt(tok.pos, "%q without an open block", "{% "+firstWord(tok.value)+" %}")
	}
	return &Template{File: file, Nodes: nodes}, nil
}

type parser struct {
	tokens []token
	file   string
	idx    int
}

var forPattern = regexp.MustCompile(`^for\s+(\w+)\s+in\s+(.+?):?$`)

// parseNodes parses until EOF or until a statement whose keyword is in
// stop. The stopping token is left unconsumed.
func (p *parser) parseNodes(stop []string) ([]Node, error) {
	var nodes []Node
	for {
		tok := p.peek()
		switch tok.typ {
		case tokenEOF:
			return nodes, nil

		case tokenText:
			p.idx++
			nodes = append(nodes, &Text{nodeBase: nodeBase{pos: tok.pos}, Value: tok.value})

		case tokenExpr:
			p.idx++
			if tok.value == "" {
				return nil, errAt(tok.pos, "empty expression")
			}
			nodes = append(nodes, &Expr{nodeBase: nodeBase{pos: tok.pos}, Source: tok.value})

		case tokenStmt:
			keyword := firstWord(tok.value)
			for _, s := range stop {
				if keyword == s {
					return nodes, nil
				}
			}
			switch keyword {
			case "if":
				p.idx++
				block, err := p.parseIf(tok)
				if err != nil {
					return nil, err
				}
				nodes = append(nodes, block)
			case "for":
				p.idx++
				block, err := p.parseFor(tok)
				if err != nil {
					return nil, err
				}
				nodes = append(nodes, block)
			case "elif", "else", "endif", "endfor":
				return nil, errAt(tok.pos, "%q without matching %q", keyword, openerFor(keyword))
			default:
				return nil, errAt(tok.pos, "unknown statement %q", keyword)
			}
		}
	}
}

// parseIf parses the body and any elif/else branches of an if block whose
// opening statement has already been consumed.
func (p *parser) parseIf(open token) (*If, error) {
	cond := stmtArg(open.value, "if")
	if cond == "" {
		return nil, errAt(open.pos, "'if' requires a condition")
	}

	block := &If{nodeBase: nodeBase{pos: open.pos}}

	body, err := p.parseNodes([]string{"elif", "else", "endif"})
	if err != nil {
		return nil, err
	}
	block.Branches = append(block.Branches, Branch{Condition: cond, Body: body, pos: open.pos})

	for {
		tok := p.peek()
		if tok.typ != tokenStmt {
			return nil, errAt(open.pos, "unclosed 'if' block (missing 'endif')")
		}
		switch firstWord(tok.value) {
		case "elif":
			p.idx++
			cond := stmtArg(tok.value, "elif")
			if cond == "" {
				return nil, errAt(tok.pos, "'elif' requires a condition")
			}
			body, err := p.parseNodes([]string{"elif", "else", "endif"})
			if err != nil {
				return nil, err
			}
			block.Branches = append(block.Branches, Branch{Condition: cond, Body: body, pos: tok.pos})
		case "else":
			p.idx++
			body, err := p.parseNodes([]string{"endif"})
			if err != nil {
				return nil, err
			}
			block.Else = body
			if tok := p.peek(); tok.typ != tokenStmt || firstWord(tok.value) != "endif" {
				return nil, errAt(open.pos, "unclosed 'if' block (missing 'endif')")
			}
			p.idx++
			return block, nil
		case "endif":
			p.idx++
			return block, nil
		default:
			return nil, errAt(open.pos, "unclosed 'if' block (missing 'endif')")
		}
	}
}

// parseFor parses a for block whose opening statement has already been
// consumed.
func (p *parser) parseFor(open token) (*For, error) {
	m := forPattern.FindStringSubmatch(open.value)
	if m == nil {
		return nil, errAt(open.pos, "malformed 'for': want 'for <var> in <expr>'")
	}

	body, err := p.parseNodes([]string{"endfor"})
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.typ != tokenStmt || firstWord(tok.value) != "endfor" {
		return nil, errAt(open.pos, "unclosed 'for' block (missing 'endfor')")
	}
	p.idx++

	return &For{
		nodeBase: nodeBase{pos: open.pos},
		Var:      m[1],
		Iter:     strings.TrimSpace(m[2]),
		Body:     body,
	}, nil
}

func (p *parser) peek() token {
	if p.idx >= len(p.tokens) {
		return token{typ: tokenEOF}
	}
	return p.tokens[p.idx]
}

func (p *parser) atEOF() bool {
	return p.peek().typ == tokenEOF
}

// firstWord returns the leading keyword of a statement.
func firstWord(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, " \t:"); i >= 0 {
		return s[:i]
	}
	return s
}

// stmtArg strips the keyword and an optional trailing colon.
func stmtArg(s, keyword string) string {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), keyword))
	return strings.TrimSpace(strings.TrimSuffix(s, ":"))
}

func openerFor(keyword string) string {
	switch keyword {
	case "elif", "else", "endif":
		return "if"
	default:
		return "for"
	}
}
