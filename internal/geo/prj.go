package geo

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// wktNode is one KEYWORD[...] element of a WKT coordinate system
type wktNode struct {
	keyword string
	// args holds strings, numbers and nested nodes in file order
	args []any
}

// name returns the leading quoted name of the node
func (n *wktNode) name() string {
	if n == nil || len(n.args) == 0 {
		return ""
	}
	s, _ := n.args[0].(string)
	return s
}

func (n *wktNode) number(i int) (float64, bool) {
	if n == nil || i >= len(n.args) {
		return 0, false
	}
	v, ok := n.args[i].(float64)
	return v, ok
}

func (n *wktNode) numbers() []float64 {
	var out []float64
	for _, a := range n.args {
		if v, ok := a.(float64); ok {
			out = append(out, v)
		}
	}
	return out
}

// child returns the first direct child with the keyword
func (n *wktNode) child(keyword string) *wktNode {
	if n == nil {
		return nil
	}
	for _, a := range n.args {
		if c, ok := a.(*wktNode); ok && strings.EqualFold(c.keyword, keyword) {
			return c
		}
	}
	return nil
}

// authority returns the EPSG code declared directly on the node, or 0
func (n *wktNode) authority() int {
	a := n.child("AUTHORITY")
	if a == nil || !strings.EqualFold(a.name(), "EPSG") || len(a.args) < 2 {
		return 0
	}
	switch v := a.args[1].(type) {
	case string:
		code, _ := strconv.Atoi(strings.TrimSpace(v))
		return code
	case float64:
		return int(v)
	}
	return 0
}

// params returns the PARAMETER values keyed by lower case name
func (n *wktNode) params() map[string]float64 {
	out := make(map[string]float64)
	for _, a := range n.args {
		c, ok := a.(*wktNode)
		if !ok || !strings.EqualFold(c.keyword, "PARAMETER") {
			continue
		}
		if v, ok := c.number(1); ok {
			out[strings.ToLower(c.name())] = v
		}
	}
	return out
}

type wktParser struct {
	src string
	pos int
}

// parseWKT parses WKT1 as written to .prj files by GDAL and ESRI tools
func parseWKT(src string) (*wktNode, error) {
	p := &wktParser{src: src}
	n, err := p.node()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("unexpected %q at offset %d", p.src[p.pos:], p.pos)
	}
	return n, nil
}

func (p *wktParser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *wktParser) word() string {
	start := p.pos
	for p.pos < len(p.src) {
		c := rune(p.src[p.pos])
		if !unicode.IsLetter(c) && !unicode.IsDigit(c) && c != '_' {
			break
		}
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *wktParser) node() (*wktNode, error) {
	p.skipSpace()
	keyword := p.word()
	if keyword == "" {
		return nil, fmt.Errorf("expected keyword at offset %d", p.pos)
	}
	p.skipSpace()
	if p.pos >= len(p.src) || (p.src[p.pos] != '[' && p.src[p.pos] != '(') {
		return nil, fmt.Errorf("expected [ after %s", keyword)
	}
	closer := byte(']')
	if p.src[p.pos] == '(' {
		closer = ')'
	}
	p.pos++

	n := &wktNode{keyword: keyword}
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return nil, fmt.Errorf("unterminated %s", keyword)
		}
		if p.src[p.pos] == closer {
			p.pos++
			return n, nil
		}
		arg, err := p.arg()
		if err != nil {
			return nil, err
		}
		n.args = append(n.args, arg)
		p.skipSpace()
		if p.pos < len(p.src) && p.src[p.pos] == ',' {
			p.pos++
		}
	}
}

func (p *wktParser) arg() (any, error) {
	c := p.src[p.pos]
	switch {
	case c == '"':
		return p.quoted()
	case c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9'):
		start := p.pos
		for p.pos < len(p.src) && strings.IndexByte("+-.0123456789eE", p.src[p.pos]) >= 0 {
			p.pos++
		}
		v, err := strconv.ParseFloat(p.src[start:p.pos], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", p.src[start:p.pos])
		}
		return v, nil
	default:
		save := p.pos
		w := p.word()
		if w == "" {
			return nil, fmt.Errorf("unexpected %q at offset %d", c, p.pos)
		}
		p.skipSpace()
		if p.pos < len(p.src) && (p.src[p.pos] == '[' || p.src[p.pos] == '(') {
			p.pos = save
			return p.node()
		}
		// enumerations such as AXIS["X",EAST]
		return w, nil
	}
}

func (p *wktParser) quoted() (string, error) {
	p.pos++
	var b strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		p.pos++
		if c != '"' {
			b.WriteByte(c)
			continue
		}
		if p.pos < len(p.src) && p.src[p.pos] == '"' {
			b.WriteByte('"')
			p.pos++
			continue
		}
		return b.String(), nil
	}
	return "", fmt.Errorf("unterminated string")
}
