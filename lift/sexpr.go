// Package lift parses the external lifter's one-RTL-S-expression-per-line
// output into this engine's rtl.Stmt trees, and assembles the three
// aligned disassembly/lift files into Program instructions -- the Go
// counterpart of the original framework's free function `load()`
// (src/sba/framework.cpp), which read f_asm/f_rtl/f_raw line-by-line,
// handed each line to its RTL parser, and substituted a HALT stub for any
// instruction found in the no-return-call set.
package lift

import (
	"fmt"
	"strconv"
	"strings"
)

// sexpr is a minimal parenthesised-list reader: each node is either an
// atom (a contiguous run of non-space, non-paren characters) or a list of
// child nodes. It has no notion of RTL semantics; package lift's
// build.go interprets the resulting tree.
type sexpr struct {
	atom     string
	children []*sexpr
}

func (s *sexpr) isAtom() bool { return s.children == nil }

func parseSExpr(line string) (*sexpr, error) {
	toks := tokenize(line)
	if len(toks) == 0 {
		return nil, fmt.Errorf("lift: empty RTL line")
	}
	pos := 0
	node, err := parseOne(toks, &pos)
	if err != nil {
		return nil, err
	}
	return node, nil
}

func tokenize(line string) []string {
	var toks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}
	for _, r := range line {
		switch r {
		case '(', ')':
			flush()
			toks = append(toks, string(r))
		case ' ', '\t', '\n', '\r':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return toks
}

func parseOne(toks []string, pos *int) (*sexpr, error) {
	if *pos >= len(toks) {
		return nil, fmt.Errorf("lift: unexpected end of RTL expression")
	}
	t := toks[*pos]
	if t == "(" {
		*pos++
		n := &sexpr{children: []*sexpr{}}
		for *pos < len(toks) && toks[*pos] != ")" {
			child, err := parseOne(toks, pos)
			if err != nil {
				return nil, err
			}
			n.children = append(n.children, child)
		}
		if *pos >= len(toks) {
			return nil, fmt.Errorf("lift: unbalanced parentheses")
		}
		*pos++ // consume ")"
		return n, nil
	}
	if t == ")" {
		return nil, fmt.Errorf("lift: unexpected ')'")
	}
	*pos++
	return &sexpr{atom: t}, nil
}

func (s *sexpr) head() string {
	if s.isAtom() || len(s.children) == 0 {
		return ""
	}
	return s.children[0].atom
}

func (s *sexpr) arg(i int) *sexpr {
	if s.isAtom() || i+1 >= len(s.children) {
		return nil
	}
	return s.children[i+1]
}

func parseHexOrDec(s string) (int64, error) {
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	var v int64
	var err error
	if strings.HasPrefix(s, "0x") {
		v, err = strconv.ParseInt(strings.TrimPrefix(s, "0x"), 16, 64)
	} else {
		v, err = strconv.ParseInt(s, 10, 64)
	}
	if neg {
		v = -v
	}
	return v, err
}
