package qlast

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/roach88/pathql/internal/diag"
	"github.com/roach88/pathql/internal/qltypes"
)

// anchors are the special path roots.
var anchors = map[string]bool{
	"__source__":  true,
	"__subject__": true,
	"__new__":     true,
	"__old__":     true,
}

// ParsePath parses the textual path notation used in query documents:
//
//	User.friends.name        forward pointers
//	.name                    partial path
//	Post.<author             backward link
//	User.friends@since       link property
//	User.friends[is Admin]   type intersection
//	default::User.name       qualified root
//
// at is the position of the first character; step spans are offset from
// it.
func ParsePath(src string, at diag.Span) (*Path, error) {
	p := &pathParser{src: src, at: at}
	return p.parse()
}

type pathParser struct {
	src string
	pos int
	at  diag.Span
}

func (p *pathParser) span(start, end int) diag.Span {
	s := p.at
	if s.IsValid() {
		s.Column += len([]rune(p.src[:start]))
	}
	s.Start += start
	s.End = p.at.Start + end
	return s
}

func (p *pathParser) errorf(format string, args ...any) error {
	return diag.NewQueryError(diag.ErrCodeQuery, p.span(p.pos, p.pos), "invalid path %q: "+format,
		append([]any{p.src}, args...)...)
}

func (p *pathParser) parse() (*Path, error) {
	path := &Path{Base: Base{Loc: p.span(0, len(p.src))}}
	if p.src == "" {
		return nil, p.errorf("empty path")
	}

	if p.peek() == '.' {
		path.Partial = true
	} else {
		start := p.pos
		name, err := p.qualifiedIdent()
		if err != nil {
			return nil, err
		}
		sp := p.span(start, p.pos)
		if anchors[name] {
			path.Steps = append(path.Steps, &Anchor{Base: Base{Loc: sp}, Name: name})
		} else {
			ref := &ObjectRef{Base: Base{Loc: sp}, Name: name}
			if i := strings.LastIndex(name, "::"); i >= 0 {
				ref.Module, ref.Name = name[:i], name[i+2:]
			}
			path.Steps = append(path.Steps, ref)
		}
	}

	for p.pos < len(p.src) {
		start := p.pos
		switch p.peek() {
		case '.':
			p.pos++
			dir := qltypes.Outbound
			if p.peek() == '<' {
				p.pos++
				dir = qltypes.Inbound
			} else if p.peek() == '>' {
				p.pos++
			}
			name, err := p.ident()
			if err != nil {
				return nil, err
			}
			path.Steps = append(path.Steps, &Ptr{Base: Base{Loc: p.span(start, p.pos)}, Name: name, Direction: dir})
		case '@':
			p.pos++
			name, err := p.ident()
			if err != nil {
				return nil, err
			}
			path.Steps = append(path.Steps, &Ptr{Base: Base{Loc: p.span(start, p.pos)}, Name: name,
				Direction: qltypes.Outbound, LinkProp: true})
		case '[':
			end := strings.IndexByte(p.src[p.pos:], ']')
			if end < 0 {
				return nil, p.errorf("unterminated type intersection")
			}
			inner := strings.TrimSpace(p.src[p.pos+1 : p.pos+end])
			rest, ok := cutPrefixFold(inner, "is ")
			if !ok {
				return nil, p.errorf("expected [is Type]")
			}
			tn, err := ParseTypeName(strings.TrimSpace(rest))
			if err != nil {
				return nil, err
			}
			p.pos += end + 1
			tn.Span = p.span(start, p.pos)
			path.Steps = append(path.Steps, &TypeIntersection{Base: Base{Loc: tn.Span}, Type: tn})
		default:
			return nil, p.errorf("unexpected %q", p.peek())
		}
	}

	if len(path.Steps) == 0 {
		return nil, p.errorf("empty path")
	}
	return path, nil
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return s, false
}

func (p *pathParser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *pathParser) ident() (string, error) {
	start := p.pos
	for p.pos < len(p.src) {
		r := rune(p.src[p.pos])
		if r >= utf8.RuneSelf {
			rr, size := utf8.DecodeRuneInString(p.src[p.pos:])
			if !unicode.IsLetter(rr) && !unicode.IsDigit(rr) {
				break
			}
			p.pos += size
			continue
		}
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}
		p.pos++
	}
	if p.pos == start {
		return "", p.errorf("expected identifier")
	}
	return p.src[start:p.pos], nil
}

func (p *pathParser) qualifiedIdent() (string, error) {
	name, err := p.ident()
	if err != nil {
		return "", err
	}
	for strings.HasPrefix(p.src[p.pos:], "::") {
		p.pos += 2
		next, err := p.ident()
		if err != nil {
			return "", err
		}
		name += "::" + next
	}
	return name, nil
}

// String renders the path in the notation ParsePath accepts.
func (p *Path) String() string {
	var b strings.Builder
	for _, st := range p.Steps {
		switch st := st.(type) {
		case *ObjectRef:
			b.WriteString(st.QualifiedName())
		case *Anchor:
			b.WriteString(st.Name)
		case *Ptr:
			switch {
			case st.LinkProp:
				b.WriteString("@")
			case st.Direction == qltypes.Inbound:
				b.WriteString(".<")
			default:
				b.WriteString(".")
			}
			b.WriteString(st.Name)
		case *TypeIntersection:
			fmt.Fprintf(&b, "[is %s]", st.Type)
		}
	}
	return b.String()
}

// TypeName is a type expression: a named type, or a collection with
// subtypes. Named tuple elements carry ElementName.
type TypeName struct {
	Name        string
	Subtypes    []*TypeName
	ElementName string
	Span        diag.Span
}

func (t *TypeName) String() string {
	var b strings.Builder
	if t.ElementName != "" {
		b.WriteString(t.ElementName)
		b.WriteString(": ")
	}
	b.WriteString(t.Name)
	if len(t.Subtypes) > 0 {
		b.WriteString("<")
		for i, st := range t.Subtypes {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(st.String())
		}
		b.WriteString(">")
	}
	return b.String()
}

// IsCollection reports whether the type expression names a collection.
func (t *TypeName) IsCollection() bool {
	switch t.Name {
	case "array", "tuple", "range", "multirange":
		return true
	default:
		return false
	}
}

// ParseTypeName parses expressions like "int64", "default::User",
// "array<str>" and "tuple<name: str, n: int64>".
func ParseTypeName(src string) (*TypeName, error) {
	tp := &typeParser{src: src}
	tn, err := tp.parseType()
	if err != nil {
		return nil, err
	}
	tp.skipSpace()
	if tp.pos != len(tp.src) {
		return nil, tp.errorf("unexpected trailing input")
	}
	return tn, nil
}

type typeParser struct {
	src string
	pos int
}

func (tp *typeParser) errorf(format string, args ...any) error {
	return diag.NewQueryError(diag.ErrCodeQuery, diag.Span{}, "invalid type %q at offset %d: "+format,
		append([]any{tp.src, tp.pos}, args...)...)
}

func (tp *typeParser) skipSpace() {
	for tp.pos < len(tp.src) && tp.src[tp.pos] == ' ' {
		tp.pos++
	}
}

func (tp *typeParser) name() string {
	tp.skipSpace()
	start := tp.pos
	for tp.pos < len(tp.src) {
		c := tp.src[tp.pos]
		if c == '<' || c == '>' || c == ',' || c == ' ' {
			break
		}
		if c == ':' && !strings.HasPrefix(tp.src[tp.pos:], "::") {
			break
		}
		if c == ':' {
			tp.pos += 2
			continue
		}
		tp.pos++
	}
	return tp.src[start:tp.pos]
}

func (tp *typeParser) parseType() (*TypeName, error) {
	n := tp.name()
	if n == "" {
		return nil, tp.errorf("expected type name")
	}
	tn := &TypeName{Name: n}

	tp.skipSpace()
	if tp.pos < len(tp.src) && tp.src[tp.pos] == ':' {
		// Named tuple element: "name: type".
		tp.pos++
		inner, err := tp.parseType()
		if err != nil {
			return nil, err
		}
		inner.ElementName = n
		return inner, nil
	}

	if tp.pos < len(tp.src) && tp.src[tp.pos] == '<' {
		tp.pos++
		for {
			st, err := tp.parseType()
			if err != nil {
				return nil, err
			}
			tn.Subtypes = append(tn.Subtypes, st)
			tp.skipSpace()
			if tp.pos >= len(tp.src) {
				return nil, tp.errorf("unterminated subtype list")
			}
			if tp.src[tp.pos] == ',' {
				tp.pos++
				continue
			}
			if tp.src[tp.pos] == '>' {
				tp.pos++
				break
			}
			return nil, tp.errorf("unexpected %q", tp.src[tp.pos])
		}
	}
	return tn, nil
}
