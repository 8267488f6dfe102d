package qlast

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/pathql/internal/diag"
	"github.com/roach88/pathql/internal/qltypes"
)

// Query documents are YAML. Each expression is either a bare scalar (a
// string is a path, numbers and booleans are literals, null is {}), a
// sequence (a set literal), or a mapping with exactly one key naming the
// expression kind:
//
//	select:
//	  result:
//	    shape:
//	      expr: User
//	      elements: [name, {name: friends, elements: [name]}]
//	  filter: {binop: {op: "=", left: .name, right: {str: Alice}}}
//
// Kinds: path, str, int, float, bool, set, array, tuple, namedtuple,
// cast, call, binop, unop, if, shape, detached, select, for, insert,
// update, delete.

var exprKinds = []string{
	"path", "str", "int", "float", "bool", "set", "array", "tuple", "namedtuple",
	"cast", "call", "binop", "unop", "if", "shape", "detached",
	"select", "for", "insert", "update", "delete",
}

// Decoder turns YAML nodes into AST nodes. File is recorded in spans.
type Decoder struct {
	File string
}

// DecodeStatement decodes a single-document query. A bare expression is
// wrapped in an implicit SELECT.
func DecodeStatement(data []byte) (Statement, error) {
	return (&Decoder{}).Statement(data)
}

// ParseExpr decodes a single expression from YAML (or JSON) text.
func ParseExpr(src string) (Expr, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		return nil, fmt.Errorf("parsing expression: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, errors.New("parsing expression: empty document")
	}
	return (&Decoder{}).Expr(doc.Content[0])
}

// Statement decodes one document.
func (d *Decoder) Statement(data []byte) (Statement, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing query document: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, errors.New("parsing query document: empty document")
	}
	return d.StatementNode(doc.Content[0])
}

// Statements decodes every document of a multi-document stream.
func (d *Decoder) Statements(r io.Reader) ([]Statement, error) {
	dec := yaml.NewDecoder(r)
	var out []Statement
	for {
		var doc yaml.Node
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("parsing query document %d: %w", len(out)+1, err)
		}
		if len(doc.Content) == 0 {
			continue
		}
		stmt, err := d.StatementNode(doc.Content[0])
		if err != nil {
			return nil, err
		}
		out = append(out, stmt)
	}
}

// StatementNode decodes a statement from an already parsed node.
func (d *Decoder) StatementNode(n *yaml.Node) (Statement, error) {
	e, err := d.Expr(n)
	if err != nil {
		return nil, err
	}
	if s, ok := e.(Statement); ok {
		return s, nil
	}
	return &SelectQuery{Base: Base{Loc: e.Pos()}, Result: e, Implicit: true}, nil
}

func (d *Decoder) span(n *yaml.Node) diag.Span {
	return diag.Span{File: d.File, Line: n.Line, Column: n.Column}
}

func (d *Decoder) errorf(n *yaml.Node, format string, args ...any) *diag.Error {
	return diag.NewQueryError(diag.ErrCodeQuery, d.span(n), format, args...)
}

// Expr decodes an expression node.
func (d *Decoder) Expr(n *yaml.Node) (Expr, error) {
	if n.Kind == yaml.DocumentNode && len(n.Content) == 1 {
		n = n.Content[0]
	}
	switch n.Kind {
	case yaml.ScalarNode:
		return d.scalar(n)
	case yaml.SequenceNode:
		els, err := d.exprList(n)
		if err != nil {
			return nil, err
		}
		return &Set{Base: Base{Loc: d.span(n)}, Elements: els}, nil
	case yaml.MappingNode:
		return d.mapping(n)
	case yaml.AliasNode:
		return d.Expr(n.Alias)
	default:
		return nil, d.errorf(n, "unexpected YAML node")
	}
}

func (d *Decoder) scalar(n *yaml.Node) (Expr, error) {
	b := Base{Loc: d.span(n)}
	switch n.ShortTag() {
	case "!!int":
		return &IntegerConstant{Base: b, Value: n.Value}, nil
	case "!!float":
		return &FloatConstant{Base: b, Value: n.Value}, nil
	case "!!bool":
		var v bool
		if err := n.Decode(&v); err != nil {
			return nil, d.errorf(n, "invalid boolean %q", n.Value)
		}
		return &BooleanConstant{Base: b, Value: v}, nil
	case "!!null":
		return &Set{Base: b}, nil
	default:
		return ParsePath(n.Value, d.span(n))
	}
}

func (d *Decoder) exprList(n *yaml.Node) ([]Expr, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, d.errorf(n, "expected a list of expressions")
	}
	out := make([]Expr, 0, len(n.Content))
	for _, c := range n.Content {
		e, err := d.Expr(c)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (d *Decoder) mapping(n *yaml.Node) (Expr, error) {
	if len(n.Content) != 2 {
		return nil, d.errorf(n, "expression mapping must have exactly one key, got %d", len(n.Content)/2)
	}
	key, val := n.Content[0], n.Content[1]
	b := Base{Loc: d.span(key)}

	switch key.Value {
	case "path":
		return ParsePath(val.Value, d.span(val))
	case "str":
		return &StringConstant{Base: b, Value: val.Value}, nil
	case "int":
		return &IntegerConstant{Base: b, Value: val.Value}, nil
	case "float":
		return &FloatConstant{Base: b, Value: val.Value}, nil
	case "bool":
		var v bool
		if err := val.Decode(&v); err != nil {
			return nil, d.errorf(val, "invalid boolean %q", val.Value)
		}
		return &BooleanConstant{Base: b, Value: v}, nil
	case "set":
		els, err := d.exprList(val)
		if err != nil {
			return nil, err
		}
		return &Set{Base: b, Elements: els}, nil
	case "array":
		els, err := d.exprList(val)
		if err != nil {
			return nil, err
		}
		return &Array{Base: b, Elements: els}, nil
	case "tuple":
		els, err := d.exprList(val)
		if err != nil {
			return nil, err
		}
		return &Tuple{Base: b, Elements: els}, nil
	case "namedtuple":
		return d.namedTuple(b, val)
	case "cast":
		return d.cast(b, val)
	case "call":
		return d.call(b, val)
	case "binop":
		return d.binop(b, val)
	case "unop":
		return d.unop(b, val)
	case "if":
		return d.ifElse(b, val)
	case "shape":
		return d.shape(b, val)
	case "detached":
		e, err := d.Expr(val)
		if err != nil {
			return nil, err
		}
		return &DetachedExpr{Base: b, Expr: e}, nil
	case "select":
		return d.selectQuery(b, val)
	case "for":
		return d.forQuery(b, val)
	case "insert":
		return d.insertQuery(b, val)
	case "update":
		return d.updateQuery(b, val)
	case "delete":
		return d.deleteQuery(b, val)
	}

	err := d.errorf(key, "unknown expression kind %q", key.Value)
	if hint := diag.DidYouMean(key.Value, exprKinds); hint != "" {
		err.WithHint(hint)
	}
	return nil, err
}

// fields reads a mapping node into key -> value, rejecting keys outside
// allowed.
func (d *Decoder) fields(n *yaml.Node, allowed ...string) (map[string]*yaml.Node, error) {
	if n.Kind != yaml.MappingNode {
		return nil, d.errorf(n, "expected a mapping with keys %s", strings.Join(allowed, ", "))
	}
	out := make(map[string]*yaml.Node, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k := n.Content[i]
		ok := false
		for _, a := range allowed {
			if a == k.Value {
				ok = true
				break
			}
		}
		if !ok {
			err := d.errorf(k, "unknown field %q", k.Value)
			if hint := diag.DidYouMean(k.Value, allowed); hint != "" {
				err.WithHint(hint)
			}
			return nil, err
		}
		out[k.Value] = n.Content[i+1]
	}
	return out, nil
}

func (d *Decoder) required(f map[string]*yaml.Node, n *yaml.Node, key string) (Expr, error) {
	v, ok := f[key]
	if !ok {
		return nil, d.errorf(n, "missing required field %q", key)
	}
	return d.Expr(v)
}

func (d *Decoder) optional(f map[string]*yaml.Node, key string) (Expr, error) {
	v, ok := f[key]
	if !ok {
		return nil, nil
	}
	return d.Expr(v)
}

func (d *Decoder) namedTuple(b Base, n *yaml.Node) (Expr, error) {
	if n.Kind != yaml.MappingNode {
		return nil, d.errorf(n, "namedtuple expects a mapping of element name to expression")
	}
	nt := &NamedTuple{Base: b}
	for i := 0; i+1 < len(n.Content); i += 2 {
		v, err := d.Expr(n.Content[i+1])
		if err != nil {
			return nil, err
		}
		nt.Elements = append(nt.Elements, TupleElement{Name: n.Content[i].Value, Val: v})
	}
	return nt, nil
}

func (d *Decoder) cast(b Base, n *yaml.Node) (Expr, error) {
	f, err := d.fields(n, "type", "expr", "card")
	if err != nil {
		return nil, err
	}
	tnode, ok := f["type"]
	if !ok {
		return nil, d.errorf(n, "missing required field %q", "type")
	}
	tn, err := ParseTypeName(tnode.Value)
	if err != nil {
		return nil, err
	}
	tn.Span = d.span(tnode)
	e, err := d.required(f, n, "expr")
	if err != nil {
		return nil, err
	}
	tc := &TypeCast{Base: b, Type: tn, Expr: e}
	if c, ok := f["card"]; ok {
		switch strings.ToLower(c.Value) {
		case "required":
			tc.Cardinality = qltypes.CardModRequired
		case "optional":
			tc.Cardinality = qltypes.CardModOptional
		default:
			return nil, d.errorf(c, "invalid cast cardinality %q: must be required or optional", c.Value)
		}
	}
	return tc, nil
}

func (d *Decoder) call(b Base, n *yaml.Node) (Expr, error) {
	f, err := d.fields(n, "func", "args", "kwargs")
	if err != nil {
		return nil, err
	}
	fn, ok := f["func"]
	if !ok {
		return nil, d.errorf(n, "missing required field %q", "func")
	}
	fc := &FunctionCall{Base: b, Func: fn.Value}
	if a, ok := f["args"]; ok {
		if fc.Args, err = d.exprList(a); err != nil {
			return nil, err
		}
	}
	if kw, ok := f["kwargs"]; ok {
		if kw.Kind != yaml.MappingNode {
			return nil, d.errorf(kw, "kwargs expects a mapping")
		}
		for i := 0; i+1 < len(kw.Content); i += 2 {
			v, err := d.Expr(kw.Content[i+1])
			if err != nil {
				return nil, err
			}
			fc.Kwargs = append(fc.Kwargs, KeywordArg{Name: kw.Content[i].Value, Val: v})
		}
	}
	return fc, nil
}

func (d *Decoder) binop(b Base, n *yaml.Node) (Expr, error) {
	f, err := d.fields(n, "op", "left", "right")
	if err != nil {
		return nil, err
	}
	op, ok := f["op"]
	if !ok {
		return nil, d.errorf(n, "missing required field %q", "op")
	}
	l, err := d.required(f, n, "left")
	if err != nil {
		return nil, err
	}
	r, err := d.required(f, n, "right")
	if err != nil {
		return nil, err
	}
	return &BinOp{Base: b, Op: strings.ToUpper(op.Value), Left: l, Right: r}, nil
}

func (d *Decoder) unop(b Base, n *yaml.Node) (Expr, error) {
	f, err := d.fields(n, "op", "operand")
	if err != nil {
		return nil, err
	}
	op, ok := f["op"]
	if !ok {
		return nil, d.errorf(n, "missing required field %q", "op")
	}
	e, err := d.required(f, n, "operand")
	if err != nil {
		return nil, err
	}
	return &UnaryOp{Base: b, Op: strings.ToUpper(op.Value), Operand: e}, nil
}

func (d *Decoder) ifElse(b Base, n *yaml.Node) (Expr, error) {
	f, err := d.fields(n, "cond", "then", "else")
	if err != nil {
		return nil, err
	}
	ie := &IfElse{Base: b}
	if ie.Condition, err = d.required(f, n, "cond"); err != nil {
		return nil, err
	}
	if ie.IfExpr, err = d.required(f, n, "then"); err != nil {
		return nil, err
	}
	if ie.ElseExpr, err = d.required(f, n, "else"); err != nil {
		return nil, err
	}
	return ie, nil
}

func (d *Decoder) shape(b Base, n *yaml.Node) (Expr, error) {
	f, err := d.fields(n, "expr", "elements")
	if err != nil {
		return nil, err
	}
	e, err := d.required(f, n, "expr")
	if err != nil {
		return nil, err
	}
	sh := &Shape{Base: b, Expr: e}
	if els, ok := f["elements"]; ok {
		if sh.Elements, err = d.shapeElements(els); err != nil {
			return nil, err
		}
	}
	return sh, nil
}

func (d *Decoder) shapeElements(n *yaml.Node) ([]*ShapeElement, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, d.errorf(n, "expected a list of shape elements")
	}
	out := make([]*ShapeElement, 0, len(n.Content))
	for _, c := range n.Content {
		el, err := d.shapeElement(c)
		if err != nil {
			return nil, err
		}
		out = append(out, el)
	}
	return out, nil
}

func (d *Decoder) shapeElement(n *yaml.Node) (*ShapeElement, error) {
	el := &ShapeElement{Base: Base{Loc: d.span(n)}}
	if n.Kind == yaml.ScalarNode {
		el.Name = n.Value
		if strings.HasPrefix(el.Name, "@") {
			el.Name, el.LinkProp = el.Name[1:], true
		}
		return el, nil
	}

	f, err := d.fields(n, "name", "expr", "elements", "card", "required")
	if err != nil {
		return nil, err
	}
	name, ok := f["name"]
	if !ok {
		return nil, d.errorf(n, "shape element is missing %q", "name")
	}
	el.Name = name.Value
	if strings.HasPrefix(el.Name, "@") {
		el.Name, el.LinkProp = el.Name[1:], true
	}
	if el.Compexpr, err = d.optional(f, "expr"); err != nil {
		return nil, err
	}
	if els, ok := f["elements"]; ok {
		if el.Elements, err = d.shapeElements(els); err != nil {
			return nil, err
		}
	}
	if c, ok := f["card"]; ok {
		card, err := qltypes.ParseSchemaCardinality(c.Value)
		if err != nil {
			return nil, d.errorf(c, "%v", err)
		}
		el.Cardinality = card
	}
	if r, ok := f["required"]; ok {
		if err := r.Decode(&el.Required); err != nil {
			return nil, d.errorf(r, "invalid boolean %q", r.Value)
		}
	}
	return el, nil
}

func (d *Decoder) aliases(f map[string]*yaml.Node) ([]*Alias, error) {
	n, ok := f["with"]
	if !ok {
		return nil, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, d.errorf(n, "with expects a mapping of alias name to expression")
	}
	var out []*Alias
	for i := 0; i+1 < len(n.Content); i += 2 {
		e, err := d.Expr(n.Content[i+1])
		if err != nil {
			return nil, err
		}
		out = append(out, &Alias{Name: n.Content[i].Value, Expr: e})
	}
	return out, nil
}

func (d *Decoder) selectQuery(b Base, n *yaml.Node) (Expr, error) {
	if n.Kind != yaml.MappingNode {
		e, err := d.Expr(n)
		if err != nil {
			return nil, err
		}
		return &SelectQuery{Base: b, Result: e}, nil
	}
	f, err := d.fields(n, "with", "result", "as", "filter", "order", "offset", "limit")
	if err != nil {
		return nil, err
	}
	q := &SelectQuery{Base: b}
	if q.Aliases, err = d.aliases(f); err != nil {
		return nil, err
	}
	if q.Result, err = d.required(f, n, "result"); err != nil {
		return nil, err
	}
	if as, ok := f["as"]; ok {
		q.ResultAlias = as.Value
	}
	if q.Where, err = d.optional(f, "filter"); err != nil {
		return nil, err
	}
	if q.Offset, err = d.optional(f, "offset"); err != nil {
		return nil, err
	}
	if q.Limit, err = d.optional(f, "limit"); err != nil {
		return nil, err
	}
	if ob, ok := f["order"]; ok {
		if ob.Kind != yaml.SequenceNode {
			return nil, d.errorf(ob, "order expects a list")
		}
		for _, c := range ob.Content {
			sf, err := d.fields(c, "expr", "desc")
			if err != nil {
				return nil, err
			}
			e, err := d.required(sf, c, "expr")
			if err != nil {
				return nil, err
			}
			se := &SortExpr{Path: e}
			if desc, ok := sf["desc"]; ok {
				if err := desc.Decode(&se.Descending); err != nil {
					return nil, d.errorf(desc, "invalid boolean %q", desc.Value)
				}
			}
			q.OrderBy = append(q.OrderBy, se)
		}
	}
	return q, nil
}

func (d *Decoder) forQuery(b Base, n *yaml.Node) (Expr, error) {
	f, err := d.fields(n, "with", "var", "in", "union", "optional")
	if err != nil {
		return nil, err
	}
	q := &ForQuery{Base: b}
	if q.Aliases, err = d.aliases(f); err != nil {
		return nil, err
	}
	v, ok := f["var"]
	if !ok {
		return nil, d.errorf(n, "missing required field %q", "var")
	}
	q.IteratorAlias = v.Value
	if q.Iterator, err = d.required(f, n, "in"); err != nil {
		return nil, err
	}
	if q.Result, err = d.required(f, n, "union"); err != nil {
		return nil, err
	}
	if o, ok := f["optional"]; ok {
		if err := o.Decode(&q.Optional); err != nil {
			return nil, d.errorf(o, "invalid boolean %q", o.Value)
		}
	}
	return q, nil
}

func (d *Decoder) insertQuery(b Base, n *yaml.Node) (Expr, error) {
	f, err := d.fields(n, "with", "type", "shape", "unless_conflict")
	if err != nil {
		return nil, err
	}
	q := &InsertQuery{Base: b}
	if q.Aliases, err = d.aliases(f); err != nil {
		return nil, err
	}
	t, ok := f["type"]
	if !ok {
		return nil, d.errorf(n, "missing required field %q", "type")
	}
	ref := &ObjectRef{Base: Base{Loc: d.span(t)}, Name: t.Value}
	if i := strings.LastIndex(t.Value, "::"); i >= 0 {
		ref.Module, ref.Name = t.Value[:i], t.Value[i+2:]
	}
	q.Subject = ref
	if sh, ok := f["shape"]; ok {
		if q.Shape, err = d.shapeElements(sh); err != nil {
			return nil, err
		}
	}
	if uc, ok := f["unless_conflict"]; ok {
		q.UnlessConflict = &UnlessConflict{Base: Base{Loc: d.span(uc)}}
		if uc.Kind == yaml.MappingNode {
			cf, err := d.fields(uc, "on", "else")
			if err != nil {
				return nil, err
			}
			if q.UnlessConflict.On, err = d.optional(cf, "on"); err != nil {
				return nil, err
			}
			if q.UnlessConflict.Else, err = d.optional(cf, "else"); err != nil {
				return nil, err
			}
		}
	}
	return q, nil
}

func (d *Decoder) updateQuery(b Base, n *yaml.Node) (Expr, error) {
	f, err := d.fields(n, "with", "subject", "filter", "set")
	if err != nil {
		return nil, err
	}
	q := &UpdateQuery{Base: b}
	if q.Aliases, err = d.aliases(f); err != nil {
		return nil, err
	}
	if q.Subject, err = d.required(f, n, "subject"); err != nil {
		return nil, err
	}
	if q.Where, err = d.optional(f, "filter"); err != nil {
		return nil, err
	}
	if sh, ok := f["set"]; ok {
		if q.Shape, err = d.shapeElements(sh); err != nil {
			return nil, err
		}
	}
	return q, nil
}

func (d *Decoder) deleteQuery(b Base, n *yaml.Node) (Expr, error) {
	f, err := d.fields(n, "with", "subject", "filter")
	if err != nil {
		return nil, err
	}
	q := &DeleteQuery{Base: b}
	if q.Aliases, err = d.aliases(f); err != nil {
		return nil, err
	}
	if q.Subject, err = d.required(f, n, "subject"); err != nil {
		return nil, err
	}
	if q.Where, err = d.optional(f, "filter"); err != nil {
		return nil, err
	}
	return q, nil
}

// Kinds lists the expression kinds the decoder understands, sorted.
func Kinds() []string {
	out := append([]string(nil), exprKinds...)
	sort.Strings(out)
	return out
}

// MustParseExpr is ParseExpr for tests and static tables; it panics on
// error.
func MustParseExpr(src string) Expr {
	e, err := ParseExpr(src)
	if err != nil {
		panic(err)
	}
	return e
}

// FormatNode renders a YAML node back to text, used in diagnostics.
func FormatNode(n *yaml.Node) string {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	_ = enc.Encode(n)
	_ = enc.Close()
	return strings.TrimSpace(buf.String())
}
