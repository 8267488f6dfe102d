package explain

import (
	"fmt"
	"strings"

	"github.com/roach88/pathql/internal/ir"
	"github.com/roach88/pathql/internal/qltypes"
	"github.com/roach88/pathql/internal/schema"
)

// Node is one operator of a plan.
type Node struct {
	Op     string
	Detail string
	// Role is the node's relation to its parent: "filter", "arg x",
	// "shape" and so on. Empty for the primary input.
	Role     string
	Children []*Node
}

// Param is a literal lifted out of the plan.
type Param struct {
	Type  string
	Value string
}

// Plan is the relational plan of a compiled statement.
type Plan struct {
	Root        *Node
	ResultType  string
	Cardinality qltypes.Cardinality
	Refs        []string
	Params      []Param
	Fingerprint string
}

// Planner lowers IR statements to plans. Literals are never inlined; each
// constant becomes a numbered parameter.
type Planner struct {
	// ShapeBodies renders the sets of plain pointer shape elements, not
	// only those of computed and assigned ones.
	ShapeBodies bool

	params []Param
	// active holds the sets being lowered; a set reached again through
	// a binding is rendered as a reference.
	active map[*ir.Set]bool
	done   map[*ir.Set]bool
}

// NewPlanner creates a Planner.
func NewPlanner() *Planner {
	return &Planner{}
}

// Explain lowers stmt with a default Planner.
func Explain(stmt *ir.Statement) (*Plan, error) {
	return NewPlanner().Plan(stmt)
}

// Plan lowers stmt.
func (p *Planner) Plan(stmt *ir.Statement) (*Plan, error) {
	if stmt == nil || stmt.Expr == nil {
		return nil, fmt.Errorf("cannot explain nil statement")
	}
	p.params = nil
	p.active = make(map[*ir.Set]bool)
	p.done = make(map[*ir.Set]bool)

	root, err := p.set(stmt.Expr)
	if err != nil {
		return nil, err
	}
	plan := &Plan{
		Root:        root,
		Cardinality: stmt.Cardinality,
		Params:      p.params,
		Fingerprint: stmt.Fingerprint,
	}
	if t := stmt.ResultType(); t != nil {
		plan.ResultType = t.DisplayName()
	}
	for _, r := range stmt.SchemaRefs {
		plan.Refs = append(plan.Refs, r.String())
	}
	return plan, nil
}

func (p *Planner) set(s *ir.Set) (*Node, error) {
	if s == nil {
		return nil, fmt.Errorf("cannot explain nil set")
	}
	if p.active[s] || (p.done[s] && s.Anchor != "") {
		return &Node{Op: "ref", Detail: setLabel(s)}, nil
	}
	first := !p.done[s]
	p.active[s] = true
	defer func() {
		delete(p.active, s)
		p.done[s] = true
	}()

	n, err := p.expr(s)
	if err != nil {
		return nil, err
	}
	if s.Anchor != "" {
		n.Detail = strings.TrimSpace(n.Detail + " as " + s.Anchor)
	}
	if s.Optional {
		n.Detail = strings.TrimSpace(n.Detail + " optional")
	}
	if first && len(s.Shape) > 0 {
		shape, err := p.shape(s.Shape)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, shape)
	}
	return n, nil
}

func setLabel(s *ir.Set) string {
	if s.Anchor != "" {
		return s.Anchor
	}
	return s.PathID.Pformat()
}

func (p *Planner) expr(s *ir.Set) (*Node, error) {
	switch e := s.Expr.(type) {
	case *ir.TypeRoot:
		if schema.IsObject(e.Type) {
			return &Node{Op: "scan", Detail: e.Type.DisplayName()}, nil
		}
		return &Node{Op: "values", Detail: e.Type.DisplayName()}, nil
	case *ir.PathStep:
		return p.pathStep(s, e)
	case *ir.TypeIntersection:
		return p.unary("intersect", "[is "+e.Type.DisplayName()+"]", e.Source)
	case *ir.Constant:
		p.params = append(p.params, Param{Type: e.Type.DisplayName(), Value: e.Value})
		return &Node{Op: "param", Detail: fmt.Sprintf("$%d", len(p.params))}, nil
	case *ir.EmptySet:
		return &Node{Op: "empty", Detail: s.Type.DisplayName()}, nil
	case *ir.Tuple:
		n := &Node{Op: "tuple"}
		for i, el := range e.Elements {
			role := fmt.Sprintf("%d", i)
			if e.Named {
				role = el.Name
			}
			if err := p.child(n, role, el.Val); err != nil {
				return nil, err
			}
		}
		return n, nil
	case *ir.Array:
		n := &Node{Op: "array"}
		for _, el := range e.Elements {
			if err := p.child(n, "", el); err != nil {
				return nil, err
			}
		}
		return n, nil
	case *ir.TupleIndirection:
		return p.unary("element", e.Name, e.Source)
	case *ir.FunctionCall:
		detail := e.Func.String()
		if e.Impl != "" {
			detail += " impl=" + e.Impl
		}
		if len(e.NullArgs) > 0 {
			detail += " null_args=" + strings.Join(e.NullArgs, ",")
		}
		return p.call("call", detail, e.Args)
	case *ir.OperatorCall:
		return p.call("op", e.Op.Name, e.Args)
	case *ir.TypeCast:
		return p.cast(e)
	case *ir.IfElse:
		n := &Node{Op: "if"}
		for _, c := range []struct {
			role string
			s    *ir.Set
		}{{"cond", e.Cond}, {"then", e.Then}, {"else", e.Else}} {
			if err := p.child(n, c.role, c.s); err != nil {
				return nil, err
			}
		}
		return n, nil
	case *ir.SelectStmt:
		return p.selectStmt(e)
	case *ir.ForStmt:
		detail := ""
		if e.Optional {
			detail = "optional"
		}
		n := &Node{Op: "for", Detail: detail}
		if err := p.child(n, "in", e.Iterator); err != nil {
			return nil, err
		}
		if err := p.child(n, "union", e.Result); err != nil {
			return nil, err
		}
		return n, nil
	case *ir.InsertStmt:
		return p.insert(s, e)
	case *ir.UpdateStmt:
		n := &Node{Op: "update", Detail: s.Type.DisplayName()}
		if err := p.child(n, "subject", e.Subject); err != nil {
			return nil, err
		}
		if err := p.optionalChild(n, "filter", e.Where); err != nil {
			return nil, err
		}
		if err := p.conflicts(n, e.ConflictChecks); err != nil {
			return nil, err
		}
		return n, nil
	case *ir.DeleteStmt:
		n := &Node{Op: "delete", Detail: s.Type.DisplayName()}
		if err := p.child(n, "subject", e.Subject); err != nil {
			return nil, err
		}
		if err := p.optionalChild(n, "filter", e.Where); err != nil {
			return nil, err
		}
		return n, nil
	default:
		return nil, fmt.Errorf("unsupported expression type: %T", s.Expr)
	}
}

func (p *Planner) child(n *Node, role string, s *ir.Set) error {
	c, err := p.set(s)
	if err != nil {
		return err
	}
	c.Role = role
	n.Children = append(n.Children, c)
	return nil
}

func (p *Planner) optionalChild(n *Node, role string, s *ir.Set) error {
	if s == nil {
		return nil
	}
	return p.child(n, role, s)
}

func (p *Planner) unary(op, detail string, src *ir.Set) (*Node, error) {
	n := &Node{Op: op, Detail: detail}
	if err := p.child(n, "", src); err != nil {
		return nil, err
	}
	return n, nil
}

// pathStep renders a link as a join and a property as a projection.
func (p *Planner) pathStep(s *ir.Set, e *ir.PathStep) (*Node, error) {
	var op string
	switch {
	case e.Computed:
		op = "computed"
	case e.Direction == qltypes.Inbound:
		op = "backlink"
	case e.Ptr.LinkProp:
		op = "linkprop"
	case schema.IsObject(s.Type):
		op = "join"
	default:
		op = "project"
	}
	n := &Node{Op: op, Detail: e.Ptr.Name + " -> " + s.Type.DisplayName()}
	if err := p.child(n, "", e.Source); err != nil {
		return nil, err
	}
	if e.Computed && e.Body != nil {
		if err := p.child(n, "body", e.Body); err != nil {
			return nil, err
		}
	}
	return n, nil
}

func (p *Planner) call(op, detail string, args []ir.CallArg) (*Node, error) {
	n := &Node{Op: op, Detail: detail}
	for i, a := range args {
		role := fmt.Sprintf("arg %d", i)
		if a.Param != "" {
			role = "arg " + a.Param
		}
		switch a.Typemod {
		case qltypes.SetOfType:
			role += " (set of)"
		case qltypes.OptionalType:
			role += " (optional)"
		}
		if a.IsDefault {
			role += " (default)"
		}
		if err := p.child(n, role, a.Set); err != nil {
			return nil, err
		}
	}
	return n, nil
}

func (p *Planner) cast(e *ir.TypeCast) (*Node, error) {
	detail := e.From.DisplayName() + " -> " + e.To.DisplayName()
	switch {
	case e.InheritanceCast:
		detail += " inheritance"
	case e.Cast != nil && e.Cast.Function != "":
		detail += " via " + e.Cast.Function
	}
	if m := e.Cardinality.String(); m != "" {
		detail += " " + m
	}
	if e.AssertsExistence() {
		detail += " assert exists"
	}
	return p.unary("cast", detail, e.Expr)
}

// selectStmt stacks the clauses the way they are evaluated: the result
// is filtered, sorted, then sliced.
func (p *Planner) selectStmt(e *ir.SelectStmt) (*Node, error) {
	n := &Node{Op: "select"}
	if e.Implicit {
		n.Detail = "implicit"
	}
	for _, b := range e.Bindings {
		if err := p.child(n, "with", b); err != nil {
			return nil, err
		}
	}
	if err := p.child(n, "result", e.Result); err != nil {
		return nil, err
	}
	if err := p.optionalChild(n, "filter", e.Where); err != nil {
		return nil, err
	}
	for _, o := range e.OrderBy {
		role := "order asc"
		if o.Desc {
			role = "order desc"
		}
		if o.NullsLast {
			role += " nulls last"
		}
		if err := p.child(n, role, o.Expr); err != nil {
			return nil, err
		}
	}
	if err := p.optionalChild(n, "offset", e.Offset); err != nil {
		return nil, err
	}
	if err := p.optionalChild(n, "limit", e.Limit); err != nil {
		return nil, err
	}
	return n, nil
}

func (p *Planner) insert(s *ir.Set, e *ir.InsertStmt) (*Node, error) {
	n := &Node{Op: "insert", Detail: s.Type.DisplayName()}
	if err := p.child(n, "subject", e.Subject); err != nil {
		return nil, err
	}
	if c := e.OnConflict; c != nil {
		cn, err := p.conflict("unless conflict", c)
		if err != nil {
			return nil, err
		}
		if c.ElseIR != nil {
			if err := p.child(cn, "else", c.ElseIR); err != nil {
				return nil, err
			}
		}
		n.Children = append(n.Children, cn)
	}
	if err := p.conflicts(n, e.ConflictChecks); err != nil {
		return nil, err
	}
	return n, nil
}

func (p *Planner) conflicts(n *Node, cs []*ir.OnConflictClause) error {
	for _, c := range cs {
		cn, err := p.conflict("conflict check", c)
		if err != nil {
			return err
		}
		n.Children = append(n.Children, cn)
	}
	return nil
}

func (p *Planner) conflict(op string, c *ir.OnConflictClause) (*Node, error) {
	detail := c.Subject.String()
	if !c.Constraint.IsZero() {
		detail += " on " + c.Constraint.String()
	}
	if c.AlwaysCheck {
		detail += " always"
	}
	n := &Node{Op: op, Detail: detail}
	if c.SelectIR != nil {
		if err := p.child(n, "select", c.SelectIR); err != nil {
			return nil, err
		}
	}
	return n, nil
}

func (p *Planner) shape(els []*ir.ShapeElement) (*Node, error) {
	n := &Node{Op: "shape", Role: "shape"}
	for _, el := range els {
		detail := el.Name
		if el.Op != ir.ShapeMaterialize {
			detail += " " + el.Op.String()
		}
		detail += " " + el.Cardinality.String()
		if el.Implicit {
			detail += " implicit"
		}
		en := &Node{Op: "element", Detail: detail}
		if el.Set != nil && (p.ShapeBodies || el.Computed || el.Op != ir.ShapeMaterialize) {
			if err := p.child(en, "", el.Set); err != nil {
				return nil, err
			}
		}
		n.Children = append(n.Children, en)
	}
	return n, nil
}
