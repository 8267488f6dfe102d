package explain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/roach88/pathql/internal/ir"
)

// Format selects a plan rendering.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat accepts "text" or "json".
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatText, FormatJSON:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown plan format %q: must be text or json", s)
	}
}

// Write renders plan to w in format f.
func Write(w io.Writer, plan *Plan, f Format) error {
	var data []byte
	switch f {
	case FormatJSON:
		raw, err := ir.MarshalCanonical(plan.Value())
		if err != nil {
			return fmt.Errorf("marshal plan: %w", err)
		}
		var buf bytes.Buffer
		if err := json.Indent(&buf, raw, "", "  "); err != nil {
			return fmt.Errorf("indent plan: %w", err)
		}
		buf.WriteByte('\n')
		data = buf.Bytes()
	default:
		data = []byte(plan.Text())
	}
	_, err := w.Write(data)
	return err
}

// Text renders the plan as an indented tree:
//
//	result: default::User MANY
//	select implicit
//	  result: scan default::User
func (p *Plan) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "result: %s %s\n", p.ResultType, p.Cardinality)
	if len(p.Refs) > 0 {
		fmt.Fprintf(&b, "refs: %s\n", strings.Join(p.Refs, ", "))
	}
	for i, param := range p.Params {
		fmt.Fprintf(&b, "$%d: <%s>%s\n", i+1, param.Type, param.Value)
	}
	writeNode(&b, p.Root, 0)
	return b.String()
}

func writeNode(b *strings.Builder, n *Node, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
	if n.Role != "" && n.Role != n.Op {
		b.WriteString(n.Role)
		b.WriteString(": ")
	}
	b.WriteString(n.Op)
	if n.Detail != "" {
		b.WriteString(" ")
		b.WriteString(n.Detail)
	}
	b.WriteString("\n")
	for _, c := range n.Children {
		writeNode(b, c, depth+1)
	}
}

// Value converts the plan to an ir.Value for canonical JSON output.
func (p *Plan) Value() ir.Value {
	params := make(ir.List, 0, len(p.Params))
	for _, param := range p.Params {
		params = append(params, ir.Obj(ir.F("type", ir.Str(param.Type)), ir.F("value", ir.Str(param.Value))))
	}
	return ir.Obj(
		ir.F("result_type", ir.Str(p.ResultType)),
		ir.F("cardinality", ir.Str(p.Cardinality.String())),
		ir.F("refs", ir.StrList(p.Refs...)),
		ir.F("params", params),
		ir.F("fingerprint", ir.Str(p.Fingerprint)),
		ir.F("plan", nodeValue(p.Root)),
	)
}

func nodeValue(n *Node) ir.Value {
	fields := []ir.Field{ir.F("op", ir.Str(n.Op))}
	if n.Detail != "" {
		fields = append(fields, ir.F("detail", ir.Str(n.Detail)))
	}
	if n.Role != "" {
		fields = append(fields, ir.F("role", ir.Str(n.Role)))
	}
	if len(n.Children) > 0 {
		children := make(ir.List, 0, len(n.Children))
		for _, c := range n.Children {
			children = append(children, nodeValue(c))
		}
		fields = append(fields, ir.F("children", children))
	}
	return ir.Obj(fields...)
}
