package schema

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// ObjectConstraintName derives the name of an object-level constraint
// spanning pointers.
func ObjectConstraintName(subject Name, base Name, pointers []string) Name {
	return NewName(subject.Module, fmt.Sprintf("%s@%s(%s)", subject.Name, base, strings.Join(pointers, ",")))
}

// MaterializeInheritance copies inherited pointers and constraints onto
// every non-view object type. Inherited copies have Owned == false and
// record the ancestor they came from in Bases (pointers) or Ancestors
// (constraints). Types are processed parents first.
func (s *Schema) MaterializeInheritance() (*Schema, error) {
	var objs []*ObjectType
	for _, t := range s.Types() {
		if o, ok := t.(*ObjectType); ok && !o.View {
			for _, b := range o.Bases {
				if _, ok := s.ObjectType(b); !ok {
					return nil, fmt.Errorf("object type %s: base %s is not an object type", o.Name, b)
				}
			}
			objs = append(objs, o)
		}
	}
	depth := make(map[Name]int, len(objs))
	for _, o := range objs {
		depth[o.Name] = len(s.Ancestors(o))
	}
	sort.SliceStable(objs, func(i, j int) bool { return depth[objs[i].Name] < depth[objs[j].Name] })

	out := s
	for _, o := range objs {
		var err error
		out, err = out.inheritInto(o.Name)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Schema) inheritInto(name Name) (*Schema, error) {
	obj, _ := s.ObjectType(name)
	out := s

	var inherited []string
	for _, baseName := range obj.Bases {
		base, _ := out.ObjectType(baseName)
		for _, short := range base.Pointers {
			parent, ok := out.PointerByKey(PointerKey(base.Name, short))
			if !ok {
				continue
			}
			if !slices.Contains(inherited, short) {
				inherited = append(inherited, short)
			}

			own, exists := out.PointerByKey(PointerKey(name, short))
			if exists {
				if !Same(own.Target, parent.Target) && !out.IsSubclass(own.Target, parent.Target) {
					return nil, fmt.Errorf("cannot redefine the target type of %s of object type %s from %s to %s",
						own.VerboseName(), name, parent.Target.DisplayName(), own.Target.DisplayName())
				}
				if !slices.Contains(own.Bases, parent.Key()) {
					oc := own.clone()
					oc.Bases = append(oc.Bases, parent.Key())
					out = out.WithPointer(oc)
				}
			} else {
				pc := parent.clone()
				pc.Source = name
				pc.Owned = false
				pc.Bases = []string{parent.Key()}
				pc.Constraints = nil
				pc.LinkProps = nil
				out = out.WithPointer(pc)
				for _, lp := range parent.LinkProps {
					if prop, ok := out.PointerByKey(LinkPropKey(parent.Key(), lp)); ok {
						lpc := prop.clone()
						lpc.Source = name
						lpc.Link = pc.Key()
						lpc.Owned = false
						lpc.Bases = []string{prop.Key()}
						out = out.WithPointer(lpc)
					}
				}
			}

			for _, cn := range parent.Constraints {
				pcon, ok := out.Constraint(cn)
				if !ok || pcon.Abstract {
					continue
				}
				out = out.inheritConstraint(pcon, name, short)
			}
		}

		for _, cn := range base.Constraints {
			if pcon, ok := out.Constraint(cn); ok && !pcon.Abstract {
				out = out.inheritConstraint(pcon, name, "")
			}
		}
	}

	// Inherited pointers come first, in base order.
	cur, _ := out.ObjectType(name)
	order := slices.Clone(inherited)
	for _, p := range cur.Pointers {
		if !slices.Contains(order, p) {
			order = append(order, p)
		}
	}
	oc := *cur
	oc.Pointers = order
	return out.WithType(&oc), nil
}

func (s *Schema) inheritConstraint(parent *Constraint, subject Name, pointer string) *Schema {
	var name Name
	if pointer == "" {
		name = ObjectConstraintName(subject, parent.Base, parent.SubjectPointers)
	} else {
		name = ConstraintName(subject, pointer, parent.Base)
	}
	chain := append([]Name{parent.Name}, parent.Ancestors...)

	if own, ok := s.Constraint(name); ok {
		if slices.Contains(own.Ancestors, parent.Name) {
			return s
		}
		oc := own.clone()
		oc.Ancestors = append(oc.Ancestors, chain...)
		return s.WithConstraint(oc)
	}

	c := parent.clone()
	c.Name = name
	c.Subject = subject
	c.Owned = false
	c.Delegated = false
	c.Ancestors = chain
	return s.WithConstraint(c)
}
