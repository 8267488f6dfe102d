package compiler

import (
	"github.com/roach88/pathql/internal/diag"
	"github.com/roach88/pathql/internal/inference"
	"github.com/roach88/pathql/internal/ir"
	"github.com/roach88/pathql/internal/qlast"
	"github.com/roach88/pathql/internal/qltypes"
	"github.com/roach88/pathql/internal/schema"
	"github.com/roach88/pathql/internal/scopetree"
)

// PendingCardinality is a computed pointer whose cardinality is settled
// once the statement referencing it is complete.
type PendingCardinality struct {
	Pointer *schema.Pointer

	// Specified is the declared cardinality, nil when undeclared.
	Specified  *qltypes.SchemaCardinality
	SourceExpr qlast.Expr

	// Callbacks run with the settled cardinality, in registration order.
	Callbacks []func(qltypes.Cardinality) error

	source *ir.Set
	body   *ir.Set
	fence  *scopetree.Node
	span   diag.Span
}

type pendingRegistry struct {
	entries map[string]*PendingCardinality
}

func newPendingRegistry() *pendingRegistry {
	return &pendingRegistry{entries: make(map[string]*PendingCardinality)}
}

// Len returns the number of unsettled pointers.
func (r *pendingRegistry) Len() int {
	return len(r.entries)
}

// registerPending records that the cardinality of p depends on body, the
// compiled expression of p evaluated for each object of source. Settling
// is queued as completion work; a pointer already pending keeps its first
// registration.
func (c *Context) registerPending(p *schema.Pointer, source, body *ir.Set, fence *scopetree.Node, span diag.Span) *PendingCardinality {
	key := p.Key()
	if pc, ok := c.pending.entries[key]; ok {
		return pc
	}
	pc := &PendingCardinality{
		Pointer:    p,
		SourceExpr: p.Expr,
		source:     source,
		body:       body,
		fence:      fence,
		span:       span,
	}
	if spec, ok := c.env.PointerSpecifiedInfo[key]; ok && spec.Cardinality != 0 {
		card := spec.Cardinality
		pc.Specified = &card
	} else if p.Cardinality != 0 {
		// Declared in the schema: the body still has to agree.
		card := p.Cardinality
		pc.Specified = &card
	}
	c.pending.entries[key] = pc

	env, reg := c.env, c.pending
	env.queue.Enqueue(func() error {
		return env.settle(reg, key)
	})
	return pc
}

// onPointerCardinality runs fn with the cardinality of the pointer key,
// now if it is settled or when it settles.
func (c *Context) onPointerCardinality(key string, fn func(qltypes.Cardinality) error) error {
	if card, ok := c.env.InferredCardinality[key]; ok {
		return fn(card)
	}
	pc, ok := c.pending.entries[key]
	if !ok {
		return diag.NewInternalError("cardinality of %s is neither settled nor pending", key)
	}
	pc.Callbacks = append(pc.Callbacks, fn)
	return nil
}

// settle infers the cardinality of a pending pointer against the
// finished scope tree, stores it and propagates it to derived pointers.
func (e *Environment) settle(reg *pendingRegistry, key string) error {
	pc, ok := reg.entries[key]
	if !ok {
		return nil
	}

	// The body's fence hangs under the scope the pointer was referenced
	// from; inferring from there keeps the body's own paths invisible.
	from := pc.fence.Parent()
	if from == nil {
		from = pc.fence
	}
	card, err := inference.New(e.inferenceEnv()).WithSingletons(pc.source.PathID).Infer(pc.body, from)
	if err != nil {
		return err
	}

	if pc.Specified != nil {
		switch {
		case *pc.Specified == qltypes.SchemaOne && card.IsMulti():
			return diag.NewQueryError(diag.ErrCodeCardinalityMismatch, pc.span,
				"possibly more than one element returned by an expression for a computed %s explicitly declared as 'single'",
				pc.Pointer.VerboseName())
		case *pc.Specified == qltypes.SchemaMany:
			card = qltypes.FromBounds(!card.CanBeZero(), true)
		}
	}

	e.storeCardinality(key, card)
	for _, derived := range e.PointerDerivationMap[key] {
		e.storeCardinality(derived, card)
	}
	delete(reg.entries, key)
	e.logger.Debug("computed pointer settled", "path", key, "cardinality", card.String(), "pending", len(reg.entries))

	for _, cb := range pc.Callbacks {
		if err := cb(card); err != nil {
			return err
		}
	}
	return nil
}

func (e *Environment) storeCardinality(key string, card qltypes.Cardinality) {
	e.InferredCardinality[key] = card
	sc := qltypes.SchemaOne
	if card.IsMulti() {
		sc = qltypes.SchemaMany
	}
	e.updateSchema(e.Schema.WithPointerCardinality(key, sc))
}

// requireNonEmpty returns a callback rejecting cardinalities that allow
// an empty set for a pointer declared required.
func requireNonEmpty(p *schema.Pointer, span diag.Span) func(qltypes.Cardinality) error {
	return func(card qltypes.Cardinality) error {
		if card.CanBeZero() {
			return diag.NewQueryError(diag.ErrCodeCardinalityMismatch, span,
				"possibly an empty set returned by an expression for a computed %s explicitly declared as 'required'",
				p.VerboseName())
		}
		return nil
	}
}
