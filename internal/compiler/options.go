package compiler

import (
	"log/slog"

	"github.com/roach88/pathql/internal/ir"
	"github.com/roach88/pathql/internal/schema"
)

// Options configure a compilation.
type Options struct {
	// Module is the default module unqualified names resolve in.
	Module string

	// ImplicitIDInShapes adds the id pointer to every shape.
	ImplicitIDInShapes bool

	// ImplicitTidInShapes adds the __tid__ type id pointer to every
	// shape.
	ImplicitTidInShapes bool

	// AllowGenericTypeOutput lets a statement or cast produce a type
	// that is still polymorphic, as the bodies of generic functions do.
	AllowGenericTypeOutput bool

	// InAbstractConstraint is set while compiling the expression of an
	// abstract constraint. Ambiguous calls then resolve to the first
	// match instead of failing.
	InAbstractConstraint bool

	Logger *slog.Logger

	IDGenerator ir.IDGenerator

	// noIteratorAllowlist keeps FOR iterators out of the factoring
	// allow-list of DML nested in the loop body. Only tests set it.
	noIteratorAllowlist bool
}

// Option configures a compilation.
type Option func(*Options)

// WithModule sets the default module.
func WithModule(module string) Option {
	return func(o *Options) {
		o.Module = module
	}
}

// WithImplicitIDInShapes makes every shape project id.
func WithImplicitIDInShapes(on bool) Option {
	return func(o *Options) {
		o.ImplicitIDInShapes = on
	}
}

// WithImplicitTidInShapes makes every shape project __tid__.
func WithImplicitTidInShapes(on bool) Option {
	return func(o *Options) {
		o.ImplicitTidInShapes = on
	}
}

// WithAllowGenericTypeOutput permits polymorphic result types.
func WithAllowGenericTypeOutput(on bool) Option {
	return func(o *Options) {
		o.AllowGenericTypeOutput = on
	}
}

// WithAbstractConstraint compiles the statement as the expression of an
// abstract constraint.
func WithAbstractConstraint(on bool) Option {
	return func(o *Options) {
		o.InAbstractConstraint = on
	}
}

// WithLogger sets the logger debug and warning records go to.
//
// Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithIDGenerator sets the generator of statement ids.
//
// Default: ir.UUIDv7Generator. Use ir.NewFixedGenerator in tests.
func WithIDGenerator(g ir.IDGenerator) Option {
	return func(o *Options) {
		o.IDGenerator = g
	}
}

func withoutIteratorAllowlist() Option {
	return func(o *Options) {
		o.noIteratorAllowlist = true
	}
}

func newOptions(opts []Option) Options {
	o := Options{
		Module:      schema.DefaultModule,
		Logger:      slog.Default(),
		IDGenerator: ir.UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
