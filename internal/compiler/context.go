package compiler

import (
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/pathql/internal/ir"
	"github.com/roach88/pathql/internal/pathid"
	"github.com/roach88/pathql/internal/qlast"
	"github.com/roach88/pathql/internal/scopetree"
)

// ContextMode says how a child frame relates to its parent.
type ContextMode string

const (
	// ModeNew shares everything with the parent frame.
	ModeNew ContextMode = "new"

	// ModeSubquery opens a fence for a nested statement. Anchors and
	// aliases are copied so bindings made inside stay inside, and the
	// current statement is reset.
	ModeSubquery ContextMode = "subquery"

	// ModeNewScope opens a scope branch: paths attached in it may factor
	// with the parent's.
	ModeNewScope ContextMode = "newscope"

	// ModeNewFence opens a fence: the parent's paths are visible, but
	// paths attached inside do not leak out.
	ModeNewFence ContextMode = "newfence"

	// ModeDetached compiles in a fresh path namespace, so references do
	// not correlate with the enclosing query.
	ModeDetached ContextMode = "detached"
)

// aliasGenerator hands out unique names. It is shared by every frame of
// a compilation, so names never repeat.
type aliasGenerator struct {
	counts map[string]int
}

func newAliasGenerator() *aliasGenerator {
	return &aliasGenerator{counts: make(map[string]int)}
}

func (g *aliasGenerator) get(prefix string) string {
	g.counts[prefix]++
	return fmt.Sprintf("%s~%d", prefix, g.counts[prefix])
}

// Context is one compiler frame.
//
// Fields are owned by the frame unless noted. Child frames are made with
// Enter, which decides per mode what is copied, shared or reset.
type Context struct {
	env  *Environment
	Mode ContextMode

	// Namespace is added to every PathID created in this frame.
	Namespace pathid.NamespaceSet

	// Shared by all frames.
	aliases *aliasGenerator

	// Stmt is the statement set being compiled.
	Stmt *ir.Set

	Anchors      map[string]*ir.Set
	AliasedViews map[string]*ir.Set

	// SourceMap maps computed pointer keys to their source expressions.
	// Shared by all frames.
	SourceMap map[string]qlast.Expr

	// Shared by all frames.
	pending *pendingRegistry

	PathScope         *scopetree.Node
	PartialPathPrefix *ir.Set

	// IteratorPathIDs are the FOR iterators in scope. DML statements
	// let them through their factoring fence.
	IteratorPathIDs []*pathid.PathID

	ImplicitIDInShapes   bool
	ImplicitTidInShapes  bool
	InConflictSelect     bool
	InAbstractConstraint bool

	Module string
}

func newContext(env *Environment) *Context {
	return &Context{
		env:                  env,
		Mode:                 ModeNew,
		aliases:              newAliasGenerator(),
		Anchors:              make(map[string]*ir.Set),
		AliasedViews:         make(map[string]*ir.Set),
		SourceMap:            make(map[string]qlast.Expr),
		pending:              newPendingRegistry(),
		PathScope:            env.PathScope,
		ImplicitIDInShapes:   env.Options.ImplicitIDInShapes,
		ImplicitTidInShapes:  env.Options.ImplicitTidInShapes,
		InAbstractConstraint: env.Options.InAbstractConstraint,
		Module:               env.Options.Module,
	}
}

// Env returns the environment the frame belongs to.
func (c *Context) Env() *Environment { return c.env }

// Enter returns a child frame.
func (c *Context) Enter(mode ContextMode) *Context {
	n := *c
	n.Mode = mode
	n.IteratorPathIDs = slices.Clip(c.IteratorPathIDs)

	switch mode {
	case ModeNewScope:
		n.PathScope = c.env.registerScope(c.PathScope.AttachBranch())

	case ModeNewFence:
		n.PathScope = c.env.registerScope(c.PathScope.AttachFence())

	case ModeSubquery:
		n.PathScope = c.env.registerScope(c.PathScope.AttachFence())
		n.Anchors = maps.Clone(c.Anchors)
		n.AliasedViews = maps.Clone(c.AliasedViews)
		n.Stmt = nil

	case ModeDetached:
		n.Anchors = maps.Clone(c.Anchors)
		n.AliasedViews = maps.Clone(c.AliasedViews)
		n.Namespace = pathid.Strong(c.aliases.get("ns"))
		n.PartialPathPrefix = nil
	}
	return &n
}

// withAnchor returns a frame where name resolves to s.
func (c *Context) withAnchor(name string, s *ir.Set) *Context {
	n := *c
	n.Anchors = maps.Clone(c.Anchors)
	n.Anchors[name] = s
	return &n
}

// withPrefix returns a frame where partial paths start at s.
func (c *Context) withPrefix(s *ir.Set) *Context {
	n := *c
	n.PartialPathPrefix = s
	return &n
}

// withIterator returns a frame where id may cross DML factoring fences.
func (c *Context) withIterator(id *pathid.PathID) *Context {
	n := *c
	n.IteratorPathIDs = append(slices.Clip(c.IteratorPathIDs), id)
	return &n
}
