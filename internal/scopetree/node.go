// Package scopetree records which paths are visible, and under what
// multiplicity, at each point of a query.
//
// The tree mirrors query nesting. Path nodes hold a PathID. Fences mark a
// SET OF boundary: a path inside a fence is not factored with a path
// outside it unless the outer one is visible. Branches group paths
// without isolating them. When a path is attached, every occurrence that
// can be factored with it is lifted to the closest common point, so a path
// appears at most once on any root-to-leaf chain.
package scopetree

import (
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/roach88/pathql/internal/diag"
	"github.com/roach88/pathql/internal/pathid"
)

// Warner receives non-fatal diagnostics raised while factoring.
type Warner interface {
	Warn(err *diag.Error)
}

// FenceInfo summarizes the fences crossed between two nodes.
type FenceInfo struct {
	UnnestFence    bool
	FactoringFence bool
}

// Or combines two fence summaries.
func (f FenceInfo) Or(o FenceInfo) FenceInfo {
	return FenceInfo{
		UnnestFence:    f.UnnestFence || o.UnnestFence,
		FactoringFence: f.FactoringFence || o.FactoringFence,
	}
}

// Node is a scope tree node. A node with a PathID is a path node;
// otherwise it is a fence or a branch depending on Fenced.
type Node struct {
	// UniqueID maps IR sets to their scope. Zero means none.
	UniqueID int

	PathID *pathid.PathID
	Fenced bool

	// Optional marks a path used as an OPTIONAL argument.
	Optional bool

	// UnnestFence prevents unnesting into parents.
	UnnestFence bool

	// FactoringFence prevents prefix factoring across this node, except
	// for paths in FactoringAllowlist.
	FactoringFence     bool
	FactoringAllowlist []*pathid.PathID

	// Warn marks paths that should warn when factored from beneath two
	// warning nodes.
	Warn bool

	// IsGroup marks a GROUP binding, never visible as a plain path.
	IsGroup bool

	// Namespaces lists the namespaces stripped from paths pulled up out
	// of this branch.
	Namespaces pathid.NamespaceSet

	children []*Node
	parent   *Node
}

// New returns an empty root fence.
func New() *Node {
	return &Node{Fenced: true}
}

// NewPath returns a detached path node.
func NewPath(id *pathid.PathID) *Node {
	return &Node{PathID: id}
}

// Children returns the child nodes. The slice must not be modified.
func (n *Node) Children() []*Node { return n.children }

// Parent returns the parent node, or nil for a root.
func (n *Node) Parent() *Node { return n.parent }

// Root returns the root of the tree containing n.
func (n *Node) Root() *Node {
	for n.parent != nil {
		n = n.parent
	}
	return n
}

// Name is the label used by Pformat.
func (n *Node) Name() string {
	var name string
	switch {
	case n.PathID != nil:
		name = n.PathID.String()
	case n.Fenced:
		name = "FENCE"
	default:
		name = "BRANCH"
	}
	if n.Optional {
		name += " [OPT]"
	}
	return name
}

func (n *Node) String() string {
	if n.Fenced && n.PathID == nil {
		return "<fence>"
	}
	return "<" + n.Name() + ">"
}

func (n *Node) fenceInfo() FenceInfo {
	return FenceInfo{UnnestFence: n.UnnestFence, FactoringFence: n.FactoringFence}
}

// fenceInfoEx lifts the factoring fence for allow-listed paths.
func (n *Node) fenceInfoEx(id *pathid.PathID, ns pathid.NamespaceSet) FenceInfo {
	fi := n.fenceInfo()
	for _, wl := range n.FactoringAllowlist {
		if pathsEqual(id, wl, ns) {
			fi.FactoringFence = false
			break
		}
	}
	return fi
}

// Ancestors returns n and its ancestors, closest first.
func (n *Node) Ancestors() []*Node {
	var out []*Node
	for a := n; a != nil; a = a.parent {
		out = append(out, a)
	}
	return out
}

func (n *Node) isStrictAncestorOf(d *Node) bool {
	for a := d.parent; a != nil; a = a.parent {
		if a == n {
			return true
		}
	}
	return false
}

// ancestorsAndNamespaces yields n and its ancestors together with the
// namespaces accumulated up to and including each one.
func (n *Node) ancestorsAndNamespaces() iter.Seq2[*Node, pathid.NamespaceSet] {
	return func(yield func(*Node, pathid.NamespaceSet) bool) {
		var ns pathid.NamespaceSet
		for a := n; a != nil; a = a.parent {
			ns = ns.Union(a.Namespaces)
			if !yield(a, ns) {
				return
			}
		}
	}
}

// Descendants yields n and its descendants, top first. Nodes moved out of
// the subtree during iteration are not descended into.
func (n *Node) Descendants() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		if yield(n) {
			n.strictDescendants(yield)
		}
	}
}

func (n *Node) strictDescendants(yield func(*Node) bool) bool {
	for _, c := range slices.Clone(n.children) {
		if !yield(c) {
			return false
		}
		if c.parent == n && !c.strictDescendants(yield) {
			return false
		}
	}
	return true
}

func (n *Node) pathDescendants() []*Node {
	var out []*Node
	for d := range n.Descendants() {
		if d.PathID != nil {
			out = append(out, d)
		}
	}
	return out
}

// walk yields descendants with the namespaces and fence info collected
// between n and each of them. With unfencedOnly, fenced children are not
// entered. skip is a child to leave out.
func (n *Node) walk(unfencedOnly, strict bool, skip *Node, yield func(*Node, pathid.NamespaceSet, FenceInfo) bool) bool {
	if !strict && !yield(n, nil, FenceInfo{}) {
		return false
	}
	for _, child := range slices.Clone(n.children) {
		if (unfencedOnly && child.Fenced) || child == skip {
			continue
		}
		fi := child.fenceInfo()
		if !yield(child, child.Namespaces, fi) {
			return false
		}
		if child.parent != n {
			continue
		}
		ok := child.walk(unfencedOnly, true, nil, func(d *Node, dns pathid.NamespaceSet, dfi FenceInfo) bool {
			return yield(d, child.Namespaces.Union(dns), fi.Or(dfi))
		})
		if !ok {
			return false
		}
	}
	return true
}

// ParentFence is the nearest strict ancestor fence.
func (n *Node) ParentFence() *Node {
	for a := n.parent; a != nil; a = a.parent {
		if a.Fenced {
			return a
		}
	}
	return nil
}

// Fence is n if it is a fence, otherwise ParentFence.
func (n *Node) Fence() *Node {
	if n.Fenced {
		return n
	}
	return n.ParentFence()
}

// ParentBranch is the nearest strict ancestor without a path.
func (n *Node) ParentBranch() *Node {
	for a := n.parent; a != nil; a = a.parent {
		if a.PathID == nil {
			return a
		}
	}
	return nil
}

// PathAncestor is the nearest strict ancestor with a path.
func (n *Node) PathAncestor() *Node {
	for a := n.parent; a != nil; a = a.parent {
		if a.PathID != nil {
			return a
		}
	}
	return nil
}

func (n *Node) stripPathNamespace(ns pathid.NamespaceSet) {
	if len(ns) == 0 {
		return
	}
	for _, pd := range n.pathDescendants() {
		pd.PathID = pd.PathID.StripNamespace(ns)
	}
}

func (n *Node) setParent(parent *Node) {
	if n.parent == parent {
		return
	}
	if n.parent != nil {
		old := n.parent
		i := slices.Index(old.children, n)
		old.children = slices.Delete(old.children, i, i+1)
	}
	n.parent = parent
	if parent != nil {
		parent.children = append(parent.children, n)
	}
}

// AttachChild appends node to the children of n without factoring. A
// child with the same unique id makes it a no-op; a child with the same
// path is an error.
func (n *Node) AttachChild(node *Node, span diag.Span) error {
	if node.PathID != nil {
		for _, c := range n.children {
			if c.PathID != nil && c.PathID.Equal(node.PathID) {
				return diag.NewReferenceError(diag.ErrCodeDuplicatePath, span,
					"'%s' is already present in %s", node.PathID.Pformat(), n)
			}
		}
	}
	if node.UniqueID != 0 {
		for _, c := range n.children {
			if c.UniqueID == node.UniqueID {
				return nil
			}
		}
	}
	node.setParent(n)
	return nil
}

// AttachFence creates and attaches an empty fence.
func (n *Node) AttachFence() *Node {
	f := &Node{Fenced: true}
	f.setParent(n)
	return f
}

// AttachBranch creates and attaches an empty branch.
func (n *Node) AttachBranch() *Node {
	b := &Node{}
	b.setParent(n)
	return b
}

// Remove detaches n from its parent.
func (n *Node) Remove() {
	n.setParent(nil)
}

// AttachPath attaches the subtree of id and its prefixes to n, factoring
// them with visible occurrences.
//
// Object prefixes nest: User.friends.name sits above User.friends, which
// sits above User. Tuple elements stay at the level of their tuple, and
// the object prefix of a link property stays at the level of the
// property, so that User.friends@since is shaped
//
//	User.friends@since
//	 |-User.friends
//	User
func (n *Node) AttachPath(id *pathid.PathID, optional bool, span diag.Span, w Warner) error {
	subtree := &Node{Fenced: true}
	parent := subtree
	var lpropBase *Node
	isLprop := false

	prefixes := id.IterPrefixes(false)
	for i := len(prefixes) - 1; i >= 0; i-- {
		prefix := prefixes[i]
		child := &Node{PathID: prefix, Optional: optional && parent == subtree}
		switch {
		case prefix.IsLinkPropPath():
			lpropBase = parent
			isLprop = true
		case isLprop:
			// Skip type intersections until the link itself.
			if !prefix.IsTypeIntersectionPath() {
				isLprop = false
			}
		case lpropBase != nil:
			parent = lpropBase
			lpropBase = nil
		}
		if err := parent.AttachChild(child, span); err != nil {
			return err
		}
		if !prefix.IsTupleIndirectionPath() {
			parent = child
		}
	}
	return n.AttachSubtree(subtree, span, w)
}

// AttachSubtree attaches a balanced subtree to n. node may be modified. A
// node without a path is discarded and its children attached directly.
func (n *Node) AttachSubtree(node *Node, span diag.Span, w Warner) error {
	return n.attachSubtree(node, span, false, w)
}

type factorable struct {
	existing   *Node
	point      *Node
	currentNS  pathid.NamespaceSet
	existingNS pathid.NamespaceSet
	finfo      FenceInfo
	unnest     bool
	nodeFenced bool
}

func (n *Node) attachSubtree(node *Node, span diag.Span, fusing bool, w Warner) error {
	if node.PathID != nil {
		wrapper := &Node{Fenced: true}
		node.setParent(wrapper)
		node = wrapper
	}

	var err error
	node.walk(false, false, nil, func(d *Node, dns pathid.NamespaceSet, _ FenceInfo) bool {
		if d.PathID == nil || d.ParentFence() != node {
			return true
		}
		err = n.factor(node, d, dns, span, fusing, w)
		return err == nil
	})
	if err != nil {
		return err
	}

	for _, child := range slices.Clone(node.children) {
		for _, pd := range child.pathDescendants() {
			if len(pd.PathID.Namespace()) > 0 {
				pd.PathID = pd.PathID.StripNamespace(node.Namespaces)
			}
		}
		if err := n.AttachChild(child, span); err != nil {
			return err
		}
	}
	return nil
}

// factor fuses the unfenced path node d of the subtree node with every
// occurrence factorable with it, from the closest factoring point to the
// furthest.
func (n *Node) factor(node, d *Node, dns pathid.NamespaceSet, span diag.Span, fusing bool, w Warner) error {
	id := d.PathID.StripNamespace(dns)
	points := n.findFactorable(id)
	if len(points) == 0 {
		return nil
	}

	d.stripPathNamespace(dns)
	if d.isOptionalUpto(node.parent) || n.isOptionalUpto(points[len(points)-1].point) {
		d.MarkAsOptional()
	}

	current := d
	moved := false
	for _, f := range points {
		if err := n.checkFactoringErrors(id, d, f, span); err != nil {
			return err
		}

		existingFenced := false
		if pf := f.existing.ParentFence(); pf != nil {
			existingFenced = f.point.isStrictAncestorOf(pf)
		}
		if f.existing.isOptionalUpto(f.point) {
			f.existing.MarkAsOptional()
		}

		currentWarn := current.isWarnUpto(f.point) || (!moved && n.isWarnUpto(f.point))
		existingWarn := f.existing.isWarnUpto(f.point)
		if currentWarn && existingWarn && !n.singleFromVisibleSource(id) && w != nil {
			w.Warn(diag.NewQueryError(diag.ErrCodeQuery, span,
				"attempting to factor out '%s' here", id.Pformat()))
		}
		if existingWarn {
			f.existing.Warn = true
		}

		f.existing.stripPathNamespace(f.existingNS)
		current.stripPathNamespace(f.currentNS)

		current.Remove()
		if f.point != f.existing.parent && f.point != f.existing {
			f.existing.Remove()
			if err := f.point.AttachChild(f.existing, span); err != nil {
				return err
			}
		}
		if err := f.existing.fuseSubtree(current, existingFenced, f.nodeFenced, span, w); err != nil {
			return err
		}

		current = f.existing
		moved = true

		// Children are merged only after the parent has finished
		// factoring.
		if fusing {
			break
		}
	}
	return nil
}

func (n *Node) singleFromVisibleSource(id *pathid.PathID) bool {
	src := id.SrcPath()
	if src == nil || !n.IsVisible(src) {
		return false
	}
	return id.Rptr().IsSingle(id.RptrDir())
}

func (n *Node) checkFactoringErrors(id *pathid.PathID, d *Node, f factorable, span diag.Span) error {
	if f.finfo.FactoringFence {
		return diag.NewReferenceError(diag.ErrCodeCorrelatedSet, span,
			"cannot reference correlated set '%s' here", id.Pformat())
	}

	if !f.unnest || f.point.FindChild(id, true, true) != nil {
		return nil
	}
	if src := id.SrcPath(); src != nil && n.IsVisible(src) {
		return nil
	}
	if f.existing.nodePathsAreNotLinks() {
		return nil
	}

	offending := d.PathAncestor()
	if offending == nil {
		offending = d
	}
	imp := ""
	offendingID := "'" + offending.PathID.Pformat() + "'"
	existingID := "'" + f.existing.PathID.Pformat() + "'"
	if strings.Contains(offendingID, "~") {
		imp = "implicit "
		offendingID = "an object"
		existingID = "it"
	}
	return diag.NewReferenceError(diag.ErrCodeInterpretationChange, span,
		"%sreference to %s changes the interpretation of %s elsewhere in the query",
		imp, offendingID, existingID)
}

// nodePathsAreNotLinks reports whether none of the path nodes from n up
// to the first non-path ancestor is reached through a link. Hoisting past
// properties does not change interpretation since they are not
// deduplicated.
func (n *Node) nodePathsAreNotLinks() bool {
	for a := n; a != nil && a.PathID != nil; a = a.parent {
		r := a.PathID.Rptr()
		if r != nil && r.Kind == pathid.PtrRegular && a.PathID.IsObjectPath() {
			return false
		}
	}
	return true
}

func (n *Node) fuseSubtree(node *Node, selfFenced, nodeFenced bool, span diag.Span, w Warner) error {
	node.Remove()

	if !node.Optional && !nodeFenced {
		n.Optional = false
	}
	if node.Optional && selfFenced {
		n.Optional = true
	}

	subtree := node
	if node.PathID != nil {
		subtree = &Node{Fenced: true, Optional: node.Optional}
		for _, c := range slices.Clone(node.children) {
			c.setParent(subtree)
		}
	}
	return n.attachSubtree(subtree, span, true, w)
}

// findFactorable searches up the tree for ancestors that have id as a
// descendant such that at most one of n and that descendant is fenced.
// The results are ordered by factoring point, closest first.
func (n *Node) findFactorable(id *pathid.PathID) []factorable {
	var (
		namespaces pathid.NamespaceSet
		unnestSeen bool
		fenceSeen  bool
		upFinfo    FenceInfo
		last       *Node
		points     []factorable
	)
	for node, ans := range n.ancestorsAndNamespaces() {
		node.walk(fenceSeen, false, last, func(d *Node, dns pathid.NamespaceSet, fi FenceInfo) bool {
			cns := namespaces.Union(dns)
			if d.PathID != nil && !d.IsGroup && pathsEqual(d.PathID, id, cns) {
				points = append(points, factorable{
					existing:   d,
					point:      node,
					currentNS:  namespaces,
					existingNS: dns,
					finfo:      fi.Or(upFinfo),
					unnest:     unnestSeen,
					nodeFenced: fenceSeen,
				})
			}
			return true
		})

		namespaces = namespaces.Union(ans)
		unnestSeen = unnestSeen || node.UnnestFence
		fenceSeen = fenceSeen || node.Fenced
		if node != n {
			upFinfo = upFinfo.Or(node.fenceInfoEx(id, namespaces))
		}
		last = node
	}
	return points
}

// Collapse removes n from the tree and attaches its children to its
// parent, factoring them with what the parent already sees.
func (n *Node) Collapse(span diag.Span, w Warner) error {
	parent := n.parent
	if parent == nil {
		return diag.NewInternalError("cannot collapse the root scope node")
	}
	subtree := &Node{Fenced: true, Namespaces: n.Namespaces}
	for _, c := range slices.Clone(n.children) {
		c.setParent(subtree)
	}
	n.Remove()
	return parent.attachSubtree(subtree, span, false, w)
}

// Unnest removes a speculative fence, attaching its contents to the
// parent.
func (n *Node) Unnest(span diag.Span, w Warner) error {
	if !n.Fenced || n.PathID != nil {
		return diag.NewInternalError("cannot unnest %s: not a fence", n)
	}
	return n.Collapse(span, w)
}

// MarkAsOptional flags n as an OPTIONAL argument scope.
func (n *Node) MarkAsOptional() { n.Optional = true }

// IsOptional reports whether the visible node of id is optional.
func (n *Node) IsOptional(id *pathid.PathID) bool {
	if v := n.FindVisible(id); v != nil {
		return v.Optional
	}
	return false
}

func (n *Node) isOptionalUpto(ancestor *Node) bool {
	for a := n; a != nil && a != ancestor; a = a.parent {
		if a.Optional {
			return true
		}
	}
	return false
}

func (n *Node) isWarnUpto(ancestor *Node) bool {
	for a := n; a != nil && a != ancestor; a = a.parent {
		if a.Warn {
			return true
		}
	}
	return false
}

// AddNamespaces adds ns, minus what ancestors already declare.
func (n *Node) AddNamespaces(ns pathid.NamespaceSet) {
	n.Namespaces = n.Namespaces.Union(ns.Minus(n.EffectiveNamespaces()))
}

// EffectiveNamespaces is the union of the namespaces of n and its
// ancestors.
func (n *Node) EffectiveNamespaces() pathid.NamespaceSet {
	var out pathid.NamespaceSet
	for _, ns := range n.ancestorsAndNamespaces() {
		out = ns
	}
	return out
}

// IsEmpty reports whether the subtree holds no paths.
func (n *Node) IsEmpty() bool {
	if n.PathID != nil {
		return false
	}
	for _, c := range n.children {
		if !c.IsEmpty() {
			return false
		}
	}
	return true
}

// FindVisibleEx finds the node of id visible from n, along with the fence
// info of the nodes crossed and the namespaces collected on the way.
// Group nodes are found only with allowGroup.
func (n *Node) FindVisibleEx(id *pathid.PathID, allowGroup bool) (*Node, FenceInfo, pathid.NamespaceSet) {
	var (
		namespaces pathid.NamespaceSet
		found      *Node
		crossed    []*Node
	)
	for node, ans := range n.ancestorsAndNamespaces() {
		if node.PathID != nil && pathsEqual(node.PathID, id, namespaces) {
			found = node
			break
		}
		for _, c := range node.children {
			if c.PathID != nil && pathsEqual(c.PathID, id, namespaces) {
				found = c
				break
			}
		}
		if found != nil {
			break
		}
		namespaces = namespaces.Union(ans)
		if node != n {
			crossed = append(crossed, node)
		}
	}

	var fi FenceInfo
	for _, c := range crossed {
		fi = fi.Or(c.fenceInfoEx(id, namespaces))
	}
	if found != nil && found.IsGroup && !allowGroup {
		found = nil
	}
	return found, fi, namespaces
}

// FindVisible returns the node of id visible from n. A path found only
// across a factoring fence that does not allow-list it is not visible.
func (n *Node) FindVisible(id *pathid.PathID) *Node {
	found, fi, _ := n.FindVisibleEx(id, false)
	if fi.FactoringFence {
		return nil
	}
	return found
}

// IsVisible reports whether id is visible from n.
func (n *Node) IsVisible(id *pathid.PathID) bool {
	return n.FindVisible(id) != nil
}

// IsAnyPrefixVisible reports whether id or any of its prefixes is
// visible.
func (n *Node) IsAnyPrefixVisible(id *pathid.PathID) bool {
	for _, p := range id.IterPrefixes(false) {
		if n.FindVisible(p) != nil {
			return true
		}
	}
	return false
}

// FindChild finds a direct child with path id. inBranches also searches
// unfenced branches; pfxWithInvariantCard searches beneath type
// intersections, whose cardinality does not depend on prefix
// visibility.
func (n *Node) FindChild(id *pathid.PathID, inBranches, pfxWithInvariantCard bool) *Node {
	for _, c := range n.children {
		if c.PathID != nil && c.PathID.Equal(id) {
			return c
		}
		if (inBranches && c.PathID == nil && !c.Fenced) ||
			(pfxWithInvariantCard && c.PathID != nil && c.PathID.IsTypeIntersectionPath()) {
			if d := c.FindChild(id, true, pfxWithInvariantCard); d != nil {
				return d
			}
		}
	}
	return nil
}

// FindDescendant returns the first strict descendant with path id, top
// first.
func (n *Node) FindDescendant(id *pathid.PathID) *Node {
	var found *Node
	n.walk(false, true, nil, func(d *Node, dns pathid.NamespaceSet, _ FenceInfo) bool {
		if d.PathID != nil && pathsEqual(d.PathID, id, dns) {
			found = d
			return false
		}
		return true
	})
	return found
}

// FindDescendants returns every strict descendant with path id.
func (n *Node) FindDescendants(id *pathid.PathID) []*Node {
	var out []*Node
	n.walk(false, true, nil, func(d *Node, dns pathid.NamespaceSet, _ FenceInfo) bool {
		if d.PathID != nil && pathsEqual(d.PathID, id, dns) {
			out = append(out, d)
		}
		return true
	})
	return out
}

// FindByUniqueID returns the node of the subtree carrying uid.
func (n *Node) FindByUniqueID(uid int) *Node {
	for d := range n.Descendants() {
		if d.UniqueID == uid {
			return d
		}
	}
	return nil
}

// ValidateUniqueIDs checks that no unique id is used twice in the tree.
func (n *Node) ValidateUniqueIDs() error {
	seen := make(map[int]bool)
	var dupes []int
	for d := range n.Root().Descendants() {
		if d.UniqueID == 0 {
			continue
		}
		if seen[d.UniqueID] && !slices.Contains(dupes, d.UniqueID) {
			dupes = append(dupes, d.UniqueID)
		}
		seen[d.UniqueID] = true
	}
	if len(dupes) > 0 {
		slices.Sort(dupes)
		return diag.NewInternalError("duplicate scope node unique ids %v", dupes)
	}
	return nil
}

// Pformat renders the subtree as nested JSON-like text. Branches and
// fences without paths below them are omitted.
func (n *Node) Pformat() string {
	var children []string
	for _, c := range n.children {
		if cf := c.Pformat(); cf != "" {
			children = append(children, cf)
		}
	}
	if len(children) > 0 {
		return fmt.Sprintf("%q: {\n%s\n}", n.Name(), indent(strings.Join(children, ",\n"), "    "))
	}
	if n.PathID != nil {
		return fmt.Sprintf("%q", n.Name())
	}
	return ""
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if strings.TrimSpace(l) != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}

func pathsEqual(a, b *pathid.PathID, ns pathid.NamespaceSet) bool {
	if len(ns) > 0 {
		a = a.StripNamespace(ns)
		b = b.StripNamespace(ns)
	}
	return a.Equal(b)
}
