package tree

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DeletedNode records the removal of a node so that merging tools can propagate it.
type DeletedNode struct {
	UUID         uuid.UUID
	DeletionTime time.Time
}

// Tree is a complete database document.
type Tree struct {
	Meta *MetaData

	root    uuid.UUID
	nodes   map[uuid.UUID]Node
	pool    *BinaryPool
	deleted []DeletedNode
}

// New creates an empty tree with default MetaData and a root group with the given name.
func New(name string) *Tree {
	return NewWithRoot(NewMetaData(name), NewGroup(name))
}

// NewWithRoot creates a tree from existing MetaData and an empty root group.
func NewWithRoot(meta *MetaData, root *Group) *Tree {
	if meta == nil {
		meta = NewMetaData(root.Name)
	}
	root.parent = uuid.Nil
	root.children = nil
	root.attached = true
	return &Tree{
		Meta:  meta,
		root:  root.id,
		nodes: map[uuid.UUID]Node{root.id: root},
		pool:  NewBinaryPool(),
	}
}

// Root returns the root group.
func (t *Tree) Root() *Group {
	return t.nodes[t.root].(*Group)
}

// Binaries returns the attachment pool.
func (t *Tree) Binaries() *BinaryPool {
	return t.pool
}

// Len returns the number of groups and entries, including the root.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Get returns the node with the given UUID.
func (t *Tree) Get(id uuid.UUID) (Node, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// Group returns the group with the given UUID.
func (t *Tree) Group(id uuid.UUID) (*Group, error) {
	n, ok := t.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	g, ok := n.(*Group)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotGroup, id)
	}
	return g, nil
}

// Entry returns the entry with the given UUID.
func (t *Tree) Entry(id uuid.UUID) (*Entry, error) {
	n, ok := t.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e, ok := n.(*Entry)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotEntry, id)
	}
	return e, nil
}

// Children returns the direct children of a group in order.
func (t *Tree) Children(id uuid.UUID) ([]Node, error) {
	g, err := t.Group(id)
	if err != nil {
		return nil, err
	}
	nodes := make([]Node, len(g.children))
	for i, c := range g.children {
		nodes[i] = t.nodes[c]
	}
	return nodes, nil
}

// WalkFunc is called for each node with its depth below the starting node.
type WalkFunc = func(n Node, depth int) error

// Walk visits every node depth first in document order, starting with the root.
// Walking stops at the first error, which is returned.
func (t *Tree) Walk(fn WalkFunc) error {
	return t.WalkFrom(t.root, fn)
}

// WalkFrom visits the node with the given UUID and all of its descendants.
func (t *Tree) WalkFrom(id uuid.UUID, fn WalkFunc) error {
	n, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t.walk(n, 0, fn)
}

func (t *Tree) walk(n Node, depth int, fn WalkFunc) error {
	if err := fn(n, depth); err != nil {
		return err
	}
	g, ok := n.(*Group)
	if !ok {
		return nil
	}
	for _, c := range g.children {
		if err := t.walk(t.nodes[c], depth+1, fn); err != nil {
			return err
		}
	}
	return nil
}

// FindEntries returns all entries matching the predicate in document order.
func (t *Tree) FindEntries(match func(*Entry) bool) []*Entry {
	var found []*Entry
	_ = t.Walk(func(n Node, _ int) error {
		if e, ok := n.(*Entry); ok && match(e) {
			found = append(found, e)
		}
		return nil
	})
	return found
}

// Path returns the names of the groups from the root down to the node's parent.
func (t *Tree) Path(id uuid.UUID) ([]string, error) {
	n, ok := t.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	var path []string
	for p := n.Parent(); p != uuid.Nil; p = t.nodes[p].Parent() {
		path = append([]string{t.nodes[p].(*Group).Name}, path...)
	}
	return path, nil
}

func (t *Tree) checkNew(id uuid.UUID) error {
	if _, dup := t.nodes[id]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateUUID, id)
	}
	return nil
}

// AddGroup appends an empty group to the children of the parent group.
func (t *Tree) AddGroup(parent uuid.UUID, g *Group) error {
	p, err := t.Group(parent)
	if err != nil {
		return err
	}
	if err := t.checkNew(g.id); err != nil {
		return err
	}
	g.parent = parent
	g.children = nil
	g.attached = true
	g.times.Normalize()
	p.children = append(p.children, g.id)
	t.nodes[g.id] = g
	return nil
}

// AddEntry appends an entry to the children of the parent group.
// Every attachment the entry and its history refer to must already be in the pool.
func (t *Tree) AddEntry(parent uuid.UUID, e *Entry) error {
	p, err := t.Group(parent)
	if err != nil {
		return err
	}
	if err := t.checkNew(e.id); err != nil {
		return err
	}
	refs := e.allRefs()
	if err := t.checkRefs(refs); err != nil {
		return err
	}
	for _, d := range refs {
		t.pool.retain(d)
	}
	for _, h := range e.history {
		h.parent = uuid.Nil
		h.times.Normalize()
	}
	e.times.Normalize()
	e.parent = parent
	e.attached = true
	p.children = append(p.children, e.id)
	t.nodes[e.id] = e
	return nil
}

func (t *Tree) checkRefs(refs []Digest) error {
	for _, d := range refs {
		if !t.pool.Has(d) {
			return fmt.Errorf("%w: %s", ErrUnresolvedBinaryReference, d)
		}
	}
	return nil
}

// Edit applies fn to a working copy of the entry.
// If fn succeeds then the previous state is appended to the entry's history, the working copy replaces the entry and
// history is pruned. If fn fails then the entry is left untouched and the error is returned.
// The UUID, parent and history of the working copy are managed by the Tree and changes to them are ignored.
func (t *Tree) Edit(id uuid.UUID, fn func(e *Entry) error) error {
	e, err := t.Entry(id)
	if err != nil {
		return err
	}
	work := e.clone()
	if err := fn(work); err != nil {
		return err
	}
	work.id = e.id
	var refs []Digest
	for _, b := range work.binaries {
		refs = append(refs, b.Digest)
	}
	if err := t.checkRefs(refs); err != nil {
		return err
	}

	// The snapshot takes over the references of the previous state.
	snap := e.snapshot()
	for _, d := range refs {
		t.pool.retain(d)
	}
	work.parent = e.parent
	work.history = append(append([]*Entry(nil), e.history...), snap)
	work.times.Normalize()
	work.times.Touch()
	*e = *work
	t.pruneHistory(e)
	return nil
}

// SetAttribute edits an attribute, keeping its protected flag.
// New attributes are protected according to MetaData.MemoryProtection.
func (t *Tree) SetAttribute(id uuid.UUID, key, value string) error {
	return t.Edit(id, func(e *Entry) error {
		if _, ok := e.Attribute(key); ok {
			e.Set(key, value)
			return nil
		}
		e.SetProtected(key, value, t.Meta.MemoryProtection.Protects(key))
		return nil
	})
}

// SetProtected edits an attribute with an explicit protected flag.
func (t *Tree) SetProtected(id uuid.UUID, key, value string, protected bool) error {
	return t.Edit(id, func(e *Entry) error {
		e.SetProtected(key, value, protected)
		return nil
	})
}

// Attach stores data in the pool and references it from the entry under the given name, replacing any attachment
// with the same name.
func (t *Tree) Attach(id uuid.UUID, name string, data []byte) error {
	if _, err := t.Entry(id); err != nil {
		return err
	}
	d := t.pool.Put(data, false)
	err := t.Edit(id, func(e *Entry) error {
		e.SetBinaryRef(name, d)
		return nil
	})
	if err != nil && t.pool.RefCount(d) == 0 {
		t.pool.evict(d)
	}
	return err
}

// Detach removes the named attachment from the entry.
// The content stays in the pool while history snapshots still refer to it.
func (t *Tree) Detach(id uuid.UUID, name string) error {
	return t.Edit(id, func(e *Entry) error {
		if !e.RemoveBinaryRef(name) {
			return fmt.Errorf("%w: attachment '%s'", ErrNotFound, name)
		}
		return nil
	})
}

func (t *Tree) pruneHistory(e *Entry) {
	if maxAge := t.Meta.HistoryMaxAge(); maxAge > 0 {
		cutoff := Now().Add(-maxAge)
		for len(e.history) > 0 && e.history[0].times.Modified.Before(cutoff) {
			t.dropOldest(e)
		}
	}
	if limit := t.Meta.HistoryMaxItems; limit >= 0 {
		for len(e.history) > limit {
			t.dropOldest(e)
		}
	}
	if limit := t.Meta.HistoryMaxSize; limit >= 0 {
		for len(e.history) > 0 && t.historySize(e) > limit {
			t.dropOldest(e)
		}
	}
}

func (t *Tree) historySize(e *Entry) int64 {
	var total int64
	for _, h := range e.history {
		total += h.size(t.pool)
	}
	return total
}

func (t *Tree) dropOldest(e *Entry) {
	oldest := e.history[0]
	e.history = e.history[1:]
	for _, b := range oldest.binaries {
		t.pool.release(b.Digest)
	}
}

// isWithin reports whether id is the ancestor itself or one of its descendants.
func (t *Tree) isWithin(id, ancestor uuid.UUID) bool {
	for p := id; p != uuid.Nil; {
		if p == ancestor {
			return true
		}
		n, ok := t.nodes[p]
		if !ok {
			return false
		}
		p = n.Parent()
	}
	return false
}

// Move detaches a node and inserts it into the new parent at index.
// The index is applied after the node is detached. A negative or out of range index appends.
func (t *Tree) Move(id, parent uuid.UUID, index int) error {
	if id == t.root {
		return ErrRootGroup
	}
	n, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	dest, err := t.Group(parent)
	if err != nil {
		return err
	}
	if _, isGroup := n.(*Group); isGroup && t.isWithin(parent, id) {
		return ErrCycle
	}
	src := t.nodes[n.Parent()].(*Group)
	src.removeChild(id)
	dest.insertChild(id, index)
	n.base().parent = parent
	n.Times().LocationChanged = Now()
	return nil
}

// Remove deletes a node and all of its descendants, recording a DeletedNode for each of them.
func (t *Tree) Remove(id uuid.UUID) error {
	if id == t.root {
		return ErrRootGroup
	}
	n, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	var removed []Node
	_ = t.walk(n, 0, func(c Node, _ int) error {
		removed = append(removed, c)
		return nil
	})

	t.nodes[n.Parent()].(*Group).removeChild(id)
	now := Now()
	for _, c := range removed {
		delete(t.nodes, c.UUID())
		c.base().attached = false
		if e, ok := c.(*Entry); ok {
			for _, d := range e.allRefs() {
				t.pool.release(d)
			}
		}
		if c.UUID() == t.Meta.RecycleBinUUID {
			t.Meta.RecycleBinUUID = uuid.Nil
			t.Meta.RecycleBinChanged = now
		}
		t.deleted = append(t.deleted, DeletedNode{UUID: c.UUID(), DeletionTime: now})
	}
	return nil
}

// Recycle moves a node into the recycle bin, creating the bin if needed.
// If the recycle bin is disabled, or the node is already in it, then the node is removed instead.
func (t *Tree) Recycle(id uuid.UUID) error {
	if id == t.root {
		return ErrRootGroup
	}
	if _, ok := t.nodes[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	binID := t.Meta.RecycleBinUUID
	if !t.Meta.RecycleBinEnabled || (binID != uuid.Nil && (t.isWithin(id, binID) || t.isWithin(binID, id))) {
		return t.Remove(id)
	}
	bin, err := t.RecycleBin(true)
	if err != nil {
		return err
	}
	return t.Move(id, bin.id, -1)
}

// RecycleBin returns the recycle bin group.
// If it doesn't exist and create is true then it's added to the root group.
func (t *Tree) RecycleBin(create bool) (*Group, error) {
	if bin, err := t.Group(t.Meta.RecycleBinUUID); err == nil {
		return bin, nil
	}
	if !create {
		return nil, fmt.Errorf("%w: recycle bin", ErrNotFound)
	}
	bin := NewGroup(RecycleBinName)
	bin.IconID = IconRecycleBin
	autoType, searching := false, false
	bin.EnableAutoType = &autoType
	bin.EnableSearching = &searching
	if err := t.AddGroup(t.root, bin); err != nil {
		return nil, err
	}
	t.Meta.RecycleBinUUID = bin.id
	t.Meta.RecycleBinChanged = Now()
	return bin, nil
}

// Deleted returns the deletion records in the order they were made.
func (t *Tree) Deleted() []DeletedNode {
	return append([]DeletedNode(nil), t.deleted...)
}

// AddDeleted appends an existing deletion record, as read from a file.
func (t *Tree) AddDeleted(d DeletedNode) {
	t.deleted = append(t.deleted, d)
}

// Equal reports whether both trees have the same structure and content.
func (t *Tree) Equal(other *Tree) bool {
	if t == nil || other == nil {
		return t == other
	}
	if t.root != other.root ||
		len(t.nodes) != len(other.nodes) ||
		len(t.deleted) != len(other.deleted) ||
		!t.Meta.equal(other.Meta) ||
		!t.pool.equal(other.pool) {
		return false
	}
	for i, d := range t.deleted {
		o := other.deleted[i]
		if d.UUID != o.UUID || !d.DeletionTime.Equal(o.DeletionTime) {
			return false
		}
	}
	for id, n := range t.nodes {
		o, ok := other.nodes[id]
		if !ok {
			return false
		}
		switch n := n.(type) {
		case *Group:
			og, ok := o.(*Group)
			if !ok || !n.equal(og) {
				return false
			}
		case *Entry:
			oe, ok := o.(*Entry)
			if !ok || !n.equal(oe) {
				return false
			}
		}
	}
	return true
}
