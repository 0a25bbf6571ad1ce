package tree

import (
	"github.com/google/uuid"
)

// Group is a container of groups and entries.
type Group struct {
	nodeBase
	Name                    string
	Notes                   string
	IsExpanded              bool
	DefaultAutoTypeSequence string
	// EnableAutoType and EnableSearching are nil when inherited from the parent.
	EnableAutoType      *bool
	EnableSearching     *bool
	LastTopVisibleEntry uuid.UUID
	Tags                string

	children []uuid.UUID
}

// NewGroup creates a group with a random UUID.
func NewGroup(name string) *Group {
	return NewGroupWithID(uuid.Nil, name)
}

// NewGroupWithID creates a group with the given UUID, or a random one if id is uuid.Nil.
func NewGroupWithID(id uuid.UUID, name string) *Group {
	return &Group{
		nodeBase:   newNodeBase(id, IconFolder),
		Name:       name,
		IsExpanded: true,
	}
}

// Children returns the UUIDs of the direct children in order.
func (g *Group) Children() []uuid.UUID {
	return append([]uuid.UUID(nil), g.children...)
}

func (g *Group) indexOf(id uuid.UUID) int {
	for i, c := range g.children {
		if c == id {
			return i
		}
	}
	return -1
}

func (g *Group) removeChild(id uuid.UUID) {
	if i := g.indexOf(id); i >= 0 {
		g.children = append(g.children[:i], g.children[i+1:]...)
	}
}

func (g *Group) insertChild(id uuid.UUID, index int) {
	if index < 0 || index >= len(g.children) {
		g.children = append(g.children, id)
		return
	}
	g.children = append(g.children, uuid.Nil)
	copy(g.children[index+1:], g.children[index:])
	g.children[index] = id
}

func boolPtrEqual(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (g *Group) equal(other *Group) bool {
	if !g.nodeBase.equal(&other.nodeBase) ||
		g.Name != other.Name ||
		g.Notes != other.Notes ||
		g.IsExpanded != other.IsExpanded ||
		g.DefaultAutoTypeSequence != other.DefaultAutoTypeSequence ||
		!boolPtrEqual(g.EnableAutoType, other.EnableAutoType) ||
		!boolPtrEqual(g.EnableSearching, other.EnableSearching) ||
		g.LastTopVisibleEntry != other.LastTopVisibleEntry ||
		g.Tags != other.Tags ||
		len(g.children) != len(other.children) {
		return false
	}
	for i := range g.children {
		if g.children[i] != other.children[i] {
			return false
		}
	}
	return true
}
