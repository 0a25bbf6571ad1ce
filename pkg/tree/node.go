package tree

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Standard icon ids.
const (
	IconKey        = 0
	IconRecycleBin = 43
	IconFolder     = 48
)

// Node is either a *Group or an *Entry.
type Node interface {
	UUID() uuid.UUID
	// Parent returns the UUID of the containing group, or uuid.Nil for the root group.
	Parent() uuid.UUID
	Times() *TimeInfo
	base() *nodeBase
}

type nodeBase struct {
	id       uuid.UUID
	parent   uuid.UUID
	attached bool
	times    TimeInfo
	// IconID is the index of a standard icon.
	IconID int
	// CustomIconID references a custom icon in MetaData, or is uuid.Nil.
	CustomIconID uuid.UUID
	CustomData   CustomData
}

func newNodeBase(id uuid.UUID, icon int) nodeBase {
	if id == uuid.Nil {
		id = uuid.New()
	}
	return nodeBase{id: id, times: NewTimeInfo(), IconID: icon}
}

func (n *nodeBase) UUID() uuid.UUID {
	return n.id
}

// SetUUID changes the identity of a node that isn't part of a Tree yet.
func (n *nodeBase) SetUUID(id uuid.UUID) error {
	if n.attached {
		return ErrAttached
	}
	if id == uuid.Nil {
		return fmt.Errorf("cannot use the nil UUID for a node")
	}
	n.id = id
	return nil
}

func (n *nodeBase) Parent() uuid.UUID {
	return n.parent
}

func (n *nodeBase) Times() *TimeInfo {
	return &n.times
}

func (n *nodeBase) base() *nodeBase {
	return n
}

func (n *nodeBase) equal(other *nodeBase) bool {
	return n.id == other.id &&
		n.parent == other.parent &&
		n.times.Equal(other.times) &&
		n.IconID == other.IconID &&
		n.CustomIconID == other.CustomIconID &&
		n.CustomData.Equal(other.CustomData)
}

// CustomItem is a plugin defined key/value pair.
type CustomItem struct {
	Key          string
	Value        string
	LastModified time.Time
}

// CustomData is an ordered list of plugin data.
type CustomData []CustomItem

// Get returns the value for the key.
func (c CustomData) Get(key string) (string, bool) {
	for _, it := range c {
		if it.Key == key {
			return it.Value, true
		}
	}
	return "", false
}

// Set adds or replaces the value for the key.
func (c *CustomData) Set(key, value string) {
	for i, it := range *c {
		if it.Key == key {
			(*c)[i].Value = value
			(*c)[i].LastModified = Now()
			return
		}
	}
	*c = append(*c, CustomItem{Key: key, Value: value, LastModified: Now()})
}

func (c CustomData) clone() CustomData {
	if c == nil {
		return nil
	}
	return append(CustomData(nil), c...)
}

func (c CustomData) Equal(other CustomData) bool {
	if len(c) != len(other) {
		return false
	}
	for i := range c {
		if c[i].Key != other[i].Key || c[i].Value != other[i].Value || !c[i].LastModified.Equal(other[i].LastModified) {
			return false
		}
	}
	return true
}
