package tree

import (
	"github.com/google/uuid"
	"github.com/saylorsolutions/gokdbx/pkg/protect"
)

// Standard attribute keys.
const (
	KeyTitle    = "Title"
	KeyUserName = "UserName"
	KeyPassword = "Password"
	KeyURL      = "URL"
	KeyNotes    = "Notes"
)

// Attribute is a named string field on an entry.
type Attribute struct {
	Key       string
	Protected bool
	plain     string
	secret    protect.Value
}

// NewAttribute creates an attribute, screening the value if it's protected.
func NewAttribute(key, value string, protected bool) Attribute {
	a := Attribute{Key: key, Protected: protected}
	if protected {
		a.secret = protect.NewValue(value)
	} else {
		a.plain = value
	}
	return a
}

// Value returns the plain text value.
func (a Attribute) Value() string {
	if a.Protected {
		return a.secret.String()
	}
	return a.plain
}

func (a Attribute) size() int {
	if a.Protected {
		return len(a.Key) + a.secret.Len()
	}
	return len(a.Key) + len(a.plain)
}

func (a Attribute) equal(other Attribute) bool {
	if a.Key != other.Key || a.Protected != other.Protected {
		return false
	}
	if a.Protected {
		return a.secret.Equal(other.secret)
	}
	return a.plain == other.plain
}

// AutoTypeAssociation binds a key sequence to a window title pattern.
type AutoTypeAssociation struct {
	Window   string
	Sequence string
}

// AutoType holds the auto-type settings of an entry.
type AutoType struct {
	Enabled                 bool
	DataTransferObfuscation int
	DefaultSequence         string
	Associations            []AutoTypeAssociation
}

func (a AutoType) clone() AutoType {
	a.Associations = append([]AutoTypeAssociation(nil), a.Associations...)
	return a
}

func (a AutoType) equal(other AutoType) bool {
	if a.Enabled != other.Enabled ||
		a.DataTransferObfuscation != other.DataTransferObfuscation ||
		a.DefaultSequence != other.DefaultSequence ||
		len(a.Associations) != len(other.Associations) {
		return false
	}
	for i := range a.Associations {
		if a.Associations[i] != other.Associations[i] {
			return false
		}
	}
	return true
}

// Entry is a single credential record.
type Entry struct {
	nodeBase
	ForegroundColor string
	BackgroundColor string
	OverrideURL     string
	Tags            string
	AutoType        AutoType

	attrs    []Attribute
	binaries []BinaryRef
	history  []*Entry
}

// NewEntry creates an entry with a random UUID and the standard attributes set to empty values.
func NewEntry() *Entry {
	e := NewEntryWithID(uuid.Nil)
	for _, key := range []string{KeyTitle, KeyUserName, KeyPassword, KeyURL, KeyNotes} {
		e.attrs = append(e.attrs, NewAttribute(key, "", key == KeyPassword))
	}
	return e
}

// NewEntryWithID creates an entry without attributes with the given UUID, or a random one if id is uuid.Nil.
func NewEntryWithID(id uuid.UUID) *Entry {
	return &Entry{
		nodeBase: newNodeBase(id, IconKey),
		AutoType: AutoType{Enabled: true},
	}
}

func (e *Entry) find(key string) int {
	for i, a := range e.attrs {
		if a.Key == key {
			return i
		}
	}
	return -1
}

// Get returns the value of the attribute, or an empty string if absent.
func (e *Entry) Get(key string) string {
	if i := e.find(key); i >= 0 {
		return e.attrs[i].Value()
	}
	return ""
}

// Attribute returns the named attribute.
func (e *Entry) Attribute(key string) (Attribute, bool) {
	if i := e.find(key); i >= 0 {
		return e.attrs[i], true
	}
	return Attribute{}, false
}

// Attributes returns all attributes in order.
func (e *Entry) Attributes() []Attribute {
	return append([]Attribute(nil), e.attrs...)
}

// Set assigns a value, keeping the protected flag of an existing attribute.
// New attributes are protected only if they're the password.
func (e *Entry) Set(key, value string) {
	protected := key == KeyPassword
	if i := e.find(key); i >= 0 {
		protected = e.attrs[i].Protected
	}
	e.SetProtected(key, value, protected)
}

// SetProtected assigns a value with an explicit protected flag.
func (e *Entry) SetProtected(key, value string, protected bool) {
	a := NewAttribute(key, value, protected)
	if i := e.find(key); i >= 0 {
		e.attrs[i] = a
		return
	}
	e.attrs = append(e.attrs, a)
}

// Delete removes an attribute and reports whether it was present.
func (e *Entry) Delete(key string) bool {
	i := e.find(key)
	if i < 0 {
		return false
	}
	e.attrs = append(e.attrs[:i], e.attrs[i+1:]...)
	return true
}

func (e *Entry) Title() string    { return e.Get(KeyTitle) }
func (e *Entry) UserName() string { return e.Get(KeyUserName) }
func (e *Entry) Password() string { return e.Get(KeyPassword) }
func (e *Entry) URL() string      { return e.Get(KeyURL) }
func (e *Entry) Notes() string    { return e.Get(KeyNotes) }

// Binaries returns the attachment references in order.
func (e *Entry) Binaries() []BinaryRef {
	return append([]BinaryRef(nil), e.binaries...)
}

// Binary returns the digest of the named attachment.
func (e *Entry) Binary(name string) (Digest, bool) {
	for _, b := range e.binaries {
		if b.Name == name {
			return b.Digest, true
		}
	}
	return Digest{}, false
}

// SetBinaryRef points the named attachment at content already in the pool.
// This is meant for codecs and Edit callbacks. The Tree validates and counts references when the entry is added or
// the edit is committed.
func (e *Entry) SetBinaryRef(name string, d Digest) {
	for i, b := range e.binaries {
		if b.Name == name {
			e.binaries[i].Digest = d
			return
		}
	}
	e.binaries = append(e.binaries, BinaryRef{Name: name, Digest: d})
}

// RemoveBinaryRef drops the named attachment reference and reports whether it was present.
func (e *Entry) RemoveBinaryRef(name string) bool {
	for i, b := range e.binaries {
		if b.Name == name {
			e.binaries = append(e.binaries[:i], e.binaries[i+1:]...)
			return true
		}
	}
	return false
}

// History returns the snapshots of previous versions, oldest first.
// Snapshots must not be modified.
func (e *Entry) History() []*Entry {
	return append([]*Entry(nil), e.history...)
}

// AppendHistory adds an existing snapshot, as read from a file.
// It's only valid before the entry is added to a Tree.
func (e *Entry) AppendHistory(snapshot *Entry) {
	e.history = append(e.history, snapshot)
}

// snapshot copies the entry without its history.
func (e *Entry) snapshot() *Entry {
	c := &Entry{
		nodeBase:        e.nodeBase,
		ForegroundColor: e.ForegroundColor,
		BackgroundColor: e.BackgroundColor,
		OverrideURL:     e.OverrideURL,
		Tags:            e.Tags,
		AutoType:        e.AutoType.clone(),
		attrs:           append([]Attribute(nil), e.attrs...),
		binaries:        append([]BinaryRef(nil), e.binaries...),
	}
	c.CustomData = e.CustomData.clone()
	c.parent = uuid.Nil
	c.attached = false
	return c
}

// clone copies the entry including its history.
func (e *Entry) clone() *Entry {
	c := e.snapshot()
	c.parent = e.parent
	c.attached = e.attached
	c.history = append([]*Entry(nil), e.history...)
	return c
}

// size approximates the stored size of the entry for history limits.
func (e *Entry) size(pool *BinaryPool) int64 {
	var n int64
	for _, a := range e.attrs {
		n += int64(a.size())
	}
	for _, b := range e.binaries {
		n += int64(len(b.Name) + pool.Size(b.Digest))
	}
	for _, it := range e.CustomData {
		n += int64(len(it.Key) + len(it.Value))
	}
	n += int64(len(e.Tags) + len(e.OverrideURL))
	return n
}

// allRefs lists the binary references of the entry and its history.
func (e *Entry) allRefs() []Digest {
	var refs []Digest
	for _, b := range e.binaries {
		refs = append(refs, b.Digest)
	}
	for _, h := range e.history {
		for _, b := range h.binaries {
			refs = append(refs, b.Digest)
		}
	}
	return refs
}

func (e *Entry) equal(other *Entry) bool {
	if !e.nodeBase.equal(&other.nodeBase) ||
		e.ForegroundColor != other.ForegroundColor ||
		e.BackgroundColor != other.BackgroundColor ||
		e.OverrideURL != other.OverrideURL ||
		e.Tags != other.Tags ||
		!e.AutoType.equal(other.AutoType) ||
		len(e.attrs) != len(other.attrs) ||
		len(e.binaries) != len(other.binaries) ||
		len(e.history) != len(other.history) {
		return false
	}
	for i := range e.attrs {
		if !e.attrs[i].equal(other.attrs[i]) {
			return false
		}
	}
	for i := range e.binaries {
		if e.binaries[i] != other.binaries[i] {
			return false
		}
	}
	for i := range e.history {
		if !e.history[i].equal(other.history[i]) {
			return false
		}
	}
	return true
}
