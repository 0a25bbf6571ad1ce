package document

import (
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/saylorsolutions/gokdbx/pkg/protect"
	"github.com/saylorsolutions/gokdbx/pkg/tree"
)

type encoder struct {
	x      *xml.Encoder
	stream *protect.Stream
	t      *tree.Tree
	index  map[tree.Digest]int
	err    error

	// plain writes protected values in the clear and embeds attachments in Meta.
	plain    bool
	embedded []Binary
}

func newEncoder(w io.Writer, t *tree.Tree) *encoder {
	e := &encoder{
		x:     xml.NewEncoder(w),
		t:     t,
		index: map[tree.Digest]int{},
	}
	e.x.Indent("", "\t")
	return e
}

// Encode writes the tree as a document, protecting values with the stream.
// The returned binaries must be stored alongside the document in the returned order, since the document refers to
// them by index.
func Encode(w io.Writer, t *tree.Tree, stream *protect.Stream) ([]Binary, error) {
	e := newEncoder(w, t)
	e.stream = stream
	binaries := e.indexBinaries()
	if err := e.document(); err != nil {
		return nil, err
	}
	return binaries, nil
}

// EncodePlain writes the tree as a standalone document that isn't protected in any way.
// Protected values are written in the clear and marked ProtectInMemory="True", and attachments are embedded in Meta.
// This is the layout KeePass uses for XML export, and DecodePlain reads it back.
func EncodePlain(w io.Writer, t *tree.Tree) error {
	e := newEncoder(w, t)
	e.plain = true
	e.embedded = e.indexBinaries()
	return e.document()
}

// DecodePlain reads a document written by EncodePlain, or exported as XML by KeePass.
// Values marked Protected="True" can't be read without an inner stream and fail with ErrMalformedDocument.
func DecodePlain(r io.Reader) (*tree.Tree, error) {
	return Decode(r, nil, nil)
}

func (e *encoder) indexBinaries() []Binary {
	pool := e.t.Binaries()
	var binaries []Binary
	for _, d := range pool.Digests() {
		if pool.RefCount(d) == 0 {
			continue
		}
		data, _ := pool.Get(d)
		e.index[d] = len(binaries)
		binaries = append(binaries, Binary{Protected: pool.Protected(d), Data: data})
	}
	return binaries
}

func (e *encoder) document() error {
	e.token(xml.ProcInst{Target: "xml", Inst: []byte(`version="1.0" encoding="utf-8" standalone="yes"`)})
	e.start("KeePassFile")
	e.meta(e.t.Meta)
	e.start("Root")
	e.group(e.t.Root())
	e.start("DeletedObjects")
	for _, del := range e.t.Deleted() {
		e.start("DeletedObject")
		e.uuid("UUID", del.UUID)
		e.time("DeletionTime", del.DeletionTime)
		e.end("DeletedObject")
	}
	e.end("DeletedObjects")
	e.end("Root")
	e.end("KeePassFile")
	if e.err == nil {
		e.err = e.x.Flush()
	}
	return e.err
}

func (e *encoder) token(tok xml.Token) {
	if e.err != nil {
		return
	}
	if err := e.x.EncodeToken(tok); err != nil {
		e.err = fmt.Errorf("failed to write document: %w", err)
	}
}

func (e *encoder) start(name string, attrs ...xml.Attr) {
	e.token(xml.StartElement{Name: xml.Name{Local: name}, Attr: attrs})
}

func (e *encoder) end(name string) {
	e.token(xml.EndElement{Name: xml.Name{Local: name}})
}

func (e *encoder) text(name, value string, attrs ...xml.Attr) {
	if e.err == nil && !isXMLText(value) {
		e.err = fmt.Errorf("%w: '%s' contains characters that can't be stored in a document", ErrMalformedDocument, name)
		return
	}
	e.start(name, attrs...)
	if value != "" {
		e.token(xml.CharData(value))
	}
	e.end(name)
}

func (e *encoder) protected(name, value string) {
	if e.err != nil {
		return
	}
	if e.plain {
		e.text(name, value, protectInMemory)
		return
	}
	if e.stream == nil {
		e.err = fmt.Errorf("%w: protected value without an inner stream", ErrMalformedDocument)
		return
	}
	enc := e.stream.Process([]byte(value))
	e.text(name, base64.StdEncoding.EncodeToString(enc), xml.Attr{Name: xml.Name{Local: "Protected"}, Value: "True"})
}

var protectInMemory = xml.Attr{Name: xml.Name{Local: "ProtectInMemory"}, Value: "True"}

// isXMLText reports whether s is valid UTF-8 made only of characters allowed in XML 1.0.
// encoding/xml would otherwise replace anything else with U+FFFD.
func isXMLText(s string) bool {
	if !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
		case r >= 0x20 && r <= 0xD7FF:
		case r >= 0xE000 && r <= 0xFFFD:
		case r >= 0x10000 && r <= 0x10FFFF:
		default:
			return false
		}
	}
	return true
}

func (e *encoder) uuid(name string, id uuid.UUID) {
	e.text(name, formatUUID(id))
}

func (e *encoder) time(name string, t time.Time) {
	e.text(name, formatTime(t))
}

func (e *encoder) bool(name string, b bool) {
	e.text(name, formatBool(b))
}

func (e *encoder) int(name string, n int64) {
	e.text(name, strconv.FormatInt(n, 10))
}

func (e *encoder) meta(m *tree.MetaData) {
	e.start("Meta")
	e.text("Generator", m.Generator)
	e.time("SettingsChanged", m.SettingsChanged)
	e.text("DatabaseName", m.DatabaseName)
	e.time("DatabaseNameChanged", m.DatabaseNameChanged)
	e.text("DatabaseDescription", m.DatabaseDescription)
	e.time("DatabaseDescriptionChanged", m.DatabaseDescriptionChanged)
	e.text("DefaultUserName", m.DefaultUserName)
	e.time("DefaultUserNameChanged", m.DefaultUserNameChanged)
	e.int("MaintenanceHistoryDays", int64(m.MaintenanceHistoryDays))
	e.text("Color", m.Color)
	e.time("MasterKeyChanged", m.MasterKeyChanged)
	e.int("MasterKeyChangeRec", m.MasterKeyChangeRec)
	e.int("MasterKeyChangeForce", m.MasterKeyChangeForce)

	e.start("MemoryProtection")
	e.bool("ProtectTitle", m.MemoryProtection.ProtectTitle)
	e.bool("ProtectUserName", m.MemoryProtection.ProtectUserName)
	e.bool("ProtectPassword", m.MemoryProtection.ProtectPassword)
	e.bool("ProtectURL", m.MemoryProtection.ProtectURL)
	e.bool("ProtectNotes", m.MemoryProtection.ProtectNotes)
	e.end("MemoryProtection")

	if len(m.CustomIcons) > 0 {
		e.start("CustomIcons")
		for _, icon := range m.CustomIcons {
			e.start("Icon")
			e.uuid("UUID", icon.UUID)
			e.text("Data", base64.StdEncoding.EncodeToString(icon.Data))
			if icon.Name != "" {
				e.text("Name", icon.Name)
			}
			if !icon.LastModifiedTime.IsZero() {
				e.time("LastModificationTime", icon.LastModifiedTime)
			}
			e.end("Icon")
		}
		e.end("CustomIcons")
	}

	e.bool("RecycleBinEnabled", m.RecycleBinEnabled)
	e.uuid("RecycleBinUUID", m.RecycleBinUUID)
	e.time("RecycleBinChanged", m.RecycleBinChanged)
	e.uuid("EntryTemplatesGroup", m.EntryTemplatesGroup)
	e.time("EntryTemplatesGroupChanged", m.EntryTemplatesGroupChanged)
	e.int("HistoryMaxItems", int64(m.HistoryMaxItems))
	e.int("HistoryMaxSize", m.HistoryMaxSize)
	e.uuid("LastSelectedGroup", m.LastSelectedGroup)
	e.uuid("LastTopVisibleGroup", m.LastTopVisibleGroup)
	if len(e.embedded) > 0 {
		e.start("Binaries")
		for i, b := range e.embedded {
			attrs := []xml.Attr{{Name: xml.Name{Local: "ID"}, Value: strconv.Itoa(i)}}
			if b.Protected {
				attrs = append(attrs, protectInMemory)
			}
			e.text("Binary", base64.StdEncoding.EncodeToString(b.Data), attrs...)
		}
		e.end("Binaries")
	}
	e.customData(m.CustomData)
	e.end("Meta")
}

func (e *encoder) customData(data tree.CustomData) {
	if len(data) == 0 {
		return
	}
	e.start("CustomData")
	for _, it := range data {
		e.start("Item")
		e.text("Key", it.Key)
		e.text("Value", it.Value)
		if !it.LastModified.IsZero() {
			e.time("LastModificationTime", it.LastModified)
		}
		e.end("Item")
	}
	e.end("CustomData")
}

func (e *encoder) times(ti *tree.TimeInfo) {
	e.start("Times")
	e.time("CreationTime", ti.Created)
	e.time("LastModificationTime", ti.Modified)
	e.time("LastAccessTime", ti.Accessed)
	e.time("ExpiryTime", ti.Expiry)
	e.bool("Expires", ti.Expires)
	e.text("UsageCount", strconv.FormatUint(ti.UsageCount, 10))
	e.time("LocationChanged", ti.LocationChanged)
	e.end("Times")
}

func (e *encoder) group(g *tree.Group) {
	e.start("Group")
	e.uuid("UUID", g.UUID())
	e.text("Name", g.Name)
	e.text("Notes", g.Notes)
	e.int("IconID", int64(g.IconID))
	if g.CustomIconID != uuid.Nil {
		e.uuid("CustomIconUUID", g.CustomIconID)
	}
	e.times(g.Times())
	e.bool("IsExpanded", g.IsExpanded)
	e.text("DefaultAutoTypeSequence", g.DefaultAutoTypeSequence)
	e.text("EnableAutoType", formatNullableBool(g.EnableAutoType))
	e.text("EnableSearching", formatNullableBool(g.EnableSearching))
	e.uuid("LastTopVisibleEntry", g.LastTopVisibleEntry)
	if g.Tags != "" {
		e.text("Tags", g.Tags)
	}
	e.customData(g.CustomData)

	children, err := e.t.Children(g.UUID())
	if err != nil && e.err == nil {
		e.err = err
	}
	for _, c := range children {
		switch c := c.(type) {
		case *tree.Group:
			e.group(c)
		case *tree.Entry:
			e.entry(c, true)
		}
	}
	e.end("Group")
}

func (e *encoder) entry(entry *tree.Entry, withHistory bool) {
	e.start("Entry")
	e.uuid("UUID", entry.UUID())
	e.int("IconID", int64(entry.IconID))
	if entry.CustomIconID != uuid.Nil {
		e.uuid("CustomIconUUID", entry.CustomIconID)
	}
	e.text("ForegroundColor", entry.ForegroundColor)
	e.text("BackgroundColor", entry.BackgroundColor)
	e.text("OverrideURL", entry.OverrideURL)
	e.text("Tags", entry.Tags)
	e.times(entry.Times())

	for _, a := range entry.Attributes() {
		e.start("String")
		e.text("Key", a.Key)
		if a.Protected {
			e.protected("Value", a.Value())
		} else {
			e.text("Value", a.Value())
		}
		e.end("String")
	}

	for _, b := range entry.Binaries() {
		idx, ok := e.index[b.Digest]
		if !ok && e.err == nil {
			e.err = fmt.Errorf("%w: %s", ErrUnresolvedBinaryReference, b.Digest)
		}
		e.start("Binary")
		e.text("Key", b.Name)
		e.text("Value", "", xml.Attr{Name: xml.Name{Local: "Ref"}, Value: strconv.Itoa(idx)})
		e.end("Binary")
	}

	e.start("AutoType")
	e.bool("Enabled", entry.AutoType.Enabled)
	e.int("DataTransferObfuscation", int64(entry.AutoType.DataTransferObfuscation))
	if entry.AutoType.DefaultSequence != "" {
		e.text("DefaultSequence", entry.AutoType.DefaultSequence)
	}
	for _, assoc := range entry.AutoType.Associations {
		e.start("Association")
		e.text("Window", assoc.Window)
		e.text("KeystrokeSequence", assoc.Sequence)
		e.end("Association")
	}
	e.end("AutoType")
	e.customData(entry.CustomData)

	if withHistory {
		e.start("History")
		for _, h := range entry.History() {
			e.entry(h, false)
		}
		e.end("History")
	}
	e.end("Entry")
}
