package document

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/saylorsolutions/gokdbx/pkg/protect"
	"github.com/saylorsolutions/gokdbx/pkg/tree"
)

type legacyBinary struct {
	id int
	Binary
}

type decoder struct {
	x          *xml.Decoder
	stream     *protect.Stream
	binaries   []Binary
	legacy     []legacyBinary
	refs       map[int]tree.Digest
	legacyRefs map[int]tree.Digest
	meta       *tree.MetaData
	t          *tree.Tree
	deleted    []tree.DeletedNode
}

// Decode reads a document, unprotecting values with the stream and resolving attachment references against
// binaries.
func Decode(r io.Reader, stream *protect.Stream, binaries []Binary) (*tree.Tree, error) {
	d := &decoder{
		x:          xml.NewDecoder(r),
		stream:     stream,
		binaries:   binaries,
		refs:       map[int]tree.Digest{},
		legacyRefs: map[int]tree.Digest{},
	}
	root, err := d.rootElement()
	if err != nil {
		return nil, err
	}
	if root.Name.Local != "KeePassFile" {
		return nil, fmt.Errorf("%w: unexpected root element '%s'", ErrMalformedDocument, root.Name.Local)
	}
	err = d.children(func(se xml.StartElement) error {
		switch se.Name.Local {
		case "Meta":
			return d.decodeMeta()
		case "Root":
			return d.decodeRoot()
		default:
			return d.skip(se)
		}
	})
	if err != nil {
		return nil, err
	}
	if d.t == nil {
		return nil, fmt.Errorf("%w: missing root group", ErrMalformedDocument)
	}
	if d.meta != nil {
		d.t.Meta = d.meta
	}
	for _, del := range d.deleted {
		d.t.AddDeleted(del)
	}
	d.t.Binaries().Compact()
	return d.t, nil
}

func (d *decoder) malformed(err error) error {
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: unexpected end of document", ErrMalformedDocument)
	}
	return fmt.Errorf("%w: %v", ErrMalformedDocument, err)
}

func (d *decoder) rootElement() (xml.StartElement, error) {
	for {
		tok, err := d.x.Token()
		if err != nil {
			return xml.StartElement{}, d.malformed(err)
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se, nil
		}
	}
}

// children calls fn for each child element until the end of the current element.
// Fn must consume the whole child element.
func (d *decoder) children(fn func(se xml.StartElement) error) error {
	for {
		tok, err := d.x.Token()
		if err != nil {
			return d.malformed(err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if err := fn(t); err != nil {
				return err
			}
		case xml.EndElement:
			return nil
		}
	}
}

// skip consumes an element that isn't understood.
// Protected values within it still consume keystream.
func (d *decoder) skip(se xml.StartElement) error {
	if attrIs(se, "Protected") {
		_, err := d.protectedBytes(se)
		return err
	}
	return d.children(d.skip)
}

func attr(se xml.StartElement, name string) (string, bool) {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

func attrIs(se xml.StartElement, name string) bool {
	v, ok := attr(se, name)
	return ok && strings.EqualFold(v, "true")
}

func (d *decoder) rawText() (string, error) {
	var sb strings.Builder
	for {
		tok, err := d.x.Token()
		if err != nil {
			return "", d.malformed(err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.StartElement:
			if err := d.skip(t); err != nil {
				return "", err
			}
		case xml.EndElement:
			return sb.String(), nil
		}
	}
}

func (d *decoder) protectedBytes(se xml.StartElement) ([]byte, error) {
	s, err := d.rawText()
	if err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid protected value in '%s'", ErrMalformedDocument, se.Name.Local)
	}
	if len(raw) == 0 {
		return raw, nil
	}
	if d.stream == nil {
		return nil, fmt.Errorf("%w: protected value without an inner stream", ErrMalformedDocument)
	}
	return d.stream.Process(raw), nil
}

// text reads the content of a value element, unprotecting it if needed.
func (d *decoder) text(se xml.StartElement) (string, error) {
	if attrIs(se, "Protected") {
		plain, err := d.protectedBytes(se)
		return string(plain), err
	}
	return d.rawText()
}

// binaryText reads base64 content, unprotecting it if needed.
func (d *decoder) binaryText(se xml.StartElement) ([]byte, error) {
	if attrIs(se, "Protected") {
		return d.protectedBytes(se)
	}
	s, err := d.rawText()
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 in '%s'", ErrMalformedDocument, se.Name.Local)
	}
	return data, nil
}

func (d *decoder) readUUID(se xml.StartElement) (uuid.UUID, error) {
	s, err := d.text(se)
	if err != nil {
		return uuid.Nil, err
	}
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, nil
	}
	return parseUUID(s)
}

func (d *decoder) readTime(se xml.StartElement) (time.Time, error) {
	s, err := d.text(se)
	if err != nil {
		return time.Time{}, err
	}
	return parseTime(s)
}

func (d *decoder) readBool(se xml.StartElement) (bool, error) {
	s, err := d.text(se)
	if err != nil {
		return false, err
	}
	return parseBool(s)
}

func (d *decoder) readNullableBool(se xml.StartElement) (*bool, error) {
	s, err := d.text(se)
	if err != nil {
		return nil, err
	}
	return parseNullableBool(s)
}

func (d *decoder) readInt(se xml.StartElement) (int64, error) {
	s, err := d.text(se)
	if err != nil {
		return 0, err
	}
	return parseInt(s)
}

func (d *decoder) readIcon(se xml.StartElement) (int, error) {
	n, err := d.readInt(se)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > math.MaxInt32 {
		return 0, fmt.Errorf("%w: icon id %d out of range", ErrMalformedDocument, n)
	}
	return int(n), nil
}

func (d *decoder) decodeMeta() error {
	m := tree.NewMetaData("")
	err := d.children(func(se xml.StartElement) error {
		var err error
		switch se.Name.Local {
		case "Generator":
			m.Generator, err = d.text(se)
		case "SettingsChanged":
			m.SettingsChanged, err = d.readTime(se)
		case "DatabaseName":
			m.DatabaseName, err = d.text(se)
		case "DatabaseNameChanged":
			m.DatabaseNameChanged, err = d.readTime(se)
		case "DatabaseDescription":
			m.DatabaseDescription, err = d.text(se)
		case "DatabaseDescriptionChanged":
			m.DatabaseDescriptionChanged, err = d.readTime(se)
		case "DefaultUserName":
			m.DefaultUserName, err = d.text(se)
		case "DefaultUserNameChanged":
			m.DefaultUserNameChanged, err = d.readTime(se)
		case "MaintenanceHistoryDays":
			var n int64
			if n, err = d.readInt(se); err == nil {
				if n < 0 || n > math.MaxUint32 {
					return fmt.Errorf("%w: maintenance history days out of range", ErrMalformedDocument)
				}
				m.MaintenanceHistoryDays = uint32(n)
			}
		case "Color":
			m.Color, err = d.text(se)
		case "MasterKeyChanged":
			m.MasterKeyChanged, err = d.readTime(se)
		case "MasterKeyChangeRec":
			m.MasterKeyChangeRec, err = d.readInt(se)
		case "MasterKeyChangeForce":
			m.MasterKeyChangeForce, err = d.readInt(se)
		case "MemoryProtection":
			err = d.decodeMemoryProtection(&m.MemoryProtection)
		case "CustomIcons":
			m.CustomIcons, err = d.decodeCustomIcons()
		case "RecycleBinEnabled":
			m.RecycleBinEnabled, err = d.readBool(se)
		case "RecycleBinUUID":
			m.RecycleBinUUID, err = d.readUUID(se)
		case "RecycleBinChanged":
			m.RecycleBinChanged, err = d.readTime(se)
		case "EntryTemplatesGroup":
			m.EntryTemplatesGroup, err = d.readUUID(se)
		case "EntryTemplatesGroupChanged":
			m.EntryTemplatesGroupChanged, err = d.readTime(se)
		case "HistoryMaxItems":
			var n int64
			if n, err = d.readInt(se); err == nil {
				m.HistoryMaxItems = int(n)
			}
		case "HistoryMaxSize":
			m.HistoryMaxSize, err = d.readInt(se)
		case "LastSelectedGroup":
			m.LastSelectedGroup, err = d.readUUID(se)
		case "LastTopVisibleGroup":
			m.LastTopVisibleGroup, err = d.readUUID(se)
		case "Binaries":
			err = d.decodeLegacyBinaries()
		case "CustomData":
			m.CustomData, err = d.decodeCustomData()
		default:
			err = d.skip(se)
		}
		return err
	})
	if err != nil {
		return err
	}
	d.meta = m
	return nil
}

func (d *decoder) decodeMemoryProtection(mp *tree.MemoryProtection) error {
	return d.children(func(se xml.StartElement) error {
		var err error
		switch se.Name.Local {
		case "ProtectTitle":
			mp.ProtectTitle, err = d.readBool(se)
		case "ProtectUserName":
			mp.ProtectUserName, err = d.readBool(se)
		case "ProtectPassword":
			mp.ProtectPassword, err = d.readBool(se)
		case "ProtectURL":
			mp.ProtectURL, err = d.readBool(se)
		case "ProtectNotes":
			mp.ProtectNotes, err = d.readBool(se)
		default:
			err = d.skip(se)
		}
		return err
	})
}

func (d *decoder) decodeCustomIcons() ([]tree.CustomIcon, error) {
	var icons []tree.CustomIcon
	err := d.children(func(se xml.StartElement) error {
		if se.Name.Local != "Icon" {
			return d.skip(se)
		}
		var icon tree.CustomIcon
		err := d.children(func(se xml.StartElement) error {
			var err error
			switch se.Name.Local {
			case "UUID":
				icon.UUID, err = d.readUUID(se)
			case "Data":
				icon.Data, err = d.binaryText(se)
			case "Name":
				icon.Name, err = d.text(se)
			case "LastModificationTime":
				icon.LastModifiedTime, err = d.readTime(se)
			default:
				err = d.skip(se)
			}
			return err
		})
		if err != nil {
			return err
		}
		icons = append(icons, icon)
		return nil
	})
	return icons, err
}

func (d *decoder) decodeCustomData() (tree.CustomData, error) {
	var data tree.CustomData
	err := d.children(func(se xml.StartElement) error {
		if se.Name.Local != "Item" {
			return d.skip(se)
		}
		var item tree.CustomItem
		err := d.children(func(se xml.StartElement) error {
			var err error
			switch se.Name.Local {
			case "Key":
				item.Key, err = d.text(se)
			case "Value":
				item.Value, err = d.text(se)
			case "LastModificationTime":
				item.LastModified, err = d.readTime(se)
			default:
				err = d.skip(se)
			}
			return err
		})
		if err != nil {
			return err
		}
		data = append(data, item)
		return nil
	})
	return data, err
}

// decodeLegacyBinaries reads the attachment pool that older documents keep in Meta.
func (d *decoder) decodeLegacyBinaries() error {
	return d.children(func(se xml.StartElement) error {
		if se.Name.Local != "Binary" {
			return d.skip(se)
		}
		idAttr, _ := attr(se, "ID")
		id, err := strconv.Atoi(idAttr)
		if err != nil {
			return fmt.Errorf("%w: invalid binary id '%s'", ErrMalformedDocument, idAttr)
		}
		protected := attrIs(se, "Protected") || attrIs(se, "ProtectInMemory")
		compressed := attrIs(se, "Compressed")
		data, err := d.binaryText(se)
		if err != nil {
			return err
		}
		if compressed {
			if data, err = gunzip(data); err != nil {
				return err
			}
		}
		d.legacy = append(d.legacy, legacyBinary{id: id, Binary: Binary{Protected: protected, Data: data}})
		return nil
	})
}

func gunzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid compressed binary: %v", ErrMalformedDocument, err)
	}
	defer func() {
		_ = r.Close()
	}()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid compressed binary: %v", ErrMalformedDocument, err)
	}
	return out, nil
}

func (d *decoder) loadBinaries() {
	pool := d.t.Binaries()
	for i, b := range d.binaries {
		d.refs[i] = pool.Put(b.Data, b.Protected)
	}
	for _, b := range d.legacy {
		d.legacyRefs[b.id] = pool.Put(b.Data, b.Protected)
	}
}

func (d *decoder) resolve(ref int) (tree.Digest, error) {
	if dig, ok := d.refs[ref]; ok {
		return dig, nil
	}
	if dig, ok := d.legacyRefs[ref]; ok {
		return dig, nil
	}
	return tree.Digest{}, fmt.Errorf("%w: binary %d", ErrUnresolvedBinaryReference, ref)
}

func (d *decoder) decodeRoot() error {
	return d.children(func(se xml.StartElement) error {
		switch se.Name.Local {
		case "Group":
			return d.decodeGroup(uuid.Nil)
		case "DeletedObjects":
			return d.decodeDeleted()
		default:
			return d.skip(se)
		}
	})
}

func (d *decoder) decodeDeleted() error {
	return d.children(func(se xml.StartElement) error {
		if se.Name.Local != "DeletedObject" {
			return d.skip(se)
		}
		var del tree.DeletedNode
		err := d.children(func(se xml.StartElement) error {
			var err error
			switch se.Name.Local {
			case "UUID":
				del.UUID, err = d.readUUID(se)
			case "DeletionTime":
				del.DeletionTime, err = d.readTime(se)
			default:
				err = d.skip(se)
			}
			return err
		})
		if err != nil {
			return err
		}
		d.deleted = append(d.deleted, del)
		return nil
	})
}

func (d *decoder) decodeTimes(ti *tree.TimeInfo) error {
	return d.children(func(se xml.StartElement) error {
		var err error
		switch se.Name.Local {
		case "CreationTime":
			ti.Created, err = d.readTime(se)
		case "LastModificationTime":
			ti.Modified, err = d.readTime(se)
		case "LastAccessTime":
			ti.Accessed, err = d.readTime(se)
		case "ExpiryTime":
			ti.Expiry, err = d.readTime(se)
		case "Expires":
			ti.Expires, err = d.readBool(se)
		case "UsageCount":
			var n int64
			if n, err = d.readInt(se); err == nil {
				if n < 0 {
					return fmt.Errorf("%w: negative usage count", ErrMalformedDocument)
				}
				ti.UsageCount = uint64(n)
			}
		case "LocationChanged":
			ti.LocationChanged, err = d.readTime(se)
		default:
			err = d.skip(se)
		}
		return err
	})
}

func (d *decoder) setUUID(se xml.StartElement, setter func(uuid.UUID) error) error {
	id, err := d.readUUID(se)
	if err != nil {
		return err
	}
	if err := setter(id); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return nil
}

func (d *decoder) decodeGroup(parent uuid.UUID) error {
	g := tree.NewGroup("")
	var sawUUID, registered bool
	register := func() error {
		if registered {
			return nil
		}
		if !sawUUID {
			return fmt.Errorf("%w: group without UUID", ErrMalformedDocument)
		}
		registered = true
		if parent == uuid.Nil {
			if d.t != nil {
				return fmt.Errorf("%w: more than one root group", ErrMalformedDocument)
			}
			d.t = tree.NewWithRoot(d.meta, g)
			d.loadBinaries()
			return nil
		}
		return d.t.AddGroup(parent, g)
	}

	err := d.children(func(se xml.StartElement) error {
		var err error
		switch se.Name.Local {
		case "UUID":
			if registered {
				return fmt.Errorf("%w: group UUID after its children", ErrMalformedDocument)
			}
			err = d.setUUID(se, g.SetUUID)
			sawUUID = err == nil
		case "Name":
			g.Name, err = d.text(se)
		case "Notes":
			g.Notes, err = d.text(se)
		case "IconID":
			g.IconID, err = d.readIcon(se)
		case "CustomIconUUID":
			g.CustomIconID, err = d.readUUID(se)
		case "Times":
			err = d.decodeTimes(g.Times())
		case "IsExpanded":
			g.IsExpanded, err = d.readBool(se)
		case "DefaultAutoTypeSequence":
			g.DefaultAutoTypeSequence, err = d.text(se)
		case "EnableAutoType":
			g.EnableAutoType, err = d.readNullableBool(se)
		case "EnableSearching":
			g.EnableSearching, err = d.readNullableBool(se)
		case "LastTopVisibleEntry":
			g.LastTopVisibleEntry, err = d.readUUID(se)
		case "Tags":
			g.Tags, err = d.text(se)
		case "CustomData":
			g.CustomData, err = d.decodeCustomData()
		case "Group":
			if err = register(); err == nil {
				err = d.decodeGroup(g.UUID())
			}
		case "Entry":
			if err = register(); err == nil {
				err = d.decodeEntry(g.UUID())
			}
		default:
			err = d.skip(se)
		}
		return err
	})
	if err != nil {
		return err
	}
	return register()
}

func (d *decoder) decodeEntry(parent uuid.UUID) error {
	e, err := d.readEntry(true)
	if err != nil {
		return err
	}
	return d.t.AddEntry(parent, e)
}

func (d *decoder) readEntry(allowHistory bool) (*tree.Entry, error) {
	e := tree.NewEntryWithID(uuid.Nil)
	var sawUUID bool
	err := d.children(func(se xml.StartElement) error {
		var err error
		switch se.Name.Local {
		case "UUID":
			err = d.setUUID(se, e.SetUUID)
			sawUUID = err == nil
		case "IconID":
			e.IconID, err = d.readIcon(se)
		case "CustomIconUUID":
			e.CustomIconID, err = d.readUUID(se)
		case "ForegroundColor":
			e.ForegroundColor, err = d.text(se)
		case "BackgroundColor":
			e.BackgroundColor, err = d.text(se)
		case "OverrideURL":
			e.OverrideURL, err = d.text(se)
		case "Tags":
			e.Tags, err = d.text(se)
		case "Times":
			err = d.decodeTimes(e.Times())
		case "String":
			err = d.decodeString(e)
		case "Binary":
			err = d.decodeBinaryRef(e)
		case "AutoType":
			err = d.decodeAutoType(&e.AutoType)
		case "CustomData":
			e.CustomData, err = d.decodeCustomData()
		case "History":
			if !allowHistory {
				return fmt.Errorf("%w: nested history", ErrMalformedDocument)
			}
			err = d.children(func(se xml.StartElement) error {
				if se.Name.Local != "Entry" {
					return d.skip(se)
				}
				snapshot, err := d.readEntry(false)
				if err != nil {
					return err
				}
				e.AppendHistory(snapshot)
				return nil
			})
		default:
			err = d.skip(se)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if !sawUUID {
		return nil, fmt.Errorf("%w: entry without UUID", ErrMalformedDocument)
	}
	return e, nil
}

func (d *decoder) decodeString(e *tree.Entry) error {
	var (
		key, value        string
		sawKey, protected bool
	)
	err := d.children(func(se xml.StartElement) error {
		var err error
		switch se.Name.Local {
		case "Key":
			key, err = d.text(se)
			sawKey = true
		case "Value":
			protected = attrIs(se, "Protected") || attrIs(se, "ProtectInMemory")
			value, err = d.text(se)
		default:
			err = d.skip(se)
		}
		return err
	})
	if err != nil {
		return err
	}
	if !sawKey {
		return fmt.Errorf("%w: string field without a key", ErrMalformedDocument)
	}
	e.SetProtected(key, value, protected)
	return nil
}

func (d *decoder) decodeBinaryRef(e *tree.Entry) error {
	var (
		name           string
		dig            tree.Digest
		sawKey, sawVal bool
	)
	err := d.children(func(se xml.StartElement) error {
		var err error
		switch se.Name.Local {
		case "Key":
			name, err = d.text(se)
			sawKey = true
		case "Value":
			sawVal = true
			if ref, ok := attr(se, "Ref"); ok {
				n, convErr := strconv.Atoi(ref)
				if convErr != nil {
					return fmt.Errorf("%w: invalid binary reference '%s'", ErrMalformedDocument, ref)
				}
				if dig, err = d.resolve(n); err != nil {
					return err
				}
				return d.skip(se)
			}
			var data []byte
			protected := attrIs(se, "Protected") || attrIs(se, "ProtectInMemory")
			if data, err = d.binaryText(se); err == nil {
				dig = d.t.Binaries().Put(data, protected)
			}
		default:
			err = d.skip(se)
		}
		return err
	})
	if err != nil {
		return err
	}
	if !sawKey || !sawVal {
		return fmt.Errorf("%w: incomplete binary reference", ErrMalformedDocument)
	}
	e.SetBinaryRef(name, dig)
	return nil
}

func (d *decoder) decodeAutoType(at *tree.AutoType) error {
	return d.children(func(se xml.StartElement) error {
		var err error
		switch se.Name.Local {
		case "Enabled":
			at.Enabled, err = d.readBool(se)
		case "DataTransferObfuscation":
			var n int64
			if n, err = d.readInt(se); err == nil {
				at.DataTransferObfuscation = int(n)
			}
		case "DefaultSequence":
			at.DefaultSequence, err = d.text(se)
		case "Association":
			var assoc tree.AutoTypeAssociation
			err = d.children(func(se xml.StartElement) error {
				var err error
				switch se.Name.Local {
				case "Window":
					assoc.Window, err = d.text(se)
				case "KeystrokeSequence":
					assoc.Sequence, err = d.text(se)
				default:
					err = d.skip(se)
				}
				return err
			})
			if err == nil {
				at.Associations = append(at.Associations, assoc)
			}
		default:
			err = d.skip(se)
		}
		return err
	})
}
