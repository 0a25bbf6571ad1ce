package variant

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	version          uint16 = 0x0100
	versionCriticalMask     = 0xFF00
)

var (
	ErrInvalidDictionary = errors.New("invalid variant dictionary")
)

// Type identifies how a value is encoded within a Dictionary.
type Type byte

const (
	TypeEnd    Type = 0x00
	TypeUint32 Type = 0x04
	TypeUint64 Type = 0x05
	TypeBool   Type = 0x08
	TypeInt32  Type = 0x0C
	TypeInt64  Type = 0x0D
	TypeString Type = 0x18
	TypeBytes  Type = 0x42
)

func (t Type) String() string {
	switch t {
	case TypeUint32:
		return "UInt32"
	case TypeUint64:
		return "UInt64"
	case TypeBool:
		return "Bool"
	case TypeInt32:
		return "Int32"
	case TypeInt64:
		return "Int64"
	case TypeString:
		return "String"
	case TypeBytes:
		return "ByteArray"
	default:
		return fmt.Sprintf("Type(0x%02x)", byte(t))
	}
}

type item struct {
	key   string
	typ   Type
	value []byte
}

// Dictionary is an ordered map of typed values, used for KDF parameters and public custom data in the container header.
// Keys keep the order they were first set in, so a decoded Dictionary re-encodes to the same bytes.
type Dictionary struct {
	items []item
}

// New creates an empty Dictionary.
func New() *Dictionary {
	return new(Dictionary)
}

func (d *Dictionary) find(key string) int {
	for i, it := range d.items {
		if it.key == key {
			return i
		}
	}
	return -1
}

func (d *Dictionary) set(key string, typ Type, value []byte) {
	if i := d.find(key); i >= 0 {
		d.items[i].typ = typ
		d.items[i].value = value
		return
	}
	d.items = append(d.items, item{key: key, typ: typ, value: value})
}

func (d *Dictionary) get(key string, typ Type) ([]byte, bool) {
	if d == nil {
		return nil, false
	}
	i := d.find(key)
	if i < 0 || d.items[i].typ != typ {
		return nil, false
	}
	return d.items[i].value, true
}

// Len returns the number of values in the Dictionary.
func (d *Dictionary) Len() int {
	if d == nil {
		return 0
	}
	return len(d.items)
}

// Keys returns all keys in insertion order.
func (d *Dictionary) Keys() []string {
	if d == nil {
		return nil
	}
	keys := make([]string, len(d.items))
	for i, it := range d.items {
		keys[i] = it.key
	}
	return keys
}

// TypeOf reports the stored type of the given key, or TypeEnd if it's absent.
func (d *Dictionary) TypeOf(key string) Type {
	if d == nil {
		return TypeEnd
	}
	if i := d.find(key); i >= 0 {
		return d.items[i].typ
	}
	return TypeEnd
}

// Delete removes a key if present.
func (d *Dictionary) Delete(key string) {
	if i := d.find(key); i >= 0 {
		d.items = append(d.items[:i], d.items[i+1:]...)
	}
}

func (d *Dictionary) SetUint32(key string, val uint32) {
	d.set(key, TypeUint32, binary.LittleEndian.AppendUint32(nil, val))
}

func (d *Dictionary) SetUint64(key string, val uint64) {
	d.set(key, TypeUint64, binary.LittleEndian.AppendUint64(nil, val))
}

func (d *Dictionary) SetBool(key string, val bool) {
	var b byte
	if val {
		b = 1
	}
	d.set(key, TypeBool, []byte{b})
}

func (d *Dictionary) SetInt32(key string, val int32) {
	d.set(key, TypeInt32, binary.LittleEndian.AppendUint32(nil, uint32(val)))
}

func (d *Dictionary) SetInt64(key string, val int64) {
	d.set(key, TypeInt64, binary.LittleEndian.AppendUint64(nil, uint64(val)))
}

func (d *Dictionary) SetString(key string, val string) {
	d.set(key, TypeString, []byte(val))
}

// SetBytes stores a copy of val.
func (d *Dictionary) SetBytes(key string, val []byte) {
	d.set(key, TypeBytes, bytes.Clone(val))
}

func (d *Dictionary) Uint32(key string) (uint32, bool) {
	v, ok := d.get(key, TypeUint32)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint32(v), true
}

func (d *Dictionary) Uint64(key string) (uint64, bool) {
	v, ok := d.get(key, TypeUint64)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint64(v), true
}

func (d *Dictionary) Bool(key string) (bool, bool) {
	v, ok := d.get(key, TypeBool)
	if !ok {
		return false, false
	}
	return v[0] != 0, true
}

func (d *Dictionary) Int32(key string) (int32, bool) {
	v, ok := d.get(key, TypeInt32)
	if !ok {
		return 0, false
	}
	return int32(binary.LittleEndian.Uint32(v)), true
}

func (d *Dictionary) Int64(key string) (int64, bool) {
	v, ok := d.get(key, TypeInt64)
	if !ok {
		return 0, false
	}
	return int64(binary.LittleEndian.Uint64(v)), true
}

func (d *Dictionary) String(key string) (string, bool) {
	v, ok := d.get(key, TypeString)
	if !ok {
		return "", false
	}
	return string(v), true
}

// Bytes returns a copy of the stored byte array.
func (d *Dictionary) Bytes(key string) ([]byte, bool) {
	v, ok := d.get(key, TypeBytes)
	if !ok {
		return nil, false
	}
	return bytes.Clone(v), true
}

// Clone returns a deep copy of the Dictionary.
func (d *Dictionary) Clone() *Dictionary {
	if d == nil {
		return nil
	}
	c := &Dictionary{items: make([]item, len(d.items))}
	for i, it := range d.items {
		c.items[i] = item{key: it.key, typ: it.typ, value: bytes.Clone(it.value)}
	}
	return c
}

// Equal reports whether both dictionaries hold the same typed values in the same order.
func (d *Dictionary) Equal(other *Dictionary) bool {
	if d.Len() != other.Len() {
		return false
	}
	for i := 0; i < d.Len(); i++ {
		a, b := d.items[i], other.items[i]
		if a.key != b.key || a.typ != b.typ || !bytes.Equal(a.value, b.value) {
			return false
		}
	}
	return true
}

func (d *Dictionary) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, version); err != nil {
		return nil, err
	}
	if d != nil {
		for _, it := range d.items {
			if len(it.key) > math.MaxInt32 || len(it.value) > math.MaxInt32 {
				return nil, fmt.Errorf("%w: entry '%s' is too large", ErrInvalidDictionary, it.key)
			}
			if err := binary.Write(&buf, binary.LittleEndian, it.typ); err != nil {
				return nil, err
			}
			if err := writeSized(&buf, []byte(it.key)); err != nil {
				return nil, err
			}
			if err := writeSized(&buf, it.value); err != nil {
				return nil, err
			}
		}
	}
	if err := binary.Write(&buf, binary.LittleEndian, TypeEnd); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeSized(w io.Writer, data []byte) error {
	if err := binary.Write(w, binary.LittleEndian, int32(len(data))); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func (d *Dictionary) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	var ver uint16
	if err := binary.Read(r, binary.LittleEndian, &ver); err != nil {
		return fmt.Errorf("%w: missing version", ErrInvalidDictionary)
	}
	if ver&versionCriticalMask > version&versionCriticalMask {
		return fmt.Errorf("%w: unsupported version 0x%04x", ErrInvalidDictionary, ver)
	}

	var items []item
	for {
		typ, err := r.ReadByte()
		if err != nil {
			return fmt.Errorf("%w: missing terminator", ErrInvalidDictionary)
		}
		if Type(typ) == TypeEnd {
			break
		}
		key, err := readSized(r)
		if err != nil {
			return err
		}
		value, err := readSized(r)
		if err != nil {
			return err
		}
		if err := checkSize(Type(typ), len(value)); err != nil {
			return fmt.Errorf("%w: key '%s'", err, key)
		}
		items = append(items, item{key: string(key), typ: Type(typ), value: value})
	}
	d.items = items
	return nil
}

func readSized(r *bytes.Reader) ([]byte, error) {
	var size int32
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return nil, fmt.Errorf("%w: truncated field size", ErrInvalidDictionary)
	}
	if size < 0 || int64(size) > int64(r.Len()) {
		return nil, fmt.Errorf("%w: field size %d out of range", ErrInvalidDictionary, size)
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: truncated field", ErrInvalidDictionary)
	}
	return buf, nil
}

func checkSize(typ Type, size int) error {
	want := -1
	switch typ {
	case TypeUint32, TypeInt32:
		want = 4
	case TypeUint64, TypeInt64:
		want = 8
	case TypeBool:
		want = 1
	case TypeString, TypeBytes:
	default:
		// Unknown types are kept as opaque bytes so they survive a round trip.
	}
	if want >= 0 && size != want {
		return fmt.Errorf("%w: %s value must be %d bytes, got %d", ErrInvalidDictionary, typ, want, size)
	}
	return nil
}
