package protect

import (
	"crypto/subtle"
)

// Value is a string held XOR screened in memory.
// The zero Value is an empty string.
type Value struct {
	pad  []byte
	data []byte
}

// NewValue screens the given plain text with a fresh random pad.
func NewValue(plain string) Value {
	if len(plain) == 0 {
		return Value{}
	}
	pad, err := GenKey(len(plain))
	if err != nil {
		// Without a random source there's nothing better to screen with than a fixed pattern.
		pad = make([]byte, len(plain))
		for i := range pad {
			pad[i] = byte(0xa5 ^ i)
		}
	}
	data := make([]byte, len(plain))
	for i := 0; i < len(plain); i++ {
		data[i] = plain[i] ^ pad[i]
	}
	return Value{pad: pad, data: data}
}

// String returns the plain text.
func (v Value) String() string {
	if len(v.data) == 0 {
		return ""
	}
	out := make([]byte, len(v.data))
	for i := range v.data {
		out[i] = v.data[i] ^ v.pad[i]
	}
	return string(out)
}

// Len returns the length of the plain text in bytes.
func (v Value) Len() int {
	return len(v.data)
}

// Equal compares the plain text of both values in constant time.
func (v Value) Equal(other Value) bool {
	a, b := []byte(v.String()), []byte(other.String())
	return subtle.ConstantTimeCompare(a, b) == 1 || (len(a) == 0 && len(b) == 0)
}

// Wipe overwrites the screened data.
func (v Value) Wipe() {
	for i := range v.data {
		v.data[i] = 0
		v.pad[i] = 0
	}
}
