package protect

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStream_RoundTrip(t *testing.T) {
	for _, id := range []StreamID{StreamSalsa20, StreamChaCha20} {
		t.Run(id.String(), func(t *testing.T) {
			key, err := GenKey(id.KeySize())
			assert.NoError(t, err)

			values := []string{"first secret", "", "a much longer secret that spans more than one keystream block of sixty four bytes", "x"}
			enc, err := NewStream(id, key)
			assert.NoError(t, err)
			var encrypted [][]byte
			for _, v := range values {
				encrypted = append(encrypted, enc.Process([]byte(v)))
			}

			dec, err := NewStream(id, key)
			assert.NoError(t, err)
			for i, v := range values {
				assert.Equal(t, v, string(dec.Process(encrypted[i])))
			}
			assert.Equal(t, enc.Position(), dec.Position())
		})
	}
}

func TestStream_Continuous(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 64)
	whole, err := NewStream(StreamChaCha20, key)
	assert.NoError(t, err)
	all := whole.Process(make([]byte, 100))

	split, err := NewStream(StreamChaCha20, key)
	assert.NoError(t, err)
	first := split.Process(make([]byte, 37))
	second := split.Process(make([]byte, 63))
	assert.Equal(t, all, append(first, second...), "Keystream must not reset between values")
}

func TestStream_OrderMatters(t *testing.T) {
	key := bytes.Repeat([]byte{0x01}, 32)
	enc, err := NewStream(StreamSalsa20, key)
	assert.NoError(t, err)
	a := enc.Process([]byte("alpha"))
	b := enc.Process([]byte("bravo"))

	dec, err := NewStream(StreamSalsa20, key)
	assert.NoError(t, err)
	assert.NotEqual(t, "bravo", string(dec.Process(b)))
	assert.NotEqual(t, "alpha", string(dec.Process(a)))
}

func TestNewStream_Neg(t *testing.T) {
	_, err := NewStream(StreamChaCha20, nil)
	assert.ErrorIs(t, err, ErrUnsupportedStream)
	_, err = NewStream(StreamArcFour, []byte{1})
	assert.ErrorIs(t, err, ErrUnsupportedStream)
	_, err = NewStream(StreamID(42), []byte{1})
	assert.ErrorIs(t, err, ErrUnsupportedStream)
}

func TestValue(t *testing.T) {
	v := NewValue("hunter2")
	assert.Equal(t, "hunter2", v.String())
	assert.Equal(t, 7, v.Len())
	assert.NotEqual(t, []byte("hunter2"), v.data)
	assert.True(t, v.Equal(NewValue("hunter2")))
	assert.False(t, v.Equal(NewValue("hunter3")))
	assert.True(t, Value{}.Equal(NewValue("")))

	v.Wipe()
	assert.Equal(t, string(make([]byte, 7)), v.String())
}

// Keystreams for the inner stream key 00 01 .. 3f, produced by an independent implementation.
var knownKeystreams = map[StreamID]string{
	StreamSalsa20: "0f49b2bd1392f303c02eef124cd0fda0d1855645eb16470cb5aadc7698fb7bed" +
		"e27ee7b99216b0be573bb128a66cdcb16e916294edda057d95ce8a3623c45367" +
		"3debecbc923fcf6ab4062d098aef752ed9bd447787ac562ee9ed4fef1b0f08a4" +
		"8d0a192bbaff79c414efe362799f8ac3d7fea498a4d529cf4b08ff6882cc7fd1" +
		"8eee72f79bd230928400832175a3b1f7180819993f1fe822dbbdc319caf7532e",
	StreamChaCha20: "8ce8bc610ac05ff2e3dd88b49a1404c2844f148037027476b83d58f5609adf65" +
		"f8fa87d8b5f5287f6cfdbdb69adea2f942e4acf5a9ad9e860623477a73a24c4e" +
		"3a3218fc0306b095a7e705df6cb03ffc592d2ce6e3a9ba6c5a78a8bc8b908a71" +
		"d2939459f6403e659ba440eb2faa4650e378be36e898db366a2d6f28555d76e1" +
		"68db3248855c24ddd48b7de7dbe3e109f208f30d93aeeddd9c53876324b073d0",
}

func TestStream_KnownAnswer(t *testing.T) {
	key := make([]byte, 64)
	for i := range key {
		key[i] = byte(i)
	}
	for id, want := range knownKeystreams {
		t.Run(id.String(), func(t *testing.T) {
			expected, err := hex.DecodeString(want)
			require.NoError(t, err)

			s, err := NewStream(id, key)
			require.NoError(t, err)
			assert.Equal(t, expected, s.Process(make([]byte, len(expected))))

			chunked, err := NewStream(id, key)
			require.NoError(t, err)
			var got []byte
			for _, n := range []int{7, 57, 1, 63, 32} {
				got = append(got, chunked.Process(make([]byte, n))...)
			}
			assert.Equal(t, expected, got, "Splitting reads should not change the keystream")
		})
	}
}
