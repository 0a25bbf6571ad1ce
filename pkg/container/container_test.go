package container

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/saylorsolutions/gokdbx/pkg/compositekey"
	"github.com/saylorsolutions/gokdbx/pkg/kdf"
	"github.com/saylorsolutions/gokdbx/pkg/protect"
	"github.com/saylorsolutions/gokdbx/pkg/variant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDocument = `<?xml version="1.0" encoding="utf-8"?><KeePassFile><Root/></KeePassFile>`

func testKey(t *testing.T, pass string) *compositekey.Key {
	key, err := compositekey.New(compositekey.Password([]byte(pass)))
	require.NoError(t, err)
	return key
}

func testKDF(t *testing.T) kdf.KDF {
	k, err := kdf.NewAES(kdf.SetShortDelayRounds())
	require.NoError(t, err)
	return k
}

func testPayload(cipherID uuid.UUID, compression Compression) *Payload {
	return &Payload{
		Header: &Header{
			CipherID:    cipherID,
			Compression: compression,
		},
		Inner: &InnerHeader{
			StreamID:  protect.StreamChaCha20,
			StreamKey: bytes.Repeat([]byte{0x33}, 64),
			Binaries: []Binary{
				{Protected: true, Data: []byte("attachment")},
				{Data: []byte{}},
			},
		},
		Document: []byte(testDocument),
	}
}

func seal(t *testing.T, p *Payload, key *compositekey.Key, opts ...SealOpt) []byte {
	var buf bytes.Buffer
	require.NoError(t, Seal(context.Background(), &buf, p, testKDF(t), key, opts...))
	return buf.Bytes()
}

func TestSealOpen(t *testing.T) {
	ciphers := []uuid.UUID{AES256UUID, TwofishUUID, ChaCha20UUID}
	compressions := []Compression{CompressionNone, CompressionGzip}
	for _, cid := range ciphers {
		for _, comp := range compressions {
			t.Run(CipherName(cid)+"/"+comp.String(), func(t *testing.T) {
				key := testKey(t, "password")
				data := seal(t, testPayload(cid, comp), key)

				p, err := Open(context.Background(), bytes.NewReader(data), key)
				require.NoError(t, err)
				assert.Equal(t, cid, p.Header.CipherID)
				assert.Equal(t, comp, p.Header.Compression)
				assert.Equal(t, testDocument, string(p.Document))
				assert.Equal(t, protect.StreamChaCha20, p.Inner.StreamID)
				assert.Equal(t, bytes.Repeat([]byte{0x33}, 64), p.Inner.StreamKey)
				require.Len(t, p.Inner.Binaries, 2)
				assert.True(t, p.Inner.Binaries[0].Protected)
				assert.Equal(t, "attachment", string(p.Inner.Binaries[0].Data))
				assert.False(t, p.Inner.Binaries[1].Protected)
				assert.Empty(t, p.Inner.Binaries[1].Data)
			})
		}
	}
}

func TestSeal_FreshSeeds(t *testing.T) {
	key := testKey(t, "password")
	p := testPayload(AES256UUID, CompressionGzip)
	first := seal(t, p, key)
	seed, iv := bytes.Clone(p.Header.MasterSeed), bytes.Clone(p.Header.IV)
	second := seal(t, p, key)
	assert.NotEqual(t, seed, p.Header.MasterSeed)
	assert.NotEqual(t, iv, p.Header.IV)
	assert.NotEqual(t, first, second)
}

func TestOpen_WrongKey(t *testing.T) {
	data := seal(t, testPayload(ChaCha20UUID, CompressionGzip), testKey(t, "password"))
	p, err := Open(context.Background(), bytes.NewReader(data), testKey(t, "Password"))
	assert.ErrorIs(t, err, ErrIntegrity)
	assert.Nil(t, p)
}

func TestOpen_Tampered(t *testing.T) {
	key := testKey(t, "password")
	data := seal(t, testPayload(AES256UUID, CompressionNone), key, SetBlockSize(32))
	_, rawHeader, err := ReadHeader(bytes.NewReader(data))
	require.NoError(t, err)
	bodyStart := len(rawHeader) + 2*tagSize

	for i := bodyStart; i < len(data); i++ {
		mut := bytes.Clone(data)
		mut[i] ^= 0x01
		p, err := Open(context.Background(), bytes.NewReader(mut), key)
		assert.ErrorIs(t, err, ErrIntegrity, "Flipping a bit at offset %d should fail authentication", i)
		assert.Nil(t, p)
	}

	truncated := data[:len(data)-tagSize-4]
	_, err = Open(context.Background(), bytes.NewReader(truncated), key)
	assert.ErrorIs(t, err, ErrIntegrity, "Dropping the terminating block should fail authentication")
}

func TestReadBlocks_OversizedLength(t *testing.T) {
	lengths := []uint32{MaxBlockSize + 1, math.MaxInt32, math.MaxUint32}
	for _, length := range lengths {
		var buf bytes.Buffer
		buf.Write(make([]byte, tagSize))
		buf.Write(binary.LittleEndian.AppendUint32(nil, length))
		buf.Write([]byte("short"))
		_, err := readBlocks(&buf, nil)
		assert.ErrorIs(t, err, ErrIntegrity, "Declared length %d should be refused", length)
	}

	var buf bytes.Buffer
	buf.Write(make([]byte, tagSize))
	buf.Write(binary.LittleEndian.AppendUint32(nil, 1<<20))
	buf.Write([]byte("short"))
	_, err := readBlocks(&buf, nil)
	assert.ErrorIs(t, err, ErrIntegrity, "A block shorter than its declared length should be refused")
}

func TestSetBlockSize_Neg(t *testing.T) {
	var buf bytes.Buffer
	err := Seal(context.Background(), &buf, testPayload(ChaCha20UUID, CompressionNone), testKDF(t), testKey(t, "password"), SetBlockSize(MaxBlockSize+1))
	assert.Error(t, err)
	err = Seal(context.Background(), &buf, testPayload(ChaCha20UUID, CompressionNone), testKDF(t), testKey(t, "password"), SetBlockSize(0))
	assert.Error(t, err)
}

func TestOpen_TamperedHeader(t *testing.T) {
	key := testKey(t, "password")
	data := seal(t, testPayload(ChaCha20UUID, CompressionGzip), key)
	_, rawHeader, err := ReadHeader(bytes.NewReader(data))
	require.NoError(t, err)

	// The master seed starts after the preamble, the cipher field, the compression field and its own field prefix.
	seedOffset := 12 + (5 + 16) + (5 + 4) + 5
	mut := bytes.Clone(data)
	mut[seedOffset+3] ^= 0x01
	_, err = Open(context.Background(), bytes.NewReader(mut), key)
	assert.ErrorIs(t, err, ErrMalformedHeader, "Header checksum should catch changes")

	mut = bytes.Clone(data)
	mut[len(rawHeader)+tagSize] ^= 0x01
	_, err = Open(context.Background(), bytes.NewReader(mut), key)
	assert.ErrorIs(t, err, ErrIntegrity)
}

func TestSeal_UnsupportedCipher(t *testing.T) {
	var buf bytes.Buffer
	err := Seal(context.Background(), &buf, testPayload(uuid.New(), CompressionNone), testKDF(t), testKey(t, "password"))
	assert.ErrorIs(t, err, ErrUnsupportedCipher)
	assert.Zero(t, buf.Len())
}

func TestOpen_Cancelled(t *testing.T) {
	key := testKey(t, "password")
	data := seal(t, testPayload(ChaCha20UUID, CompressionGzip), key)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Open(ctx, bytes.NewReader(data), key)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHeader_RoundTrip(t *testing.T) {
	custom := variant.New()
	custom.SetString("Owner", "someone")
	k := testKDF(t)
	h := &Header{
		CipherID:         TwofishUUID,
		Compression:      CompressionGzip,
		MasterSeed:       bytes.Repeat([]byte{1}, MasterSeedSize),
		IV:               bytes.Repeat([]byte{2}, 16),
		KDFParams:        k.Params(),
		PublicCustomData: custom,
	}
	data, err := h.MarshalBinary()
	require.NoError(t, err)

	parsed, raw, err := ReadHeader(bytes.NewReader(append(data, 0xff, 0xff)))
	require.NoError(t, err)
	assert.Equal(t, data, raw)
	assert.Equal(t, VersionMajor, parsed.VersionMajor)
	assert.Equal(t, VersionMinor, parsed.VersionMinor)
	assert.Equal(t, h.CipherID, parsed.CipherID)
	assert.Equal(t, h.Compression, parsed.Compression)
	assert.Equal(t, h.MasterSeed, parsed.MasterSeed)
	assert.Equal(t, h.IV, parsed.IV)
	assert.True(t, h.KDFParams.Equal(parsed.KDFParams))
	assert.True(t, custom.Equal(parsed.PublicCustomData))
}

func TestReadHeader_Neg(t *testing.T) {
	_, _, err := ReadHeader(bytes.NewReader([]byte("not a database at all")))
	assert.ErrorIs(t, err, ErrMalformedHeader)

	v3 := []byte{0x03, 0xd9, 0xa2, 0x9a, 0x67, 0xfb, 0x4b, 0xb5, 0x01, 0x00, 0x03, 0x00}
	_, _, err = ReadHeader(bytes.NewReader(v3))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	k := testKDF(t)
	h := &Header{
		CipherID:   uuid.New(),
		MasterSeed: bytes.Repeat([]byte{1}, MasterSeedSize),
		IV:         bytes.Repeat([]byte{2}, 16),
		KDFParams:  k.Params(),
	}
	_, err = h.MarshalBinary()
	assert.ErrorIs(t, err, ErrUnsupportedCipher)
}
