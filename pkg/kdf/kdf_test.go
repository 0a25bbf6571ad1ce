package kdf

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/saylorsolutions/gokdbx/pkg/variant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/argon2"
)

var testRaw = bytes.Repeat([]byte{0x5a}, 32)

func TestNewAES(t *testing.T) {
	k, err := NewAES(SetShortDelayRounds())
	assert.NoError(t, err)
	assert.Equal(t, ShortDelayAESRounds, k.Rounds())
	assert.Len(t, k.seed, aesSeedSize)
	assert.Equal(t, AESUUID, k.UUID())

	key, err := k.Transform(testRaw)
	assert.NoError(t, err)
	assert.Len(t, key, TransformedLen)

	again, err := k.Transform(testRaw)
	assert.NoError(t, err)
	assert.Equal(t, key, again, "Transform should be deterministic")

	oldSeed := bytes.Clone(k.seed)
	assert.NoError(t, k.Reseed())
	assert.NotEqual(t, oldSeed, k.seed)
	reseeded, err := k.Transform(testRaw)
	assert.NoError(t, err)
	assert.NotEqual(t, key, reseeded)
}

func TestAES_Transform_SingleRound(t *testing.T) {
	k, err := NewAES(SetRounds(1))
	require.NoError(t, err)

	block, err := aes.NewCipher(k.seed)
	require.NoError(t, err)
	expected := bytes.Clone(testRaw)
	block.Encrypt(expected[:16], expected[:16])
	block.Encrypt(expected[16:], expected[16:])
	sum := sha256.Sum256(expected)

	key, err := k.Transform(testRaw)
	assert.NoError(t, err)
	assert.Equal(t, sum[:], key)
}

func TestAES_Transform_KnownAnswer(t *testing.T) {
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i)
	}
	params := variant.New()
	params.SetBytes(paramUUID, AESUUID[:])
	params.SetUint64(paramAESRounds, 100)
	params.SetBytes(paramAESSeed, seed)
	k, err := FromParams(params)
	require.NoError(t, err)

	// Produced by an independent implementation of the AES-KDF.
	expected, err := hex.DecodeString("80c36d61cb8303f1089e32ed8c5e3fa9f8237828b96f41622734c8ef76aa0861")
	require.NoError(t, err)
	key, err := k.Transform(testRaw)
	require.NoError(t, err)
	assert.Equal(t, expected, key)
}

func TestNewAES_Neg(t *testing.T) {
	_, err := NewAES(SetRounds(0))
	assert.ErrorIs(t, err, ErrInvalidParameters)
}

func TestNewArgon2(t *testing.T) {
	k, err := NewArgon2(SetShortDelayCost())
	assert.NoError(t, err)
	assert.Equal(t, uint64(1), k.Iterations())
	assert.Equal(t, ShortDelayArgon2Memory, k.Memory())
	assert.Equal(t, uint32(1), k.Parallelism())

	key, err := k.Transform(testRaw)
	assert.NoError(t, err)
	assert.Len(t, key, TransformedLen)
	again, err := k.Transform(testRaw)
	assert.NoError(t, err)
	assert.Equal(t, key, again)
}

func TestNewArgon2_Custom(t *testing.T) {
	k, err := NewArgon2(
		SetShortDelayCost(),
		SetIterations(2),
		SetParallelism(2),
		SetMemory(128<<10),
	)
	assert.NoError(t, err)
	assert.Equal(t, uint64(2), k.Iterations())
	assert.Equal(t, uint64(128<<10), k.Memory())
	assert.Equal(t, uint32(2), k.Parallelism())
}

func TestArgon2_TransformParameters(t *testing.T) {
	salt := bytes.Repeat([]byte{0x11}, 16)
	params := variant.New()
	params.SetBytes(paramUUID, Argon2idUUID[:])
	params.SetBytes(paramArgon2Salt, salt)
	params.SetUint32(paramArgon2Parallelism, 2)
	params.SetUint64(paramArgon2Memory, 64<<10)
	params.SetUint64(paramArgon2Iterations, 3)
	params.SetUint32(paramArgon2Version, Argon2Version13)
	k, err := FromParams(params)
	require.NoError(t, err)

	key, err := k.Transform(testRaw)
	require.NoError(t, err)
	assert.Equal(t, argon2.IDKey(testRaw, salt, 3, 64, 2, TransformedLen), key, "Memory is stored in bytes but given to Argon2 in KiB")
}

func TestNewArgon2_Neg(t *testing.T) {
	tests := map[string]Argon2Opt{
		"zero iterations":  SetIterations(0),
		"zero lanes":       SetParallelism(0),
		"too many lanes":   SetParallelism(256),
		"unaligned memory": SetMemory(1000),
		"too little":       SetMemory(1024),
		"too much":         SetMemory(MaxArgon2Memory + argon2BlockSize),
	}
	for name, opt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewArgon2(opt)
			assert.ErrorIs(t, err, ErrInvalidParameters)
		})
	}
}

func TestFromParams(t *testing.T) {
	t.Run("AES", func(t *testing.T) {
		orig, err := NewAES(SetShortDelayRounds())
		require.NoError(t, err)
		parsed, err := FromParams(orig.Params())
		require.NoError(t, err)
		assert.Equal(t, orig, parsed)
	})
	t.Run("Argon2id", func(t *testing.T) {
		orig, err := NewArgon2(SetShortDelayCost())
		require.NoError(t, err)
		data, err := orig.Params().MarshalBinary()
		require.NoError(t, err)
		params := variant.New()
		require.NoError(t, params.UnmarshalBinary(data))
		parsed, err := FromParams(params)
		require.NoError(t, err)
		assert.Equal(t, orig, parsed)
	})
}

func TestFromParams_Neg(t *testing.T) {
	_, err := FromParams(nil)
	assert.ErrorIs(t, err, ErrInvalidParameters)

	noID := variant.New()
	_, err = FromParams(noID)
	assert.ErrorIs(t, err, ErrUnsupportedKDF)

	unknown := variant.New()
	id := uuid.New()
	unknown.SetBytes(paramUUID, id[:])
	_, err = FromParams(unknown)
	assert.ErrorIs(t, err, ErrUnsupportedKDF)

	argon2d := variant.New()
	argon2d.SetBytes(paramUUID, Argon2dUUID[:])
	_, err = FromParams(argon2d)
	assert.ErrorIs(t, err, ErrUnsupportedKDF)

	k, err := NewAES(SetShortDelayRounds())
	require.NoError(t, err)
	badSeed := k.Params()
	badSeed.SetBytes(paramAESSeed, []byte{1, 2, 3})
	_, err = FromParams(badSeed)
	assert.ErrorIs(t, err, ErrInvalidParameters)

	zeroRounds := k.Params()
	zeroRounds.SetUint64(paramAESRounds, 0)
	_, err = FromParams(zeroRounds)
	assert.ErrorIs(t, err, ErrInvalidParameters)

	a, err := NewArgon2(SetShortDelayCost())
	require.NoError(t, err)
	badVersion := a.Params()
	badVersion.SetUint32(paramArgon2Version, 0x10)
	_, err = FromParams(badVersion)
	assert.ErrorIs(t, err, ErrInvalidParameters)

	hugeMemory := a.Params()
	hugeMemory.SetUint64(paramArgon2Memory, 1<<40)
	_, err = FromParams(hugeMemory)
	assert.ErrorIs(t, err, ErrInvalidParameters, "Header memory cost should be bounded")

	manyLanes := a.Params()
	manyLanes.SetUint32(paramArgon2Parallelism, 1<<20)
	_, err = FromParams(manyLanes)
	assert.ErrorIs(t, err, ErrInvalidParameters)

	withSecret := a.Params()
	withSecret.SetBytes(paramArgon2Secret, []byte("pepper"))
	_, err = FromParams(withSecret)
	assert.ErrorIs(t, err, ErrInvalidParameters)
}

type slowKDF struct {
	*AES
	release chan struct{}
}

func (k slowKDF) Transform(raw []byte) ([]byte, error) {
	<-k.release
	return k.AES.Transform(raw)
}

func TestDerive(t *testing.T) {
	k, err := NewAES(SetShortDelayRounds())
	require.NoError(t, err)
	expected, err := k.Transform(testRaw)
	require.NoError(t, err)

	key, err := Derive(context.Background(), k, testRaw)
	assert.NoError(t, err)
	assert.Equal(t, expected, key)
}

func TestDerive_Cancelled(t *testing.T) {
	k, err := NewAES(SetShortDelayRounds())
	require.NoError(t, err)
	slow := slowKDF{AES: k, release: make(chan struct{})}
	defer close(slow.release)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	key, err := Derive(ctx, slow, testRaw)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, key)
}

func TestSplit(t *testing.T) {
	seed := bytes.Repeat([]byte{1}, 32)
	transformed := bytes.Repeat([]byte{2}, 32)
	mk := Split(seed, transformed)
	assert.Len(t, mk.Cipher, 32)
	assert.Len(t, mk.HMAC, 64)
	assert.Equal(t, mk.Cipher, Split(seed, transformed).Cipher)
	assert.NotEqual(t, mk.BlockKey(0), mk.BlockKey(1))
	assert.Len(t, mk.BlockKey(HeaderBlockIndex), 64)

	mk.Wipe()
	assert.Equal(t, make([]byte, 32), mk.Cipher)
	assert.Equal(t, make([]byte, 64), mk.HMAC)
}
