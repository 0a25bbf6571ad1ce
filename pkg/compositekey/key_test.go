package compositekey

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_OrderIndependent(t *testing.T) {
	keyfile := bytes.Repeat([]byte{0x11}, 32)
	resp := ResponderFunc(func(challenge []byte) ([]byte, error) {
		return append([]byte("resp:"), challenge...), nil
	})
	a, err := New(Password([]byte("password")), KeyFile(keyfile), ChallengeResponse(resp))
	assert.NoError(t, err)
	b, err := New(ChallengeResponse(resp), KeyFile(keyfile), Password([]byte("password")))
	assert.NoError(t, err)

	rawA, err := a.Raw([]byte("seed"))
	assert.NoError(t, err)
	rawB, err := b.Raw([]byte("seed"))
	assert.NoError(t, err)
	assert.Len(t, rawA, 32)
	assert.Equal(t, rawA, rawB)

	rawC, err := a.Raw([]byte("other seed"))
	assert.NoError(t, err)
	assert.NotEqual(t, rawA, rawC, "Challenge should affect the raw key")
}

func TestKey_Raw_PasswordOnly(t *testing.T) {
	k, err := New(Password([]byte("secret")))
	assert.NoError(t, err)
	raw, err := k.Raw(nil)
	assert.NoError(t, err)

	pw := sha256.Sum256([]byte("secret"))
	expected := sha256.Sum256(pw[:])
	assert.Equal(t, expected[:], raw)
}

func TestKey_DistinctFactors(t *testing.T) {
	pwOnly, err := New(Password([]byte("secret")))
	assert.NoError(t, err)
	withFile, err := New(Password([]byte("secret")), KeyFile([]byte("some keyfile content")))
	assert.NoError(t, err)
	a, _ := pwOnly.Raw(nil)
	b, _ := withFile.Raw(nil)
	assert.NotEqual(t, a, b)
}

func TestNew_Neg(t *testing.T) {
	_, err := New()
	assert.ErrorIs(t, err, ErrInvalidKeyFactor)
	_, err = New(ChallengeResponse(nil))
	assert.ErrorIs(t, err, ErrInvalidKeyFactor)
	_, err = New(KeyFile(nil))
	assert.ErrorIs(t, err, ErrInvalidKeyFactor)
}

func TestKey_Raw_ResponderFailure(t *testing.T) {
	k, err := New(ChallengeResponse(ResponderFunc(func([]byte) ([]byte, error) {
		return nil, errors.New("device unplugged")
	})))
	assert.NoError(t, err)
	_, err = k.Raw([]byte("seed"))
	assert.ErrorIs(t, err, ErrInvalidKeyFactor)
}

func TestKey_Wipe(t *testing.T) {
	k, err := New(Password([]byte("secret")))
	assert.NoError(t, err)
	k.Wipe()
	assert.True(t, k.IsEmpty())
	_, err = k.Raw(nil)
	assert.ErrorIs(t, err, ErrNoFactors)
}
