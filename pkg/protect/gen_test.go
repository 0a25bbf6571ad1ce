package protect

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenKey(t *testing.T) {
	key, err := GenKey(64)
	assert.NoError(t, err)
	assert.Len(t, key, 64)
}

func TestGenKey_Neg(t *testing.T) {
	_, err := GenKey(0)
	assert.Error(t, err)

	orig := rand.Reader
	defer func() {
		rand.Reader = orig
	}()
	rand.Reader = bytes.NewBuffer(nil)

	_, err = GenKey(10)
	assert.Error(t, err)
}
