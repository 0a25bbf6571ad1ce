package protect

import (
	"crypto/rand"
	"errors"
	"fmt"
)

// GenKey will generate secure random bytes with the given length.
// It's used for inner stream keys and in-memory screening pads.
func GenKey(length int) ([]byte, error) {
	if length == 0 {
		return nil, errors.New("asked to generate a 0-length key")
	}
	buf := make([]byte, length)
	n, err := rand.Read(buf)
	if n < length {
		return nil, fmt.Errorf("failed to read requested bytes: %v", err)
	}
	return buf, nil
}
