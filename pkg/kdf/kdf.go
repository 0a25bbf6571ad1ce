package kdf

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/saylorsolutions/gokdbx/pkg/variant"
)

const (
	paramUUID      = "$UUID"
	TransformedLen = 32
)

var (
	ErrUnsupportedKDF    = errors.New("unsupported key derivation function")
	ErrInvalidParameters = errors.New("invalid key derivation parameters")
)

var (
	AESUUID      = uuid.MustParse("c9d9f39a-628a-4460-bf74-0d08c18a4fea")
	Argon2dUUID  = uuid.MustParse("ef636ddf-8c29-444b-91f7-a9a403e30a0c")
	Argon2idUUID = uuid.MustParse("9e298b19-56db-4773-b23d-fc3ec6f0a1e6")
)

// KDF is a parametrized key derivation function.
type KDF interface {
	// UUID identifies the function in the container header.
	UUID() uuid.UUID
	// Params renders the current parameters as a header dictionary.
	Params() *variant.Dictionary
	// Reseed replaces the seed or salt with fresh random bytes.
	Reseed() error
	// Transform derives the transformed key from the raw composite key.
	// This is expected to take a long time.
	Transform(raw []byte) ([]byte, error)
}

// FromParams parses a KDF from header parameters.
func FromParams(params *variant.Dictionary) (KDF, error) {
	if params == nil {
		return nil, fmt.Errorf("%w: missing parameters", ErrInvalidParameters)
	}
	idBytes, ok := params.Bytes(paramUUID)
	if !ok {
		return nil, fmt.Errorf("%w: missing KDF identifier", ErrUnsupportedKDF)
	}
	id, err := uuid.FromBytes(idBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed KDF identifier", ErrUnsupportedKDF)
	}
	switch id {
	case AESUUID:
		return aesFromParams(params)
	case Argon2idUUID:
		return argon2FromParams(params)
	case Argon2dUUID:
		return nil, fmt.Errorf("%w: Argon2d is not available", ErrUnsupportedKDF)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKDF, id)
	}
}

type result struct {
	key []byte
	err error
}

// Derive runs the KDF transform on a separate goroutine.
// If ctx is done before the transform completes, then ctx.Err() is returned and the eventual result is wiped and discarded.
func Derive(ctx context.Context, kdf KDF, raw []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	input := make([]byte, len(raw))
	copy(input, raw)
	ch := make(chan result, 1)
	go func() {
		defer wipe(input)
		key, err := kdf.Transform(input)
		ch <- result{key: key, err: err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			res := <-ch
			wipe(res.key)
		}()
		return nil, ctx.Err()
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		return res.key, nil
	}
}

func randomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate random seed: %w", err)
	}
	return buf, nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
