package compositekey

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
)

var (
	ErrInvalidKeyFactor = errors.New("invalid key factor")
	ErrNoFactors        = fmt.Errorf("%w: no key factors provided", ErrInvalidKeyFactor)
)

// Responder is a challenge-response provider, like a hardware token.
type Responder interface {
	Respond(challenge []byte) ([]byte, error)
}

// ResponderFunc adapts a function to a Responder.
type ResponderFunc func(challenge []byte) ([]byte, error)

func (f ResponderFunc) Respond(challenge []byte) ([]byte, error) {
	return f(challenge)
}

// Key holds the digests of the configured key factors.
type Key struct {
	password  []byte
	keyfile   []byte
	responder Responder
}

type FactorOpt = func(*Key) error

// Password adds a password factor.
// The given bytes are expected to be UTF-8 and are not retained.
func Password(pass []byte) FactorOpt {
	return func(k *Key) error {
		sum := sha256.Sum256(pass)
		k.password = sum[:]
		return nil
	}
}

// KeyFile adds a keyfile factor from the file's content.
func KeyFile(data []byte) FactorOpt {
	return func(k *Key) error {
		digest, err := keyfileDigest(data)
		if err != nil {
			return err
		}
		k.keyfile = digest
		return nil
	}
}

// KeyFileReader adds a keyfile factor, reading the content from the given io.Reader.
func KeyFileReader(r io.Reader) FactorOpt {
	return func(k *Key) error {
		data, err := io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("%w: failed to read keyfile: %v", ErrInvalidKeyFactor, err)
		}
		defer wipe(data)
		return KeyFile(data)(k)
	}
}

// ChallengeResponse adds a challenge-response factor.
func ChallengeResponse(resp Responder) FactorOpt {
	return func(k *Key) error {
		if resp == nil {
			return fmt.Errorf("%w: nil challenge-response provider", ErrInvalidKeyFactor)
		}
		k.responder = resp
		return nil
	}
}

// New creates a Key from one or more factors.
func New(opts ...FactorOpt) (*Key, error) {
	k := new(Key)
	for _, opt := range opts {
		if err := opt(k); err != nil {
			k.Wipe()
			return nil, err
		}
	}
	if k.IsEmpty() {
		return nil, ErrNoFactors
	}
	return k, nil
}

// IsEmpty reports whether no factor is configured.
func (k *Key) IsEmpty() bool {
	return k == nil || (k.password == nil && k.keyfile == nil && k.responder == nil)
}

// HasChallengeResponse reports whether computing the raw key involves a challenge-response provider.
func (k *Key) HasChallengeResponse() bool {
	return k != nil && k.responder != nil
}

// Raw computes the 32 byte raw composite key.
// The challenge is only used if a challenge-response factor is configured.
func (k *Key) Raw(challenge []byte) ([]byte, error) {
	if k.IsEmpty() {
		return nil, ErrNoFactors
	}
	var buf bytes.Buffer
	defer func() {
		wipe(buf.Bytes())
	}()
	buf.Write(k.password)
	buf.Write(k.keyfile)
	if k.responder != nil {
		resp, err := k.responder.Respond(bytes.Clone(challenge))
		if err != nil {
			return nil, fmt.Errorf("%w: challenge-response failed: %v", ErrInvalidKeyFactor, err)
		}
		if len(resp) == 0 {
			return nil, fmt.Errorf("%w: empty challenge-response", ErrInvalidKeyFactor)
		}
		sum := sha256.Sum256(resp)
		wipe(resp)
		buf.Write(sum[:])
	}
	raw := sha256.Sum256(buf.Bytes())
	return raw[:], nil
}

// Wipe overwrites the retained factor digests.
func (k *Key) Wipe() {
	if k == nil {
		return
	}
	wipe(k.password)
	wipe(k.keyfile)
	k.password = nil
	k.keyfile = nil
	k.responder = nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
