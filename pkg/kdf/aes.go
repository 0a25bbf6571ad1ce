package kdf

import (
	"crypto/aes"
	"crypto/sha256"
	"fmt"

	"github.com/google/uuid"
	"github.com/saylorsolutions/gokdbx/pkg/variant"
)

const (
	DefaultAESRounds    uint64 = 60_000
	ShortDelayAESRounds uint64 = 1_000
	aesSeedSize                = 32
	paramAESRounds             = "R"
	paramAESSeed               = "S"
)

// AES is the AES-KDF, which encrypts the raw key with AES-256 in ECB mode a configurable number of times.
type AES struct {
	rounds uint64
	seed   []byte
}

type AESOpt = func(*AES) error

// SetRounds allows the caller to customize the round count.
// Only use this option if you know what you're doing.
func SetRounds(rounds uint64) AESOpt {
	return func(k *AES) error {
		if rounds == 0 {
			return fmt.Errorf("%w: rounds cannot be 0", ErrInvalidParameters)
		}
		k.rounds = rounds
		return nil
	}
}

// SetShortDelayRounds sets a lower round count.
// This is appropriate for tests, and situations where a shorter delay is more important than cracking resistance.
func SetShortDelayRounds() AESOpt {
	return func(k *AES) error {
		k.rounds = ShortDelayAESRounds
		return nil
	}
}

// NewAES creates an AES-KDF with a fresh random seed and DefaultAESRounds, unless overridden by the given options.
func NewAES(opts ...AESOpt) (*AES, error) {
	k := &AES{rounds: DefaultAESRounds}
	for _, opt := range opts {
		if err := opt(k); err != nil {
			return nil, err
		}
	}
	if err := k.Reseed(); err != nil {
		return nil, err
	}
	return k, nil
}

func aesFromParams(params *variant.Dictionary) (*AES, error) {
	rounds, ok := params.Uint64(paramAESRounds)
	if !ok {
		return nil, fmt.Errorf("%w: missing AES-KDF rounds", ErrInvalidParameters)
	}
	seed, ok := params.Bytes(paramAESSeed)
	if !ok {
		return nil, fmt.Errorf("%w: missing AES-KDF seed", ErrInvalidParameters)
	}
	k := &AES{rounds: rounds, seed: seed}
	if err := k.validate(); err != nil {
		return nil, err
	}
	return k, nil
}

func (k *AES) validate() error {
	if k.rounds == 0 {
		return fmt.Errorf("%w: rounds cannot be 0", ErrInvalidParameters)
	}
	if len(k.seed) != aesSeedSize {
		return fmt.Errorf("%w: AES-KDF seed must be %d bytes, got %d", ErrInvalidParameters, aesSeedSize, len(k.seed))
	}
	return nil
}

func (k *AES) UUID() uuid.UUID {
	return AESUUID
}

func (k *AES) Rounds() uint64 {
	return k.rounds
}

func (k *AES) Params() *variant.Dictionary {
	d := variant.New()
	d.SetBytes(paramUUID, AESUUID[:])
	d.SetUint64(paramAESRounds, k.rounds)
	d.SetBytes(paramAESSeed, k.seed)
	return d
}

func (k *AES) Reseed() error {
	seed, err := randomBytes(aesSeedSize)
	if err != nil {
		return err
	}
	k.seed = seed
	return nil
}

func (k *AES) Transform(raw []byte) ([]byte, error) {
	if err := k.validate(); err != nil {
		return nil, err
	}
	if len(raw) != TransformedLen {
		return nil, fmt.Errorf("%w: raw key must be %d bytes", ErrInvalidParameters, TransformedLen)
	}
	block, err := aes.NewCipher(k.seed)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES-KDF cipher: %w", err)
	}
	buf := make([]byte, len(raw))
	copy(buf, raw)
	defer wipe(buf)
	for i := uint64(0); i < k.rounds; i++ {
		block.Encrypt(buf[:aes.BlockSize], buf[:aes.BlockSize])
		block.Encrypt(buf[aes.BlockSize:], buf[aes.BlockSize:])
	}
	sum := sha256.Sum256(buf)
	return sum[:], nil
}
