package kdf

import (
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/saylorsolutions/gokdbx/pkg/variant"
	"golang.org/x/crypto/argon2"
)

const (
	DefaultArgon2Iterations  uint64 = 2
	DefaultArgon2Memory      uint64 = 64 << 20
	DefaultArgon2Parallelism uint32 = 2
	ShortDelayArgon2Memory   uint64 = 64 << 10
	Argon2Version13          uint32 = 0x13
	argon2SaltSize                  = 32
	argon2MinSaltSize               = 8
	argon2MaxSaltSize               = 1024
	argon2BlockSize                 = 1024
	argon2MinBlocksPerLane          = 8

	paramArgon2Salt        = "S"
	paramArgon2Parallelism = "P"
	paramArgon2Memory      = "M"
	paramArgon2Iterations  = "I"
	paramArgon2Version     = "V"
	paramArgon2Secret      = "K"
	paramArgon2Assoc       = "A"
)

// MaxArgon2Memory is the largest memory cost accepted, whether set locally or read from a header.
const MaxArgon2Memory uint64 = 2 << 30

// golang.org/x/crypto/argon2 takes the lane count as a uint8.
const argon2MaxParallelism = math.MaxUint8

// Argon2 is the Argon2id KDF.
type Argon2 struct {
	salt        []byte
	iterations  uint64
	memory      uint64
	parallelism uint32
	version     uint32
}

type Argon2Opt = func(*Argon2) error

// SetIterations allows the caller to customize the iteration (time cost) count.
// Only use this option if you know what you're doing.
func SetIterations(iterations uint64) Argon2Opt {
	return func(k *Argon2) error {
		if iterations == 0 || iterations > math.MaxUint32 {
			return fmt.Errorf("%w: iterations must be between 1 and %d", ErrInvalidParameters, uint32(math.MaxUint32))
		}
		k.iterations = iterations
		return nil
	}
}

// SetMemory sets the memory cost in bytes.
// Only use this option if you know what you're doing.
func SetMemory(memory uint64) Argon2Opt {
	return func(k *Argon2) error {
		k.memory = memory
		return k.validateCost()
	}
}

// SetParallelism sets the number of lanes.
// Only use this option if you know what you're doing.
func SetParallelism(lanes uint32) Argon2Opt {
	return func(k *Argon2) error {
		if lanes == 0 || lanes > argon2MaxParallelism {
			return fmt.Errorf("%w: parallelism must be between 1 and %d", ErrInvalidParameters, argon2MaxParallelism)
		}
		k.parallelism = lanes
		return nil
	}
}

// SetShortDelayCost sets the lowest practical cost.
// This is appropriate for tests, and situations where a shorter delay is more important than cracking resistance.
func SetShortDelayCost() Argon2Opt {
	return func(k *Argon2) error {
		k.iterations = 1
		k.memory = ShortDelayArgon2Memory
		k.parallelism = 1
		return nil
	}
}

// NewArgon2 creates an Argon2id KDF with a fresh random salt and default cost parameters, unless overridden by the given options.
func NewArgon2(opts ...Argon2Opt) (*Argon2, error) {
	k := &Argon2{
		iterations:  DefaultArgon2Iterations,
		memory:      DefaultArgon2Memory,
		parallelism: DefaultArgon2Parallelism,
		version:     Argon2Version13,
	}
	for _, opt := range opts {
		if err := opt(k); err != nil {
			return nil, err
		}
	}
	if err := k.Reseed(); err != nil {
		return nil, err
	}
	if err := k.validate(); err != nil {
		return nil, err
	}
	return k, nil
}

func argon2FromParams(params *variant.Dictionary) (*Argon2, error) {
	k := new(Argon2)
	var ok bool
	if k.salt, ok = params.Bytes(paramArgon2Salt); !ok {
		return nil, fmt.Errorf("%w: missing Argon2 salt", ErrInvalidParameters)
	}
	if k.parallelism, ok = params.Uint32(paramArgon2Parallelism); !ok {
		return nil, fmt.Errorf("%w: missing Argon2 parallelism", ErrInvalidParameters)
	}
	if k.memory, ok = params.Uint64(paramArgon2Memory); !ok {
		return nil, fmt.Errorf("%w: missing Argon2 memory", ErrInvalidParameters)
	}
	if k.iterations, ok = params.Uint64(paramArgon2Iterations); !ok {
		return nil, fmt.Errorf("%w: missing Argon2 iterations", ErrInvalidParameters)
	}
	if k.version, ok = params.Uint32(paramArgon2Version); !ok {
		return nil, fmt.Errorf("%w: missing Argon2 version", ErrInvalidParameters)
	}
	for _, unsupported := range []string{paramArgon2Secret, paramArgon2Assoc} {
		if val, ok := params.Bytes(unsupported); ok && len(val) > 0 {
			return nil, fmt.Errorf("%w: Argon2 parameter '%s' is not supported", ErrInvalidParameters, unsupported)
		}
	}
	if err := k.validate(); err != nil {
		return nil, err
	}
	return k, nil
}

func (k *Argon2) validateCost() error {
	if k.memory%argon2BlockSize != 0 {
		return fmt.Errorf("%w: memory must be a multiple of %d bytes", ErrInvalidParameters, argon2BlockSize)
	}
	if k.memory > MaxArgon2Memory {
		return fmt.Errorf("%w: memory cost may not exceed %d bytes", ErrInvalidParameters, MaxArgon2Memory)
	}
	kib := k.memory / argon2BlockSize
	lanes := uint64(k.parallelism)
	if lanes == 0 {
		lanes = 1
	}
	if kib < argon2MinBlocksPerLane*lanes {
		return fmt.Errorf("%w: memory must be at least %d KiB per lane", ErrInvalidParameters, argon2MinBlocksPerLane)
	}
	return nil
}

func (k *Argon2) validate() error {
	if len(k.salt) < argon2MinSaltSize || len(k.salt) > argon2MaxSaltSize {
		return fmt.Errorf("%w: salt must be between %d and %d bytes", ErrInvalidParameters, argon2MinSaltSize, argon2MaxSaltSize)
	}
	if k.parallelism == 0 || k.parallelism > argon2MaxParallelism {
		return fmt.Errorf("%w: parallelism must be between 1 and %d", ErrInvalidParameters, argon2MaxParallelism)
	}
	if k.iterations == 0 || k.iterations > math.MaxUint32 {
		return fmt.Errorf("%w: iterations must be between 1 and %d", ErrInvalidParameters, uint32(math.MaxUint32))
	}
	if k.version != Argon2Version13 {
		return fmt.Errorf("%w: unsupported Argon2 version 0x%x", ErrInvalidParameters, k.version)
	}
	return k.validateCost()
}

func (k *Argon2) UUID() uuid.UUID {
	return Argon2idUUID
}

func (k *Argon2) Iterations() uint64 {
	return k.iterations
}

func (k *Argon2) Memory() uint64 {
	return k.memory
}

func (k *Argon2) Parallelism() uint32 {
	return k.parallelism
}

func (k *Argon2) Params() *variant.Dictionary {
	d := variant.New()
	d.SetBytes(paramUUID, Argon2idUUID[:])
	d.SetBytes(paramArgon2Salt, k.salt)
	d.SetUint32(paramArgon2Parallelism, k.parallelism)
	d.SetUint64(paramArgon2Memory, k.memory)
	d.SetUint64(paramArgon2Iterations, k.iterations)
	d.SetUint32(paramArgon2Version, k.version)
	return d
}

func (k *Argon2) Reseed() error {
	salt, err := randomBytes(argon2SaltSize)
	if err != nil {
		return err
	}
	k.salt = salt
	return nil
}

func (k *Argon2) Transform(raw []byte) ([]byte, error) {
	if err := k.validate(); err != nil {
		return nil, err
	}
	return argon2.IDKey(raw, k.salt, uint32(k.iterations), uint32(k.memory/argon2BlockSize), uint8(k.parallelism), TransformedLen), nil
}
