package otp

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"time"
)

const (
	DefaultDigits    = 6
	DefaultTimeSlice = 30 * time.Second
	MinDigits        = 1
	MaxDigits        = 10
)

var (
	ErrUnsupportedGeneratorType = errors.New("unsupported OTP generator type")
	ErrMalformedOptions         = errors.New("malformed OTP options")
)

// Type is the kind of one-time password generated.
type Type int

const (
	TypeHOTP Type = iota
	TypeTOTP
	TypeSteam
)

func (t Type) String() string {
	switch t {
	case TypeHOTP:
		return "hotp"
	case TypeTOTP:
		return "totp"
	case TypeSteam:
		return "steam"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// Algorithm is the HMAC hash function.
type Algorithm int

const (
	SHA1 Algorithm = iota
	SHA256
	SHA512
)

func (a Algorithm) String() string {
	switch a {
	case SHA1:
		return "SHA1"
	case SHA256:
		return "SHA256"
	case SHA512:
		return "SHA512"
	default:
		return fmt.Sprintf("Algorithm(%d)", int(a))
	}
}

func (a Algorithm) hash() (func() hash.Hash, error) {
	switch a {
	case SHA1:
		return sha1.New, nil
	case SHA256:
		return sha256.New, nil
	case SHA512:
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("%w: unknown algorithm %s", ErrMalformedOptions, a)
	}
}

// Config holds everything needed to generate codes.
type Config struct {
	Key       []byte
	Type      Type
	Algorithm Algorithm
	Digits    int
	// TimeBase is the instant at which the TOTP counter is zero.
	TimeBase  time.Time
	TimeSlice time.Duration
	// Counter is the moving factor for HOTP.
	Counter uint64
}

// DefaultConfig returns a TOTP configuration with RFC 6238 defaults and no key.
func DefaultConfig() Config {
	return Config{
		Type:      TypeTOTP,
		Algorithm: SHA1,
		Digits:    DefaultDigits,
		TimeBase:  time.Unix(0, 0).UTC(),
		TimeSlice: DefaultTimeSlice,
	}
}

// Validate checks that the Config can generate codes.
func (c Config) Validate() error {
	switch c.Type {
	case TypeHOTP, TypeTOTP:
	case TypeSteam:
		return ErrUnsupportedGeneratorType
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedGeneratorType, c.Type)
	}
	if len(c.Key) == 0 {
		return fmt.Errorf("%w: missing key", ErrMalformedOptions)
	}
	if c.Digits < MinDigits || c.Digits > MaxDigits {
		return fmt.Errorf("%w: digits must be between %d and %d", ErrMalformedOptions, MinDigits, MaxDigits)
	}
	if _, err := c.Algorithm.hash(); err != nil {
		return err
	}
	if c.Type == TypeTOTP && c.TimeSlice < time.Second {
		return fmt.Errorf("%w: period must be at least one second", ErrMalformedOptions)
	}
	return nil
}

// CounterAt returns the TOTP counter for the given time.
// Times before TimeBase map to counter zero.
func (c Config) CounterAt(t time.Time) uint64 {
	if c.TimeSlice <= 0 {
		return 0
	}
	elapsed := t.Sub(c.TimeBase)
	if elapsed < 0 {
		return 0
	}
	return uint64(elapsed / c.TimeSlice)
}

// HOTP computes the RFC 4226 code for the given counter.
func HOTP(key []byte, counter uint64, digits int, alg Algorithm) (string, error) {
	if digits < MinDigits || digits > MaxDigits {
		return "", fmt.Errorf("%w: digits must be between %d and %d", ErrMalformedOptions, MinDigits, MaxDigits)
	}
	h, err := alg.hash()
	if err != nil {
		return "", err
	}
	mac := hmac.New(h, key)
	mac.Write(binary.BigEndian.AppendUint64(nil, counter))
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	truncated := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	mod := uint64(1)
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, uint64(truncated)%mod), nil
}

// Generator produces codes for a single Config.
type Generator struct {
	cfg Config
}

// NewGenerator validates the Config and creates a Generator for it.
func NewGenerator(cfg Config) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Generator{cfg: cfg}, nil
}

// Config returns a copy of the current configuration.
func (g *Generator) Config() Config {
	cfg := g.cfg
	cfg.Key = append([]byte(nil), g.cfg.Key...)
	return cfg
}

// Setup replaces the configuration with one parsed from opts.
// If any option is malformed then the error is returned and the Generator is unchanged.
func (g *Generator) Setup(opts map[string]string) error {
	cfg, err := ParseConfig(opts)
	if err != nil {
		return err
	}
	g.cfg = cfg
	return nil
}

// Code returns the code valid at time t. HOTP generators ignore t and use the configured counter.
func (g *Generator) Code(t time.Time) (string, error) {
	if err := g.cfg.Validate(); err != nil {
		return "", err
	}
	counter := g.cfg.Counter
	if g.cfg.Type == TypeTOTP {
		counter = g.cfg.CounterAt(t)
	}
	return HOTP(g.cfg.Key, counter, g.cfg.Digits, g.cfg.Algorithm)
}

// Remaining returns how long the TOTP code at time t stays valid.
// It's zero for HOTP generators.
func (g *Generator) Remaining(t time.Time) time.Duration {
	if g.cfg.Type != TypeTOTP || g.cfg.TimeSlice <= 0 {
		return 0
	}
	elapsed := t.Sub(g.cfg.TimeBase)
	if elapsed < 0 {
		return g.cfg.TimeBase.Sub(t) + g.cfg.TimeSlice
	}
	return g.cfg.TimeSlice - elapsed%g.cfg.TimeSlice
}
