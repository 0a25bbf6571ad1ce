package kdbx

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/saylorsolutions/gokdbx/pkg/container"
	"github.com/saylorsolutions/gokdbx/pkg/kdf"
	"github.com/saylorsolutions/gokdbx/pkg/protect"
	"github.com/saylorsolutions/gokdbx/pkg/variant"
)

// Settings control how a Database is encoded.
// Decoding a database fills these in from its header, so re-encoding keeps the same algorithms.
type Settings struct {
	Cipher           uuid.UUID
	Compression      container.Compression
	KDF              kdf.KDF
	InnerStream      protect.StreamID
	PublicCustomData *variant.Dictionary
}

type SettingsOpt = func(*Settings) error

// SetCipher selects the outer cipher.
func SetCipher(id uuid.UUID) SettingsOpt {
	return func(s *Settings) error {
		if _, err := container.IVSize(id); err != nil {
			return err
		}
		s.Cipher = id
		return nil
	}
}

// SetCompression selects payload compression.
func SetCompression(c container.Compression) SettingsOpt {
	return func(s *Settings) error {
		switch c {
		case container.CompressionNone, container.CompressionGzip:
			s.Compression = c
			return nil
		default:
			return fmt.Errorf("%w: unknown compression %d", ErrMalformedHeader, uint32(c))
		}
	}
}

// SetKDF selects the key derivation function and its parameters.
func SetKDF(k kdf.KDF) SettingsOpt {
	return func(s *Settings) error {
		if k == nil {
			return fmt.Errorf("%w: nil KDF", ErrInvalidKDFParameters)
		}
		s.KDF = k
		return nil
	}
}

// SetInnerStream selects the stream used to protect values inside the document.
func SetInnerStream(id protect.StreamID) SettingsOpt {
	return func(s *Settings) error {
		if id.KeySize() == 0 {
			return fmt.Errorf("%w: %s", ErrUnsupportedStream, id)
		}
		s.InnerStream = id
		return nil
	}
}

// DefaultSettings returns ChaCha20 encryption with gzip compression, Argon2id key derivation with default cost, and a
// ChaCha20 inner stream.
func DefaultSettings() (Settings, error) {
	k, err := kdf.NewArgon2()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		Cipher:      container.ChaCha20UUID,
		Compression: container.CompressionGzip,
		KDF:         k,
		InnerStream: protect.StreamChaCha20,
	}, nil
}

func (s *Settings) apply(opts ...SettingsOpt) error {
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return err
		}
	}
	return nil
}
