package container

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/twofish"
)

var (
	ErrUnsupportedCipher = errors.New("unsupported cipher")
)

var (
	AES256UUID   = uuid.MustParse("31c1f2e6-bf71-4350-be58-05216afc5aff")
	TwofishUUID  = uuid.MustParse("ad68f29f-576f-4bb9-a36a-d47af965346c")
	ChaCha20UUID = uuid.MustParse("d6038a2b-8b6f-4cb5-a524-339a31dbb59a")
)

// CipherName returns a human-readable name for a cipher identifier.
func CipherName(id uuid.UUID) string {
	switch id {
	case AES256UUID:
		return "AES-256"
	case TwofishUUID:
		return "Twofish"
	case ChaCha20UUID:
		return "ChaCha20"
	default:
		return id.String()
	}
}

// IVSize returns the IV length required by the given cipher.
func IVSize(id uuid.UUID) (int, error) {
	switch id {
	case AES256UUID:
		return aes.BlockSize, nil
	case TwofishUUID:
		return twofish.BlockSize, nil
	case ChaCha20UUID:
		return chacha20.NonceSize, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedCipher, id)
	}
}

type bodyCipher interface {
	encrypt(plaintext []byte) ([]byte, error)
	decrypt(ciphertext []byte) ([]byte, error)
}

func newBodyCipher(id uuid.UUID, key, iv []byte) (bodyCipher, error) {
	ivSize, err := IVSize(id)
	if err != nil {
		return nil, err
	}
	if len(iv) != ivSize {
		return nil, fmt.Errorf("%w: IV must be %d bytes for %s", ErrMalformedHeader, ivSize, CipherName(id))
	}
	switch id {
	case AES256UUID:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("failed to create AES cipher: %w", err)
		}
		return &cbcCipher{block: block, iv: iv}, nil
	case TwofishUUID:
		block, err := twofish.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("failed to create Twofish cipher: %w", err)
		}
		return &cbcCipher{block: block, iv: iv}, nil
	default:
		return &chachaCipher{key: key, nonce: iv}, nil
	}
}

type cbcCipher struct {
	block cipher.Block
	iv    []byte
}

func (c *cbcCipher) encrypt(plaintext []byte) ([]byte, error) {
	bs := c.block.BlockSize()
	padLen := bs - len(plaintext)%bs
	out := make([]byte, len(plaintext)+padLen)
	copy(out, plaintext)
	copy(out[len(plaintext):], bytes.Repeat([]byte{byte(padLen)}, padLen))
	cipher.NewCBCEncrypter(c.block, c.iv).CryptBlocks(out, out)
	return out, nil
}

func (c *cbcCipher) decrypt(ciphertext []byte) ([]byte, error) {
	bs := c.block.BlockSize()
	if len(ciphertext) == 0 || len(ciphertext)%bs != 0 {
		return nil, fmt.Errorf("%w: ciphertext is not a whole number of blocks", ErrCorruptPayload)
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(c.block, c.iv).CryptBlocks(out, ciphertext)
	padLen := int(out[len(out)-1])
	if padLen == 0 || padLen > bs {
		return nil, fmt.Errorf("%w: invalid padding", ErrCorruptPayload)
	}
	for _, b := range out[len(out)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("%w: invalid padding", ErrCorruptPayload)
		}
	}
	return out[:len(out)-padLen], nil
}

type chachaCipher struct {
	key   []byte
	nonce []byte
}

func (c *chachaCipher) xor(in []byte) ([]byte, error) {
	stream, err := chacha20.NewUnauthenticatedCipher(c.key, c.nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to create ChaCha20 cipher: %w", err)
	}
	out := make([]byte, len(in))
	stream.XORKeyStream(out, in)
	return out, nil
}

func (c *chachaCipher) encrypt(plaintext []byte) ([]byte, error) {
	return c.xor(plaintext)
}

func (c *chachaCipher) decrypt(ciphertext []byte) ([]byte, error) {
	return c.xor(ciphertext)
}
