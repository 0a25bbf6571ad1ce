package container

import (
	"bufio"
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/saylorsolutions/gokdbx/pkg/compositekey"
	"github.com/saylorsolutions/gokdbx/pkg/kdf"
)

// Payload is the decrypted content of a container.
type Payload struct {
	Header   *Header
	Inner    *InnerHeader
	Document []byte
}

type sealConfig struct {
	blockSize int
}

type SealOpt = func(*sealConfig) error

// SetBlockSize overrides DefaultBlockSize for the authenticated block stream.
func SetBlockSize(size int) SealOpt {
	return func(c *sealConfig) error {
		if size <= 0 || size > MaxBlockSize {
			return fmt.Errorf("block size must be between 1 and %d, got %d", MaxBlockSize, size)
		}
		c.blockSize = size
		return nil
	}
}

// Open reads, authenticates and decrypts a container.
// No part of the payload is returned unless every integrity check passes.
func Open(ctx context.Context, r io.Reader, key *compositekey.Key) (*Payload, error) {
	br := bufio.NewReader(r)
	header, rawHeader, err := ReadHeader(br)
	if err != nil {
		return nil, err
	}
	k, err := kdf.FromParams(header.KDFParams)
	if err != nil {
		return nil, err
	}

	var hash, tag [sha256.Size]byte
	if _, err := io.ReadFull(br, hash[:]); err != nil {
		return nil, fmt.Errorf("%w: missing header checksum", ErrMalformedHeader)
	}
	if sum := sha256.Sum256(rawHeader); !hmac.Equal(sum[:], hash[:]) {
		return nil, fmt.Errorf("%w: header checksum mismatch", ErrMalformedHeader)
	}
	if _, err := io.ReadFull(br, tag[:]); err != nil {
		return nil, fmt.Errorf("%w: missing header authentication tag", ErrMalformedHeader)
	}

	mk, err := masterKey(ctx, k, key, header.MasterSeed)
	if err != nil {
		return nil, err
	}
	defer mk.Wipe()

	if !hmac.Equal(tag[:], headerTag(mk, rawHeader)) {
		return nil, ErrIntegrity
	}
	ciphertext, err := readBlocks(br, mk)
	if err != nil {
		return nil, err
	}
	bc, err := newBodyCipher(header.CipherID, mk.Cipher, header.IV)
	if err != nil {
		return nil, err
	}
	plaintext, err := bc.decrypt(ciphertext)
	if err != nil {
		return nil, err
	}
	payload, err := decompress(plaintext, header.Compression)
	if err != nil {
		wipe(plaintext)
		return nil, err
	}
	if header.Compression != CompressionNone {
		wipe(plaintext)
	}

	pr := bytes.NewReader(payload)
	inner, err := readInnerHeader(pr)
	if err != nil {
		return nil, err
	}
	return &Payload{
		Header:   header,
		Inner:    inner,
		Document: payload[len(payload)-pr.Len():],
	}, nil
}

// Seal encrypts the payload and writes the container to w.
// The header's master seed, IV and KDF parameters are replaced with freshly generated values using the given KDF.
func Seal(ctx context.Context, w io.Writer, p *Payload, k kdf.KDF, key *compositekey.Key, opts ...SealOpt) error {
	cfg := &sealConfig{blockSize: DefaultBlockSize}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return err
		}
	}
	if p == nil || p.Header == nil || p.Inner == nil {
		return fmt.Errorf("%w: incomplete payload", ErrMalformedHeader)
	}
	header := p.Header
	ivSize, err := IVSize(header.CipherID)
	if err != nil {
		return err
	}
	if err := k.Reseed(); err != nil {
		return err
	}
	header.VersionMajor = VersionMajor
	header.VersionMinor = VersionMinor
	header.KDFParams = k.Params()
	if header.MasterSeed, err = randomBytes(MasterSeedSize); err != nil {
		return err
	}
	if header.IV, err = randomBytes(ivSize); err != nil {
		return err
	}
	rawHeader, err := header.MarshalBinary()
	if err != nil {
		return err
	}

	mk, err := masterKey(ctx, k, key, header.MasterSeed)
	if err != nil {
		return err
	}
	defer mk.Wipe()

	var plain bytes.Buffer
	if err := p.Inner.writeTo(&plain); err != nil {
		return err
	}
	plain.Write(p.Document)
	defer wipe(plain.Bytes())
	compressed, err := compress(plain.Bytes(), header.Compression)
	if err != nil {
		return err
	}
	bc, err := newBodyCipher(header.CipherID, mk.Cipher, header.IV)
	if err != nil {
		return err
	}
	ciphertext, err := bc.encrypt(compressed)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	hash := sha256.Sum256(rawHeader)
	for _, part := range [][]byte{rawHeader, hash[:], headerTag(mk, rawHeader)} {
		if _, err := bw.Write(part); err != nil {
			return err
		}
	}
	if err := writeBlocks(bw, ciphertext, mk, cfg.blockSize); err != nil {
		return err
	}
	return bw.Flush()
}

func masterKey(ctx context.Context, k kdf.KDF, key *compositekey.Key, masterSeed []byte) (*kdf.MasterKey, error) {
	raw, err := key.Raw(masterSeed)
	if err != nil {
		return nil, err
	}
	defer wipe(raw)
	transformed, err := kdf.Derive(ctx, k, raw)
	if err != nil {
		return nil, err
	}
	defer wipe(transformed)
	return kdf.Split(masterSeed, transformed), nil
}

func randomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return buf, nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
