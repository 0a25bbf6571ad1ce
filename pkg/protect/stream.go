package protect

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/salsa20/salsa"
)

var (
	ErrUnsupportedStream = errors.New("unsupported inner stream")
)

// StreamID identifies the inner stream algorithm, as stored in the inner header.
type StreamID uint32

const (
	StreamNone     StreamID = 0
	StreamArcFour  StreamID = 1
	StreamSalsa20  StreamID = 2
	StreamChaCha20 StreamID = 3
)

func (id StreamID) String() string {
	switch id {
	case StreamNone:
		return "None"
	case StreamArcFour:
		return "ArcFour"
	case StreamSalsa20:
		return "Salsa20"
	case StreamChaCha20:
		return "ChaCha20"
	default:
		return fmt.Sprintf("StreamID(%d)", uint32(id))
	}
}

// KeySize is the length of a freshly generated inner stream key for the given stream.
func (id StreamID) KeySize() int {
	switch id {
	case StreamSalsa20:
		return 32
	case StreamChaCha20:
		return 64
	default:
		return 0
	}
}

var salsa20Nonce = [8]byte{0xE8, 0x30, 0x09, 0x4B, 0x97, 0x20, 0x5D, 0x2A}

// Stream is the inner keystream shared by all protected values of one document.
// A Stream is stateful and not safe for concurrent use.
type Stream struct {
	id  StreamID
	scr *screen
}

// NewStream constructs the keystream for the given stream identifier and inner stream key.
func NewStream(id StreamID, key []byte) (*Stream, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: empty inner stream key", ErrUnsupportedStream)
	}
	var next blockFunc
	switch id {
	case StreamSalsa20:
		next = salsa20Blocks(sha256.Sum256(key))
	case StreamChaCha20:
		var err error
		next, err = chacha20Blocks(sha512.Sum512(key))
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedStream, id)
	}
	return &Stream{id: id, scr: newScreen(next)}, nil
}

func salsa20Blocks(key [32]byte) blockFunc {
	var (
		counter [16]byte
		index   uint64
		zero    [blockSize]byte
	)
	copy(counter[:8], salsa20Nonce[:])
	return func(block *[blockSize]byte) {
		binary.LittleEndian.PutUint64(counter[8:], index)
		salsa.XORKeyStream(block[:], zero[:], &counter, &key)
		index++
	}
}

func chacha20Blocks(hash [64]byte) (blockFunc, error) {
	c, err := chacha20.NewUnauthenticatedCipher(hash[:chacha20.KeySize], hash[chacha20.KeySize:chacha20.KeySize+chacha20.NonceSize])
	if err != nil {
		return nil, fmt.Errorf("failed to create ChaCha20 inner stream: %w", err)
	}
	var zero [blockSize]byte
	return func(block *[blockSize]byte) {
		c.XORKeyStream(block[:], zero[:])
	}, nil
}

// ID returns the algorithm of this Stream.
func (s *Stream) ID() StreamID {
	return s.id
}

// Position returns the number of keystream bytes consumed so far.
func (s *Stream) Position() uint64 {
	return s.scr.pos
}

// XORKeyStream XORs each byte in src with the next keystream byte and writes it to dst.
// Dst and src must overlap entirely or not at all.
func (s *Stream) XORKeyStream(dst, src []byte) {
	if len(dst) < len(src) {
		panic("protect: output smaller than input")
	}
	for i := 0; i < len(src); i++ {
		dst[i] = s.scr.screen(src[i])
	}
}

// Process returns a new slice with the given data XORed with the next len(data) keystream bytes.
func (s *Stream) Process(data []byte) []byte {
	out := make([]byte, len(data))
	s.XORKeyStream(out, data)
	return out
}

// Wipe clears buffered keystream material.
func (s *Stream) Wipe() {
	s.scr.wipe()
}
