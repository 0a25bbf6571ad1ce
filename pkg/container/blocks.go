package container

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"io"
	"runtime"
	"sync"
	"sync/atomic"

	bin "github.com/saylorsolutions/binmap"
	"github.com/saylorsolutions/gokdbx/pkg/kdf"
)

const (
	DefaultBlockSize = 1 << 20
	// MaxBlockSize is the largest block length accepted when reading.
	MaxBlockSize = 64 << 20
	tagSize      = sha256.Size
)

var (
	// ErrIntegrity is returned when any authentication check fails.
	// A wrong key and a modified container can't be told apart, so no further detail is given.
	ErrIntegrity = errors.New("integrity check failed")
)

type block struct {
	index uint64
	tag   [tagSize]byte
	data  []byte
}

func blockTag(mk *kdf.MasterKey, index uint64, data []byte) []byte {
	mac := hmac.New(sha256.New, mk.BlockKey(index))
	mac.Write(binary.LittleEndian.AppendUint64(nil, index))
	mac.Write(binary.LittleEndian.AppendUint32(nil, uint32(len(data))))
	mac.Write(data)
	return mac.Sum(nil)
}

func headerTag(mk *kdf.MasterKey, header []byte) []byte {
	mac := hmac.New(sha256.New, mk.BlockKey(kdf.HeaderBlockIndex))
	mac.Write(header)
	return mac.Sum(nil)
}

func (b *block) verify(mk *kdf.MasterKey) bool {
	return hmac.Equal(b.tag[:], blockTag(mk, b.index, b.data))
}

// writeBlocks chunks the ciphertext into authenticated blocks, followed by an empty terminating block.
func writeBlocks(w io.Writer, ciphertext []byte, mk *kdf.MasterKey, blockSize int) error {
	if blockSize <= 0 || blockSize > MaxBlockSize {
		blockSize = DefaultBlockSize
	}
	var index uint64
	for {
		n := min(blockSize, len(ciphertext))
		chunk := ciphertext[:n]
		ciphertext = ciphertext[n:]
		length := uint32(n)
		if _, err := w.Write(blockTag(mk, index, chunk)); err != nil {
			return err
		}
		if err := bin.Int(&length).Write(w, binary.LittleEndian); err != nil {
			return err
		}
		if _, err := w.Write(chunk); err != nil {
			return err
		}
		index++
		if n == 0 {
			return nil
		}
	}
}

// readBlocks reads every block up to the terminating block, and only returns the joined ciphertext if every tag is valid.
func readBlocks(r io.Reader, mk *kdf.MasterKey) ([]byte, error) {
	var blocks []*block
	for index := uint64(0); ; index++ {
		b := &block{index: index}
		if _, err := io.ReadFull(r, b.tag[:]); err != nil {
			return nil, ErrIntegrity
		}
		var length uint32
		if err := bin.Int(&length).Read(r, binary.LittleEndian); err != nil {
			return nil, ErrIntegrity
		}
		if length > MaxBlockSize {
			return nil, ErrIntegrity
		}
		// Memory grows with the bytes actually read, not with the declared length.
		var data bytes.Buffer
		if _, err := io.CopyN(&data, r, int64(length)); err != nil {
			return nil, ErrIntegrity
		}
		b.data = data.Bytes()
		blocks = append(blocks, b)
		if length == 0 {
			break
		}
	}
	if !verifyAll(blocks, mk) {
		return nil, ErrIntegrity
	}

	var buf bytes.Buffer
	for _, b := range blocks {
		buf.Write(b.data)
	}
	return buf.Bytes(), nil
}

// verifyAll checks block tags concurrently.
// Nothing is released to the caller unless every block passes.
func verifyAll(blocks []*block, mk *kdf.MasterKey) bool {
	var (
		failed  atomic.Bool
		wg      sync.WaitGroup
		next    atomic.Int64
		workers = min(runtime.GOMAXPROCS(0), len(blocks))
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !failed.Load() {
				i := int(next.Add(1) - 1)
				if i >= len(blocks) {
					return
				}
				if !blocks[i].verify(mk) {
					failed.Store(true)
				}
			}
		}()
	}
	wg.Wait()
	return !failed.Load()
}
