package container

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
)

var (
	ErrCorruptPayload = errors.New("corrupt payload")
)

// Compression is the algorithm applied to the payload before encryption.
type Compression uint32

const (
	CompressionNone Compression = 0
	CompressionGzip Compression = 1
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionGzip:
		return "gzip"
	default:
		return fmt.Sprintf("Compression(%d)", uint32(c))
	}
}

func compress(data []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionNone:
		return data, nil
	case CompressionGzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("failed to compress payload: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("failed to compress payload: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown compression algorithm %d", c)
	}
}

func decompress(data []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionNone:
		return data, nil
	case CompressionGzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
		}
		defer func() {
			_ = r.Close()
		}()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown compression algorithm %d", ErrCorruptPayload, c)
	}
}
