package container

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/saylorsolutions/gokdbx/pkg/protect"
)

type innerFieldID = uint8

const (
	innerEndOfHeader innerFieldID = 0
	innerStreamID    innerFieldID = 1
	innerStreamKey   innerFieldID = 2
	innerBinary      innerFieldID = 3

	binaryFlagProtected byte = 0x01
)

// Binary is attachment content carried in the inner header.
// Binaries are referenced from the document by their position.
type Binary struct {
	Protected bool
	Data      []byte
}

// InnerHeader is the header at the start of the decrypted payload.
type InnerHeader struct {
	StreamID  protect.StreamID
	StreamKey []byte
	Binaries  []Binary
}

// NewStream creates the inner stream described by this header.
func (h *InnerHeader) NewStream() (*protect.Stream, error) {
	return protect.NewStream(h.StreamID, h.StreamKey)
}

func readInnerHeader(r *bytes.Reader) (*InnerHeader, error) {
	h := new(InnerHeader)
	var sawID, sawKey bool
	for {
		id, data, err := readField(r)
		if err != nil {
			return nil, fmt.Errorf("%w: inner header: %v", ErrCorruptPayload, err)
		}
		switch id {
		case innerEndOfHeader:
			if !sawID || !sawKey {
				return nil, fmt.Errorf("%w: inner header is missing stream parameters", ErrCorruptPayload)
			}
			return h, nil
		case innerStreamID:
			if len(data) != 4 {
				return nil, fmt.Errorf("%w: malformed inner stream id", ErrCorruptPayload)
			}
			h.StreamID = protect.StreamID(binary.LittleEndian.Uint32(data))
			sawID = true
		case innerStreamKey:
			h.StreamKey = data
			sawKey = true
		case innerBinary:
			if len(data) == 0 {
				return nil, fmt.Errorf("%w: malformed inner binary", ErrCorruptPayload)
			}
			h.Binaries = append(h.Binaries, Binary{
				Protected: data[0]&binaryFlagProtected != 0,
				Data:      data[1:],
			})
		default:
			// Unknown inner fields are skipped.
		}
	}
}

func (h *InnerHeader) writeTo(buf *bytes.Buffer) error {
	if err := writeField(buf, innerStreamID, binary.LittleEndian.AppendUint32(nil, uint32(h.StreamID))); err != nil {
		return err
	}
	if err := writeField(buf, innerStreamKey, h.StreamKey); err != nil {
		return err
	}
	for _, b := range h.Binaries {
		var flags byte
		if b.Protected {
			flags |= binaryFlagProtected
		}
		data := make([]byte, 0, len(b.Data)+1)
		data = append(data, flags)
		data = append(data, b.Data...)
		if err := writeField(buf, innerBinary, data); err != nil {
			return err
		}
	}
	return writeField(buf, innerEndOfHeader, nil)
}
