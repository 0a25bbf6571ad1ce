package container

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/google/uuid"
	bin "github.com/saylorsolutions/binmap"
	"github.com/saylorsolutions/gokdbx/pkg/variant"
)

const (
	Signature1     uint32 = 0x9AA2D903
	Signature2     uint32 = 0xB54BFB67
	VersionMajor   uint16 = 4
	VersionMinor   uint16 = 1
	MasterSeedSize        = 32
	maxFieldSize          = 16 << 20
)

type headerFieldID = uint8

const (
	fieldEndOfHeader      headerFieldID = 0
	fieldComment          headerFieldID = 1
	fieldCipherID         headerFieldID = 2
	fieldCompression      headerFieldID = 3
	fieldMasterSeed       headerFieldID = 4
	fieldEncryptionIV     headerFieldID = 7
	fieldKDFParameters    headerFieldID = 11
	fieldPublicCustomData headerFieldID = 12
)

var (
	ErrMalformedHeader    = errors.New("malformed container header")
	ErrUnsupportedVersion = errors.New("unsupported container version")
)

// Header is the unencrypted metadata of a container.
type Header struct {
	VersionMajor     uint16
	VersionMinor     uint16
	CipherID         uuid.UUID
	Compression      Compression
	MasterSeed       []byte
	IV               []byte
	KDFParams        *variant.Dictionary
	PublicCustomData *variant.Dictionary
}

type preamble struct {
	sig1  uint32
	sig2  uint32
	minor uint16
	major uint16
}

func (p *preamble) mapper() bin.Mapper {
	return bin.MapSequence(
		bin.Int(&p.sig1),
		bin.Int(&p.sig2),
		bin.Int(&p.minor),
		bin.Int(&p.major),
	)
}

type fieldPrefix struct {
	id   uint8
	size uint32
}

func (p *fieldPrefix) mapper() bin.Mapper {
	return bin.MapSequence(
		bin.Byte(&p.id),
		bin.Int(&p.size),
	)
}

func readField(r io.Reader) (uint8, []byte, error) {
	var prefix fieldPrefix
	if err := prefix.mapper().Read(r, binary.LittleEndian); err != nil {
		return 0, nil, err
	}
	if prefix.size > maxFieldSize {
		return 0, nil, fmt.Errorf("field %d size %d exceeds limit", prefix.id, prefix.size)
	}
	data := make([]byte, prefix.size)
	if _, err := io.ReadFull(r, data); err != nil {
		return 0, nil, err
	}
	return prefix.id, data, nil
}

func writeField(w io.Writer, id uint8, data []byte) error {
	if uint64(len(data)) > math.MaxUint32 {
		return fmt.Errorf("field %d is too large", id)
	}
	prefix := fieldPrefix{id: id, size: uint32(len(data))}
	if err := prefix.mapper().Write(w, binary.LittleEndian); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// ReadHeader reads the outer header from r, and returns it along with the exact bytes read for hashing.
func ReadHeader(r io.Reader) (*Header, []byte, error) {
	var raw bytes.Buffer
	tee := io.TeeReader(r, &raw)

	var pre preamble
	if err := pre.mapper().Read(tee, binary.LittleEndian); err != nil {
		return nil, nil, fmt.Errorf("%w: failed to read signature: %v", ErrMalformedHeader, err)
	}
	if pre.sig1 != Signature1 || pre.sig2 != Signature2 {
		return nil, nil, fmt.Errorf("%w: not a database container", ErrMalformedHeader)
	}
	if pre.major != VersionMajor {
		return nil, nil, fmt.Errorf("%w: %d.%d", ErrUnsupportedVersion, pre.major, pre.minor)
	}

	h := &Header{
		VersionMajor: pre.major,
		VersionMinor: pre.minor,
	}
	seen := map[uint8]bool{}
	for {
		id, data, err := readField(tee)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
		}
		if id == fieldEndOfHeader {
			break
		}
		if seen[id] {
			return nil, nil, fmt.Errorf("%w: duplicate field %d", ErrMalformedHeader, id)
		}
		seen[id] = true
		if err := h.setField(id, data); err != nil {
			return nil, nil, err
		}
	}
	if err := h.validate(); err != nil {
		return nil, nil, err
	}
	return h, raw.Bytes(), nil
}

func (h *Header) setField(id uint8, data []byte) error {
	switch id {
	case fieldCipherID:
		cid, err := uuid.FromBytes(data)
		if err != nil {
			return fmt.Errorf("%w: malformed cipher id", ErrMalformedHeader)
		}
		h.CipherID = cid
	case fieldCompression:
		if len(data) != 4 {
			return fmt.Errorf("%w: malformed compression flags", ErrMalformedHeader)
		}
		h.Compression = Compression(binary.LittleEndian.Uint32(data))
	case fieldMasterSeed:
		h.MasterSeed = data
	case fieldEncryptionIV:
		h.IV = data
	case fieldKDFParameters:
		params := variant.New()
		if err := params.UnmarshalBinary(data); err != nil {
			return fmt.Errorf("%w: KDF parameters: %v", ErrMalformedHeader, err)
		}
		h.KDFParams = params
	case fieldPublicCustomData:
		custom := variant.New()
		if err := custom.UnmarshalBinary(data); err != nil {
			return fmt.Errorf("%w: public custom data: %v", ErrMalformedHeader, err)
		}
		h.PublicCustomData = custom
	default:
		// Comments and fields from older versions carry nothing this version needs.
	}
	return nil
}

func (h *Header) validate() error {
	if h.CipherID == uuid.Nil {
		return fmt.Errorf("%w: missing cipher id", ErrMalformedHeader)
	}
	ivSize, err := IVSize(h.CipherID)
	if err != nil {
		return err
	}
	if len(h.IV) != ivSize {
		return fmt.Errorf("%w: IV must be %d bytes, got %d", ErrMalformedHeader, ivSize, len(h.IV))
	}
	if len(h.MasterSeed) != MasterSeedSize {
		return fmt.Errorf("%w: master seed must be %d bytes, got %d", ErrMalformedHeader, MasterSeedSize, len(h.MasterSeed))
	}
	if h.KDFParams == nil {
		return fmt.Errorf("%w: missing KDF parameters", ErrMalformedHeader)
	}
	if h.Compression > CompressionGzip {
		return fmt.Errorf("%w: unknown compression algorithm %d", ErrMalformedHeader, h.Compression)
	}
	return nil
}

// MarshalBinary renders the header in the current container version.
func (h *Header) MarshalBinary() ([]byte, error) {
	if err := h.validate(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	pre := preamble{
		sig1:  Signature1,
		sig2:  Signature2,
		minor: VersionMinor,
		major: VersionMajor,
	}
	if err := pre.mapper().Write(&buf, binary.LittleEndian); err != nil {
		return nil, err
	}
	kdfParams, err := h.KDFParams.MarshalBinary()
	if err != nil {
		return nil, err
	}
	fields := []struct {
		id   uint8
		data []byte
	}{
		{fieldCipherID, h.CipherID[:]},
		{fieldCompression, binary.LittleEndian.AppendUint32(nil, uint32(h.Compression))},
		{fieldMasterSeed, h.MasterSeed},
		{fieldEncryptionIV, h.IV},
		{fieldKDFParameters, kdfParams},
	}
	if h.PublicCustomData.Len() > 0 {
		custom, err := h.PublicCustomData.MarshalBinary()
		if err != nil {
			return nil, err
		}
		fields = append(fields, struct {
			id   uint8
			data []byte
		}{fieldPublicCustomData, custom})
	}
	for _, f := range fields {
		if err := writeField(&buf, f.id, f.data); err != nil {
			return nil, err
		}
	}
	if err := writeField(&buf, fieldEndOfHeader, []byte{'\r', '\n', '\r', '\n'}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
