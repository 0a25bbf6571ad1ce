package document

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/saylorsolutions/gokdbx/pkg/tree"
)

var (
	ErrMalformedDocument = errors.New("malformed document")
	// ErrDuplicateUUID and ErrUnresolvedBinaryReference are shared with the tree package, so errors.Is works with
	// either.
	ErrDuplicateUUID             = tree.ErrDuplicateUUID
	ErrUnresolvedBinaryReference = tree.ErrUnresolvedBinaryReference
)

// Binary is attachment content referenced by index from the document.
type Binary struct {
	Protected bool
	Data      []byte
}

// Seconds between 0001-01-01 and the Unix epoch.
const epochOffset = 62135596800

func formatTime(t time.Time) string {
	secs := t.Unix() + epochOffset
	return base64.StdEncoding.EncodeToString(binary.LittleEndian.AppendUint64(nil, uint64(secs)))
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if raw, err := base64.StdEncoding.DecodeString(s); err == nil && len(raw) == 8 {
		secs := int64(binary.LittleEndian.Uint64(raw))
		return time.Unix(secs-epochOffset, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid time '%s'", ErrMalformedDocument, s)
	}
	return t.UTC().Truncate(time.Second), nil
}

func formatUUID(id uuid.UUID) string {
	return base64.StdEncoding.EncodeToString(id[:])
}

func parseUUID(s string) (uuid.UUID, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil || len(raw) != 16 {
		return uuid.Nil, fmt.Errorf("%w: invalid UUID '%s'", ErrMalformedDocument, s)
	}
	return uuid.FromBytes(raw)
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1":
		return true, nil
	case "false", "0", "":
		return false, nil
	default:
		return false, fmt.Errorf("%w: invalid boolean '%s'", ErrMalformedDocument, s)
	}
}

func formatNullableBool(b *bool) string {
	if b == nil {
		return "null"
	}
	if *b {
		return "true"
	}
	return "false"
}

func parseNullableBool(s string) (*bool, error) {
	if strings.EqualFold(strings.TrimSpace(s), "null") {
		return nil, nil
	}
	b, err := parseBool(s)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func parseInt(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid number '%s'", ErrMalformedDocument, s)
	}
	return n, nil
}
