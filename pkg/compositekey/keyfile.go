package compositekey

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"unicode"
)

const (
	keyfileKeySize  = 32
	xmlSniffLen     = 512
	keyfileV1       = "1.0"
	keyfileV2       = "2.0"
	checksumHexSize = 8
)

type xmlKeyFile struct {
	XMLName xml.Name `xml:"KeyFile"`
	Meta    struct {
		Version string `xml:"Version"`
	} `xml:"Meta"`
	Key struct {
		Data struct {
			Hash  string `xml:"Hash,attr"`
			Value string `xml:",chardata"`
		} `xml:"Data"`
	} `xml:"Key"`
}

func keyfileDigest(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty keyfile", ErrInvalidKeyFactor)
	}
	sniff := data
	if len(sniff) > xmlSniffLen {
		sniff = sniff[:xmlSniffLen]
	}
	if bytes.Contains(sniff, []byte("<KeyFile")) {
		return xmlKeyDigest(data)
	}
	switch {
	case len(data) == keyfileKeySize:
		return bytes.Clone(data), nil
	case len(data) == 2*keyfileKeySize:
		if key, err := hex.DecodeString(string(data)); err == nil {
			return key, nil
		}
	}
	sum := sha256.Sum256(data)
	return sum[:], nil
}

func xmlKeyDigest(data []byte) ([]byte, error) {
	var kf xmlKeyFile
	if err := xml.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("%w: malformed XML keyfile: %v", ErrInvalidKeyFactor, err)
	}
	var (
		key []byte
		err error
	)
	switch version := strings.TrimSpace(kf.Meta.Version); version {
	case keyfileV1, "1.00":
		key, err = base64.StdEncoding.DecodeString(strings.TrimSpace(kf.Key.Data.Value))
		if err != nil {
			return nil, fmt.Errorf("%w: keyfile data is not valid base64", ErrInvalidKeyFactor)
		}
	case keyfileV2, "2.00":
		key, err = hex.DecodeString(stripSpace(kf.Key.Data.Value))
		if err != nil {
			return nil, fmt.Errorf("%w: keyfile data is not valid hex", ErrInvalidKeyFactor)
		}
		if hash := strings.TrimSpace(kf.Key.Data.Hash); len(hash) > 0 {
			if !strings.EqualFold(hash, keyfileChecksum(key)) {
				return nil, fmt.Errorf("%w: keyfile checksum mismatch", ErrInvalidKeyFactor)
			}
		}
	default:
		return nil, fmt.Errorf("%w: unsupported keyfile version '%s'", ErrInvalidKeyFactor, version)
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: keyfile contains no key data", ErrInvalidKeyFactor)
	}
	if len(key) != keyfileKeySize {
		wipe(key)
		return nil, fmt.Errorf("%w: keyfile data must be %d bytes", ErrInvalidKeyFactor, keyfileKeySize)
	}
	return key, nil
}

func keyfileChecksum(key []byte) string {
	sum := sha256.Sum256(key)
	return strings.ToUpper(hex.EncodeToString(sum[:checksumHexSize/2]))
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// GenerateKeyFile writes a new version 2.0 XML keyfile containing 32 secure random bytes.
func GenerateKeyFile(w io.Writer) error {
	key := make([]byte, keyfileKeySize)
	if _, err := rand.Read(key); err != nil {
		return fmt.Errorf("failed to generate keyfile data: %w", err)
	}
	defer wipe(key)

	hexKey := strings.ToUpper(hex.EncodeToString(key))
	var groups []string
	for i := 0; i < len(hexKey); i += 8 {
		groups = append(groups, hexKey[i:i+8])
	}
	_, err := fmt.Fprintf(w, `<?xml version="1.0" encoding="utf-8"?>
<KeyFile>
	<Meta>
		<Version>%s</Version>
	</Meta>
	<Key>
		<Data Hash="%s">
			%s
			%s
		</Data>
	</Key>
</KeyFile>
`, keyfileV2, keyfileChecksum(key), strings.Join(groups[:4], " "), strings.Join(groups[4:], " "))
	return err
}
