package compositekey

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyfileDigest_Formats(t *testing.T) {
	raw := bytes.Repeat([]byte{0xab}, 32)
	digest, err := keyfileDigest(raw)
	assert.NoError(t, err)
	assert.Equal(t, raw, digest, "32 byte files are used as-is")

	hexKey := []byte(hex.EncodeToString(raw))
	digest, err = keyfileDigest(hexKey)
	assert.NoError(t, err)
	assert.Equal(t, raw, digest, "64 hex character files are decoded")

	other := []byte("just some arbitrary file content")
	digest, err = keyfileDigest(other)
	assert.NoError(t, err)
	sum := sha256.Sum256(other)
	assert.Equal(t, sum[:], digest, "Anything else is hashed")
}

func TestKeyfileDigest_XMLv1(t *testing.T) {
	data := `<?xml version="1.0" encoding="utf-8"?>
<KeyFile>
	<Meta><Version>1.00</Version></Meta>
	<Key><Data>q6urq6urq6urq6urq6urq6urq6urq6urq6urq6urq6s=</Data></Key>
</KeyFile>`
	digest, err := keyfileDigest([]byte(data))
	assert.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0xab}, 32), digest)
}

func TestGenerateKeyFile(t *testing.T) {
	var buf bytes.Buffer
	assert.NoError(t, GenerateKeyFile(&buf))
	assert.Contains(t, buf.String(), "<Version>2.0</Version>")

	digest, err := keyfileDigest(buf.Bytes())
	assert.NoError(t, err)
	assert.Len(t, digest, 32)

	k, err := New(KeyFileReader(bytes.NewReader(buf.Bytes())))
	assert.NoError(t, err)
	_, err = k.Raw(nil)
	assert.NoError(t, err)
}

func TestKeyfileDigest_XMLv2_BadChecksum(t *testing.T) {
	var buf bytes.Buffer
	assert.NoError(t, GenerateKeyFile(&buf))
	start := strings.Index(buf.String(), `Hash="`) + len(`Hash="`)
	tampered := buf.String()[:start] + "00000000" + buf.String()[start+8:]
	if tampered == buf.String() {
		tampered = buf.String()[:start] + "11111111" + buf.String()[start+8:]
	}
	_, err := keyfileDigest([]byte(tampered))
	assert.ErrorIs(t, err, ErrInvalidKeyFactor)
}

func TestKeyfileDigest_XML_Neg(t *testing.T) {
	tests := map[string]string{
		"unclosed":    `<KeyFile><Meta><Version>2.0</Version></Meta><Key><Data>`,
		"bad version": `<KeyFile><Meta><Version>9.0</Version></Meta><Key><Data>AA</Data></Key></KeyFile>`,
		"bad hex":     `<KeyFile><Meta><Version>2.0</Version></Meta><Key><Data>zz</Data></Key></KeyFile>`,
		"bad base64":  `<KeyFile><Meta><Version>1.0</Version></Meta><Key><Data>!!!</Data></Key></KeyFile>`,
		"no data":     `<KeyFile><Meta><Version>2.0</Version></Meta><Key><Data></Data></Key></KeyFile>`,
		"short hex":   `<KeyFile><Meta><Version>2.0</Version></Meta><Key><Data>0011223344556677</Data></Key></KeyFile>`,
		"long base64": `<KeyFile><Meta><Version>1.0</Version></Meta><Key><Data>` + strings.Repeat("q6ur", 12) + `</Data></Key></KeyFile>`,
		"short v1":    `<KeyFile><Meta><Version>1.0</Version></Meta><Key><Data>q6urq6ur</Data></Key></KeyFile>`,
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := keyfileDigest([]byte(data))
			assert.ErrorIs(t, err, ErrInvalidKeyFactor)
		})
	}
}
