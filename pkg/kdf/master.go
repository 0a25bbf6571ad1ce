package kdf

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"math"
)

// HeaderBlockIndex is the block index used to derive the header HMAC key.
const HeaderBlockIndex uint64 = math.MaxUint64

// MasterKey holds the keys derived for a single decode or encode operation.
// It should be wiped as soon as the operation completes.
type MasterKey struct {
	// Cipher is the 32 byte key for the container cipher.
	Cipher []byte
	// HMAC is the 64 byte base key for block authentication.
	HMAC []byte
}

// Split derives the cipher key and the HMAC key from the master seed and the transformed key.
func Split(masterSeed, transformed []byte) *MasterKey {
	cipherHash := sha256.New()
	cipherHash.Write(masterSeed)
	cipherHash.Write(transformed)

	hmacHash := sha512.New()
	hmacHash.Write(masterSeed)
	hmacHash.Write(transformed)
	hmacHash.Write([]byte{0x01})

	return &MasterKey{
		Cipher: cipherHash.Sum(nil),
		HMAC:   hmacHash.Sum(nil),
	}
}

// BlockKey returns the HMAC-SHA-256 key for the block with the given index.
func (m *MasterKey) BlockKey(index uint64) []byte {
	h := sha512.New()
	h.Write(binary.LittleEndian.AppendUint64(nil, index))
	h.Write(m.HMAC)
	return h.Sum(nil)
}

// Wipe overwrites both keys.
func (m *MasterKey) Wipe() {
	if m == nil {
		return
	}
	wipe(m.Cipher)
	wipe(m.HMAC)
}
