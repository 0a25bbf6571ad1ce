package tree

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
)

// Digest is the SHA-256 of attachment content.
type Digest [sha256.Size]byte

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// BinaryRef names an attachment on an entry.
type BinaryRef struct {
	Name   string
	Digest Digest
}

type poolItem struct {
	data      []byte
	protected bool
	refs      int
}

// BinaryPool stores attachment content once per distinct digest.
// Content is kept in insertion order so that it's written back in a stable order.
type BinaryPool struct {
	items map[Digest]*poolItem
	order []Digest
}

func NewBinaryPool() *BinaryPool {
	return &BinaryPool{items: map[Digest]*poolItem{}}
}

// Put stores content without adding a reference and returns its digest.
// Storing content that's already present only upgrades its protected flag.
// Unreferenced content is dropped by Compact.
func (p *BinaryPool) Put(data []byte, protected bool) Digest {
	d := Digest(sha256.Sum256(data))
	if it, ok := p.items[d]; ok {
		it.protected = it.protected || protected
		return d
	}
	p.items[d] = &poolItem{data: bytes.Clone(data), protected: protected}
	p.order = append(p.order, d)
	return d
}

// Get returns a copy of the content for the digest.
func (p *BinaryPool) Get(d Digest) ([]byte, bool) {
	it, ok := p.items[d]
	if !ok {
		return nil, false
	}
	return bytes.Clone(it.data), true
}

// Has reports whether the digest is present.
func (p *BinaryPool) Has(d Digest) bool {
	_, ok := p.items[d]
	return ok
}

// Protected reports whether the content should be protected in the inner header.
func (p *BinaryPool) Protected(d Digest) bool {
	it, ok := p.items[d]
	return ok && it.protected
}

// RefCount returns the number of references to the digest, counting history snapshots.
func (p *BinaryPool) RefCount(d Digest) int {
	if it, ok := p.items[d]; ok {
		return it.refs
	}
	return 0
}

// Len returns the number of distinct contents in the pool.
func (p *BinaryPool) Len() int {
	return len(p.order)
}

// Digests returns every digest in insertion order.
func (p *BinaryPool) Digests() []Digest {
	return append([]Digest(nil), p.order...)
}

// Size returns the length of the content for the digest.
func (p *BinaryPool) Size(d Digest) int {
	if it, ok := p.items[d]; ok {
		return len(it.data)
	}
	return 0
}

// Compact drops all content that has no references.
func (p *BinaryPool) Compact() {
	for _, d := range p.Digests() {
		if p.items[d].refs <= 0 {
			p.evict(d)
		}
	}
}

func (p *BinaryPool) retain(d Digest) {
	if it, ok := p.items[d]; ok {
		it.refs++
	}
}

func (p *BinaryPool) release(d Digest) {
	it, ok := p.items[d]
	if !ok {
		return
	}
	it.refs--
	if it.refs <= 0 {
		p.evict(d)
	}
}

func (p *BinaryPool) evict(d Digest) {
	it, ok := p.items[d]
	if !ok {
		return
	}
	for i := range it.data {
		it.data[i] = 0
	}
	delete(p.items, d)
	for i, o := range p.order {
		if o == d {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

func (p *BinaryPool) equal(other *BinaryPool) bool {
	if p.Len() != other.Len() {
		return false
	}
	for d, it := range p.items {
		o, ok := other.items[d]
		if !ok || o.refs != it.refs || o.protected != it.protected {
			return false
		}
	}
	return true
}
