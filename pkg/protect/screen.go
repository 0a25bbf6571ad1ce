package protect

const blockSize = 64

// blockFunc fills the given block with the next keystream block.
type blockFunc = func(block *[blockSize]byte)

// screen is a keystream cursor.
// Keystream blocks are produced on demand, and every byte is used exactly once.
type screen struct {
	next  blockFunc
	block [blockSize]byte
	cur   int
	pos   uint64
}

func newScreen(next blockFunc) *screen {
	return &screen{
		next: next,
		cur:  blockSize,
	}
}

func (s *screen) screen(b byte) byte {
	if s.cur == blockSize {
		s.next(&s.block)
		s.cur = 0
	}
	b ^= s.block[s.cur]
	s.cur++
	s.pos++
	return b
}

func (s *screen) wipe() {
	for i := range s.block {
		s.block[i] = 0
	}
}
