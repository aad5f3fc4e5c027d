package lodp

import "github.com/lodpnet/lodp/internal/crypto"

// buffer is a scratch pair for one packet operation: a plaintext region
// and a ciphertext region of identical layout. The envelope codec reads
// one side and writes the other. n counts the valid bytes of the whole
// packet, tag prefix included.
type buffer struct {
	pt [MaxSegmentSize]byte
	ct [MaxSegmentSize]byte
	n  int
}

func (b *buffer) reset() {
	crypto.Wipe(b.pt[:])
	crypto.Wipe(b.ct[:])
	b.n = 0
}

// bufferPool is a fixed-capacity free list. Acquire and release are
// strictly scoped around one packet operation; exhaustion is a hard
// ErrNoBufs, never a block or a grow.
type bufferPool struct {
	free chan *buffer
}

func newBufferPool(size int) *bufferPool {
	p := &bufferPool{free: make(chan *buffer, size)}
	for i := 0; i < size; i++ {
		p.free <- &buffer{}
	}
	return p
}

func (p *bufferPool) get() (*buffer, error) {
	select {
	case b := <-p.free:
		return b, nil
	default:
		return nil, ErrNoBufs
	}
}

func (p *bufferPool) put(b *buffer) {
	b.reset()
	select {
	case p.free <- b:
	default:
		// Pool already full: caller returned a foreign buffer. Drop it.
	}
}
