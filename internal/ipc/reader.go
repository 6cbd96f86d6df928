package ipc

import (
	"fmt"

	"github.com/GriffinCanCode/srvgate/internal/result"
)

// Reader extracts typed values from a received CommandBuffer.
type Reader struct {
	buf *CommandBuffer
}

// NewReader wraps buf.
func NewReader(buf *CommandBuffer) *Reader {
	return &Reader{buf: buf}
}

// Header returns word 0.
func (r *Reader) Header() Header {
	return r.buf.Header()
}

// Expect verifies the header carries the given command id and parameter counts.
func (r *Reader) Expect(cmd uint16, normal, translate int) error {
	h := r.Header()
	if h.CommandID() != cmd || h.Normal() != normal || h.Translate() != translate {
		return fmt.Errorf("malformed request %s, want %s", h, MakeHeader(cmd, uint8(normal), uint8(translate)))
	}
	return nil
}

// Result returns the operation status held in word 1 of a response.
func (r *Reader) Result() result.Code {
	return result.Code(r.buf.Words[1])
}

// Word returns word i.
func (r *Reader) Word(i int) uint32 {
	return r.buf.Words[i]
}

// Words copies n words starting at i into dst and returns how many were copied.
func (r *Reader) Words(dst []uint32, i, n int) int {
	n = min(n, len(dst), MaxWords-i)
	if n <= 0 {
		return 0
	}
	return copy(dst[:n], r.buf.Words[i:i+n])
}

// Word64 returns words i and i+1 as a little-endian pair.
func (r *Reader) Word64(i int) uint64 {
	return uint64(r.buf.Words[i]) | uint64(r.buf.Words[i+1])<<32
}

// Name decodes the name parameter that starts at word i.
func (r *Reader) Name(i int) (string, error) {
	return readName(r.buf.Words[i : i+nameWords])
}

// Handle returns the single handle that follows the handle descriptor at word i.
func (r *Reader) Handle(i int) (Handle, error) {
	desc := r.buf.Words[i]
	if KindOf(desc) != DescHandles || HandleCount(desc) != 1 {
		return 0, fmt.Errorf("word %d: expected single handle descriptor, got 0x%08X", i, desc)
	}
	return Handle(r.buf.Words[i+1]), nil
}

// Buffer returns the mapped buffer described at word i.
func (r *Reader) Buffer(i int) (Buffer, error) {
	desc := r.buf.Words[i]
	if KindOf(desc) != DescMapped {
		return Buffer{}, fmt.Errorf("word %d: expected buffer descriptor, got 0x%08X", i, desc)
	}
	idx := int(r.buf.Words[i+1])
	if idx >= len(r.buf.Buffers) {
		return Buffer{}, fmt.Errorf("word %d: buffer index %d out of range", i, idx)
	}
	b := r.buf.Buffers[idx]
	if uint32(len(b.Data)) != BufferSize(desc) {
		return Buffer{}, fmt.Errorf("word %d: buffer size %d, descriptor says %d", i, len(b.Data), BufferSize(desc))
	}
	return b, nil
}
