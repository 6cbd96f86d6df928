package ipc

import (
	"errors"
	"fmt"
)

// Handle is an opaque reference to a kernel object. Zero is never valid.
type Handle uint32

var (
	ErrOverflow       = errors.New("command buffer overflow")
	ErrNormalAfterXlt = errors.New("normal parameter written after translate parameters")
	ErrParamCount     = errors.New("parameter count exceeds header field")
)

// Builder writes a request or response into a CommandBuffer. It counts the
// normal and translate words as they are written and produces the header
// itself, so the declared counts always match the payload.
type Builder struct {
	buf       *CommandBuffer
	cmd       uint16
	pos       int
	normal    int
	translate int
	err       error
}

// NewBuilder resets buf and starts a message for the given command id.
func NewBuilder(buf *CommandBuffer, cmd uint16) *Builder {
	buf.Reset()
	return &Builder{buf: buf, cmd: cmd, pos: 1}
}

func (b *Builder) put(v uint32) bool {
	if b.err != nil {
		return false
	}
	if b.pos >= MaxWords {
		b.err = fmt.Errorf("command 0x%X: %w", b.cmd, ErrOverflow)
		return false
	}
	b.buf.Words[b.pos] = v
	b.pos++
	return true
}

func (b *Builder) putNormal(v uint32) {
	if b.translate > 0 && b.err == nil {
		b.err = fmt.Errorf("command 0x%X: %w", b.cmd, ErrNormalAfterXlt)
		return
	}
	if b.put(v) {
		b.normal++
	}
}

func (b *Builder) putTranslate(v uint32) {
	if b.put(v) {
		b.translate++
	}
}

// Word appends a normal parameter.
func (b *Builder) Word(v uint32) *Builder {
	b.putNormal(v)
	return b
}

// Words appends several normal parameters.
func (b *Builder) Words(vs ...uint32) *Builder {
	for _, v := range vs {
		b.putNormal(v)
	}
	return b
}

// Word64 appends v as two normal parameters, low word first.
func (b *Builder) Word64(v uint64) *Builder {
	b.putNormal(uint32(v))
	b.putNormal(uint32(v >> 32))
	return b
}

// Name appends a name parameter: eight bytes of name followed by its length.
func (b *Builder) Name(s string) *Builder {
	var words [nameWords]uint32
	putName(words[:], s)
	return b.Words(words[:]...)
}

// CurrentProcess appends a descriptor asking the kernel to pass the sender's
// process handle, plus the slot it fills.
func (b *Builder) CurrentProcess() *Builder {
	b.putTranslate(DescCurProcessHandle())
	b.putTranslate(0)
	return b
}

// SharedHandles appends copied handles behind a single descriptor.
func (b *Builder) SharedHandles(hs ...Handle) *Builder {
	return b.handles(DescSharedHandles(len(hs)), hs)
}

// MoveHandles appends moved handles behind a single descriptor.
func (b *Builder) MoveHandles(hs ...Handle) *Builder {
	return b.handles(DescMoveHandles(len(hs)), hs)
}

func (b *Builder) handles(desc uint32, hs []Handle) *Builder {
	if len(hs) == 0 || len(hs) > 64 {
		if b.err == nil {
			b.err = fmt.Errorf("command 0x%X: %d handles in one descriptor", b.cmd, len(hs))
		}
		return b
	}
	b.putTranslate(desc)
	for _, h := range hs {
		b.putTranslate(uint32(h))
	}
	return b
}

// Buffer attaches data as a mapped buffer with the given rights.
func (b *Builder) Buffer(data []byte, rights uint32) *Builder {
	b.putTranslate(DescBuffer(uint32(len(data)), rights))
	b.putTranslate(uint32(len(b.buf.Buffers)))
	if b.err == nil {
		b.buf.Buffers = append(b.buf.Buffers, Buffer{Data: data, Rights: rights})
	}
	return b
}

// Finish writes the header. It fails if any earlier write was invalid.
func (b *Builder) Finish() error {
	if b.err != nil {
		return b.err
	}
	if b.normal > 0x3F || b.translate > 0x3F {
		return fmt.Errorf("command 0x%X: %w", b.cmd, ErrParamCount)
	}
	b.buf.Words[0] = uint32(MakeHeader(b.cmd, uint8(b.normal), uint8(b.translate)))
	return nil
}

// NewReply starts a response for cmd whose first normal word is the status code.
func NewReply(buf *CommandBuffer, cmd uint16, code uint32) *Builder {
	return NewBuilder(buf, cmd).Word(code)
}
