package ipc

import "fmt"

// MaxWords is the size of the exchange buffer in 32-bit words.
const MaxWords = 64

// Header is word 0 of every request and response.
type Header uint32

// MakeHeader packs a command id with its normal and translate parameter counts.
func MakeHeader(commandID uint16, normal, translate uint8) Header {
	return Header(uint32(commandID)<<16 | (uint32(normal)&0x3F)<<6 | uint32(translate)&0x3F)
}

// CommandID returns the operation id.
func (h Header) CommandID() uint16 { return uint16(h >> 16) }

// Normal returns the count of plain data words.
func (h Header) Normal() int { return int(h>>6) & 0x3F }

// Translate returns the count of translate words (descriptors plus their payload).
func (h Header) Translate() int { return int(h) & 0x3F }

// Len is the total number of parameter words following the header.
func (h Header) Len() int { return h.Normal() + h.Translate() }

func (h Header) String() string {
	return fmt.Sprintf("0x%08X(id=0x%X normal=%d translate=%d)", uint32(h), h.CommandID(), h.Normal(), h.Translate())
}

// Buffer is a memory region mapped into the receiver for the duration of an exchange.
type Buffer struct {
	Data   []byte
	Rights uint32
}

// CommandBuffer is the fixed-size exchange buffer.
type CommandBuffer struct {
	Words [MaxWords]uint32
	// Buffers backs buffer descriptors; the word after a buffer descriptor
	// holds the index of its entry here.
	Buffers []Buffer
}

// Header returns word 0.
func (c *CommandBuffer) Header() Header {
	return Header(c.Words[0])
}

// Reset clears the buffer for reuse.
func (c *CommandBuffer) Reset() {
	c.Words = [MaxWords]uint32{}
	c.Buffers = nil
}
