package ipc

// Buffer access rights carried in buffer descriptors.
const (
	BufferR  uint32 = 1 << 1
	BufferW  uint32 = 1 << 2
	BufferRW        = BufferR | BufferW
)

// DescKind classifies a translate word.
type DescKind int

const (
	DescInvalid DescKind = iota
	DescHandles
	DescStatic
	DescPXI
	DescMapped
)

func (k DescKind) String() string {
	switch k {
	case DescHandles:
		return "handles"
	case DescStatic:
		return "static"
	case DescPXI:
		return "pxi"
	case DescMapped:
		return "mapped"
	default:
		return "invalid"
	}
}

// DescSharedHandles marks the next n words as handles copied to the receiver.
func DescSharedHandles(n int) uint32 {
	return uint32(n-1) << 26
}

// DescMoveHandles marks the next n words as handles moved to the receiver.
func DescMoveHandles(n int) uint32 {
	return uint32(n-1)<<26 | 0x10
}

// DescCurProcessHandle marks the next word as a slot the kernel fills with the
// sender's own process handle.
func DescCurProcessHandle() uint32 {
	return 0x20
}

// DescStaticBuffer describes a static buffer of size bytes in slot id.
func DescStaticBuffer(size uint32, id uint8) uint32 {
	return size<<14 | (uint32(id)&0xF)<<10 | 0x2
}

// DescBuffer describes a mapped buffer with the given rights.
func DescBuffer(size, rights uint32) uint32 {
	return size<<4 | 0x8 | rights&BufferRW
}

// KindOf classifies a translate descriptor word.
func KindOf(desc uint32) DescKind {
	switch {
	case desc&0x8 != 0:
		return DescMapped
	case desc&0xF == 0x2:
		return DescStatic
	case desc&0xF == 0x4 || desc&0xF == 0x6:
		return DescPXI
	case desc&0xE == 0:
		return DescHandles
	default:
		return DescInvalid
	}
}

// HandleCount returns the number of handle words following a handle descriptor.
func HandleCount(desc uint32) int {
	return int(desc>>26) + 1
}

// IsMove reports whether a handle descriptor moves its handles.
func IsMove(desc uint32) bool {
	return desc&0x10 != 0
}

// IsCurProcess reports whether a handle descriptor asks for the sender's process handle.
func IsCurProcess(desc uint32) bool {
	return desc&0x20 != 0
}

// BufferSize returns the byte size of a mapped buffer descriptor.
func BufferSize(desc uint32) uint32 {
	return desc >> 4
}

// BufferRights returns the access rights of a mapped buffer descriptor.
func BufferRights(desc uint32) uint32 {
	return desc & BufferRW
}
