package ipc

import (
	"encoding/binary"
	"fmt"
)

// NameSize is the maximum encoded length of a service or port name.
const NameSize = 8

// Name is a service name as it appears on the wire: up to eight bytes, padded
// with zeros and not terminated when all eight are used.
type Name [NameSize]byte

// MakeName truncates s to eight bytes.
func MakeName(s string) Name {
	var n Name
	copy(n[:], s)
	return n
}

// Len returns the number of significant bytes, stopping at the first zero.
func (n Name) Len() int {
	for i, c := range n {
		if c == 0 {
			return i
		}
	}
	return NameSize
}

func (n Name) String() string {
	return string(n[:n.Len()])
}

// Equal compares two names byte-wise over at most eight bytes, stopping early
// when both hold a zero at the same position.
func (n Name) Equal(other Name) bool {
	for i := 0; i < NameSize; i++ {
		if n[i] != other[i] {
			return false
		}
		if n[i] == 0 {
			return true
		}
	}
	return true
}

// nameWords is the number of words a name parameter occupies: two of bytes, one of length.
const nameWords = 3

// putName stores the first eight name bytes in dst[0:2] and the full byte
// length in dst[2]. A receiver rejects lengths over eight.
func putName(dst []uint32, s string) {
	n := MakeName(s)
	dst[0] = binary.LittleEndian.Uint32(n[0:4])
	dst[1] = binary.LittleEndian.Uint32(n[4:8])
	dst[2] = uint32(len(s))
}

// readName decodes a name parameter. Exactly the declared length is taken; the
// bytes are never assumed to be terminated.
func readName(src []uint32) (string, error) {
	length := src[2]
	if length > NameSize {
		return "", fmt.Errorf("name length %d exceeds %d bytes", length, NameSize)
	}
	var raw [NameSize]byte
	binary.LittleEndian.PutUint32(raw[0:4], src[0])
	binary.LittleEndian.PutUint32(raw[4:8], src[1])
	return string(raw[:length]), nil
}
