package remote

import (
	"github.com/GriffinCanCode/srvgate/internal/ipc"
)

// AttachRequest asks the server for a fresh simulated process.
type AttachRequest struct {
	Name string `cbor:"1,keyasint"`
}

// AttachResponse carries the client token that names the process.
type AttachResponse struct {
	Token string `cbor:"1,keyasint"`
	PID   uint32 `cbor:"2,keyasint"`
}

// Empty is the request or response of calls without parameters.
type Empty struct{}

// ConnectRequest names a global port.
type ConnectRequest struct {
	Name string `cbor:"1,keyasint"`
}

// HandleRequest names a handle in the caller's process.
type HandleRequest struct {
	Handle uint32 `cbor:"1,keyasint"`
}

// HandleResponse returns a handle or the kernel status that prevented it.
type HandleResponse struct {
	Status uint32 `cbor:"1,keyasint"`
	Handle uint32 `cbor:"2,keyasint"`
}

// StatusResponse is the kernel status of a call. Zero means success.
type StatusResponse struct {
	Status uint32 `cbor:"1,keyasint"`
}

// Buffer is a mapped buffer on the wire.
type Buffer struct {
	Data   []byte `cbor:"1,keyasint"`
	Rights uint32 `cbor:"2,keyasint"`
}

// SendRequest is one command buffer exchange. Words holds the header and
// every parameter word it declares.
type SendRequest struct {
	Handle  uint32   `cbor:"1,keyasint"`
	Words   []uint32 `cbor:"2,keyasint"`
	Buffers []Buffer `cbor:"3,keyasint,omitempty"`
}

// SendResponse returns the reply words and the contents of every buffer the
// server may have written. Buffers without write rights come back empty.
type SendResponse struct {
	Status  uint32   `cbor:"1,keyasint"`
	Words   []uint32 `cbor:"2,keyasint,omitempty"`
	Buffers [][]byte `cbor:"3,keyasint,omitempty"`
}

// usedWords returns the header and declared parameters of buf.
func usedWords(buf *ipc.CommandBuffer) []uint32 {
	n := min(1+buf.Header().Len(), ipc.MaxWords)
	return append([]uint32(nil), buf.Words[:n]...)
}

// loadWords resets buf and copies words into it.
func loadWords(buf *ipc.CommandBuffer, words []uint32) {
	buf.Words = [ipc.MaxWords]uint32{}
	copy(buf.Words[:], words)
}
