// Package ipc implements the command buffer codec shared by every
// service-manager and process-manager operation.
//
// A command buffer is 64 little-endian 32-bit words. Word 0 is the header:
//
//	commandID<<16 | normalCount<<6 | translateCount
//
// Normal words are plain data. Translate words are descriptors followed by
// their payload: handles the kernel copies or moves into the receiver, the
// sender's own process handle, or mapped buffers.
//
// Components:
//   - Header / MakeHeader: bit-exact header packing
//   - Desc*: translate descriptor encodings
//   - Name: eight-byte service names with an explicit length word
//   - Builder: typed writer that derives the header from what was written
//   - Reader: typed accessor for responses and requests
//
// Example Usage:
//
//	var buf ipc.CommandBuffer
//	if err := ipc.NewBuilder(&buf, 0x5).Name("fs:USER").Word(0).Finish(); err != nil {
//		return err
//	}
//	// buf.Words[0] == 0x00050100
package ipc
