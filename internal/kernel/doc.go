// Package kernel declares the platform primitives the gateway is built on.
//
// Implementations:
//   - sim.Process: an in-memory kernel with handle tables, ports, sessions and
//     semaphores, used by the emulator and by tests
//   - remote.Client: the same primitives reached over gRPC from another process
//
// Example Usage:
//
//	var k kernel.Kernel = proc
//	h, err := k.ConnectToPort(ctx, "srv:")
//	err = k.SendSyncRequest(ctx, h, &buf)
package kernel
