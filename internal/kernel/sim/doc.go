// Package sim is an in-memory kernel for the service-manager protocol.
//
// It models just enough of the platform to exercise the gateway end to end:
//   - Processes with private handle tables
//   - Named and private ports with a session limit
//   - Sessions whose exchanges are delivered to a Go Handler
//   - Counting semaphores
//   - Translation of handle and buffer descriptors between processes
//
// A *Process implements kernel.Kernel, so client code runs against it
// unchanged. Server code creates a port and attaches a Handler:
//
//	k := sim.New(logger)
//	srvProc := k.NewProcess("srv")
//	server, _, _ := srvProc.CreatePort("srv:", 64)
//	srvProc.Serve(server, handler)
//
//	app := k.NewProcess("app")
//	h, err := app.ConnectToPort(ctx, "srv:")
package sim
