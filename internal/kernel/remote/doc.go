/*
Package remote carries the kernel primitives over gRPC so a gateway client can
run in a different process from the simulated kernel.

The service is described by hand in KernelServiceDesc and its messages are
encoded as CBOR through a codec registered under the "cbor" content subtype.
Attach creates a simulated process on the server and returns a token; every
later call carries that token in the x-srvgate-client metadata key and acts
on that process. Kernel failures travel as status words inside successful
responses, so only transport problems reach the client's circuit breaker.

	c, err := remote.Dial(ctx, "localhost:7340", "app")
	if err != nil {
		return err
	}
	defer c.Close(ctx)
	client := srv.New(c)
*/
package remote
