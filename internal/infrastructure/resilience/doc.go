/*
Package resilience provides the circuit breaker that guards calls to a remote kernel.

A Breaker moves between three states:

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                       [failure]
	                                           v
	                                         Open

Settings.Failure decides which errors count against the peer. The remote kernel
client counts transport failures only, so a handle the kernel rejects never
opens the breaker.

	breaker := resilience.New("kernel", resilience.Settings{
		Timeout:     5 * time.Second,
		ReadyToTrip: func(c resilience.Counts) bool { return c.ConsecutiveFailures >= 3 },
	})
	h, err := resilience.Do(breaker, func() (kernel.Handle, error) {
		return remote.ConnectToPort(ctx, "srv:")
	})
*/
package resilience
