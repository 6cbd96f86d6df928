/*
Package srvmgr emulates the service manager behind the "srv:" port.

The manager runs as its own simulated process and answers commands 0x1
through 0xE. A process must register before any other command is accepted.
Services registered by clients get a fresh port whose server end is moved to
the registrant; builtin services are served by handlers inside the manager.

Notifications are queued per client, at most MaxPending at a time, and each
publish releases the client's semaphore once:

	m, err := srvmgr.Start(k, 0, srvmgr.WithLogger(logger))
	if err != nil {
		return err
	}
	defer m.Stop()
	m.RegisterBuiltin("pm:app", 4, pmService)
*/
package srvmgr
