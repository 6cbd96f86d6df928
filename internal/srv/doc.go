// Package srv is the client side of the service manager.
//
// A Client keeps one Session to the "srv:" port. The session connects lazily,
// registers the process with RegisterClient before anyone else can use it, and
// is closed by Exit. Service handles granted ahead of time by a loader live in
// an OverrideTable and are handed out as duplicates without an exchange.
//
// Errors are *result.Error values: KindTransport when the exchange itself
// failed, KindProtocol when the service manager answered with a failing code,
// and KindInit when the connection could not be established.
package srv
