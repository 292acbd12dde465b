// Package eventbus provides a small synchronous publish/subscribe bus.
//
// A Bus delivers each published value to every handler registered at the time
// of publication, in registration order, on the publisher's goroutine. Handlers
// may publish or subscribe from inside a callback; the handler list is copied
// before dispatch so no lock is held while user code runs.
//
// Subscribe returns a function that removes the handler. Removal is idempotent.
package eventbus
