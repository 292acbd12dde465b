// Package connection tracks the lifecycle of a relay link and re-establishes
// it after loss.
//
// A Manager owns the state machine (disconnected, connecting, connected,
// reconnecting, closed), runs the dial function supplied by the transport,
// and publishes every transition to its listeners. Callers that need the
// link can block in WaitConnected.
//
// # Reconnection Strategy
//
// After a loss the manager retries with exponential backoff:
//
//  1. Initial delay: 500 milliseconds
//  2. Each failure doubles the delay
//  3. Maximum delay: 30 seconds
//  4. Reset on successful reconnection
//
// # Jitter
//
// To keep many clients from hitting a relay in lockstep:
//
//	actual_delay = base_delay + random(0, base_delay * 0.2)
package connection
