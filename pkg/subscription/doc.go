// Package subscription tracks the topics a client listens to on a relay.
//
// A Manager keeps the authoritative set of active subscriptions for one
// relay link. It survives disconnect/reconnect cycles, persists its state so
// a restarted process can pick up where it left off, and batches requests to
// stay under relay limits.
//
// # Identifiers
//
// A subscription ID is derived from the topic and the client identity
// (see DeriveID). Because the derivation is deterministic, a batch
// resubscribe can be confirmed locally as soon as the relay accepts the
// batch, without per-topic correlation.
//
// # Lifecycle
//
//	Init  -> load persisted snapshot into the startup cache, attach listeners
//	Start -> if the link is up, restore and resubscribe now
//	link connect    -> restore (once per process) + resubscribe all cached entries
//	link disconnect -> active subscriptions move to the disconnect cache
//	heartbeat pulse -> retry pending subscribes in one batch
//	Stop  -> detach listeners, suspend active subscriptions
//
// While the link is down the active set is always empty; suspended entries
// live in the disconnect cache until the next reconnect confirms them.
//
// # Persistence
//
// Every create or delete writes the full list of active subscriptions to
// storage under a single versioned key, then publishes EventSync.
package subscription
