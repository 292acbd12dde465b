// Package wire defines the JSON-RPC 2.0 messages exchanged with a relay.
//
// A relay speaks JSON-RPC over a websocket. The client issues requests for
// subscription management and the relay pushes inbound messages as requests
// of its own, which the client acknowledges.
//
// # Methods
//
// Method names are namespaced by the relay protocol name:
//
//	<protocol>_subscribe       {topic}            -> subscription id
//	<protocol>_batchSubscribe  {topics}           -> [subscription id]
//	<protocol>_unsubscribe     {topic, id}        -> true
//	<protocol>_subscription    {id, data}         (relay -> client)
//
// The default protocol is "relay".
//
// # Request IDs
//
// IDs are unsigned integers seeded from the wall clock in microseconds and
// incremented atomically, so IDs stay unique across process restarts.
package wire
