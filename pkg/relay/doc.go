// Package relay implements a JSON-RPC client for relay servers over websocket.
//
// A Client dials the relay with an optional auth token in the query string,
// correlates responses with requests by id, acknowledges inbound
// <protocol>_subscription deliveries and hands them to OnMessage handlers.
// Reconnection after an unexpected loss is driven by a connection.Manager.
//
// Client satisfies the link interface expected by the subscription manager:
//
//	client, _ := relay.NewClient(relay.Config{URL: "wss://relay.example.org", Token: provider})
//	mgr, _ := subscription.NewManager(client, storage, beat, provider, subscription.DefaultConfig())
package relay
