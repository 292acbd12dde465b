// Package discovery finds relays on the local network over mDNS/DNS-SD.
//
// Relays advertise the _relay._tcp service. The instance name is free-form;
// TXT records describe how to reach the websocket endpoint:
//
//	path   websocket path, default "/"
//	tls    "1" or "true" selects wss://
//	proto  relay protocol name, default "relay"
//
// MDNSBrowser browses for relays and MDNSAdvertiser announces one, which is
// mostly useful for local development relays.
package discovery
