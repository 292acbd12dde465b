package wire

import "strings"

// DefaultProtocol is the relay protocol used when none is configured.
const DefaultProtocol = "relay"

// Methods holds the JSON-RPC method names for one relay protocol.
type Methods struct {
	Subscribe      string
	BatchSubscribe string
	Unsubscribe    string
	Subscription   string
}

// MethodsFor returns the method names for the given protocol.
// An empty protocol selects DefaultProtocol.
func MethodsFor(protocol string) Methods {
	p := strings.TrimSpace(protocol)
	if p == "" {
		p = DefaultProtocol
	}
	return Methods{
		Subscribe:      p + "_subscribe",
		BatchSubscribe: p + "_batchSubscribe",
		Unsubscribe:    p + "_unsubscribe",
		Subscription:   p + "_subscription",
	}
}

// IsSubscription reports whether method is an inbound subscription
// delivery for any protocol.
func IsSubscription(method string) bool {
	return strings.HasSuffix(method, "_subscription")
}
