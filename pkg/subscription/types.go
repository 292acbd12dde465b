package subscription

import (
	"crypto/sha256"
	"encoding/hex"
)

// TransportType selects how a subscription is established.
type TransportType string

const (
	// TransportRelay subscribes through a relay RPC and waits for confirmation.
	TransportRelay TransportType = "relay"

	// TransportLinkMode registers the subscription locally right away and
	// subscribes on the relay in the background.
	TransportLinkMode TransportType = "link_mode"
)

// Subscription is a confirmed binding of the client to a topic.
type Subscription struct {
	ID            string        `cbor:"1,keyasint" json:"id"`
	Topic         string        `cbor:"2,keyasint" json:"topic"`
	Protocol      string        `cbor:"3,keyasint,omitempty" json:"protocol,omitempty"`
	TransportType TransportType `cbor:"4,keyasint,omitempty" json:"transportType,omitempty"`
}

// PendingSubscription is a subscribe request that has not been confirmed yet.
type PendingSubscription struct {
	Topic         string
	Protocol      string
	TransportType TransportType
}

func (p PendingSubscription) confirm(clientID string) Subscription {
	return Subscription{
		ID:            DeriveID(p.Topic, clientID),
		Topic:         p.Topic,
		Protocol:      p.Protocol,
		TransportType: p.TransportType,
	}
}

func (s Subscription) pending() PendingSubscription {
	return PendingSubscription{
		Topic:         s.Topic,
		Protocol:      s.Protocol,
		TransportType: s.TransportType,
	}
}

// DeriveID returns the subscription ID for topic under clientID:
// the hex SHA-256 of topic followed by clientID.
func DeriveID(topic, clientID string) string {
	h := sha256.New()
	h.Write([]byte(topic))
	h.Write([]byte(clientID))
	return hex.EncodeToString(h.Sum(nil))
}
