package identity

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// ErrInvalidDID is returned for identifiers that are not Ed25519 did:key values.
var ErrInvalidDID = errors.New("invalid did:key identifier")

const (
	didKeyPrefix = "did:key:"
	// multibase prefix for base58btc
	multibaseBase58 = 'z'
)

// ed25519-pub multicodec, varint encoded.
var ed25519Multicodec = []byte{0xed, 0x01}

// ClientIDFromPublicKey derives the did:key client ID for pub.
func ClientIDFromPublicKey(pub ed25519.PublicKey) string {
	buf := make([]byte, 0, len(ed25519Multicodec)+len(pub))
	buf = append(buf, ed25519Multicodec...)
	buf = append(buf, pub...)
	return didKeyPrefix + string(multibaseBase58) + base58.Encode(buf)
}

// PublicKeyFromClientID extracts the Ed25519 public key from a did:key client ID.
func PublicKeyFromClientID(id string) (ed25519.PublicKey, error) {
	rest, ok := strings.CutPrefix(id, didKeyPrefix)
	if !ok || len(rest) < 2 || rest[0] != multibaseBase58 {
		return nil, ErrInvalidDID
	}
	raw, err := base58.Decode(rest[1:])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDID, err)
	}
	if len(raw) != len(ed25519Multicodec)+ed25519.PublicKeySize ||
		raw[0] != ed25519Multicodec[0] || raw[1] != ed25519Multicodec[1] {
		return nil, ErrInvalidDID
	}
	return ed25519.PublicKey(raw[len(ed25519Multicodec):]), nil
}
