// Package identity manages the client key pair used to authenticate to a
// relay.
//
// The client ID is a did:key identifier derived from an Ed25519 public key:
//
//	did:key:z<base58btc(0xed 0x01 || public key)>
//
// A Provider loads the key seed from persistent storage, creating and storing
// a new one on first use, and signs short-lived EdDSA JWTs that a relay can
// verify from the issuer DID alone.
package identity
