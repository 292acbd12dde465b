package identity

import (
	"context"
	"crypto/ed25519"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/relaykit/relaysub/pkg/persistence"
	"github.com/relaykit/relaysub/pkg/persistence/mocks"
)

func TestDIDKey(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		pub, _, err := ed25519.GenerateKey(nil)
		require.NoError(t, err)

		id := ClientIDFromPublicKey(pub)
		assert.True(t, strings.HasPrefix(id, "did:key:z6Mk"), id)

		back, err := PublicKeyFromClientID(id)
		require.NoError(t, err)
		assert.True(t, pub.Equal(back))
	})

	t.Run("Invalid", func(t *testing.T) {
		for _, id := range []string{
			"",
			"did:web:example.com",
			"did:key:",
			"did:key:f1234",
			"did:key:z0OIl",
			"did:key:z" + base58.Encode([]byte{0xe7, 0x01, 1, 2, 3}),
		} {
			_, err := PublicKeyFromClientID(id)
			assert.ErrorIs(t, err, ErrInvalidDID, id)
		}
	})
}

func TestProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("CreatesAndPersists", func(t *testing.T) {
		store := persistence.NewMemoryStore()
		p, err := NewProvider(store, Config{Namespace: "test"})
		require.NoError(t, err)

		id, err := p.ClientID(ctx)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(id, "did:key:z"))
		assert.Equal(t, 1, store.Len())

		// A second provider over the same storage sees the same identity.
		p2, err := NewProvider(store, Config{Namespace: "test"})
		require.NoError(t, err)
		id2, err := p2.ClientID(ctx)
		require.NoError(t, err)
		assert.Equal(t, id, id2)
	})

	t.Run("NamespacesAreIndependent", func(t *testing.T) {
		store := persistence.NewMemoryStore()
		a, _ := NewProvider(store, Config{Namespace: "a"})
		b, _ := NewProvider(store, Config{Namespace: "b"})

		idA, err := a.ClientID(ctx)
		require.NoError(t, err)
		idB, err := b.ClientID(ctx)
		require.NoError(t, err)
		assert.NotEqual(t, idA, idB)
	})

	t.Run("Reset", func(t *testing.T) {
		store := persistence.NewMemoryStore()
		p, _ := NewProvider(store, Config{})

		before, err := p.ClientID(ctx)
		require.NoError(t, err)
		require.NoError(t, p.Reset(ctx))
		after, err := p.ClientID(ctx)
		require.NoError(t, err)
		assert.NotEqual(t, before, after)
	})

	t.Run("NilStorage", func(t *testing.T) {
		_, err := NewProvider(nil, Config{})
		assert.ErrorIs(t, err, ErrNoStorage)
	})

	t.Run("StorageError", func(t *testing.T) {
		boom := errors.New("disk gone")
		store := mocks.NewMockStorage(t)
		store.EXPECT().GetItem(mock.Anything, mock.Anything, mock.Anything).Return(false, boom)

		p, _ := NewProvider(store, Config{})
		_, err := p.ClientID(ctx)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("CorruptSeed", func(t *testing.T) {
		store := mocks.NewMockStorage(t)
		store.EXPECT().GetItem(mock.Anything, mock.Anything, mock.Anything).
			RunAndReturn(func(_ context.Context, _ string, dst interface{}) (bool, error) {
				dst.(*keyRecord).Seed = []byte{1, 2, 3}
				return true, nil
			})

		p, _ := NewProvider(store, Config{})
		_, err := p.ClientID(ctx)
		assert.ErrorIs(t, err, ErrCorruptSeed)
	})

	t.Run("Static", func(t *testing.T) {
		_, priv, err := ed25519.GenerateKey(nil)
		require.NoError(t, err)

		p := NewStaticProvider(priv)
		id, err := p.ClientID(ctx)
		require.NoError(t, err)
		assert.Equal(t, ClientIDFromPublicKey(priv.Public().(ed25519.PublicKey)), id)
	})
}

func TestAuthToken(t *testing.T) {
	ctx := context.Background()
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	p := NewStaticProvider(priv)
	id, _ := p.ClientID(ctx)

	t.Run("SignAndVerify", func(t *testing.T) {
		tok, err := p.SignAuthToken(ctx, "wss://relay.example.com", time.Hour)
		require.NoError(t, err)

		claims, err := VerifyAuthToken(tok, "wss://relay.example.com")
		require.NoError(t, err)
		assert.Equal(t, id, claims.Issuer)
		assert.Len(t, claims.Subject, 64)
		assert.NotEmpty(t, claims.ID)
		assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, 5*time.Second)
	})

	t.Run("WrongAudience", func(t *testing.T) {
		tok, err := p.SignAuthToken(ctx, "wss://relay.example.com", time.Hour)
		require.NoError(t, err)

		_, err = VerifyAuthToken(tok, "wss://other.example.com")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("Expired", func(t *testing.T) {
		claims := jwt.RegisteredClaims{
			Issuer:    id,
			Audience:  jwt.ClaimStrings{"aud"},
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		}
		tok, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(priv)
		require.NoError(t, err)

		_, err = VerifyAuthToken(tok, "aud")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("ForgedIssuer", func(t *testing.T) {
		otherPub, _, err := ed25519.GenerateKey(nil)
		require.NoError(t, err)
		claims := jwt.RegisteredClaims{
			Issuer:    ClientIDFromPublicKey(otherPub),
			Audience:  jwt.ClaimStrings{"aud"},
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}
		tok, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(priv)
		require.NoError(t, err)

		_, err = VerifyAuthToken(tok, "aud")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("DefaultTTL", func(t *testing.T) {
		tok, err := p.SignAuthToken(ctx, "aud", 0)
		require.NoError(t, err)
		claims, err := VerifyAuthToken(tok, "aud")
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().Add(DefaultTokenTTL), claims.ExpiresAt.Time, 5*time.Second)
	})
}
