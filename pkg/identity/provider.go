package identity

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/relaykit/relaysub/pkg/persistence"
)

// Provider errors.
var (
	ErrNoStorage   = errors.New("identity storage not configured")
	ErrCorruptSeed = errors.New("stored identity seed is corrupt")
)

// StorageName is the record name under which the key seed is stored.
const StorageName = "identity"

// Config configures a Provider.
type Config struct {
	// Storage key parts; see persistence.Key.
	Prefix    string
	Version   string
	Namespace string

	Logger *slog.Logger
}

type keyRecord struct {
	Seed      []byte    `cbor:"1,keyasint"`
	CreatedAt time.Time `cbor:"2,keyasint"`
}

// Provider supplies the client's identity, creating it on first use.
type Provider struct {
	storage persistence.Storage
	key     string
	logger  *slog.Logger

	mu   sync.Mutex
	priv ed25519.PrivateKey
	id   string
}

// NewProvider creates a provider backed by storage.
func NewProvider(storage persistence.Storage, cfg Config) (*Provider, error) {
	if storage == nil {
		return nil, ErrNoStorage
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Provider{
		storage: storage,
		key:     persistence.Key(cfg.Prefix, cfg.Version, cfg.Namespace, StorageName),
		logger:  cfg.Logger,
	}, nil
}

// NewStaticProvider wraps an existing key and never touches storage.
func NewStaticProvider(priv ed25519.PrivateKey) *Provider {
	return &Provider{
		priv:   priv,
		id:     ClientIDFromPublicKey(priv.Public().(ed25519.PublicKey)),
		logger: slog.Default(),
	}
}

// ClientID returns the did:key identifier of the client.
func (p *Provider) ClientID(ctx context.Context) (string, error) {
	if err := p.load(ctx); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.id, nil
}

// PrivateKey returns the client's signing key.
func (p *Provider) PrivateKey(ctx context.Context) (ed25519.PrivateKey, error) {
	if err := p.load(ctx); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.priv, nil
}

// Reset discards the stored key so the next call creates a new identity.
func (p *Provider) Reset(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.priv = nil
	p.id = ""
	if p.storage == nil {
		return nil
	}
	return p.storage.RemoveItem(ctx, p.key)
}

func (p *Provider) load(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.priv != nil {
		return nil
	}
	if p.storage == nil {
		return ErrNoStorage
	}

	var rec keyRecord
	found, err := p.storage.GetItem(ctx, p.key, &rec)
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}

	if found {
		if len(rec.Seed) != ed25519.SeedSize {
			return ErrCorruptSeed
		}
		p.setKey(ed25519.NewKeyFromSeed(rec.Seed))
		return nil
	}

	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return fmt.Errorf("generate identity: %w", err)
	}
	rec = keyRecord{Seed: seed, CreatedAt: time.Now().UTC()}
	if err := p.storage.SetItem(ctx, p.key, rec); err != nil {
		return fmt.Errorf("store identity: %w", err)
	}
	p.setKey(ed25519.NewKeyFromSeed(seed))
	p.logger.Info("created client identity", "client_id", p.id)
	return nil
}

func (p *Provider) setKey(priv ed25519.PrivateKey) {
	p.priv = priv
	p.id = ClientIDFromPublicKey(priv.Public().(ed25519.PublicKey))
}
