package channels

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip04"

	"github.com/cratos-run/cratos/pkg/models"
)

// DefaultNostrRelays are commonly used public relays.
var DefaultNostrRelays = []string{
	"wss://relay.damus.io",
	"wss://relay.nostr.band",
}

// NostrConfig holds configuration for the Nostr adapter.
type NostrConfig struct {
	// PrivateKey is the hex-encoded secret key (required).
	PrivateKey string

	// Relays are relay URLs to publish through; defaults apply when empty.
	Relays []string

	Logger *slog.Logger
}

// NostrAdapter implements Adapter and OutboundAdapter for Nostr,
// sending NIP-04 encrypted DMs through the configured relays.
type NostrAdapter struct {
	privateKey string
	publicKey  string
	relayURLs  []string
	logger     *slog.Logger

	mu        sync.RWMutex
	relays    []*nostr.Relay
	connected bool
}

// NewNostrAdapter validates cfg and derives the public key.
func NewNostrAdapter(cfg NostrConfig) (*NostrAdapter, error) {
	if cfg.PrivateKey == "" {
		return nil, fmt.Errorf("nostr: private key is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	publicKey, err := nostr.GetPublicKey(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("nostr: derive public key: %w", err)
	}
	relays := cfg.Relays
	if len(relays) == 0 {
		relays = DefaultNostrRelays
	}
	return &NostrAdapter{
		privateKey: cfg.PrivateKey,
		publicKey:  publicKey,
		relayURLs:  relays,
		logger:     cfg.Logger.With("adapter", "nostr"),
	}, nil
}

func (a *NostrAdapter) Type() models.ChannelType { return models.ChannelNostr }

// Start connects to the configured relays.
func (a *NostrAdapter) Start(ctx context.Context) error {
	var connected []*nostr.Relay
	for _, url := range a.relayURLs {
		relay, err := nostr.RelayConnect(ctx, url)
		if err != nil {
			a.logger.Warn("failed to connect to relay", "relay", url, "error", err)
			continue
		}
		connected = append(connected, relay)
	}
	if len(connected) == 0 {
		return fmt.Errorf("nostr: failed to connect to any relay")
	}
	a.mu.Lock()
	a.relays = connected
	a.connected = true
	a.mu.Unlock()
	return nil
}

func (a *NostrAdapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	relays := a.relays
	a.relays = nil
	a.connected = false
	a.mu.Unlock()
	for _, relay := range relays {
		relay.Close()
	}
	return nil
}

// Send delivers msg.Content as an encrypted DM to the pubkey in
// msg.Metadata["pubkey"], publishing to every connected relay.
func (a *NostrAdapter) Send(ctx context.Context, msg *models.Message) error {
	recipient, _ := msg.Metadata["pubkey"].(string)
	if recipient == "" {
		return fmt.Errorf("nostr: outbound message missing pubkey metadata")
	}

	sharedSecret, err := nip04.ComputeSharedSecret(recipient, a.privateKey)
	if err != nil {
		return fmt.Errorf("nostr: compute shared secret: %w", err)
	}
	ciphertext, err := nip04.Encrypt(msg.Content, sharedSecret)
	if err != nil {
		return fmt.Errorf("nostr: encrypt: %w", err)
	}

	event := nostr.Event{
		PubKey:    a.publicKey,
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Kind:      4, // Encrypted DM (NIP-04)
		Tags:      nostr.Tags{{"p", recipient}},
		Content:   ciphertext,
	}
	if err := event.Sign(a.privateKey); err != nil {
		return fmt.Errorf("nostr: sign event: %w", err)
	}

	a.mu.RLock()
	relays := a.relays
	a.mu.RUnlock()
	if len(relays) == 0 {
		return fmt.Errorf("nostr: adapter not started")
	}

	var lastErr error
	published := 0
	for _, relay := range relays {
		if err := relay.Publish(ctx, event); err != nil {
			lastErr = err
			continue
		}
		published++
	}
	if published == 0 {
		return fmt.Errorf("nostr: publish failed on all relays: %w", lastErr)
	}
	return nil
}

func (a *NostrAdapter) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Status{Connected: a.connected}
}

func (a *NostrAdapter) HealthCheck(ctx context.Context) HealthStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return HealthStatus{Healthy: a.connected && len(a.relays) > 0}
}
