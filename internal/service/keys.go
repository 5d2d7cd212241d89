package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/reelvault/reelvault/internal/cache"
	"github.com/reelvault/reelvault/internal/config"
	"github.com/reelvault/reelvault/internal/metrics"
	"github.com/reelvault/reelvault/internal/model"
)

var (
	ErrMissingCredential = errors.New("api key missing")
	ErrInvalidCredential = errors.New("invalid api key")
	ErrStoreUnavailable  = errors.New("key store unavailable")
	ErrLabelRequired     = errors.New("label is required")
)

const (
	// secretBytes is the amount of randomness in a raw key.
	secretBytes = 24
	// SecretLength is the length of a raw key: the prefix plus hex digits.
	SecretLength = len(model.KeyPrefix) + secretBytes*2
	suffixLength = 4
)

// IssuedKey is returned exactly once, at creation. Secret is the only copy
// of the raw key; the store keeps a bcrypt hash.
type IssuedKey struct {
	Key    *model.APIKey `json:"key"`
	Secret string        `json:"secret"`
}

// KeyService issues, verifies, and administers API keys.
type KeyService struct {
	store   *config.Store
	cache   cache.KeyList
	metrics *metrics.Metrics
	logger  *slog.Logger
	cost    int
}

// KeyOption configures a KeyService.
type KeyOption func(*KeyService)

// WithHashCost sets the bcrypt cost for new keys.
func WithHashCost(cost int) KeyOption {
	return func(s *KeyService) { s.cost = cost }
}

// WithKeyCache serves List from c and invalidates it on every mutation.
func WithKeyCache(c cache.KeyList) KeyOption {
	return func(s *KeyService) { s.cache = c }
}

// WithMetrics records verification and issuance outcomes.
func WithMetrics(m *metrics.Metrics) KeyOption {
	return func(s *KeyService) { s.metrics = m }
}

// WithLogger sets the logger used for cache and verification diagnostics.
func WithLogger(l *slog.Logger) KeyOption {
	return func(s *KeyService) { s.logger = l }
}

// NewKeyService creates a KeyService backed by store.
func NewKeyService(store *config.Store, opts ...KeyOption) *KeyService {
	s := &KeyService{
		store:  store,
		logger: slog.Default(),
		cost:   bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cost < bcrypt.MinCost || s.cost > bcrypt.MaxCost {
		s.cost = bcrypt.DefaultCost
	}
	return s
}

// GenerateSecret returns a new raw key: the mv_ prefix followed by 48 hex
// characters from crypto/rand.
func GenerateSecret() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return model.KeyPrefix + hex.EncodeToString(b), nil
}

// Issue creates and persists a new active key with the given label.
func (s *KeyService) Issue(ctx context.Context, label string) (*IssuedKey, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, ErrLabelRequired
	}

	secret, err := GenerateSecret()
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash key: %w", err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate key id: %w", err)
	}

	key := &model.APIKey{
		ID:        id.String(),
		KeyHash:   string(hash),
		KeyPrefix: model.KeyPrefix,
		KeySuffix: secret[len(secret)-suffixLength:],
		Label:     label,
		IsActive:  true,
	}
	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	s.metrics.ObserveIssued()
	s.logger.Info("api key issued", "key_id", key.ID, "label", key.Label)

	return &IssuedKey{Key: key, Secret: secret}, nil
}

// Verify resolves a raw key to its active record.
//
// Every active key is compared with bcrypt until one matches, so the cost
// grows linearly with the number of active keys. That is acceptable for the
// tens to low hundreds of keys an admin hands out by hand.
//
// An empty key returns an error matching both ErrMissingCredential and
// ErrInvalidCredential. A well-formed key that matches nothing, or matches
// only an inactive key, returns ErrInvalidCredential. A store failure
// returns ErrStoreUnavailable. If ctx ends first the error wraps ctx.Err().
func (s *KeyService) Verify(ctx context.Context, raw string) (*model.APIKey, error) {
	start := time.Now()

	if raw == "" {
		s.metrics.ObserveVerification(metrics.ResultMissing, time.Since(start))
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredential, ErrMissingCredential)
	}
	if !wellFormed(raw) {
		s.metrics.ObserveVerification(metrics.ResultInvalid, time.Since(start))
		return nil, ErrInvalidCredential
	}

	keys, err := s.store.ListActiveAPIKeys(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			s.metrics.ObserveVerification(metrics.ResultCanceled, time.Since(start))
			return nil, fmt.Errorf("verify api key: %w", ctxErr)
		}
		s.metrics.ObserveVerification(metrics.ResultStoreError, time.Since(start))
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	for i := range keys {
		if err := ctx.Err(); err != nil {
			s.metrics.ObserveVerification(metrics.ResultCanceled, time.Since(start))
			return nil, fmt.Errorf("verify api key: %w", err)
		}
		if bcrypt.CompareHashAndPassword([]byte(keys[i].KeyHash), []byte(raw)) == nil {
			s.metrics.ObserveVerification(metrics.ResultValid, time.Since(start))
			return &keys[i], nil
		}
	}

	s.metrics.ObserveVerification(metrics.ResultInvalid, time.Since(start))
	return nil, ErrInvalidCredential
}

func wellFormed(raw string) bool {
	if len(raw) != SecretLength || !strings.HasPrefix(raw, model.KeyPrefix) {
		return false
	}
	_, err := hex.DecodeString(raw[len(model.KeyPrefix):])
	return err == nil
}

// List returns every key, newest first, without secret material.
func (s *KeyService) List(ctx context.Context) ([]model.APIKey, error) {
	// gen is captured before the store read; a mutation landing after it
	// bumps the generation and the Set below becomes a no-op.
	var (
		gen       int64
		cacheable bool
	)
	if s.cache != nil {
		keys, g, ok, err := s.cache.Get(ctx)
		switch {
		case err != nil:
			s.logger.Warn("key list cache read failed", "error", err)
		case ok:
			return keys, nil
		default:
			gen, cacheable = g, true
		}
	}

	keys, err := s.store.ListAPIKeys(ctx)
	if err != nil {
		return nil, err
	}
	for i := range keys {
		keys[i].KeyHash = ""
	}

	if cacheable {
		if err := s.cache.Set(ctx, gen, keys); err != nil {
			s.logger.Warn("key list cache write failed", "error", err)
		}
	}
	return keys, nil
}

// Get returns a single key by id.
func (s *KeyService) Get(ctx context.Context, id string) (*model.APIKey, error) {
	key, err := s.store.GetAPIKey(ctx, id)
	if err != nil {
		return nil, err
	}
	key.KeyHash = ""
	return key, nil
}

// Toggle flips a key between active and inactive.
func (s *KeyService) Toggle(ctx context.Context, id string) (*model.APIKey, error) {
	key, err := s.store.ToggleAPIKey(ctx, id)
	if err != nil {
		return nil, err
	}
	key.KeyHash = ""
	s.invalidate(ctx)
	s.logger.Info("api key toggled", "key_id", id, "active", key.IsActive)
	return key, nil
}

// Rename replaces a key's label.
func (s *KeyService) Rename(ctx context.Context, id, label string) (*model.APIKey, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, ErrLabelRequired
	}
	if err := s.store.RenameAPIKey(ctx, id, label); err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return s.Get(ctx, id)
}

// Delete permanently removes a key. Requests presenting it fail from the
// next verification on.
func (s *KeyService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteAPIKey(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.logger.Info("api key deleted", "key_id", id)
	return nil
}

func (s *KeyService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("key list cache invalidation failed", "error", err)
	}
}
