// Package cache holds the admin key-list view so repeated listings do not
// hit the store. Every key mutation invalidates it.
package cache

import (
	"context"
	"time"

	"github.com/reelvault/reelvault/internal/model"
)

// DefaultTTL bounds how stale a cached listing may get.
const DefaultTTL = 5 * time.Minute

// KeyList caches the newest-first API key listing.
//
// Every Invalidate advances a generation counter. A reader that missed
// passes the generation it observed to Set, and Set drops the write if an
// invalidation happened since, so a listing read before a mutation can never
// overwrite the invalidation that mutation made.
type KeyList interface {
	// Get returns the cached listing and the current generation. ok is
	// false on a miss; gen is valid either way.
	Get(ctx context.Context) (keys []model.APIKey, gen int64, ok bool, err error)
	// Set stores keys unless the generation is no longer gen.
	Set(ctx context.Context, gen int64, keys []model.APIKey) error
	Invalidate(ctx context.Context) error
}

// entry is the cached form of a key. It carries the masked-display suffix
// but never the hash, which is not needed to render the list.
type entry struct {
	ID         string     `json:"id"`
	KeyPrefix  string     `json:"key_prefix"`
	KeySuffix  string     `json:"key_suffix"`
	Label      string     `json:"label"`
	IsActive   bool       `json:"is_active"`
	UsageCount int64      `json:"usage_count"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func toEntries(keys []model.APIKey) []entry {
	out := make([]entry, len(keys))
	for i, k := range keys {
		out[i] = entry{
			ID:         k.ID,
			KeyPrefix:  k.KeyPrefix,
			KeySuffix:  k.KeySuffix,
			Label:      k.Label,
			IsActive:   k.IsActive,
			UsageCount: k.UsageCount,
			LastUsedAt: k.LastUsedAt,
			CreatedAt:  k.CreatedAt,
			UpdatedAt:  k.UpdatedAt,
		}
	}
	return out
}

func fromEntries(entries []entry) []model.APIKey {
	out := make([]model.APIKey, len(entries))
	for i, e := range entries {
		out[i] = model.APIKey{
			ID:         e.ID,
			KeyPrefix:  e.KeyPrefix,
			KeySuffix:  e.KeySuffix,
			Label:      e.Label,
			IsActive:   e.IsActive,
			UsageCount: e.UsageCount,
			LastUsedAt: e.LastUsedAt,
			CreatedAt:  e.CreatedAt,
			UpdatedAt:  e.UpdatedAt,
		}
	}
	return out
}
