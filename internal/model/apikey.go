package model

import "time"

// KeyPrefix is the namespace tag every issued API key starts with. It makes
// keys recognizable in logs and config files without revealing anything
// about the secret part.
const KeyPrefix = "mv_"

// APIKey is a stored API key record. The raw secret is never persisted; only
// a bcrypt hash plus the non-secret prefix and last four characters, which
// are enough to render a masked form in the admin UI.
type APIKey struct {
	ID         string     `json:"id" db:"id"`
	KeyHash    string     `json:"-" db:"key_hash"` // bcrypt hash, never expose
	KeyPrefix  string     `json:"key_prefix" db:"key_prefix"`
	KeySuffix  string     `json:"-" db:"key_suffix"`
	Label      string     `json:"label" db:"label"`
	IsActive   bool       `json:"is_active" db:"is_active"`
	UsageCount int64      `json:"usage_count" db:"usage_count"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// MaskedKey returns a display form such as "mv_…3f9a".
func (k *APIKey) MaskedKey() string {
	return k.KeyPrefix + "…" + k.KeySuffix
}
