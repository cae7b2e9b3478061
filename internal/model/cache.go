package model

import "time"

// CacheMetadata describes the whole roster mirror. It is replaced wholesale
// on every refresh; IsExpired is derived at read time, never stored.
type CacheMetadata struct {
	LastSyncAt        time.Time `json:"last_sync_at"`
	StudentCount      int       `json:"student_count"`
	ExpiresAt         time.Time `json:"expires_at"`
	SizeInBytes       int64     `json:"size_in_bytes"`
	EncryptionEnabled bool      `json:"encryption_enabled"`
}

func (m CacheMetadata) IsExpired(now time.Time) bool {
	return m.ExpiresAt.IsZero() || now.After(m.ExpiresAt)
}
