package model

import (
	"strconv"
	"time"
)

// TemporaryLink is a time-boxed, token-addressed pointer to a File.
// Links are immutable once created; expiry is enforced on redemption.
type TemporaryLink struct {
	ID        string    `json:"id"`
	IssuerID  string    `json:"issuer_id"`
	FileID    string    `json:"file_id"`
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expiry_date"`
	CreatedAt time.Time `json:"created_at"`
}

// IsExpiredAt reports whether the link has expired at the given instant.
// The expiry instant itself is still valid.
func (l *TemporaryLink) IsExpiredAt(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// CachedTemporaryLink represents link data stored in Redis cache.
// Uses string types for Redis hash compatibility.
type CachedTemporaryLink struct {
	ID        string `redis:"id"`
	IssuerID  string `redis:"issuer_id"`
	FileID    string `redis:"file_id"`
	ExpiresAt string `redis:"expires_at"` // Unix nanoseconds
	CreatedAt string `redis:"created_at"` // Unix seconds
}

// ToLink converts CachedTemporaryLink to the TemporaryLink domain model.
func (c *CachedTemporaryLink) ToLink(token string) *TemporaryLink {
	link := &TemporaryLink{
		ID:       c.ID,
		IssuerID: c.IssuerID,
		FileID:   c.FileID,
		Token:    token,
	}

	if ts, err := strconv.ParseInt(c.ExpiresAt, 10, 64); err == nil {
		link.ExpiresAt = time.Unix(0, ts).UTC()
	}
	if ts, err := strconv.ParseInt(c.CreatedAt, 10, 64); err == nil {
		link.CreatedAt = time.Unix(ts, 0).UTC()
	}

	return link
}

// ToCachedLink converts a TemporaryLink to its cache representation.
func (l *TemporaryLink) ToCachedLink() *CachedTemporaryLink {
	return &CachedTemporaryLink{
		ID:        l.ID,
		IssuerID:  l.IssuerID,
		FileID:    l.FileID,
		ExpiresAt: strconv.FormatInt(l.ExpiresAt.UnixNano(), 10),
		CreatedAt: strconv.FormatInt(l.CreatedAt.Unix(), 10),
	}
}
