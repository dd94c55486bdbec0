package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Asset is a cached upstream response.
type Asset struct {
	URL         string
	Status      int
	ContentType string
	ETag        string
	Body        []byte
	StoredAt    time.Time
}

// AssetCache is the surface the offline proxy depends on.
type AssetCache interface {
	GetAsset(ctx context.Context, url string) (Asset, bool, error)
	PutAsset(ctx context.Context, a Asset) error
}

// GetAsset returns the cached response for url.
func (s *LocalStore) GetAsset(ctx context.Context, url string) (Asset, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Asset{}, false, ErrClosed
	}

	a := Asset{URL: url}
	var storedAt int64
	err := s.db.QueryRowContext(ctx,
		"SELECT status, content_type, etag, body, stored_at FROM assets WHERE url = ?", url,
	).Scan(&a.Status, &a.ContentType, &a.ETag, &a.Body, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Asset{}, false, nil
	}
	if err != nil {
		return Asset{}, false, fmt.Errorf("get asset %s: %w", url, err)
	}
	a.StoredAt = time.UnixMilli(storedAt)
	return a, true, nil
}

// PutAsset stores or replaces a cached response.
func (s *LocalStore) PutAsset(ctx context.Context, a Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	at := a.StoredAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assets (url, status, content_type, etag, body, stored_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(url) DO UPDATE SET status = excluded.status, content_type = excluded.content_type,
		   etag = excluded.etag, body = excluded.body, stored_at = excluded.stored_at`,
		a.URL, a.Status, a.ContentType, a.ETag, a.Body, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("put asset %s: %w", a.URL, err)
	}
	return nil
}
