package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"opsconsole-backend/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IdempotencyStore keeps the first response per user and Idempotency-Key.
type IdempotencyStore interface {
	// Reserve returns the record stored under (rec.UserID, rec.Key), inserting
	// rec as a pending record (ResponseStatus 0) when none exists. created
	// reports whether this call inserted it.
	Reserve(ctx context.Context, rec models.IdempotencyKey) (stored models.IdempotencyKey, created bool, err error)
	// Complete stores the response of a pending key.
	Complete(ctx context.Context, userID, key string, status int, body []byte, at time.Time) error
	// Release drops a pending key so the request can be retried.
	Release(ctx context.Context, userID, key string) error
}

type GormIdempotencyStore struct {
	db *gorm.DB
}

func NewGormIdempotencyStore(db *gorm.DB) *GormIdempotencyStore {
	return &GormIdempotencyStore{db: db}
}

func (s *GormIdempotencyStore) Reserve(ctx context.Context, rec models.IdempotencyKey) (models.IdempotencyKey, bool, error) {
	db := s.db.WithContext(ctx)
	// a unique race leaves this insert a no-op; the winner's record is read below
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "key"}},
		DoNothing: true,
	}).Create(&rec)
	if res.Error != nil {
		return models.IdempotencyKey{}, false, fmt.Errorf("idempotency create failed: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return rec, true, nil
	}
	var existing models.IdempotencyKey
	if err := db.Where("user_id = ? AND key = ?", rec.UserID, rec.Key).First(&existing).Error; err != nil {
		return models.IdempotencyKey{}, false, fmt.Errorf("idempotency lookup failed: %w", err)
	}
	return existing, false, nil
}

func (s *GormIdempotencyStore) Complete(ctx context.Context, userID, key string, status int, body []byte, at time.Time) error {
	return s.db.WithContext(ctx).Model(&models.IdempotencyKey{}).
		Where("user_id = ? AND key = ?", userID, key).
		Updates(map[string]any{
			"response_status": status,
			"response_body":   body,
			"completed_at":    &at,
		}).Error
}

func (s *GormIdempotencyStore) Release(ctx context.Context, userID, key string) error {
	return s.db.WithContext(ctx).
		Where("user_id = ? AND key = ? AND response_status = 0", userID, key).
		Delete(&models.IdempotencyKey{}).Error
}

type userKey struct{ userID, key string }

type MemoryIdempotencyStore struct {
	mu   sync.Mutex
	keys map[userKey]models.IdempotencyKey
}

func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{keys: make(map[userKey]models.IdempotencyKey)}
}

func (s *MemoryIdempotencyStore) Reserve(_ context.Context, rec models.IdempotencyKey) (models.IdempotencyKey, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := userKey{rec.UserID, rec.Key}
	if existing, ok := s.keys[k]; ok {
		return existing, false, nil
	}
	s.keys[k] = rec
	return rec, true, nil
}

func (s *MemoryIdempotencyStore) Complete(_ context.Context, userID, key string, status int, body []byte, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := userKey{userID, key}
	rec, ok := s.keys[k]
	if !ok {
		return fmt.Errorf("idempotency key %q not reserved", key)
	}
	rec.ResponseStatus = status
	rec.ResponseBody = append([]byte(nil), body...)
	rec.CompletedAt = &at
	s.keys[k] = rec
	return nil
}

func (s *MemoryIdempotencyStore) Release(_ context.Context, userID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := userKey{userID, key}
	if rec, ok := s.keys[k]; ok && rec.ResponseStatus == 0 {
		delete(s.keys, k)
	}
	return nil
}
