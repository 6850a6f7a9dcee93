package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/noah-isme/academy-import-api/internal/models"
	appErrors "github.com/noah-isme/academy-import-api/pkg/errors"
)

const sessionKeyPrefix = "imports:session:"

// ImportSessionRepository keeps reviewed uploads in Redis until they expire.
type ImportSessionRepository struct {
	cache *CacheRepository
}

// NewImportSessionRepository constructs the repository.
func NewImportSessionRepository(cache *CacheRepository) *ImportSessionRepository {
	return &ImportSessionRepository{cache: cache}
}

// Save stores session until its ExpiresAt.
func (r *ImportSessionRepository) Save(ctx context.Context, session *models.ImportSession) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("save import session %s: already expired", session.ID)
	}
	if err := r.cache.Set(ctx, sessionKeyPrefix+session.ID, session, ttl); err != nil {
		return fmt.Errorf("save import session: %w", err)
	}
	return nil
}

// Get loads a session. Unknown or expired ids return appErrors.ErrSessionExpired.
func (r *ImportSessionRepository) Get(ctx context.Context, id string) (*models.ImportSession, error) {
	var session models.ImportSession
	if err := r.cache.Get(ctx, sessionKeyPrefix+id, &session); err != nil {
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return nil, appErrors.ErrSessionExpired
		}
		return nil, fmt.Errorf("get import session: %w", err)
	}
	return &session, nil
}

// Take loads and removes a session atomically so a session can be executed only once.
func (r *ImportSessionRepository) Take(ctx context.Context, id string) (*models.ImportSession, error) {
	var session models.ImportSession
	if err := r.cache.Take(ctx, sessionKeyPrefix+id, &session); err != nil {
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return nil, appErrors.ErrSessionExpired
		}
		return nil, fmt.Errorf("take import session: %w", err)
	}
	return &session, nil
}
