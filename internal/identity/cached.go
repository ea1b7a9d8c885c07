package identity

import (
	"context"

	"chirp/internal/cache"
	"chirp/internal/models"
)

// CachedStore puts a cache-aside layer in front of profile and summary reads.
// Writes go straight to the wrapped Store and invalidate affected keys.
type CachedStore struct {
	Store
	cache cache.Store
}

// NewCachedStore wraps next with c. A nil c disables caching.
func NewCachedStore(next Store, c cache.Store) *CachedStore {
	if c == nil {
		c = cache.NoopStore{}
	}
	return &CachedStore{Store: next, cache: c}
}

func (s *CachedStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := cache.Aside(ctx, s.cache, cache.UserKey(id), &user, cache.UserTTL, func() error {
		u, err := s.Store.GetByID(ctx, id)
		if err != nil {
			return err
		}
		user = *u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Summaries serves hits from the cached profiles and batches the misses into
// one lookup on the wrapped store.
func (s *CachedStore) Summaries(ctx context.Context, ids []string) (map[string]models.UserSummary, error) {
	out := make(map[string]models.UserSummary, len(ids))
	var misses []string
	for _, id := range ids {
		if _, ok := out[id]; ok {
			continue
		}
		var user models.User
		if found, err := cache.GetJSON(ctx, s.cache, cache.UserKey(id), &user); err == nil && found {
			out[id] = user.Summary()
			continue
		}
		misses = append(misses, id)
	}
	if len(misses) == 0 {
		return out, nil
	}
	fetched, err := s.Store.Summaries(ctx, misses)
	if err != nil {
		return nil, err
	}
	for id, summary := range fetched {
		out[id] = summary
	}
	return out, nil
}

func (s *CachedStore) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*models.User, error) {
	user, err := s.Store.UpdateProfile(ctx, id, upd)
	cache.Invalidate(ctx, s.cache, cache.UserKey(id))
	return user, err
}

func (s *CachedStore) AddFollow(ctx context.Context, followerID, followeeID string) (bool, error) {
	added, err := s.Store.AddFollow(ctx, followerID, followeeID)
	s.invalidate(ctx, followerID, followeeID)
	return added, err
}

func (s *CachedStore) RemoveFollow(ctx context.Context, followerID, followeeID string) (bool, error) {
	removed, err := s.Store.RemoveFollow(ctx, followerID, followeeID)
	s.invalidate(ctx, followerID, followeeID)
	return removed, err
}

func (s *CachedStore) invalidate(ctx context.Context, ids ...string) {
	for _, id := range ids {
		cache.Invalidate(ctx, s.cache, cache.UserKey(id))
	}
}
