package memory

import (
	"context"
	"math/rand"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"trivia-board-service/internal/app"
	"trivia-board-service/internal/domain"
)

// CachedGameStore fronts a slower GameStore with a TTL cache to avoid repeated DB hits.
// Writes go through to the backing store and refresh the cache.
type CachedGameStore struct {
	next  app.GameStore
	ttl   time.Duration
	cache *gocache.Cache
	sf    singleflight.Group
}

func NewCachedGameStore(next app.GameStore, ttl time.Duration) *CachedGameStore {
	return &CachedGameStore{
		next:  next,
		ttl:   ttl,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func (c *CachedGameStore) Load(ctx context.Context, gameID string) (domain.GameState, error) {
	if state, ok := c.cached(gameID); ok {
		return state, nil
	}

	result, err, _ := c.sf.Do(gameID, func() (interface{}, error) {
		if state, ok := c.cached(gameID); ok {
			return state, nil
		}
		state, err := c.next.Load(ctx, gameID)
		if err != nil {
			return domain.GameState{}, err
		}
		c.store(state)
		return state, nil
	})
	if err != nil {
		return domain.GameState{}, err
	}
	return result.(domain.GameState).Clone(), nil
}

func (c *CachedGameStore) Save(ctx context.Context, state domain.GameState) error {
	if err := c.next.Save(ctx, state); err != nil {
		c.cache.Delete(state.ID)
		return err
	}
	c.store(state)
	return nil
}

func (c *CachedGameStore) Delete(ctx context.Context, gameID string) error {
	c.cache.Delete(gameID)
	return c.next.Delete(ctx, gameID)
}

func (c *CachedGameStore) cached(gameID string) (domain.GameState, bool) {
	v, ok := c.cache.Get(gameID)
	if !ok {
		return domain.GameState{}, false
	}
	return v.(domain.GameState).Clone(), true
}

func (c *CachedGameStore) store(state domain.GameState) {
	c.cache.Set(state.ID, state.Clone(), c.ttlWithJitter())
}

func (c *CachedGameStore) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return gocache.DefaultExpiration
	}
	// add up to 10% jitter to spread expirations
	return c.ttl + time.Duration(rand.Int63n(int64(c.ttl)/10+1))
}
