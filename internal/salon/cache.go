package salon

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/salon-voice-booking/pkg/logging"
)

// CachedDirectory serves directory lookups from Redis, falling back to the
// wrapped Directory on a miss. Redis failures are logged and bypassed.
type CachedDirectory struct {
	next   Directory
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// NewCachedDirectory wraps next. A non-positive ttl defaults to five minutes.
func NewCachedDirectory(next Directory, client *redis.Client, ttl time.Duration, logger *logging.Logger) *CachedDirectory {
	if next == nil {
		panic("salon: directory required")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CachedDirectory{next: next, redis: client, ttl: ttl, logger: logger}
}

func businessKey(phone string) string {
	return fmt.Sprintf("salon:business:phone:%s", phone)
}

func techniciansKey(businessID string) string {
	return fmt.Sprintf("salon:technicians:%s", businessID)
}

func servicesKey(businessID string) string {
	return fmt.Sprintf("salon:services:%s", businessID)
}

func (c *CachedDirectory) BusinessByPhone(ctx context.Context, phone string) (*Business, error) {
	var b Business
	if c.get(ctx, businessKey(phone), &b) {
		return &b, nil
	}
	found, err := c.next.BusinessByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	c.set(ctx, businessKey(phone), found)
	return found, nil
}

func (c *CachedDirectory) ListTechnicians(ctx context.Context, businessID string) ([]Technician, error) {
	var techs []Technician
	if c.get(ctx, techniciansKey(businessID), &techs) {
		return techs, nil
	}
	techs, err := c.next.ListTechnicians(ctx, businessID)
	if err != nil {
		return nil, err
	}
	c.set(ctx, techniciansKey(businessID), techs)
	return techs, nil
}

func (c *CachedDirectory) ListServices(ctx context.Context, businessID string) ([]Service, error) {
	var services []Service
	if c.get(ctx, servicesKey(businessID), &services) {
		return services, nil
	}
	services, err := c.next.ListServices(ctx, businessID)
	if err != nil {
		return nil, err
	}
	c.set(ctx, servicesKey(businessID), services)
	return services, nil
}

// Invalidate drops every cached entry for the business.
func (c *CachedDirectory) Invalidate(ctx context.Context, businessID, phone string) error {
	if c.redis == nil {
		return nil
	}
	if err := c.redis.Del(ctx, businessKey(phone), techniciansKey(businessID), servicesKey(businessID)).Err(); err != nil {
		return fmt.Errorf("salon: invalidate cache: %w", err)
	}
	return nil
}

func (c *CachedDirectory) get(ctx context.Context, key string, dst any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		c.logger.Warn("directory cache read failed", "key", key, "error", err)
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		c.logger.Warn("directory cache entry corrupt", "key", key, "error", err)
		return false
	}
	return true
}

func (c *CachedDirectory) set(ctx context.Context, key string, value any) {
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("directory cache write failed", "key", key, "error", err)
	}
}

type cachedStore struct {
	Directory
	store Store
}

func (s cachedStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return s.store.InTx(ctx, fn)
}

// WithDirectory returns a Store whose lookups go through dir and whose
// transactions still run on store.
func WithDirectory(store Store, dir Directory) Store {
	if dir == nil {
		return store
	}
	return cachedStore{Directory: dir, store: store}
}
