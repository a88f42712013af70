package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"peopleflow.org/internal/rbac"
)

const keyPrefix = "perm:"

// Permissions caches aggregated permission sets in Redis in front of a
// slower Source. Reads fall through to the source on any cache failure, so a
// degraded Redis never blocks authorization; writes are invalidated by the
// RBAC service after role or assignment mutations.
type Permissions struct {
	client *redis.Client
	source rbac.Source
	ttl    time.Duration
}

var (
	_ rbac.Source      = (*Permissions)(nil)
	_ rbac.Invalidator = (*Permissions)(nil)
)

// NewPermissions wraps source with a Redis cache. ttl bounds staleness for
// changes that escape explicit invalidation.
func NewPermissions(client *redis.Client, source rbac.Source, ttl time.Duration) (*Permissions, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if source == nil {
		return nil, errors.New("permission source is required")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Permissions{client: client, source: source, ttl: ttl}, nil
}

// key layout: perm:{userID}:{tenantID} with "global" standing in for the nil
// tenant scope. Tenant ids are ULIDs so the sentinel cannot collide.
func cacheKey(userID string, tenantID *string) string {
	scope := "global"
	if tenantID != nil {
		scope = *tenantID
	}
	return keyPrefix + userID + ":" + scope
}

func (p *Permissions) UserPermissions(ctx context.Context, userID string, tenantID *string) ([]string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", rbac.ErrInvalidInput)
	}
	key := cacheKey(userID, tenantID)

	raw, err := p.client.Get(ctx, key).Bytes()
	if err == nil {
		var names []string
		if err := json.Unmarshal(raw, &names); err == nil {
			return names, nil
		}
		// Corrupt entry: drop it and fall through to the source.
		_ = p.client.Del(ctx, key).Err()
	}

	names, err := p.source.UserPermissions(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	if encoded, err := json.Marshal(names); err == nil {
		_ = p.client.Set(ctx, key, encoded, p.ttl).Err()
	}
	return names, nil
}

// InvalidateUser removes every cached scope for the user.
func (p *Permissions) InvalidateUser(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user_id is required", rbac.ErrInvalidInput)
	}
	return p.deleteByPattern(ctx, keyPrefix+userID+":*")
}

// InvalidateAll flushes all cached permission sets. Used after role-level
// mutations where the affected user set is unknown.
func (p *Permissions) InvalidateAll(ctx context.Context) error {
	return p.deleteByPattern(ctx, keyPrefix+"*")
}

func (p *Permissions) deleteByPattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := p.client.Scan(ctx, cursor, pattern, 256).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := p.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
