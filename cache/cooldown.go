package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/go-redis/redis/v8"
)

const keySearchCooldown = "dj:search:cd:%s:%s"

// SearchCooldowns throttles interactive searches per guild member, backed by
// redis key expiry so cooldowns survive restarts and are shared between
// nodes. Implements the search manager's Cooldowner.
type SearchCooldowns struct {
	client *redis.Client
}

func NewSearchCooldowns() *SearchCooldowns {
	return &SearchCooldowns{client: RedisClient}
}

func NewSearchCooldownsWithClient(client *redis.Client) *SearchCooldowns {
	return &SearchCooldowns{client: client}
}

// SetSearchCooldown arms the member's cooldown for d.
func (c *SearchCooldowns) SetSearchCooldown(ctx context.Context, guildID, userID snowflake.ID, d time.Duration) error {
	if c.client == nil || d <= 0 {
		return nil
	}
	key := fmt.Sprintf(keySearchCooldown, guildID.String(), userID.String())
	return c.client.SetEX(ctx, key, "1", d).Err()
}

// SearchCoolingDown reports whether the member's cooldown is still armed.
func (c *SearchCooldowns) SearchCoolingDown(ctx context.Context, guildID, userID snowflake.ID) (bool, error) {
	if c.client == nil {
		return false, nil
	}
	key := fmt.Sprintf(keySearchCooldown, guildID.String(), userID.String())
	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
