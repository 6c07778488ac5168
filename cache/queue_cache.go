package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/go-redis/redis/v8"

	"Bt1QDJ/logger"
	"Bt1QDJ/model"
)

// 队列镜像的键布局。songs/prev 是按位置排序的 ZSET，state 是字段散列；
// 三个键同生同灭。
const (
	keyQueueSongs = "dj:queue:%s:songs"
	keyQueuePrev  = "dj:queue:%s:prev"
	keyQueueState = "dj:queue:%s:state"

	// queueTTL 让孤儿镜像自然过期，正常路径由 DeleteQueue 清理。
	queueTTL = 24 * time.Hour
)

// QueueCache mirrors queue snapshots into redis so a restarted node can pick
// its queues back up. It implements the queue manager's Store.
type QueueCache struct {
	client *redis.Client
}

// NewQueueCache uses the global client when one was initialized.
func NewQueueCache() *QueueCache {
	return &QueueCache{client: RedisClient}
}

// NewQueueCacheWithClient is the injectable constructor for tests.
func NewQueueCacheWithClient(client *redis.Client) *QueueCache {
	return &QueueCache{client: client}
}

// SaveQueue rewrites the guild's mirror atomically in one pipeline.
func (c *QueueCache) SaveQueue(ctx context.Context, snap *model.QueueSnapshot) error {
	if c.client == nil {
		return nil
	}
	if snap == nil || snap.GuildID == 0 {
		return fmt.Errorf("invalid queue snapshot")
	}
	gid := snap.GuildID.String()
	songsKey := fmt.Sprintf(keyQueueSongs, gid)
	prevKey := fmt.Sprintf(keyQueuePrev, gid)
	stateKey := fmt.Sprintf(keyQueueState, gid)

	filters, err := json.Marshal(snap.Filters)
	if err != nil {
		return fmt.Errorf("marshal filters: %w", err)
	}

	pipe := c.client.TxPipeline()
	pipe.Del(ctx, songsKey, prevKey)

	for i, song := range snap.Songs {
		data, err := json.Marshal(song)
		if err != nil {
			return fmt.Errorf("marshal song %s: %w", song.ID, err)
		}
		pipe.ZAdd(ctx, songsKey, &redis.Z{Score: float64(i), Member: string(data)})
	}
	for i, song := range snap.PreviousSongs {
		data, err := json.Marshal(song)
		if err != nil {
			return fmt.Errorf("marshal previous song %s: %w", song.ID, err)
		}
		pipe.ZAdd(ctx, prevKey, &redis.Z{Score: float64(i), Member: string(data)})
	}

	pipe.HSet(ctx, stateKey, map[string]interface{}{
		"volume":         snap.Volume,
		"repeatMode":     int(snap.RepeatMode),
		"autoplay":       snap.Autoplay,
		"paused":         snap.Paused,
		"playing":        snap.Playing,
		"voiceChannelID": snap.VoiceChannelID.String(),
		"textChannelID":  snap.TextChannelID.String(),
		"beginTime":      snap.BeginTime,
		"createdAt":      snap.CreatedAt.Format(time.RFC3339Nano),
		"filters":        string(filters),
	})
	pipe.Expire(ctx, songsKey, queueTTL)
	pipe.Expire(ctx, prevKey, queueTTL)
	pipe.Expire(ctx, stateKey, queueTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save queue %s: %w", gid, err)
	}
	return nil
}

// LoadQueue rebuilds a snapshot from the mirror; a missing guild returns
// (nil, nil).
func (c *QueueCache) LoadQueue(ctx context.Context, guildID snowflake.ID) (*model.QueueSnapshot, error) {
	if c.client == nil {
		return nil, nil
	}
	gid := guildID.String()
	stateKey := fmt.Sprintf(keyQueueState, gid)

	state, err := c.client.HGetAll(ctx, stateKey).Result()
	if err != nil {
		return nil, fmt.Errorf("load queue state %s: %w", gid, err)
	}
	if len(state) == 0 {
		return nil, nil
	}

	snap := &model.QueueSnapshot{GuildID: guildID}
	snap.Volume, _ = strconv.Atoi(state["volume"])
	if rm, err := strconv.Atoi(state["repeatMode"]); err == nil {
		snap.RepeatMode = model.RepeatMode(rm)
	}
	snap.Autoplay = state["autoplay"] == "1" || state["autoplay"] == "true"
	snap.Paused = state["paused"] == "1" || state["paused"] == "true"
	snap.Playing = state["playing"] == "1" || state["playing"] == "true"
	snap.BeginTime, _ = strconv.ParseFloat(state["beginTime"], 64)
	if id, err := snowflake.Parse(state["voiceChannelID"]); err == nil {
		snap.VoiceChannelID = id
	}
	if id, err := snowflake.Parse(state["textChannelID"]); err == nil {
		snap.TextChannelID = id
	}
	if ts, err := time.Parse(time.RFC3339Nano, state["createdAt"]); err == nil {
		snap.CreatedAt = ts
	}
	if raw := state["filters"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &snap.Filters); err != nil {
			logger.Warn("队列滤镜反序列化失败",
				logger.String("guildID", gid),
				logger.ErrorField(err))
		}
	}

	snap.Songs, err = c.loadSongs(ctx, fmt.Sprintf(keyQueueSongs, gid))
	if err != nil {
		return nil, err
	}
	snap.PreviousSongs, err = c.loadSongs(ctx, fmt.Sprintf(keyQueuePrev, gid))
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (c *QueueCache) loadSongs(ctx context.Context, key string) ([]*model.Song, error) {
	members, err := c.client.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load songs %s: %w", key, err)
	}
	songs := make([]*model.Song, 0, len(members))
	for _, m := range members {
		var s model.Song
		if err := json.Unmarshal([]byte(m), &s); err != nil {
			logger.Warn("歌曲快照损坏，跳过", logger.ErrorField(err))
			continue
		}
		songs = append(songs, &s)
	}
	return songs, nil
}

// DeleteQueue drops all three mirror keys.
func (c *QueueCache) DeleteQueue(ctx context.Context, guildID snowflake.ID) error {
	if c.client == nil {
		return nil
	}
	gid := guildID.String()
	return c.client.Del(ctx,
		fmt.Sprintf(keyQueueSongs, gid),
		fmt.Sprintf(keyQueuePrev, gid),
		fmt.Sprintf(keyQueueState, gid),
	).Err()
}

// ListQueues scans for mirrored guilds.
func (c *QueueCache) ListQueues(ctx context.Context) ([]snowflake.ID, error) {
	if c.client == nil {
		return nil, nil
	}
	var ids []snowflake.ID
	iter := c.client.Scan(ctx, 0, "dj:queue:*:state", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw := strings.TrimSuffix(strings.TrimPrefix(key, "dj:queue:"), ":state")
		id, err := snowflake.Parse(raw)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan queues: %w", err)
	}
	return ids, nil
}
