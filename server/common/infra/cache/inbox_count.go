package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// genTTL bounds how long an idle user's generation counter lingers.
const genTTL = 24 * time.Hour

// setIfCurrent writes the count only while the generation still matches the
// one the reader saw before it queried the database.
var setIfCurrent = redis.NewScript(`
if (redis.call('GET', KEYS[2]) or '0') ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// InboxCounts caches per-recipient pending share counts. Every invalidation
// bumps a generation counter so a read that raced a send cannot repopulate
// the cache with the old count.
type InboxCounts struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewInboxCounts(rdb redis.Cmdable, ttl time.Duration) *InboxCounts {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &InboxCounts{rdb: rdb, ttl: ttl}
}

func InboxCountKey(userID int64) string {
	return "inbox:count:" + strconv.FormatInt(userID, 10)
}

func inboxGenKey(userID int64) string {
	return "inbox:count:gen:" + strconv.FormatInt(userID, 10)
}

// Get reports ok=false on a cache miss. gen is handed back to Set.
func (c *InboxCounts) Get(ctx context.Context, userID int64) (count int64, ok bool, gen int64, err error) {
	vals, err := c.rdb.MGet(ctx, InboxCountKey(userID), inboxGenKey(userID)).Result()
	if err != nil {
		return 0, false, 0, err
	}
	if gen, err = parseInt(vals[1]); err != nil {
		return 0, false, 0, fmt.Errorf("inbox count generation: %w", err)
	}
	if vals[0] == nil {
		return 0, false, gen, nil
	}
	if count, err = parseInt(vals[0]); err != nil {
		return 0, false, gen, fmt.Errorf("inbox count: %w", err)
	}
	return count, true, gen, nil
}

// Set stores count unless the user was invalidated after gen was read.
func (c *InboxCounts) Set(ctx context.Context, userID, count, gen int64) error {
	keys := []string{InboxCountKey(userID), inboxGenKey(userID)}
	return setIfCurrent.Run(ctx, c.rdb, keys, gen, count, c.ttl.Milliseconds()).Err()
}

func (c *InboxCounts) Invalidate(ctx context.Context, userIDs ...int64) error {
	if len(userIDs) == 0 {
		return nil
	}
	pipe := c.rdb.TxPipeline()
	for _, id := range userIDs {
		pipe.Incr(ctx, inboxGenKey(id))
		pipe.Expire(ctx, inboxGenKey(id), genTTL)
		pipe.Del(ctx, InboxCountKey(id))
	}
	_, err := pipe.Exec(ctx)
	return err
}

func parseInt(v any) (int64, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case string:
		return strconv.ParseInt(t, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected redis value %T", v)
	}
}
