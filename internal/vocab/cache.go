package vocab

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rickshauling/ticketdrop/internal/ticket"
)

const DefaultKey = "ticketdrop:vocabulary"

type Source interface {
	Vocabulary(ctx context.Context) (ticket.Vocabulary, error)
}

// Cache keeps the vocabulary in Redis for TTL. Redis trouble of any kind
// falls through to Source; a nil Client disables caching.
type Cache struct {
	Client redis.Cmdable
	Source Source
	TTL    time.Duration
	Key    string
	Log    *slog.Logger
}

func (c *Cache) key() string {
	if c.Key != "" {
		return c.Key
	}
	return DefaultKey
}

func (c *Cache) Vocabulary(ctx context.Context) (ticket.Vocabulary, error) {
	if c.Client == nil {
		return c.Source.Vocabulary(ctx)
	}

	raw, err := c.Client.Get(ctx, c.key()).Bytes()
	switch {
	case err == nil:
		var v ticket.Vocabulary
		jerr := json.Unmarshal(raw, &v)
		if jerr == nil {
			return v, nil
		}
		c.warn("vocab_cache_corrupt", jerr)
	case errors.Is(err, redis.Nil):
	default:
		c.warn("vocab_cache_get_failed", err)
	}

	v, err := c.Source.Vocabulary(ctx)
	if err != nil {
		return ticket.Vocabulary{}, err
	}

	if raw, err := json.Marshal(v); err == nil {
		if err := c.Client.Set(ctx, c.key(), raw, c.TTL).Err(); err != nil {
			c.warn("vocab_cache_set_failed", err)
		}
	}
	return v, nil
}

// Invalidate drops the cached copy after the lists change.
func (c *Cache) Invalidate(ctx context.Context) error {
	if c.Client == nil {
		return nil
	}
	return c.Client.Del(ctx, c.key()).Err()
}

func (c *Cache) warn(event string, err error) {
	if c.Log == nil {
		return
	}
	c.Log.Warn(event, slog.String("key", c.key()), slog.String("err", err.Error()))
}
