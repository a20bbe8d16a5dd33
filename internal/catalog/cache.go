package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cx-tal-miterani/train-booking-system/internal/logger"
	"github.com/cx-tal-miterani/train-booking-system/shared/models"
)

// CachedGateway keeps station lists and schedule searches in Redis. Seat
// data is never cached; it changes with every booking.
type CachedGateway struct {
	next   Gateway
	client *redis.Client
	ttl    time.Duration
	prefix string
	log    *logger.Logger
}

func NewCachedGateway(next Gateway, client *redis.Client, ttl time.Duration, prefix string, log *logger.Logger) *CachedGateway {
	if prefix == "" {
		prefix = "trainbooking"
	}
	return &CachedGateway{next: next, client: client, ttl: ttl, prefix: prefix, log: log}
}

func (c *CachedGateway) key(parts ...any) string {
	k := c.prefix + ":catalog"
	for _, p := range parts {
		k += fmt.Sprintf(":%v", p)
	}
	return k
}

// cached reads key into dst or fills it from load. Redis failures fall back
// to load; the catalog stays available without the cache.
func cached[T any](ctx context.Context, c *CachedGateway, key string, load func() (T, error)) (T, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var v T
		if jsonErr := json.Unmarshal(raw, &v); jsonErr == nil {
			return v, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.log.WithError(err).Warn("Catalog cache read failed", "key", key)
	}

	v, err := load()
	if err != nil {
		return v, err
	}
	if data, err := json.Marshal(v); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.log.WithError(err).Warn("Catalog cache write failed", "key", key)
		}
	}
	return v, nil
}

func (c *CachedGateway) ListStations(ctx context.Context) ([]models.Station, error) {
	return cached(ctx, c, c.key("stations"), func() ([]models.Station, error) {
		return c.next.ListStations(ctx)
	})
}

func (c *CachedGateway) FindSchedules(ctx context.Context, q Query) ([]models.Schedule, error) {
	return cached(ctx, c, c.key("schedules", q.Origin, q.Destination, q.Date), func() ([]models.Schedule, error) {
		return c.next.FindSchedules(ctx, q)
	})
}

func (c *CachedGateway) GetSchedule(ctx context.Context, id string) (models.Schedule, error) {
	return c.next.GetSchedule(ctx, id)
}

func (c *CachedGateway) ListTickets(ctx context.Context) ([]models.Ticket, error) {
	return cached(ctx, c, c.key("tickets"), func() ([]models.Ticket, error) {
		return c.next.ListTickets(ctx)
	})
}

func (c *CachedGateway) BookedSeats(ctx context.Context, scheduleID string) ([]models.SeatLabel, error) {
	return c.next.BookedSeats(ctx, scheduleID)
}

// Invalidate drops every cached catalog entry. Called after a booking is
// confirmed so seat counts in searches catch up.
func (c *CachedGateway) Invalidate(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.key("*"), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan catalog cache: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
