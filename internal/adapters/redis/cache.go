package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func seatsKey(showID uuid.UUID) string {
	return "seats:" + showID.String()
}

// SeatCache keeps a short-lived copy of the unavailable-seat set per show.
// Clients poll availability far more often than they book, and they accept
// eventual consistency; the TTL bounds staleness and every committed write
// for a show deletes its entry.
type SeatCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSeatCache(client *redis.Client, ttl time.Duration) *SeatCache {
	return &SeatCache{client: client, ttl: ttl}
}

func (c *SeatCache) Client() *redis.Client {
	return c.client
}

func (c *SeatCache) GetUnavailable(ctx context.Context, showID uuid.UUID) ([]int, bool, error) {
	val, err := c.client.Get(ctx, seatsKey(showID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var seats []int
	if err := json.Unmarshal(val, &seats); err != nil {
		return nil, false, err
	}
	return seats, true, nil
}

func (c *SeatCache) SetUnavailable(ctx context.Context, showID uuid.UUID, seats []int) error {
	data, err := json.Marshal(seats)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, seatsKey(showID), data, c.ttl).Err()
}

func (c *SeatCache) Invalidate(ctx context.Context, showID uuid.UUID) error {
	return c.client.Del(ctx, seatsKey(showID)).Err()
}
