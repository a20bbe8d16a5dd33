package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cx-tal-miterani/train-booking-system/internal/apperr"
	"github.com/cx-tal-miterani/train-booking-system/shared/models"
)

// holdScript checks every seat before taking any of them.
//
// KEYS[1] = order seat set, KEYS[2] = schedule hold index, KEYS[3..N] = seat hold keys
// ARGV[1] = order id, ARGV[2] = ttl in ms, ARGV[3..N] = seat labels
var holdScript = redis.NewScript(`
local order_id = ARGV[1]
local ttl = tonumber(ARGV[2])

local result = {0}
for i = 3, #KEYS do
    local holder = redis.call("GET", KEYS[i])
    if holder and holder ~= order_id then
        table.insert(result, ARGV[i])
    end
end
if #result > 1 then
    return result
end

for i = 3, #KEYS do
    redis.call("SET", KEYS[i], order_id, "PX", ttl)
    redis.call("SADD", KEYS[1], ARGV[i])
    redis.call("SADD", KEYS[2], ARGV[i])
end
redis.call("PEXPIRE", KEYS[1], ttl)
return {1}
`)

// releaseScript drops only the seats still held by the order.
//
// KEYS[1] = order seat set, KEYS[2] = schedule hold index
// ARGV[1] = order id, ARGV[2] = seat hold key prefix
var releaseScript = redis.NewScript(`
local seats = redis.call("SMEMBERS", KEYS[1])
local released = 0
for _, seat in ipairs(seats) do
    local key = ARGV[2] .. seat
    if redis.call("GET", key) == ARGV[1] then
        redis.call("DEL", key)
        redis.call("SREM", KEYS[2], seat)
        released = released + 1
    end
end
redis.call("DEL", KEYS[1])
return released
`)

// RedisHolder keeps holds in Redis so every server and worker sees them.
type RedisHolder struct {
	client *redis.Client
	prefix string
}

func NewRedisHolder(client *redis.Client, prefix string) *RedisHolder {
	if prefix == "" {
		prefix = "trainbooking"
	}
	return &RedisHolder{client: client, prefix: prefix}
}

func (r *RedisHolder) seatPrefix(scheduleID string) string {
	return fmt.Sprintf("%s:seat_hold:%s:", r.prefix, scheduleID)
}

func (r *RedisHolder) orderKey(scheduleID, orderID string) string {
	return fmt.Sprintf("%s:order_seats:%s:%s", r.prefix, scheduleID, orderID)
}

func (r *RedisHolder) indexKey(scheduleID string) string {
	return fmt.Sprintf("%s:schedule_holds:%s", r.prefix, scheduleID)
}

// Preload loads the scripts so the first hold does not pay for it.
func (r *RedisHolder) Preload(ctx context.Context) error {
	if err := holdScript.Load(ctx, r.client).Err(); err != nil {
		return fmt.Errorf("failed to load seat hold script: %w", err)
	}
	if err := releaseScript.Load(ctx, r.client).Err(); err != nil {
		return fmt.Errorf("failed to load seat release script: %w", err)
	}
	return nil
}

func (r *RedisHolder) Hold(ctx context.Context, scheduleID, orderID string, seats []models.SeatLabel, ttl time.Duration) (time.Time, error) {
	if len(seats) == 0 {
		return time.Now().Add(ttl), nil
	}

	keys := []string{r.orderKey(scheduleID, orderID), r.indexKey(scheduleID)}
	args := []interface{}{orderID, ttl.Milliseconds()}
	for _, seat := range seats {
		keys = append(keys, r.seatPrefix(scheduleID)+seat.String())
		args = append(args, seat.String())
	}

	expiry := time.Now().Add(ttl)
	res, err := holdScript.Run(ctx, r.client, keys, args...).Slice()
	if err != nil {
		return time.Time{}, apperr.TransportError{Op: "hold seats", Err: err}
	}
	if len(res) == 0 {
		return time.Time{}, fmt.Errorf("unexpected result format from seat hold script")
	}
	ok, _ := res[0].(int64)
	if ok == 1 {
		return expiry, nil
	}

	conflicts := make([]models.SeatLabel, 0, len(res)-1)
	for _, v := range res[1:] {
		s, _ := v.(string)
		label, err := models.ParseSeatLabel(s)
		if err != nil {
			continue
		}
		conflicts = append(conflicts, label)
	}
	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].String() < conflicts[j].String() })
	return time.Time{}, apperr.ConflictError{Resource: "seats", Seats: conflicts, Msg: "are held by another order"}
}

func (r *RedisHolder) Release(ctx context.Context, scheduleID, orderID string) error {
	keys := []string{r.orderKey(scheduleID, orderID), r.indexKey(scheduleID)}
	if err := releaseScript.Run(ctx, r.client, keys, orderID, r.seatPrefix(scheduleID)).Err(); err != nil {
		return apperr.TransportError{Op: "release seats", Err: err}
	}
	return nil
}

func (r *RedisHolder) Held(ctx context.Context, scheduleID string) (map[models.SeatLabel]string, error) {
	labels, err := r.client.SMembers(ctx, r.indexKey(scheduleID)).Result()
	if err != nil {
		return nil, apperr.TransportError{Op: "list held seats", Err: err}
	}
	out := make(map[models.SeatLabel]string, len(labels))
	if len(labels) == 0 {
		return out, nil
	}

	keys := make([]string, len(labels))
	for i, l := range labels {
		keys[i] = r.seatPrefix(scheduleID) + l
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, apperr.TransportError{Op: "list held seats", Err: err}
	}

	var expired []interface{}
	for i, v := range values {
		order, ok := v.(string)
		if !ok {
			expired = append(expired, labels[i])
			continue
		}
		label, err := models.ParseSeatLabel(labels[i])
		if err != nil {
			continue
		}
		out[label] = order
	}
	if len(expired) > 0 {
		if err := r.client.SRem(ctx, r.indexKey(scheduleID), expired...).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return nil, apperr.TransportError{Op: "prune held seats", Err: err}
		}
	}
	return out, nil
}
