package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"tableside/internal/config"
	"tableside/internal/models"

	"github.com/redis/go-redis/v9"
)

// claimTableScript creates the claim hash only if the table has none.
var claimTableScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'passcode', ARGV[1], 'session_id', ARGV[2], 'expires_at', ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return 1
`)

// extendClaimScript moves the claim expiry forward if it still carries the same passcode.
var extendClaimScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'passcode') ~= ARGV[1] then
  return 0
end
redis.call('HSET', KEYS[1], 'session_id', ARGV[2], 'expires_at', ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return 1
`)

type RedisSessionRepository struct {
	client *redis.Client
}

// NewRedisClient builds a Redis client from configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisSessionRepository(client *redis.Client) *RedisSessionRepository {
	return &RedisSessionRepository{client: client}
}

func sessionKey(id string) string { return "guest_session:" + id }
func claimKey(tableID int64) string { return fmt.Sprintf("table_claim:%d", tableID) }
func rateLimitKey(key string) string { return "rate_limit:" + key }
func ttlUntil(t time.Time) time.Duration { return time.Until(t) }

func (r *RedisSessionRepository) SaveSession(ctx context.Context, session *models.GuestSession) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	ttl := ttlUntil(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session %s already expired", session.ID)
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := r.client.Set(ctx, sessionKey(session.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session in redis: %w", err)
	}
	return nil
}

func (r *RedisSessionRepository) GetSession(ctx context.Context, id string) (*models.GuestSession, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, sessionKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session from redis: %w", err)
	}

	var session models.GuestSession
	if err := json.Unmarshal([]byte(val), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if session.Expired(time.Now()) {
		return nil, nil
	}
	return &session, nil
}

func (r *RedisSessionRepository) ClaimTable(ctx context.Context, claim *models.TableClaim) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	ttl := ttlUntil(claim.ExpiresAt)
	if ttl <= 0 {
		return false, fmt.Errorf("claim for table %d already expired", claim.TableID)
	}

	res, err := claimTableScript.Run(ctx, r.client, []string{claimKey(claim.TableID)},
		claim.Passcode, claim.SessionID, claim.ExpiresAt.UnixMilli(), ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to claim table in redis: %w", err)
	}
	return res == 1, nil
}

func (r *RedisSessionRepository) GetTableClaim(ctx context.Context, tableID int64) (*models.TableClaim, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	fields, err := r.client.HGetAll(ctx, claimKey(tableID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get table claim from redis: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	expiresMs, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt claim expiry for table %d: %w", tableID, err)
	}
	claim := &models.TableClaim{
		TableID:   tableID,
		Passcode:  fields["passcode"],
		SessionID: fields["session_id"],
		ExpiresAt: time.UnixMilli(expiresMs),
	}
	if claim.Expired(time.Now()) {
		return nil, nil
	}
	return claim, nil
}

func (r *RedisSessionRepository) ExtendTableClaim(ctx context.Context, claim *models.TableClaim) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	ttl := ttlUntil(claim.ExpiresAt)
	if ttl <= 0 {
		return false, nil
	}

	res, err := extendClaimScript.Run(ctx, r.client, []string{claimKey(claim.TableID)},
		claim.Passcode, claim.SessionID, claim.ExpiresAt.UnixMilli(), ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to extend table claim in redis: %w", err)
	}
	return res == 1, nil
}

func (r *RedisSessionRepository) ReleaseTable(ctx context.Context, tableID int64) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, claimKey(tableID)).Err(); err != nil {
		return fmt.Errorf("failed to release table claim in redis: %w", err)
	}
	return nil
}

func (r *RedisSessionRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	k := rateLimitKey(key)
	count, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		if err := r.client.PExpire(ctx, k, window).Err(); err != nil {
			return false, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}

	return count <= int64(limit), nil
}

// Ping checks the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}
