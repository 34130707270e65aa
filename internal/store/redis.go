// Package store provides the shared, redis-backed implementations of
// the engine's state stores for multi-instance deployments. The
// in-process implementations live in internal/dataType. Store errors
// fail open: a degraded shared store must never take the booking flow
// down with it.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/visa2any/fareguard/internal/dataType"
	"github.com/visa2any/fareguard/internal/engine"
	"github.com/visa2any/fareguard/internal/token"
)

const (
	rateKey      = "fg:rw:%s:%s"
	suspicionKey = "fg:susp:%s"
	blockKey     = "fg:block:%s"
	challengeKey = "fg:chal:%s"
	cacheKey     = "fg:cache:%s"

	suspicionScanPattern = "fg:susp:*"
	blockScanPattern     = "fg:block:*"
	challengeScanPattern = "fg:chal:*"
	cacheScanPattern     = "fg:cache:*"
)

var (
	_ engine.RateWindowStore  = (*RedisRateWindows)(nil)
	_ engine.SuspicionStore   = (*RedisSuspicionLedger)(nil)
	_ engine.BlocklistStore   = (*RedisBlockList)(nil)
	_ engine.ResultCacheStore = (*RedisResultCache)(nil)
	_ token.ChallengeStore    = (*RedisChallengeStore)(nil)
)

// RedisRateWindows keeps sliding windows as sorted sets scored by
// request time, one set per (client, class).
type RedisRateWindows struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisRateWindows(client *redis.Client, logger *zap.Logger) *RedisRateWindows {
	return &RedisRateWindows{client: client, logger: logger}
}

func (r *RedisRateWindows) Observe(client string, class dataType.RequestClass, now time.Time, window time.Duration) int64 {
	ctx := context.Background()
	key := fmt.Sprintf(rateKey, client, class)
	cutoff := now.Add(-window).UnixNano()

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(cutoff, 10))
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: fmt.Sprintf("%d:%s", now.UnixNano(), uuid.NewString()),
	})
	card := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("rate window observe failed", zap.String("key", key), zap.Error(err))
		return 0
	}
	return card.Val()
}

func (r *RedisRateWindows) Count(client string, class dataType.RequestClass, now time.Time, window time.Duration) int64 {
	ctx := context.Background()
	key := fmt.Sprintf(rateKey, client, class)
	cutoff := now.Add(-window).UnixNano()

	count, err := r.client.ZCount(ctx, key, "("+strconv.FormatInt(cutoff, 10), "+inf").Result()
	if err != nil {
		r.logger.Error("rate window count failed", zap.String("key", key), zap.Error(err))
		return 0
	}
	return count
}

func (r *RedisRateWindows) Reset(client string) {
	ctx := context.Background()
	for _, class := range []dataType.RequestClass{dataType.ClassSearch, dataType.ClassAPI, dataType.ClassPage} {
		if err := r.client.Del(ctx, fmt.Sprintf(rateKey, client, class)).Err(); err != nil {
			r.logger.Error("rate window reset failed", zap.String("client", client), zap.Error(err))
		}
	}
}

// RedisSuspicionLedger clamps with a follow-up write; the brief race
// between increment and clamp only ever overshoots inside one event.
type RedisSuspicionLedger struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisSuspicionLedger(client *redis.Client, logger *zap.Logger) *RedisSuspicionLedger {
	return &RedisSuspicionLedger{client: client, logger: logger}
}

func (r *RedisSuspicionLedger) Increment(client string, amount int) int {
	ctx := context.Background()
	key := fmt.Sprintf(suspicionKey, client)
	score, err := r.client.IncrBy(ctx, key, int64(amount)).Result()
	if err != nil {
		r.logger.Error("suspicion increment failed", zap.String("client", client), zap.Error(err))
		return 0
	}
	if score > 100 {
		score = 100
		r.client.Set(ctx, key, score, 0)
	}
	if score < 0 {
		score = 0
		r.client.Set(ctx, key, score, 0)
	}
	return int(score)
}

func (r *RedisSuspicionLedger) Decrement(client string, amount int) int {
	return r.Increment(client, -amount)
}

func (r *RedisSuspicionLedger) Get(client string) int {
	ctx := context.Background()
	score, err := r.client.Get(ctx, fmt.Sprintf(suspicionKey, client)).Int()
	if err != nil {
		if err != redis.Nil {
			r.logger.Error("suspicion get failed", zap.String("client", client), zap.Error(err))
		}
		return 0
	}
	return score
}

func (r *RedisSuspicionLedger) Remove(client string) {
	ctx := context.Background()
	if err := r.client.Del(ctx, fmt.Sprintf(suspicionKey, client)).Err(); err != nil {
		r.logger.Error("suspicion remove failed", zap.String("client", client), zap.Error(err))
	}
}

func (r *RedisSuspicionLedger) Count() int {
	ctx := context.Background()
	count := 0
	iter := r.client.Scan(ctx, 0, suspicionScanPattern, 512).Iterator()
	for iter.Next(ctx) {
		if score, err := r.client.Get(ctx, iter.Val()).Int(); err == nil && score > 0 {
			count++
		}
	}
	if err := iter.Err(); err != nil {
		r.logger.Error("suspicion scan failed", zap.Error(err))
	}
	return count
}

// RedisBlockList stores one hash per blocked client.
type RedisBlockList struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisBlockList(client *redis.Client, logger *zap.Logger) *RedisBlockList {
	return &RedisBlockList{client: client, logger: logger}
}

func (r *RedisBlockList) Block(client, reason string, now time.Time) {
	ctx := context.Background()
	key := fmt.Sprintf(blockKey, client)
	ok, err := r.client.HSetNX(ctx, key, "reason", reason).Result()
	if err != nil {
		r.logger.Error("block failed", zap.String("client", client), zap.Error(err))
		return
	}
	if ok {
		if err := r.client.HSet(ctx, key, "blocked_at", now.Unix()).Err(); err != nil {
			r.logger.Error("block failed", zap.String("client", client), zap.Error(err))
		}
	}
}

func (r *RedisBlockList) Unblock(client string) bool {
	ctx := context.Background()
	removed, err := r.client.Del(ctx, fmt.Sprintf(blockKey, client)).Result()
	if err != nil {
		r.logger.Error("unblock failed", zap.String("client", client), zap.Error(err))
		return false
	}
	return removed > 0
}

func (r *RedisBlockList) Get(client string) (dataType.BlockEntry, bool) {
	ctx := context.Background()
	fields, err := r.client.HGetAll(ctx, fmt.Sprintf(blockKey, client)).Result()
	if err != nil {
		r.logger.Error("blocklist get failed", zap.String("client", client), zap.Error(err))
		return dataType.BlockEntry{}, false
	}
	if len(fields) == 0 {
		return dataType.BlockEntry{}, false
	}
	at, _ := strconv.ParseInt(fields["blocked_at"], 10, 64)
	return dataType.BlockEntry{Reason: fields["reason"], BlockedAt: time.Unix(at, 0)}, true
}

func (r *RedisBlockList) Count() int {
	return len(r.GetSnapshot())
}

func (r *RedisBlockList) GetSnapshot() map[string]dataType.BlockEntry {
	ctx := context.Background()
	snapshot := make(map[string]dataType.BlockEntry)
	iter := r.client.Scan(ctx, 0, blockScanPattern, 512).Iterator()
	prefix := fmt.Sprintf(blockKey, "")
	for iter.Next(ctx) {
		client := iter.Val()[len(prefix):]
		if entry, ok := r.Get(client); ok {
			snapshot[client] = entry
		}
	}
	if err := iter.Err(); err != nil {
		r.logger.Error("blocklist scan failed", zap.Error(err))
	}
	return snapshot
}

// RedisChallengeStore relies on key TTLs for expiry, so unverified
// records clean themselves up.
type RedisChallengeStore struct {
	client *redis.Client
	logger *zap.Logger
	clock  dataType.Clock
}

func NewRedisChallengeStore(client *redis.Client, logger *zap.Logger, clock dataType.Clock) *RedisChallengeStore {
	return &RedisChallengeStore{client: client, logger: logger, clock: clock}
}

func (r *RedisChallengeStore) Put(client string, rec dataType.ChallengeRecord) {
	ctx := context.Background()
	data, err := json.Marshal(rec)
	if err != nil {
		r.logger.Error("challenge marshal failed", zap.String("client", client), zap.Error(err))
		return
	}
	ttl := rec.Expires.Sub(r.clock())
	if ttl <= 0 {
		return
	}
	if err := r.client.Set(ctx, fmt.Sprintf(challengeKey, client), data, ttl).Err(); err != nil {
		r.logger.Error("challenge put failed", zap.String("client", client), zap.Error(err))
	}
}

func (r *RedisChallengeStore) Get(client string) (dataType.ChallengeRecord, bool) {
	ctx := context.Background()
	data, err := r.client.Get(ctx, fmt.Sprintf(challengeKey, client)).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.logger.Error("challenge get failed", zap.String("client", client), zap.Error(err))
		}
		return dataType.ChallengeRecord{}, false
	}
	var rec dataType.ChallengeRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		r.logger.Error("challenge unmarshal failed", zap.String("client", client), zap.Error(err))
		return dataType.ChallengeRecord{}, false
	}
	return rec, true
}

func (r *RedisChallengeStore) Delete(client string) {
	ctx := context.Background()
	if err := r.client.Del(ctx, fmt.Sprintf(challengeKey, client)).Err(); err != nil {
		r.logger.Error("challenge delete failed", zap.String("client", client), zap.Error(err))
	}
}

func (r *RedisChallengeStore) Count() int {
	ctx := context.Background()
	count := 0
	iter := r.client.Scan(ctx, 0, challengeScanPattern, 512).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		r.logger.Error("challenge scan failed", zap.Error(err))
	}
	return count
}

// RedisResultCache shares short-lived detection results between
// instances so one node's verdict short-circuits its peers.
type RedisResultCache struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

func NewRedisResultCache(client *redis.Client, logger *zap.Logger, ttl time.Duration) *RedisResultCache {
	return &RedisResultCache{client: client, logger: logger, ttl: ttl}
}

func (r *RedisResultCache) Get(hash string, _ time.Time) (dataType.BotDetectionResult, bool) {
	if r.ttl <= 0 {
		return dataType.BotDetectionResult{}, false
	}
	ctx := context.Background()
	data, err := r.client.Get(ctx, fmt.Sprintf(cacheKey, hash)).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.logger.Error("result cache get failed", zap.String("hash", hash), zap.Error(err))
		}
		return dataType.BotDetectionResult{}, false
	}
	var result dataType.BotDetectionResult
	if err := json.Unmarshal(data, &result); err != nil {
		r.logger.Error("result cache unmarshal failed", zap.String("hash", hash), zap.Error(err))
		return dataType.BotDetectionResult{}, false
	}
	return result, true
}

func (r *RedisResultCache) Set(hash string, result dataType.BotDetectionResult, _ time.Time) {
	if r.ttl <= 0 {
		return
	}
	ctx := context.Background()
	data, err := json.Marshal(result)
	if err != nil {
		r.logger.Error("result cache marshal failed", zap.String("hash", hash), zap.Error(err))
		return
	}
	if err := r.client.Set(ctx, fmt.Sprintf(cacheKey, hash), data, r.ttl).Err(); err != nil {
		r.logger.Error("result cache set failed", zap.String("hash", hash), zap.Error(err))
	}
}

func (r *RedisResultCache) Purge() {
	ctx := context.Background()
	iter := r.client.Scan(ctx, 0, cacheScanPattern, 512).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			r.logger.Error("result cache purge failed", zap.Error(err))
		}
	}
	if err := iter.Err(); err != nil {
		r.logger.Error("result cache scan failed", zap.Error(err))
	}
}
