package infra

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/johnnybonaci/susurro/transcriber/domain"
)

// RedisStatsStore acumula contadores em um hash e amostras de velocidade em
// uma lista limitada (LTRIM) para a média móvel.
//
// Contadores são cumulativos e não expiram; o reset diário é explícito.
type RedisStatsStore struct {
	rdb  *redis.Client
	keys Keys

	speedCap int64
}

type RedisStatsOption func(*RedisStatsStore)

// WithSpeedCap limita quantas amostras recentes de velocidade são mantidas.
func WithSpeedCap(n int64) RedisStatsOption {
	return func(s *RedisStatsStore) {
		if n > 0 {
			s.speedCap = n
		}
	}
}

func NewRedisStatsStore(rdb *redis.Client, keys Keys, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:      rdb,
		keys:     keys,
		speedCap: 100,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) RecordSubmitted(ctx context.Context) error {
	if err := s.rdb.HIncrBy(ctx, s.keys.Stats(), "total_jobs", 1).Err(); err != nil {
		return fmt.Errorf("stats submitted: %w", err)
	}
	return nil
}

func (s *RedisStatsStore) RecordFinished(ctx context.Context, ok bool, speed float64) error {
	pipe := s.rdb.Pipeline()
	if ok {
		pipe.HIncrBy(ctx, s.keys.Stats(), "completed_today", 1)
		if speed > 0 {
			pipe.LPush(ctx, s.keys.Speeds(), strconv.FormatFloat(speed, 'f', -1, 64))
			pipe.LTrim(ctx, s.keys.Speeds(), 0, s.speedCap-1)
		}
	} else {
		pipe.HIncrBy(ctx, s.keys.Stats(), "failed_today", 1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("stats finished: %w", err)
	}
	return nil
}

func (s *RedisStatsStore) Snapshot(ctx context.Context) (*domain.StatsSnapshot, error) {
	fields, err := s.rdb.HGetAll(ctx, s.keys.Stats()).Result()
	if err != nil {
		return nil, fmt.Errorf("stats snapshot: %w", err)
	}

	snap := &domain.StatsSnapshot{
		TotalJobs:      parseCounter(fields["total_jobs"]),
		CompletedToday: parseCounter(fields["completed_today"]),
		FailedToday:    parseCounter(fields["failed_today"]),
	}

	speeds, err := s.rdb.LRange(ctx, s.keys.Speeds(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("stats speeds: %w", err)
	}
	if len(speeds) > 0 {
		var sum float64
		var n int
		for _, raw := range speeds {
			if v, err := strconv.ParseFloat(raw, 64); err == nil {
				sum += v
				n++
			}
		}
		if n > 0 {
			snap.AverageSpeed = sum / float64(n)
		}
	}
	return snap, nil
}

// ResetDaily zera os contadores do dia (para agendamento externo).
func (s *RedisStatsStore) ResetDaily(ctx context.Context) error {
	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, s.keys.Stats(), "completed_today", 0)
	pipe.HSet(ctx, s.keys.Stats(), "failed_today", 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("stats reset: %w", err)
	}
	return nil
}

func parseCounter(raw string) int64 {
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
