package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/johnnybonaci/susurro/transcriber/domain"
)

// JobStore guarda cada trabalho como uma chave própria (JSON + TTL).
//
// Ausência de chave (nunca escrita ou expirada) é resultado normal de consulta.
type JobStore struct {
	rdb  *redis.Client
	keys Keys
	ttl  time.Duration
}

type JobStoreOption func(*JobStore)

// WithJobTTL define o TTL dos registros. d <= 0 desliga a expiração.
func WithJobTTL(d time.Duration) JobStoreOption {
	return func(s *JobStore) { s.ttl = d }
}

func NewJobStore(rdb *redis.Client, keys Keys, opts ...JobStoreOption) *JobStore {
	s := &JobStore{
		rdb:  rdb,
		keys: keys,
		ttl:  24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put sobrescreve o registro inteiro de forma atômica, renovando o TTL.
func (s *JobStore) Put(ctx context.Context, job *domain.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	if err := s.rdb.Set(ctx, s.keys.Job(job.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("put job %s: %w", job.ID, err)
	}
	return nil
}

func (s *JobStore) Get(ctx context.Context, id string) (*domain.Job, bool, error) {
	data, err := s.rdb.Get(ctx, s.keys.Job(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get job %s: %w", id, err)
	}

	var job domain.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, false, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, true, nil
}

// Update aplica mutate em read-modify-write, last-writer-wins, preservando o
// TTL restante da chave. Chamadores serializam updates de um mesmo trabalho
// através do gate; updates concorrentes ao mesmo registro não são seguros.
//
// Regressão de status terminal é rejeitada: completed/failed nunca voltam
// a pending/processing.
func (s *JobStore) Update(ctx context.Context, id string, mutate func(*domain.Job)) (bool, error) {
	job, ok, err := s.Get(ctx, id)
	if err != nil || !ok {
		return false, err
	}

	before := job.Status
	mutate(job)
	if !domain.CanTransition(before, job.Status) {
		return false, fmt.Errorf("job %s: %s -> %s: %w", id, before, job.Status, domain.ErrInvalidTransition)
	}

	data, err := json.Marshal(job)
	if err != nil {
		return false, fmt.Errorf("marshal job %s: %w", id, err)
	}
	if err := s.rdb.Set(ctx, s.keys.Job(id), data, redis.KeepTTL).Err(); err != nil {
		return false, fmt.Errorf("update job %s: %w", id, err)
	}
	return true, nil
}

// Delete é idempotente: apagar um id já ausente devolve (false, nil).
func (s *JobStore) Delete(ctx context.Context, id string) (bool, error) {
	n, err := s.rdb.Del(ctx, s.keys.Job(id)).Result()
	if err != nil {
		return false, fmt.Errorf("delete job %s: %w", id, err)
	}
	return n > 0, nil
}
