package infra

import (
	"context"
	"sync"

	"github.com/johnnybonaci/susurro/transcriber/domain"
)

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes e desenvolvimento.
//
// Não persiste nada entre processos e não é indicada para produção.
type MemoryStatsStore struct {
	mu        sync.Mutex
	total     int64
	completed int64
	failed    int64
	speeds    []float64

	speedCap int
}

func NewMemoryStatsStore() *MemoryStatsStore {
	return &MemoryStatsStore{speedCap: 100}
}

func (s *MemoryStatsStore) RecordSubmitted(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	return nil
}

func (s *MemoryStatsStore) RecordFinished(_ context.Context, ok bool, speed float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !ok {
		s.failed++
		return nil
	}

	s.completed++
	if speed > 0 {
		s.speeds = append([]float64{speed}, s.speeds...)
		if len(s.speeds) > s.speedCap {
			s.speeds = s.speeds[:s.speedCap]
		}
	}
	return nil
}

func (s *MemoryStatsStore) Snapshot(_ context.Context) (*domain.StatsSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &domain.StatsSnapshot{
		TotalJobs:      s.total,
		CompletedToday: s.completed,
		FailedToday:    s.failed,
	}
	if len(s.speeds) > 0 {
		var sum float64
		for _, v := range s.speeds {
			sum += v
		}
		snap.AverageSpeed = sum / float64(len(s.speeds))
	}
	return snap, nil
}

func (s *MemoryStatsStore) ResetDaily(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = 0
	s.failed = 0
	return nil
}
