package infra

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SubmitLimiter é um token-bucket por cliente (x/time/rate) para conter
// rajadas de submissão antes de qualquer mutação de estado,
// com cache por chave e limpeza periódica de entradas ociosas.
type SubmitLimiter struct {
	mu           sync.Mutex
	entries      map[string]*limiterEntry
	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type SubmitLimiterOption func(*SubmitLimiter)

func WithIdleTTL(d time.Duration) SubmitLimiterOption {
	return func(s *SubmitLimiter) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) SubmitLimiterOption {
	return func(s *SubmitLimiter) { s.cleanupEvery = d }
}

func NewSubmitLimiter(rps float64, burst int, opts ...SubmitLimiterOption) *SubmitLimiter {
	s := &SubmitLimiter{
		entries:      make(map[string]*limiterEntry),
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Allow decide se o cliente `key` pode submeter agora.
func (s *SubmitLimiter) Allow(key string) bool {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim.Allow()
	}

	lim := rate.NewLimiter(s.rps, s.burst)
	s.entries[key] = &limiterEntry{lim: lim, lastSeen: now}
	return lim.Allow()
}

func (s *SubmitLimiter) Cleanup() {
	cutoff := time.Now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (s *SubmitLimiter) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}
