package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/johnnybonaci/susurro/transcriber/engine"
	"github.com/johnnybonaci/susurro/transcriber/infra"
)

// fakeEngine é um motor determinístico para os testes de orquestração.
// Com block != nil a transcrição só termina quando o canal for fechado.
type fakeEngine struct {
	text     string
	duration float64
	err      error

	block   chan struct{}
	started chan struct{}
}

func (f *fakeEngine) Transcribe(_ context.Context, req engine.Request) (*engine.Result, error) {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	return &engine.Result{
		Text:     f.text + " " + req.AudioPath,
		Duration: f.duration,
		Language: "es",
	}, nil
}

func (f *fakeEngine) Close() error { return nil }

// fakeCleaner registra quais artefatos foram removidos.
type fakeCleaner struct {
	mu      sync.Mutex
	removed []string
}

func (f *fakeCleaner) Remove(jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, jobID)
	return nil
}

func (f *fakeCleaner) has(jobID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.removed {
		if id == jobID {
			return true
		}
	}
	return false
}

// testEnv sobe um miniredis e compõe o orquestrador na variante de lock
// binário (um dono por vez), com um pool de um único motor.
type testEnv struct {
	mr    *miniredis.Miniredis
	rdb   *redis.Client
	keys  infra.Keys
	lock  *infra.OwnerLock
	queue *infra.FIFOQueue
	orc   *Orchestrator
	clean *fakeCleaner
}

func newTestEnv(t *testing.T, eng engine.Engine) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	keys := infra.NewKeys("susurro")
	lock := infra.NewOwnerLock(rdb, keys)
	queue := infra.NewFIFOQueue(rdb, keys)
	clean := &fakeCleaner{}

	pool, err := engine.NewFixedPool(context.Background(),
		1, func(context.Context) (engine.Engine, error) { return eng, nil })
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}

	orc := &Orchestrator{
		Store:       infra.NewJobStore(rdb, keys),
		Queue:       queue,
		Gate:        lock,
		Busy:        lock,
		History:     queue,
		Stats:       infra.NewRedisStatsStore(rdb, keys),
		Engines:     pool,
		Artifacts:   clean,
		Ping:        infra.NewRedisPinger(rdb),
		Log:         zerolog.Nop(),
		MaxFileSize: 100 << 20,
		AllowedExts: []string{".mp3", ".wav", ".ogg"},
	}
	if err := orc.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	return &testEnv{mr: mr, rdb: rdb, keys: keys, lock: lock, queue: queue, orc: orc, clean: clean}
}

func (e *testEnv) submit(t *testing.T, filename string, size int64) *SubmitResponse {
	t.Helper()
	resp, err := e.orc.Submit(context.Background(), SubmitRequest{
		Filename: filename,
		FileSize: size,
		Path:     "/scratch/" + filename,
	})
	if err != nil {
		t.Fatalf("submit %s: %v", filename, err)
	}
	return resp
}

func (e *testEnv) dequeue(t *testing.T) string {
	t.Helper()
	id, ok, err := e.queue.DequeueBlocking(context.Background(), time.Second)
	if err != nil || !ok {
		t.Fatalf("dequeue: ok=%v err=%v", ok, err)
	}
	return id
}
