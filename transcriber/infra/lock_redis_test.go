package infra

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/johnnybonaci/susurro/transcriber/domain"
)

func TestOwnerLock_SingleOwnerAtATime(t *testing.T) {
	_, rdb := newTestRedis(t)
	lock := NewOwnerLock(rdb, NewKeys("t"))
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "a", domain.LockMeta{Filename: "a.mp3"})
	if err != nil || !ok {
		t.Fatalf("acquire a: ok=%v err=%v", ok, err)
	}

	ok, err = lock.Acquire(ctx, "b", domain.LockMeta{})
	if err != nil {
		t.Fatalf("acquire b: %v", err)
	}
	if ok {
		t.Fatalf("expected b to be denied while a holds the lock")
	}
}

func TestOwnerLock_ReleaseOnlyByOwner(t *testing.T) {
	_, rdb := newTestRedis(t)
	lock := NewOwnerLock(rdb, NewKeys("t"))
	ctx := context.Background()

	if ok, _ := lock.Acquire(ctx, "a", domain.LockMeta{}); !ok {
		t.Fatalf("acquire failed")
	}

	released, err := lock.Release(ctx, "b")
	if err != nil {
		t.Fatalf("release by non-owner: %v", err)
	}
	if released {
		t.Fatalf("expected non-owner release to be refused")
	}

	// o dono segue de pé.
	st, err := lock.Status(ctx)
	if err != nil || st == nil || st.JobID != "a" {
		t.Fatalf("expected a to still own the lock, got %+v err=%v", st, err)
	}

	released, err = lock.Release(ctx, "a")
	if err != nil || !released {
		t.Fatalf("owner release: released=%v err=%v", released, err)
	}

	// liberado: outro id consegue adquirir (sem deadlock permanente).
	if ok, _ := lock.Acquire(ctx, "b", domain.LockMeta{}); !ok {
		t.Fatalf("expected b to acquire after release")
	}
}

func TestOwnerLock_ForceRelease(t *testing.T) {
	_, rdb := newTestRedis(t)
	lock := NewOwnerLock(rdb, NewKeys("t"))
	ctx := context.Background()

	// gate livre: no-op.
	released, err := lock.ForceRelease(ctx)
	if err != nil {
		t.Fatalf("force release idle: %v", err)
	}
	if released {
		t.Fatalf("expected idle force release to be a no-op")
	}

	if ok, _ := lock.Acquire(ctx, "a", domain.LockMeta{}); !ok {
		t.Fatalf("acquire failed")
	}
	released, err = lock.ForceRelease(ctx)
	if err != nil || !released {
		t.Fatalf("force release held: released=%v err=%v", released, err)
	}

	if ok, _ := lock.Acquire(ctx, "b", domain.LockMeta{}); !ok {
		t.Fatalf("expected acquire by a different job after force release")
	}
}

func TestOwnerLock_TTLExpiryFreesTheLock(t *testing.T) {
	mr, rdb := newTestRedis(t)
	lock := NewOwnerLock(rdb, NewKeys("t"), WithLockTTL(time.Minute))
	ctx := context.Background()

	if ok, _ := lock.Acquire(ctx, "a", domain.LockMeta{}); !ok {
		t.Fatalf("acquire failed")
	}

	// caminho de recuperação de crash: ninguém deu release, o TTL expira.
	mr.FastForward(2 * time.Minute)

	st, err := lock.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st != nil {
		t.Fatalf("expected idle after TTL expiry, got %+v", st)
	}
	if ok, _ := lock.Acquire(ctx, "b", domain.LockMeta{}); !ok {
		t.Fatalf("expected acquire after TTL expiry")
	}
}

func TestOwnerLock_StatusCarriesElapsedAndEstimate(t *testing.T) {
	_, rdb := newTestRedis(t)
	lock := NewOwnerLock(rdb, NewKeys("t"))
	ctx := context.Background()

	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	lock.now = func() time.Time { return start }

	size := int64(10 * 1024 * 1024) // 10MB => total estimado 20s
	if ok, _ := lock.Acquire(ctx, "a", domain.LockMeta{Filename: "a.mp3", FileSize: size}); !ok {
		t.Fatalf("acquire failed")
	}

	lock.now = func() time.Time { return start.Add(12 * time.Second) }

	st, err := lock.Status(ctx)
	if err != nil || st == nil {
		t.Fatalf("status: %+v err=%v", st, err)
	}
	if st.JobID != "a" || st.Filename != "a.mp3" {
		t.Fatalf("unexpected status: %+v", st)
	}
	if st.Elapsed != 12*time.Second {
		t.Fatalf("expected elapsed 12s, got %s", st.Elapsed)
	}
	if st.EstimatedRemaining != 8*time.Second {
		t.Fatalf("expected estimate max(5, 20-12)=8s, got %s", st.EstimatedRemaining)
	}
}

func TestOwnerLock_StatusNilWhenIdle(t *testing.T) {
	_, rdb := newTestRedis(t)
	lock := NewOwnerLock(rdb, NewKeys("t"))

	st, err := lock.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st != nil {
		t.Fatalf("expected nil status when idle")
	}
}

func TestOwnerLock_TTLReporting(t *testing.T) {
	_, rdb := newTestRedis(t)
	lock := NewOwnerLock(rdb, NewKeys("t"), WithLockTTL(time.Hour))
	ctx := context.Background()

	if _, ok, err := lock.TTL(ctx); err != nil || ok {
		t.Fatalf("expected no ttl when idle: ok=%v err=%v", ok, err)
	}

	if ok, _ := lock.Acquire(ctx, "a", domain.LockMeta{}); !ok {
		t.Fatalf("acquire failed")
	}
	d, ok, err := lock.TTL(ctx)
	if err != nil || !ok {
		t.Fatalf("ttl: ok=%v err=%v", ok, err)
	}
	if d <= 0 || d > time.Hour {
		t.Fatalf("unexpected ttl %s", d)
	}
}

// failKeyHook derruba escritas SET de uma chave específica, simulando uma
// falha parcial do Redis entre o SET NX do lock e a gravação do status.
type failKeyHook struct{ key string }

func (h failKeyHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h failKeyHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if cmd.Name() == "set" && len(cmd.Args()) > 1 && cmd.Args()[1] == h.key {
			return errors.New("write refused")
		}
		return next(ctx, cmd)
	}
}

func (h failKeyHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestOwnerLock_StatusWriteFailureDoesNotLeakLock(t *testing.T) {
	_, rdb := newTestRedis(t)
	keys := NewKeys("t")
	rdb.AddHook(failKeyHook{key: keys.LockStatus()})
	lock := NewOwnerLock(rdb, keys)
	ctx := context.Background()

	// o dono fica sabendo que é dono mesmo com o registro de status perdido.
	ok, err := lock.Acquire(ctx, "a", domain.LockMeta{Filename: "a.mp3", FileSize: 1024})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !ok {
		t.Fatalf("expected ownership despite status write failure")
	}

	// sem status detalhado, Status ainda aponta o dono.
	st, err := lock.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st == nil || st.JobID != "a" {
		t.Fatalf("expected minimal status naming the owner, got %+v", st)
	}

	// e o dono consegue liberar: nada fica preso até o TTL.
	released, err := lock.Release(ctx, "a")
	if err != nil || !released {
		t.Fatalf("release: released=%v err=%v", released, err)
	}
	if ok, err := lock.Acquire(ctx, "b", domain.LockMeta{}); err != nil || !ok {
		t.Fatalf("expected next job to acquire: ok=%v err=%v", ok, err)
	}
}
