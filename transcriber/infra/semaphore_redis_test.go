package infra

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/johnnybonaci/susurro/transcriber/domain"
)

func TestSemaphore_GrantsUpToMax(t *testing.T) {
	_, rdb := newTestRedis(t)
	sem := NewSemaphore(rdb, NewKeys("t"), 2)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		ok, err := sem.TryEnter(ctx, id, domain.LockMeta{})
		if err != nil || !ok {
			t.Fatalf("enter %s: ok=%v err=%v", id, ok, err)
		}
	}

	ok, err := sem.TryEnter(ctx, "c", domain.LockMeta{})
	if err != nil {
		t.Fatalf("enter c: %v", err)
	}
	if ok {
		t.Fatalf("expected denial beyond max")
	}

	if err := sem.Leave(ctx, "a"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	ok, err = sem.TryEnter(ctx, "c", domain.LockMeta{})
	if err != nil || !ok {
		t.Fatalf("expected slot freed by leave: ok=%v err=%v", ok, err)
	}
}

func TestSemaphore_ReentrySameIDIsGranted(t *testing.T) {
	_, rdb := newTestRedis(t)
	sem := NewSemaphore(rdb, NewKeys("t"), 1)
	ctx := context.Background()

	if ok, err := sem.TryEnter(ctx, "a", domain.LockMeta{}); err != nil || !ok {
		t.Fatalf("first enter: ok=%v err=%v", ok, err)
	}
	if ok, err := sem.TryEnter(ctx, "a", domain.LockMeta{}); err != nil || !ok {
		t.Fatalf("re-entry of holder should be granted: ok=%v err=%v", ok, err)
	}

	n, err := sem.Active(ctx)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 active, got %d", n)
	}
}

func TestSemaphore_BoundHoldsUnderConcurrentStress(t *testing.T) {
	_, rdb := newTestRedis(t)
	const max = 3
	sem := NewSemaphore(rdb, NewKeys("t"), max)
	ctx := context.Background()

	// bem mais submissores que vagas, todos disputando ao mesmo tempo.
	const callers = 20
	granted := make(chan string, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			ok, err := sem.TryEnter(ctx, id, domain.LockMeta{})
			if err != nil {
				t.Errorf("enter %s: %v", id, err)
				return
			}
			if ok {
				granted <- id
			}
		}(fmt.Sprintf("job-%d", i))
	}
	wg.Wait()
	close(granted)

	var holders []string
	for id := range granted {
		holders = append(holders, id)
	}
	if len(holders) > max {
		t.Fatalf("gate bound violated: %d holders with max=%d", len(holders), max)
	}

	active, err := sem.Active(ctx)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if int(active) != len(holders) {
		t.Fatalf("active set (%d) disagrees with grants (%d)", active, len(holders))
	}
}
