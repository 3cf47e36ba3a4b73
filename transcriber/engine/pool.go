package engine

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"sync"
)

const maxPoolSlots = 64 // um bit por slot na bitmask

// FixedPool mantém N handles pré-criados em uma tabela de slots com bitmask
// de disponibilidade guardada por mutex: a contabilidade de capacidade é
// explícita e limitada, em vez de uma lista ad hoc de pop/push.
type FixedPool struct {
	mu    sync.Mutex
	slots []Engine
	free  uint64 // bit i ligado = slot i disponível
}

// NewFixedPool cria os N handles de uma vez. Se alguma criação falha, os
// handles já criados são fechados antes de devolver o erro.
func NewFixedPool(ctx context.Context, n int, factory Factory) (*FixedPool, error) {
	if n <= 0 || n > maxPoolSlots {
		return nil, fmt.Errorf("pool size must be between 1 and %d, got %d", maxPoolSlots, n)
	}

	p := &FixedPool{slots: make([]Engine, 0, n)}
	for i := 0; i < n; i++ {
		eng, err := factory(ctx)
		if err != nil {
			for _, created := range p.slots {
				_ = created.Close()
			}
			return nil, fmt.Errorf("create pool slot %d: %w", i, err)
		}
		p.slots = append(p.slots, eng)
		p.free |= 1 << i
	}
	return p, nil
}

// Acquire pega um slot livre. (nil, false, nil) quando o pool está esgotado:
// backpressure, não erro.
func (p *FixedPool) Acquire(_ context.Context) (*Lease, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.free == 0 {
		return nil, false, nil
	}
	slot := bits.TrailingZeros64(p.free)
	p.free &^= 1 << slot
	return &Lease{Engine: p.slots[slot], slot: slot}, true, nil
}

// Release devolve o slot. No modo pool o handle só volta para a tabela;
// não há limpeza de buffers nem teardown.
func (p *FixedPool) Release(lease *Lease) {
	if lease == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.free |= 1 << lease.slot
}

func (p *FixedPool) Loaded() bool { return len(p.slots) > 0 }

// InUse devolve quantos slots estão emprestados agora.
func (p *FixedPool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots) - bits.OnesCount64(p.free)
}

func (p *FixedPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for _, eng := range p.slots {
		if err := eng.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.slots = nil
	p.free = 0
	return errors.Join(errs...)
}
