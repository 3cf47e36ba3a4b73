package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// AlwaysLoaded mantém um único handle criado no startup e nunca descarregado:
// máxima velocidade de resposta, sem lazy loading. O compartilhamento é
// limitado por um contador de usuários dentro de seção crítica.
type AlwaysLoaded struct {
	mu       sync.Mutex
	eng      Engine
	users    int
	maxUsers int

	loadedAt time.Time
	log      zerolog.Logger
}

// NewAlwaysLoaded cria o handle imediatamente; falha aqui aborta o startup.
func NewAlwaysLoaded(ctx context.Context, factory Factory, maxUsers int, log zerolog.Logger) (*AlwaysLoaded, error) {
	if maxUsers <= 0 {
		maxUsers = 1
	}

	eng, err := factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("load engine: %w", err)
	}

	log.Info().Int("max_users", maxUsers).Msg("engine loaded (always-on)")
	return &AlwaysLoaded{
		eng:      eng,
		maxUsers: maxUsers,
		loadedAt: time.Now(),
		log:      log,
	}, nil
}

// Acquire incrementa o contador de usuários; (nil, false, nil) quando o
// limite de usuários simultâneos foi atingido.
func (a *AlwaysLoaded) Acquire(_ context.Context) (*Lease, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.eng == nil {
		return nil, false, fmt.Errorf("engine closed")
	}
	if a.users >= a.maxUsers {
		return nil, false, nil
	}
	a.users++
	return &Lease{Engine: a.eng}, true, nil
}

// Release decrementa o contador e dispara a limpeza de buffers transientes,
// sem derrubar o handle.
func (a *AlwaysLoaded) Release(lease *Lease) {
	if lease == nil {
		return
	}

	a.mu.Lock()
	if a.users > 0 {
		a.users--
	}
	eng := a.eng
	a.mu.Unlock()

	if eng != nil {
		releaseBuffers(eng)
	}
}

func (a *AlwaysLoaded) Loaded() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.eng != nil
}

// Users devolve quantos chamadores compartilham o handle agora.
func (a *AlwaysLoaded) Users() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.users
}

func (a *AlwaysLoaded) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.eng == nil {
		return nil
	}
	err := a.eng.Close()
	a.eng = nil
	return err
}
