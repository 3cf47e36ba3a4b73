package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Lazy cria o handle no primeiro uso e o descarrega após um período ocioso
// sem usuários ativos.
//
// Invariantes:
//   - criação e teardown são mutuamente exclusivos (lifecycle mutex);
//   - uma criação em andamento é compartilhada por chamadores concorrentes
//     (singleflight), nunca duplicada.
type Lazy struct {
	mu       sync.Mutex
	eng      Engine
	users    int
	maxUsers int
	lastUsed time.Time

	lifecycle sync.Mutex
	sf        singleflight.Group
	factory   Factory

	idleTTL    time.Duration
	sweepEvery time.Duration
	log        zerolog.Logger
}

type LazyOption func(*Lazy)

// WithIdleTTL define quanto tempo sem uso derruba o handle (padrão 10min).
func WithIdleTTL(d time.Duration) LazyOption {
	return func(l *Lazy) { l.idleTTL = d }
}

// WithUnloadCheckEvery define a cadência do verificador de ociosidade.
func WithUnloadCheckEvery(d time.Duration) LazyOption {
	return func(l *Lazy) { l.sweepEvery = d }
}

func NewLazy(factory Factory, maxUsers int, log zerolog.Logger, opts ...LazyOption) *Lazy {
	if maxUsers <= 0 {
		maxUsers = 1
	}
	l := &Lazy{
		factory:    factory,
		maxUsers:   maxUsers,
		idleTTL:    10 * time.Minute,
		sweepEvery: time.Minute,
		log:        log,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire devolve o handle, criando-o se necessário. Chamadores concorrentes
// durante a criação esperam a MESMA criação terminar em vez de disparar
// duplicatas. (nil, false, nil) = limite de usuários atingido.
func (l *Lazy) Acquire(ctx context.Context) (*Lease, bool, error) {
	for {
		l.mu.Lock()
		if l.eng != nil {
			if l.users >= l.maxUsers {
				l.mu.Unlock()
				return nil, false, nil
			}
			l.users++
			l.lastUsed = time.Now()
			lease := &Lease{Engine: l.eng}
			l.mu.Unlock()
			return lease, true, nil
		}
		l.mu.Unlock()

		if _, err, _ := l.sf.Do("load", func() (any, error) {
			l.lifecycle.Lock()
			defer l.lifecycle.Unlock()

			// outro chamador pode ter carregado enquanto esperávamos.
			l.mu.Lock()
			loaded := l.eng != nil
			l.mu.Unlock()
			if loaded {
				return nil, nil
			}

			eng, err := l.factory(ctx)
			if err != nil {
				return nil, err
			}
			if eng == nil {
				// sem este guard, um factory que devolve (nil, nil)
				// mandaria Acquire para um loop infinito de recarga.
				return nil, errors.New("engine factory returned nil engine")
			}

			l.mu.Lock()
			l.eng = eng
			l.lastUsed = time.Now()
			l.mu.Unlock()

			l.log.Info().Msg("engine loaded (lazy)")
			return nil, nil
		}); err != nil {
			return nil, false, err
		}
		// volta ao topo: o handle pode ter sido descarregado no meio.
	}
}

func (l *Lazy) Release(lease *Lease) {
	if lease == nil {
		return
	}

	l.mu.Lock()
	if l.users > 0 {
		l.users--
	}
	l.lastUsed = time.Now()
	eng := l.eng
	l.mu.Unlock()

	if eng != nil {
		releaseBuffers(eng)
	}
}

func (l *Lazy) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.eng != nil
}

// UnloadIfIdle descarrega o handle se não há usuários e o idleTTL venceu.
// Devolve true quando descarregou.
func (l *Lazy) UnloadIfIdle() bool {
	l.mu.Lock()
	idle := l.eng != nil && l.users == 0 && time.Since(l.lastUsed) >= l.idleTTL
	var eng Engine
	if idle {
		eng = l.eng
		l.eng = nil
	}
	l.mu.Unlock()

	if !idle {
		return false
	}

	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()
	if err := eng.Close(); err != nil {
		l.log.Warn().Err(err).Msg("engine unload failed")
	} else {
		l.log.Info().Msg("engine unloaded (idle)")
	}
	return true
}

// StartJanitor verifica ociosidade periodicamente. Pare cancelando o contexto.
func (l *Lazy) StartJanitor(ctx context.Context) {
	if l.sweepEvery <= 0 {
		return
	}

	t := time.NewTicker(l.sweepEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				l.UnloadIfIdle()
			}
		}
	}()
}

func (l *Lazy) Close() error {
	l.mu.Lock()
	eng := l.eng
	l.eng = nil
	l.mu.Unlock()

	if eng == nil {
		return nil
	}

	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()
	return eng.Close()
}
