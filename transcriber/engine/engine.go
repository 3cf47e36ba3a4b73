package engine

import (
	"context"
	"fmt"
	"time"
)

// Request é a entrada de uma transcrição: referência de arquivo + opções.
type Request struct {
	AudioPath string
	Language  string
}

// Result é a saída do motor, com métricas de execução.
type Result struct {
	Text                string
	Duration            float64 // duração da mídia, em segundos
	ProcessingTime      float64 // tempo de parede gasto, em segundos
	Speed               float64 // Duration / ProcessingTime
	Language            string
	LanguageProbability float64
}

// Engine é o motor de inferência opaco: entrada arquivo, saída texto+métricas.
type Engine interface {
	Transcribe(ctx context.Context, req Request) (*Result, error)
	Close() error
}

// Factory cria um handle novo. Criação é cara (carrega o modelo).
type Factory func(ctx context.Context) (Engine, error)

// BufferReleaser é opcional: handles que acumulam buffers transientes podem
// liberá-los após cada chamada, sem derrubar o handle.
type BufferReleaser interface {
	ReleaseBuffers()
}

func releaseBuffers(e Engine) {
	if br, ok := e.(BufferReleaser); ok {
		br.ReleaseBuffers()
	}
}

// Lease é a posse temporária de um handle; devolva ao manager via Release.
type Lease struct {
	Engine Engine
	slot   int
}

// Manager governa aquisição/devolução de handles nos três modos.
//
// Acquire é não-bloqueante quanto à capacidade: (nil, false, nil) significa
// backpressure (sem vaga agora). Erro só quando a criação do handle falha.
type Manager interface {
	Acquire(ctx context.Context) (*Lease, bool, error)
	Release(lease *Lease)
	Loaded() bool
	Close() error
}

type outcome struct {
	res *Result
	err error
}

// start dispara a transcrição em goroutine dedicada, com métricas e
// panic->erro. O canal devolvido recebe exatamente um desfecho.
func start(ctx context.Context, eng Engine, req Request) <-chan outcome {
	out := make(chan outcome, 1)
	began := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				out <- outcome{nil, fmt.Errorf("engine panic: %v", r)}
			}
		}()
		res, err := eng.Transcribe(ctx, req)
		if err == nil && res != nil {
			res.ProcessingTime = time.Since(began).Seconds()
			if res.ProcessingTime > 0 && res.Duration > 0 {
				res.Speed = res.Duration / res.ProcessingTime
			}
		}
		out <- outcome{res, err}
	}()
	return out
}

// Run executa a transcrição em goroutine dedicada e mede as métricas.
// O ctx cancela a ESPERA do chamador; a computação em andamento não é
// interrompida (cancelamento é consultivo). Panics do motor viram erro.
func Run(ctx context.Context, eng Engine, req Request) (*Result, error) {
	out := start(ctx, eng, req)
	select {
	case o := <-out:
		return o.res, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RunWithLease executa como Run, mas a devolução do lease ao manager fica
// amarrada ao FIM DA COMPUTAÇÃO, não à espera do chamador: se o chamador
// desistir antes (ctx cancelado), o lease continua ocupado até o motor
// terminar de fato, preservando o teto de usuários do manager.
func RunWithLease(ctx context.Context, mgr Manager, lease *Lease, req Request) (*Result, error) {
	out := start(ctx, lease.Engine, req)

	done := make(chan outcome, 1)
	go func() {
		o := <-out
		mgr.Release(lease)
		done <- o
	}()

	select {
	case o := <-done:
		return o.res, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
