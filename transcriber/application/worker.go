package application

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/johnnybonaci/susurro/transcriber/domain"
)

const (
	defaultDequeueTimeout = 5 * time.Second
	errorBackoff          = time.Second
)

// Worker consome a fila e entrega cada id ao orquestrador.
//
// Cada loop é uma goroutine independente; com Concurrency > 1 a vazão real
// ainda fica limitada pelo gate e pelo pool de engines.
type Worker struct {
	Orc   *Orchestrator
	Queue domain.Queue
	Log   zerolog.Logger

	DequeueTimeout time.Duration // zero = 5s
	Concurrency    int           // zero = 1
}

// Run roda os loops de consumo até o contexto ser cancelado.
// Bloqueia; o chamador decide em qual goroutine isso vive.
func (w *Worker) Run(ctx context.Context) {
	n := w.Concurrency
	if n <= 0 {
		n = 1
	}

	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		go func(id int) {
			defer func() { done <- struct{}{} }()
			w.loop(ctx, id)
		}(i)
	}
	for i := 0; i < n; i++ {
		<-done
	}
}

func (w *Worker) loop(ctx context.Context, id int) {
	log := w.Log.With().Int("worker", id).Logger()
	log.Info().Msg("worker started")

	timeout := w.DequeueTimeout
	if timeout <= 0 {
		timeout = defaultDequeueTimeout
	}

	for {
		if ctx.Err() != nil {
			log.Info().Msg("worker stopped")
			return
		}

		jobID, ok, err := w.Queue.DequeueBlocking(ctx, timeout)
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("worker stopped")
				return
			}
			log.Error().Err(err).Msg("dequeue failed")
			w.sleep(ctx, errorBackoff)
			continue
		}
		if !ok {
			// timeout sem trabalho; volta a esperar.
			continue
		}

		if err := w.Orc.ClaimAndProcess(ctx, jobID); err != nil {
			if domain.IsBusy(err) {
				// o trabalho voltou para a fila; espera antes de repuxar
				// para não girar em seco enquanto o gate está tomado.
				log.Debug().Str("job_id", jobID).Msg("gate busy, job requeued")
				w.sleep(ctx, errorBackoff)
				continue
			}
			log.Error().Err(err).Str("job_id", jobID).Msg("claim failed")
			w.sleep(ctx, errorBackoff)
		}
	}
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
