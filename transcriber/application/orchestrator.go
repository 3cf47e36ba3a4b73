package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/johnnybonaci/susurro/transcriber/domain"
	"github.com/johnnybonaci/susurro/transcriber/engine"
)

// ArtifactCleaner remove os artefatos temporários de um trabalho.
type ArtifactCleaner interface {
	Remove(jobID string) error
}

// Orchestrator compõe store, fila, gate, engine e stats.
//
// Campos opcionais toleram zero-value: Stats/Busy/Artifacts/Ping podem ficar
// nil e os recursos correspondentes são simplesmente pulados.
type Orchestrator struct {
	Store     domain.Store
	Queue     domain.Queue
	Gate      domain.Gate
	Busy      domain.GateStatus   // só na variante de lock binário
	History   domain.QueueHistory // opcional, para listagens de operador
	Stats     domain.StatsStore
	Engines   engine.Manager
	Artifacts ArtifactCleaner
	Ping      domain.Pinger
	Log       zerolog.Logger

	MaxFileSize int64
	AllowedExts []string
}

// SubmitRequest é a entrada de admissão, já fora do HTTP.
type SubmitRequest struct {
	JobID    string // vazio = gerado
	Filename string
	FileSize int64
	Path     string
	Language string
}

// SubmitResponse devolve o id e a posição 1-based na fila no momento da
// admissão (distância viva até a cabeça, não número de sequência).
type SubmitResponse struct {
	JobID    string        `json:"job_id"`
	Status   domain.Status `json:"status"`
	Position int           `json:"queue_position"`
}

// Submit valida e admite um trabalho: store-put, depois enqueue, depois
// stats. A escrita no store precede o enqueue para que qualquer id retirado
// da fila resolva para um registro. Não há atomicidade entre os passos.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	if err := domain.ValidateSubmission(req.Filename, req.FileSize, o.MaxFileSize, o.AllowedExts); err != nil {
		// rejeição antes de qualquer mutação: nenhum registro parcial.
		return nil, err
	}

	id := req.JobID
	if id == "" {
		id = uuid.NewString()
	}

	job := &domain.Job{
		ID:        id,
		Status:    domain.StatusPending,
		Filename:  req.Filename,
		FileSize:  req.FileSize,
		Path:      req.Path,
		Language:  req.Language,
		CreatedAt: time.Now().UTC(),
	}
	if err := o.Store.Put(ctx, job); err != nil {
		return nil, err
	}

	pos, err := o.Queue.Enqueue(ctx, id)
	if err != nil {
		return nil, err
	}

	if o.Stats != nil {
		if err := o.Stats.RecordSubmitted(ctx); err != nil {
			o.Log.Warn().Err(err).Msg("stats record failed")
		}
	}

	o.Log.Info().Str("job_id", id).Int("position", pos).Msg("job admitted")
	return &SubmitResponse{JobID: id, Status: domain.StatusPending, Position: pos}, nil
}

// ClaimAndProcess processa um id já movido para a lista de processing.
//
// Sequência: gate -> engine -> run -> release do engine -> release do gate ->
// atualização terminal no store. Os releases são garantidos em todo caminho
// de saída (sucesso, falha de computação ou pânico); falhas do motor viram
// registro Failed e nunca escapam com o gate preso.
func (o *Orchestrator) ClaimAndProcess(ctx context.Context, jobID string) error {
	job, ok, err := o.Store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if !ok {
		// registro expirou ou foi apagado enquanto esperava: nada a fazer.
		o.Log.Warn().Str("job_id", jobID).Msg("dequeued id without record")
		return o.Queue.Ack(ctx, jobID)
	}

	res, runErr := o.process(ctx, job)
	if domain.IsBusy(runErr) {
		// sem vaga agora: volta atomicamente para a cauda de pending e
		// repassa o "ocupado".
		if _, err := o.Queue.Requeue(ctx, jobID); err != nil {
			return err
		}
		return runErr
	}

	// desfecho terminal, com gate e engine já liberados.
	o.finish(ctx, job, res, runErr)
	return nil
}

// process segura gate e engine apenas durante a computação.
// Devolve *BusyError quando gate ou engine estão sem vaga.
func (o *Orchestrator) process(ctx context.Context, job *domain.Job) (_ *engine.Result, err error) {
	meta := domain.LockMeta{Filename: job.Filename, FileSize: job.FileSize}

	granted, err := o.Gate.TryEnter(ctx, job.ID, meta)
	if granted {
		// o defer entra antes de qualquer checagem de erro: uma entrada
		// concedida tem saída garantida em todo caminho, inclusive quando
		// TryEnter concedeu E devolveu erro ao mesmo tempo.
		defer func() {
			if leaveErr := o.Gate.Leave(ctx, job.ID); leaveErr != nil {
				o.Log.Error().Err(leaveErr).Str("job_id", job.ID).Msg("gate leave failed")
			}
		}()
	}
	if err != nil {
		return nil, err
	}
	if !granted {
		return nil, &domain.BusyError{Current: o.currentStatus(ctx)}
	}

	lease, granted, err := o.Engines.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if !granted {
		// esgotamento do pool é backpressure, não falha do trabalho.
		return nil, &domain.BusyError{Current: o.currentStatus(ctx)}
	}

	started := time.Now().UTC()
	if _, err := o.Store.Update(ctx, job.ID, func(j *domain.Job) {
		j.Status = domain.StatusProcessing
		j.StartedAt = &started
	}); err != nil {
		o.Engines.Release(lease)
		return nil, err
	}

	o.Log.Info().Str("job_id", job.ID).Str("filename", job.Filename).Msg("processing started")
	// a devolução do lease acompanha o fim da computação: se o chamador
	// desistir da espera, o motor continua contado como em uso até terminar.
	return engine.RunWithLease(ctx, o.Engines, lease, engine.Request{
		AudioPath: job.Path,
		Language:  job.Language,
	})
}

// finish grava o desfecho terminal, contabiliza stats e limpa artefatos.
func (o *Orchestrator) finish(ctx context.Context, job *domain.Job, res *engine.Result, runErr error) {
	if runErr == nil && res == nil {
		runErr = errors.New("engine returned no result")
	}
	completed := time.Now().UTC()

	if _, err := o.Store.Update(ctx, job.ID, func(j *domain.Job) {
		j.CompletedAt = &completed
		if runErr != nil {
			j.Status = domain.StatusFailed
			j.Error = runErr.Error()
			return
		}
		j.Status = domain.StatusCompleted
		j.Result = &domain.Result{
			Text:                res.Text,
			Duration:            res.Duration,
			ProcessingTime:      res.ProcessingTime,
			Speed:               res.Speed,
			Language:            res.Language,
			LanguageProbability: res.LanguageProbability,
		}
	}); err != nil {
		o.Log.Error().Err(err).Str("job_id", job.ID).Msg("terminal update failed")
	}

	if err := o.Queue.Ack(ctx, job.ID); err != nil {
		o.Log.Error().Err(err).Str("job_id", job.ID).Msg("queue ack failed")
	}

	if o.History != nil {
		if err := o.History.Archive(ctx, job.ID, runErr == nil); err != nil {
			o.Log.Warn().Err(err).Str("job_id", job.ID).Msg("history archive failed")
		}
	}

	if o.Stats != nil {
		speed := 0.0
		if res != nil {
			speed = res.Speed
		}
		if err := o.Stats.RecordFinished(ctx, runErr == nil, speed); err != nil {
			o.Log.Warn().Err(err).Msg("stats record failed")
		}
	}

	// limpeza best-effort do artefato, qualquer que seja o desfecho.
	if o.Artifacts != nil {
		if err := o.Artifacts.Remove(job.ID); err != nil {
			o.Log.Warn().Err(err).Str("job_id", job.ID).Msg("artifact cleanup failed")
		}
	}

	if runErr != nil {
		o.Log.Warn().Err(runErr).Str("job_id", job.ID).Msg("job failed")
		return
	}
	o.Log.Info().Str("job_id", job.ID).Float64("speed", res.Speed).Msg("job completed")
}

func (o *Orchestrator) currentStatus(ctx context.Context) *domain.BusyStatus {
	if o.Busy == nil {
		return nil
	}
	st, err := o.Busy.Status(ctx)
	if err != nil {
		o.Log.Warn().Err(err).Msg("busy status lookup failed")
		return nil
	}
	return st
}

// JobView é um Job enriquecido com a posição viva na fila (se pendente).
type JobView struct {
	*domain.Job
	QueuePosition int `json:"queue_position,omitempty"`
}

// GetJob devolve o registro e, para pendentes, a posição atual na fila.
// (nil, false, nil) quando o id não existe ou expirou.
func (o *Orchestrator) GetJob(ctx context.Context, id string) (*JobView, bool, error) {
	job, ok, err := o.Store.Get(ctx, id)
	if err != nil || !ok {
		return nil, false, err
	}

	view := &JobView{Job: job}
	if job.Status == domain.StatusPending {
		if pos, inQueue, err := o.Queue.PositionOf(ctx, id); err == nil && inQueue {
			view.QueuePosition = pos
		}
	}
	return view, true, nil
}

// DeleteJob apaga registro e presença na fila. Idempotente: apagar um id
// ausente/expirado é no-op, não erro.
func (o *Orchestrator) DeleteJob(ctx context.Context, id string) (bool, error) {
	inQueue, err := o.Queue.Remove(ctx, id)
	if err != nil {
		return false, err
	}
	stored, err := o.Store.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	return inQueue || stored, nil
}

// QueueStats junta profundidade da fila com os contadores acumulados.
func (o *Orchestrator) QueueStats(ctx context.Context) (*domain.QueueStats, error) {
	pending, processing, err := o.Queue.Depth(ctx)
	if err != nil {
		return nil, err
	}

	out := &domain.QueueStats{Pending: pending, Processing: processing}
	if o.Stats != nil {
		snap, err := o.Stats.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		out.TotalJobs = snap.TotalJobs
		out.CompletedToday = snap.CompletedToday
		out.FailedToday = snap.FailedToday
		out.AverageSpeed = snap.AverageSpeed
	}
	return out, nil
}

// CurrentStatus devolve o dono atual do gate binário, ou nil se livre
// (ou se o deployment usa a variante de semáforo).
func (o *Orchestrator) CurrentStatus(ctx context.Context) (*domain.BusyStatus, error) {
	if o.Busy == nil {
		return nil, nil
	}
	return o.Busy.Status(ctx)
}

// IsBusy reporta se há trabalho segurando o gate binário agora.
func (o *Orchestrator) IsBusy(ctx context.Context) (bool, error) {
	st, err := o.CurrentStatus(ctx)
	if err != nil {
		return false, err
	}
	return st != nil, nil
}

// ForceRelease libera o gate incondicionalmente (recuperação por operador).
// false = já estava livre. Não interrompe computação já iniciada.
func (o *Orchestrator) ForceRelease(ctx context.Context) (bool, error) {
	if o.Busy == nil {
		return false, nil
	}
	released, err := o.Busy.ForceRelease(ctx)
	if err != nil {
		return false, err
	}
	if released {
		o.Log.Warn().Msg("gate force released")
	}
	return released, nil
}

// PendingJobs lista os pendentes em ordem de atendimento, resolvendo cada id
// no store. Ids cujo registro já expirou são pulados em silêncio.
func (o *Orchestrator) PendingJobs(ctx context.Context, limit int) ([]*JobView, error) {
	if o.History == nil {
		return nil, nil
	}
	ids, err := o.History.PendingIDs(ctx, limit)
	if err != nil {
		return nil, err
	}
	return o.resolve(ctx, ids)
}

// RecentJobs lista os desfechos mais recentes (completados ou falhos).
func (o *Orchestrator) RecentJobs(ctx context.Context, ok bool, limit int) ([]*JobView, error) {
	if o.History == nil {
		return nil, nil
	}
	ids, err := o.History.RecentIDs(ctx, ok, limit)
	if err != nil {
		return nil, err
	}
	return o.resolve(ctx, ids)
}

func (o *Orchestrator) resolve(ctx context.Context, ids []string) ([]*JobView, error) {
	views := make([]*JobView, 0, len(ids))
	for i, id := range ids {
		job, ok, err := o.Store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		view := &JobView{Job: job}
		if job.Status == domain.StatusPending {
			view.QueuePosition = i + 1
		}
		views = append(views, view)
	}
	return views, nil
}

// ResetDailyStats zera os contadores diários (total acumulado é preservado).
func (o *Orchestrator) ResetDailyStats(ctx context.Context) error {
	if o.Stats == nil {
		return nil
	}
	if err := o.Stats.ResetDaily(ctx); err != nil {
		return err
	}
	o.Log.Info().Msg("daily stats reset")
	return nil
}

// Health descreve a saúde dos colaboradores externos.
type Health struct {
	Redis  bool `json:"redis"`
	Engine bool `json:"engine"`
}

func (h Health) OK() bool { return h.Redis }

// HealthCheck é side-effect free: só observa, não muda estado.
func (o *Orchestrator) HealthCheck(ctx context.Context) Health {
	h := Health{}
	if o.Ping != nil {
		h.Redis = o.Ping.Ping(ctx) == nil
	}
	if o.Engines != nil {
		h.Engine = o.Engines.Loaded()
	}
	return h
}

// ErrStoreRequired etc: validação mínima de composição no startup.
func (o *Orchestrator) Validate() error {
	if o.Store == nil || o.Queue == nil || o.Gate == nil || o.Engines == nil {
		return fmt.Errorf("orchestrator: store, queue, gate and engines are required")
	}
	return nil
}
