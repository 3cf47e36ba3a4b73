package domain

import (
	"context"
	"time"
)

// Store é o registro durável de trabalhos (job_id -> Job), com TTL.
//
// Get devolve (nil, false, nil) quando o id não existe ou expirou.
// Update é read-modify-write last-writer-wins: chamadores devem serializar
// atualizações de um mesmo trabalho através do gate.
type Store interface {
	Put(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, bool, error)
	Update(ctx context.Context, id string, mutate func(*Job)) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// Queue é a fila FIFO de admissão de ids pendentes.
//
// DequeueBlocking move atomicamente a cabeça de pending para processing em
// uma única operação indivisível — nenhum id pode se perder ou duplicar entre
// as duas listas. A operação pode suspender até `timeout` esperando trabalho;
// ("", false, nil) significa timeout sem trabalho.
type Queue interface {
	Enqueue(ctx context.Context, id string) (int, error)
	DequeueBlocking(ctx context.Context, timeout time.Duration) (string, bool, error)
	PositionOf(ctx context.Context, id string) (int, bool, error)
	Ack(ctx context.Context, id string) error
	// Requeue devolve um id de processing para a cauda de pending na mesma
	// operação atômica (espelho do DequeueBlocking): o id nunca fica fora
	// das duas listas ao mesmo tempo.
	Requeue(ctx context.Context, id string) (bool, error)
	Remove(ctx context.Context, id string) (bool, error)
	Depth(ctx context.Context) (pending, processing int64, err error)
}

// Gate limita quantos trabalhos podem processar ao mesmo tempo.
//
// TryEnter é não-bloqueante: negação volta na hora ("ocupado"), retry fica
// com o chamador. Implementações: semáforo contador (N vagas) ou lock binário
// de dono único (1 vaga). meta só é usada pela variante binária.
type Gate interface {
	TryEnter(ctx context.Context, jobID string, meta LockMeta) (bool, error)
	Leave(ctx context.Context, jobID string) error
}

// GateStatus expõe observação e recuperação operacional do gate binário.
type GateStatus interface {
	// Status devolve nil quando o gate está livre.
	Status(ctx context.Context) (*BusyStatus, error)
	// ForceRelease libera incondicionalmente; false = já estava livre (no-op).
	ForceRelease(ctx context.Context) (bool, error)
}

// QueueHistory guarda e lista o histórico recente de desfechos, além dos ids
// pendentes em ordem de atendimento. Listas limitadas; uso em endpoints de
// operador. Erros de Archive são best-effort para o chamador.
type QueueHistory interface {
	Archive(ctx context.Context, id string, ok bool) error
	RecentIDs(ctx context.Context, ok bool, limit int) ([]string, error)
	PendingIDs(ctx context.Context, limit int) ([]string, error)
}

// StatsStore acumula contadores e amostras de velocidade recentes.
// Erros devem ser tratados como best-effort pelo chamador.
type StatsStore interface {
	RecordSubmitted(ctx context.Context) error
	RecordFinished(ctx context.Context, ok bool, speed float64) error
	Snapshot(ctx context.Context) (*StatsSnapshot, error)
	ResetDaily(ctx context.Context) error
}

// Pinger verifica conectividade com o backend de estado compartilhado.
type Pinger interface {
	Ping(ctx context.Context) error
}
