package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/johnnybonaci/susurro/transcriber/domain"
)

// releaseScript verifica o dono e apaga lock + status em um único passo.
// Sem isso, um release atrasado de um trabalho antigo poderia derrubar o
// lock de um dono posterior.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  redis.call("DEL", KEYS[1], KEYS[2])
  return 1
end
return 0
`)

// OwnerLock é o gate binário: no máximo um dono no sistema inteiro.
//
// O valor do lock é o job_id do dono; o TTL é rede de segurança para crash
// (processo morre sem release -> o lock expira sozinho). Nada renova o TTL
// no meio do processamento: trabalhos mais longos que o TTL arriscam dupla
// admissão após a expiração.
type OwnerLock struct {
	rdb  *redis.Client
	keys Keys
	ttl  time.Duration
	now  func() time.Time
}

type OwnerLockOption func(*OwnerLock)

// WithLockTTL ajusta o TTL de segurança (padrão 1h).
func WithLockTTL(d time.Duration) OwnerLockOption {
	return func(l *OwnerLock) { l.ttl = d }
}

func NewOwnerLock(rdb *redis.Client, keys Keys, opts ...OwnerLockOption) *OwnerLock {
	l := &OwnerLock{
		rdb:  rdb,
		keys: keys,
		ttl:  time.Hour,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// lockStatus é o registro companheiro persistido junto com o lock.
type lockStatus struct {
	JobID     string    `json:"job_id"`
	Filename  string    `json:"filename,omitempty"`
	FileSize  int64     `json:"file_size,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// Acquire tenta virar dono: SET NX EX. Em caso de sucesso grava também o
// registro de status com o mesmo TTL. Negação volta na hora (false, nil).
//
// A escrita do status é best-effort de verdade: uma vez que o SET NX passou,
// Acquire devolve (true, nil) mesmo se o status falhar. Devolver erro aqui
// deixaria o chamador sem saber que virou dono e o lock preso até o TTL;
// sem o registro, Status ainda devolve o dono mínimo.
func (l *OwnerLock) Acquire(ctx context.Context, jobID string, meta domain.LockMeta) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.keys.Lock(), jobID, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lock acquire %s: %w", jobID, err)
	}
	if !ok {
		return false, nil
	}

	st := lockStatus{
		JobID:     jobID,
		Filename:  meta.Filename,
		FileSize:  meta.FileSize,
		StartedAt: l.now().UTC(),
	}
	if data, err := json.Marshal(st); err == nil {
		_ = l.rdb.Set(ctx, l.keys.LockStatus(), data, l.ttl).Err()
	}
	return true, nil
}

// Release libera o lock apenas se jobID ainda for o dono (compare-and-delete
// atômico). (false, nil) quando o dono é outro ou o lock já expirou.
func (l *OwnerLock) Release(ctx context.Context, jobID string) (bool, error) {
	res, err := releaseScript.Run(ctx, l.rdb,
		[]string{l.keys.Lock(), l.keys.LockStatus()}, jobID).Int()
	if err != nil {
		return false, fmt.Errorf("lock release %s: %w", jobID, err)
	}
	return res == 1, nil
}

// ForceRelease apaga lock e status incondicionalmente (recuperação por
// operador). false = o gate já estava livre, no-op.
func (l *OwnerLock) ForceRelease(ctx context.Context) (bool, error) {
	n, err := l.rdb.Del(ctx, l.keys.Lock(), l.keys.LockStatus()).Result()
	if err != nil {
		return false, fmt.Errorf("lock force release: %w", err)
	}
	return n > 0, nil
}

// Status devolve o dono atual com tempo decorrido e estimativa de restante,
// ou nil quando o gate está livre.
func (l *OwnerLock) Status(ctx context.Context) (*domain.BusyStatus, error) {
	owner, err := l.rdb.Get(ctx, l.keys.Lock()).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock status: %w", err)
	}

	data, err := l.rdb.Get(ctx, l.keys.LockStatus()).Bytes()
	if errors.Is(err, redis.Nil) {
		// lock presente sem status detalhado (escrita do status falhou).
		return &domain.BusyStatus{JobID: owner, EstimatedRemaining: domain.EstimateRemaining(0, 0)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock status: %w", err)
	}

	var st lockStatus
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("lock status decode: %w", err)
	}

	elapsed := l.now().Sub(st.StartedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	return &domain.BusyStatus{
		JobID:              st.JobID,
		Filename:           st.Filename,
		FileSize:           st.FileSize,
		StartedAt:          st.StartedAt,
		Elapsed:            elapsed,
		EstimatedRemaining: domain.EstimateRemaining(st.FileSize, elapsed),
	}, nil
}

// TTL devolve o tempo restante do lock atual; (0, false) quando não há lock.
func (l *OwnerLock) TTL(ctx context.Context) (time.Duration, bool, error) {
	d, err := l.rdb.TTL(ctx, l.keys.Lock()).Result()
	if err != nil {
		return 0, false, fmt.Errorf("lock ttl: %w", err)
	}
	if d < 0 {
		return 0, false, nil
	}
	return d, true, nil
}

// TryEnter/Leave adaptam o lock ao contrato domain.Gate, para o orquestrador
// tratar as duas variantes de admissão da mesma forma.
func (l *OwnerLock) TryEnter(ctx context.Context, jobID string, meta domain.LockMeta) (bool, error) {
	return l.Acquire(ctx, jobID, meta)
}

// Leave ignora "não é dono": depois de um force-release ou expiração de TTL,
// o release tardio do trabalho não deve virar erro.
func (l *OwnerLock) Leave(ctx context.Context, jobID string) error {
	_, err := l.Release(ctx, jobID)
	return err
}
