package infra

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/johnnybonaci/susurro/transcriber/domain"
)

// enterScript faz check-then-insert em um único passo no servidor.
// Dividir a checagem e o SADD em duas idas permitiria que dois chamadores
// passassem juntos pela checagem da última vaga.
var enterScript = redis.NewScript(`
if redis.call("SISMEMBER", KEYS[1], ARGV[2]) == 1 then
  return 1
end
if redis.call("SCARD", KEYS[1]) < tonumber(ARGV[1]) then
  redis.call("SADD", KEYS[1], ARGV[2])
  return 1
end
return 0
`)

// Semaphore é o gate contador: um set Redis limitado a max membros.
// Invariante: |set| <= max em qualquer instante.
type Semaphore struct {
	rdb  *redis.Client
	keys Keys
	max  int
}

func NewSemaphore(rdb *redis.Client, keys Keys, max int) *Semaphore {
	if max <= 0 {
		max = 1
	}
	return &Semaphore{rdb: rdb, keys: keys, max: max}
}

// TryEnter é não-bloqueante; negação volta na hora. meta é ignorada
// nesta variante. Reentrada do mesmo id é concedida (SADD idempotente).
func (s *Semaphore) TryEnter(ctx context.Context, jobID string, _ domain.LockMeta) (bool, error) {
	res, err := enterScript.Run(ctx, s.rdb, []string{s.keys.Gate()}, s.max, jobID).Int()
	if err != nil {
		return false, fmt.Errorf("gate enter %s: %w", jobID, err)
	}
	return res == 1, nil
}

// Leave remove incondicionalmente o id do set.
func (s *Semaphore) Leave(ctx context.Context, jobID string) error {
	if err := s.rdb.SRem(ctx, s.keys.Gate(), jobID).Err(); err != nil {
		return fmt.Errorf("gate leave %s: %w", jobID, err)
	}
	return nil
}

// Active devolve quantos trabalhos seguram o gate agora.
func (s *Semaphore) Active(ctx context.Context) (int64, error) {
	n, err := s.rdb.SCard(ctx, s.keys.Gate()).Result()
	if err != nil {
		return 0, fmt.Errorf("gate active: %w", err)
	}
	return n, nil
}

func (s *Semaphore) Max() int { return s.max }
