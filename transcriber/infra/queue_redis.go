package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// requeueScript devolve um id de processing para a cauda de pending em um
// único passo no servidor. Feito em duas chamadas, uma queda entre o LREM e
// o LPUSH perderia o trabalho das duas listas.
var requeueScript = redis.NewScript(`
local n = redis.call("LREM", KEYS[1], 0, ARGV[1])
if n > 0 then
  redis.call("LPUSH", KEYS[2], ARGV[1])
end
return n
`)

// FIFOQueue implementa a fila de admissão sobre duas listas Redis:
// pending (LPUSH na cauda lógica) e processing.
//
// A movimentação pending -> processing usa BRPOPLPUSH, uma única operação
// indivisível no servidor: nenhum id se perde ou duplica entre as listas.
type FIFOQueue struct {
	rdb  *redis.Client
	keys Keys
}

func NewFIFOQueue(rdb *redis.Client, keys Keys) *FIFOQueue {
	return &FIFOQueue{rdb: rdb, keys: keys}
}

// Enqueue adiciona o id na cauda e devolve a posição 1-based contada a partir
// da cabeça entre os ids atualmente na fila. A posição é recalculada ao vivo
// a cada consulta, não é um número de sequência permanente.
func (q *FIFOQueue) Enqueue(ctx context.Context, id string) (int, error) {
	n, err := q.rdb.LPush(ctx, q.keys.Pending(), id).Result()
	if err != nil {
		return 0, fmt.Errorf("enqueue %s: %w", id, err)
	}
	// LPUSH empilha à esquerda e BRPOPLPUSH consome pela direita,
	// então o recém-chegado é o último da fila: posição == tamanho.
	return int(n), nil
}

// DequeueBlocking espera até `timeout` pela cabeça de pending e a move
// atomicamente para processing. ("", false, nil) significa timeout.
//
// Após uma falha ambígua (erro de rede no meio da chamada) a operação NÃO
// deve ser repetida às cegas: um retry ingênuo pode fazer double-pop.
func (q *FIFOQueue) DequeueBlocking(ctx context.Context, timeout time.Duration) (string, bool, error) {
	id, err := q.rdb.BRPopLPush(ctx, q.keys.Pending(), q.keys.Processing(), timeout).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("dequeue: %w", err)
	}
	return id, true, nil
}

// PositionOf faz varredura linear de pending (profundidade esperada em
// centenas, não milhões). (0, false, nil) quando o id não está na fila.
func (q *FIFOQueue) PositionOf(ctx context.Context, id string) (int, bool, error) {
	ids, err := q.rdb.LRange(ctx, q.keys.Pending(), 0, -1).Result()
	if err != nil {
		return 0, false, fmt.Errorf("position of %s: %w", id, err)
	}
	// LRANGE devolve da esquerda (mais novo) para a direita (cabeça).
	for i, v := range ids {
		if v == id {
			return len(ids) - i, true, nil
		}
	}
	return 0, false, nil
}

// Ack remove o id da lista de processing após o desfecho do trabalho.
func (q *FIFOQueue) Ack(ctx context.Context, id string) error {
	if err := q.rdb.LRem(ctx, q.keys.Processing(), 0, id).Err(); err != nil {
		return fmt.Errorf("ack %s: %w", id, err)
	}
	return nil
}

// Requeue move o id de processing de volta para a cauda de pending,
// atomicamente. (false, nil) quando o id não estava em processing; nesse
// caso nada é empilhado, para não duplicar um id já devolvido.
func (q *FIFOQueue) Requeue(ctx context.Context, id string) (bool, error) {
	n, err := requeueScript.Run(ctx, q.rdb,
		[]string{q.keys.Processing(), q.keys.Pending()}, id).Int()
	if err != nil {
		return false, fmt.Errorf("requeue %s: %w", id, err)
	}
	return n > 0, nil
}

// Remove tira o id de pending e processing (deleção explícita de trabalho).
func (q *FIFOQueue) Remove(ctx context.Context, id string) (bool, error) {
	pipe := q.rdb.Pipeline()
	pending := pipe.LRem(ctx, q.keys.Pending(), 0, id)
	processing := pipe.LRem(ctx, q.keys.Processing(), 0, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("remove %s: %w", id, err)
	}
	return pending.Val() > 0 || processing.Val() > 0, nil
}

func (q *FIFOQueue) Depth(ctx context.Context) (int64, int64, error) {
	pipe := q.rdb.Pipeline()
	pending := pipe.LLen(ctx, q.keys.Pending())
	processing := pipe.LLen(ctx, q.keys.Processing())
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("queue depth: %w", err)
	}
	return pending.Val(), processing.Val(), nil
}

// historyCap limita as listas de histórico (completed/failed).
const historyCap = 100

// Archive empilha o id no histórico de desfechos, mais recente primeiro,
// com a lista aparada no limite.
func (q *FIFOQueue) Archive(ctx context.Context, id string, ok bool) error {
	key := q.keys.Completed()
	if !ok {
		key = q.keys.Failed()
	}
	pipe := q.rdb.Pipeline()
	pipe.LPush(ctx, key, id)
	pipe.LTrim(ctx, key, 0, historyCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("archive %s: %w", id, err)
	}
	return nil
}

// RecentIDs lista os desfechos mais recentes (completed ou failed).
func (q *FIFOQueue) RecentIDs(ctx context.Context, ok bool, limit int) ([]string, error) {
	key := q.keys.Completed()
	if !ok {
		key = q.keys.Failed()
	}
	ids, err := q.rdb.LRange(ctx, key, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("recent ids: %w", err)
	}
	return ids, nil
}

// PendingIDs lista os ids pendentes em ordem de atendimento (cabeça primeiro).
func (q *FIFOQueue) PendingIDs(ctx context.Context, limit int) ([]string, error) {
	ids, err := q.rdb.LRange(ctx, q.keys.Pending(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("pending ids: %w", err)
	}
	// inverte: LRANGE vem do mais novo para a cabeça.
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}
