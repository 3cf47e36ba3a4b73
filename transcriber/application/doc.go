// Package application contém os casos de uso da fila de transcrição.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de Redis)
//   - infra: implementações concretas (store, fila, gate, estatísticas) em Redis
//   - engine: ciclo de vida do handle de computação caro
//   - application (este pacote): orquestração — submit, claim, desfecho, status
//
// Fluxo de um trabalho:
//
//  1. Submit: valida -> grava o registro -> enfileira -> incrementa stats
//     (nesta ordem: o registro precisa existir antes do id aparecer na fila)
//  2. Worker: DequeueBlocking move pending -> processing atomicamente
//  3. ClaimAndProcess: gate -> engine -> run -> releases garantidos -> desfecho
//  4. Registro terminal (completed/failed) com TTL; expirar depois é rotina.
//
// O caminho de admissão é logicamente single-threaded na borda do
// orquestrador; a computação roda em goroutine própria via engine.Run.
package application
