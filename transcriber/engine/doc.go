// Package engine abstrai o handle de computação caro (o modelo de
// transcrição) e seu ciclo de vida.
//
// Três modos de gerência, escolhidos por deployment:
//
//   - FixedPool: N handles independentes pré-criados; tabela de slots com
//     bitmask de disponibilidade. Esgotamento é backpressure, não erro.
//   - AlwaysLoaded: um handle criado no startup e nunca descarregado,
//     compartilhado com contador de usuários limitado.
//   - Lazy: criado no primeiro uso (criações concorrentes compartilham a
//     mesma criação via singleflight) e descarregado após ociosidade.
//
// A execução em si (Run) acontece em goroutine dedicada, fora do caminho de
// atendimento de requisições: o contexto do chamador pode desistir da espera,
// mas não interrompe a computação já iniciada.
package engine
