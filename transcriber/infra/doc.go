// Package infra contém as implementações concretas dos contratos de domain:
// store de trabalhos, fila FIFO, semáforo contador, lock binário e estatísticas,
// todos em cima de Redis (go-redis/v9), além de utilitários de apoio
// (throttle de submissão, diretório scratch).
//
// Disciplina de concorrência: todo estado compartilhado entre chamadores
// concorrentes é mutado apenas por operações atômicas do lado do servidor
// (BRPOPLPUSH, SET NX EX, scripts Lua de check-then-add e compare-and-delete).
// Nenhum caller faz read-then-write em duas idas ao Redis.
package infra
