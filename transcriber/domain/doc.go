// Package domain define contratos e tipos de domínio para a fila de transcrição.
//
// Este pacote não depende de Redis nem de implementações concretas.
// A intenção é permitir testes de unidade puros e desacoplar regras de negócio
// de detalhes de infraestrutura.
package domain
