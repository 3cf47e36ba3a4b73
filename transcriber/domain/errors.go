package domain

import (
	"errors"
	"fmt"
)

// Taxonomia de erros do núcleo.
//
// Ausência de registro NÃO entra aqui: consultas devolvem (nil, false, nil),
// porque expiração por TTL é rotina, não exceção.

// ErrInvalidTransition sinaliza tentativa de regredir um status terminal.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrNotOwner sinaliza release de um lock que pertence a outro trabalho.
var ErrNotOwner = errors.New("lock not owned by this job")

// ValidationError é devolvido antes de qualquer escrita quando a entrada é inválida.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

// BusyError é a negação do gate. Sempre carrega o estado atual (quando houver)
// para o chamador decidir sobre retry — "ocupado" é diferente de falha dura.
type BusyError struct {
	Current *BusyStatus
}

func (e *BusyError) Error() string {
	if e.Current != nil && e.Current.JobID != "" {
		return fmt.Sprintf("busy: job %s in progress", e.Current.JobID)
	}
	return "busy: another job in progress"
}

// IsBusy reporta se err (ou algo na cadeia) é uma negação do gate.
func IsBusy(err error) bool {
	var be *BusyError
	return errors.As(err, &be)
}
