package domain

import "time"

// LockMeta acompanha a aquisição do gate e alimenta o status corrente.
type LockMeta struct {
	Filename string `json:"filename,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

// BusyStatus descreve o trabalho que segura o gate no momento.
type BusyStatus struct {
	JobID              string        `json:"job_id"`
	Filename           string        `json:"filename,omitempty"`
	FileSize           int64         `json:"file_size,omitempty"`
	StartedAt          time.Time     `json:"started_at"`
	Elapsed            time.Duration `json:"elapsed"`
	EstimatedRemaining time.Duration `json:"estimated_remaining"`
}

const (
	// ~2s de relógio por MB de entrada. Estimativa de UX, não contrato de scheduling.
	estimateSecsPerMB = 2
	estimateFloor     = 5 * time.Second
)

// EstimateRemaining calcula o tempo restante estimado para um arquivo de
// `size` bytes com `elapsed` já decorrido: max(5s, 2s*MB - elapsed).
func EstimateRemaining(size int64, elapsed time.Duration) time.Duration {
	mb := float64(size) / (1024 * 1024)
	total := time.Duration(mb * estimateSecsPerMB * float64(time.Second))
	remaining := total - elapsed
	if remaining < estimateFloor {
		return estimateFloor
	}
	return remaining
}
