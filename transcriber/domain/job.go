package domain

// Camada de domínio da fila de trabalhos.
//
// Regras e tipos (status, transições, validação) sem dependência de Redis.

import (
	"path/filepath"
	"strings"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal indica se o status é final (completed/failed).
// Um trabalho em estado terminal nunca volta para pending/processing.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition valida as arestas permitidas da máquina de estados:
// pending -> processing -> {completed | failed}.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusPending:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}

// Result é a saída do motor de transcrição para um trabalho.
type Result struct {
	Text                string  `json:"text"`
	Duration            float64 `json:"duration"`
	ProcessingTime      float64 `json:"processing_time"`
	Speed               float64 `json:"speed"`
	Language            string  `json:"language,omitempty"`
	LanguageProbability float64 `json:"language_probability,omitempty"`
}

// Job é o registro durável de um trabalho de transcrição.
//
// O registro vive no store com TTL; ausência após expirar é um resultado
// normal de consulta, não um erro.
type Job struct {
	ID          string     `json:"job_id"`
	Status      Status     `json:"status"`
	Filename    string     `json:"filename,omitempty"`
	FileSize    int64      `json:"file_size,omitempty"`
	Path        string     `json:"path,omitempty"`
	Language    string     `json:"language,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Result      *Result    `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// ValidateSubmission rejeita entrada inválida antes de qualquer mutação de estado.
// maxSize <= 0 desliga o limite de tamanho; exts vazio aceita qualquer extensão.
func ValidateSubmission(filename string, size int64, maxSize int64, exts []string) error {
	if strings.TrimSpace(filename) == "" {
		return &ValidationError{Field: "filename", Reason: "must not be empty"}
	}
	if size <= 0 {
		return &ValidationError{Field: "file_size", Reason: "must be > 0"}
	}
	if maxSize > 0 && size > maxSize {
		return &ValidationError{Field: "file_size", Reason: "exceeds maximum allowed size"}
	}
	if len(exts) > 0 {
		ext := strings.ToLower(filepath.Ext(filename))
		for _, e := range exts {
			if ext == strings.ToLower(e) {
				return nil
			}
		}
		return &ValidationError{Field: "filename", Reason: "extension not allowed"}
	}
	return nil
}
