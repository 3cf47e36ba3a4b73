package infra

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Scratch administra o diretório de artefatos temporários por trabalho.
// Arquivos são nomeados "<job_id>_<filename>" para permitir remoção por id.
type Scratch struct {
	dir          string
	maxAge       time.Duration
	cleanupEvery time.Duration
	log          zerolog.Logger
}

type ScratchOption func(*Scratch)

func WithScratchMaxAge(d time.Duration) ScratchOption {
	return func(s *Scratch) { s.maxAge = d }
}

func WithScratchCleanupEvery(d time.Duration) ScratchOption {
	return func(s *Scratch) { s.cleanupEvery = d }
}

func NewScratch(dir string, log zerolog.Logger, opts ...ScratchOption) (*Scratch, error) {
	s := &Scratch{
		dir:          dir,
		maxAge:       30 * time.Minute,
		cleanupEvery: 5 * time.Minute,
		log:          log,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("scratch dir: %w", err)
	}
	return s, nil
}

func (s *Scratch) Dir() string { return s.dir }

// Path devolve o caminho do artefato de um trabalho.
func (s *Scratch) Path(jobID, filename string) string {
	return filepath.Join(s.dir, jobID+"_"+filepath.Base(filename))
}

// Remove apaga (best-effort) todos os artefatos do trabalho.
func (s *Scratch) Remove(jobID string) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("scratch remove %s: %w", jobID, err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), jobID+"_") {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			s.log.Warn().Err(err).Str("file", e.Name()).Msg("scratch remove failed")
		}
	}
	return nil
}

// Sweep apaga arquivos mais velhos que maxAge e devolve quantos removeu.
func (s *Scratch) Sweep() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("scratch sweep: %w", err)
	}

	cutoff := time.Now().Add(-s.maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
				s.log.Warn().Err(err).Str("file", e.Name()).Msg("scratch sweep failed")
				continue
			}
			removed++
		}
	}
	if removed > 0 {
		s.log.Info().Int("removed", removed).Msg("scratch sweep")
	}
	return removed, nil
}

// StartJanitor varre o diretório periodicamente. Pare cancelando o contexto.
func (s *Scratch) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_, _ = s.Sweep()
			}
		}
	}()
}
