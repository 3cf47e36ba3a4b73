package engine

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// CommandEngine delega a transcrição a um binário externo (ex: whisper-cli),
// lendo o texto do stdout. É o adapter padrão do serviço; o contrato Engine
// permite trocá-lo por qualquer outro motor.
//
// A duração da mídia é extraída das linhas com timestamp no formato do
// whisper.cpp ("[hh:mm:ss.mmm --> hh:mm:ss.mmm]"): o maior fim observado é a
// duração. Saída sem timestamps deixa Duration (e portanto Speed) em zero.
type CommandEngine struct {
	Bin  string
	Args []string
}

func NewCommandEngine(bin string, args ...string) *CommandEngine {
	return &CommandEngine{Bin: bin, Args: args}
}

func (c *CommandEngine) Transcribe(ctx context.Context, req Request) (*Result, error) {
	args := make([]string, 0, len(c.Args)+3)
	args = append(args, c.Args...)
	if req.Language != "" {
		args = append(args, "--language", req.Language)
	}
	args = append(args, req.AudioPath)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("transcribe %s: %s", req.AudioPath, msg)
	}

	out := stdout.String()
	return &Result{
		Text:     strings.TrimSpace(out),
		Duration: parseMediaDuration(out),
		Language: req.Language,
	}, nil
}

func (c *CommandEngine) Close() error { return nil }

var timestampEnd = regexp.MustCompile(`--> (\d{2}):(\d{2}):(\d{2})[.,](\d{3})\]`)

// parseMediaDuration devolve, em segundos, o maior fim de segmento presente
// na saída; 0 quando não há timestamps.
func parseMediaDuration(out string) float64 {
	var max float64
	for _, m := range timestampEnd.FindAllStringSubmatch(out, -1) {
		h, _ := strconv.Atoi(m[1])
		mi, _ := strconv.Atoi(m[2])
		s, _ := strconv.Atoi(m[3])
		ms, _ := strconv.Atoi(m[4])
		end := float64(h*3600+mi*60+s) + float64(ms)/1000
		if end > max {
			max = end
		}
	}
	return max
}
