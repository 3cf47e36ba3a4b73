package engine

import (
	"context"
	"runtime"
	"testing"
)

func TestCommandEngine_ReadsStdout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("depends on a unix echo binary")
	}

	eng := NewCommandEngine("echo", "transcript:")
	res, err := eng.Transcribe(context.Background(), Request{AudioPath: "a.mp3"})
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if res.Text != "transcript: a.mp3" {
		t.Fatalf("unexpected text %q", res.Text)
	}
}

func TestCommandEngine_ParsesDurationFromTimestamps(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("depends on a unix echo binary")
	}

	eng := NewCommandEngine("echo",
		"[00:00:00.000 --> 00:00:05.280] hola [00:00:05.280 --> 00:01:02.500] mundo")
	res, err := eng.Transcribe(context.Background(), Request{AudioPath: "a.mp3"})
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if res.Duration != 62.5 {
		t.Fatalf("expected duration 62.5 from last segment end, got %f", res.Duration)
	}
}

func TestParseMediaDuration(t *testing.T) {
	cases := []struct {
		out  string
		want float64
	}{
		{"sem timestamps", 0},
		{"[00:00:00.000 --> 00:00:05.280] hola", 5.28},
		{"[00:00:00,000 --> 00:00:03,500] virgula", 3.5},
		{"[00:00:00.000 --> 00:00:10.000] a\n[00:00:10.000 --> 00:00:07.000] fora de ordem", 10},
	}
	for _, c := range cases {
		if got := parseMediaDuration(c.out); got != c.want {
			t.Fatalf("parse %q: expected %f, got %f", c.out, c.want, got)
		}
	}
}

func TestCommandEngine_FailureSurfacesStderr(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("depends on a unix shell")
	}

	eng := NewCommandEngine("sh", "-c", "echo oops >&2; exit 1; ignored")
	if _, err := eng.Transcribe(context.Background(), Request{AudioPath: "a.mp3"}); err == nil {
		t.Fatalf("expected error from failing command")
	}
}
