package domain

import (
	"testing"
	"time"
)

func TestCanTransition_HappyPath(t *testing.T) {
	if !CanTransition(StatusPending, StatusProcessing) {
		t.Fatalf("expected pending -> processing to be allowed")
	}
	if !CanTransition(StatusProcessing, StatusCompleted) {
		t.Fatalf("expected processing -> completed to be allowed")
	}
	if !CanTransition(StatusProcessing, StatusFailed) {
		t.Fatalf("expected processing -> failed to be allowed")
	}
}

func TestCanTransition_TerminalNeverRegresses(t *testing.T) {
	for _, terminal := range []Status{StatusCompleted, StatusFailed} {
		for _, to := range []Status{StatusPending, StatusProcessing} {
			if CanTransition(terminal, to) {
				t.Fatalf("expected %s -> %s to be rejected", terminal, to)
			}
		}
	}
}

func TestCanTransition_PendingCannotSkipToTerminal(t *testing.T) {
	if CanTransition(StatusPending, StatusCompleted) {
		t.Fatalf("expected pending -> completed to be rejected")
	}
	if CanTransition(StatusPending, StatusFailed) {
		t.Fatalf("expected pending -> failed to be rejected")
	}
}

func TestValidateSubmission_RejectsEmptyFilename(t *testing.T) {
	err := ValidateSubmission("", 100, 0, nil)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if _, ok := err.(*ValidationError); !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
}

func TestValidateSubmission_RejectsZeroSize(t *testing.T) {
	if err := ValidateSubmission("a.mp3", 0, 0, nil); err == nil {
		t.Fatalf("expected validation error for size=0")
	}
}

func TestValidateSubmission_RejectsOversized(t *testing.T) {
	if err := ValidateSubmission("a.mp3", 11, 10, nil); err == nil {
		t.Fatalf("expected validation error for oversized file")
	}
}

func TestValidateSubmission_ExtensionFilter(t *testing.T) {
	exts := []string{".mp3", ".wav"}
	if err := ValidateSubmission("a.MP3", 10, 0, exts); err != nil {
		t.Fatalf("expected .MP3 to be accepted (case-insensitive): %v", err)
	}
	if err := ValidateSubmission("a.exe", 10, 0, exts); err == nil {
		t.Fatalf("expected .exe to be rejected")
	}
}

func TestEstimateRemaining_TenMB(t *testing.T) {
	// 10MB a ~2s/MB => total 20s; sem tempo decorrido, restante ~20s.
	size := int64(10 * 1024 * 1024)

	got := EstimateRemaining(size, 0)
	if got != 20*time.Second {
		t.Fatalf("expected 20s remaining, got %s", got)
	}

	got = EstimateRemaining(size, 12*time.Second)
	if got != 8*time.Second {
		t.Fatalf("expected 8s remaining, got %s", got)
	}
}

func TestEstimateRemaining_Floor(t *testing.T) {
	size := int64(10 * 1024 * 1024)

	// elapsed já passou do total estimado: aplica piso de 5s.
	got := EstimateRemaining(size, 30*time.Second)
	if got != 5*time.Second {
		t.Fatalf("expected 5s floor, got %s", got)
	}

	// arquivo minúsculo também cai no piso.
	if got := EstimateRemaining(1024, 0); got != 5*time.Second {
		t.Fatalf("expected 5s floor for tiny file, got %s", got)
	}
}

func TestBusyError_CarriesCurrentJob(t *testing.T) {
	err := &BusyError{Current: &BusyStatus{JobID: "abc"}}
	if !IsBusy(err) {
		t.Fatalf("expected IsBusy to be true")
	}
	if err.Error() == "" {
		t.Fatalf("expected non-empty message")
	}
}
