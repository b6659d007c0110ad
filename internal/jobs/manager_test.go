package jobs

import (
	"errors"
	"testing"

	"subgen/internal/domain"
)

// TestManagerLifecycle verifies normal progression to done state.
func TestManagerLifecycle(t *testing.T) {
	m := NewManager()
	if m.IsRunning() {
		t.Fatal("new manager should be idle")
	}

	if err := m.Start(domain.Job{ID: "job-1", VideoPath: "/v.mp4", Format: domain.FormatSRT}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !m.IsRunning() {
		t.Fatal("expected running after start")
	}

	for _, status := range []domain.JobStatus{
		domain.JobStatusTranscribing,
		domain.JobStatusFormatting,
		domain.JobStatusWriting,
		domain.JobStatusDone,
	} {
		if err := m.Transition(status); err != nil {
			t.Fatalf("transition to %s: %v", status, err)
		}
	}

	current := m.Current()
	if current.Status != domain.JobStatusDone {
		t.Fatalf("current status = %s, want done", current.Status)
	}
	if current.VideoPath != "/v.mp4" {
		t.Fatalf("job inputs lost: %+v", current)
	}
}

// TestManagerRejectsSecondStart verifies the single-job invariant and
// that the running job is untouched by the rejected request.
func TestManagerRejectsSecondStart(t *testing.T) {
	m := NewManager()
	if err := m.Start(domain.Job{ID: "job-1"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Transition(domain.JobStatusTranscribing); err != nil {
		t.Fatalf("transition: %v", err)
	}

	if err := m.Start(domain.Job{ID: "job-2"}); !errors.Is(err, ErrJobInProgress) {
		t.Fatalf("second start error = %v, want %v", err, ErrJobInProgress)
	}

	current := m.Current()
	if current.ID != "job-1" || current.Status != domain.JobStatusTranscribing {
		t.Fatalf("running job altered: %+v", current)
	}
}

// TestManagerRejectsInvalidTransition checks state machine constraints.
func TestManagerRejectsInvalidTransition(t *testing.T) {
	m := NewManager()
	if err := m.Start(domain.Job{ID: "job-1"}); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := m.Transition(domain.JobStatusDone); err == nil {
		t.Fatal("expected invalid transition error")
	}
	if err := m.Transition(domain.JobStatusWriting); err == nil {
		t.Fatal("extracting -> writing should be rejected")
	}
}

// TestManagerCancelCheckpoints verifies cancel is honored only during
// extraction and transcription.
func TestManagerCancelCheckpoints(t *testing.T) {
	m := NewManager()
	if err := m.Start(domain.Job{ID: "job-1"}); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := m.Cancel(); err != nil {
		t.Fatalf("cancel during extraction: %v", err)
	}
	if m.Current().Status != domain.JobStatusCancelled {
		t.Fatalf("status = %s, want cancelled", m.Current().Status)
	}

	if err := m.Cancel(); !errors.Is(err, ErrNoRunningJob) {
		t.Fatalf("second cancel error = %v, want %v", err, ErrNoRunningJob)
	}
}

// TestManagerCancelRejectedWhileWriting checks the last checkpoint has passed.
func TestManagerCancelRejectedWhileWriting(t *testing.T) {
	m := NewManager()
	if err := m.Start(domain.Job{ID: "job-1"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	for _, status := range []domain.JobStatus{
		domain.JobStatusTranscribing,
		domain.JobStatusFormatting,
		domain.JobStatusWriting,
	} {
		if err := m.Transition(status); err != nil {
			t.Fatalf("transition to %s: %v", status, err)
		}
	}

	if err := m.Cancel(); !errors.Is(err, ErrNotCancellable) {
		t.Fatalf("cancel error = %v, want %v", err, ErrNotCancellable)
	}
	if m.Current().Status != domain.JobStatusWriting {
		t.Fatalf("status = %s, want writing", m.Current().Status)
	}
}

// TestManagerRestartAfterTerminal verifies a new job may start after done.
func TestManagerRestartAfterTerminal(t *testing.T) {
	m := NewManager()
	if err := m.Start(domain.Job{ID: "job-1"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Cancel(); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if err := m.Start(domain.Job{ID: "job-2"}); err != nil {
		t.Fatalf("restart after cancel: %v", err)
	}
	if m.Current().ID != "job-2" {
		t.Fatalf("current job = %s, want job-2", m.Current().ID)
	}
}
