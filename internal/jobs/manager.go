package jobs

import (
	"errors"
	"fmt"
	"sync"

	"subgen/internal/domain"
)

// ErrJobInProgress is returned when starting a second active job.
var ErrJobInProgress = errors.New("job already in progress")

// ErrNoRunningJob is returned when cancel is requested for idle state.
var ErrNoRunningJob = errors.New("no running job")

// ErrNotCancellable is returned when the active job has passed its last
// cancellation checkpoint.
var ErrNotCancellable = errors.New("job can no longer be cancelled")

// Manager tracks the single allowed active job and its transitions.
type Manager struct {
	mu      sync.RWMutex
	current domain.Job
}

// NewManager creates a manager in idle state.
func NewManager() *Manager {
	return &Manager{
		current: domain.Job{
			Status: domain.JobStatusIdle,
		},
	}
}

// Start registers a new job and moves it to the extracting stage.
// Fails fast with ErrJobInProgress while another job is active; the
// running job is left untouched.
func (m *Manager) Start(job domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if isRunning(m.current.Status) {
		return ErrJobInProgress
	}

	job.Status = domain.JobStatusExtracting
	m.current = job
	return nil
}

// Transition validates and applies state transitions for current job.
func (m *Manager) Transition(status domain.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.ID == "" && status != domain.JobStatusIdle {
		return fmt.Errorf("cannot transition without an active job")
	}
	if status == m.current.Status {
		return nil
	}
	if !isValidTransition(m.current.Status, status) {
		return fmt.Errorf("invalid transition: %s -> %s", m.current.Status, status)
	}

	m.current.Status = status
	return nil
}

// SetOutputPath records the written subtitle path on the current job.
func (m *Manager) SetOutputPath(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.OutputPath = path
}

// Current returns a snapshot of the current job.
func (m *Manager) Current() domain.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Reset clears job metadata and returns manager to idle.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = domain.Job{Status: domain.JobStatusIdle}
}

// IsRunning reports whether the current state is an active stage.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return isRunning(m.current.Status)
}

// Cancel moves an active job to cancelled state. Only extraction and
// transcription honor cancellation; formatting and writing run to
// completion once started.
func (m *Manager) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !isRunning(m.current.Status) {
		return ErrNoRunningJob
	}
	if !isCancellable(m.current.Status) {
		return ErrNotCancellable
	}
	m.current.Status = domain.JobStatusCancelled
	return nil
}

// isRunning checks if a status represents active pipeline execution.
func isRunning(status domain.JobStatus) bool {
	switch status {
	case domain.JobStatusExtracting, domain.JobStatusTranscribing,
		domain.JobStatusFormatting, domain.JobStatusWriting:
		return true
	default:
		return false
	}
}

// isCancellable checks whether a stage still has a cancellation checkpoint.
func isCancellable(status domain.JobStatus) bool {
	return status == domain.JobStatusExtracting || status == domain.JobStatusTranscribing
}

// isValidTransition enforces the allowed job state machine edges.
func isValidTransition(from, to domain.JobStatus) bool {
	switch from {
	case domain.JobStatusIdle:
		return to == domain.JobStatusExtracting
	case domain.JobStatusExtracting:
		return to == domain.JobStatusTranscribing || to == domain.JobStatusFailed || to == domain.JobStatusCancelled
	case domain.JobStatusTranscribing:
		return to == domain.JobStatusFormatting || to == domain.JobStatusFailed || to == domain.JobStatusCancelled
	case domain.JobStatusFormatting:
		return to == domain.JobStatusWriting || to == domain.JobStatusFailed
	case domain.JobStatusWriting:
		return to == domain.JobStatusDone || to == domain.JobStatusFailed
	case domain.JobStatusDone, domain.JobStatusFailed, domain.JobStatusCancelled:
		return to == domain.JobStatusExtracting || to == domain.JobStatusIdle
	default:
		return false
	}
}
