// Package run holds the shared state of a provisioning run: status,
// progress, the append-only log, and aggregate statistics. A single State
// is owned by the job runner, mutated by the pipeline stages, and read
// concurrently by the HTTP status surface.
package run

import (
	"fmt"
	"sync"
	"time"

	"github.com/brunovh/grainalloc/internal/domain"
)

// State is the process-wide run context. All methods are safe for
// concurrent use. The zero value is not usable; call New.
type State struct {
	mu        sync.RWMutex
	runID     string
	status    domain.RunStatus
	progress  float64
	errText   string
	startedAt *time.Time
	endedAt   *time.Time
	log       []domain.LogEntry
	stats     domain.RunStats

	logSink    func(domain.LogEntry)
	statusSink func(domain.RunSnapshot)
}

// New returns an empty State in the NotStarted status.
func New() *State {
	return &State{status: domain.RunNotStarted}
}

// SetLogSink registers a callback invoked after every log append, outside
// the state lock. Used to fan log lines out to the signal bus.
func (s *State) SetLogSink(fn func(domain.LogEntry)) {
	s.mu.Lock()
	s.logSink = fn
	s.mu.Unlock()
}

// SetStatusSink registers a callback invoked after every status or
// progress change, outside the state lock. The snapshot passed to the
// callback omits the log to keep payloads small.
func (s *State) SetStatusSink(fn func(domain.RunSnapshot)) {
	s.mu.Lock()
	s.statusSink = fn
	s.mu.Unlock()
}

// Begin transitions to Running and resets progress, log, stats, and the
// recorded error. It returns domain.ErrRunActive when a run is already in
// flight, which is the in-process guard against concurrent triggers.
func (s *State) Begin(runID string) error {
	s.mu.Lock()
	if s.status == domain.RunRunning {
		s.mu.Unlock()
		return domain.ErrRunActive
	}
	now := time.Now().UTC()
	s.runID = runID
	s.status = domain.RunRunning
	s.progress = 0
	s.errText = ""
	s.startedAt = &now
	s.endedAt = nil
	s.log = nil
	s.stats = domain.RunStats{
		GrainTotals:    map[string]float64{},
		BuyerDistances: map[string]domain.BuyerDistance{},
	}
	s.mu.Unlock()
	s.notifyStatus()
	return nil
}

// Complete transitions Running -> Completed and pins progress at 100.
func (s *State) Complete() {
	s.mu.Lock()
	if s.status == domain.RunRunning {
		now := time.Now().UTC()
		s.status = domain.RunCompleted
		s.progress = 100
		s.endedAt = &now
	}
	s.mu.Unlock()
	s.notifyStatus()
}

// Fail transitions Running -> Failed and records the failure reason.
func (s *State) Fail(err error) {
	s.mu.Lock()
	if s.status == domain.RunRunning {
		now := time.Now().UTC()
		s.status = domain.RunFailed
		s.endedAt = &now
		if err != nil {
			s.errText = err.Error()
		}
	}
	s.mu.Unlock()
	s.notifyStatus()
}

// SetProgress advances the progress checkpoint. Progress is monotonically
// non-decreasing and only moves while the run is Running.
func (s *State) SetProgress(p float64) {
	s.mu.Lock()
	if s.status == domain.RunRunning && p > s.progress {
		if p > 100 {
			p = 100
		}
		s.progress = p
	}
	s.mu.Unlock()
	s.notifyStatus()
}

// Logf appends a formatted entry to the run log.
func (s *State) Logf(level domain.LogLevel, format string, args ...any) {
	entry := domain.LogEntry{
		Time:    time.Now().UTC(),
		Level:   level,
		Message: fmt.Sprintf(format, args...),
	}

	s.mu.Lock()
	s.log = append(s.log, entry)
	sink := s.logSink
	s.mu.Unlock()

	if sink != nil {
		sink(entry)
	}
}

// Infof appends an INFO entry.
func (s *State) Infof(format string, args ...any) {
	s.Logf(domain.LogInfo, format, args...)
}

// Warnf appends a WARNING entry.
func (s *State) Warnf(format string, args ...any) {
	s.Logf(domain.LogWarning, format, args...)
}

// Errorf appends an ERROR entry.
func (s *State) Errorf(format string, args ...any) {
	s.Logf(domain.LogError, format, args...)
}

// UpdateStats applies fn to the stats record under the state lock.
func (s *State) UpdateStats(fn func(*domain.RunStats)) {
	s.mu.Lock()
	fn(&s.stats)
	s.mu.Unlock()
}

// Status returns the current run status.
func (s *State) Status() domain.RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Snapshot returns a deep copy of the full run state, safe to serialize
// while the run keeps mutating.
func (s *State) Snapshot() domain.RunSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(true)
}

func (s *State) snapshotLocked(withLog bool) domain.RunSnapshot {
	snap := domain.RunSnapshot{
		RunID:    s.runID,
		Status:   s.status,
		Progress: s.progress,
		Error:    s.errText,
		Stats:    copyStats(s.stats),
	}
	if s.startedAt != nil {
		t := *s.startedAt
		snap.StartedAt = &t
	}
	if s.endedAt != nil {
		t := *s.endedAt
		snap.EndedAt = &t
	}
	if withLog {
		snap.Log = append([]domain.LogEntry(nil), s.log...)
	}
	return snap
}

func (s *State) notifyStatus() {
	s.mu.RLock()
	sink := s.statusSink
	var snap domain.RunSnapshot
	if sink != nil {
		snap = s.snapshotLocked(false)
	}
	s.mu.RUnlock()

	if sink != nil {
		sink(snap)
	}
}

func copyStats(in domain.RunStats) domain.RunStats {
	out := in
	out.GrainTotals = make(map[string]float64, len(in.GrainTotals))
	for k, v := range in.GrainTotals {
		out.GrainTotals[k] = v
	}
	out.BuyerDistances = make(map[string]domain.BuyerDistance, len(in.BuyerDistances))
	for k, v := range in.BuyerDistances {
		out.BuyerDistances[k] = v
	}
	return out
}
