package migrate

import (
	"log/slog"

	"github.com/hyperengineering/cadence/internal/legacy"
)

// Observer receives progress callbacks during a migration run. Callbacks
// fire synchronously from the orchestrator goroutine.
type Observer interface {
	OnState(runID string, state State)
	OnHabit(runID, habitID string, progressRows int)
	OnDiagnostic(runID string, d legacy.Diagnostic)
	OnComplete(runID string, sum *Summary)
	OnError(runID string, state State, err error)
}

// NopObserver discards all callbacks.
type NopObserver struct{}

func (NopObserver) OnState(string, State)                  {}
func (NopObserver) OnHabit(string, string, int)            {}
func (NopObserver) OnDiagnostic(string, legacy.Diagnostic) {}
func (NopObserver) OnComplete(string, *Summary)            {}
func (NopObserver) OnError(string, State, error)           {}

// LogObserver reports migration progress through slog.
type LogObserver struct{}

func (LogObserver) OnState(runID string, state State) {
	slog.Info("migration state change",
		"component", "migrate", "run_id", runID, "state", string(state))
}

func (LogObserver) OnHabit(runID, habitID string, progressRows int) {
	slog.Debug("habit migrated",
		"component", "migrate", "run_id", runID,
		"habit_id", habitID, "progress_rows", progressRows)
}

func (LogObserver) OnDiagnostic(runID string, d legacy.Diagnostic) {
	slog.Warn("legacy decode diagnostic",
		"component", "migrate", "run_id", runID,
		"habit_id", d.HabitID, "field", d.Field,
		"input", d.Input, "detail", d.Message)
}

func (LogObserver) OnComplete(runID string, sum *Summary) {
	slog.Info("migration complete",
		"component", "migrate", "run_id", runID,
		"state", string(sum.State), "dry_run", sum.DryRun,
		"habits_migrated", sum.HabitsMigrated,
		"progress_rows", sum.ProgressRows,
		"skipped_days", sum.SkippedDays)
}

func (LogObserver) OnError(runID string, state State, err error) {
	slog.Error("migration error",
		"component", "migrate", "run_id", runID,
		"state", string(state), "error", err)
}
