package scheduler

import (
	"sync/atomic"
	"testing"

	"go.uber.org/zap"
)

type countingTask struct{ calls int }

func (t *countingTask) Sweep() { t.calls++ }

func TestNewScheduler_RegistersSweep(t *testing.T) {
	t.Parallel()

	c := NewScheduler(Deps{SweepJob: &countingTask{}, SweepSpec: "*/10 * * * * *"}, nil)
	if got := len(c.Entries()); got != 1 {
		t.Fatalf("expected 1 entry, got %d", got)
	}
}

func TestNewScheduler_SkipsInvalidSpec(t *testing.T) {
	t.Parallel()

	c := NewScheduler(Deps{SweepJob: &countingTask{}, SweepSpec: "not a spec"}, zap.NewNop())
	if got := len(c.Entries()); got != 0 {
		t.Fatalf("expected no entries for an invalid spec, got %d", got)
	}
}

func TestNewScheduler_NoJobs(t *testing.T) {
	t.Parallel()

	if got := len(NewScheduler(Deps{}, nil).Entries()); got != 0 {
		t.Fatalf("expected no entries, got %d", got)
	}
}

func TestParseSpec(t *testing.T) {
	t.Parallel()

	if err := ParseSpec(DefaultSweepSpec); err != nil {
		t.Fatalf("default spec rejected: %v", err)
	}
	if err := ParseSpec("* * * * *"); err == nil {
		t.Fatal("expected five-field spec to be rejected")
	}
}

func TestAddFunc_RecoversPanics(t *testing.T) {
	t.Parallel()

	c := NewScheduler(Deps{}, nil)
	addFunc(c, DefaultSweepSpec, "panicky", zap.NewNop(), func() { panic("boom") })
	entries := c.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entries[0].Job.Run()
}

type blockingTask struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (t *blockingTask) Sweep() {
	if t.calls.Add(1) == 1 {
		close(t.started)
		<-t.release
	}
}

func TestNewScheduler_SkipsSweepWhileRunning(t *testing.T) {
	t.Parallel()

	task := &blockingTask{started: make(chan struct{}), release: make(chan struct{})}
	c := NewScheduler(Deps{SweepJob: task}, zap.NewNop())
	entries := c.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	done := make(chan struct{})
	go func() {
		entries[0].WrappedJob.Run()
		close(done)
	}()
	<-task.started

	entries[0].WrappedJob.Run()
	if got := task.calls.Load(); got != 1 {
		t.Fatalf("expected overlapping sweep to be skipped, got %d calls", got)
	}

	close(task.release)
	<-done
}
