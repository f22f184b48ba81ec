package engine

import "sync"

// TaskTracker is the in-memory active-task set the Scheduler consults
// during graceful shutdown (SPEC_FULL.md section 12, supplemented from
// tg-upload-lightweight-bot.py's module-level ACTIVE_TASKS set). Unlike
// a bare sync.WaitGroup, it also exposes the live task names for
// shutdown-stall diagnostics.
type TaskTracker struct {
	mu    sync.Mutex
	tasks map[string]int
}

// NewTaskTracker returns an empty tracker.
func NewTaskTracker() *TaskTracker {
	return &TaskTracker{tasks: make(map[string]int)}
}

// Start registers one running instance of name and returns a func that
// must be deferred to mark it finished.
func (t *TaskTracker) Start(name string) func() {
	t.mu.Lock()
	t.tasks[name]++
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		t.tasks[name]--
		if t.tasks[name] <= 0 {
			delete(t.tasks, name)
		}
		t.mu.Unlock()
	}
}

// Count returns the number of currently active tasks.
func (t *TaskTracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, c := range t.tasks {
		n += c
	}
	return n
}

// Names returns a snapshot of the currently active task names, for
// shutdown-stall log lines.
func (t *TaskTracker) Names() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	names := make([]string, 0, len(t.tasks))
	for name := range t.tasks {
		names = append(names, name)
	}
	return names
}
