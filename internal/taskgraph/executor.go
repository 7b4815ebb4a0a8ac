package taskgraph

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/sitesmith/internal/errors"
	"github.com/conneroisu/sitesmith/internal/logging"
)

// Status is the lifecycle state reported in an Event.
type Status int

const (
	StatusStarted Status = iota
	StatusSucceeded
	StatusFailed
	StatusSkipped
)

// String returns the string representation of the Status
func (s Status) String() string {
	switch s {
	case StatusStarted:
		return "started"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Event is published for every task the executor touches.
type Event struct {
	Task     string
	Status   Status
	Outputs  []string
	Err      error
	Duration time.Duration
	Time     time.Time
}

// Subscriber receives executor events. It is called synchronously on the
// goroutine running the task and must not block.
type Subscriber func(Event)

// TaskFailure records why a task did not complete.
type TaskFailure struct {
	Task string
	Err  error
	// Skipped is true when the body never ran because a prerequisite failed.
	Skipped bool
}

// RunError is returned by Run when at least one task failed.
type RunError struct {
	Failures []TaskFailure
}

// Error lists root failures first, then the tasks that were skipped.
func (e *RunError) Error() string {
	var roots, skipped []string
	for _, f := range e.Failures {
		if f.Skipped {
			skipped = append(skipped, f.Task)
			continue
		}
		roots = append(roots, fmt.Sprintf("task %q failed: %v", f.Task, f.Err))
	}

	msg := strings.Join(roots, "; ")
	if len(skipped) > 0 {
		if msg != "" {
			msg += "; "
		}
		msg += "skipped after failed prerequisites: " + strings.Join(skipped, ", ")
	}

	return msg
}

// Unwrap exposes the underlying task errors to errors.Is and errors.As.
func (e *RunError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f.Err)
	}

	return out
}

// FailedTasks returns the names of tasks whose own body failed.
func (e *RunError) FailedTasks() []string {
	var out []string
	for _, f := range e.Failures {
		if !f.Skipped {
			out = append(out, f.Task)
		}
	}

	return out
}

// Executor runs tasks of a Graph. Each call to Run is independent: a task runs
// at most once per call, and concurrent calls share nothing but subscribers.
type Executor struct {
	graph  *Graph
	logger logging.Logger

	mu          sync.RWMutex
	subscribers []Subscriber
}

// NewExecutor creates an executor for g.
func NewExecutor(g *Graph, logger logging.Logger) *Executor {
	if logger == nil {
		logger = logging.NopLogger{}
	}

	return &Executor{
		graph:  g,
		logger: logger.WithComponent("executor"),
	}
}

// Graph returns the graph the executor runs.
func (e *Executor) Graph() *Graph {
	return e.graph
}

// Subscribe registers fn for all future events.
func (e *Executor) Subscribe(fn Subscriber) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscribers = append(e.subscribers, fn)
}

func (e *Executor) publish(ev Event) {
	ev.Time = time.Now()

	e.mu.RLock()
	subs := make([]Subscriber, len(e.subscribers))
	copy(subs, e.subscribers)
	e.mu.RUnlock()

	for _, fn := range subs {
		fn(ev)
	}
}

type runState struct {
	done     map[string]error
	failures []TaskFailure
}

// Run validates the whole graph and then executes the named tasks in order.
// Configuration errors are returned before any body runs. Task failures do
// not stop sibling tasks; they are collected into a *RunError.
func (e *Executor) Run(ctx context.Context, names ...string) error {
	if err := e.graph.Validate(); err != nil {
		return err
	}
	if err := e.graph.checkKnown(names); err != nil {
		return err
	}

	state := &runState{done: make(map[string]error)}
	for _, name := range names {
		e.runTask(ctx, name, state)
	}

	if len(state.failures) > 0 {
		return &RunError{Failures: state.failures}
	}

	return nil
}

func (e *Executor) runTask(ctx context.Context, name string, state *runState) error {
	if err, ok := state.done[name]; ok {
		return err
	}

	task := e.graph.tasks[name]

	var failedPrereqs []string
	for _, p := range task.Prerequisites {
		if err := e.runTask(ctx, p, state); err != nil {
			failedPrereqs = append(failedPrereqs, p)
		}
	}

	if len(failedPrereqs) > 0 && !task.KeepGoing {
		err := errors.NewPrerequisiteError(name, failedPrereqs)
		state.done[name] = err
		state.failures = append(state.failures, TaskFailure{Task: name, Err: err, Skipped: true})
		e.publish(Event{Task: name, Status: StatusSkipped, Err: err})
		e.logger.Debug(ctx, "Task skipped", "task", name, "failed_prerequisites", failedPrereqs)
		return err
	}

	if task.Body == nil {
		state.done[name] = nil
		e.publish(Event{Task: name, Status: StatusSucceeded})
		return nil
	}

	if err := ctx.Err(); err != nil {
		state.done[name] = err
		state.failures = append(state.failures, TaskFailure{Task: name, Err: err})
		e.publish(Event{Task: name, Status: StatusFailed, Err: err})
		return err
	}

	e.publish(Event{Task: name, Status: StatusStarted})
	e.logger.Info(ctx, "Starting task", "task", name)

	start := time.Now()
	result, err := task.Body(ctx)
	duration := time.Since(start)

	state.done[name] = err
	if err != nil {
		state.failures = append(state.failures, TaskFailure{Task: name, Err: err})
		e.publish(Event{Task: name, Status: StatusFailed, Outputs: result.Outputs, Err: err, Duration: duration})
		e.logger.Error(ctx, err, "Task failed", "task", name, "duration", duration.String())
		return err
	}

	e.publish(Event{Task: name, Status: StatusSucceeded, Outputs: result.Outputs, Duration: duration})
	e.logger.Info(ctx, "Finished task", "task", name, "outputs", len(result.Outputs), "duration", duration.String())

	return nil
}
