package watcher

import (
	"context"
	"sync"

	"github.com/conneroisu/sitesmith/internal/glob"
	"github.com/conneroisu/sitesmith/internal/logging"
)

// Binding maps a source pattern to the tasks a change under it triggers.
type Binding struct {
	Pattern glob.SourceSet
	Tasks   []string
}

// RunFunc runs one task by name. Its result is the caller's business; the
// serializer only guarantees when and how often it is called.
type RunFunc func(ctx context.Context, task string)

// Serializer runs each task name at most once at a time. A trigger that
// arrives while the same name is running is remembered, and any number of
// such triggers collapse into exactly one follow-up run. Different names run
// concurrently. In-flight runs are never cancelled by new triggers.
type Serializer struct {
	ctx context.Context
	run RunFunc

	mu    sync.Mutex
	slots map[string]*slot
	wg    sync.WaitGroup
}

type slot struct {
	running bool
	pending bool
}

// NewSerializer creates a serializer whose runs receive ctx. Once ctx is done
// new triggers are ignored.
func NewSerializer(ctx context.Context, run RunFunc) *Serializer {
	return &Serializer{
		ctx:   ctx,
		run:   run,
		slots: make(map[string]*slot),
	}
}

// Trigger requests a run of task.
func (s *Serializer) Trigger(task string) {
	if s.ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	st, ok := s.slots[task]
	if !ok {
		st = &slot{}
		s.slots[task] = st
	}
	if st.running {
		st.pending = true
		s.mu.Unlock()
		return
	}
	st.running = true
	s.wg.Add(1)
	s.mu.Unlock()

	go s.loop(task, st)
}

func (s *Serializer) loop(task string, st *slot) {
	defer s.wg.Done()

	for {
		s.run(s.ctx, task)

		s.mu.Lock()
		if st.pending && s.ctx.Err() == nil {
			st.pending = false
			s.mu.Unlock()
			continue
		}
		st.pending = false
		st.running = false
		s.mu.Unlock()
		return
	}
}

// Running reports whether task is currently running.
func (s *Serializer) Running(task string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.slots[task]
	return ok && st.running
}

// Wait blocks until no task is running or pending.
func (s *Serializer) Wait() {
	s.wg.Wait()
}

// Registry holds the watch bindings of one development session.
type Registry struct {
	serializer *Serializer
	logger     logging.Logger

	mu       sync.RWMutex
	bindings []Binding
	closed   bool
}

// NewRegistry creates an empty registry dispatching to serializer.
func NewRegistry(serializer *Serializer, logger logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NopLogger{}
	}

	return &Registry{
		serializer: serializer,
		logger:     logger.WithComponent("watch-registry"),
	}
}

// Bind registers a binding. Bindings added after Release are ignored.
func (r *Registry) Bind(pattern glob.SourceSet, tasks ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	r.bindings = append(r.bindings, Binding{
		Pattern: pattern,
		Tasks:   append([]string(nil), tasks...),
	})
}

// Bindings returns a copy of the registered bindings.
func (r *Registry) Bindings() []Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Binding, len(r.bindings))
	copy(out, r.bindings)
	return out
}

// Dirs returns the directories the bindings need watched.
func (r *Registry) Dirs() []string {
	seen := make(map[string]bool)
	var out []string
	for _, b := range r.Bindings() {
		for _, base := range b.Pattern.Bases() {
			if !seen[base] {
				seen[base] = true
				out = append(out, base)
			}
		}
	}
	return out
}

// Match returns the tasks bound to any of paths, in binding order, each once.
func (r *Registry) Match(paths []string) []string {
	seen := make(map[string]bool)
	var tasks []string

	for _, b := range r.Bindings() {
		for _, p := range paths {
			if !b.Pattern.Match(p) {
				continue
			}
			for _, t := range b.Tasks {
				if !seen[t] {
					seen[t] = true
					tasks = append(tasks, t)
				}
			}
			break
		}
	}

	return tasks
}

// Dispatch triggers the tasks bound to the changed paths and returns them.
// Paths are slash separated and relative to the project root.
func (r *Registry) Dispatch(paths []string) []string {
	tasks := r.Match(paths)
	for _, t := range tasks {
		r.logger.Debug(context.Background(), "Triggering task", "task", t, "changes", len(paths))
		r.serializer.Trigger(t)
	}
	return tasks
}

// Handler adapts the registry to a FileWatcher change handler.
func (r *Registry) Handler() ChangeHandler {
	return func(events []ChangeEvent) error {
		paths := make([]string, len(events))
		for i, e := range events {
			paths[i] = e.Path
		}
		r.Dispatch(paths)
		return nil
	}
}

// Release drops every binding. Later changes trigger nothing.
func (r *Registry) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings = nil
	r.closed = true
}
