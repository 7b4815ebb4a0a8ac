package taskgraph

import (
	"context"
	"fmt"

	"github.com/conneroisu/sitesmith/internal/errors"
)

// Result is what a task body reports back to the executor.
type Result struct {
	// Outputs lists the files the body wrote, relative to its destination root.
	Outputs []string
}

// Body is the work a task performs once its prerequisites completed.
type Body func(ctx context.Context) (Result, error)

// Task is a named unit of the build.
type Task struct {
	Name          string
	Description   string
	Prerequisites []string
	// Body is optional. A task without a body only groups its prerequisites.
	Body Body
	// KeepGoing runs the body even when a prerequisite failed. Long-lived
	// development sessions use it so a broken source does not stop the server.
	KeepGoing bool
}

// IsGroup reports whether the task has no body of its own.
func (t Task) IsGroup() bool {
	return t.Body == nil
}

// Graph maps task names to tasks. It is built once at startup and then only
// read, so it is safe for concurrent use after construction.
type Graph struct {
	tasks map[string]Task
	order []string
}

// NewGraph builds a graph from tasks in declaration order.
func NewGraph(tasks ...Task) (*Graph, error) {
	g := &Graph{tasks: make(map[string]Task, len(tasks))}
	for _, t := range tasks {
		if err := g.Add(t); err != nil {
			return nil, err
		}
	}

	return g, nil
}

// Add declares a task. Prerequisites may reference tasks added later;
// references are checked by Validate.
func (g *Graph) Add(t Task) error {
	if t.Name == "" {
		return errors.NewConfigError(errors.CodeInvalidConfig, "task name is required")
	}
	if _, exists := g.tasks[t.Name]; exists {
		return errors.NewConfigError(errors.CodeDuplicateTask, fmt.Sprintf("duplicate task name: %q", t.Name))
	}

	prereqs := make([]string, len(t.Prerequisites))
	copy(prereqs, t.Prerequisites)
	t.Prerequisites = prereqs

	g.tasks[t.Name] = t
	g.order = append(g.order, t.Name)

	return nil
}

// Task returns the named task.
func (g *Graph) Task(name string) (Task, bool) {
	t, ok := g.tasks[name]
	return t, ok
}

// Names returns task names in declaration order.
func (g *Graph) Names() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Len returns the number of tasks.
func (g *Graph) Len() int {
	return len(g.order)
}

// Plan returns the order in which Run would execute the named tasks: every
// prerequisite depth-first, left to right, each task once.
func (g *Graph) Plan(names ...string) ([]string, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if err := g.checkKnown(names); err != nil {
		return nil, err
	}

	visited := make(map[string]bool)
	var order []string

	var visit func(name string)
	visit = func(name string) {
		if visited[name] {
			return
		}
		visited[name] = true
		for _, p := range g.tasks[name].Prerequisites {
			visit(p)
		}
		order = append(order, name)
	}

	for _, n := range names {
		visit(n)
	}

	return order, nil
}

// Transitive returns every task name reachable through prerequisites of name,
// excluding name itself.
func (g *Graph) Transitive(name string) []string {
	seen := map[string]bool{name: true}
	var out []string

	var walk func(string)
	walk = func(n string) {
		for _, p := range g.tasks[n].Prerequisites {
			if seen[p] {
				continue
			}
			seen[p] = true
			walk(p)
			out = append(out, p)
		}
	}
	walk(name)

	return out
}

func (g *Graph) checkKnown(names []string) error {
	for _, n := range names {
		if _, ok := g.tasks[n]; !ok {
			return errors.NewConfigError(errors.CodeMissingTask, fmt.Sprintf("unknown task %q", n)).WithTask(n)
		}
	}

	return nil
}
