package taskgraph

import (
	"fmt"
	"strings"

	"github.com/conneroisu/sitesmith/internal/errors"
)

// Validate checks that every prerequisite exists and that the graph has no
// cycle. It runs before any task body so a broken graph never half-executes.
func (g *Graph) Validate() error {
	for _, name := range g.order {
		for _, p := range g.tasks[name].Prerequisites {
			if _, ok := g.tasks[p]; !ok {
				return errors.NewConfigError(
					errors.CodeMissingTask,
					fmt.Sprintf("task %q depends on unknown task %q", name, p),
				).WithTask(name)
			}
		}
	}

	if cycle := g.FindCycle(); cycle != nil {
		return errors.NewConfigError(errors.CodeCycle, "cycle: "+strings.Join(cycle, " -> ")).
			WithTask(cycle[0]).
			WithContext("cycle", cycle)
	}

	return nil
}

// FindCycle returns one cycle as a closed path (first == last), or nil.
// Tasks and prerequisites are visited in declaration order so the reported
// cycle is stable across runs.
func (g *Graph) FindCycle() []string {
	const (
		white = iota
		gray
		black
	)

	color := make(map[string]int, len(g.order))
	var path []string
	var cycle []string

	var dfs func(name string) bool
	dfs = func(name string) bool {
		color[name] = gray
		path = append(path, name)

		for _, p := range g.tasks[name].Prerequisites {
			if _, ok := g.tasks[p]; !ok {
				continue
			}
			switch color[p] {
			case white:
				if dfs(p) {
					return true
				}
			case gray:
				start := 0
				for i, n := range path {
					if n == p {
						start = i
						break
					}
				}
				cycle = append(cycle, path[start:]...)
				cycle = append(cycle, p)
				return true
			}
		}

		path = path[:len(path)-1]
		color[name] = black
		return false
	}

	for _, name := range g.order {
		if color[name] != white {
			continue
		}
		if dfs(name) {
			return cycle
		}
	}

	return nil
}
