//go:build property

package taskgraph

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// dagSpec describes a random acyclic graph: task i may only depend on tasks
// with a smaller index, and fail marks tasks whose body returns an error.
type dagSpec struct {
	edges [][]int
	fail  []bool
}

func genDAG() gopter.Gen {
	return gen.IntRange(1, 12).FlatMap(func(v interface{}) gopter.Gen {
		n := v.(int)
		return gen.SliceOfN(n*n, gen.IntRange(0, 3)).Map(func(bits []int) dagSpec {
			spec := dagSpec{edges: make([][]int, n), fail: make([]bool, n)}
			for i := 0; i < n; i++ {
				for j := 0; j < i; j++ {
					if bits[i*n+j] == 0 {
						spec.edges[i] = append(spec.edges[i], j)
					}
				}
				spec.fail[i] = bits[i*n+i] == 1
			}
			return spec
		})
	}, reflect.TypeOf(dagSpec{}))
}

func name(i int) string { return fmt.Sprintf("t%d", i) }

func build(spec dagSpec, ran *[]string) *Graph {
	var tasks []Task
	for i := range spec.edges {
		i := i
		var prereqs []string
		for _, j := range spec.edges[i] {
			prereqs = append(prereqs, name(j))
		}
		tasks = append(tasks, Task{
			Name:          name(i),
			Prerequisites: prereqs,
			Body: func(context.Context) (Result, error) {
				*ran = append(*ran, name(i))
				if spec.fail[i] {
					return Result{}, fmt.Errorf("%s failed", name(i))
				}
				return Result{}, nil
			},
		})
	}
	g, err := NewGraph(tasks...)
	if err != nil {
		panic(err)
	}
	return g
}

func TestExecutorProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1357)
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("every body runs after all its prerequisites", prop.ForAll(
		func(spec dagSpec) bool {
			var ran []string
			g := build(spec, &ran)
			_ = NewExecutor(g, nil).Run(context.Background(), g.Names()...)

			pos := make(map[string]int)
			for i, n := range ran {
				if _, dup := pos[n]; dup {
					return false
				}
				pos[n] = i
			}
			for i, prereqs := range spec.edges {
				at, ok := pos[name(i)]
				if !ok {
					continue
				}
				for _, j := range prereqs {
					pj, ok := pos[name(j)]
					if !ok || pj > at {
						return false
					}
				}
			}
			return true
		},
		genDAG(),
	))

	properties.Property("run succeeds iff no reachable body fails", prop.ForAll(
		func(spec dagSpec) bool {
			var ran []string
			g := build(spec, &ran)
			last := name(len(spec.edges) - 1)
			err := NewExecutor(g, nil).Run(context.Background(), last)

			anyFail := spec.fail[len(spec.edges)-1]
			for _, p := range g.Transitive(last) {
				var idx int
				fmt.Sscanf(p, "t%d", &idx)
				anyFail = anyFail || spec.fail[idx]
			}
			return (err == nil) == !anyFail
		},
		genDAG(),
	))

	properties.Property("a body never runs when a prerequisite failed", prop.ForAll(
		func(spec dagSpec) bool {
			var ran []string
			g := build(spec, &ran)
			_ = NewExecutor(g, nil).Run(context.Background(), g.Names()...)

			ranSet := make(map[string]bool)
			for _, n := range ran {
				ranSet[n] = true
			}
			succeeded := func(i int) bool { return ranSet[name(i)] && !spec.fail[i] }
			for i, prereqs := range spec.edges {
				for _, j := range prereqs {
					if !succeeded(j) && ranSet[name(i)] {
						return false
					}
				}
			}
			return true
		},
		genDAG(),
	))

	properties.Property("adding a back edge is rejected before any body runs", prop.ForAll(
		func(spec dagSpec) bool {
			n := len(spec.edges)
			if n < 2 {
				return true
			}
			edges := make([][]int, n)
			for i := range spec.edges {
				edges[i] = append([]int(nil), spec.edges[i]...)
			}
			edges[0] = append(edges[0], n-1)
			edges[n-1] = append(edges[n-1], 0)
			spec.edges = edges

			var ran []string
			g := build(spec, &ran)
			err := NewExecutor(g, nil).Run(context.Background(), g.Names()...)
			return err != nil && len(ran) == 0 && g.FindCycle() != nil
		},
		genDAG(),
	))

	properties.TestingRun(t)
}
