package taskgraph

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/sitesmith/internal/errors"
)

func noop(context.Context) (Result, error) { return Result{}, nil }

func TestNewGraphRejectsDuplicates(t *testing.T) {
	_, err := NewGraph(
		Task{Name: "styles", Body: noop},
		Task{Name: "styles", Body: noop},
	)
	require.Error(t, err)

	var pe *errors.PipelineError
	require.True(t, stderrors.As(err, &pe))
	assert.Equal(t, errors.CodeDuplicateTask, pe.Code)
}

func TestNewGraphRejectsEmptyName(t *testing.T) {
	_, err := NewGraph(Task{Body: noop})
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
}

func TestForwardReferencesAllowed(t *testing.T) {
	g, err := NewGraph(
		Task{Name: "build", Prerequisites: []string{"markup", "styles"}},
		Task{Name: "markup", Body: noop},
		Task{Name: "styles", Body: noop},
	)
	require.NoError(t, err)
	assert.NoError(t, g.Validate())
	assert.Equal(t, []string{"build", "markup", "styles"}, g.Names())
	assert.Equal(t, 3, g.Len())

	build, ok := g.Task("build")
	require.True(t, ok)
	assert.True(t, build.IsGroup())
}

func TestValidateMissingPrerequisite(t *testing.T) {
	g, err := NewGraph(Task{Name: "pro", Prerequisites: []string{"pro_markup"}})
	require.NoError(t, err)

	err = g.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
	assert.Contains(t, err.Error(), `unknown task "pro_markup"`)
}

func TestValidateCycle(t *testing.T) {
	g, err := NewGraph(
		Task{Name: "a", Prerequisites: []string{"b"}, Body: noop},
		Task{Name: "b", Prerequisites: []string{"a"}, Body: noop},
	)
	require.NoError(t, err)

	err = g.Validate()
	require.Error(t, err)

	var pe *errors.PipelineError
	require.True(t, stderrors.As(err, &pe))
	assert.Equal(t, errors.CodeCycle, pe.Code)
	assert.Contains(t, pe.Message, "cycle: a -> b -> a")
	assert.Equal(t, []string{"a", "b", "a"}, pe.Context["cycle"])
}

func TestFindCycleSelfLoop(t *testing.T) {
	g, err := NewGraph(Task{Name: "a", Prerequisites: []string{"a"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "a"}, g.FindCycle())
}

func TestFindCycleIgnoresDiamond(t *testing.T) {
	g, err := NewGraph(
		Task{Name: "top", Prerequisites: []string{"left", "right"}},
		Task{Name: "left", Prerequisites: []string{"base"}},
		Task{Name: "right", Prerequisites: []string{"base"}},
		Task{Name: "base", Body: noop},
	)
	require.NoError(t, err)
	assert.Nil(t, g.FindCycle())
}

func TestPlanOrder(t *testing.T) {
	g, err := NewGraph(
		Task{Name: "markup", Body: noop},
		Task{Name: "styles", Body: noop},
		Task{Name: "sitemap", Prerequisites: []string{"markup"}, Body: noop},
		Task{Name: "pro", Prerequisites: []string{"markup", "styles", "sitemap"}},
		Task{Name: "pd", Prerequisites: []string{"pro"}, Body: noop},
	)
	require.NoError(t, err)

	order, err := g.Plan("pd")
	require.NoError(t, err)
	assert.Equal(t, []string{"markup", "styles", "sitemap", "pro", "pd"}, order)

	order, err = g.Plan("styles", "markup")
	require.NoError(t, err)
	assert.Equal(t, []string{"styles", "markup"}, order)
}

func TestPlanUnknownTask(t *testing.T) {
	g, err := NewGraph(Task{Name: "markup", Body: noop})
	require.NoError(t, err)

	_, err = g.Plan("nope")
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
}

func TestTransitive(t *testing.T) {
	g, err := NewGraph(
		Task{Name: "a", Body: noop},
		Task{Name: "b", Prerequisites: []string{"a"}, Body: noop},
		Task{Name: "c", Prerequisites: []string{"b", "a"}, Body: noop},
	)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"a", "b"}, g.Transitive("c"))
	assert.Empty(t, g.Transitive("a"))
}

func TestAddCopiesPrerequisites(t *testing.T) {
	prereqs := []string{"a"}
	g, err := NewGraph(Task{Name: "a", Body: noop}, Task{Name: "b", Prerequisites: prereqs})
	require.NoError(t, err)

	prereqs[0] = "mutated"
	b, _ := g.Task("b")
	assert.Equal(t, []string{"a"}, b.Prerequisites)
}
