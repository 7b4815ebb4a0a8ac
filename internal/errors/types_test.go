package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineErrorMessage(t *testing.T) {
	cause := errors.New("unexpected }")
	err := NewTransformError("stylesheet", "src/styles/style.css", cause).WithTask("styles")

	assert.Equal(t, "[STEP_FAILED] task:styles step:stylesheet src/styles/style.css transformation failed: unexpected }", err.Error())
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestTypePredicates(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"config", NewConfigError(CodeCycle, "cycle: a -> a"), IsConfigError},
		{"transform", NewTransformError("template", "a.tmpl", errors.New("x")), IsTransformError},
		{"io", NewIOError(CodeWriteFailed, "write", errors.New("disk full")), IsIOError},
		{"deploy", NewDeployError(CodeDeployFailed, "upload", errors.New("refused")), IsDeployError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.True(t, tt.check(wrapped))

			for _, other := range tests {
				if other.name != tt.name {
					assert.False(t, other.check(wrapped), "%s must not match %s", tt.name, other.name)
				}
			}
		})
	}
}

func TestIsComparesTypeAndCode(t *testing.T) {
	err := NewConfigError(CodeCycle, "cycle: a -> b -> a")

	assert.True(t, errors.Is(err, &PipelineError{Type: ErrorTypeConfig, Code: CodeCycle}))
	assert.False(t, errors.Is(err, &PipelineError{Type: ErrorTypeConfig, Code: CodeMissingTask}))
}

func TestFlatten(t *testing.T) {
	a := errors.New("a")
	b := errors.New("b")
	c := errors.New("c")

	flat := Flatten(Join(a, Join(b, c)))
	require.Len(t, flat, 3)
	assert.Equal(t, []error{a, b, c}, flat)

	assert.Nil(t, Flatten(nil))
	assert.Equal(t, ErrorTypeInternal, GetErrorType(a))
}
