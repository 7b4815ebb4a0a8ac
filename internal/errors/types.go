package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of pipeline errors.
type ErrorType string

const (
	ErrorTypeConfig    ErrorType = "config"
	ErrorTypeTransform ErrorType = "transform"
	ErrorTypeIO        ErrorType = "io"
	ErrorTypeDeploy    ErrorType = "deploy"
	ErrorTypeInternal  ErrorType = "internal"
)

// Error codes used across the orchestrator.
const (
	CodeCycle              = "TASK_CYCLE"
	CodeMissingTask        = "TASK_MISSING"
	CodeDuplicateTask      = "TASK_DUPLICATE"
	CodeInvalidConfig      = "CONFIG_INVALID"
	CodeStepFailed         = "STEP_FAILED"
	CodeWriteFailed        = "WRITE_FAILED"
	CodeReadFailed         = "READ_FAILED"
	CodeDeployFailed       = "DEPLOY_FAILED"
	CodeDeployNotConfig    = "DEPLOY_NOT_CONFIGURED"
	CodeDeployTimeout      = "DEPLOY_TIMEOUT"
	CodePrerequisiteFailed = "PREREQUISITE_FAILED"
)

// PipelineError is a structured error carrying the task and file it belongs to.
type PipelineError struct {
	Type     ErrorType
	Code     string
	Message  string
	Task     string
	FilePath string
	Step     string
	Cause    error
	Context  map[string]interface{}
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Task != "" {
		parts = append(parts, "task:"+e.Task)
	}

	if e.Step != "" {
		parts = append(parts, "step:"+e.Step)
	}

	if e.FilePath != "" {
		parts = append(parts, e.FilePath)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison on type and code.
func (e *PipelineError) Is(target error) bool {
	var t *PipelineError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithTask records the owning task.
func (e *PipelineError) WithTask(task string) *PipelineError {
	e.Task = task

	return e
}

// WithFile records the source file the error belongs to.
func (e *PipelineError) WithFile(path string) *PipelineError {
	e.FilePath = path

	return e
}

// WithStep records the transformation step that failed.
func (e *PipelineError) WithStep(step string) *PipelineError {
	e.Step = step

	return e
}

// WithContext adds context information to the error.
func (e *PipelineError) WithContext(key string, value interface{}) *PipelineError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// NewConfigError creates a configuration error. Configuration errors are
// detected before any task body runs and abort the whole invocation.
func NewConfigError(code, message string) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
	}
}

// NewTransformError creates a transformation error for a single file.
func NewTransformError(step, path string, cause error) *PipelineError {
	return &PipelineError{
		Type:     ErrorTypeTransform,
		Code:     CodeStepFailed,
		Message:  "transformation failed",
		Step:     step,
		FilePath: path,
		Cause:    cause,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeIO,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewDeployError creates a deploy error. Deploy errors are never retried.
func NewDeployError(code, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeDeploy,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewPrerequisiteError reports a task whose body was not run because
// prerequisites failed.
func NewPrerequisiteError(task string, failed []string) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeInternal,
		Code:    CodePrerequisiteFailed,
		Message: "prerequisite failed: " + strings.Join(failed, ", "),
		Task:    task,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func isType(err error, typ ErrorType) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Type == typ
	}

	return false
}

// IsConfigError checks if an error is a configuration error.
func IsConfigError(err error) bool {
	return isType(err, ErrorTypeConfig)
}

// IsTransformError checks if an error is a transformation error.
func IsTransformError(err error) bool {
	return isType(err, ErrorTypeTransform)
}

// IsIOError checks if an error is an I/O error.
func IsIOError(err error) bool {
	return isType(err, ErrorTypeIO)
}

// IsDeployError checks if an error is a deploy error.
func IsDeployError(err error) bool {
	return isType(err, ErrorTypeDeploy)
}

// GetErrorType returns the type of the first PipelineError in the chain.
func GetErrorType(err error) ErrorType {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Type
	}

	return ErrorTypeInternal
}

// Join aggregates errors, dropping nils.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// Flatten unwraps joined errors into a flat list of leaves.
func Flatten(err error) []error {
	if err == nil {
		return nil
	}

	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []error
		for _, e := range joined.Unwrap() {
			out = append(out, Flatten(e)...)
		}

		return out
	}

	return []error{err}
}
