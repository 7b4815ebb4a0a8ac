// Package pipeline runs source files through an ordered chain of steps and
// writes the results below a destination directory.
//
// A Spec resolves its sources lazily, so a task that matches nothing simply
// produces nothing. Files are independent: one failing file never prevents
// its siblings from being written, and each file's outputs are written
// all-or-nothing.
package pipeline

import (
	"context"
	stderrors "errors"

	"github.com/conneroisu/sitesmith/internal/errors"
)

// Asset is one file flowing through a chain.
type Asset struct {
	// Source is the root relative path of the originating file.
	Source string
	// Base is the glob base the source was matched under.
	Base string
	// Path is the output path relative to the destination directory.
	Path     string
	Contents []byte
}

// Clone returns a copy of a with its own content buffer.
func (a *Asset) Clone() *Asset {
	c := *a
	c.Contents = append([]byte(nil), a.Contents...)
	return &c
}

// Step transforms one asset. It returns the assets that continue down the
// chain: usually the input itself, possibly followed by derived files such as
// a sourcemap. Returning no assets drops the file.
type Step interface {
	Name() string
	Transform(ctx context.Context, a *Asset) ([]*Asset, error)
}

type stepFunc struct {
	name string
	fn   func(ctx context.Context, a *Asset) ([]*Asset, error)
}

func (s stepFunc) Name() string { return s.name }

func (s stepFunc) Transform(ctx context.Context, a *Asset) ([]*Asset, error) {
	return s.fn(ctx, a)
}

// StepFunc adapts a function to the Step interface.
func StepFunc(name string, fn func(ctx context.Context, a *Asset) ([]*Asset, error)) Step {
	return stepFunc{name: name, fn: fn}
}

// Chain is an ordered list of steps. An empty chain copies files unchanged.
type Chain []Step

// Apply runs a through every step. Assets emitted by a step are seen by all
// later steps. The first failure aborts the file and is reported as a
// transformation error naming the step and source.
func (c Chain) Apply(ctx context.Context, a *Asset) ([]*Asset, error) {
	current := []*Asset{a}

	for _, step := range c {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var next []*Asset
		for _, asset := range current {
			out, err := step.Transform(ctx, asset)
			if err != nil {
				return nil, wrapStepError(step.Name(), a.Source, err)
			}
			next = append(next, out...)
		}
		current = next
	}

	return current, nil
}

// Names returns the step names in order.
func (c Chain) Names() []string {
	out := make([]string, len(c))
	for i, s := range c {
		out[i] = s.Name()
	}
	return out
}

func wrapStepError(step, source string, err error) error {
	var pe *errors.PipelineError
	if stderrors.As(err, &pe) && pe.Type == errors.ErrorTypeTransform {
		if pe.Step == "" {
			pe.WithStep(step)
		}
		if pe.FilePath == "" {
			pe.WithFile(source)
		}
		return err
	}

	return errors.NewTransformError(step, source, err)
}
