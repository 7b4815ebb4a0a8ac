package pipeline

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/sitesmith/internal/errors"
	"github.com/conneroisu/sitesmith/internal/glob"
	"github.com/conneroisu/sitesmith/internal/logging"
)

// Spec describes one task's worth of work.
type Spec struct {
	Task    string
	Sources glob.SourceSet
	Chain   Chain
	// Root is the profile output root. Reported outputs are relative to it.
	Root string
	// Dir is the subdirectory of Root the outputs mirror their sources into.
	Dir string
	// Rename maps a source path relative to its glob base to the output path.
	// Nil keeps the name.
	Rename func(rel string) string
}

// Runner executes Specs against a project root.
type Runner struct {
	root    string
	workers int
	logger  logging.Logger
}

// NewRunner creates a runner. Source globs and relative output roots are
// resolved against root; workers bounds the files processed at once.
func NewRunner(root string, workers int, logger logging.Logger) *Runner {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}

	return &Runner{
		root:    root,
		workers: workers,
		logger:  logger.WithComponent("pipeline"),
	}
}

// Root returns the project root.
func (r *Runner) Root() string {
	return r.root
}

// Abs resolves p against the project root unless it is already absolute.
func (r *Runner) Abs(p string) string {
	if filepath.IsAbs(p) {
		return p
	}

	return filepath.Join(r.root, filepath.FromSlash(p))
}

// Run resolves spec.Sources and processes every file. It returns the outputs
// that were written, slash separated and relative to spec.Root, together
// with the joined per-file errors.
func (r *Runner) Run(ctx context.Context, spec Spec) ([]string, error) {
	files, err := spec.Sources.Resolve(r.root)
	if err != nil {
		return nil, errors.NewIOError(errors.CodeReadFailed, "resolving sources", err).WithTask(spec.Task)
	}

	if len(files) == 0 {
		r.logger.Debug(ctx, "No sources matched", "task", spec.Task, "patterns", spec.Sources.Patterns())
		return nil, nil
	}

	start := time.Now()
	destDir := filepath.Join(r.Abs(spec.Root), filepath.FromSlash(spec.Dir))

	var (
		mu      sync.Mutex
		outputs []string
		failed  = make(map[string]error)
	)

	var g errgroup.Group
	g.SetLimit(r.workers)

	for _, f := range files {
		g.Go(func() error {
			written, err := r.processFile(ctx, spec, destDir, f)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed[f.Path] = err
				r.logger.Debug(ctx, "File failed", "task", spec.Task, "file", f.Path, "error", err.Error())
				return nil
			}
			outputs = append(outputs, written...)
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(outputs)

	r.logger.Debug(ctx, "Processed sources",
		"task", spec.Task,
		"files", len(files),
		"outputs", len(outputs),
		"failed", len(failed),
		"duration", time.Since(start).String(),
	)

	if len(failed) == 0 {
		return outputs, nil
	}

	sources := make([]string, 0, len(failed))
	for src := range failed {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	errs := make([]error, 0, len(sources))
	for _, src := range sources {
		errs = append(errs, failed[src])
	}

	return outputs, errors.Join(errs...)
}

func (r *Runner) processFile(ctx context.Context, spec Spec, destDir string, f glob.File) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	contents, err := os.ReadFile(r.Abs(f.Path))
	if err != nil {
		return nil, errors.NewIOError(errors.CodeReadFailed, "reading source", err).
			WithTask(spec.Task).
			WithFile(f.Path)
	}

	rel := f.Rel
	if spec.Rename != nil {
		rel = spec.Rename(rel)
	}

	assets, err := spec.Chain.Apply(ctx, &Asset{
		Source:   f.Path,
		Base:     f.Base,
		Path:     rel,
		Contents: contents,
	})
	if err != nil {
		if pe, ok := err.(*errors.PipelineError); ok {
			return nil, pe.WithTask(spec.Task)
		}
		return nil, err
	}

	if err := writeAll(destDir, assets); err != nil {
		return nil, errors.NewIOError(errors.CodeWriteFailed, "writing outputs", err).
			WithTask(spec.Task).
			WithFile(f.Path)
	}

	written := make([]string, len(assets))
	for i, a := range assets {
		written[i] = path.Join(filepath.ToSlash(spec.Dir), a.Path)
	}

	return written, nil
}

// rename moves a staged file into place. Tests replace it to fail a commit.
var rename = os.Rename

type staged struct {
	tmp, dest string
	// backup holds the file dest replaced until the whole set is committed.
	backup string
	placed bool
}

// writeAll stages every asset in a temporary file next to its destination
// and only renames them into place once all of them were written. If a
// rename fails, outputs already placed are removed and the files they
// replaced are restored.
func writeAll(destDir string, assets []*Asset) error {
	var all []*staged
	discard := func() {
		for _, s := range all {
			_ = os.Remove(s.tmp)
		}
	}

	for _, a := range assets {
		dest := filepath.Join(destDir, filepath.FromSlash(a.Path))
		tmp, err := stage(dest, a.Contents)
		if err != nil {
			discard()
			return err
		}
		all = append(all, &staged{tmp: tmp, dest: dest})
	}

	for _, s := range all {
		if err := s.commit(); err != nil {
			rollback(all)
			return err
		}
	}

	for _, s := range all {
		if s.backup != "" {
			_ = os.Remove(s.backup)
		}
	}

	return nil
}

func (s *staged) commit() error {
	if _, err := os.Lstat(s.dest); err == nil {
		backup := s.tmp + ".bak"
		if err := os.Rename(s.dest, backup); err != nil {
			return err
		}
		s.backup = backup
	}

	if err := rename(s.tmp, s.dest); err != nil {
		return err
	}
	s.placed = true

	return nil
}

func rollback(all []*staged) {
	for i := len(all) - 1; i >= 0; i-- {
		s := all[i]
		if s.placed {
			_ = os.Remove(s.dest)
		} else {
			_ = os.Remove(s.tmp)
		}
		if s.backup != "" {
			_ = os.Rename(s.backup, s.dest)
		}
	}
}

func stage(dest string, contents []byte) (string, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return "", err
	}

	if _, err := tmp.Write(contents); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("chmod %s: %w", tmp.Name(), err)
	}

	return tmp.Name(), nil
}

// WriteFile atomically replaces dest with contents.
func WriteFile(dest string, contents []byte) error {
	tmp, err := stage(dest, contents)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	return nil
}
