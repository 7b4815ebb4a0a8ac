package build

import (
	"context"
	"path/filepath"

	"github.com/conneroisu/sitesmith/internal/config"
	"github.com/conneroisu/sitesmith/internal/glob"
	"github.com/conneroisu/sitesmith/internal/server"
	"github.com/conneroisu/sitesmith/internal/taskgraph"
	"github.com/conneroisu/sitesmith/internal/watcher"
)

// serveAndWatch is the body of the default task. It serves the development
// root and re-runs the bound task for every source change until ctx is done.
// Rebuild failures are reported to the browser and the session continues.
func (o *Orchestrator) serveAndWatch(ctx context.Context) (taskgraph.Result, error) {
	srv := server.New(server.Options{
		Addr: o.cfg.Server.Addr(),
		Root: o.abs(o.dev.Root),
		Open: o.cfg.Server.Open,
	}, o.logger)

	o.attach(srv)
	defer o.attach(nil)

	fw, err := watcher.NewFileWatcher(o.root, o.cfg.Watch.Debounce, o.logger)
	if err != nil {
		return taskgraph.Result{}, err
	}
	defer fw.Stop()

	fw.AddFilter(watcher.IgnoreFilter(o.cfg.Watch.Ignore...))
	fw.AddFilter(watcher.OutsideFilter(o.relToRoot(o.dev.Root), o.relToRoot(o.prod.Root)))

	serializer := watcher.NewSerializer(ctx, o.rebuild)
	registry := o.bindWatches(serializer)
	defer func() {
		registry.Release()
		serializer.Wait()
	}()

	for _, dir := range registry.Dirs() {
		if err := fw.AddRecursive(dir); err != nil {
			o.logger.Warn(ctx, err, "Failed to watch directory", "dir", dir)
		}
	}
	fw.AddHandler(registry.Handler())

	if err := fw.Start(ctx); err != nil {
		return taskgraph.Result{}, err
	}

	return taskgraph.Result{}, srv.Start(ctx)
}

// bindWatches creates the development watch bindings: each asset kind's
// watch globs trigger its task, and partials trigger the markup task.
func (o *Orchestrator) bindWatches(serializer *watcher.Serializer) *watcher.Registry {
	registry := watcher.NewRegistry(serializer, o.logger)

	for _, kind := range config.Kinds {
		patterns := o.cfg.Sources.Kind(kind).WatchPatterns()
		if len(patterns) == 0 {
			continue
		}
		registry.Bind(glob.New(patterns...), o.dev.TaskName(kind))
	}
	if len(o.cfg.Sources.Partials) > 0 {
		registry.Bind(glob.New(o.cfg.Sources.Partials...), o.dev.TaskName(config.KindMarkup))
	}

	return registry
}

func (o *Orchestrator) rebuild(ctx context.Context, task string) {
	if err := o.executor.Run(ctx, task); err != nil && ctx.Err() == nil {
		o.logger.Warn(ctx, err, "Rebuild failed", "task", task)
	}
}

// relToRoot expresses a profile root relative to the project root, slash
// separated. Roots outside the project come back with a leading "..".
func (o *Orchestrator) relToRoot(p string) string {
	rel, err := filepath.Rel(o.root, o.abs(p))
	if err != nil {
		return p
	}
	return filepath.ToSlash(rel)
}
