package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/conneroisu/sitesmith/internal/config"
	"github.com/conneroisu/sitesmith/internal/deploy"
	"github.com/conneroisu/sitesmith/internal/errors"
	"github.com/conneroisu/sitesmith/internal/glob"
	"github.com/conneroisu/sitesmith/internal/pipeline"
	"github.com/conneroisu/sitesmith/internal/sitemap"
	"github.com/conneroisu/sitesmith/internal/steps"
	"github.com/conneroisu/sitesmith/internal/taskgraph"
)

// declare builds the task catalogue. Asset tasks are declared per profile
// in config.Kinds order so groups run them in that order.
func (o *Orchestrator) declare() (*taskgraph.Graph, error) {
	var tasks []taskgraph.Task

	devTasks := make([]string, 0, len(config.Kinds))
	proTasks := make([]string, 0, len(config.Kinds)+1)

	for _, kind := range config.Kinds {
		tasks = append(tasks, o.assetTask(o.dev, kind))
		devTasks = append(devTasks, o.dev.TaskName(kind))
	}
	for _, kind := range config.Kinds {
		tasks = append(tasks, o.assetTask(o.prod, kind))
		proTasks = append(proTasks, o.prod.TaskName(kind))
	}
	// sitemap reads the finished production tree, so it waits for every
	// production asset task.
	assetTasks := slices.Clone(proTasks)
	proTasks = append(proTasks, TaskSitemap)

	tasks = append(tasks,
		taskgraph.Task{
			Name:          TaskBuild,
			Description:   "Build every asset into the development root",
			Prerequisites: devTasks,
		},
		taskgraph.Task{
			Name:          TaskDefault,
			Description:   "Build, then serve the development root and rebuild on change",
			Prerequisites: []string{TaskBuild},
			Body:          o.serveAndWatch,
			KeepGoing:     true,
		},
		taskgraph.Task{
			Name:        TaskClean,
			Description: "Remove the development root",
			Body:        o.cleanBody(o.dev),
		},
		taskgraph.Task{
			Name:          TaskSitemap,
			Description:   "Write sitemap.xml from the produced production pages",
			Prerequisites: assetTasks,
			Body:          o.sitemapBody,
		},
		taskgraph.Task{
			Name:          TaskPro,
			Description:   "Build the minified production tree and its sitemap",
			Prerequisites: proTasks,
		},
		taskgraph.Task{
			Name:        TaskDeploy,
			Description: "Upload the production root",
			Body:        o.deployBody,
		},
		taskgraph.Task{
			Name:          TaskProAndDeploy,
			Description:   "Build production, then deploy if every production task succeeded",
			Prerequisites: []string{TaskPro},
			Body:          o.deployBody,
		},
		taskgraph.Task{
			Name:        TaskProClean,
			Description: "Remove the production root",
			Body:        o.cleanBody(o.prod),
		},
	)

	return taskgraph.NewGraph(tasks...)
}

func (o *Orchestrator) assetTask(p Profile, kind config.AssetKind) taskgraph.Task {
	spec := o.assetSpec(p, kind)

	return taskgraph.Task{
		Name:        p.TaskName(kind),
		Description: fmt.Sprintf("Build %s into the %s root", kind, p.Name),
		Body: func(ctx context.Context) (taskgraph.Result, error) {
			outputs, err := o.runner.Run(ctx, spec)
			return taskgraph.Result{Outputs: outputs}, err
		},
	}
}

// assetSpec assembles the ordered steps for kind under profile p.
func (o *Orchestrator) assetSpec(p Profile, kind config.AssetKind) pipeline.Spec {
	opts := p.Options[kind]

	spec := pipeline.Spec{
		Task:    p.TaskName(kind),
		Sources: glob.New(o.cfg.Sources.Kind(kind).Patterns...),
		Root:    p.Root,
		Dir:     p.Dirs.Dir(kind),
	}

	switch kind {
	case config.KindMarkup:
		spec.Chain = append(spec.Chain, &steps.Template{
			Root:     o.root,
			Partials: glob.New(o.cfg.Sources.Partials...),
			SiteURL:  o.cfg.SiteURL,
			Profile:  p.Name,
		})
		spec.Rename = steps.HTMLName
	case config.KindStyles:
		spec.Chain = append(spec.Chain, &steps.Stylesheet{
			Root:       o.root,
			Targets:    opts.Targets,
			Sourcemaps: opts.Sourcemaps,
		})
	}

	if opts.Minify {
		spec.Chain = append(spec.Chain, steps.NewMinify())
	}

	return spec
}

func (o *Orchestrator) sitemapBody(ctx context.Context) (taskgraph.Result, error) {
	entries, err := sitemap.Generate(ctx, o.abs(o.prod.Root), sitemap.Options{SiteURL: o.cfg.SiteURL})
	if err != nil {
		return taskgraph.Result{}, err
	}

	o.logger.Info(ctx, "Wrote sitemap", "pages", len(entries))
	return taskgraph.Result{Outputs: []string{sitemap.FileName}}, nil
}

func (o *Orchestrator) deployBody(ctx context.Context) (taskgraph.Result, error) {
	d := o.cfg.Deploy
	job := deploy.Job{
		SourceRoot: o.abs(o.prod.Root),
		Remote: deploy.Remote{
			Host:       d.Host,
			Port:       d.Port,
			User:       d.User,
			Password:   d.Password,
			RemoteRoot: d.RemoteRoot,
			Timeout:    d.Timeout,
		},
		Globs: d.Globs,
	}

	report, err := o.deployer.Deploy(ctx, job)
	return taskgraph.Result{Outputs: report.Files}, err
}

// cleanBody removes a profile root. The project root and its ancestors are
// never removed.
func (o *Orchestrator) cleanBody(p Profile) taskgraph.Body {
	return func(ctx context.Context) (taskgraph.Result, error) {
		target := o.abs(p.Root)

		rel, err := filepath.Rel(target, o.root)
		if err != nil || !hasParentPrefix(rel) {
			return taskgraph.Result{}, errors.NewIOError(errors.CodeWriteFailed,
				fmt.Sprintf("refusing to remove %s", target), nil)
		}

		if err := os.RemoveAll(target); err != nil {
			return taskgraph.Result{}, errors.NewIOError(errors.CodeWriteFailed,
				fmt.Sprintf("removing %s", target), err)
		}

		o.logger.Info(ctx, "Removed output root", "profile", p.Name, "root", target)
		return taskgraph.Result{}, nil
	}
}

func hasParentPrefix(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
