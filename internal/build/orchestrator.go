// Package build declares the site's task graph and runs it. An Orchestrator
// owns the graph, its executor and, during a development session, the watch
// registry and server; nothing here is global.
package build

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/conneroisu/sitesmith/internal/config"
	"github.com/conneroisu/sitesmith/internal/deploy"
	"github.com/conneroisu/sitesmith/internal/logging"
	"github.com/conneroisu/sitesmith/internal/pipeline"
	"github.com/conneroisu/sitesmith/internal/server"
	"github.com/conneroisu/sitesmith/internal/taskgraph"
)

// Well-known task names.
const (
	TaskBuild        = "build"
	TaskDefault      = "default"
	TaskClean        = "clean"
	TaskSitemap      = "sitemap"
	TaskPro          = "pro"
	TaskDeploy       = "deploy"
	TaskProAndDeploy = "pd"
	TaskProClean     = "pro_clean"
)

// Orchestrator builds one project.
type Orchestrator struct {
	cfg      *config.Config
	root     string
	logger   logging.Logger
	graph    *taskgraph.Graph
	executor *taskgraph.Executor
	runner   *pipeline.Runner
	deployer deploy.Deployer
	metrics  *BuildMetrics

	dev  Profile
	prod Profile

	mu      sync.RWMutex
	server  *server.Server
	results map[string]server.TaskResult
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithDeployer replaces the FTP deployer.
func WithDeployer(d deploy.Deployer) Option {
	return func(o *Orchestrator) {
		o.deployer = d
	}
}

// New declares the task graph for cfg and validates it.
func New(cfg *config.Config, opts ...Option) (*Orchestrator, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:     cfg,
		root:    root,
		logger:  logging.NopLogger{},
		metrics: NewBuildMetrics(),
		dev:     NewProfile(Development, cfg.Development),
		prod:    NewProfile(Production, cfg.Production),
		results: make(map[string]server.TaskResult),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.deployer == nil {
		o.deployer = deploy.NewFTP(o.logger)
	}

	o.runner = pipeline.NewRunner(root, cfg.Build.Workers(), o.logger)

	graph, err := o.declare()
	if err != nil {
		return nil, err
	}
	if err := graph.Validate(); err != nil {
		return nil, err
	}

	o.graph = graph
	o.executor = taskgraph.NewExecutor(graph, o.logger)
	o.executor.Subscribe(o.onEvent)

	return o, nil
}

// Graph returns the declared task graph.
func (o *Orchestrator) Graph() *taskgraph.Graph {
	return o.graph
}

// Metrics returns a snapshot of task outcomes so far.
func (o *Orchestrator) Metrics() BuildMetrics {
	return o.metrics.GetSnapshot()
}

// Profiles returns the development and production profiles.
func (o *Orchestrator) Profiles() (Profile, Profile) {
	return o.dev, o.prod
}

// Run executes the named tasks and everything they depend on. Metrics start
// from zero for every invocation; watch rebuilds during a development session
// count towards the session's invocation.
func (o *Orchestrator) Run(ctx context.Context, tasks ...string) error {
	if len(tasks) == 0 {
		tasks = []string{TaskDefault}
	}
	o.metrics.Reset()
	return o.executor.Run(ctx, tasks...)
}

// RunDevelopment builds once, then serves and watches until ctx is done.
func (o *Orchestrator) RunDevelopment(ctx context.Context) error {
	return o.Run(ctx, TaskDefault)
}

// RunProduction builds the production tree and its sitemap.
func (o *Orchestrator) RunProduction(ctx context.Context) error {
	return o.Run(ctx, TaskPro)
}

// Deploy uploads the existing production tree.
func (o *Orchestrator) Deploy(ctx context.Context) error {
	return o.Run(ctx, TaskDeploy)
}

// ProductionAndDeploy builds production and deploys only if every
// production task succeeded.
func (o *Orchestrator) ProductionAndDeploy(ctx context.Context) error {
	return o.Run(ctx, TaskProAndDeploy)
}

// abs resolves a profile root against the project root.
func (o *Orchestrator) abs(p string) string {
	return o.runner.Abs(p)
}

func (o *Orchestrator) onEvent(ev taskgraph.Event) {
	o.metrics.Record(ev)

	if ev.Status == taskgraph.StatusStarted {
		return
	}

	res := server.TaskResult{
		Task:     ev.Task,
		Status:   ev.Status.String(),
		Duration: ev.Duration,
		Outputs:  len(ev.Outputs),
		Finished: ev.Time,
	}
	if ev.Err != nil {
		res.Error = ev.Err.Error()
	}

	o.mu.Lock()
	o.results[ev.Task] = res
	srv := o.server
	o.mu.Unlock()

	if srv == nil {
		return
	}
	srv.RecordResult(res)
	for _, msg := range ReloadMessages(ev) {
		srv.Notify(msg)
	}
}

// attach makes srv the target of task results, seeding it with the results
// recorded so far.
func (o *Orchestrator) attach(srv *server.Server) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.server = srv
	if srv == nil {
		return
	}
	for _, res := range o.results {
		srv.RecordResult(res)
	}
}
