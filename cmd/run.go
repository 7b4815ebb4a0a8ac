package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conneroisu/sitesmith/internal/build"
	"github.com/conneroisu/sitesmith/internal/errors"
	"github.com/conneroisu/sitesmith/internal/taskgraph"
)

var runCmd = &cobra.Command{
	Use:   "run [task...]",
	Short: "Run tasks and everything they depend on",
	Long: `Run the named tasks in order. Each task runs its prerequisites first and
every task runs at most once per invocation. Without arguments the default
task builds the development tree, serves it and rebuilds on change until
interrupted.

Examples:
  sitesmith run                # same as: sitesmith run default
  sitesmith run clean build    # rebuild the development tree from scratch
  sitesmith run pro            # minified production tree and sitemap
  sitesmith run pd             # production build, then deploy if it succeeded`,
	Aliases: []string{"r"},
	RunE:    runTasks,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runTasks(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	orch, err := build.New(cfg, build.WithLogger(logger))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(args) == 0 {
		args = []string{build.TaskDefault}
	}

	if err := orch.Run(ctx, args...); err != nil {
		return describeFailure(err)
	}

	metrics := orch.Metrics()
	logger.Info(context.Background(), "Run complete",
		"tasks", strings.Join(args, ","),
		"succeeded", metrics.SucceededRuns,
		"outputs", metrics.OutputsWritten,
		"duration", metrics.TotalDuration)

	return nil
}

// describeFailure names the failing tasks and the kind of failure so the
// last line of output says what to fix.
func describeFailure(err error) error {
	var runErr *taskgraph.RunError
	if !stderrors.As(err, &runErr) {
		return err
	}

	kind := "build"
	switch {
	case errors.IsDeployError(err):
		kind = "deploy"
	case errors.IsIOError(err):
		kind = "write"
	case errors.IsTransformError(err):
		kind = "transform"
	}

	return fmt.Errorf("%s failed in %s: %w", kind, strings.Join(runErr.FailedTasks(), ", "), err)
}
