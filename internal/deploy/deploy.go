// Package deploy uploads a finished production tree to a remote host.
//
// A deploy is a single attempt. Any failure ends it with a DeployError and
// nothing is retried.
package deploy

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/conneroisu/sitesmith/internal/errors"
	"github.com/conneroisu/sitesmith/internal/glob"
)

// DefaultTimeout bounds a deploy whose Remote carries no timeout.
const DefaultTimeout = 2 * time.Minute

// Remote is the connection configuration handed through from config. Its
// fields are not interpreted beyond reaching the server.
type Remote struct {
	Host       string
	Port       int
	User       string
	Password   string
	RemoteRoot string
	Timeout    time.Duration
}

// Addr returns host:port, defaulting the port to 21.
func (r Remote) Addr() string {
	port := r.Port
	if port == 0 {
		port = 21
	}
	return net.JoinHostPort(r.Host, strconv.Itoa(port))
}

// Job describes one upload.
type Job struct {
	// SourceRoot is the local production root.
	SourceRoot string
	Remote     Remote
	// Globs select files below SourceRoot. Empty means everything.
	Globs []string
}

// Report lists what a deploy uploaded.
type Report struct {
	Files []string
	Bytes int64
}

// Deployer uploads the files a Job selects.
type Deployer interface {
	Deploy(ctx context.Context, job Job) (Report, error)
}

// Files resolves the job's globs against its source root.
func (j Job) Files() ([]glob.File, error) {
	patterns := j.Globs
	if len(patterns) == 0 {
		patterns = []string{"**"}
	}

	set := glob.New(patterns...)
	if err := set.Validate(); err != nil {
		return nil, errors.NewDeployError(errors.CodeDeployFailed, "invalid deploy globs", err)
	}

	files, err := set.Resolve(j.SourceRoot)
	if err != nil {
		return nil, errors.NewDeployError(errors.CodeDeployFailed,
			fmt.Sprintf("listing %s", j.SourceRoot), err)
	}
	return files, nil
}

// Check rejects jobs that cannot reach any server.
func (j Job) Check() error {
	if j.Remote.Host == "" {
		return errors.NewDeployError(errors.CodeDeployNotConfig,
			"deploy host is not configured (set deploy.host or SITESMITH_DEPLOY_HOST)", nil)
	}
	if j.SourceRoot == "" {
		return errors.NewDeployError(errors.CodeDeployFailed, "deploy source root is empty", nil)
	}
	return nil
}
