package deploy

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/conneroisu/sitesmith/internal/errors"
	"github.com/conneroisu/sitesmith/internal/glob"
	"github.com/conneroisu/sitesmith/internal/logging"
)

// conn is the part of *ftp.ServerConn a deploy uses.
type conn interface {
	Login(user, password string) error
	MakeDir(path string) error
	Stor(path string, r io.Reader) error
	Quit() error
}

type dialFunc func(ctx context.Context, addr string, timeout time.Duration) (conn, error)

// dialFTP connects with every socket, control and data, bounded by ctx: each
// carries ctx's deadline and all of them are closed when ctx is done, so a
// stalled server fails the blocked command instead of hanging it.
func dialFTP(ctx context.Context, addr string, timeout time.Duration) (conn, error) {
	d := &boundDialer{ctx: ctx, dialer: net.Dialer{Timeout: timeout}}
	context.AfterFunc(ctx, d.closeAll)

	c, err := ftp.Dial(addr, ftp.DialWithDialFunc(d.dial))
	if err != nil {
		d.closeAll()
		return nil, err
	}
	return c, nil
}

type boundDialer struct {
	ctx    context.Context
	dialer net.Dialer

	mu     sync.Mutex
	conns  []net.Conn
	closed bool
}

func (d *boundDialer) dial(network, address string) (net.Conn, error) {
	nc, err := d.dialer.DialContext(d.ctx, network, address)
	if err != nil {
		return nil, err
	}
	if deadline, ok := d.ctx.Deadline(); ok {
		if err := nc.SetDeadline(deadline); err != nil {
			nc.Close()
			return nil, err
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		nc.Close()
		return nil, d.ctx.Err()
	}
	d.conns = append(d.conns, nc)
	return nc, nil
}

func (d *boundDialer) closeAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	for _, nc := range d.conns {
		nc.Close()
	}
	d.conns = nil
}

// FTP deploys over plain FTP.
type FTP struct {
	dial   dialFunc
	logger logging.Logger
}

// NewFTP creates an FTP deployer.
func NewFTP(logger logging.Logger) *FTP {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &FTP{dial: dialFTP, logger: logger.WithComponent("deploy")}
}

// Deploy uploads every selected file, creating remote directories as needed.
// The whole transfer is bounded by the remote's timeout.
func (f *FTP) Deploy(ctx context.Context, job Job) (Report, error) {
	if err := job.Check(); err != nil {
		return Report{}, err
	}

	files, err := job.Files()
	if err != nil {
		return Report{}, err
	}

	timeout := job.Remote.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	op := logging.StartOperation(f.logger, "deploy")
	report, err := f.transfer(ctx, job, files, timeout)
	if err != nil {
		op.EndWithError(ctx, err)
		return report, err
	}
	op.End(ctx)

	return report, nil
}

func (f *FTP) transfer(ctx context.Context, job Job, files []glob.File, timeout time.Duration) (Report, error) {
	var report Report

	// fail turns a network error into a DeployError, naming the timeout when
	// the deadline is what cut the exchange short.
	fail := func(msg string, err error) *errors.PipelineError {
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) || stderrors.Is(err, os.ErrDeadlineExceeded) {
			return errors.NewDeployError(errors.CodeDeployTimeout,
				fmt.Sprintf("%s: timed out after %s", msg, timeout), err)
		}
		return errors.NewDeployError(errors.CodeDeployFailed, msg, err)
	}

	addr := job.Remote.Addr()
	c, err := f.dial(ctx, addr, timeout)
	if err != nil {
		return report, fail("connecting to "+addr, err)
	}
	defer func() {
		if err := c.Quit(); err != nil {
			f.logger.Debug(ctx, "FTP quit failed", "error", err.Error())
		}
	}()

	if err := c.Login(job.Remote.User, job.Remote.Password); err != nil {
		return report, fail("login as "+job.Remote.User, err)
	}

	remoteRoot := job.Remote.RemoteRoot
	if remoteRoot == "" {
		remoteRoot = "/"
	}

	made := make(map[string]bool)
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return report, fail("deploy interrupted", err).WithFile(file.Path)
		}

		dest := path.Join(remoteRoot, file.Path)
		f.makeParents(c, path.Dir(dest), made)

		n, err := upload(c, filepath.Join(job.SourceRoot, filepath.FromSlash(file.Path)), dest)
		if err != nil {
			return report, fail("uploading "+dest, err).WithFile(file.Path)
		}

		report.Files = append(report.Files, file.Path)
		report.Bytes += n
		f.logger.Debug(ctx, "Uploaded file", "file", file.Path, "bytes", n)
	}

	f.logger.Info(ctx, "Deploy finished", "host", job.Remote.Host, "files", len(report.Files), "bytes", report.Bytes)
	return report, nil
}

// makeParents creates dir and its ancestors once per deploy. Errors are
// ignored: the directory usually exists already, and a real failure shows up
// in the following STOR.
func (f *FTP) makeParents(c conn, dir string, made map[string]bool) {
	if dir == "." || dir == "/" || made[dir] {
		return
	}
	f.makeParents(c, path.Dir(dir), made)

	if err := c.MakeDir(dir); err != nil {
		f.logger.Debug(context.Background(), "MKD failed", "dir", dir, "error", err.Error())
	}
	made[dir] = true
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func upload(c conn, local, remote string) (int64, error) {
	file, err := os.Open(local)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", local, err)
	}
	defer file.Close()

	cr := &countingReader{r: file}
	if err := c.Stor(remote, cr); err != nil {
		return cr.n, err
	}
	return cr.n, nil
}
