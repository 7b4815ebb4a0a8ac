package deploy

import (
	"bufio"
	"context"
	stderrors "errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/sitesmith/internal/errors"
	"github.com/conneroisu/sitesmith/internal/logging"
)

type fakeConn struct {
	mu       sync.Mutex
	user     string
	password string
	dirs     []string
	stored   map[string]string
	quit     bool
	loginErr error
	storErr  error
}

func (c *fakeConn) Login(user, password string) error {
	c.user, c.password = user, password
	return c.loginErr
}

func (c *fakeConn) MakeDir(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirs = append(c.dirs, path)
	return stderrors.New("550 exists")
}

func (c *fakeConn) Stor(path string, r io.Reader) error {
	if c.storErr != nil {
		return c.storErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stored[path] = string(data)
	return nil
}

func (c *fakeConn) Quit() error {
	c.quit = true
	return nil
}

func newFake(t *testing.T, c *fakeConn) (*FTP, *string) {
	t.Helper()
	if c.stored == nil {
		c.stored = make(map[string]string)
	}
	var dialed string
	f := NewFTP(nil)
	f.dial = func(_ context.Context, addr string, _ time.Duration) (conn, error) {
		dialed = addr
		return c, nil
	}
	return f, &dialed
}

func productionTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range map[string]string{
		"index.html":    "<html></html>",
		"css/style.css": "body{}",
		"img/a/b.png":   "png",
		"sitemap.xml":   "<urlset/>",
	} {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func TestFTPDeployUploadsTree(t *testing.T) {
	c := &fakeConn{}
	f, dialed := newFake(t, c)

	report, err := f.Deploy(context.Background(), Job{
		SourceRoot: productionTree(t),
		Remote:     Remote{Host: "ftp.example.com", User: "site", Password: "secret", RemoteRoot: "/www"},
	})
	require.NoError(t, err)

	assert.Equal(t, "ftp.example.com:21", *dialed)
	assert.Equal(t, "site", c.user)
	assert.Equal(t, "secret", c.password)
	assert.True(t, c.quit)

	assert.Equal(t, map[string]string{
		"/www/index.html":    "<html></html>",
		"/www/css/style.css": "body{}",
		"/www/img/a/b.png":   "png",
		"/www/sitemap.xml":   "<urlset/>",
	}, c.stored)
	assert.Len(t, report.Files, 4)
	assert.EqualValues(t, len("<html></html>")+len("body{}")+len("png")+len("<urlset/>"), report.Bytes)

	// Each directory is created once, parents first.
	assert.Equal(t, []string{"/www", "/www/css", "/www/img", "/www/img/a"}, c.dirs)
}

func TestFTPDeployGlobs(t *testing.T) {
	c := &fakeConn{}
	f, _ := newFake(t, c)

	report, err := f.Deploy(context.Background(), Job{
		SourceRoot: productionTree(t),
		Remote:     Remote{Host: "h", Port: 2121},
		Globs:      []string{"**/*.html", "**/*.css"},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"index.html", "css/style.css"}, report.Files)
	assert.Contains(t, c.stored, "/css/style.css")
}

func TestFTPDeployNotConfigured(t *testing.T) {
	f, dialed := newFake(t, &fakeConn{})

	_, err := f.Deploy(context.Background(), Job{SourceRoot: t.TempDir()})
	require.Error(t, err)
	assert.True(t, errors.IsDeployError(err))

	var pe *errors.PipelineError
	require.True(t, stderrors.As(err, &pe))
	assert.Equal(t, errors.CodeDeployNotConfig, pe.Code)
	assert.Empty(t, *dialed)
}

func TestFTPDeployFailuresAreDeployErrors(t *testing.T) {
	testCases := []struct {
		name string
		conn *fakeConn
		dial error
	}{
		{name: "dial", conn: &fakeConn{}, dial: stderrors.New("connection refused")},
		{name: "login", conn: &fakeConn{loginErr: stderrors.New("530 login incorrect")}},
		{name: "stor", conn: &fakeConn{storErr: stderrors.New("552 quota")}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f, _ := newFake(t, tc.conn)
			attempts := 0
			if tc.dial != nil {
				f.dial = func(context.Context, string, time.Duration) (conn, error) {
					attempts++
					return nil, tc.dial
				}
			}

			_, err := f.Deploy(context.Background(), Job{
				SourceRoot: productionTree(t),
				Remote:     Remote{Host: "h"},
			})
			require.Error(t, err)
			assert.True(t, errors.IsDeployError(err))
			assert.False(t, errors.IsTransformError(err))
			if tc.dial != nil {
				assert.Equal(t, 1, attempts)
			}
		})
	}
}

func TestRemoteAddr(t *testing.T) {
	assert.Equal(t, "example.com:21", Remote{Host: "example.com"}.Addr())
	assert.Equal(t, "example.com:990", Remote{Host: "example.com", Port: 990}.Addr())
	assert.Equal(t, "[::1]:21", Remote{Host: "::1"}.Addr())
}

// stallingServer greets, reads one command and never answers it.
func stallingServer(t *testing.T) Remote {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan struct{})
	t.Cleanup(func() {
		close(done)
		ln.Close()
	})

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				io.WriteString(c, "220 hello\r\n")
				bufio.NewReader(c).ReadString('\n')
				<-done
			}()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return Remote{Host: "127.0.0.1", Port: addr.Port, User: "site", Password: "secret"}
}

func TestFTPDeployTimeoutBoundsStalledServer(t *testing.T) {
	remote := stallingServer(t)
	remote.Timeout = 300 * time.Millisecond

	logger := logging.NewRecordingLogger()
	f := NewFTP(logger)

	job := Job{SourceRoot: productionTree(t), Remote: remote}
	out := make(chan error, 1)
	go func() {
		_, err := f.Deploy(context.Background(), job)
		out <- err
	}()

	select {
	case err := <-out:
		require.Error(t, err)
		assert.True(t, errors.IsDeployError(err))

		var pe *errors.PipelineError
		require.True(t, stderrors.As(err, &pe))
		assert.Equal(t, errors.CodeDeployTimeout, pe.Code)
		assert.Contains(t, err.Error(), "timed out after 300ms")
	case <-time.After(5 * time.Second):
		t.Fatal("deploy still running after its timeout on a stalled login")
	}

	var failed bool
	for _, e := range logger.Entries() {
		if e.Message == "Operation failed" && e.Fields["operation"] == "deploy" {
			failed = true
		}
	}
	assert.True(t, failed, "deploy failure is logged with its duration")
}

func TestFTPDeployCancelledContext(t *testing.T) {
	remote := stallingServer(t)
	remote.Timeout = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	job := Job{SourceRoot: productionTree(t), Remote: remote}
	out := make(chan error, 1)
	go func() {
		_, err := NewFTP(nil).Deploy(ctx, job)
		out <- err
	}()

	select {
	case err := <-out:
		require.Error(t, err)
		assert.True(t, errors.IsDeployError(err))
	case <-time.After(5 * time.Second):
		t.Fatal("deploy ignored cancellation on a stalled login")
	}
}
