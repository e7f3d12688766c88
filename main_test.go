package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSite(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>Home</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "style.css"), []byte("body{}"), 0o644))
	return dir
}

func testConfig(root string) *Config {
	c := newConfigDefaults()
	c.Host = "127.0.0.1"
	c.Port = 0
	c.Root = root
	return c
}

func get(t *testing.T, url string) (int, string, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b), resp.Header.Get("Content-Type")
}

func TestStart(t *testing.T) {
	root := newSite(t)
	cfg := testConfig(root)
	cfg.MetricsAddr = "127.0.0.1:0"
	cfg.NFSAddr = "127.0.0.1:0"

	svc, err := start(cfg, filepath.Join(root, "index.html"), io.Discard)
	require.NoError(t, err)
	defer svc.shutdown(context.Background())

	base := "http://" + svc.http.Addr().String()

	code, body, ctype := get(t, base+"/style.css")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "body{}", body)
	assert.True(t, strings.HasPrefix(ctype, "text/css"))

	code, body, ctype = get(t, base+"/about")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "<html>Home</html>", body)
	assert.True(t, strings.HasPrefix(ctype, "text/html"))

	code, body, _ = get(t, "http://"+svc.metrics.Addr().String()+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `spaserver_http_requests_total{route="index"} 1`)
	assert.Contains(t, body, `spaserver_http_requests_total{route="static"} 1`)

	conn, err := net.DialTimeout("tcp", svc.nfs.Addr().String(), 2*time.Second)
	require.NoError(t, err)
	conn.Close()
}

func TestStartIndexReload(t *testing.T) {
	root := newSite(t)
	svc, err := start(testConfig(root), filepath.Join(root, "index.html"), io.Discard)
	require.NoError(t, err)
	defer svc.shutdown(context.Background())

	base := "http://" + svc.http.Addr().String()
	_, body, _ := get(t, base+"/dashboard")
	require.Equal(t, "<html>Home</html>", body)

	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<html>v2</html>"), 0o644))
	assert.Eventually(t, func() bool {
		_, body, _ := get(t, base+"/dashboard")
		return body == "<html>v2</html>"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestStartMissingIndex(t *testing.T) {
	root := newSite(t)
	cfg := testConfig(root)
	cfg.WatchIndex = false

	svc, err := start(cfg, filepath.Join(root, "missing", "index.html"), io.Discard)
	require.NoError(t, err)
	defer svc.shutdown(context.Background())

	base := "http://" + svc.http.Addr().String()
	code, _, _ := get(t, base+"/about")
	assert.Equal(t, http.StatusInternalServerError, code)

	code, body, _ := get(t, base+"/style.css")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "body{}", body)
}

func TestStartPortInUse(t *testing.T) {
	root := newSite(t)
	first, err := start(testConfig(root), filepath.Join(root, "index.html"), io.Discard)
	require.NoError(t, err)
	defer first.shutdown(context.Background())

	cfg := testConfig(root)
	cfg.Port = first.http.Addr().(*net.TCPAddr).Port
	_, err = start(cfg, filepath.Join(root, "index.html"), io.Discard)
	require.Error(t, err)

	var be *bindError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "http", be.service)
	assert.Contains(t, err.Error(), "start http failure")
}

func TestStartSecondaryBindFailureReleasesHTTP(t *testing.T) {
	root := newSite(t)
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	cfg := testConfig(root)
	cfg.Port = port
	cfg.MetricsAddr = busy.Addr().String()
	_, err = start(cfg, filepath.Join(root, "index.html"), io.Discard)
	require.Error(t, err)
	var be *bindError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "metrics", be.service)

	// the http listener opened before the failure was released
	cfg.MetricsAddr = ""
	again, err := start(cfg, filepath.Join(root, "index.html"), io.Discard)
	require.NoError(t, err)
	again.shutdown(context.Background())
}

func TestAnnounce(t *testing.T) {
	var buf bytes.Buffer
	announce(log.New(&buf, "", 0), 8080)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "server running on port 8080", lines[0])
	assert.Equal(t, "open: http://localhost:8080", lines[1])
}

func TestStartLogsNoHTTPListenLine(t *testing.T) {
	root := newSite(t)
	out := &syncWriter{}
	svc, err := start(testConfig(root), filepath.Join(root, "index.html"), out)
	require.NoError(t, err)
	base := "http://" + svc.http.Addr().String()
	get(t, base+"/")
	require.NoError(t, svc.shutdown(context.Background()))

	assert.NotContains(t, out.String(), "listening")
}

type syncWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncWriter) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}
