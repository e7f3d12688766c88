package httpx

import (
	"bytes"
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5"

	"spa-static-server/utils"
)

const dirIndex = "index.html"

// SPAHandler serves files from root and answers every other GET or HEAD with
// the index document so client-side routing can take over.
type SPAHandler struct {
	root    billy.Filesystem
	index   *IndexFile
	metrics *Metrics
	logger  *log.Logger
}

// NewSPAHandler builds the handler. metrics and logger may be nil.
func NewSPAHandler(root billy.Filesystem, index *IndexFile, metrics *Metrics, logger *log.Logger) *SPAHandler {
	return &SPAHandler{root: root, index: index, metrics: metrics, logger: logger}
}

func (h *SPAHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		h.metrics.observe(RouteNotFound)
		http.NotFound(w, r)
		return
	}
	if utils.ContainsDotDot(r.URL.Path) {
		h.metrics.observe(RouteForbidden)
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}
	if h.serveStatic(w, r) {
		return
	}
	h.serveIndex(w, r)
}

// serveStatic answers r from the root filesystem and reports whether it did.
// Lookups that find nothing servable are left to the fallback.
func (h *SPAHandler) serveStatic(w http.ResponseWriter, r *http.Request) bool {
	name := path.Clean("/" + r.URL.Path)
	if utils.IsHidden(name) {
		return false
	}
	rel := strings.TrimPrefix(name, "/")

	if rel != "" {
		fi, err := h.root.Stat(rel)
		switch {
		case errors.Is(err, billy.ErrCrossedBoundary):
			h.metrics.observe(RouteForbidden)
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return true
		case err != nil:
			return false
		case fi.Mode().IsRegular():
			return h.serveFile(w, r, rel)
		case !fi.IsDir():
			return false
		}
	}

	// directory: serve its index.html, if it has one
	idx := path.Join(rel, dirIndex)
	fi, err := h.root.Stat(idx)
	if err != nil || !fi.Mode().IsRegular() {
		return false
	}
	if rel != "" && !strings.HasSuffix(r.URL.Path, "/") {
		target := name + "/"
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		h.metrics.observe(RouteRedirect)
		http.Redirect(w, r, target, http.StatusMovedPermanently)
		return true
	}
	return h.serveFile(w, r, idx)
}

func (h *SPAHandler) serveFile(w http.ResponseWriter, r *http.Request, rel string) bool {
	fi, err := h.root.Stat(rel)
	if err != nil {
		return false
	}
	f, err := h.root.Open(rel)
	if err != nil {
		return false
	}
	defer f.Close()
	h.metrics.observe(RouteStatic)
	http.ServeContent(w, r, fi.Name(), fi.ModTime(), f)
	return true
}

func (h *SPAHandler) serveIndex(w http.ResponseWriter, r *http.Request) {
	data, modTime, err := h.index.Load()
	if err != nil {
		h.metrics.observe(RouteError)
		if h.logger != nil {
			h.logger.Printf("index %q unavailable for %s: %v", h.index.Name(), r.URL.Path, err)
		}
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.metrics.observe(RouteIndex)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	http.ServeContent(w, r, dirIndex, modTime, bytes.NewReader(data))
}

// Server is a running HTTP listener.
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger *log.Logger
	done   chan struct{}
}

// StartHTTPServer binds addr and serves handler in the background. The bind
// happens before returning so that address errors reach the caller.
func StartHTTPServer(addr string, handler http.Handler, logger *log.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		srv:    &http.Server{Handler: handler, ErrorLog: logger},
		ln:     ln,
		logger: logger,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Printf("http serve error: %v", err)
			}
		}
	}()
	return s, nil
}

// Addr is the bound address, useful when addr asked for port 0.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Close stops the server immediately, dropping active connections.
func (s *Server) Close() error {
	err := s.srv.Close()
	s.ln.Close()
	<-s.done
	return err
}

// Shutdown stops accepting connections and waits for active requests until
// ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	// Serve may not have taken ownership of the listener yet
	s.ln.Close()
	select {
	case <-s.done:
	case <-ctx.Done():
	}
	return err
}
