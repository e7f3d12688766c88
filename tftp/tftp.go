package tftp

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"path"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	tftp "github.com/pin/tftp/v3"

	"spa-static-server/utils"
)

var (
	errNotFound  = errors.New("file not found")
	errForbidden = errors.New("access violation")
	errReadOnly  = errors.New("server is read-only")
)

// Server mirrors the static root over TFTP.
type Server struct {
	srv    *tftp.Server
	conn   *net.UDPConn
	logger *log.Logger
}

// resolve maps a TFTP filename onto a regular file in root.
func resolve(root billy.Filesystem, filename string) (string, int64, error) {
	name := strings.TrimSpace(filename)
	if utils.ContainsDotDot(name) {
		return "", 0, errForbidden
	}
	rel := strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(name, `\`, "/")), "/")
	if rel == "" || utils.IsHidden(rel) {
		return "", 0, errNotFound
	}
	fi, err := root.Stat(rel)
	if err != nil || !fi.Mode().IsRegular() {
		return "", 0, errNotFound
	}
	return rel, fi.Size(), nil
}

func serveFile(root billy.Filesystem, rel string, rf io.ReaderFrom) error {
	f, err := root.Open(rel)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = rf.ReadFrom(f)
	return err
}

func readHandler(root billy.Filesystem, logger *log.Logger) func(string, io.ReaderFrom) error {
	return func(filename string, rf io.ReaderFrom) error {
		rel, size, err := resolve(root, filename)
		if err != nil {
			if logger != nil {
				logger.Printf("RRQ %q refused: %v", filename, err)
			}
			return err
		}
		if ot, ok := rf.(tftp.OutgoingTransfer); ok {
			ot.SetSize(size)
		}
		if err := serveFile(root, rel, rf); err != nil {
			return fmt.Errorf("send %q: %w", rel, err)
		}
		return nil
	}
}

func writeHandler(logger *log.Logger) func(string, io.WriterTo) error {
	return func(filename string, _ io.WriterTo) error {
		if logger != nil {
			logger.Printf("WRQ %q refused", filename)
		}
		return errReadOnly
	}
}

// StartTFTPServer binds addr and serves read requests from root in the
// background. Unlike HTTP there is no index fallback.
func StartTFTPServer(addr string, root billy.Filesystem, logger *log.Logger) (*Server, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}

	srv := tftp.NewServer(readHandler(root, logger), writeHandler(logger))
	srv.SetTimeout(5 * time.Second)

	go func() {
		if logger != nil {
			logger.Printf("TFTP server listening on %s", conn.LocalAddr())
		}
		if err := srv.Serve(conn); err != nil {
			if logger != nil {
				logger.Printf("TFTP server error: %v", err)
			}
		}
	}()
	return &Server{srv: srv, conn: conn, logger: logger}, nil
}

func (s *Server) Addr() net.Addr { return s.conn.LocalAddr() }

// Shutdown waits for in-flight transfers and stops the server. The socket is
// closed here as well since the library only closes it once Serve has run.
func (s *Server) Shutdown() {
	s.srv.Shutdown()
	if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) && s.logger != nil {
		s.logger.Printf("TFTP close error: %v", err)
	}
}
