package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"io/fs"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	httpx "spa-static-server/http"
	"spa-static-server/nfs"
	"spa-static-server/tftp"
	"spa-static-server/utils"
)

// bindError is a listener that could not be opened at startup.
type bindError struct {
	service string
	addr    string
	err     error
}

func (e *bindError) Error() string {
	return "start " + e.service + " failure: " + describeBindError(e.addr, e.err)
}

func (e *bindError) Unwrap() error { return e.err }

// services are the listeners started for one configuration.
type services struct {
	index   *httpx.IndexFile
	http    *httpx.Server
	metrics *httpx.Server
	tftp    *tftp.Server
	nfs     net.Listener
}

// start opens every configured listener. On error the ones already opened
// are closed again.
func start(cfg *Config, indexPath string, stdout io.Writer) (*services, error) {
	loggerHTTP := log.New(stdout, "http ", log.LstdFlags)

	root := utils.ReadOnly(osfs.New(cfg.Root))
	s := &services{
		index: httpx.NewIndexFile(osfs.New(filepath.Dir(indexPath)), filepath.Base(indexPath)),
	}
	if cfg.WatchIndex {
		if err := s.index.Watch(indexPath, loggerHTTP); err != nil {
			loggerHTTP.Printf("index watch disabled, reading %s per request: %v", indexPath, err)
		}
	}

	reg := prometheus.NewRegistry()
	metrics := httpx.NewMetrics(reg)

	var err error
	s.http, err = httpx.StartHTTPServer(cfg.Addr(), httpx.NewSPAHandler(root, s.index, metrics, loggerHTTP), loggerHTTP)
	if err != nil {
		s.close()
		return nil, &bindError{service: "http", addr: cfg.Addr(), err: err}
	}

	if cfg.MetricsAddr != "" {
		loggerProm := log.New(stdout, "metrics ", log.LstdFlags)
		s.metrics, err = httpx.StartHTTPServer(cfg.MetricsAddr, metrics.Handler(), loggerProm)
		if err != nil {
			s.close()
			return nil, &bindError{service: "metrics", addr: cfg.MetricsAddr, err: err}
		}
		loggerProm.Printf("metrics listening on %s", s.metrics.Addr())
	}

	if cfg.NFSAddr != "" {
		loggerNFS := log.New(stdout, "nfs ", log.LstdFlags)
		s.nfs, err = nfs.StartNFSServer(cfg.NFSAddr, root, loggerNFS)
		if err != nil {
			s.close()
			return nil, &bindError{service: "nfs", addr: cfg.NFSAddr, err: err}
		}
	}
	if cfg.TFTPAddr != "" {
		loggerTFTP := log.New(stdout, "tftp ", log.LstdFlags)
		s.tftp, err = tftp.StartTFTPServer(cfg.TFTPAddr, root, loggerTFTP)
		if err != nil {
			s.close()
			return nil, &bindError{service: "tftp", addr: cfg.TFTPAddr, err: err}
		}
	}

	return s, nil
}

// announce prints the two startup lines.
func announce(logger *log.Logger, port int) {
	logger.Printf("server running on port %d", port)
	logger.Printf("open: http://localhost:%d", port)
}

// shutdown drains HTTP until ctx expires and closes everything else.
func (s *services) shutdown(ctx context.Context) error {
	var errs []error
	if s.http != nil {
		errs = append(errs, s.http.Shutdown(ctx))
		s.http = nil
	}
	if s.metrics != nil {
		errs = append(errs, s.metrics.Shutdown(ctx))
		s.metrics = nil
	}
	s.close()
	return errors.Join(errs...)
}

// close releases whatever is still open without waiting for requests.
func (s *services) close() {
	if s.http != nil {
		s.http.Close()
		s.http = nil
	}
	if s.metrics != nil {
		s.metrics.Close()
		s.metrics = nil
	}
	if s.tftp != nil {
		s.tftp.Shutdown()
		s.tftp = nil
	}
	if s.nfs != nil {
		s.nfs.Close()
		s.nfs = nil
	}
	if s.index != nil {
		s.index.Close()
	}
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("error loading .env file: %v", err)
	}

	cfg, err := loadConfig(os.Args[1:], os.LookupEnv, log.Default())
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("configuration failure: %v", err)
	}

	indexPath, err := resolveIndexPath(cfg.Index, cfg.Root, os.Executable)
	if err != nil {
		log.Fatalf("index path failure: %v", err)
	}

	svc, err := start(cfg, indexPath, os.Stdout)
	if err != nil {
		log.Fatal(err)
	}

	announce(log.New(os.Stdout, "", 0), utils.PortOf(svc.http.Addr().String()))

	// Block until termination signal to keep goroutine servers alive
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	log.Printf("received signal %s, exiting", sig)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := svc.shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
