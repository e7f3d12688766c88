package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"spa-static-server/utils"
)

const defaultPort = 3000

// Config holds every option of the server. Values are layered: defaults,
// then the TOML config file, then environment variables, then flags that
// were set explicitly on the command line.
type Config struct {
	// Port to listen on. 0 lets the kernel pick one.
	Port int `toml:"port" validate:"min=0,max=65535"`
	// Host or IP to bind.
	Host string `toml:"host" validate:"omitempty,hostname|ip"`
	// Root is the directory whose files are served.
	Root string `toml:"root" validate:"required"`
	// Index is the fallback document. Empty means index.html next to the
	// executable, or under Root when there is none.
	Index string `toml:"index"`
	// WatchIndex caches the index and reloads it on change.
	WatchIndex bool `toml:"watch_index"`
	// Host and port for the prometheus listener, e.g. localhost:2112
	MetricsAddr string `toml:"metrics_addr" validate:"omitempty,hostname_port"`
	// Host and port for the TFTP mirror of Root.
	TFTPAddr string `toml:"tftp_addr" validate:"omitempty,hostname_port"`
	// Host and port for the NFS export of Root.
	NFSAddr string `toml:"nfs_addr" validate:"omitempty,hostname_port"`
	// Seconds to wait for in-flight requests on shutdown.
	ShutdownTimeout int `toml:"shutdown_timeout" validate:"min=0"`
}

func newConfigDefaults() *Config {
	return &Config{
		Port:            defaultPort,
		Host:            "0.0.0.0",
		Root:            ".",
		WatchIndex:      true,
		ShutdownTimeout: 5,
	}
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// loadConfig builds the configuration from args and the environment as seen
// through lookup. Invalid PORT values only produce a warning on logger.
func loadConfig(args []string, lookup func(string) (string, bool), logger *log.Logger) (*Config, error) {
	c := newConfigDefaults()

	fs := flag.NewFlagSet("spa-static-server", flag.ContinueOnError)
	configFile := fs.String("config", "", "path to a TOML config file, also CONFIG_FILE")
	port := fs.Int("port", c.Port, "port to listen on, also PORT")
	host := fs.String("host", c.Host, "host or IP to bind, also HOST")
	root := fs.String("root", c.Root, "directory to serve, also ROOT_DIR")
	index := fs.String("index", c.Index, "fallback document, also INDEX_FILE")
	watchIndex := fs.Bool("watch-index", c.WatchIndex, "cache the index and reload it on change, also WATCH_INDEX")
	metricsAddr := fs.String("metrics", c.MetricsAddr, "host and port for the prometheus listener, also PROM_HOST_AND_PORT")
	tftpAddr := fs.String("tftp", c.TFTPAddr, "host and port for the TFTP mirror, also TFTP_ADDR")
	nfsAddr := fs.String("nfs", c.NFSAddr, "host and port for the NFS export, also NFS_ADDR")
	shutdownTimeout := fs.Int("shutdown-timeout", c.ShutdownTimeout, "seconds to wait for requests on shutdown, also SHUTDOWN_TIMEOUT")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	path := *configFile
	if path == "" {
		path, _ = lookup("CONFIG_FILE")
	}
	if path != "" {
		if err := c.readFile(path); err != nil {
			return nil, err
		}
	}

	if err := c.applyEnv(lookup, logger); err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			c.Port = *port
		case "host":
			c.Host = *host
		case "root":
			c.Root = *root
		case "index":
			c.Index = *index
		case "watch-index":
			c.WatchIndex = *watchIndex
		case "metrics":
			c.MetricsAddr = *metricsAddr
		case "tftp":
			c.TFTPAddr = *tftpAddr
		case "nfs":
			c.NFSAddr = *nfsAddr
		case "shutdown-timeout":
			c.ShutdownTimeout = *shutdownTimeout
		}
	})

	if err := validator.New().Struct(c); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

func (c *Config) readFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := toml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool), logger *log.Logger) error {
	if v, ok := lookup("PORT"); ok && v != "" {
		if p, ok := utils.ParsePort(v); ok {
			c.Port = p
		} else if logger != nil {
			logger.Printf("ignoring invalid PORT %q, using %d", v, c.Port)
		}
	}
	strs := []struct {
		key string
		dst *string
	}{
		{"HOST", &c.Host},
		{"ROOT_DIR", &c.Root},
		{"INDEX_FILE", &c.Index},
		{"PROM_HOST_AND_PORT", &c.MetricsAddr},
		{"TFTP_ADDR", &c.TFTPAddr},
		{"NFS_ADDR", &c.NFSAddr},
	}
	for _, s := range strs {
		if v, ok := lookup(s.key); ok {
			*s.dst = v
		}
	}
	if v, ok := lookup("WATCH_INDEX"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("WATCH_INDEX: %w", err)
		}
		c.WatchIndex = b
	}
	if v, ok := lookup("SHUTDOWN_TIMEOUT"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SHUTDOWN_TIMEOUT: %w", err)
		}
		c.ShutdownTimeout = n
	}
	return nil
}

// resolveIndexPath picks the fallback document. An explicit index is used
// as given; otherwise index.html next to the executable wins over the one
// in root.
func resolveIndexPath(index, root string, executable func() (string, error)) (string, error) {
	if index != "" {
		return filepath.Abs(index)
	}
	if exe, err := executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		candidate := filepath.Join(filepath.Dir(exe), "index.html")
		if fi, err := os.Stat(candidate); err == nil && fi.Mode().IsRegular() {
			return candidate, nil
		}
	}
	// may not exist yet, requests get 500 until it does
	return filepath.Abs(filepath.Join(root, "index.html"))
}
