//go:build unix

package main

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// describeBindError names the usual reasons a listener cannot be bound.
func describeBindError(addr string, err error) string {
	switch {
	case errors.Is(err, unix.EADDRINUSE):
		return fmt.Sprintf("address %s is already in use: %v", addr, err)
	case errors.Is(err, unix.EACCES):
		return fmt.Sprintf("permission denied binding %s (ports below 1024 need privileges): %v", addr, err)
	case errors.Is(err, unix.EADDRNOTAVAIL):
		return fmt.Sprintf("address %s is not available on this host: %v", addr, err)
	}
	return fmt.Sprintf("cannot bind %s: %v", addr, err)
}
