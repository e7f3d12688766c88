//go:build !unix

package main

import "fmt"

func describeBindError(addr string, err error) string {
	return fmt.Sprintf("cannot bind %s: %v", addr, err)
}
