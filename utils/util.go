package utils

import (
	"net"
	"strconv"
	"strings"
)

// ParsePort parses a decimal TCP/UDP port. Anything that is not a number in
// 0..65535 is rejected.
func ParsePort(s string) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v < 0 || v > 65535 {
		return 0, false
	}
	return v, true
}

// PortOf returns the port of a listener address such as ":3000" or
// "0.0.0.0:3000", or -1 when none can be found.
func PortOf(addr string) int {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		// try when only ":NNN" present
		if strings.HasPrefix(addr, ":") {
			p = addr[1:]
		} else {
			return -1
		}
	}
	v, ok := ParsePort(p)
	if !ok {
		return -1
	}
	return v
}

// ContainsDotDot reports whether any slash separated segment of p is "..".
func ContainsDotDot(p string) bool {
	if !strings.Contains(p, "..") {
		return false
	}
	for _, seg := range strings.FieldsFunc(p, isSlash) {
		if seg == ".." {
			return true
		}
	}
	return false
}

// IsHidden reports whether any segment of p is a dotfile or dot directory.
func IsHidden(p string) bool {
	for _, seg := range strings.FieldsFunc(p, isSlash) {
		if strings.HasPrefix(seg, ".") && seg != "." {
			return true
		}
	}
	return false
}

func isSlash(r rune) bool { return r == '/' || r == '\\' }
