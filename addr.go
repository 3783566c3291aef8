// ABOUTME: Listen address helpers
// ABOUTME: Extracts the numeric port advertised over mDNS
package main

import (
	"fmt"
	"net"
	"strconv"
)

func portOf(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return 0, fmt.Errorf("listen address %q has no fixed port", addr)
	}
	return port, nil
}
