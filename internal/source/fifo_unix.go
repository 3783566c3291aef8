// ABOUTME: Unix open flags for raw pipe input
// ABOUTME: Non-blocking mode opens the pipe with O_NONBLOCK
//go:build unix

package source

import (
	"os"
	"syscall"
)

func fifoOpenFlags(blocking bool) int {
	if blocking {
		return os.O_RDONLY
	}
	return os.O_RDONLY | syscall.O_NONBLOCK
}
