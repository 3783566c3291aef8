// ABOUTME: Open flags for raw pipe input on platforms without O_NONBLOCK
// ABOUTME: Always opens blocking
//go:build !unix

package source

import "os"

func fifoOpenFlags(bool) int {
	return os.O_RDONLY
}
