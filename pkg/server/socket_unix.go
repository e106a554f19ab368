// ABOUTME: Unix-specific socket options for SO_REUSEADDR
// ABOUTME: Allows quick server restart on the same UDP port
//go:build unix

package server

import (
	"syscall"
)

// setSocketOptions sets platform-specific socket options
func setSocketOptions(fd uintptr) error {
	return syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
}
