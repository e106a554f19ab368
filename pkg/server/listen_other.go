//go:build !linux

package server

import (
	"context"
	"time"
)

// monitorReceiveErrors is a no-op on non-Linux systems
func (s *Server) monitorReceiveErrors(ctx context.Context, interval time.Duration) {
}
