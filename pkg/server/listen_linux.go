//go:build linux

package server

import (
	"bufio"
	"context"
	"os"
	"strconv"
	"strings"
	"time"
)

// monitorReceiveErrors periodically checks the kernel's UDP receive-buffer
// overflow counter. Datagrams lost there never reach the receive loop.
func (s *Server) monitorReceiveErrors(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last, ok := udpReceiveBufferErrors()
	if !ok {
		s.log.Debug().Msg("udp receive buffer counters unavailable")
		return
	}

	for {
		select {
		case <-ticker.C:
			current, ok := udpReceiveBufferErrors()
			if !ok {
				continue
			}
			if current > last {
				delta := current - last
				s.metrics.RecordKernelDrops(delta)
				s.log.Warn().
					Uint64("dropped", delta).
					Uint64("total", current).
					Msg("datagrams dropped by kernel receive buffer")
			}
			last = current

		case <-ctx.Done():
			return
		}
	}
}

// udpReceiveBufferErrors reads the host-wide RcvbufErrors counter from /proc/net/snmp
func udpReceiveBufferErrors() (uint64, bool) {
	file, err := os.Open("/proc/net/snmp")
	if err != nil {
		return 0, false
	}
	defer file.Close()

	return parseUDPReceiveBufferErrors(bufio.NewScanner(file))
}

func parseUDPReceiveBufferErrors(scanner *bufio.Scanner) (uint64, bool) {
	var headers, values []string
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "Udp:") {
			continue
		}
		fields := strings.Fields(line)[1:]
		if headers == nil {
			headers = fields
			continue
		}
		values = fields
		break
	}

	for i, header := range headers {
		if header == "RcvbufErrors" && i < len(values) {
			n, err := strconv.ParseUint(values[i], 10, 64)
			return n, err == nil
		}
	}
	return 0, false
}
