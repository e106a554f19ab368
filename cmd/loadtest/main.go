package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aeolun/udpchat/pkg/logging"
	"github.com/aeolun/udpchat/pkg/server"
)

func main() {
	address := flag.String("a", "localhost", "Server IP or hostname")
	port := flag.Int("p", 15000, "Server port")
	numClients := flag.Int("clients", server.MaxClients, "Number of concurrent bots")
	duration := flag.Duration("duration", 1*time.Minute, "Test duration")
	minDelay := flag.Duration("min-delay", 100*time.Millisecond, "Minimum delay between messages")
	maxDelay := flag.Duration("max-delay", 1*time.Second, "Maximum delay between messages")
	timeout := flag.Duration("timeout", 2*time.Second, "How long to wait for a message to come back")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	level := "info"
	if *debug {
		level = "debug"
	}
	logger := logging.New(level, os.Stderr)

	serverAddr := net.JoinHostPort(*address, strconv.Itoa(*port))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("server", serverAddr).
		Int("clients", *numClients).
		Dur("duration", *duration).
		Dur("min_delay", *minDelay).
		Dur("max_delay", *maxDelay).
		Msg("starting load test")

	stats := &Stats{}
	runLoadTest(ctx, logger, serverAddr, *numClients, *duration, *minDelay, *maxDelay, *timeout, stats)
	report(logger, stats, *duration)
}

// runLoadTest starts numClients bots and waits for them to finish
func runLoadTest(ctx context.Context, logger zerolog.Logger, serverAddr string, numClients int, duration, minDelay, maxDelay, timeout time.Duration, stats *Stats) {
	names := make([]string, numClients)
	for i := range names {
		names[i] = botName(i)
	}

	// Ramp up over 25% of the test duration
	staggerDelay := duration / 4 / time.Duration(max(numClients, 1))
	if staggerDelay < time.Millisecond {
		staggerDelay = time.Millisecond
	}

	reporterCtx, stopReporter := context.WithCancel(ctx)
	defer stopReporter()
	go reportPeriodically(reporterCtx, logger, stats, 5*time.Second)

	var wg sync.WaitGroup
	for i := 0; i < numClients; i++ {
		if ctx.Err() != nil {
			break
		}

		peers := make([]string, 0, numClients-1)
		for j, name := range names {
			if j != i {
				peers = append(peers, name)
			}
		}

		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			bot, err := NewBot(id, serverAddr, peers, stats, timeout)
			if err != nil {
				stats.joinFailures.Add(1)
				logger.Warn().Err(err).Int("bot", id).Msg("dial failed")
				return
			}
			if err := bot.Join(); err != nil {
				stats.joinFailures.Add(1)
				logger.Warn().Err(err).Int("bot", id).Msg("join failed")
				bot.conn.Close()
				return
			}
			logger.Debug().Str("user", bot.username).Msg("joined")

			remaining := duration - time.Duration(id)*staggerDelay
			bot.Run(remaining, minDelay, maxDelay)
		}(i)

		time.Sleep(staggerDelay)
	}

	wg.Wait()
}

func reportPeriodically(ctx context.Context, logger zerolog.Logger, stats *Stats, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ticker.C:
			sent, echoed, timeouts, avgUs := stats.snapshot()
			logger.Info().
				Int64("sent", sent).
				Float64("rate", float64(sent)/time.Since(start).Seconds()).
				Int64("echoed", echoed).
				Int64("timeouts", timeouts).
				Float64("avg_ms", avgUs/1000).
				Msg("stats")
		case <-ctx.Done():
			return
		}
	}
}

func report(logger zerolog.Logger, stats *Stats, duration time.Duration) {
	sent, echoed, timeouts, avgUs := stats.snapshot()

	event := logger.Info().
		Dur("duration", duration).
		Int64("sent", sent).
		Float64("rate", float64(sent)/duration.Seconds()).
		Int64("echoed", echoed).
		Int64("timeouts", timeouts).
		Int64("join_failures", stats.joinFailures.Load()).
		Int64("corrupt_packets", stats.corruptPackets.Load()).
		Float64("avg_ms", avgUs/1000)
	if sent > 0 {
		event = event.Float64("echo_rate_pct", float64(echoed)/float64(sent)*100)
	}
	event.Msg("final results")
}
