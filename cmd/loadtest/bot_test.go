package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeolun/udpchat/pkg/server"
)

func startServer(t *testing.T, maxClients int) string {
	t.Helper()
	config := server.DefaultConfig()
	config.Address = "127.0.0.1"
	config.Port = 0
	config.MaxClients = maxClients

	conn, err := server.Listen(context.Background(), config)
	require.NoError(t, err)

	srv, err := server.NewServer(config, server.NewPacketOutbox(conn), zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx, conn)
	t.Cleanup(cancel)

	return conn.LocalAddr().String()
}

func TestBotRoundTrip(t *testing.T) {
	addr := startServer(t, server.MaxClients)
	stats := &Stats{}

	bot, err := NewBot(1, addr, []string{"bot002"}, stats, 2*time.Second)
	require.NoError(t, err)
	defer bot.conn.Close()

	require.NoError(t, bot.Join())
	require.NoError(t, bot.SendRandomMessage())

	sent, echoed, timeouts, _ := stats.snapshot()
	assert.Equal(t, int64(1), sent)
	assert.Equal(t, int64(1), echoed)
	assert.Zero(t, timeouts)
}

func TestBotJoinRejected(t *testing.T) {
	addr := startServer(t, 1)
	stats := &Stats{}

	first, err := NewBot(1, addr, nil, stats, 2*time.Second)
	require.NoError(t, err)
	defer first.conn.Close()
	require.NoError(t, first.Join())

	second, err := NewBot(2, addr, nil, stats, 2*time.Second)
	require.NoError(t, err)
	defer second.conn.Close()

	err = second.Join()
	assert.True(t, errors.Is(err, errRejected), "got %v", err)
}

func TestRunLoadTest(t *testing.T) {
	addr := startServer(t, server.MaxClients)
	stats := &Stats{}

	runLoadTest(context.Background(), zerolog.Nop(), addr, 3, 300*time.Millisecond, 10*time.Millisecond, 20*time.Millisecond, time.Second, stats)

	sent, echoed, _, _ := stats.snapshot()
	assert.Positive(t, sent)
	assert.Positive(t, echoed)
	assert.Zero(t, stats.joinFailures.Load())
}
