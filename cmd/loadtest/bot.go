package main

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aeolun/udpchat/pkg/protocol"
)

const loremIpsum = "Lorem ipsum dolor sit amet, consectetur adipiscing elit, sed do eiusmod tempor incididunt ut labore et dolore magna aliqua. Ut enim ad minim veniam, quis nostrud exercitation ullamco laboris nisi ut aliquip ex ea commodo consequat. Duis aute irure dolor in reprehenderit in voluptate velit esse cillum dolore eu fugiat nulla pariatur."

var loremWords = strings.Fields(loremIpsum)

var errRejected = errors.New("join rejected")

// Stats tracks load test results across all bots
type Stats struct {
	messagesSent      atomic.Int64
	messagesEchoed    atomic.Int64
	timeouts          atomic.Int64
	totalResponseTime atomic.Int64 // in microseconds
	joinFailures      atomic.Int64
	corruptPackets    atomic.Int64
}

func (s *Stats) recordEcho(responseTime time.Duration) {
	s.messagesEchoed.Add(1)
	s.totalResponseTime.Add(responseTime.Microseconds())
}

func (s *Stats) snapshot() (sent, echoed, timeouts int64, avgResponseUs float64) {
	sent = s.messagesSent.Load()
	echoed = s.messagesEchoed.Load()
	timeouts = s.timeouts.Load()
	if echoed > 0 {
		avgResponseUs = float64(s.totalResponseTime.Load()) / float64(echoed)
	}
	return
}

// Bot is a scripted participant: every message it sends names itself as a
// recipient, so the forward it gets back measures one server round trip
type Bot struct {
	id       int
	username string
	peers    []string
	conn     net.Conn
	stats    *Stats
	timeout  time.Duration
}

// NewBot dials the server; peers are other bot names to copy messages to
func NewBot(id int, serverAddr string, peers []string, stats *Stats, timeout time.Duration) (*Bot, error) {
	conn, err := net.Dial("udp", serverAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}
	return &Bot{
		id:       id,
		username: botName(id),
		peers:    peers,
		conn:     conn,
		stats:    stats,
		timeout:  timeout,
	}, nil
}

func botName(id int) string {
	return fmt.Sprintf("bot%03d", id)
}

// Join registers the bot and confirms it with a list round trip, since a
// successful join has no reply of its own
func (b *Bot) Join() error {
	if err := b.send(protocol.JoinMessage(b.username)); err != nil {
		return err
	}
	if err := b.send(protocol.RequestUsersListMessage()); err != nil {
		return err
	}

	deadline := time.Now().Add(b.timeout)
	for {
		msg, err := b.receive(deadline)
		if err != nil {
			return err
		}
		switch {
		case msg.Verb.IsError():
			return fmt.Errorf("%w: %s", errRejected, msg.Verb)
		case msg.Verb == protocol.VerbResponseUsersList:
			for _, name := range msg.Names() {
				if name == b.username {
					return nil
				}
			}
			return fmt.Errorf("%s missing from user list", b.username)
		}
	}
}

// SendRandomMessage sends lorem text to itself and a random peer, then waits
// for its own copy to come back
func (b *Bot) SendRandomMessage() error {
	wordCount := 5 + rand.Intn(16)
	words := make([]string, 0, wordCount+1)
	marker := fmt.Sprintf("#%d", rand.Int63())
	words = append(words, marker)
	for i := 0; i < wordCount; i++ {
		words = append(words, loremWords[rand.Intn(len(loremWords))])
	}
	text := strings.Join(words, " ")

	recipients := []string{b.username}
	if len(b.peers) > 0 {
		recipients = append(recipients, b.peers[rand.Intn(len(b.peers))])
	}

	start := time.Now()
	if err := b.send(protocol.SendMessage(recipients, text)); err != nil {
		return err
	}
	b.stats.messagesSent.Add(1)

	deadline := start.Add(b.timeout)
	for {
		msg, err := b.receive(deadline)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				b.stats.timeouts.Add(1)
			}
			return err
		}
		if msg.Verb == protocol.VerbForwardMessage && strings.HasPrefix(msg.Text, marker+" ") {
			b.stats.recordEcho(time.Since(start))
			return nil
		}
		// forwards from other bots are expected while waiting
	}
}

// Run sends messages with random pauses until duration elapses, then disconnects
func (b *Bot) Run(duration, minDelay, maxDelay time.Duration) {
	defer b.conn.Close()

	endTime := time.Now().Add(duration)
	for time.Now().Before(endTime) {
		_ = b.SendRandomMessage()

		delay := minDelay
		if maxDelay > minDelay {
			delay += time.Duration(rand.Int63n(int64(maxDelay - minDelay)))
		}
		time.Sleep(delay)
	}

	_ = b.send(protocol.DisconnectMessage(b.username))
}

func (b *Bot) send(message string) error {
	_, err := b.conn.Write([]byte(protocol.MakeDataPacket(message)))
	return err
}

func (b *Bot) receive(deadline time.Time) (protocol.Message, error) {
	if err := b.conn.SetReadDeadline(deadline); err != nil {
		return protocol.Message{}, err
	}

	buf := make([]byte, protocol.MaxPacketSize)
	for {
		n, err := b.conn.Read(buf)
		if err != nil {
			return protocol.Message{}, err
		}
		pkt, err := protocol.DecodeDatagram(buf[:n])
		if err != nil {
			b.stats.corruptPackets.Add(1)
			continue
		}
		return protocol.DecodeMessage(pkt.Body), nil
	}
}
