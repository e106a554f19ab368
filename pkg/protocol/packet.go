package protocol

import (
	"errors"
	"strconv"
	"strings"

	"github.com/klauspost/crc32"
)

const (
	// MaxPacketSize is the largest datagram either side reads or writes (1400 bytes)
	MaxPacketSize = 1400

	// PacketTypeData is the only packet type used in this protocol version
	PacketTypeData = "data"

	packetDelimiter = "|"
)

var (
	ErrMalformedPacket = errors.New("malformed packet")
	ErrPacketTooLarge  = errors.New("packet exceeds maximum size (1400 bytes)")
)

// Packet is the envelope carried by every datagram
// Format: <type>|<seqno>|<body>|<checksum>
type Packet struct {
	Type     string
	SeqNo    int
	Body     string // Encoded application message, may contain '|'
	Checksum string // Decimal CRC32 of the head
}

// MakePacket frames body with a type, a sequence number and a trailing checksum
func MakePacket(typ string, seqno int, body string) string {
	head := typ + packetDelimiter + strconv.Itoa(seqno) + packetDelimiter + body + packetDelimiter
	return head + Checksum(head)
}

// MakeDataPacket frames an application message the way both endpoints send it
func MakeDataPacket(body string) string {
	return MakePacket(PacketTypeData, 0, body)
}

// Checksum returns the unsigned decimal CRC32 (IEEE) of head
func Checksum(head string) string {
	return strconv.FormatUint(uint64(crc32.ChecksumIEEE([]byte(head))), 10)
}

// ParsePacket splits a raw packet into its fields. The body is everything between the
// second delimiter and the last one, so bodies containing '|' survive intact.
// It does not verify the checksum; call ValidateChecksum for that.
func ParsePacket(raw string) (Packet, error) {
	pieces := strings.Split(raw, packetDelimiter)
	if len(pieces) < 4 {
		return Packet{}, ErrMalformedPacket
	}

	seqno, err := strconv.Atoi(pieces[1])
	if err != nil {
		return Packet{}, ErrMalformedPacket
	}

	return Packet{
		Type:     pieces[0],
		SeqNo:    seqno,
		Body:     strings.Join(pieces[2:len(pieces)-1], packetDelimiter),
		Checksum: pieces[len(pieces)-1],
	}, nil
}

// ValidateChecksum reports whether the trailing checksum matches the rest of the packet
func ValidateChecksum(raw string) bool {
	idx := strings.LastIndex(raw, packetDelimiter)
	if idx < 0 {
		return false
	}
	return Checksum(raw[:idx+1]) == raw[idx+1:]
}

// Encode re-frames the packet, recomputing its checksum
func (p Packet) Encode() string {
	return MakePacket(p.Type, p.SeqNo, p.Body)
}

// DecodeDatagram validates and parses an inbound datagram in one step.
// Any checksum mismatch or framing error yields ErrMalformedPacket.
func DecodeDatagram(data []byte) (Packet, error) {
	raw := string(data)
	if !ValidateChecksum(raw) {
		return Packet{}, ErrMalformedPacket
	}
	return ParsePacket(raw)
}
