package protocol

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakePacket(t *testing.T) {
	tests := []struct {
		name  string
		typ   string
		seqno int
		body  string
		want  string
	}{
		{
			name: "join message",
			typ:  PacketTypeData,
			body: "join 5 alice",
			want: "data|0|join 5 alice|1224260137",
		},
		{
			name: "body containing delimiter",
			typ:  PacketTypeData,
			body: "send_message 17 1,bob hi | there",
			want: "data|0|send_message 17 1,bob hi | there|2420205270",
		},
		{
			name: "empty body",
			typ:  PacketTypeData,
			body: "",
			want: "data|0||4145600010",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MakePacket(tt.typ, tt.seqno, tt.body))
		})
	}
}

func TestParsePacket(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Packet
		wantErr error
	}{
		{
			name: "plain body",
			raw:  "data|0|join 5 alice|1224260137",
			want: Packet{Type: "data", SeqNo: 0, Body: "join 5 alice", Checksum: "1224260137"},
		},
		{
			name: "body with several delimiters",
			raw:  "data|7|a|b||c|123",
			want: Packet{Type: "data", SeqNo: 7, Body: "a|b||c", Checksum: "123"},
		},
		{
			name: "empty body",
			raw:  "data|0||4145600010",
			want: Packet{Type: "data", SeqNo: 0, Body: "", Checksum: "4145600010"},
		},
		{
			name:    "too few delimiters",
			raw:     "data|0|123",
			wantErr: ErrMalformedPacket,
		},
		{
			name:    "no delimiter at all",
			raw:     "garbage",
			wantErr: ErrMalformedPacket,
		},
		{
			name:    "non-numeric sequence number",
			raw:     "data|x|body|123",
			wantErr: ErrMalformedPacket,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePacket(tt.raw)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateChecksum(t *testing.T) {
	valid := MakeDataPacket("send_message 13 2,bob,carol hi | all")

	assert.True(t, ValidateChecksum(valid))
	assert.False(t, ValidateChecksum(""), "empty input")
	assert.False(t, ValidateChecksum("no delimiter"), "missing delimiter")
	assert.False(t, ValidateChecksum(valid+"0"), "extra checksum digit")
	assert.False(t, ValidateChecksum(strings.Replace(valid, "bob", "bib", 1)), "tampered body")
	assert.False(t, ValidateChecksum(strings.Replace(valid, "data", "ack", 1)), "tampered type")
}

func TestPacketEncodeRoundTrip(t *testing.T) {
	raw := MakePacket("data", 3, "forward_message 9 1,alice a|b")

	pkt, err := ParsePacket(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, pkt.Encode())
}

func TestDecodeDatagram(t *testing.T) {
	t.Run("valid packet", func(t *testing.T) {
		pkt, err := DecodeDatagram([]byte(MakeDataPacket("request_users_list 0")))
		require.NoError(t, err)
		assert.Equal(t, PacketTypeData, pkt.Type)
		assert.Equal(t, "request_users_list 0", pkt.Body)
	})

	t.Run("corrupted packet is rejected", func(t *testing.T) {
		raw := []byte(MakeDataPacket("request_users_list 0"))
		raw[8] ^= 0x01
		_, err := DecodeDatagram(raw)
		assert.ErrorIs(t, err, ErrMalformedPacket)
	})

	t.Run("valid checksum but bad framing", func(t *testing.T) {
		head := "data|x|"
		_, err := DecodeDatagram([]byte(head + Checksum(head)))
		assert.ErrorIs(t, err, ErrMalformedPacket)
	})
}
