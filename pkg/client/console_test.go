package client

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsolePlainOutput(t *testing.T) {
	var buf bytes.Buffer
	console := NewConsole(&buf)

	require.NoError(t, console.print(listNotice([]string{"alice", "bob"})))
	require.NoError(t, console.print(chatNotice("alice", "hello there")))
	require.NoError(t, console.print(disconnectNotice("server full")))
	require.NoError(t, console.print(warningNotice("incorrect userinput format")))

	assert.Equal(t,
		"list: alice bob\n"+
			"msg: alice: hello there\n"+
			"disconnected: server full\n"+
			"incorrect userinput format\n",
		buf.String())
}

func TestConsoleMultilineNotice(t *testing.T) {
	var buf bytes.Buffer
	console := NewConsole(&buf)

	require.NoError(t, console.print(infoNotice(HelpText)))
	assert.Equal(t, HelpText+"\n", buf.String())
}
