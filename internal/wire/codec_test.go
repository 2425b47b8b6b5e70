package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadMessage_RoundTrips(t *testing.T) {
	var buf bytes.Buffer

	sent := PingMessage{Nonce: 42}
	require.NoError(t, WriteMessage(&buf, CmdPing, sent))

	cmd, payload, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, CmdPing, cmd)

	var got PingMessage
	require.NoError(t, DecodePayload(payload, &got))
	assert.Equal(t, sent.Nonce, got.Nonce)
}

func TestReadMessage_MultipleFramesInSequence(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, CmdPing, PingMessage{Nonce: 1}))
	require.NoError(t, WriteMessage(&buf, CmdPong, PongMessage{Nonce: 1}))

	cmd1, _, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, CmdPing, cmd1)

	cmd2, _, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, CmdPong, cmd2)
}

func TestReadMessage_RejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})

	_, _, err := ReadMessage(&buf)
	assert.Error(t, err)
}

func TestWriteMessage_RejectsEmptyCommand(t *testing.T) {
	var buf bytes.Buffer
	err := WriteMessage(&buf, Command(""), PingMessage{})
	assert.Error(t, err)
}
