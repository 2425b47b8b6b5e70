package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/squeaknode/node/internal/apperrors"
)

// MaxMessageSize bounds a single frame's JSON payload, guarding against
// a misbehaving or malicious peer claiming an enormous length prefix.
const MaxMessageSize = 16 * 1024 * 1024

// maxCommandLen bounds the one-byte command-length prefix; every
// Command constant in this package is well under it.
const maxCommandLen = 32

// WriteMessage frames command and payload as:
//
//	4 bytes  total length of everything that follows
//	1 byte   length of the command string
//	N bytes  command string (ASCII)
//	M bytes  JSON-encoded payload
func WriteMessage(w io.Writer, command Command, payload interface{}) error {
	if len(command) == 0 || len(command) > maxCommandLen {
		return apperrors.New(apperrors.PeerProtocolViolation, "command name out of range")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	frame := make([]byte, 0, 1+len(command)+len(body))
	frame = append(frame, byte(len(command)))
	frame = append(frame, []byte(command)...)
	frame = append(frame, body...)

	if len(frame) > MaxMessageSize {
		return apperrors.New(apperrors.PeerProtocolViolation, "message exceeds maximum size")
	}

	var lengthPrefix [4]byte
	binary.BigEndian.PutUint32(lengthPrefix[:], uint32(len(frame)))

	if _, err := w.Write(lengthPrefix[:]); err != nil {
		return fmt.Errorf("write length prefix: %w", err)
	}
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadMessage reads one framed message and returns its command and raw
// JSON payload, ready for json.Unmarshal into the command's payload
// type.
func ReadMessage(r io.Reader) (Command, json.RawMessage, error) {
	var lengthPrefix [4]byte
	if _, err := io.ReadFull(r, lengthPrefix[:]); err != nil {
		return "", nil, err
	}
	length := binary.BigEndian.Uint32(lengthPrefix[:])
	if length == 0 || length > MaxMessageSize {
		return "", nil, apperrors.New(apperrors.PeerProtocolViolation, "message length out of range")
	}

	frame := make([]byte, length)
	if _, err := io.ReadFull(r, frame); err != nil {
		return "", nil, fmt.Errorf("read frame: %w", err)
	}

	if len(frame) < 1 {
		return "", nil, apperrors.New(apperrors.PeerProtocolViolation, "frame missing command length")
	}
	cmdLen := int(frame[0])
	if cmdLen == 0 || len(frame) < 1+cmdLen {
		return "", nil, apperrors.New(apperrors.PeerProtocolViolation, "frame command length out of range")
	}

	command := Command(frame[1 : 1+cmdLen])
	payload := json.RawMessage(frame[1+cmdLen:])
	return command, payload, nil
}

// DecodePayload unmarshals a message's raw payload into out, wrapping
// JSON errors as a protocol violation since a malformed payload from a
// peer is never this node's bug.
func DecodePayload(payload json.RawMessage, out interface{}) error {
	if err := json.Unmarshal(payload, out); err != nil {
		return apperrors.Wrap(apperrors.PeerProtocolViolation, "decode message payload", err)
	}
	return nil
}
