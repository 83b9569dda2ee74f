// Package wsframe encodes and decodes the one-byte-tagged binary messages
// exchanged between the browser and the terminal bridge.
//
// Every application-level frame begins with a single ASCII command byte;
// the remainder is the payload. Tags are reused between directions (e.g.
// Input and Output are both '0') because a frame is never ambiguous about
// its own direction — client-origin frames are only ever decoded with
// DecodeCommand, server-origin frames only ever built with Encode.
package wsframe

// Client -> server tags.
const (
	Input          byte = '0' // raw bytes for PTY stdin
	ResizeTerminal byte = '1' // JSON {"columns":N,"rows":N}
	JSONData       byte = '{' // JSON, may carry AuthToken
)

// Server -> client tags.
const (
	Output         byte = '0' // raw PTY stdout bytes
	SetWindowTitle byte = '1' // UTF-8 title string
	SetPreferences byte = '2' // verbatim prefs JSON
	SetReconnect   byte = '3' // decimal reconnect seconds
)

// Encode prepends tag to payload, producing a frame ready to send as a
// binary WebSocket message.
func Encode(tag byte, payload []byte) []byte {
	frame := make([]byte, 1+len(payload))
	frame[0] = tag
	copy(frame[1:], payload)
	return frame
}

// DecodeCommand splits a complete (reassembled) inbound frame into its
// command tag and payload. ok is false only for an empty frame.
func DecodeCommand(frame []byte) (tag byte, payload []byte, ok bool) {
	if len(frame) == 0 {
		return 0, nil, false
	}
	return frame[0], frame[1:], true
}
