package wsframe

import (
	"encoding/json"
	"fmt"
)

// WindowTitle builds the SET_WINDOW_TITLE payload: "<argv0> (<hostname>)".
func WindowTitle(argv0, hostname string) []byte {
	return []byte(fmt.Sprintf("%s (%s)", argv0, hostname))
}

// Reconnect builds the SET_RECONNECT payload: the decimal seconds hint.
func Reconnect(seconds int) []byte {
	return []byte(fmt.Sprintf("%d", seconds))
}

// WindowSize is the JSON shape of a RESIZE_TERMINAL payload.
type WindowSize struct {
	Columns int `json:"columns"`
	Rows    int `json:"rows"`
}

// ParseWindowSize parses a RESIZE_TERMINAL payload. Malformed JSON is the
// caller's cue to log and ignore rather than treat as fatal.
func ParseWindowSize(payload []byte) (WindowSize, error) {
	var ws WindowSize
	if err := json.Unmarshal(payload, &ws); err != nil {
		return WindowSize{}, fmt.Errorf("wsframe: parse window size: %w", err)
	}
	return ws, nil
}

// AuthMessage is the JSON shape of a JSON_DATA payload carrying credentials.
type AuthMessage struct {
	AuthToken string `json:"AuthToken"`
}

// ParseAuth parses a JSON_DATA payload. A payload with no AuthToken field
// parses successfully with an empty token, which never matches a
// configured non-empty credential.
func ParseAuth(payload []byte) (AuthMessage, error) {
	var msg AuthMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return AuthMessage{}, fmt.Errorf("wsframe: parse auth: %w", err)
	}
	return msg, nil
}
