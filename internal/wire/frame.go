package wire

import (
	"encoding/json"
	"errors"
	"strings"
)

const (
	FrameContext = "player.js"
	FrameVersion = "1.0"
)

// Frame is a player.js postMessage envelope. Inbound frames carry Event,
// outbound frames carry Method.
type Frame struct {
	Context  string          `json:"context"`
	Version  string          `json:"version,omitempty"`
	Event    string          `json:"event,omitempty"`
	Method   string          `json:"method,omitempty"`
	Value    json.RawMessage `json:"value,omitempty"`
	Listener string          `json:"listener,omitempty"`
}

var ErrForeignFrame = errors.New("not a player.js frame")

// ParseFrame decodes a postMessage payload, including string-wrapped JSON.
// Frames from other protocols sharing the channel yield ErrForeignFrame.
func ParseFrame(raw []byte) (Frame, error) {
	data := raw
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		data = []byte(s)
	}
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, ErrForeignFrame
	}
	if !strings.EqualFold(f.Context, FrameContext) {
		return Frame{}, ErrForeignFrame
	}
	return f, nil
}

// MethodFrame builds an outbound method call. Getters carry a listener id
// that the player echoes on its reply.
func MethodFrame(method string, value any, listener string) ([]byte, error) {
	f := Frame{Context: FrameContext, Version: FrameVersion, Method: method, Listener: listener}
	if value != nil {
		b, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		f.Value = b
	}
	return json.Marshal(f)
}
