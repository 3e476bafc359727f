package wire

import "time"

// SignalSubject carries tracker signals relayed over NATS.
const SignalSubject = "completion.signals"

// Signal is the queued form of a mark_complete request. Unlike the HTTP
// form it names the user explicitly, since the publisher is a trusted relay.
type Signal struct {
	EventID   string    `json:"event_id"`
	VideoID   string    `json:"video_id"`
	UserID    string    `json:"user_id"`
	EmittedAt time.Time `json:"emitted_at"`
}

func (s Signal) Validate() error {
	bad := map[string]string{}
	if s.VideoID == "" {
		bad["video_id"] = "required"
	}
	if s.UserID == "" {
		bad["user_id"] = "required"
	}
	if len(bad) > 0 {
		return &ValidationError{Fields: bad}
	}
	return nil
}
