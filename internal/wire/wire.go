// Package wire holds the request/response contract between the watch tracker
// and the completion service, and the tolerant decoding of player samples.
package wire

import (
	"sort"
	"strings"
)

type Action string

const (
	ActionMarkComplete     Action = "mark_complete"
	ActionToggleCompletion Action = "toggle_completion"

	actionMarkCompleteAlias Action = "markcomplete"
)

// Normalize maps legacy spellings onto the canonical action name.
func (a Action) Normalize() Action {
	v := Action(strings.ToLower(strings.TrimSpace(string(a))))
	if v == actionMarkCompleteAlias {
		return ActionMarkComplete
	}
	return v
}

// Request is the single inbound message of the completion endpoint.
// For mark_complete the user is taken from the authenticated session; a
// UserID in the body is only honoured when it matches.
type Request struct {
	Action   Action `json:"action"`
	VideoID  string `json:"videoId"`
	UserID   string `json:"userId,omitempty"`
	NewState *int   `json:"newState,omitempty"`
}

type Response struct {
	Success         bool   `json:"success"`
	AlreadyComplete *bool  `json:"alreadyComplete,omitempty"`
	Message         string `json:"message,omitempty"`
	Code            string `json:"code,omitempty"`
}

// ValidationError lists offending fields with a human readable reason.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

// Validate normalizes the action and checks the fields it requires.
func (r *Request) Validate() error {
	bad := map[string]string{}
	r.Action = r.Action.Normalize()
	r.VideoID = strings.TrimSpace(r.VideoID)
	r.UserID = strings.TrimSpace(r.UserID)

	switch r.Action {
	case ActionMarkComplete:
	case ActionToggleCompletion:
		if r.UserID == "" {
			bad["userId"] = "required for toggle_completion"
		}
		if r.NewState == nil {
			bad["newState"] = "required for toggle_completion"
		} else if *r.NewState != 0 && *r.NewState != 1 {
			bad["newState"] = "must be 0 or 1"
		}
	case "":
		bad["action"] = "required"
	default:
		bad["action"] = "unknown action " + string(r.Action)
	}
	if r.VideoID == "" {
		bad["videoId"] = "required"
	}
	if len(bad) > 0 {
		return &ValidationError{Fields: bad}
	}
	return nil
}

// Satisfied reports the requested toggle target.
func (r Request) Satisfied() bool {
	return r.NewState != nil && *r.NewState == 1
}

func Bool(v bool) *bool { return &v }

func Int(v int) *int { return &v }
