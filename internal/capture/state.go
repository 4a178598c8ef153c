// Package capture drives the camera flow: acquire a camera, show the live
// stream, take one still, analyze it and present the result.
//
// State holds the pure transition rules. Machine applies them while owning the
// camera session and the in-flight analysis.
package capture

import (
	"fmt"

	"github.com/zombor/yen-lens/internal/scanning"
)

// Status is the phase of the capture flow
type Status int

const (
	Idle Status = iota
	Requesting
	Active
	Scanning
	Success
	Error
)

var statusNames = map[Status]string{
	Idle:       "idle",
	Requesting: "requesting",
	Active:     "active",
	Scanning:   "scanning",
	Success:    "success",
	Error:      "error",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// MarshalText encodes the status by name
func (s Status) MarshalText() ([]byte, error) {
	name, ok := statusNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown capture status %d", int(s))
	}
	return []byte(name), nil
}

// UnmarshalText decodes a status name
func (s *Status) UnmarshalText(text []byte) error {
	for status, name := range statusNames {
		if name == string(text) {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown capture status %q", text)
}

// State is a snapshot of the capture flow. Message is set only in Error and
// Result only in Success.
type State struct {
	Status  Status                      `json:"status"`
	Message string                      `json:"message,omitempty"`
	Result  *scanning.TranslationResult `json:"result,omitempty"`
}

// Start begins camera acquisition
func (s State) Start() (State, bool) {
	if s.Status != Idle && s.Status != Error {
		return s, false
	}
	return State{Status: Requesting}, true
}

// Activated marks the stream as playing
func (s State) Activated() (State, bool) {
	if s.Status != Requesting {
		return s, false
	}
	return State{Status: Active}, true
}

// BeginScan freezes the current frame for analysis
func (s State) BeginScan() (State, bool) {
	if s.Status != Active {
		return s, false
	}
	return State{Status: Scanning}, true
}

// Succeeded stores the analysis result
func (s State) Succeeded(result *scanning.TranslationResult) (State, bool) {
	if s.Status != Scanning {
		return s, false
	}
	return State{Status: Success, Result: result}, true
}

// Failed records a single user-facing message
func (s State) Failed(message string) (State, bool) {
	if s.Status != Requesting && s.Status != Scanning {
		return s, false
	}
	return State{Status: Error, Message: message}, true
}

// Reset returns to Idle from anywhere
func (s State) Reset() (State, bool) {
	return State{Status: Idle}, true
}

// holdsSession reports whether a camera session must exist in this status
func (s Status) holdsSession() bool {
	return s == Requesting || s == Active
}
