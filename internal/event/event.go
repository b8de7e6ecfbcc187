// Package event defines the build event stream consumed by the aggregator.
//
// An Event is an immutable fact emitted by an external task runner: a build
// step started, made progress, produced a diagnostic message, or finished.
// The set of kinds is closed; consumers switch over Kind exhaustively and
// payloads are populated per kind (MessagePayload for KindMessage,
// FinishPayload for KindFinish, nil otherwise).
package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind classifies a build event.
type Kind int

const (
	// KindStart marks the beginning of a build step. The first start event
	// carrying no parent identifier opens the build root.
	KindStart Kind = iota
	// KindProgress reports liveness for a step that is already running. A
	// progress event for an unknown identifier lazily synthesizes its node.
	KindProgress
	// KindMessage carries a diagnostic produced by a step.
	KindMessage
	// KindFinish closes a step and carries its result.
	KindFinish
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindProgress:
		return "progress"
	case KindMessage:
		return "message"
	case KindFinish:
		return "finish"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Status is the outcome recorded by a finish event.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailure
	StatusSkipped
)

// String returns the wire name of the status.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusSkipped:
		return "skipped"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// FilePosition points a diagnostic at a location in a source file. Path is
// resolved against the externally supplied working directory root.
type FilePosition struct {
	Path   string `json:"path"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

// Failure carries the details attached to a failed result.
type Failure struct {
	Message     string `json:"message"`
	Description string `json:"description,omitempty"`
}

// MessagePayload is the kind-specific payload of a KindMessage event.
type MessagePayload struct {
	Severity Severity
	// Group names the message group the diagnostic belongs to, e.g. a
	// compiler or linter name. Grouping nodes are synthesized per group.
	Group string
	// File is the optional source position; when present the grouping
	// resolver additionally synthesizes working-directory, source-root and
	// file grouping nodes.
	File *FilePosition
}

// FinishPayload is the kind-specific payload of a KindFinish event.
type FinishPayload struct {
	Status   Status
	Failures []Failure
}

// Event is a single immutable record of the build event stream.
type Event struct {
	Kind     Kind
	ID       string
	ParentID string
	Message  string
	Hint     string
	Time     time.Time

	// Msg is non-nil iff Kind is KindMessage.
	Msg *MessagePayload
	// Finish is non-nil iff Kind is KindFinish.
	Finish *FinishPayload
}

// Validate checks the kind/payload consistency contract.
func (e Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("event %q has no identifier", e.Kind)
	}
	switch e.Kind {
	case KindStart, KindProgress:
		if e.Msg != nil || e.Finish != nil {
			return fmt.Errorf("%s event %q carries a payload of another kind", e.Kind, e.ID)
		}
	case KindMessage:
		if e.Msg == nil {
			return fmt.Errorf("message event %q has no message payload", e.ID)
		}
	case KindFinish:
		if e.Finish == nil {
			return fmt.Errorf("finish event %q has no result payload", e.ID)
		}
	default:
		return fmt.Errorf("unknown event kind %d", int(e.Kind))
	}
	return nil
}

// wireEvent is the flat JSON representation used by the source transports.
type wireEvent struct {
	Kind     string        `json:"kind"`
	ID       string        `json:"id"`
	ParentID string        `json:"parent_id,omitempty"`
	Message  string        `json:"message,omitempty"`
	Hint     string        `json:"hint,omitempty"`
	Time     time.Time     `json:"time"`
	Severity string        `json:"severity,omitempty"`
	Group    string        `json:"group,omitempty"`
	File     *FilePosition `json:"file,omitempty"`
	Status   string        `json:"status,omitempty"`
	Failures []Failure     `json:"failures,omitempty"`
}

// MarshalJSON implements json.Marshaler using the flat wire layout.
func (e Event) MarshalJSON() ([]byte, error) {
	w := wireEvent{
		Kind:     e.Kind.String(),
		ID:       e.ID,
		ParentID: e.ParentID,
		Message:  e.Message,
		Hint:     e.Hint,
		Time:     e.Time,
	}
	if e.Msg != nil {
		w.Severity = e.Msg.Severity.String()
		w.Group = e.Msg.Group
		w.File = e.Msg.File
	}
	if e.Finish != nil {
		w.Status = e.Finish.Status.String()
		w.Failures = e.Finish.Failures
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler. Unknown kinds, severities and
// statuses are rejected so a misbehaving producer fails at the decode
// boundary instead of corrupting the tree.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	out := Event{
		ID:       w.ID,
		ParentID: w.ParentID,
		Message:  w.Message,
		Hint:     w.Hint,
		Time:     w.Time,
	}

	switch w.Kind {
	case "start":
		out.Kind = KindStart
	case "progress":
		out.Kind = KindProgress
	case "message":
		out.Kind = KindMessage
		sev, err := ParseSeverity(w.Severity)
		if err != nil {
			return fmt.Errorf("event %q: %w", w.ID, err)
		}
		out.Msg = &MessagePayload{Severity: sev, Group: w.Group, File: w.File}
	case "finish":
		out.Kind = KindFinish
		status, err := parseStatus(w.Status)
		if err != nil {
			return fmt.Errorf("event %q: %w", w.ID, err)
		}
		out.Finish = &FinishPayload{Status: status, Failures: w.Failures}
	default:
		return fmt.Errorf("event %q: unknown kind %q", w.ID, w.Kind)
	}

	if err := out.Validate(); err != nil {
		return err
	}
	*e = out
	return nil
}

func parseStatus(s string) (Status, error) {
	switch s {
	case "", "success":
		return StatusSuccess, nil
	case "failure":
		return StatusFailure, nil
	case "skipped":
		return StatusSkipped, nil
	}
	return 0, fmt.Errorf("unknown status %q", s)
}
