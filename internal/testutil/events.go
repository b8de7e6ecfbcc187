package testutil

import (
	"time"

	"github.com/vk/buildtreego/internal/event"
)

// Epoch is the fixed timestamp event builders use unless overridden.
var Epoch = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

// StartEvent builds a start event with a deterministic timestamp.
func StartEvent(id, parentID, message string) event.Event {
	return event.Event{
		Kind:     event.KindStart,
		ID:       id,
		ParentID: parentID,
		Message:  message,
		Time:     Epoch,
	}
}

// ProgressEvent builds a progress event.
func ProgressEvent(id, message, hint string) event.Event {
	return event.Event{
		Kind:    event.KindProgress,
		ID:      id,
		Message: message,
		Hint:    hint,
		Time:    Epoch.Add(time.Second),
	}
}

// MessageEvent builds a message event with the given severity.
func MessageEvent(id, parentID, text string, sev event.Severity) event.Event {
	return event.Event{
		Kind:     event.KindMessage,
		ID:       id,
		ParentID: parentID,
		Message:  text,
		Time:     Epoch.Add(time.Second),
		Msg:      &event.MessagePayload{Severity: sev},
	}
}

// FileMessageEvent builds a message event carrying a group and file position.
func FileMessageEvent(id, parentID, text, group, path string, line, col int, sev event.Severity) event.Event {
	e := MessageEvent(id, parentID, text, sev)
	e.Msg.Group = group
	e.Msg.File = &event.FilePosition{Path: path, Line: line, Column: col}
	return e
}

// FinishEvent builds a finish event with the given status.
func FinishEvent(id string, status event.Status, failures ...event.Failure) event.Event {
	return event.Event{
		Kind: event.KindFinish,
		ID:   id,
		Time: Epoch.Add(2 * time.Second),
		Finish: &event.FinishPayload{
			Status:   status,
			Failures: failures,
		},
	}
}
