package event

import "fmt"

// Severity orders diagnostic messages by how bad they are. The numeric order
// is part of the contract: a greater value is strictly worse, and grouping
// nodes merge severities by maximum.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

// WorseThan reports whether s is strictly worse than other.
func (s Severity) WorseThan(other Severity) bool {
	return s > other
}

// String returns the wire name of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// ParseSeverity maps a wire name back to a Severity. The empty string is
// accepted as info so producers may omit the field for plain output lines.
func ParseSeverity(s string) (Severity, error) {
	switch s {
	case "", "info":
		return SeverityInfo, nil
	case "warning":
		return SeverityWarning, nil
	case "error":
		return SeverityError, nil
	}
	return 0, fmt.Errorf("unknown severity %q", s)
}
