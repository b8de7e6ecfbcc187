// Package grouping synthesizes the intermediate parent nodes for diagnostic
// messages: the message group, and for file-bound diagnostics the working
// directory, source root and file levels beneath it.
package grouping

// Key is the derived composite identifier of a synthesized grouping node.
// A comparable struct keeps derivation deterministic without the collision
// hazard of concatenated hash strings.
type Key struct {
	// Group is the message group name, e.g. "compiler".
	Group string
	// Scope anchors the key: the parent event identifier for group nodes,
	// or the directory/file path for the path-derived levels.
	Scope string
}

// ID renders the key as a store identifier. The prefix keeps derived
// identifiers out of the event identifier namespace.
func (k Key) ID() string {
	return "group::" + k.Group + "::" + k.Scope
}
