package config

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// findUniqueBlock searches the merged block list for all blocks of a given
// type and errors when more than one is found. No block returns nil.
func findUniqueBlock(blocks []*hcl.Block, name string) (*hcl.Block, error) {
	var found *hcl.Block
	for _, block := range blocks {
		if block.Type != name {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("duplicate %q block at %s, only one is allowed", name, block.DefRange)
		}
		found = block
	}
	return found, nil
}

// bodyAttributes evaluates every attribute of a body to its cty value. Source
// bodies carry only literal attributes; expressions needing an evaluation
// context are rejected here.
func bodyAttributes(body hcl.Body) (map[string]cty.Value, error) {
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w", diags)
	}
	out := make(map[string]cty.Value, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("attribute %q: %w", name, diags)
		}
		out[name] = val
	}
	return out, nil
}
