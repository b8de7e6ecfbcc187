package registry

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// StringOption reads a string attribute from a source's option map. Missing
// attributes return ok=false; present attributes of the wrong type error.
func StringOption(opts map[string]cty.Value, key string) (string, bool, error) {
	raw, ok := opts[key]
	if !ok || raw.IsNull() {
		return "", false, nil
	}
	val, err := convert.Convert(raw, cty.String)
	if err != nil {
		return "", false, fmt.Errorf("option %q: %w", key, err)
	}
	return val.AsString(), true, nil
}

// BoolOption reads a bool attribute from a source's option map.
func BoolOption(opts map[string]cty.Value, key string) (bool, bool, error) {
	raw, ok := opts[key]
	if !ok || raw.IsNull() {
		return false, false, nil
	}
	val, err := convert.Convert(raw, cty.Bool)
	if err != nil {
		return false, false, fmt.Errorf("option %q: %w", key, err)
	}
	return val.True(), true, nil
}

// IntOption reads an integer attribute from a source's option map.
func IntOption(opts map[string]cty.Value, key string) (int, bool, error) {
	raw, ok := opts[key]
	if !ok || raw.IsNull() {
		return 0, false, nil
	}
	var out int
	if err := gocty.FromCtyValue(raw, &out); err != nil {
		return 0, false, fmt.Errorf("option %q: %w", key, err)
	}
	return out, true, nil
}

// RequireString reads a mandatory string attribute.
func RequireString(opts map[string]cty.Value, key string) (string, error) {
	val, ok, err := StringOption(opts, key)
	if err != nil {
		return "", err
	}
	if !ok || val == "" {
		return "", fmt.Errorf("option %q is required", key)
	}
	return val, nil
}
