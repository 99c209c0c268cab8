package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Float is a float64 that also accepts integer values, so "noreadvalue = -99"
// loads the same as "-99.0".
type Float float64

// UnmarshalTOML implements toml.Unmarshaler.
func (f *Float) UnmarshalTOML(v interface{}) error {
	switch n := v.(type) {
	case float64:
		*f = Float(n)
	case int64:
		*f = Float(n)
	default:
		return fmt.Errorf("%w: %v (%T) is not a number", ErrInvalidValue, v, v)
	}
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (f *Float) UnmarshalYAML(node *yaml.Node) error {
	var n float64
	if err := node.Decode(&n); err != nil {
		return fmt.Errorf("%w: line %d: %q is not a number", ErrInvalidValue, node.Line, node.Value)
	}
	*f = Float(n)
	return nil
}
