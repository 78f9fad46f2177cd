package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML can specify intervals either as
// strings like "24h" or as integer nanoseconds.
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var asInt int64
	if errInt := node.Decode(&asInt); errInt == nil {
		d.Duration = time.Duration(asInt)
		return nil
	}
	var asString string
	if errString := node.Decode(&asString); errString != nil {
		return fmt.Errorf("config: invalid duration: %w", errString)
	}
	parsed, errParse := time.ParseDuration(asString)
	if errParse != nil {
		return fmt.Errorf("config: invalid duration %q: %w", asString, errParse)
	}
	d.Duration = parsed
	return nil
}
