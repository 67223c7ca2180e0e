package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "500ms", "30s", "5m", or bare integers (milliseconds).
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	s := strings.TrimSpace(node.Value)
	if s == "" {
		*d = 0
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(time.Duration(n) * time.Millisecond)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// SizeBytes is a byte count that unmarshals from humanized YAML strings
// like "64KB", "2MiB", or bare integers.
type SizeBytes int64

// Int returns the value as an int.
func (s SizeBytes) Int() int { return int(s) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	v := strings.TrimSpace(node.Value)
	if v == "" {
		*s = 0
		return nil
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		*s = SizeBytes(n)
		return nil
	}
	n, err := humanize.ParseBytes(v)
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", v, err)
	}
	*s = SizeBytes(n)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (s SizeBytes) MarshalYAML() (interface{}, error) {
	return humanize.Bytes(uint64(s)), nil
}
