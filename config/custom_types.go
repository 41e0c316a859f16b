/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TimeDuration represents a time duration that can be parsed from JSON, YAML and text.
// Bare integers are treated as whole seconds, so "60" and "1m" mean the same.
type TimeDuration time.Duration

// ParseTimeDuration parses integer seconds or a Go duration string (e.g. "1h30m").
func ParseTimeDuration(s string) (TimeDuration, error) {
	s = strings.TrimSpace(s)
	if num, err := strconv.ParseInt(s, 10, 64); err == nil {
		if num < 0 {
			return 0, fmt.Errorf("negative value is not allowed: %d", num)
		}
		return TimeDuration(time.Duration(num) * time.Second), nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid time duration format (%s): %w", s, err)
	}
	if dur < 0 {
		return 0, fmt.Errorf("negative value is not allowed: %s", s)
	}
	return TimeDuration(dur), nil
}

// UnmarshalJSON implements json.Unmarshaler interface.
func (d *TimeDuration) UnmarshalJSON(data []byte) error {
	parsed, err := ParseTimeDuration(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler interface.
func (d *TimeDuration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("invalid time duration format: %v", value)
	}
	parsed, err := ParseTimeDuration(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// UnmarshalText implements encoding.TextUnmarshaler interface.
func (d *TimeDuration) UnmarshalText(text []byte) error {
	return d.UnmarshalJSON(text)
}

// String returns the human-readable string representation.
func (d TimeDuration) String() string {
	return time.Duration(d).String()
}

// MarshalJSON implements json.Marshaler interface.
func (d TimeDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// GetTimeDuration reads the key as TimeDuration. Integers (and integer strings, as set
// by environment variables) are seconds.
func GetTimeDuration(dp DataProvider, key string) (TimeDuration, error) {
	val := dp.Get(key)
	switch v := val.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return TimeDuration(v), nil
	case int, int32, int64, uint, uint32, uint64, float64:
		var d TimeDuration
		if err := d.UnmarshalText([]byte(fmt.Sprint(v))); err != nil {
			return 0, dp.WrapKeyErr(key, err)
		}
		return d, nil
	}
	s, err := dp.GetString(key)
	if err != nil {
		return 0, err
	}
	d, err := ParseTimeDuration(s)
	if err != nil {
		return 0, dp.WrapKeyErr(key, err)
	}
	return d, nil
}
