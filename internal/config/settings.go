// Package config loads job configuration from a YAML or JSON file and
// command-line flags. File keys ignore case and separators, so warm_up,
// warm-up, warmUp and warmup name the same setting.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// setting binds the names a file may use for one field to its setter.
// The first key is the canonical one and prefixes any error.
type setting struct {
	keys  []string
	apply func(raw interface{}) error
}

func normalizeKey(key string) string {
	return strings.NewReplacer("_", "", "-", "").Replace(strings.ToLower(strings.TrimSpace(key)))
}

func applySettings(settings map[string]interface{}, table []setting) error {
	if len(settings) == 0 {
		return nil
	}
	index := make(map[string]interface{}, len(settings))
	for k, v := range settings {
		index[normalizeKey(k)] = v
	}
	for _, s := range table {
		for _, key := range s.keys {
			raw, ok := index[normalizeKey(key)]
			if !ok {
				continue
			}
			if err := s.apply(raw); err != nil {
				return fmt.Errorf("%s: %w", s.keys[0], err)
			}
			break
		}
	}
	return nil
}

func stringInto(dst *string) func(interface{}) error {
	return func(raw interface{}) error {
		val, err := cast.ToStringE(raw)
		if err != nil {
			return err
		}
		*dst = strings.TrimSpace(val)
		return nil
	}
}

// rawStringInto keeps surrounding whitespace, for bodies and character sets.
func rawStringInto(dst *string) func(interface{}) error {
	return func(raw interface{}) error {
		val, err := cast.ToStringE(raw)
		if err != nil {
			return err
		}
		*dst = val
		return nil
	}
}

func intInto(dst *int) func(interface{}) error {
	return func(raw interface{}) error {
		val, err := cast.ToIntE(raw)
		if err != nil {
			return err
		}
		*dst = val
		return nil
	}
}

func floatInto(dst *float64) func(interface{}) error {
	return func(raw interface{}) error {
		val, err := cast.ToFloat64E(raw)
		if err != nil {
			return err
		}
		*dst = val
		return nil
	}
}

func boolInto(dst *bool) func(interface{}) error {
	return func(raw interface{}) error {
		val, err := cast.ToBoolE(raw)
		if err != nil {
			return err
		}
		*dst = val
		return nil
	}
}

// listInto accepts a YAML sequence or a single scalar, which becomes a
// one-element list.
func listInto(dst *[]string) func(interface{}) error {
	return func(raw interface{}) error {
		if s, ok := raw.(string); ok {
			*dst = []string{strings.TrimSpace(s)}
			return nil
		}
		vals, err := cast.ToStringSliceE(raw)
		if err != nil {
			return err
		}
		*dst = vals
		return nil
	}
}

// durationInto reads bare numbers as seconds.
func durationInto(dst *time.Duration) func(interface{}) error {
	return durationIn(dst, time.Second)
}

// millisInto reads bare numbers as milliseconds, for settings the LDAP tools
// traditionally express that way.
func millisInto(dst *time.Duration) func(interface{}) error {
	return durationIn(dst, time.Millisecond)
}

// durationIn scales unitless numbers, quoted or not, by unit. Strings with a
// unit suffix go through time.ParseDuration.
func durationIn(dst *time.Duration, unit time.Duration) func(interface{}) error {
	return func(raw interface{}) error {
		var n float64
		switch v := raw.(type) {
		case nil:
			*dst = 0
			return nil
		case time.Duration:
			*dst = v
			return nil
		case string:
			text := strings.TrimSpace(v)
			f, err := strconv.ParseFloat(text, 64)
			if err != nil {
				d, err := time.ParseDuration(text)
				if err != nil {
					return err
				}
				*dst = d
				return nil
			}
			n = f
		default:
			f, err := cast.ToFloat64E(raw)
			if err != nil {
				return err
			}
			n = f
		}
		*dst = time.Duration(n * float64(unit))
		return nil
	}
}

func sectionInto(table func(map[string]interface{}) error) func(interface{}) error {
	return func(raw interface{}) error {
		if raw == nil {
			return nil
		}
		section, err := cast.ToStringMapE(raw)
		if err != nil {
			return err
		}
		return table(section)
	}
}

// eachEntry walks a sequence of mappings, tagging errors with the entry index.
func eachEntry(raw interface{}, fn func(map[string]interface{}) error) error {
	if raw == nil {
		return nil
	}
	items, err := cast.ToSliceE(raw)
	if err != nil {
		return err
	}
	for idx, item := range items {
		entry, err := cast.ToStringMapE(item)
		if err == nil {
			err = fn(entry)
		}
		if err != nil {
			return fmt.Errorf("index %d: %w", idx, err)
		}
	}
	return nil
}
