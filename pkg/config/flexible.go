package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// FlexibleStringSlice is a []string that also accepts a single string and
// numbers, so ignore lists can hold both "123" and 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = nil
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexibleStringSlice{s}
		return nil
	}

	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

func (f *FlexibleStringSlice) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*f = FlexibleStringSlice{node.Value}
		return nil
	case yaml.SequenceNode:
		result := make([]string, 0, len(node.Content))
		for _, n := range node.Content {
			if n.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: expected scalar in list", n.Line)
			}
			result = append(result, n.Value)
		}
		*f = result
		return nil
	}
	return fmt.Errorf("line %d: expected string or list", node.Line)
}

// Alias is the display name pair of a bridged group. A bare string sets
// both names; a list is [short, full] with full defaulting to short.
type Alias struct {
	Short string
	Full  string
}

func (a *Alias) set(parts []string) error {
	switch len(parts) {
	case 1:
		a.Short, a.Full = parts[0], parts[0]
	case 2:
		a.Short, a.Full = parts[0], parts[1]
		if a.Full == "" {
			a.Full = a.Short
		}
	default:
		return fmt.Errorf("alias needs one or two names, got %d", len(parts))
	}
	return nil
}

func (a *Alias) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return a.set([]string{s})
	}
	var ss []string
	if err := json.Unmarshal(data, &ss); err != nil {
		return err
	}
	return a.set(ss)
}

func (a Alias) MarshalJSON() ([]byte, error) {
	if a.Short == a.Full {
		return json.Marshal(a.Short)
	}
	return json.Marshal([]string{a.Short, a.Full})
}

func (a *Alias) UnmarshalYAML(node *yaml.Node) error {
	var ss FlexibleStringSlice
	if err := ss.UnmarshalYAML(node); err != nil {
		return err
	}
	return a.set(ss)
}

func (a Alias) MarshalYAML() (any, error) {
	if a.Short == a.Full {
		return a.Short, nil
	}
	return []string{a.Short, a.Full}, nil
}

// NotifyMode controls rename and leave notices on IRC.
type NotifyMode string

const (
	NotifyNone       NotifyMode = "none"
	NotifyAll        NotifyMode = "all"
	NotifyOnlyActive NotifyMode = "onlyactive"
)

func parseNotifyMode(s string) (NotifyMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "false":
		return NotifyNone, nil
	case "all", "true":
		return NotifyAll, nil
	case "onlyactive":
		return NotifyOnlyActive, nil
	}
	return "", fmt.Errorf("unknown notify mode %q", s)
}

func (m *NotifyMode) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		if b {
			*m = NotifyAll
		} else {
			*m = NotifyNone
		}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	mode, err := parseNotifyMode(s)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

func (m *NotifyMode) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: notify mode must be a scalar", node.Line)
	}
	mode, err := parseNotifyMode(node.Value)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// PaeeyeConfig configures the "don't relay" markers. A bare string is the
// prepend marker.
type PaeeyeConfig struct {
	Prepend string `json:"prepend,omitempty" yaml:"prepend,omitempty"`
	Inline  string `json:"inline,omitempty"  yaml:"inline,omitempty"`
	Regexp  string `json:"regexp,omitempty"  yaml:"regexp,omitempty"`
}

type paeeyeFields PaeeyeConfig

func (p *PaeeyeConfig) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*p = PaeeyeConfig{Prepend: s}
		return nil
	}
	var f paeeyeFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*p = PaeeyeConfig(f)
	return nil
}

func (p *PaeeyeConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*p = PaeeyeConfig{Prepend: node.Value}
		return nil
	}
	var f paeeyeFields
	if err := node.Decode(&f); err != nil {
		return err
	}
	*p = PaeeyeConfig(f)
	return nil
}
