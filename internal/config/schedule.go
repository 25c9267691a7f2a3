package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ScheduleEntry is one model and the number of days its soft deleted records
// are retained before being purged.
type ScheduleEntry struct {
	Model string
	Days  int
}

// Schedule is the ordered work list of a purge run. Order follows the YAML
// document, which a plain map would lose.
type Schedule []ScheduleEntry

// UnmarshalYAML decodes a mapping of model identifier to retention days.
func (s *Schedule) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode && value.Tag == "!!null" {
		*s = nil
		return nil
	}
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("schedule: line %d: expected a mapping of model to days", value.Line)
	}

	out := make(Schedule, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		keyNode, valNode := value.Content[i], value.Content[i+1]
		var days int
		if err := valNode.Decode(&days); err != nil {
			return fmt.Errorf("schedule.%s: line %d: days must be an integer", keyNode.Value, valNode.Line)
		}
		out = append(out, ScheduleEntry{Model: keyNode.Value, Days: days})
	}
	*s = out
	return nil
}

// Validate rejects blank identifiers, duplicates and negative retention.
func (s Schedule) Validate() error {
	seen := make(map[string]struct{}, len(s))
	for _, e := range s {
		if strings.TrimSpace(e.Model) == "" {
			return fmt.Errorf("schedule: model identifier must not be empty")
		}
		if _, dup := seen[e.Model]; dup {
			return fmt.Errorf("schedule: duplicate model %q", e.Model)
		}
		seen[e.Model] = struct{}{}
		if e.Days < 0 {
			return fmt.Errorf("schedule.%s: days must be >= 0, got %d", e.Model, e.Days)
		}
	}
	return nil
}

// Models returns the scheduled model identifiers in order.
func (s Schedule) Models() []string {
	out := make([]string, 0, len(s))
	for _, e := range s {
		out = append(out, e.Model)
	}
	return out
}
