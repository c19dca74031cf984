package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/kllcore/internal/config"
	"github.com/roach88/kllcore/internal/engine"
	"github.com/roach88/kllcore/internal/ir"
)

// Scenario is a scripted keyboard session with assertions on its outcome.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Tables is the table source: a CUE file, a directory of CUE files or a
	// JSON table blob. Relative paths resolve against the scenario file.
	Tables string `yaml:"tables"`

	// Config overrides engine settings; zero fields take defaults.
	Config config.Engine `yaml:"config,omitempty"`

	// Ticks is the script, in time order.
	Ticks []TickStep `yaml:"ticks"`

	Assertions []Assertion `yaml:"assertions"`
}

// TickStep feeds events and then ticks the engine at AtMS.
type TickStep struct {
	AtMS   int64       `yaml:"at"`
	Events []EventStep `yaml:"events,omitempty"`
}

// EventStep is one scripted input event.
type EventStep struct {
	// Board selects local addressing through the interconnect offsets.
	// Nil means Scan is a global scan code.
	Board *int `yaml:"board,omitempty"`

	Scan  int    `yaml:"scan"`
	Edge  string `yaml:"edge"`
	Value int32  `yaml:"value,omitempty"`

	// AtMS overrides the event time; nil uses the tick time.
	AtMS *int64 `yaml:"at,omitempty"`
}

// Assertion checks the trace or the final engine state.
type Assertion struct {
	Type string `yaml:"type"`

	// Capability filters action_contains and is required by action_count.
	Capability string `yaml:"capability,omitempty"`

	// Trigger names the trigger for record_status and filters action_contains.
	Trigger string `yaml:"trigger,omitempty"`

	// Result filters action_contains.
	Result string `yaml:"result,omitempty"`

	// Phase filters action_contains.
	Phase string `yaml:"phase,omitempty"`

	// Params filters action_contains; compared exactly when present.
	Params []int32 `yaml:"params,omitempty"`

	// Results is the expected result order (action_order).
	Results []string `yaml:"results,omitempty"`

	// Count is the expected number of matches (action_count, events_rejected).
	Count int `yaml:"count,omitempty"`

	// Status is the expected record status (record_status).
	Status string `yaml:"status,omitempty"`

	// Layers is the expected layer stack, bottom to top (layer_stack).
	Layers []string `yaml:"layers"`
}

// Assertion type constants.
const (
	AssertActionContains = "action_contains"
	AssertActionOrder    = "action_order"
	AssertActionCount    = "action_count"
	AssertNoActions      = "no_actions"
	AssertRecordStatus   = "record_status"
	AssertLayerStack     = "layer_stack"
	AssertEventsRejected = "events_rejected"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected and the tables path is resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Tables != "" && !filepath.IsAbs(scenario.Tables) {
		scenario.Tables = filepath.Join(filepath.Dir(path), scenario.Tables)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Tables == "" {
		return fmt.Errorf("tables is required")
	}
	if _, err := os.Stat(s.Tables); os.IsNotExist(err) {
		return fmt.Errorf("tables not found: %s", s.Tables)
	}
	if len(s.Ticks) == 0 {
		return fmt.Errorf("ticks list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	cfg := s.Config
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	var last int64
	for i, tick := range s.Ticks {
		if tick.AtMS < last {
			return fmt.Errorf("ticks[%d]: at %d is before the previous tick (%d)", i, tick.AtMS, last)
		}
		last = tick.AtMS
		for j, ev := range tick.Events {
			if _, err := ir.ParseEdgeKind(ev.Edge); err != nil {
				return fmt.Errorf("ticks[%d].events[%d]: %w", i, j, err)
			}
			if ev.Scan < 0 || ev.Scan >= ir.MaxScanCodeLimit {
				return fmt.Errorf("ticks[%d].events[%d]: scan %d out of range", i, j, ev.Scan)
			}
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertActionContains:
		if a.Capability == "" && a.Trigger == "" && a.Result == "" {
			return fmt.Errorf("assertions[%d]: capability, trigger or result is required for action_contains", index)
		}
		if a.Phase != "" {
			switch ir.Phase(a.Phase) {
			case ir.PhasePress, ir.PhaseRepeat, ir.PhaseRelease:
			default:
				return fmt.Errorf("assertions[%d]: unknown phase %q", index, a.Phase)
			}
		}
	case AssertActionOrder:
		if len(a.Results) == 0 {
			return fmt.Errorf("assertions[%d]: results list is required for action_order", index)
		}
	case AssertActionCount:
		if a.Capability == "" {
			return fmt.Errorf("assertions[%d]: capability is required for action_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for action_count", index)
		}
	case AssertNoActions:
	case AssertRecordStatus:
		if a.Trigger == "" {
			return fmt.Errorf("assertions[%d]: trigger is required for record_status", index)
		}
		if _, err := engine.ParseRecordStatus(a.Status); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	case AssertLayerStack:
		if a.Layers == nil {
			return fmt.Errorf("assertions[%d]: layers is required for layer_stack (use [] for none)", index)
		}
	case AssertEventsRejected:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for events_rejected", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
