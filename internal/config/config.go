// Package config handles runtime configuration for kllcore engines.
//
// Tables (what the keyboard does) are not configuration; they come from the
// compiler. Configuration covers the engine's resource bounds and policies,
// the journal location and table hot-reload.
package config

import (
	"errors"
	"fmt"
	"time"
)

// OverflowPolicy selects what a full queue does with a new element.
type OverflowPolicy string

const (
	// DropNewest rejects the incoming element.
	DropNewest OverflowPolicy = "drop-newest"
	// DropOldest evicts the oldest queued element to make room.
	DropOldest OverflowPolicy = "drop-oldest"
)

// LayerSwitchPolicy selects what happens to partially matched macros when
// the layer stack changes.
type LayerSwitchPolicy string

const (
	// LayerSwitchKeep leaves armed records alone; later events are resolved
	// against the new layer state.
	LayerSwitchKeep LayerSwitchPolicy = "keep"
	// LayerSwitchReset returns every Pending record to Idle.
	LayerSwitchReset LayerSwitchPolicy = "reset"
)

// Defaults.
const (
	DefaultEventQueueSize  = 64
	DefaultOutputQueueSize = 256
	DefaultComboWindow     = 50 * time.Millisecond
	DefaultLayerStackDepth = 16
	DefaultTickInterval    = 5 * time.Millisecond
)

// Config is the top-level configuration file.
type Config struct {
	Engine  Engine  `json:"engine" yaml:"engine" toml:"engine"`
	Journal Journal `json:"journal" yaml:"journal" toml:"journal"`
	Tables  Tables  `json:"tables" yaml:"tables" toml:"tables"`
}

// Engine holds the bounds and policies of one engine instance.
type Engine struct {
	EventQueueSize  int               `json:"event_queue_size" yaml:"event_queue_size" toml:"event_queue_size"`
	OutputQueueSize int               `json:"output_queue_size" yaml:"output_queue_size" toml:"output_queue_size"`
	Overflow        OverflowPolicy    `json:"overflow" yaml:"overflow" toml:"overflow"`
	ComboWindow     time.Duration     `json:"combo_window" yaml:"combo_window" toml:"combo_window"`
	LayerStackDepth int               `json:"layer_stack_depth" yaml:"layer_stack_depth" toml:"layer_stack_depth"`
	LayerSwitch     LayerSwitchPolicy `json:"layer_switch" yaml:"layer_switch" toml:"layer_switch"`

	// TickInterval is how often Run ticks when no events arrive; held
	// macros repeat at this rate.
	TickInterval time.Duration `json:"tick_interval" yaml:"tick_interval" toml:"tick_interval"`
}

// Journal configures the SQLite event journal. An empty Path disables it.
type Journal struct {
	Path string `json:"path" yaml:"path" toml:"path"`
}

// Tables configures where tables are loaded from and whether they are watched.
type Tables struct {
	Path  string `json:"path" yaml:"path" toml:"path"`
	Watch bool   `json:"watch" yaml:"watch" toml:"watch"`
}

// Default returns a configuration with every field set to its default.
func Default() *Config {
	return &Config{Engine: DefaultEngine()}
}

// DefaultEngine returns the default engine settings.
func DefaultEngine() Engine {
	return Engine{
		EventQueueSize:  DefaultEventQueueSize,
		OutputQueueSize: DefaultOutputQueueSize,
		Overflow:        DropNewest,
		ComboWindow:     DefaultComboWindow,
		LayerStackDepth: DefaultLayerStackDepth,
		LayerSwitch:     LayerSwitchKeep,
		TickInterval:    DefaultTickInterval,
	}
}

// ApplyDefaults fills zero-valued fields with defaults.
func (e *Engine) ApplyDefaults() {
	d := DefaultEngine()
	if e.EventQueueSize == 0 {
		e.EventQueueSize = d.EventQueueSize
	}
	if e.OutputQueueSize == 0 {
		e.OutputQueueSize = d.OutputQueueSize
	}
	if e.Overflow == "" {
		e.Overflow = d.Overflow
	}
	if e.ComboWindow == 0 {
		e.ComboWindow = d.ComboWindow
	}
	if e.LayerStackDepth == 0 {
		e.LayerStackDepth = d.LayerStackDepth
	}
	if e.LayerSwitch == "" {
		e.LayerSwitch = d.LayerSwitch
	}
	if e.TickInterval == 0 {
		e.TickInterval = d.TickInterval
	}
}

// Validate checks the engine settings. All problems are reported together.
func (e *Engine) Validate() error {
	var errs []error
	if e.EventQueueSize < 1 {
		errs = append(errs, fmt.Errorf("engine.event_queue_size must be positive, got %d", e.EventQueueSize))
	}
	if e.OutputQueueSize < 1 {
		errs = append(errs, fmt.Errorf("engine.output_queue_size must be positive, got %d", e.OutputQueueSize))
	}
	switch e.Overflow {
	case DropNewest, DropOldest:
	default:
		errs = append(errs, fmt.Errorf("engine.overflow must be %q or %q, got %q", DropNewest, DropOldest, e.Overflow))
	}
	if e.ComboWindow < 0 {
		errs = append(errs, fmt.Errorf("engine.combo_window must not be negative, got %s", e.ComboWindow))
	}
	if e.LayerStackDepth < 1 {
		errs = append(errs, fmt.Errorf("engine.layer_stack_depth must be positive, got %d", e.LayerStackDepth))
	}
	switch e.LayerSwitch {
	case LayerSwitchKeep, LayerSwitchReset:
	default:
		errs = append(errs, fmt.Errorf("engine.layer_switch must be %q or %q, got %q", LayerSwitchKeep, LayerSwitchReset, e.LayerSwitch))
	}
	if e.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("engine.tick_interval must be positive, got %s", e.TickInterval))
	}
	return errors.Join(errs...)
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	if c.Tables.Watch && c.Tables.Path == "" {
		return errors.New("tables.watch requires tables.path")
	}
	return nil
}
