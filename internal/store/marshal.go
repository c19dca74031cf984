package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/kllcore/internal/config"
	"github.com/roach88/kllcore/internal/ir"
)

// marshalParams converts action parameters to canonical JSON TEXT.
func marshalParams(params []int32) (string, error) {
	if len(params) == 0 {
		return "[]", nil
	}
	data, err := ir.MarshalCanonical(params)
	if err != nil {
		return "", fmt.Errorf("marshal params: %w", err)
	}
	return string(data), nil
}

// unmarshalParams parses a params column back into the fixed action layout.
func unmarshalParams(data string) ([ir.MaxParams]int32, int, error) {
	var out [ir.MaxParams]int32
	if data == "" || data == "[]" {
		return out, 0, nil
	}
	var params []int32
	if err := json.Unmarshal([]byte(data), &params); err != nil {
		return out, 0, fmt.Errorf("unmarshal params: %w", err)
	}
	if len(params) > ir.MaxParams {
		return out, 0, fmt.Errorf("unmarshal params: %d params, at most %d allowed", len(params), ir.MaxParams)
	}
	copy(out[:], params)
	return out, len(params), nil
}

// marshalConfig converts engine settings to canonical JSON TEXT.
func marshalConfig(cfg config.Engine) (string, error) {
	data, err := ir.MarshalCanonical(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(data), nil
}

func unmarshalConfig(data string) (config.Engine, error) {
	var cfg config.Engine
	if data == "" || data == "{}" {
		return cfg, nil
	}
	if err := json.Unmarshal([]byte(data), &cfg); err != nil {
		return config.Engine{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}
