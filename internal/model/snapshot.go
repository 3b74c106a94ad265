package model

import (
	"encoding/json"
	"strconv"
)

// Snapshot attribute keys.
const (
	AttrTemperature        = "temperature"
	AttrColdTolerance      = "cold_tolerance"
	AttrHotTolerance       = "hot_tolerance"
	AttrPresetMode         = "preset_mode"
	AttrPresetModes        = "preset_modes"
	AttrPresetTemperatures = "preset_temperatures"
	AttrHVACMode           = "hvac_mode"
)

// Snapshot is the state persisted between runs. Every field is optional.
type Snapshot struct {
	TargetTemperature  *float64
	ColdTolerance      *float64
	HotTolerance       *float64
	PresetMode         string
	PresetModes        []string
	PresetTemperatures []float64
	HVACMode           HVACMode
}

// Attributes flattens the snapshot into string key/value pairs, leaving out
// anything unset.
func (s Snapshot) Attributes() map[string]string {
	attrs := map[string]string{}
	putFloat := func(key string, v *float64) {
		if v != nil {
			attrs[key] = strconv.FormatFloat(*v, 'f', -1, 64)
		}
	}
	putFloat(AttrTemperature, s.TargetTemperature)
	putFloat(AttrColdTolerance, s.ColdTolerance)
	putFloat(AttrHotTolerance, s.HotTolerance)

	if s.PresetMode != "" {
		attrs[AttrPresetMode] = s.PresetMode
	}
	if s.PresetModes != nil {
		b, _ := json.Marshal(s.PresetModes)
		attrs[AttrPresetModes] = string(b)
	}
	if s.PresetTemperatures != nil {
		b, _ := json.Marshal(s.PresetTemperatures)
		attrs[AttrPresetTemperatures] = string(b)
	}
	if s.HVACMode != "" {
		attrs[AttrHVACMode] = string(s.HVACMode)
	}
	return attrs
}

// SnapshotFromAttributes parses each key on its own; a value that cannot be
// parsed is treated as absent.
func SnapshotFromAttributes(attrs map[string]string) Snapshot {
	var s Snapshot
	getFloat := func(key string) *float64 {
		raw, ok := attrs[key]
		if !ok {
			return nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil
		}
		return &v
	}
	s.TargetTemperature = getFloat(AttrTemperature)
	s.ColdTolerance = getFloat(AttrColdTolerance)
	s.HotTolerance = getFloat(AttrHotTolerance)
	s.PresetMode = attrs[AttrPresetMode]

	if raw, ok := attrs[AttrPresetModes]; ok {
		var modes []string
		if err := json.Unmarshal([]byte(raw), &modes); err == nil {
			s.PresetModes = modes
		}
	}
	if raw, ok := attrs[AttrPresetTemperatures]; ok {
		// null entries decode as zero, which the reconciler ignores
		var temps []*float64
		if err := json.Unmarshal([]byte(raw), &temps); err == nil {
			s.PresetTemperatures = make([]float64, len(temps))
			for i, t := range temps {
				if t != nil {
					s.PresetTemperatures[i] = *t
				}
			}
		}
	}
	s.HVACMode = HVACMode(attrs[AttrHVACMode])
	return s
}
