package prompt

// Prompt is one style slot: a text descriptor plus a continuous weight that
// controls how strongly it influences the generated mix. Prompts are value
// types; callers replace whole records, never mutate fields in a shared map.
type Prompt struct {
	ID                 string   `json:"promptId"`
	Text               string   `json:"text"`
	Weight             float64  `json:"weight"` // [0,2], 0 = inactive
	CC                 int      `json:"cc"`     // advisory MIDI controller binding
	Color              string   `json:"color"`
	Density            float64  `json:"density"` // [0,1]
	Instruments        []string `json:"instruments,omitempty"`
	SelectedInstrument string   `json:"selectedInstrument,omitempty"`
}

// Normalize returns a copy with all ranged fields clamped into bounds.
func (p Prompt) Normalize() Prompt {
	p.Weight = ClampWeight(p.Weight)
	p.Density = ClampDensity(p.Density)
	p.CC = clampInt(p.CC, 0, 127)
	return p
}

// Set maps prompt IDs to prompts. The key set is fixed at session start;
// only the records change. Zero-weight prompts stay in the set and are sent
// to the generation service on every update, so the service can release a
// style it previously applied.
type Set map[string]Prompt

// Clone returns a deep copy. Instrument slices are copied so a held Set can
// never be torn by a caller editing its own copy.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for id, p := range s {
		if p.Instruments != nil {
			p.Instruments = append([]string(nil), p.Instruments...)
		}
		out[id] = p
	}
	return out
}

// Normalize returns a copy with every prompt's ranged fields clamped.
func (s Set) Normalize() Set {
	out := make(Set, len(s))
	for id, p := range s {
		out[id] = p.Normalize()
	}
	return out
}

// ActiveCount returns the number of prompts with nonzero weight.
func (s Set) ActiveCount() int {
	n := 0
	for _, p := range s {
		if p.Weight > 0 {
			n++
		}
	}
	return n
}

const (
	MinWeight = 0.0
	MaxWeight = 2.0

	MinDensity = 0.0
	MaxDensity = 1.0

	MinTempoBPM = 60
	MaxTempoBPM = 200
)

// ClampWeight bounds a prompt weight into [0,2].
func ClampWeight(w float64) float64 {
	return clampFloat(w, MinWeight, MaxWeight)
}

// ClampDensity bounds a density into [0,1].
func ClampDensity(d float64) float64 {
	return clampFloat(d, MinDensity, MaxDensity)
}

// ClampTempo bounds a tempo into [60,200] BPM.
func ClampTempo(bpm int) int {
	return clampInt(bpm, MinTempoBPM, MaxTempoBPM)
}

// WeightFromCC converts a 7-bit controller value (0-127) to a weight (0-2).
func WeightFromCC(value int) float64 {
	return ClampWeight(float64(clampInt(value, 0, 127)) / 127.0 * MaxWeight)
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
