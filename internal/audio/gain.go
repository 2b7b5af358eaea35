package audio

// Smoothstep returns the smoothstep interpolation for t in [0,1].
// Formula: 3t^2 - 2t^3.
func Smoothstep(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}

// ApplyGain scales a frame by gain, clipping to the int16 range.
// Returns a new slice; the input is never mutated.
func ApplyGain(frame []int16, gain float64) []int16 {
	result := make([]int16, len(frame))
	for i, s := range frame {
		v := float64(s) * gain
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		result[i] = int16(v)
	}
	return result
}

// Silence returns a zeroed frame of n samples.
func Silence(n int) []int16 {
	return make([]int16, n)
}
