package prompt

// slot describes one default deck slot: style text, display color, the MIDI
// controller it responds to out of the box, and the instruments that suit it.
type slot struct {
	text        string
	color       string
	cc          int
	instruments []string
}

// catalog is the 16-slot default deck. Order is the on-screen grid order;
// CC numbers follow the common 16-knob controller layout (CC 16-31).
var catalog = []slot{
	{"Bossa Nova", "#9900ff", 16, []string{"Nylon Guitar", "Upright Bass", "Brushed Kit"}},
	{"Chillwave", "#5200ff", 17, []string{"Analog Pads", "Drum Machine", "Tape Synth"}},
	{"Drum and Bass", "#ff25f6", 18, []string{"Breakbeat Kit", "Sub Bass", "Reese Bass"}},
	{"Post Punk", "#2af6de", 19, []string{"Chorus Guitar", "Picked Bass", "Live Kit"}},
	{"Shoegaze", "#ffdd28", 20, []string{"Wall of Guitars", "Fuzz Bass", "Washed Cymbals"}},
	{"Funk", "#2af6de", 21, []string{"Clav", "Slap Bass", "Horn Section"}},
	{"Chiptune", "#9900ff", 22, []string{"Square Lead", "Pulse Bass", "Noise Kit"}},
	{"Lush Strings", "#3dffab", 23, []string{"String Ensemble", "Cello Section", "Harp"}},
	{"Sparkling Arpeggios", "#d8ff3e", 24, []string{"Bell Synth", "Plucked Synth", "Celesta"}},
	{"Staccato Rhythms", "#d9b2ff", 25, []string{"Pizzicato Strings", "Muted Guitar", "Marimba"}},
	{"Punchy Kick", "#3dffab", 26, []string{"909 Kick", "808 Kick", "Acoustic Kick"}},
	{"Dubstep", "#ffdd28", 27, []string{"Wobble Bass", "Half-time Kit", "Growl Synth"}},
	{"K Pop", "#ff25f6", 28, []string{"Bright Synth", "Vocal Chops", "Pop Kit"}},
	{"Neo Soul", "#d8ff3e", 29, []string{"Rhodes", "Fretless Bass", "Soft Kit"}},
	{"Trip Hop", "#5200ff", 30, []string{"Dusty Kit", "Mellotron", "Deep Bass"}},
	{"Thrash", "#d9b2ff", 31, []string{"Distorted Guitar", "Double Kick", "Pick Bass"}},
}

// DefaultSet builds the startup deck: all 16 catalog slots at weight zero
// except the first, so a fresh session has exactly one audible style.
func DefaultSet() Set {
	s := make(Set, len(catalog))
	for i, c := range catalog {
		id := slotID(i)
		weight := 0.0
		if i == 0 {
			weight = 1.0
		}
		s[id] = Prompt{
			ID:          id,
			Text:        c.text,
			Weight:      weight,
			CC:          c.cc,
			Color:       c.color,
			Density:     0.5,
			Instruments: append([]string(nil), c.instruments...),
		}
	}
	return s
}

// SlotIDs returns the catalog slot IDs in grid order.
func SlotIDs() []string {
	ids := make([]string, len(catalog))
	for i := range catalog {
		ids[i] = slotID(i)
	}
	return ids
}

func slotID(i int) string {
	return "prompt-" + string(rune('a'+i))
}
