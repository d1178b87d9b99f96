package chord

import "fmt"

// Quality is a chord quality with a fixed interval structure.
type Quality int

// Supported chord qualities.
const (
	QualityMajor Quality = iota
	QualityMinor
	QualityMajor7
	QualityMinor7
	QualityDominant7
	QualitySus2
	QualitySus4
	QualityDiminished
	QualityAugmented
	QualityAdd9
	QualityPower
)

var qualityNames = map[Quality]string{
	QualityMajor:      "major",
	QualityMinor:      "minor",
	QualityMajor7:     "major7",
	QualityMinor7:     "minor7",
	QualityDominant7:  "dominant7",
	QualitySus2:       "sus2",
	QualitySus4:       "sus4",
	QualityDiminished: "diminished",
	QualityAugmented:  "augmented",
	QualityAdd9:       "add9",
	QualityPower:      "power",
}

var qualitySymbols = map[Quality]string{
	QualityMajor:      "",
	QualityMinor:      "m",
	QualityMajor7:     "maj7",
	QualityMinor7:     "m7",
	QualityDominant7:  "7",
	QualitySus2:       "sus2",
	QualitySus4:       "sus4",
	QualityDiminished: "dim",
	QualityAugmented:  "aug",
	QualityAdd9:       "add9",
	QualityPower:      "5",
}

// qualityIntervals lists semitone offsets from the root, root included.
var qualityIntervals = map[Quality][]int{
	QualityMajor:      {0, 4, 7},
	QualityMinor:      {0, 3, 7},
	QualityMajor7:     {0, 4, 7, 11},
	QualityMinor7:     {0, 3, 7, 10},
	QualityDominant7:  {0, 4, 7, 10},
	QualitySus2:       {0, 2, 7},
	QualitySus4:       {0, 5, 7},
	QualityDiminished: {0, 3, 6},
	QualityAugmented:  {0, 4, 8},
	QualityAdd9:       {0, 4, 7, 2},
	QualityPower:      {0, 7},
}

// String returns the lowercase quality name.
func (q Quality) String() string {
	if name, ok := qualityNames[q]; ok {
		return name
	}
	return "unknown"
}

// ParseQuality maps a quality name to its enum value.
func ParseQuality(name string) (Quality, error) {
	for q, n := range qualityNames {
		if n == name {
			return q, nil
		}
	}
	return 0, fmt.Errorf("unknown chord quality: %q", name)
}

// Intervals returns the semitone offsets from the root, root included.
// The returned slice must not be mutated.
func (q Quality) Intervals() []int {
	return qualityIntervals[q]
}

// Chord is a detected chord hypothesis.
type Chord struct {
	Root       PitchClass
	Quality    Quality
	Classes    []PitchClass
	Confidence float64
	// Time is the detector clock in seconds at the moment of detection.
	Time  float64
	Valid bool
}

// Symbol returns the compact chord symbol, e.g. "C", "Am", "G7", or "N"
// when invalid.
func (c Chord) Symbol() string {
	if !c.Valid {
		return "N"
	}
	return c.Root.String() + qualitySymbols[c.Quality]
}

// SameShape reports whether two chords agree on validity, root, and quality.
// Confidence and timing are intentionally ignored: hysteresis compares
// chord identity, not strength.
func (c Chord) SameShape(other Chord) bool {
	if c.Valid != other.Valid {
		return false
	}
	if !c.Valid {
		return true
	}
	return c.Root == other.Root && c.Quality == other.Quality
}

// classMask packs pitch classes into a 12-bit set.
func classMask(classes []PitchClass) uint16 {
	var mask uint16
	for _, pc := range classes {
		mask |= 1 << uint(pc)
	}
	return mask
}

func qualityMask(root PitchClass, q Quality) uint16 {
	var mask uint16
	for _, iv := range qualityIntervals[q] {
		mask |= 1 << uint(root.Transpose(iv))
	}
	return mask
}

const perfectMatchBonus = 0.1

// Match scores every root x quality hypothesis over the detected pitch-class
// set and returns the best root, quality, and score in [0, 1].
//
// Score per hypothesis: matched/expected minus 0.1 for every detected class
// beyond the expected set size, plus a bonus when the sets coincide exactly.
// An empty input scores zero.
func Match(classes []PitchClass) (PitchClass, Quality, float64) {
	detected := classMask(classes)
	if detected == 0 {
		return 0, QualityMajor, 0
	}

	detectedCount := popcount12(detected)

	bestRoot := PitchClass(0)
	bestQuality := QualityMajor
	bestScore := -1.0

	for root := C; root <= B; root++ {
		if detected&(1<<uint(root)) == 0 {
			continue
		}

		for q := QualityMajor; q <= QualityPower; q++ {
			expected := qualityMask(root, q)
			expectedCount := popcount12(expected)

			matched := popcount12(detected & expected)

			// The penalty counts how far the detected set outgrows the
			// expected one, not how many detected notes went unmatched.
			extra := detectedCount - expectedCount
			if extra < 0 {
				extra = 0
			}

			score := float64(matched)/float64(expectedCount) - 0.1*float64(extra)
			if detected == expected {
				score += perfectMatchBonus
			}

			if score < 0 {
				score = 0
			}
			if score > 1 {
				score = 1
			}

			if score > bestScore {
				bestScore = score
				bestRoot = root
				bestQuality = q
			}
		}
	}

	return bestRoot, bestQuality, bestScore
}

func popcount12(mask uint16) int {
	count := 0
	for mask != 0 {
		mask &= mask - 1
		count++
	}
	return count
}
