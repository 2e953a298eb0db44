// Cadenza - AI-Assisted Music Production Platform
// Copyright 2026 Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-audio/cadenza

package recommend

import "strings"

// MusicalKey is a parsed key signature: a pitch class (0=C .. 11=B)
// and a mode.
type MusicalKey struct {
	PitchClass int
	Minor      bool
}

// pitchClasses maps note names to semitone offsets from C. Flats are
// spelled as their enharmonic sharps.
var pitchClasses = map[string]int{
	"c": 0, "c#": 1, "db": 1,
	"d": 2, "d#": 3, "eb": 3,
	"e": 4, "fb": 4, "e#": 5,
	"f": 5, "f#": 6, "gb": 6,
	"g": 7, "g#": 8, "ab": 8,
	"a": 9, "a#": 10, "bb": 10,
	"b": 11, "cb": 11, "b#": 0,
}

// ParseKey parses a key signature string. Accepted spellings include
// "C major", "c maj", "F# minor", "A min", "Dbm" and a bare note name
// (major). Flats normalize to sharps. Unparseable input returns ok=false.
func ParseKey(s string) (MusicalKey, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return MusicalKey{}, false
	}

	note := s
	mode := ""
	if i := strings.IndexAny(s, " \t-_"); i >= 0 {
		note = s[:i]
		mode = strings.TrimLeft(s[i:], " \t-_")
	} else {
		// Compact spellings: "dbm", "f#min", "cmaj".
		for _, suffix := range []string{"minor", "min", "maj", "major", "m"} {
			if strings.HasSuffix(note, suffix) && len(note) > len(suffix) {
				mode = suffix
				note = note[:len(note)-len(suffix)]
				break
			}
		}
	}

	pc, ok := pitchClasses[note]
	if !ok {
		return MusicalKey{}, false
	}

	switch mode {
	case "", "maj", "major":
		return MusicalKey{PitchClass: pc, Minor: false}, true
	case "m", "min", "minor":
		return MusicalKey{PitchClass: pc, Minor: true}, true
	default:
		return MusicalKey{}, false
	}
}

// Key relationship scores. The table is intentionally small: only
// relationships that matter for harmonic mixing are rewarded.
const (
	keyScoreIdentical = 1.0
	keyScoreFifth     = 0.8
	keyScoreRelative  = 0.75
	keyScoreParallel  = 0.6
)

// keyCompat scores the harmonic relationship between two parsed keys.
func keyCompat(a, b MusicalKey) float64 {
	if a == b {
		return keyScoreIdentical
	}

	// Circle-of-fifths neighbors in the same mode.
	if a.Minor == b.Minor {
		d := (a.PitchClass - b.PitchClass + 12) % 12
		if d == 7 || d == 5 {
			return keyScoreFifth
		}
		return 0
	}

	// Relative major/minor share a key signature: the relative minor
	// sits three semitones below its major.
	major, minor := a, b
	if a.Minor {
		major, minor = b, a
	}
	if (major.PitchClass+9)%12 == minor.PitchClass {
		return keyScoreRelative
	}

	// Parallel keys share a tonic.
	if a.PitchClass == b.PitchClass {
		return keyScoreParallel
	}

	return 0
}

// KeyCompatibility scores the harmonic relationship between two key
// strings. Either side failing to parse scores 0.
func KeyCompatibility(a, b string) float64 {
	ka, ok := ParseKey(a)
	if !ok {
		return 0
	}
	kb, ok := ParseKey(b)
	if !ok {
		return 0
	}
	return keyCompat(ka, kb)
}
