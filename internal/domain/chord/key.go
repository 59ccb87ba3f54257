package chord

import (
	"strconv"
	"strings"
)

// Key renders a pitch set as a stable string identifier, e.g. "60-64-67".
// Useful for logging and for keying feedback elements by chord.
func Key(pitches []uint8) string {
	sorted := Dedupe(pitches)
	parts := make([]string, len(sorted))
	for i, p := range sorted {
		parts[i] = strconv.Itoa(int(p))
	}
	return strings.Join(parts, "-")
}
