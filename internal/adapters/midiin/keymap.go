package midiin

// Computer-keyboard emulation: home row plays naturals from middle C, the
// q-row above supplies the accidentals, mirroring piano fingering.
const middleC = 60

var keyToOffset = map[string]uint8{
	"a": 0, // C
	"w": 1,
	"s": 2, // D
	"e": 3,
	"d": 4, // E
	"f": 5, // F
	"t": 6,
	"g": 7, // G
	"y": 8,
	"h": 9, // A
	"u": 10,
	"j": 11, // B
	"k": 12, // C
	"o": 13,
	"l": 14, // D
	"p": 15,
	";": 16, // E
}

// KeyPitch resolves a keyboard key to its MIDI pitch in the given octave
// shift (0 anchors "a" on middle C). Returns false for unmapped keys.
func KeyPitch(key string, octaveShift int) (uint8, bool) {
	off, ok := keyToOffset[key]
	if !ok {
		return 0, false
	}
	p := middleC + int(off) + 12*octaveShift
	if p < 0 || p > maxPitch {
		return 0, false
	}
	return uint8(p), true
}

// HandleKey ingests a keyboard key event as an emulated press or release.
// Unmapped keys are ignored.
func (a *Adapter) HandleKey(key string, down bool, octaveShift int, timestampMs float64) {
	pitch, ok := KeyPitch(key, octaveShift)
	if !ok {
		return
	}
	if down {
		a.press(pitch, 96, timestampMs)
		return
	}
	a.release(pitch)
}
