// Package score is the model adapter between an external score document and
// the beat sequence the playback engine runs on. It is the only package that
// knows the shape of the source document; everything downstream sees ordered
// measures and derived beats.
package score

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/net/html/charset"

	"github.com/etudekit/etude/internal/domain/model"
)

// document mirrors the subset of a score-partwise MusicXML file we consume.
type document struct {
	XMLName xml.Name `xml:"score-partwise"`
	Title   string   `xml:"movement-title"`
	Ident   struct {
		Source string `xml:"source"`
	} `xml:"identification"`
	Parts []part `xml:"part"`
}

type part struct {
	ID       string       `xml:"id,attr"`
	Measures []xmlMeasure `xml:"measure"`
}

// xmlMeasure keeps its child elements in document order. MusicXML interleaves
// notes with cursor movements (backup/forward), so order matters for offsets.
type xmlMeasure struct {
	Number int
	Events []any
}

type attributes struct {
	Divisions int `xml:"divisions"`
}

type sound struct {
	Tempo float64 `xml:"tempo,attr"`
}

type backup struct {
	Duration int `xml:"duration"`
}

type forward struct {
	Duration int `xml:"duration"`
}

type xmlNote struct {
	Pitch    pitch    `xml:"pitch"`
	Duration int      `xml:"duration"`
	Voice    int      `xml:"voice"`
	Staff    int      `xml:"staff"`
	Rest     xml.Name `xml:"rest"`
	Chord    xml.Name `xml:"chord"`
	Ties     []tie    `xml:"tie"`
}

type tie struct {
	Type string `xml:"type,attr"`
}

// tieStop reports whether the note continues a tie from an earlier note. A
// mid-tie note carries both a stop and a start element; any stop means the
// onset already sounded.
func (n xmlNote) tieStop() bool {
	for _, t := range n.Ties {
		if t.Type == "stop" {
			return true
		}
	}
	return false
}

type pitch struct {
	Step   string `xml:"step"`
	Alter  int8   `xml:"alter"`
	Octave int    `xml:"octave"`
}

// MIDINumber converts the notated pitch to a MIDI note number (C4 = 60).
func (p pitch) MIDINumber() uint8 {
	var semitone int
	switch p.Step {
	case "C":
		semitone = 0
	case "D":
		semitone = 2
	case "E":
		semitone = 4
	case "F":
		semitone = 5
	case "G":
		semitone = 7
	case "A":
		semitone = 9
	case "B":
		semitone = 11
	}
	n := semitone + (p.Octave+1)*12 + int(p.Alter)
	if n < 0 {
		n = 0
	}
	if n > 127 {
		n = 127
	}
	return uint8(n)
}

func (m *xmlMeasure) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, attr := range start.Attr {
		if attr.Name.Local == "number" {
			m.Number, _ = strconv.Atoi(attr.Value)
		}
	}
	for {
		token, err := d.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("measure %d: %w", m.Number, err)
		}
		switch t := token.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "attributes":
				var a attributes
				if err := d.DecodeElement(&a, &t); err != nil {
					return err
				}
				m.Events = append(m.Events, a)
			case "sound":
				var s sound
				if err := d.DecodeElement(&s, &t); err != nil {
					return err
				}
				m.Events = append(m.Events, s)
			case "direction":
				// tempo markings hide inside direction/sound
				var dir struct {
					Sound sound `xml:"sound"`
				}
				if err := d.DecodeElement(&dir, &t); err != nil {
					return err
				}
				if dir.Sound.Tempo > 0 {
					m.Events = append(m.Events, dir.Sound)
				}
			case "note":
				var n xmlNote
				if err := d.DecodeElement(&n, &t); err != nil {
					return err
				}
				m.Events = append(m.Events, n)
			case "backup":
				var b backup
				if err := d.DecodeElement(&b, &t); err != nil {
					return err
				}
				m.Events = append(m.Events, b)
			case "forward":
				var f forward
				if err := d.DecodeElement(&f, &t); err != nil {
					return err
				}
				m.Events = append(m.Events, f)
			default:
				if err := d.Skip(); err != nil {
					return err
				}
			}
		case xml.EndElement:
			if t.Name.Local == "measure" {
				return nil
			}
		}
	}
}

// Parse reads a MusicXML document into the immutable domain score. The
// returned score may legitimately contain zero measures; callers treat that
// as "not ready to play" rather than an error.
func Parse(r io.Reader) (*model.Score, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel

	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if len(doc.Parts) == 0 {
		return &model.Score{Title: doc.Title, Source: doc.Ident.Source}, nil
	}

	sc := &model.Score{Title: doc.Title, Source: doc.Ident.Source}
	divisions := 1 // divisions per quarter note, per MusicXML attributes

	// Merge all parts measure-by-measure so both staves land in one measure.
	measureCount := 0
	for _, p := range doc.Parts {
		if len(p.Measures) > measureCount {
			measureCount = len(p.Measures)
		}
	}

	for mi := 0; mi < measureCount; mi++ {
		out := model.Measure{Number: mi + 1}
		for _, p := range doc.Parts {
			if mi >= len(p.Measures) {
				continue
			}
			xm := p.Measures[mi]
			if xm.Number > 0 {
				out.Number = xm.Number
			}
			divisions = appendMeasureEvents(&out, xm, divisions)
		}
		sc.Measures = append(sc.Measures, out)
	}
	return sc, nil
}

// appendMeasureEvents walks one source measure in document order, tracking
// the division cursor through note/backup/forward events, and appends voice
// entries at their whole-note offsets. Returns the possibly-updated divisions.
func appendMeasureEvents(out *model.Measure, xm xmlMeasure, divisions int) int {
	cursor := 0 // in divisions from measure start
	lastStart := 0
	for _, ev := range xm.Events {
		switch v := ev.(type) {
		case attributes:
			if v.Divisions > 0 {
				divisions = v.Divisions
			}
		case sound:
			if v.Tempo > 0 {
				out.BPM = v.Tempo
			}
		case backup:
			cursor -= v.Duration
			if cursor < 0 {
				cursor = 0
			}
		case forward:
			cursor += v.Duration
		case xmlNote:
			start := cursor
			if v.Chord.Local != "" {
				// chord flag: sounds together with the previous note
				start = lastStart
			}
			wholeNotes := float64(v.Duration) / float64(divisions) / 4
			n := model.Note{Duration: wholeNotes, Rest: v.Rest.Local != ""}
			if !n.Rest {
				n.Pitch = v.Pitch.MIDINumber()
			}
			// tied continuations sound no new onset; fold them into a rest
			// entry so the slot still occupies time
			if v.tieStop() {
				n.Rest = true
				n.Pitch = 0
			}
			appendNote(out, n, float64(start)/float64(divisions)/4, v.Voice, v.Staff)
			if v.Chord.Local == "" {
				lastStart = cursor
				cursor += v.Duration
			}
		}
	}
	return divisions
}

func appendNote(out *model.Measure, n model.Note, offset float64, voice, staff int) {
	for i := range out.Entries {
		e := &out.Entries[i]
		if e.Offset == offset && e.Voice == voice && e.Staff == staff {
			e.Notes = append(e.Notes, n)
			return
		}
	}
	out.Entries = append(out.Entries, model.VoiceEntry{
		Offset: offset,
		Voice:  voice,
		Staff:  staff,
		Notes:  []model.Note{n},
	})
}
