package midiin

import (
	"errors"
	"fmt"

	"gitlab.com/gomidi/midi/v2"
)

// ErrNoPort indicates the requested MIDI input port was not found.
var ErrNoPort = errors.New("midi input port not found")

// Listen attaches the adapter to a hardware MIDI input port by name prefix
// and returns a stop function. Requires a registered gomidi driver in the
// binary (the serve command links rtmididrv).
func (a *Adapter) Listen(portName string) (func(), error) {
	in, err := midi.FindInPort(portName)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrNoPort, portName)
	}
	stop, err := midi.ListenTo(in, func(msg midi.Message, timestampms int32) {
		a.HandleMessage(msg, float64(timestampms))
	})
	if err != nil {
		return nil, fmt.Errorf("listen on %q: %w", portName, err)
	}
	return stop, nil
}
