package relay

import (
	"fmt"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2/smf"
)

const (
	recordResolution = 960
	recordBPM        = 120.0
)

type recorded struct {
	at  time.Time
	msg [3]byte
}

// Recorder captures every message with its arrival time and writes them
// to a standard MIDI file on Close.
type Recorder struct {
	mu     sync.Mutex
	path   string
	now    func() time.Time
	events []recorded
}

// NewRecorder records to path.
func NewRecorder(path string) *Recorder {
	return &Recorder{path: path, now: time.Now}
}

// Send stores msg. Messages shorter than three bytes are padded.
func (r *Recorder) Send(msg []byte) error {
	var m [3]byte
	copy(m[:], msg)
	r.mu.Lock()
	r.events = append(r.events, recorded{at: r.now(), msg: m})
	r.mu.Unlock()
	return nil
}

// Len reports how many messages have been recorded.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Close writes the file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sm := smf.New()
	ticks := smf.MetricTicks(recordResolution)
	sm.TimeFormat = ticks

	var tempo smf.Track
	tempo.Add(0, smf.MetaMeter(4, 4))
	tempo.Add(0, smf.MetaTempo(recordBPM))
	tempo.Close(0)
	if err := sm.Add(tempo); err != nil {
		return fmt.Errorf("error adding tempo track: %w", err)
	}

	var track smf.Track
	var last time.Time
	for i, ev := range r.events {
		var delta uint32
		if i > 0 {
			delta = ticks.Ticks(recordBPM, ev.at.Sub(last))
		}
		last = ev.at
		msg := ev.msg
		track.Add(delta, msg[:])
	}
	track.Close(0)
	if err := sm.Add(track); err != nil {
		return fmt.Errorf("error adding event track: %w", err)
	}

	if err := sm.WriteFile(r.path); err != nil {
		return fmt.Errorf("error writing MIDI file: %w", err)
	}
	return nil
}
