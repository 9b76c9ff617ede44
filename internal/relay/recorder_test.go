package relay

import (
	"path/filepath"
	"testing"
	"time"

	"gitlab.com/gomidi/midi/v2/smf"
)

func TestRecorderWritesSMF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "take.mid")
	r := NewRecorder(path)

	start := time.Now()
	clock := start
	r.now = func() time.Time { return clock }

	if err := r.Send([]byte{0x90, 60, 80}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	clock = start.Add(500 * time.Millisecond)
	if err := r.Send([]byte{0x80, 60, 80}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if r.Len() != 2 {
		t.Fatalf("expected 2 recorded events, got %d", r.Len())
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rd, err := smf.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(rd.Tracks) != 2 {
		t.Fatalf("expected tempo track plus event track, got %d tracks", len(rd.Tracks))
	}

	var ch, key, vel uint8
	var ons, offs int
	var offDelta uint32
	for _, ev := range rd.Tracks[1] {
		switch {
		case ev.Message.GetNoteOn(&ch, &key, &vel):
			ons++
			if key != 60 || vel != 80 {
				t.Errorf("unexpected note on %d/%d", key, vel)
			}
		case ev.Message.GetNoteOff(&ch, &key, &vel):
			offs++
			offDelta = ev.Delta
		}
	}
	if ons != 1 || offs != 1 {
		t.Fatalf("expected one note on and one note off, got %d/%d", ons, offs)
	}
	// Half a second at 120 BPM is one quarter note.
	if offDelta != recordResolution {
		t.Errorf("expected note off delta %d, got %d", recordResolution, offDelta)
	}
}
