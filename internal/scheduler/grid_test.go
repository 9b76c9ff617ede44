package scheduler

import (
	"testing"
	"time"
)

func TestGridResetSync(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := base
	g := NewGrid(func() time.Time { return clock })

	if !g.Sync().Equal(base) {
		t.Fatalf("initial sync = %v, want %v", g.Sync(), base)
	}

	clock = base.Add(5 * time.Second)
	g.ResetSync()
	if !g.Sync().Equal(clock) {
		t.Errorf("sync after reset = %v, want %v", g.Sync(), clock)
	}
}

func TestGridSlotsAreIndependent(t *testing.T) {
	g := NewGrid(nil)
	g.Slot(1, 60).Bump()
	g.Slot(1, 60).Bump()

	if got := g.Slot(1, 60).Read(); got != 2 {
		t.Errorf("slot 1/60 generation = %d, want 2", got)
	}
	if got := g.Slot(2, 60).Read(); got != 0 {
		t.Errorf("slot 2/60 generation = %d, want 0", got)
	}
	if got := g.Slot(1, 61).Read(); got != 0 {
		t.Errorf("slot 1/61 generation = %d, want 0", got)
	}
}

func TestGridSlotOutOfRangePanics(t *testing.T) {
	g := NewGrid(nil)
	for _, addr := range [][2]uint8{{Channels, 0}, {0, Notes}, {255, 255}} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("Slot(%d, %d) should panic", addr[0], addr[1])
				}
			}()
			g.Slot(addr[0], addr[1])
		}()
	}
	// The corners are valid.
	g.Slot(0, 0)
	g.Slot(Channels-1, Notes-1)
}

func TestGridSounding(t *testing.T) {
	g := NewGrid(nil)
	for _, addr := range [][2]uint8{{0, 10}, {15, 126}} {
		s := g.Slot(addr[0], addr[1])
		if _, ok := s.Play(s.Bump(), addr[1], 1); !ok {
			t.Fatalf("play %v should emit", addr)
		}
	}

	var got [][2]uint8
	g.Sounding(func(channel, note uint8, s *Slot) {
		got = append(got, [2]uint8{channel, note})
	})
	if len(got) != 2 || got[0] != [2]uint8{0, 10} || got[1] != [2]uint8{15, 126} {
		t.Errorf("Sounding visited %v", got)
	}
}
