// Package audio renders relayed note events through a small built-in
// synthesizer, for running the bridge without an external MIDI device.
package audio

import (
	"fmt"
	"math"
	"sync"

	"github.com/ebitengine/oto/v3"
)

const (
	sampleRate   = 44100
	channelCount = 2 // stereo
	bitDepth     = 2 // 16-bit
	maxVoices    = 64
)

// WaveType is an oscillator shape.
type WaveType int

const (
	WaveSine WaveType = iota
	WaveSquare
	WaveSawtooth
	WaveTriangle
)

type voice struct {
	channel   uint8
	note      uint8
	velocity  uint8
	frequency float64
	phase     float64
	envelope  float64
	releasing bool
	active    bool
}

// Synth is a polyphonic synthesizer fed with raw MIDI messages.
type Synth struct {
	mu           sync.Mutex
	voices       []*voice
	masterVolume float64
	waveTypes    [16]WaveType

	player *oto.Player
}

// NewSynth opens the system audio output and starts rendering.
func NewSynth() (*Synth, error) {
	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channelCount,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio: %w", err)
	}
	<-ready

	s := newSynth()
	s.player = otoCtx.NewPlayer(s)
	s.player.Play()
	return s, nil
}

func newSynth() *Synth {
	s := &Synth{masterVolume: 0.3}
	s.waveTypes[0] = WaveSine
	s.waveTypes[1] = WaveTriangle
	s.waveTypes[2] = WaveSawtooth
	s.waveTypes[3] = WaveSquare
	return s
}

// Send interprets a raw MIDI message. Note on with velocity zero is a note
// off; control change 123 silences everything. Other messages are ignored.
func (s *Synth) Send(msg []byte) error {
	if len(msg) < 3 {
		return fmt.Errorf("short MIDI message: % X", msg)
	}
	channel := msg[0] & 0x0F
	switch msg[0] & 0xF0 {
	case 0x90:
		s.NoteOn(channel, msg[1], msg[2])
	case 0x80:
		s.NoteOff(channel, msg[1])
	case 0xB0:
		if msg[1] == 123 {
			s.AllNotesOff()
		}
	}
	return nil
}

// Close releases all voices and stops playback.
func (s *Synth) Close() error {
	s.AllNotesOff()
	if s.player != nil {
		s.player.Pause()
	}
	return nil
}

// NoteOn starts a voice, reusing an idle one or stealing the oldest.
func (s *Synth) NoteOn(channel, note, velocity uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if velocity == 0 {
		s.release(channel, note)
		return
	}

	var v *voice
	for _, candidate := range s.voices {
		if !candidate.active {
			v = candidate
			break
		}
	}
	if v == nil {
		if len(s.voices) < maxVoices {
			v = &voice{}
			s.voices = append(s.voices, v)
		} else {
			v = s.voices[0]
		}
	}

	*v = voice{
		channel:   channel,
		note:      note,
		velocity:  velocity,
		frequency: noteFrequency(note),
		active:    true,
	}
}

// NoteOff releases the matching voice.
func (s *Synth) NoteOff(channel, note uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.release(channel, note)
}

func (s *Synth) release(channel, note uint8) {
	for _, v := range s.voices {
		if v.active && !v.releasing && v.channel == channel && v.note == note {
			v.releasing = true
			return
		}
	}
}

// AllNotesOff releases every voice.
func (s *Synth) AllNotesOff() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.voices {
		if v.active {
			v.releasing = true
		}
	}
}

// Sounding reports how many voices are held (not releasing).
func (s *Synth) Sounding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.voices {
		if v.active && !v.releasing {
			n++
		}
	}
	return n
}

// Read renders interleaved 16-bit stereo samples for oto.
func (s *Synth) Read(buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	frames := len(buf) / (channelCount * bitDepth)
	for i := 0; i < frames; i++ {
		var sample float64
		for _, v := range s.voices {
			if !v.active {
				continue
			}
			sample += generateWave(s.waveTypes[v.channel%16], v.phase) * float64(v.velocity) / 127.0 * v.envelope * 0.2

			v.phase += v.frequency / sampleRate
			if v.phase >= 1.0 {
				v.phase -= 1.0
			}

			if v.releasing {
				v.envelope *= 0.9995
				if v.envelope < 0.001 {
					v.active = false
				}
			} else if v.envelope < 1.0 {
				v.envelope = math.Min(1.0, v.envelope+0.001)
			}
		}

		sample = math.Max(-1, math.Min(1, sample*s.masterVolume))
		pcm := int16(sample * 32767)

		idx := i * channelCount * bitDepth
		buf[idx] = byte(pcm)
		buf[idx+1] = byte(pcm >> 8)
		buf[idx+2] = byte(pcm)
		buf[idx+3] = byte(pcm >> 8)
	}
	return frames * channelCount * bitDepth, nil
}

func generateWave(w WaveType, phase float64) float64 {
	switch w {
	case WaveSquare:
		if phase < 0.5 {
			return 0.8
		}
		return -0.8
	case WaveSawtooth:
		return 2*phase - 1
	case WaveTriangle:
		if phase < 0.5 {
			return 4*phase - 1
		}
		return 3 - 4*phase
	default:
		return math.Sin(2 * math.Pi * phase)
	}
}

// noteFrequency converts a MIDI note to Hz with A4 (69) at 440.
func noteFrequency(note uint8) float64 {
	return 440.0 * math.Pow(2.0, (float64(note)-69.0)/12.0)
}
