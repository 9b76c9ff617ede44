// Package tui shows the bridge's output events live in the terminal.
package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const maxMessageHistory = 20

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	subtitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")).Bold(true)
	noteStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD700"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
	logStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	latestStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF"))
)

// EventMsg carries one relayed MIDI message into the program.
type EventMsg struct {
	At  time.Time
	Raw [3]byte
}

type noteKey struct {
	channel uint8
	note    uint8
}

// Monitor is the bubbletea model for the live view.
type Monitor struct {
	listen         string
	output         string
	active         map[noteKey]uint8
	messageHistory []string
	messageCount   int
	width          int
	height         int
}

// NewMonitor describes a bridge listening on listen and writing to output.
func NewMonitor(listen, output string) *Monitor {
	return &Monitor{
		listen:         listen,
		output:         output,
		active:         make(map[noteKey]uint8),
		messageHistory: make([]string, 0, maxMessageHistory),
	}
}

func (m *Monitor) Init() tea.Cmd {
	return nil
}

func (m *Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case EventMsg:
		m.handleEvent(msg)
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *Monitor) handleEvent(ev EventMsg) {
	status, note, velocity := ev.Raw[0], ev.Raw[1], ev.Raw[2]
	key := noteKey{channel: status & 0x0F, note: note}

	var line string
	switch status & 0xF0 {
	case 0x90:
		if velocity > 0 {
			m.active[key] = velocity
			line = fmt.Sprintf("Note On:  Ch%d %-4s vel:%d", key.channel+1, noteName(note), velocity)
			break
		}
		fallthrough
	case 0x80:
		delete(m.active, key)
		line = fmt.Sprintf("Note Off: Ch%d %-4s", key.channel+1, noteName(note))
	default:
		line = fmt.Sprintf("Raw:      % X", ev.Raw)
	}
	if !ev.At.IsZero() {
		line = ev.At.Format("15:04:05.000") + "  " + line
	}

	m.messageCount++
	m.messageHistory = append([]string{line}, m.messageHistory...)
	if len(m.messageHistory) > maxMessageHistory {
		m.messageHistory = m.messageHistory[:maxMessageHistory]
	}
}

func (m *Monitor) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("OSCMIDI Bridge") + "\n\n")
	b.WriteString(subtitleStyle.Render("OSC: ") + m.listen + "\n")
	b.WriteString(subtitleStyle.Render("Output: ") + statusStyle.Render(m.output) + "\n\n")

	b.WriteString(subtitleStyle.Render("Active Notes:") + "\n")
	if len(m.active) == 0 {
		b.WriteString("  (no notes playing)\n")
	} else {
		keys := make([]noteKey, 0, len(m.active))
		for k := range m.active {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].channel != keys[j].channel {
				return keys[i].channel < keys[j].channel
			}
			return keys[i].note < keys[j].note
		})
		names := make([]string, 0, len(keys))
		for _, k := range keys {
			names = append(names, fmt.Sprintf("Ch%d:%s", k.channel+1, noteName(k.note)))
		}
		b.WriteString("  " + noteStyle.Render(strings.Join(names, " ")) + "\n")
	}

	b.WriteString("\n" + subtitleStyle.Render(fmt.Sprintf("Message Log: [%d total]", m.messageCount)) + "\n")
	if len(m.messageHistory) == 0 {
		b.WriteString("  " + logStyle.Render("(waiting for input)") + "\n")
	}
	for i, line := range m.messageHistory {
		if i == 10 {
			break
		}
		if i == 0 {
			b.WriteString("  " + latestStyle.Render("▶ "+line) + "\n")
		} else {
			b.WriteString("  " + logStyle.Render("  "+line) + "\n")
		}
	}

	b.WriteString("\n" + renderKeyboard(m.active) + "\n")
	b.WriteString("\n" + helpStyle.Render("q/ctrl+c: quit"))
	return b.String()
}

// renderKeyboard draws C3 to B4 with sounding keys highlighted.
func renderKeyboard(active map[noteKey]uint8) string {
	sounding := make(map[uint8]bool)
	for k := range active {
		sounding[k.note] = true
	}

	white := lipgloss.NewStyle().Background(lipgloss.Color("#FFFFFF")).Foreground(lipgloss.Color("#000000"))
	black := lipgloss.NewStyle().Background(lipgloss.Color("#000000")).Foreground(lipgloss.Color("#FFFFFF"))
	activeWhite := lipgloss.NewStyle().Background(lipgloss.Color("#00FF00")).Foreground(lipgloss.Color("#000000"))
	activeBlack := lipgloss.NewStyle().Background(lipgloss.Color("#00AA00")).Foreground(lipgloss.Color("#FFFFFF"))

	whiteKeys := []uint8{0, 2, 4, 5, 7, 9, 11}
	blackAfter := []int{1, 3, -1, 6, 8, 10, -1}

	var top, bottom strings.Builder
	for octave := 3; octave <= 4; octave++ {
		base := uint8(octave*12 + 12)
		for _, offset := range blackAfter {
			if offset < 0 {
				top.WriteString("  ")
				continue
			}
			if sounding[base+uint8(offset)] {
				top.WriteString(activeBlack.Render("█"))
			} else {
				top.WriteString(black.Render("█"))
			}
			top.WriteString(" ")
		}
		for _, offset := range whiteKeys {
			if sounding[base+offset] {
				bottom.WriteString(activeWhite.Render("█"))
			} else {
				bottom.WriteString(white.Render("█"))
			}
			bottom.WriteString(" ")
		}
	}
	return top.String() + "\n" + bottom.String()
}

func noteName(note uint8) string {
	names := []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}
	return fmt.Sprintf("%s%d", names[note%12], int(note/12)-1)
}
