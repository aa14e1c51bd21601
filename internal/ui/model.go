// ABOUTME: Bubbletea model for the audio monitor TUI
// ABOUTME: Tracks player notifications and turns keypresses into user interactions
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/harperreed/emuaudio/pkg/audio"
	"github.com/harperreed/emuaudio/pkg/player"
)

// Controller receives the actions a user can take from the monitor
type Controller interface {
	// Interact is a user gesture that may unblock playback
	Interact()
	// Flush discards buffered audio
	Flush()
}

// Model represents the TUI state
type Model struct {
	controller Controller

	// Session
	backend string
	source  string
	session string
	state   string
	format  audio.Format

	// Telemetry
	bytesPerSecond int64
	rms            float64
	clipped        int
	probeSource    string
	bufferedMs     float64
	dropped        int64
	mode           string
	lastFlush      string

	blockedCount int
	events       []string

	showDebug bool
	quitting  bool
	width     int
	height    int
}

// NotificationMsg delivers a player notification to the model
type NotificationMsg player.Notification

// StatusMsg sets static session details
type StatusMsg struct {
	Backend string
	Source  string
}

// FlushedMsg reports how much audio a flush discarded
type FlushedMsg struct {
	Reason    string
	DroppedMs float64
}

const maxEvents = 6

// NewModel creates a new TUI model
func NewModel(controller Controller) Model {
	return Model{
		controller: controller,
		state:      "uninitialized",
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.MouseMsg:
		// A click is as good a gesture as a keypress
		if msg.Action == tea.MouseActionPress {
			m.interact()
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		if msg.Backend != "" {
			m.backend = msg.Backend
		}
		if msg.Source != "" {
			m.source = msg.Source
		}
	case FlushedMsg:
		m.lastFlush = fmt.Sprintf("%s, %.0fms dropped", msg.Reason, msg.DroppedMs)
	case NotificationMsg:
		m.applyNotification(player.Notification(msg))
	}
	return m, nil
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "d":
		m.showDebug = !m.showDebug
	case "f":
		if m.controller != nil {
			m.controller.Flush()
		}
	default:
		m.interact()
	}
	return m, nil
}

func (m *Model) interact() {
	if m.controller != nil {
		m.controller.Interact()
	}
}

// applyNotification updates the model from a player notification
func (m *Model) applyNotification(n player.Notification) {
	switch n.Kind {
	case player.KindOpen:
		m.session = n.SessionID
		m.state = "opening"
		m.bufferedMs, m.dropped = 0, 0
		if f, ok := n.Payload.(player.Open); ok {
			m.format = f
		}
	case player.KindRunning:
		m.state = "running"
	case player.KindBlocked:
		m.state = "blocked"
		m.blockedCount++
	case player.KindActivity:
		if a, ok := n.Payload.(player.Activity); ok {
			m.bytesPerSecond = a.BytesPerSecond
		}
		return
	case player.KindProbe:
		if p, ok := n.Payload.(player.ProbeSample); ok {
			m.rms = p.RMS
			m.probeSource = string(p.Source)
			if p.Clipped {
				m.clipped++
			}
		}
		return
	case player.KindQueueStats:
		if q, ok := n.Payload.(player.QueueStats); ok {
			m.bufferedMs = q.BufferedMs
			m.dropped = q.DroppedChunks
			m.mode = string(q.Mode)
		}
		return
	}
	m.pushEvent(n)
}

func (m *Model) pushEvent(n player.Notification) {
	at := n.Time
	if at.IsZero() {
		at = time.Now()
	}
	m.events = append(m.events, fmt.Sprintf("%s %s", at.Format("15:04:05"), n.Kind))
	if len(m.events) > maxEvents {
		m.events = m.events[len(m.events)-maxEvents:]
	}
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).MarginBottom(1)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	warnStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
	okStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	faintStyle  = lipgloss.NewStyle().Faint(true)
)

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("emuaudio monitor"))
	b.WriteString("\n\n")

	m.field(&b, "Backend", m.backend)
	m.field(&b, "Source", m.source)
	if m.format.SampleRate > 0 {
		m.field(&b, "Format", fmt.Sprintf("%dHz %s %d-bit", m.format.SampleRate, channelName(m.format.Channels), m.format.SampleSizeBits))
	}

	b.WriteString(headerStyle.Render("State: "))
	switch m.state {
	case "running":
		b.WriteString(okStyle.Render("running"))
	case "blocked":
		b.WriteString(warnStyle.Render("blocked: press any key to enable sound"))
	default:
		b.WriteString(valueStyle.Render(m.state))
	}
	b.WriteString("\n\n")

	m.field(&b, "Throughput", fmt.Sprintf("%d B/s", m.bytesPerSecond))
	m.field(&b, "Level", fmt.Sprintf("[%s] %.3f rms", renderBar(m.rms, 1, 20), m.rms))
	m.field(&b, "Clipped", fmt.Sprintf("%d probes", m.clipped))
	if m.mode != "" {
		m.field(&b, "Queue", fmt.Sprintf("%.1fms buffered, %d dropped (%s)", m.bufferedMs, m.dropped, m.mode))
	}
	if m.lastFlush != "" {
		m.field(&b, "Last flush", m.lastFlush)
	}

	if m.showDebug {
		b.WriteString("\n")
		m.field(&b, "Session", m.session)
		m.field(&b, "Probe source", m.probeSource)
		m.field(&b, "Blocked", fmt.Sprintf("%d times", m.blockedCount))
		for _, e := range m.events {
			b.WriteString(faintStyle.Render("  " + e))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(faintStyle.Render("any key: interact  f: flush  d: debug  q: quit"))
	return b.String()
}

func (m Model) field(b *strings.Builder, name, value string) {
	b.WriteString(headerStyle.Render(name + ": "))
	b.WriteString(valueStyle.Render(value))
	b.WriteString("\n")
}

func renderBar(value, limit float64, width int) string {
	filled := 0
	if limit > 0 {
		filled = int(value / limit * float64(width))
	}
	filled = min(max(filled, 0), width)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func channelName(channels int) string {
	switch channels {
	case 1:
		return "Mono"
	case 2:
		return "Stereo"
	default:
		return fmt.Sprintf("%dch", channels)
	}
}
