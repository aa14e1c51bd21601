// ABOUTME: Tests for TUI model and state management
// ABOUTME: Tests notification handling, key bindings and rendering
package ui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/harperreed/emuaudio/pkg/audio"
	"github.com/harperreed/emuaudio/pkg/player"
	"github.com/harperreed/emuaudio/pkg/transport"
	"github.com/stretchr/testify/assert"
)

type recordingController struct {
	interactions int
	flushes      int
}

func (r *recordingController) Interact() { r.interactions++ }
func (r *recordingController) Flush()    { r.flushes++ }

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

func TestNewModel(t *testing.T) {
	model := NewModel(nil)
	assert.Equal(t, "uninitialized", model.state)
	assert.False(t, model.showDebug)
	assert.Zero(t, model.bytesPerSecond)
}

func TestNotificationsUpdateState(t *testing.T) {
	format := audio.Format{SampleRate: 22050, SampleSizeBits: 16, Channels: 2}
	m := NewModel(nil)

	m = update(t, m, NotificationMsg{Kind: player.KindOpen, SessionID: "s1", Payload: player.Open(format)})
	assert.Equal(t, "opening", m.state)
	assert.Equal(t, "s1", m.session)
	assert.Equal(t, format, m.format)

	m = update(t, m, NotificationMsg{Kind: player.KindBlocked})
	assert.Equal(t, "blocked", m.state)
	assert.Equal(t, 1, m.blockedCount)

	m = update(t, m, NotificationMsg{Kind: player.KindRunning})
	assert.Equal(t, "running", m.state)

	m = update(t, m, NotificationMsg{Kind: player.KindActivity, Payload: player.Activity{BytesPerSecond: 88200}})
	assert.Equal(t, int64(88200), m.bytesPerSecond)

	m = update(t, m, NotificationMsg{Kind: player.KindProbe, Payload: player.ProbeSample{RMS: 0.4, Clipped: true, Source: transport.ModeShared}})
	m = update(t, m, NotificationMsg{Kind: player.KindProbe, Payload: player.ProbeSample{RMS: 0.2}})
	assert.Equal(t, 0.2, m.rms)
	assert.Equal(t, 1, m.clipped)

	m = update(t, m, NotificationMsg{Kind: player.KindQueueStats, Payload: player.QueueStats{BufferedMs: 80, DroppedChunks: 2, Mode: transport.ModeMessage}})
	assert.Equal(t, 80.0, m.bufferedMs)
	assert.Equal(t, int64(2), m.dropped)
	assert.Equal(t, "message", m.mode)

	// Telemetry does not fill the event log
	assert.Len(t, m.events, 3)
}

func TestEventLogIsBounded(t *testing.T) {
	m := NewModel(nil)
	for i := 0; i < maxEvents+4; i++ {
		m = update(t, m, NotificationMsg{Kind: player.KindBlocked})
	}
	assert.Len(t, m.events, maxEvents)
}

func TestKeyBindings(t *testing.T) {
	tests := []struct {
		name         string
		key          tea.KeyMsg
		interactions int
		flushes      int
		debug        bool
	}{
		{"space interacts", tea.KeyMsg{Type: tea.KeySpace}, 1, 0, false},
		{"enter interacts", tea.KeyMsg{Type: tea.KeyEnter}, 1, 0, false},
		{"letter interacts", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'x'}}, 1, 0, false},
		{"f flushes", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'f'}}, 0, 1, false},
		{"d toggles debug", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'d'}}, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := &recordingController{}
			m := update(t, NewModel(ctrl), tt.key)
			assert.Equal(t, tt.interactions, ctrl.interactions)
			assert.Equal(t, tt.flushes, ctrl.flushes)
			assert.Equal(t, tt.debug, m.showDebug)
		})
	}
}

func TestQuitKey(t *testing.T) {
	ctrl := &recordingController{}
	next, cmd := NewModel(ctrl).Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	assert.NotNil(t, cmd)
	assert.True(t, next.(Model).quitting)
	assert.Zero(t, ctrl.interactions)
}

func TestMouseClickInteracts(t *testing.T) {
	ctrl := &recordingController{}
	update(t, NewModel(ctrl), tea.MouseMsg{Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})
	update(t, NewModel(ctrl), tea.MouseMsg{Action: tea.MouseActionMotion})
	assert.Equal(t, 1, ctrl.interactions)
}

func TestViewShowsBlockedHint(t *testing.T) {
	m := NewModel(nil)
	m = update(t, m, StatusMsg{Backend: "oto", Source: "tone"})
	m = update(t, m, NotificationMsg{Kind: player.KindBlocked})
	m = update(t, m, FlushedMsg{Reason: "manual", DroppedMs: 120})

	view := m.View()
	assert.Contains(t, view, "press any key")
	assert.Contains(t, view, "oto")
	assert.Contains(t, view, "manual, 120ms dropped")
}

func TestRenderBar(t *testing.T) {
	tests := []struct {
		value, limit float64
		want         string
	}{
		{0, 1, "░░░░"},
		{0.5, 1, "██░░"},
		{2, 1, "████"},
		{-1, 1, "░░░░"},
		{1, 0, "░░░░"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, renderBar(tt.value, tt.limit, 4))
	}
}

func TestChannelName(t *testing.T) {
	assert.Equal(t, "Mono", channelName(1))
	assert.Equal(t, "Stereo", channelName(2))
	assert.Equal(t, "6ch", channelName(6))
}

func TestMonitorSendNeverBlocks(t *testing.T) {
	m := NewMonitor(nil)
	for i := 0; i < cap(m.updates)+10; i++ {
		m.Notify(player.Notification{Kind: player.KindActivity})
	}
	assert.Len(t, m.updates, cap(m.updates))
}
