// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and forwards player notifications into it
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/harperreed/emuaudio/pkg/player"
)

// Monitor runs the TUI and receives player notifications
type Monitor struct {
	program *tea.Program
	updates chan tea.Msg
	done    chan struct{}
}

// NewMonitor creates a monitor that reports actions to controller
func NewMonitor(controller Controller, opts ...tea.ProgramOption) *Monitor {
	if len(opts) == 0 {
		opts = []tea.ProgramOption{tea.WithAltScreen(), tea.WithMouseCellMotion()}
	}
	return &Monitor{
		program: tea.NewProgram(NewModel(controller), opts...),
		updates: make(chan tea.Msg, 64),
		done:    make(chan struct{}),
	}
}

// Run blocks until the user quits or Quit is called
func (m *Monitor) Run() error {
	go m.forward()
	defer close(m.done)
	_, err := m.program.Run()
	return err
}

// forward moves queued updates into the program
func (m *Monitor) forward() {
	for {
		select {
		case msg := <-m.updates:
			m.program.Send(msg)
		case <-m.done:
			return
		}
	}
}

// Send queues a message for the model, dropping it when the queue is full
func (m *Monitor) Send(msg tea.Msg) {
	select {
	case m.updates <- msg:
	default:
	}
}

// Notify implements player.Delegate
func (m *Monitor) Notify(n player.Notification) {
	m.Send(NotificationMsg(n))
}

// Quit stops the program
func (m *Monitor) Quit() {
	m.program.Quit()
}
