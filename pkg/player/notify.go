// ABOUTME: Notifications delivered from the player to its host
// ABOUTME: Defines notification kinds, payloads and the delegate dispatcher
package player

import (
	"time"

	"github.com/harperreed/emuaudio/pkg/audio"
	"github.com/harperreed/emuaudio/pkg/transport"
)

// Kind names a notification
type Kind string

const (
	KindOpen       Kind = "audio_open"
	KindRunning    Kind = "audio_running"
	KindBlocked    Kind = "audio_blocked"
	KindActivity   Kind = "audio_activity"
	KindProbe      Kind = "audio_probe"
	KindQueueStats Kind = "audio_queue_stats"
)

// AllKinds lists every notification the player emits
var AllKinds = []Kind{KindOpen, KindRunning, KindBlocked, KindActivity, KindProbe, KindQueueStats}

// Notification is a telemetry or state event. Delivery is best effort.
type Notification struct {
	Kind      Kind        `json:"type"`
	SessionID string      `json:"session"`
	Time      time.Time   `json:"time"`
	Payload   interface{} `json:"payload,omitempty"`
}

// Open is the payload of audio_open
type Open = audio.Format

// Activity is the payload of audio_activity
type Activity struct {
	BytesPerSecond int64 `json:"bytesPerSecond"`
}

// ProbeSample is the payload of audio_probe
type ProbeSample struct {
	BytesPerSecond int64          `json:"bytesPerSecond"`
	RMS            float64        `json:"rms"`
	Clipped        bool           `json:"clipped"`
	Source         transport.Mode `json:"source"`
}

// QueueStats is the payload of audio_queue_stats
type QueueStats struct {
	BufferedMs    float64        `json:"bufferedMs"`
	DroppedChunks int64          `json:"droppedChunks"`
	Mode          transport.Mode `json:"mode"`
}

// Delegate receives notifications on the player's dispatcher goroutine
type Delegate interface {
	Notify(n Notification)
}

// DelegateFunc adapts a function to Delegate
type DelegateFunc func(Notification)

// Notify implements Delegate
func (f DelegateFunc) Notify(n Notification) { f(n) }

// emit queues a notification without blocking; it is dropped when the queue is full
func (p *Player) emit(sessionID string, kind Kind, payload interface{}) {
	p.notifyMu.RLock()
	defer p.notifyMu.RUnlock()
	if p.notifyClosed || !p.interested(kind) {
		return
	}
	select {
	case p.notes <- Notification{Kind: kind, SessionID: sessionID, Time: time.Now(), Payload: payload}:
	default:
		p.logger.Debug("Dropping notification, delegate is behind", "kind", string(kind))
	}
}

// dispatch delivers queued notifications in order
func (p *Player) dispatch() {
	defer close(p.dispatchDone)
	for n := range p.notes {
		p.delegateMu.RLock()
		d := p.delegate
		p.delegateMu.RUnlock()
		if d != nil {
			d.Notify(n)
		}
	}
}

// interested reports whether the current delegate wants kind
func (p *Player) interested(kind Kind) bool {
	p.delegateMu.RLock()
	defer p.delegateMu.RUnlock()
	if p.delegate == nil {
		return false
	}
	return p.interest == nil || p.interest[kind]
}
