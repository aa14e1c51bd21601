// ABOUTME: Audio output backend tests
// ABOUTME: Verifies activation gating, state listeners and headless rendering
package output

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/harperreed/emuaudio/pkg/audio"
	"github.com/harperreed/emuaudio/pkg/audio/ringbuf"
	"github.com/harperreed/emuaudio/pkg/protocol"
	"github.com/harperreed/emuaudio/pkg/renderer"
	"github.com/harperreed/emuaudio/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testFormat = audio.Format{SampleRate: 8000, SampleSizeBits: 8, Channels: 1}

type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) get() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func TestBackendsImplementInterface(t *testing.T) {
	var _ Backend = (*Oto)(nil)
	var _ Backend = (*Malgo)(nil)
	var _ Backend = (*Headless)(nil)
	var _ Backend = (*PortAudio)(nil)
	var _ Device = (*HeadlessDevice)(nil)
	var _ Module = (*renderer.Renderer)(nil)
}

func TestByName(t *testing.T) {
	for _, name := range Backends {
		b, err := ByName(name)
		require.NoError(t, err)
		assert.Equal(t, name, b.Name())
	}
	_, err := ByName("jukebox")
	assert.Error(t, err)
}

func TestHeadlessUnsupported(t *testing.T) {
	h := &Headless{Unsupported: true}
	_, err := h.Open(testFormat, Options{})
	assert.True(t, errors.Is(err, ErrUnsupported))
	assert.Zero(t, h.Opened())
}

func TestResumeRequiresActivation(t *testing.T) {
	act := NewActivation(false)
	h := NewHeadless(0)
	dev, err := h.Open(testFormat, Options{Activation: act})
	require.NoError(t, err)

	rec := &stateRecorder{}
	dev.OnStateChange(rec.record)

	assert.Equal(t, StateSuspended, dev.State())
	assert.ErrorIs(t, dev.Resume(), ErrNotActivated)
	assert.Equal(t, StateSuspended, dev.State())

	act.Interact()
	require.NoError(t, dev.Resume())
	assert.Equal(t, StateRunning, dev.State())
	require.NoError(t, dev.Resume(), "resume while running is a no-op")

	require.NoError(t, dev.Suspend())
	require.NoError(t, dev.Close())
	assert.ErrorIs(t, dev.Resume(), ErrClosed)

	assert.Equal(t, []State{StateRunning, StateSuspended, StateClosed}, rec.get())
	assert.Equal(t, 1, h.Last().Starts())
}

func TestRemovedListenerIsNotCalled(t *testing.T) {
	dev, err := NewHeadless(0).Open(testFormat, Options{})
	require.NoError(t, err)

	rec := &stateRecorder{}
	remove := dev.OnStateChange(rec.record)
	remove()
	remove()

	require.NoError(t, dev.Resume())
	assert.Empty(t, rec.get())
}

func TestActivationListeners(t *testing.T) {
	act := NewActivation(false)
	calls := 0
	remove := act.OnInteraction(func() { calls++ })
	assert.Equal(t, 1, act.Listeners())

	act.Interact()
	act.Interact()
	assert.Equal(t, 2, calls)
	assert.True(t, act.Granted())

	remove()
	act.Interact()
	assert.Equal(t, 2, calls)
	assert.Zero(t, act.Listeners())

	var nilGate *Activation
	assert.True(t, nilGate.Granted())
}

func TestHeadlessPumpRendersLoadedModule(t *testing.T) {
	h := NewHeadless(0)
	dev, err := h.Open(testFormat, Options{})
	require.NoError(t, err)

	ring, err := ringbuf.New(32)
	require.NoError(t, err)
	_, err = dev.Load(renderer.Config{Mode: transport.ModeShared, Format: testFormat, Ring: ring})
	require.NoError(t, err)

	_, err = dev.Load(renderer.Config{Mode: transport.ModeMessage, Format: testFormat})
	assert.Error(t, err, "only one renderer per device")

	require.True(t, ring.Push([]byte{10, 20}))
	assert.Equal(t, []byte{10, 20, 0}, h.Last().Pump(3))
	assert.Equal(t, int64(3), h.Last().Rendered())
}

func TestHeadlessLoopDrainsWhileRunning(t *testing.T) {
	h := NewHeadless(time.Millisecond)
	dev, err := h.Open(testFormat, Options{})
	require.NoError(t, err)

	mod, err := dev.Load(renderer.Config{Mode: transport.ModeMessage, Format: testFormat})
	require.NoError(t, err)
	mod.Post(protocol.Message{Type: protocol.TypePCM, Payload: protocol.PCMChunk{Seq: 1, Data: make([]byte, 16)}})

	require.NoError(t, dev.Resume())
	assert.Eventually(t, func() bool { return h.Last().Rendered() >= 16 }, time.Second, time.Millisecond)
	require.NoError(t, dev.Close())
}
