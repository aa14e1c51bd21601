// ABOUTME: Sink server tests
// ABOUTME: Drives the websocket endpoint with a raw host connection and a headless device
package server

import (
	"bytes"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harperreed/emuaudio/internal/wire"
	"github.com/harperreed/emuaudio/pkg/audio"
	"github.com/harperreed/emuaudio/pkg/audio/output"
	"github.com/harperreed/emuaudio/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testFormat = audio.Format{SampleRate: 8000, SampleSizeBits: 8, Channels: 1}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startSink(t *testing.T, act *output.Activation) (*Sink, *output.Headless, string) {
	t.Helper()
	backend := output.NewHeadless(0)
	sink := New(Config{Name: "test-sink", Backend: backend, Activation: act, Logger: quietLogger()})
	srv := httptest.NewServer(sink.Handler())
	t.Cleanup(srv.Close)
	return sink, backend, "ws" + strings.TrimPrefix(srv.URL, "http") + sink.config.Path
}

func dialHost(t *testing.T, url string) *wire.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	conn := wire.New(ws, quietLogger(), 0)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func handshake(t *testing.T, conn *wire.Conn) protocol.SinkHello {
	t.Helper()
	hello := protocol.HostHello{SessionID: "s-1", Name: "test-host", Format: testFormat}
	require.NoError(t, conn.WriteJSON(protocol.Message{Type: protocol.TypeHostHello, Payload: hello}))

	reply, err := conn.ReadHandshake(2 * time.Second)
	require.NoError(t, err)
	sinkHello, ok := reply.Payload.(protocol.SinkHello)
	require.True(t, ok, "expected sink/hello, got %s", reply.Type)
	go conn.Run()
	return sinkHello
}

// readAll pumps messages from conn into a channel until the connection ends
func readAll(conn *wire.Conn) <-chan protocol.Message {
	out := make(chan protocol.Message, 64)
	go func() {
		defer close(out)
		for {
			msg, err := conn.Read()
			if err != nil {
				return
			}
			out <- msg
		}
	}()
	return out
}

func expect(t *testing.T, msgs <-chan protocol.Message, match func(protocol.Message) bool) protocol.Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg, ok := <-msgs:
			require.True(t, ok, "connection closed while waiting")
			if match(msg) {
				return msg
			}
		case <-deadline:
			t.Fatal("timed out waiting for message")
			return protocol.Message{}
		}
	}
}

func isState(state string) func(protocol.Message) bool {
	return func(m protocol.Message) bool {
		ds, ok := m.Payload.(protocol.DeviceState)
		return ok && ds.State == state
	}
}

func TestSinkHandshakeAutostarts(t *testing.T) {
	sink, backend, url := startSink(t, nil)
	conn := dialHost(t, url)

	hello := handshake(t, conn)
	assert.Equal(t, "test-sink", hello.Name)
	assert.Equal(t, "headless", hello.Backend)
	assert.Equal(t, protocol.StateRunning, hello.State)
	assert.NotEmpty(t, hello.SinkID)

	require.Eventually(t, func() bool { return sink.Status().Host == "test-host" }, time.Second, 5*time.Millisecond)
	assert.Equal(t, output.StateRunning, sink.Status().State)
	assert.Equal(t, 1, backend.Opened())
}

func TestSinkRendersPCMAndReportsStats(t *testing.T) {
	_, backend, url := startSink(t, nil)
	conn := dialHost(t, url)
	handshake(t, conn)
	msgs := readAll(conn)

	data := bytes.Repeat([]byte{0x42}, 800)
	require.NoError(t, conn.Send(protocol.Message{Type: protocol.TypePCM, Payload: protocol.PCMChunk{Seq: 1, Data: data}}))

	msg := expect(t, msgs, func(m protocol.Message) bool {
		qs, ok := m.Payload.(protocol.QueueStats)
		return ok && qs.BufferedMs > 0
	})
	assert.InDelta(t, 100.0, msg.Payload.(protocol.QueueStats).BufferedMs, 0.001)

	dev := backend.Last()
	require.NotNil(t, dev)
	assert.Equal(t, data, dev.Pump(800))

	require.NoError(t, conn.Send(protocol.Message{Type: protocol.TypeReset, Payload: protocol.Reset{Reason: "flush"}}))
	require.NoError(t, conn.Send(protocol.Message{Type: protocol.TypePCM, Payload: protocol.PCMChunk{Seq: 2, Data: data}}))
	require.NoError(t, conn.Send(protocol.Message{Type: protocol.TypeReset, Payload: protocol.Reset{Reason: "flush"}}))

	expect(t, msgs, func(m protocol.Message) bool {
		qs, ok := m.Payload.(protocol.QueueStats)
		return ok && qs.BufferedMs == 0
	})
}

func TestSinkResumeWaitsForActivation(t *testing.T) {
	act := output.NewActivation(false)
	_, _, url := startSink(t, act)
	conn := dialHost(t, url)

	hello := handshake(t, conn)
	assert.Equal(t, protocol.StateSuspended, hello.State)
	msgs := readAll(conn)

	require.NoError(t, conn.Send(protocol.Message{Type: protocol.TypeResume, Payload: protocol.Resume{}}))
	expect(t, msgs, isState(protocol.StateSuspended))

	act.Interact()
	require.NoError(t, conn.Send(protocol.Message{Type: protocol.TypeResume, Payload: protocol.Resume{}}))
	expect(t, msgs, isState(protocol.StateRunning))

	require.NoError(t, conn.Send(protocol.Message{Type: protocol.TypeSuspend, Payload: protocol.Suspend{}}))
	expect(t, msgs, isState(protocol.StateSuspended))
}

func TestSinkRejectsBadHello(t *testing.T) {
	tests := []struct {
		name string
		msg  protocol.Message
	}{
		{"wrong type", protocol.Message{Type: protocol.TypeResume, Payload: protocol.Resume{}}},
		{"invalid format", protocol.Message{Type: protocol.TypeHostHello, Payload: protocol.HostHello{Name: "h", Format: audio.Format{SampleRate: 8000}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, backend, url := startSink(t, nil)
			conn := dialHost(t, url)
			require.NoError(t, conn.WriteJSON(tt.msg))

			_, err := conn.ReadHandshake(2 * time.Second)
			assert.Error(t, err)
			assert.Zero(t, backend.Opened())
		})
	}
}

func TestSinkReplacesPreviousHost(t *testing.T) {
	sink, backend, url := startSink(t, nil)

	first := dialHost(t, url)
	handshake(t, first)
	firstMsgs := readAll(first)

	second := dialHost(t, url)
	handshake(t, second)

	select {
	case <-waitClosed(firstMsgs):
	case <-time.After(2 * time.Second):
		t.Fatal("first host was not disconnected")
	}
	assert.Equal(t, 2, backend.Opened())
	require.Eventually(t, func() bool { return sink.Status().Connections == 2 }, time.Second, 5*time.Millisecond)
}

func waitClosed(msgs <-chan protocol.Message) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		for range msgs {
		}
		close(done)
	}()
	return done
}
