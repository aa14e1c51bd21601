// ABOUTME: Wire encoding for renderer messages
// ABOUTME: Binary PCM frames and typed JSON decoding
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/harperreed/emuaudio/pkg/audio"
)

const (
	// PCMFrameType is the leading byte of a binary PCM frame
	PCMFrameType byte = 0

	// PCMHeaderSize is type byte + big-endian uint64 sequence number
	PCMHeaderSize = 9
)

// ErrMalformed is returned for frames or payloads that cannot be decoded
var ErrMalformed = errors.New("malformed renderer message")

// EncodePCMFrame builds a binary frame: [type][seq uint64 BE][pcm...]
func EncodePCMFrame(seq uint64, data []byte) []byte {
	frame := make([]byte, PCMHeaderSize+len(data))
	frame[0] = PCMFrameType
	binary.BigEndian.PutUint64(frame[1:PCMHeaderSize], seq)
	copy(frame[PCMHeaderSize:], data)
	return frame
}

// DecodePCMFrame parses a binary frame. The returned chunk aliases data.
func DecodePCMFrame(data []byte) (PCMChunk, error) {
	if len(data) < PCMHeaderSize {
		return PCMChunk{}, fmt.Errorf("%w: binary frame too short (%d bytes)", ErrMalformed, len(data))
	}
	if data[0] != PCMFrameType {
		return PCMChunk{}, fmt.Errorf("%w: unknown binary frame type %d", ErrMalformed, data[0])
	}
	return PCMChunk{
		Seq:  binary.BigEndian.Uint64(data[1:PCMHeaderSize]),
		Data: data[PCMHeaderSize:],
	}, nil
}

// EncodeJSON marshals a control message
func EncodeJSON(msg Message) ([]byte, error) {
	if msg.Type == TypePCM {
		return nil, fmt.Errorf("%w: pcm chunks travel as binary frames", ErrMalformed)
	}
	return json.Marshal(msg)
}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// queueStatsWire keeps absent fields distinguishable from zero
type queueStatsWire struct {
	BufferedMs    *float64 `json:"bufferedMs"`
	DroppedChunks *float64 `json:"droppedChunks"`
}

// DecodeJSON parses a text frame into a Message with a typed payload
func DecodeJSON(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var payload interface{}
	var err error

	switch env.Type {
	case TypeFormat:
		var f audio.Format
		err = unmarshalPayload(env.Payload, &f)
		payload = f
	case TypeReset:
		var r Reset
		err = unmarshalPayload(env.Payload, &r)
		payload = r
	case TypeResume:
		payload = Resume{}
	case TypeSuspend:
		payload = Suspend{}
	case TypeDeviceState:
		var s DeviceState
		err = unmarshalPayload(env.Payload, &s)
		payload = s
	case TypeHostHello:
		var h HostHello
		err = unmarshalPayload(env.Payload, &h)
		payload = h
	case TypeSinkHello:
		var h SinkHello
		err = unmarshalPayload(env.Payload, &h)
		payload = h
	case TypeQueueStats:
		var w queueStatsWire
		err = unmarshalPayload(env.Payload, &w)
		if err == nil && (w.BufferedMs == nil || w.DroppedChunks == nil) {
			err = errors.New("queue-stats requires bufferedMs and droppedChunks")
		}
		if err == nil {
			payload = QueueStats{BufferedMs: *w.BufferedMs, DroppedChunks: *w.DroppedChunks}
		}
	default:
		return Message{}, fmt.Errorf("%w: unknown message type %q", ErrMalformed, env.Type)
	}

	if err != nil {
		return Message{}, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
	}
	return Message{Type: env.Type, Payload: payload}, nil
}

func unmarshalPayload(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}
