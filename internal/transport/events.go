// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"fmt"
)

// Event names carried in the envelope. paramChange travels in both
// directions; the others are server to client only.
const (
	EventParamChange = "paramChange"
	EventAudioChunk  = "audioChunk"
	EventLevels      = "rmsData"
)

// Event is the websocket envelope: {"event": name, "data": payload}.
type Event struct {
	Name    string          `json:"event"`
	Payload json.RawMessage `json:"data"`
}

// NewEvent encodes payload into an envelope.
func NewEvent(name string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s: %w", name, err)
	}
	return Event{Name: name, Payload: raw}, nil
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s: %w", e.Name, err)
	}
	return nil
}

// ParamChange carries a parameter position in [0, 1], not a raw value.
type ParamChange struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
}

// AudioChunk is one contiguous block of 16-bit PCM.
type AudioChunk struct {
	Segment    []int16 `json:"segment"`
	SampleRate float64 `json:"sampleRate"`
}

// Levels reports the motor trigger state computed on the device.
type Levels struct {
	Mouth     float64 `json:"mouth"`
	Body      float64 `json:"body"`
	MouthOpen bool    `json:"mouthOpen"`
	BodyFlip  bool    `json:"bodyFlip"`
}
