package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RawEnvelope is used for two-stage unmarshalling: first decode the envelope,
// then decode payload based on msg_type.
type RawEnvelope struct {
	MsgType   string          `json:"msg_type"`
	MsgID     string          `json:"msg_id"`
	StationID string          `json:"station_id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// DecodeEnvelope unmarshals an inbound command into an Envelope whose
// Payload holds a ProjectCommand.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var raw RawEnvelope
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	env := &Envelope{
		MsgType:   raw.MsgType,
		MsgID:     raw.MsgID,
		StationID: raw.StationID,
		Timestamp: raw.Timestamp,
	}
	switch raw.MsgType {
	case TypeRecomputeRequest, TypeSyncRequest, TypeRefreshRequest:
		var p ProjectCommand
		if len(raw.Payload) > 0 {
			if err := json.Unmarshal(raw.Payload, &p); err != nil {
				return nil, fmt.Errorf("decode %s payload: %w", raw.MsgType, err)
			}
		}
		env.Payload = p
	default:
		return nil, fmt.Errorf("unknown msg_type: %s", raw.MsgType)
	}
	return env, nil
}

// NewEnvelope creates an outbound envelope with a new UUID and timestamp.
func NewEnvelope(msgType, stationID string, payload any) *Envelope {
	return &Envelope{
		MsgType:   msgType,
		MsgID:     uuid.New().String(),
		StationID: stationID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// Encode marshals an envelope to JSON.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}
