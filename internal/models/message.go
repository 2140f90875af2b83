package models

import (
	"encoding/json"
	"time"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	MessageTypeSnapshot  MessageType = "snapshot"
	MessageTypeTrend     MessageType = "trend"
	MessageTypeError     MessageType = "error"
	MessageTypeHeartbeat MessageType = "heartbeat"
	MessageTypeBroadcast MessageType = "broadcast"
)

// Message is the envelope for all WebSocket communications
type Message struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a new message with the given type and payload
func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      msgType,
		Payload:   payloadJSON,
		Timestamp: time.Now(),
	}, nil
}

// TrendMessage is the payload for MessageTypeTrend and MessageTypeSnapshot
type TrendMessage struct {
	Seq        uint64      `json:"seq"`
	Station    StationInfo `json:"station"`
	Trend      Trend       `json:"trend"`
	FloodRisk  bool        `json:"flood_risk"`
	Threshold  float64     `json:"threshold"`
	UpdatedAt  time.Time   `json:"updated_at"`
	Stale      bool        `json:"stale"`
	LastError  string      `json:"last_error,omitempty"`
	SampleSize int         `json:"sample_size"`
}

// ErrorMessage is the payload for MessageTypeError
type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HeartbeatMessage is the payload for MessageTypeHeartbeat
type HeartbeatMessage struct {
	Uptime  int64 `json:"uptime"`
	Clients int   `json:"clients"`
}

// BroadcastMessage is the payload for MessageTypeBroadcast, an operator's
// emergency notice to every dashboard
type BroadcastMessage struct {
	Message string    `json:"message"`
	SentAt  time.Time `json:"sent_at"`
}

// UnmarshalPayload unmarshals the message payload into the provided struct
func (m *Message) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(m.Payload, v)
}
