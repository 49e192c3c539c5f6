// Package protocol defines the websocket messages published to dashboard
// clients of the image server.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/teslashibe/go-spot/pkg/spot"
	"github.com/teslashibe/go-spot/pkg/timesync"
)

// MessageType identifies the type of websocket message
type MessageType string

const (
	TypeImage   MessageType = "image"   // Converted image metadata, followed by a binary preview
	TypeFailure MessageType = "failure" // An item dropped from a batch
	TypeStatus  MessageType = "status"  // Server and time sync state

	TypePing MessageType = "ping"
	TypePong MessageType = "pong"
)

// Message is the base wrapper for all websocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v any) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// ImageData describes one converted image. When PreviewBytes is non-zero a
// binary JPEG preview of that length follows on the same connection.
type ImageData struct {
	BatchID      string          `json:"batch_id"`
	Source       string          `json:"source"` // e.g. "depth/frontleft"
	FrameID      string          `json:"frame_id"`
	Stamp        timesync.Time   `json:"stamp"`
	Width        int             `json:"width"`
	Height       int             `json:"height"`
	Encoding     string          `json:"encoding"` // "bgr8", "mono16", ...
	PixelFormat  string          `json:"pixel_format"`
	CameraInfo   spot.CameraInfo `json:"camera_info"`
	PreviewBytes int             `json:"preview_bytes,omitempty"`
}

// FailureData describes an image dropped from a batch
type FailureData struct {
	BatchID    string `json:"batch_id"`
	Index      int    `json:"index"`
	SourceName string `json:"source_name"`
	Stage      string `json:"stage"`
	Error      string `json:"error"`
}

// StatusData contains server state
type StatusData struct {
	Batches      uint64   `json:"batches"`
	Failures     uint64   `json:"failures"`
	LastBatchID  string   `json:"last_batch_id,omitempty"`
	LastBatchAt  int64    `json:"last_batch_at,omitempty"` // Unix milliseconds
	ClockSkew    string   `json:"clock_skew,omitempty"`
	Synchronized bool     `json:"synchronized"`
	Sources      []string `json:"sources"`
	Clients      int      `json:"clients"`
}

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
