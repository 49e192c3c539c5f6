package protocol

import (
	"github.com/google/uuid"

	"github.com/teslashibe/go-spot/pkg/spot"
)

// NewImageData builds the metadata for one converted image
func NewImageData(batchID uuid.UUID, src spot.ImageSource, iwc spot.ImageWithCameraInfo, previewBytes int) ImageData {
	img := iwc.Image
	return ImageData{
		BatchID:      batchID.String(),
		Source:       src.String(),
		FrameID:      img.Header.FrameID,
		Stamp:        img.Header.Stamp,
		Width:        img.Width,
		Height:       img.Height,
		Encoding:     img.Encoding,
		PixelFormat:  img.PixelFormat.String(),
		CameraInfo:   iwc.Info,
		PreviewBytes: previewBytes,
	}
}

// NewImageMessage creates an image metadata message
func NewImageMessage(data ImageData) (*Message, error) {
	return NewMessage(TypeImage, data)
}

// NewFailureMessage creates a message for an item dropped from a batch
func NewFailureMessage(batchID uuid.UUID, f *spot.ItemFailure) (*Message, error) {
	return NewMessage(TypeFailure, FailureData{
		BatchID:    batchID.String(),
		Index:      f.Index,
		SourceName: f.SourceName,
		Stage:      string(f.Stage),
		Error:      f.Err.Error(),
	})
}

// NewStatusMessage creates a status message
func NewStatusMessage(status StatusData) (*Message, error) {
	return NewMessage(TypeStatus, status)
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// GetImageData extracts image data from a message
func (m *Message) GetImageData() (*ImageData, error) {
	var data ImageData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetFailureData extracts failure data from a message
func (m *Message) GetFailureData() (*FailureData, error) {
	var data FailureData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetStatusData extracts status data from a message
func (m *Message) GetStatusData() (*StatusData, error) {
	var data StatusData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
