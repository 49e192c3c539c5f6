package spot

import (
	"google.golang.org/protobuf/types/known/timestamppb"
)

// RawImage is image data as served by the robot. For JPEG data the byte
// stream is a single encoded row of Rows*Cols bytes at most.
type RawImage struct {
	Cols        int32       `json:"cols" cbor:"cols"`
	Rows        int32       `json:"rows" cbor:"rows"`
	Data        []byte      `json:"data" cbor:"data"`
	Format      Format      `json:"format" cbor:"format"`
	PixelFormat PixelFormat `json:"pixel_format" cbor:"pixel_format"`
}

// ImageCapture is one captured image with its robot-clock acquisition time.
type ImageCapture struct {
	Image                RawImage               `json:"image" cbor:"image"`
	AcquisitionTime      *timestamppb.Timestamp `json:"acquisition_time" cbor:"acquisition_time"`
	FrameNameImageSensor string                 `json:"frame_name_image_sensor" cbor:"frame_name_image_sensor"`
}

// ImageSourceInfo describes the source an image came from.
type ImageSourceInfo struct {
	Name    string        `json:"name" cbor:"name"`
	Rows    int32         `json:"rows" cbor:"rows"`
	Cols    int32         `json:"cols" cbor:"cols"`
	Pinhole *PinholeModel `json:"pinhole,omitempty" cbor:"pinhole,omitempty"`
}

// ImageResponse is one element of a GetImage response.
type ImageResponse struct {
	Source ImageSourceInfo `json:"source" cbor:"source"`
	Shot   ImageCapture    `json:"shot" cbor:"shot"`
}

// Intrinsics returns the pinhole intrinsics of the source, or nil.
func (r *ImageResponse) Intrinsics() *PinholeIntrinsics {
	if r.Source.Pinhole == nil {
		return nil
	}
	return &r.Source.Pinhole.Intrinsics
}
