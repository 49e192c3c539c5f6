package spot

import (
	"github.com/teslashibe/go-spot/pkg/timesync"
)

// Image encodings, named as in sensor_msgs/image_encodings.
const (
	EncodingBGR8   = "bgr8"
	EncodingRGB8   = "rgb8"
	EncodingRGBA8  = "rgba8"
	EncodingMono8  = "mono8"
	EncodingMono16 = "mono16"
)

// Header stamps a converted message with its frame and local capture time.
type Header struct {
	FrameID string        `json:"frame_id" cbor:"frame_id"`
	Stamp   timesync.Time `json:"stamp" cbor:"stamp"`
}

// Image is a decoded image. Data is a dense row-major sample buffer with
// len(Data) == Height*Step.
type Image struct {
	Header      Header `json:"header"`
	Height      int    `json:"height"`
	Width       int    `json:"width"`
	Encoding    string `json:"encoding"`
	IsBigEndian bool   `json:"is_bigendian"`
	Step        int    `json:"step"` // row length in bytes
	Data        []byte `json:"-"`

	// PixelFormat is the vendor format the image was declared with. Depth and
	// 16-bit greyscale decode to the same layout; this keeps them apart.
	PixelFormat PixelFormat `json:"pixel_format"`
}

// Layout returns the sample layout implied by the encoding.
func (img *Image) Layout() PixelLayout {
	switch img.Encoding {
	case EncodingBGR8, EncodingRGB8:
		return LayoutRGB8
	case EncodingRGBA8:
		return LayoutRGBA8
	case EncodingMono16:
		return LayoutMono16
	default:
		return LayoutMono8
	}
}

// IsDepth reports whether the image holds depth samples.
func (img *Image) IsDepth() bool {
	return img.PixelFormat == PixelFormatDepthU16
}
