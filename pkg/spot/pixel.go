package spot

import (
	"fmt"

	"gocv.io/x/gocv"
)

// PixelFormat is the vendor pixel format of an image.
// Values match bosdyn.api.Image.PixelFormat.
type PixelFormat int32

const (
	PixelFormatUnknown      PixelFormat = 0
	PixelFormatGreyscaleU8  PixelFormat = 1
	PixelFormatRGBU8        PixelFormat = 3
	PixelFormatRGBAU8       PixelFormat = 4
	PixelFormatDepthU16     PixelFormat = 5
	PixelFormatGreyscaleU16 PixelFormat = 6
)

var pixelFormatNames = map[PixelFormat]string{
	PixelFormatUnknown:      "PIXEL_FORMAT_UNKNOWN",
	PixelFormatGreyscaleU8:  "PIXEL_FORMAT_GREYSCALE_U8",
	PixelFormatRGBU8:        "PIXEL_FORMAT_RGB_U8",
	PixelFormatRGBAU8:       "PIXEL_FORMAT_RGBA_U8",
	PixelFormatDepthU16:     "PIXEL_FORMAT_DEPTH_U16",
	PixelFormatGreyscaleU16: "PIXEL_FORMAT_GREYSCALE_U16",
}

func (f PixelFormat) String() string {
	if name, ok := pixelFormatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("PIXEL_FORMAT(%d)", int32(f))
}

// PixelLayout is the in-memory sample layout of a pixel format.
type PixelLayout struct {
	Channels int
	BitDepth int
	Signed   bool
}

// Common layouts.
var (
	LayoutMono8  = PixelLayout{Channels: 1, BitDepth: 8}
	LayoutMono16 = PixelLayout{Channels: 1, BitDepth: 16}
	LayoutRGB8   = PixelLayout{Channels: 3, BitDepth: 8}
	LayoutRGBA8  = PixelLayout{Channels: 4, BitDepth: 8}
)

// BytesPerPixel returns the number of bytes for one pixel across all channels.
func (l PixelLayout) BytesPerPixel() int {
	return l.Channels * l.BitDepth / 8
}

// MatType returns the gocv matrix type for the layout.
func (l PixelLayout) MatType() gocv.MatType {
	switch l {
	case LayoutMono8:
		return gocv.MatTypeCV8UC1
	case LayoutRGB8:
		return gocv.MatTypeCV8UC3
	case LayoutRGBA8:
		return gocv.MatTypeCV8UC4
	case LayoutMono16:
		return gocv.MatTypeCV16UC1
	}
	return gocv.MatTypeCV8U
}

func (l PixelLayout) String() string {
	sign := "U"
	if l.Signed {
		sign = "S"
	}
	return fmt.Sprintf("%d%sC%d", l.BitDepth, sign, l.Channels)
}

// MapPixelFormat returns the sample layout for a vendor pixel format.
// 16-bit depth and 16-bit greyscale share a layout.
func MapPixelFormat(f PixelFormat) (PixelLayout, error) {
	switch f {
	case PixelFormatRGBU8:
		return LayoutRGB8, nil
	case PixelFormatRGBAU8:
		return LayoutRGBA8, nil
	case PixelFormatGreyscaleU8:
		return LayoutMono8, nil
	case PixelFormatGreyscaleU16, PixelFormatDepthU16:
		return LayoutMono16, nil
	default:
		return PixelLayout{}, fmt.Errorf("%w: %v", ErrUnknownPixelFormat, f)
	}
}
