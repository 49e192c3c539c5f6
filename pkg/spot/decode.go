package spot

import (
	"fmt"

	"gocv.io/x/gocv"
)

// Format is the vendor compression format of an image.
// Values match bosdyn.api.Image.Format.
type Format int32

const (
	FormatUnknown Format = 0
	FormatJPEG    Format = 1
	FormatRaw     Format = 2
	FormatRLE     Format = 3
)

func (f Format) String() string {
	switch f {
	case FormatUnknown:
		return "FORMAT_UNKNOWN"
	case FormatJPEG:
		return "FORMAT_JPEG"
	case FormatRaw:
		return "FORMAT_RAW"
	case FormatRLE:
		return "FORMAT_RLE"
	}
	return fmt.Sprintf("FORMAT(%d)", int32(f))
}

// Decode turns vendor image data into a dense sample buffer.
//
// JPEG data is always decoded to 3-channel BGR regardless of layout; the
// dimensions come from the compressed stream. Raw data is only supported for
// 16-bit single channel images (depth) and is copied unchanged.
func Decode(data []byte, format Format, layout PixelLayout, rows, cols int) (*Image, error) {
	switch format {
	case FormatJPEG:
		return decodeJPEG(data)
	case FormatRaw:
		return decodeRaw(data, layout, rows, cols)
	case FormatRLE:
		return nil, fmt.Errorf("%w: conversion from %v", ErrNotImplemented, format)
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownCompressionFormat, format)
	}
}

func decodeJPEG(data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty jpeg stream", ErrDecode)
	}

	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("%w: could not parse jpeg stream", ErrDecode)
	}

	return &Image{
		Height:   mat.Rows(),
		Width:    mat.Cols(),
		Encoding: EncodingBGR8,
		Step:     mat.Cols() * LayoutRGB8.BytesPerPixel(),
		Data:     mat.ToBytes(),
	}, nil
}

func decodeRaw(data []byte, layout PixelLayout, rows, cols int) (*Image, error) {
	// TODO: convert raw RGB and greyscale images once a robot serves them.
	if layout != LayoutMono16 {
		return nil, fmt.Errorf("%w: raw %v images", ErrNotImplemented, layout)
	}
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("%w: invalid size %dx%d", ErrDecode, cols, rows)
	}

	step := cols * layout.BytesPerPixel()
	if want := rows * step; len(data) != want {
		return nil, fmt.Errorf("%w: raw buffer is %d bytes, want %d for %dx%d %v",
			ErrDecode, len(data), want, cols, rows, layout)
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	return &Image{
		Height:   rows,
		Width:    cols,
		Encoding: EncodingMono16,
		Step:     step,
		Data:     buf,
	}, nil
}

// Mat wraps the image buffer in a gocv.Mat. The Mat shares memory with
// img.Data and must be closed by the caller.
func (img *Image) Mat() (gocv.Mat, error) {
	return gocv.NewMatFromBytes(img.Height, img.Width, img.Layout().MatType(), img.Data)
}

// EncodePreviewJPEG renders the image as JPEG for display. 16-bit images are
// scaled to the full 8-bit range using their maximum sample.
func EncodePreviewJPEG(img *Image, quality int) ([]byte, error) {
	src, err := img.Mat()
	if err != nil {
		return nil, fmt.Errorf("wrap image: %w", err)
	}
	defer src.Close()

	view := gocv.NewMat()
	defer view.Close()

	switch img.Encoding {
	case EncodingBGR8, EncodingMono8:
		src.CopyTo(&view)
	case EncodingRGB8:
		gocv.CvtColor(src, &view, gocv.ColorRGBToBGR)
	case EncodingRGBA8:
		gocv.CvtColor(src, &view, gocv.ColorRGBAToBGR)
	case EncodingMono16:
		_, maxVal, _, _ := gocv.MinMaxLoc(src)
		alpha := float32(1)
		if maxVal > 0 {
			alpha = 255 / maxVal
		}
		src.ConvertToWithParams(&view, gocv.MatTypeCV8U, alpha, 0)
	default:
		return nil, fmt.Errorf("%w: preview for encoding %q", ErrNotImplemented, img.Encoding)
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, view, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("encode preview: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}
