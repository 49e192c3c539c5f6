package spot

import (
	"fmt"
	"strings"
)

// Camera is a physical camera on the robot.
type Camera int

const (
	CameraBack Camera = iota
	CameraFrontLeft
	CameraFrontRight
	CameraLeft
	CameraRight
	CameraHand
)

var cameraNames = [...]string{"back", "frontleft", "frontright", "left", "right", "hand"}

// BodyCameras are the five cameras every robot carries.
var BodyCameras = []Camera{CameraFrontLeft, CameraFrontRight, CameraLeft, CameraRight, CameraBack}

func (c Camera) String() string {
	if c >= 0 && int(c) < len(cameraNames) {
		return cameraNames[c]
	}
	return fmt.Sprintf("camera(%d)", int(c))
}

// ParseCamera returns the camera with the given name.
func ParseCamera(name string) (Camera, error) {
	for i, n := range cameraNames {
		if n == name {
			return Camera(i), nil
		}
	}
	return 0, fmt.Errorf("%w: camera %q", ErrUnknownSource, name)
}

// SourceType is the kind of image a camera produces.
type SourceType int

const (
	SourceRGB SourceType = iota
	SourceDepth
	SourceDepthRegistered
)

func (t SourceType) String() string {
	switch t {
	case SourceRGB:
		return "camera"
	case SourceDepth:
		return "depth"
	case SourceDepthRegistered:
		return "depth_registered"
	}
	return fmt.Sprintf("source_type(%d)", int(t))
}

// ImageSource identifies one image stream: a camera and a source type.
type ImageSource struct {
	Camera Camera
	Type   SourceType
}

// String returns the topic-style name, e.g. "depth/frontleft".
func (s ImageSource) String() string {
	return s.Type.String() + "/" + s.Camera.String()
}

// MarshalText implements encoding.TextMarshaler so sources can key JSON maps.
func (s ImageSource) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses the form produced by String.
func (s *ImageSource) UnmarshalText(b []byte) error {
	typ, cam, ok := strings.Cut(string(b), "/")
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSource, b)
	}
	c, err := ParseCamera(cam)
	if err != nil {
		return err
	}
	for _, t := range []SourceType{SourceRGB, SourceDepth, SourceDepthRegistered} {
		if t.String() == typ {
			*s = ImageSource{Camera: c, Type: t}
			return nil
		}
	}
	return fmt.Errorf("%w: source type %q", ErrUnknownSource, typ)
}

// Vendor source name suffixes.
const (
	bodyRGBSuffix             = "_fisheye_image"
	bodyDepthSuffix           = "_depth"
	bodyDepthRegisteredSuffix = "_depth_in_visual_frame"

	handRGBName             = "hand_color_image"
	handDepthName           = "hand_depth"
	handDepthRegisteredName = "hand_depth_in_hand_color_frame"
)

// SourceName returns the vendor image source name for s.
func SourceName(s ImageSource) string {
	if s.Camera == CameraHand {
		switch s.Type {
		case SourceDepth:
			return handDepthName
		case SourceDepthRegistered:
			return handDepthRegisteredName
		default:
			return handRGBName
		}
	}

	switch s.Type {
	case SourceDepth:
		return s.Camera.String() + bodyDepthSuffix
	case SourceDepthRegistered:
		return s.Camera.String() + bodyDepthRegisteredSuffix
	default:
		return s.Camera.String() + bodyRGBSuffix
	}
}

// ParseSourceName resolves a vendor image source name.
func ParseSourceName(name string) (ImageSource, error) {
	switch name {
	case handRGBName:
		return ImageSource{CameraHand, SourceRGB}, nil
	case handDepthName:
		return ImageSource{CameraHand, SourceDepth}, nil
	case handDepthRegisteredName:
		return ImageSource{CameraHand, SourceDepthRegistered}, nil
	}

	// Longest suffix first: "_depth" is a prefix of "_depth_in_visual_frame".
	for _, sfx := range []struct {
		suffix string
		typ    SourceType
	}{
		{bodyDepthRegisteredSuffix, SourceDepthRegistered},
		{bodyRGBSuffix, SourceRGB},
		{bodyDepthSuffix, SourceDepth},
	} {
		cam, ok := strings.CutSuffix(name, sfx.suffix)
		if !ok {
			continue
		}
		c, err := ParseCamera(cam)
		if err != nil || c == CameraHand {
			break
		}
		return ImageSource{Camera: c, Type: sfx.typ}, nil
	}
	return ImageSource{}, fmt.Errorf("%w: %q", ErrUnknownSource, name)
}

// Resolver maps vendor image source names to image sources.
type Resolver interface {
	Resolve(name string) (ImageSource, error)
}

// ResolverFunc adapts a function to a Resolver.
type ResolverFunc func(name string) (ImageSource, error)

// Resolve calls f(name).
func (f ResolverFunc) Resolve(name string) (ImageSource, error) {
	return f(name)
}

// DefaultResolver resolves the standard vendor source names.
var DefaultResolver Resolver = ResolverFunc(ParseSourceName)

// DefaultSources lists the image sources for the robot's cameras, including
// the hand camera when hasArm is set. With no types, only RGB is listed.
func DefaultSources(hasArm bool, types ...SourceType) []ImageSource {
	if len(types) == 0 {
		types = []SourceType{SourceRGB}
	}
	cams := append([]Camera(nil), BodyCameras...)
	if hasArm {
		cams = append(cams, CameraHand)
	}

	var out []ImageSource
	for _, t := range types {
		for _, c := range cams {
			out = append(out, ImageSource{Camera: c, Type: t})
		}
	}
	return out
}

// ImageRequest asks the robot for one image.
type ImageRequest struct {
	SourceName     string      `json:"image_source_name" cbor:"image_source_name"`
	QualityPercent float64     `json:"quality_percent" cbor:"quality_percent"`
	Format         Format      `json:"image_format" cbor:"image_format"`
	PixelFormat    PixelFormat `json:"pixel_format,omitempty" cbor:"pixel_format,omitempty"`
}

// NewImageRequests builds requests for sources. RGB images are requested as
// JPEG at the given quality, depth images as raw 16-bit samples.
func NewImageRequests(sources []ImageSource, quality float64) []ImageRequest {
	reqs := make([]ImageRequest, 0, len(sources))
	for _, s := range sources {
		req := ImageRequest{SourceName: SourceName(s), QualityPercent: quality}
		if s.Type == SourceRGB {
			req.Format = FormatJPEG
			req.PixelFormat = PixelFormatRGBU8
		} else {
			req.Format = FormatRaw
			req.PixelFormat = PixelFormatDepthU16
		}
		reqs = append(reqs, req)
	}
	return reqs
}
