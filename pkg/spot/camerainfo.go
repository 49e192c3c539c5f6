package spot

import (
	"gonum.org/v1/gonum/mat"

	"github.com/teslashibe/go-spot/pkg/timesync"
)

// DistortionModelPlumbBob is the five-parameter radial/tangential model.
const DistortionModelPlumbBob = "plumb_bob"

// Vec2 is a 2D vector in pixels.
type Vec2 struct {
	X float64 `json:"x" cbor:"x"`
	Y float64 `json:"y" cbor:"y"`
}

// PinholeIntrinsics are the intrinsic parameters of a pinhole camera.
type PinholeIntrinsics struct {
	FocalLength    Vec2 `json:"focal_length" cbor:"focal_length"`
	PrincipalPoint Vec2 `json:"principal_point" cbor:"principal_point"`
	Skew           Vec2 `json:"skew,omitempty" cbor:"skew,omitempty"`
}

// PinholeModel describes an image source with pinhole optics.
type PinholeModel struct {
	Intrinsics PinholeIntrinsics `json:"intrinsics" cbor:"intrinsics"`
}

// CameraInfo is the calibration record for a converted image.
// Matrices are stored row-major.
type CameraInfo struct {
	Header          Header      `json:"header"`
	Height          int         `json:"height"`
	Width           int         `json:"width"`
	DistortionModel string      `json:"distortion_model"`
	D               []float64   `json:"d"`
	K               [9]float64  `json:"k"`
	R               [9]float64  `json:"r"`
	P               [12]float64 `json:"p"`
}

// BuildCameraInfo derives calibration for an image from its pinhole
// intrinsics. Images are assumed to be rectified already, so the distortion
// coefficients are zero, and every camera is treated as monocular (identity
// rectification, no translation in P).
func BuildCameraInfo(in *PinholeIntrinsics, rows, cols int, frameID string, stamp timesync.Time) CameraInfo {
	var fx, fy, cx, cy float64
	if in != nil {
		fx, fy = in.FocalLength.X, in.FocalLength.Y
		cx, cy = in.PrincipalPoint.X, in.PrincipalPoint.Y
	}

	k := mat.NewDense(3, 3, []float64{
		fx, 0, cx,
		0, fy, cy,
		0, 0, 1,
	})
	r := mat.NewDiagDense(3, []float64{1, 1, 1})

	// P = K [I | 0]
	var p mat.Dense
	p.Mul(k, mat.NewDense(3, 4, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
	}))

	info := CameraInfo{
		Header:          Header{FrameID: frameID, Stamp: stamp},
		Height:          rows,
		Width:           cols,
		DistortionModel: DistortionModelPlumbBob,
		D:               make([]float64, 5),
	}
	copy(info.K[:], k.RawMatrix().Data)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			info.R[i*3+j] = r.At(i, j)
		}
	}
	copy(info.P[:], p.RawMatrix().Data)
	return info
}

// KMatrix returns the 3x3 intrinsic matrix.
func (c *CameraInfo) KMatrix() *mat.Dense {
	return mat.NewDense(3, 3, append([]float64(nil), c.K[:]...))
}

// RMatrix returns the 3x3 rectification matrix.
func (c *CameraInfo) RMatrix() *mat.Dense {
	return mat.NewDense(3, 3, append([]float64(nil), c.R[:]...))
}

// PMatrix returns the 3x4 projection matrix.
func (c *CameraInfo) PMatrix() *mat.Dense {
	return mat.NewDense(3, 4, append([]float64(nil), c.P[:]...))
}

// Project maps a point in the camera frame to pixel coordinates.
// ok is false for points at or behind the image plane.
func (c *CameraInfo) Project(x, y, z float64) (u, v float64, ok bool) {
	if z <= 0 {
		return 0, 0, false
	}
	var uvw mat.VecDense
	uvw.MulVec(c.PMatrix(), mat.NewVecDense(4, []float64{x, y, z, 1}))
	w := uvw.AtVec(2)
	return uvw.AtVec(0) / w, uvw.AtVec(1) / w, true
}
