// Package spot converts Spot GetImage responses into decoded images and
// camera calibration stamped in local time.
//
// A batch is converted in one pass:
//
//	skew := session.ClockSkew()           // once per batch
//	for each response:
//	    layout := MapPixelFormat(...)     // vendor pixel format -> samples
//	    image  := Decode(...)             // JPEG or raw depth
//	    info   := BuildCameraInfo(...)    // pinhole intrinsics -> K, R, P
//	    source := resolver.Resolve(name)  // vendor name -> ImageSource
//
// A response that fails any step is dropped from the batch and reported in
// BatchResult.Failures; the rest of the batch is still converted. Only a
// missing clock skew fails the whole batch.
package spot
