// Package timesync converts robot timestamps into the local clock domain.
//
// Spot reports every acquisition time against its own onboard clock. The
// skew between that clock and ours is estimated from round-trip exchanges
// (see Estimator) and subtracted from each robot timestamp:
//
//	local = robot - skew
package timesync

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

const nanosPerSecond = int64(time.Second)

// Time is a local timestamp. Both fields are unsigned, so a Time can never
// represent an instant before the Unix epoch.
type Time struct {
	Sec     uint64 `json:"sec" cbor:"sec"`
	Nanosec uint32 `json:"nanosec" cbor:"nanosec"`
}

// IsZero reports whether t is the zero timestamp. A zero stamp is also what
// ApplyClockSkew produces when the correction would go negative.
func (t Time) IsZero() bool {
	return t.Sec == 0 && t.Nanosec == 0
}

// AsTime returns t as a time.Time in UTC.
func (t Time) AsTime() time.Time {
	return time.Unix(int64(t.Sec), int64(t.Nanosec)).UTC()
}

// String formats t as seconds.nanoseconds.
func (t Time) String() string {
	return fmt.Sprintf("%d.%09d", t.Sec, t.Nanosec)
}

// FromTime converts a wall-clock time into a Time. Instants before the epoch
// map to the zero Time.
func FromTime(t time.Time) Time {
	ns := t.UnixNano()
	if ns < 0 {
		return Time{}
	}
	return Time{
		Sec:     uint64(ns / nanosPerSecond),
		Nanosec: uint32(ns % nanosPerSecond),
	}
}

// ApplyClockSkew converts a robot timestamp to local time by subtracting the
// clock skew.
//
// A negative nanosecond difference borrows one second; a difference of a full
// second or more (possible when the skew's nanos are negative) carries one.
// If the corrected seconds are negative the zero Time is returned. Nil
// arguments are treated as zero.
func ApplyClockSkew(ts *timestamppb.Timestamp, skew *durationpb.Duration) Time {
	sec := ts.GetSeconds() - skew.GetSeconds()
	nanos := int64(ts.GetNanos()) - int64(skew.GetNanos())

	if nanos < 0 {
		nanos += nanosPerSecond
		sec--
	} else if nanos >= nanosPerSecond {
		nanos -= nanosPerSecond
		sec++
	}

	if sec < 0 {
		return Time{}
	}
	return Time{Sec: uint64(sec), Nanosec: uint32(nanos)}
}
