// Package trajectory computes trapezoidal motion profiles and evaluates them at arbitrary times.
//
// A profile has up to three phases: an in-phase that changes the rate linearly from the start
// rate w0 to the cruise rate w1, a cruise at w1, and an out-phase from w1 to the end rate. Phase
// boundaries are the times t0..t3. All arithmetic is integer: positions are tracked in
// millicounts (1/1000 of an encoder count), times in microseconds, rates in counts per second and
// accelerations in counts per second squared.
//
// Every phase is evaluated against its own anchors, so the reference is exactly continuous at
// each boundary and repeated evaluation at the same time gives identical results.
package trajectory

import (
	"fmt"
	"time"

	"go.viam.com/motioncore/utils"
)

// Limits on generator inputs. They keep every intermediate product inside 64 bits.
const (
	// MaxRate is the largest rate magnitude in counts per second.
	MaxRate = 1_000_000
	// MaxAcceleration is the largest acceleration in counts per second squared.
	MaxAcceleration = 100_000_000
	// MaxPosition is the largest position magnitude in counts.
	MaxPosition = 1 << 40
	// MaxDuration is the longest time-based maneuver that is not open-ended.
	MaxDuration = 30 * time.Minute
)

// Segment names the start of one part of a profile.
type Segment int

// The segments of a profile, in time order.
const (
	SegmentAccelIn Segment = iota
	SegmentCruise
	SegmentAccelOut
	SegmentEnd
)

func (s Segment) String() string {
	switch s {
	case SegmentAccelIn:
		return "accel-in"
	case SegmentCruise:
		return "cruise"
	case SegmentAccelOut:
		return "accel-out"
	case SegmentEnd:
		return "end"
	}
	return fmt.Sprintf("Segment(%d)", int(s))
}

// Reference is the commanded state at one instant.
type Reference struct {
	// Count is the whole-count position, truncated toward zero.
	Count int64
	// CountExt is the millicount remainder: Count*1000 + CountExt == MCount.
	CountExt int32
	// MCount is the position in millicounts.
	MCount int64
	// Rate in counts per second.
	Rate int32
	// Acceleration in counts per second squared.
	Acceleration int32
}

// Trajectory is an immutable motion profile. The zero value is a stationary profile at position
// zero starting at time zero.
type Trajectory struct {
	forever bool

	t   [4]int64 // µs
	mth [4]int64 // millicounts

	w0, w1, w3 int64
	a0, a2     int64
}

// Reference evaluates the profile at time t, measured on the same clock as the profile's start
// time. Before the start the initial state holds. After the end the profile continues at its end
// rate, which holds the end position when the end rate is zero.
func (tr Trajectory) Reference(t time.Duration) Reference {
	mcount, rate, acc := tr.evaluate(t.Microseconds())
	return Reference{
		Count:        mcount / mcountPerCount,
		CountExt:     int32(mcount % mcountPerCount),
		MCount:       mcount,
		Rate:         int32(rate),
		Acceleration: int32(acc),
	}
}

func (tr Trajectory) evaluate(now int64) (mcount, rate, acc int64) {
	t0, t1, t2, t3 := tr.t[0], tr.t[1], tr.t[2], tr.t[3]

	switch {
	case now < t0:
		return tr.mth[0], tr.w0, 0
	case now < t1:
		dt := now - t0
		span := t1 - t0
		return tr.mth[0] + ramp(tr.w0, tr.w1, span, dt), rateAt(tr.w0, tr.w1, span, dt), tr.a0
	case tr.forever:
		return tr.mth[1] + travel(tr.w1, now-t1), tr.w1, 0
	case now < t2:
		return tr.mth[1] + mulDiv(tr.mth[2]-tr.mth[1], now-t1, t2-t1), tr.w1, 0
	case now < t3:
		dt := now - t2
		span := t3 - t2
		return tr.mth[2] + ramp(tr.w1, tr.w3, span, dt), rateAt(tr.w1, tr.w3, span, dt), tr.a2
	default:
		return tr.mth[3] + travel(tr.w3, now-t3), tr.w3, 0
	}
}

// Start returns the position at the start of segment as whole counts and a millicount remainder.
func (tr Trajectory) Start(segment Segment) (count int64, countExt int32, err error) {
	if segment < SegmentAccelIn || segment > SegmentEnd {
		return 0, 0, utils.NewInvalidArgumentError("unknown segment %d", int(segment))
	}
	mth := tr.mth[segment]
	return mth / mcountPerCount, int32(mth % mcountPerCount), nil
}

// Forever reports whether the profile runs at its cruise rate indefinitely after the in-phase.
func (tr Trajectory) Forever() bool {
	return tr.forever
}

// Done reports whether the maneuver has finished at time t. Open-ended profiles are never done.
func (tr Trajectory) Done(t time.Duration) bool {
	return !tr.forever && t.Microseconds() >= tr.t[3]
}

// PhaseTimes returns t0, t1, t2 and t3. For open-ended profiles t2 and t3 equal t1.
func (tr Trajectory) PhaseTimes() [4]time.Duration {
	var out [4]time.Duration
	for i, v := range tr.t {
		out[i] = time.Duration(v) * time.Microsecond
	}
	return out
}

// StartTime is t0.
func (tr Trajectory) StartTime() time.Duration {
	return time.Duration(tr.t[0]) * time.Microsecond
}

// EndTime is t3.
func (tr Trajectory) EndTime() time.Duration {
	return time.Duration(tr.t[3]) * time.Microsecond
}

// StartRate is w0.
func (tr Trajectory) StartRate() int32 { return int32(tr.w0) }

// CruiseRate is w1.
func (tr Trajectory) CruiseRate() int32 { return int32(tr.w1) }

// EndRate is the rate at t3.
func (tr Trajectory) EndRate() int32 { return int32(tr.w3) }

// Accelerations returns the in-phase and out-phase accelerations actually used by the profile.
// They may differ from the requested value by rounding, or on purpose when a short maneuver had
// to be steepened to fit.
func (tr Trajectory) Accelerations() (in, out int32) {
	return int32(tr.a0), int32(tr.a2)
}

func (tr Trajectory) String() string {
	kind := "bounded"
	if tr.forever {
		kind = "forever"
	}
	return fmt.Sprintf(
		"trajectory(%s t=[%d %d %d %d]us mth=[%d %d %d %d] w=[%d %d %d] a=[%d %d])",
		kind, tr.t[0], tr.t[1], tr.t[2], tr.t[3],
		tr.mth[0], tr.mth[1], tr.mth[2], tr.mth[3],
		tr.w0, tr.w1, tr.w3, tr.a0, tr.a2,
	)
}
