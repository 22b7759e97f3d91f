package trajectory

import (
	"time"

	"go.viam.com/motioncore/utils"
)

// MakeStationary returns an open-ended profile that moves at a constant rate from th0 at t0. With
// rate zero it holds th0 forever.
func MakeStationary(t0 time.Duration, th0 int64, rate int32) Trajectory {
	return stationary(t0.Microseconds(), th0*mcountPerCount, int64(rate))
}

func stationary(t0, mth0, rate int64) Trajectory {
	tr := Trajectory{forever: true, w0: rate, w1: rate, w3: rate}
	for i := range tr.t {
		tr.t[i] = t0
		tr.mth[i] = mth0
	}
	return tr
}

// MakeTimeBased returns a profile that starts at th0 (plus th0Ext millicounts) at t0 with rate w0
// and accelerates toward wt, limited to ±wmax. A bounded profile decelerates so that it comes to
// rest exactly at t3. When t3 is too close for the full trapezoid the in-phase and out-phase merge
// into a triangle with a lower peak, and when even stopping from w0 does not fit the out-phase is
// made steeper than a. An open-ended profile ignores t3 and keeps running at the target rate.
//
// A start rate pointing away from the target direction is treated as zero.
func MakeTimeBased(
	forever bool,
	t0, t3 time.Duration,
	th0 int64, th0Ext int32,
	w0, wt, wmax, a int32,
) (Trajectory, error) {
	if th0Ext <= -mcountPerCount || th0Ext >= mcountPerCount {
		return Trajectory{}, utils.NewInvalidArgumentError("extended position %d out of range", th0Ext)
	}
	if abs64(th0) > MaxPosition {
		return Trajectory{}, utils.NewInvalidArgumentError("position %d out of range", th0)
	}
	req := timeRequest{
		forever: forever,
		t0:      t0.Microseconds(),
		t3:      t3.Microseconds(),
		mth0:    th0*mcountPerCount + int64(th0Ext),
		w0:      int64(w0),
		wt:      int64(wt),
		wmax:    int64(wmax),
		a:       int64(a),
	}
	return req.build(false)
}

// MakeTimeBasedPatched revises a running maneuver at time tp. The new profile starts from prev's
// exact reference at tp, so position and rate at tp are identical to prev's, and then heads for
// wt like MakeTimeBased. A maneuver cannot be patched into the opposite direction while it is
// still moving; that returns an invalid argument error and prev should be kept.
func MakeTimeBasedPatched(
	prev Trajectory,
	forever bool,
	tp, t3 time.Duration,
	wt, wmax, a int32,
) (Trajectory, error) {
	now := tp.Microseconds()
	mth0, w0, _ := prev.evaluate(now)
	req := timeRequest{
		forever: forever,
		t0:      now,
		t3:      t3.Microseconds(),
		mth0:    mth0,
		w0:      w0,
		wt:      int64(wt),
		wmax:    int64(wmax),
		a:       int64(a),
	}
	return req.build(true)
}

type timeRequest struct {
	forever bool
	t0, t3  int64
	mth0    int64
	w0, wt  int64
	wmax, a int64
}

func (req timeRequest) validate() error {
	if req.wmax <= 0 || req.wmax > MaxRate {
		return utils.NewInvalidArgumentError("max rate %d must be in (0, %d]", req.wmax, MaxRate)
	}
	if req.a < 0 || req.a > MaxAcceleration {
		return utils.NewInvalidArgumentError("acceleration %d must be in [0, %d]", req.a, MaxAcceleration)
	}
	if abs64(req.w0) > MaxRate {
		return utils.NewInvalidArgumentError("start rate %d exceeds %d", req.w0, MaxRate)
	}
	if req.forever {
		return nil
	}
	if req.t3 <= req.t0 {
		return utils.NewInvalidArgumentError("end time %dus is not after start time %dus", req.t3, req.t0)
	}
	if req.t3-req.t0 > MaxDuration.Microseconds() {
		return utils.NewInvalidArgumentError("duration %v exceeds %v",
			time.Duration(req.t3-req.t0)*time.Microsecond, MaxDuration)
	}
	return nil
}

// build lays out the profile in a forward frame where every rate is non-negative, then maps it
// back with the direction sign.
func (req timeRequest) build(patched bool) (Trajectory, error) {
	if err := req.validate(); err != nil {
		return Trajectory{}, err
	}

	dir := direction(req.wt, req.w0)
	w0 := req.w0 * dir
	if w0 < 0 {
		if patched {
			return Trajectory{}, utils.NewInvalidArgumentError(
				"cannot reverse a running maneuver: rate %d, target %d", req.w0, req.wt)
		}
		w0 = 0
	}
	wt := min(abs64(req.wt), req.wmax)

	if req.forever {
		if req.a == 0 && w0 != wt {
			return Trajectory{}, utils.NewInvalidArgumentError("zero acceleration cannot change rate from %d to %d", w0, wt)
		}
		t1 := rampTime(wt-w0, req.a)
		return layoutForever(req.t0, req.mth0, dir, w0, wt, t1), nil
	}

	duration := req.t3 - req.t0
	if req.a == 0 && (w0 != 0 || wt != 0) {
		return Trajectory{}, utils.NewInvalidArgumentError("zero acceleration cannot bring rate %d to rest", w0)
	}

	var w1, span1, span3 int64
	switch {
	case rampTime(wt-w0, req.a)+rampTime(wt, req.a) <= duration:
		// Full trapezoid.
		w1 = wt
		span1 = rampTime(wt-w0, req.a)
		span3 = rampTime(wt, req.a)
	case w0 < wt && rampTime(w0, req.a) <= duration:
		// Triangle: peak where accelerating from w0 and decelerating to rest take exactly the
		// available time.
		w1 = (mulDiv(req.a, duration, usPerSecond) + w0) / 2
		w1 = max(w0, min(w1, wt))
		span1 = rampTime(w1-w0, req.a)
		span3 = duration - span1
	default:
		// Not even stopping fits: decelerate from w0 over the whole duration.
		w1 = w0
		span3 = duration
	}
	span2 := duration - span1 - span3

	tr := Trajectory{
		w0: w0 * dir,
		w1: w1 * dir,
		w3: 0,
	}
	tr.t = [4]int64{req.t0, req.t0 + span1, req.t0 + span1 + span2, req.t3}
	tr.mth[0] = req.mth0
	tr.mth[1] = tr.mth[0] + ramp(tr.w0, tr.w1, span1, span1)
	tr.mth[2] = tr.mth[1] + travel(tr.w1, span2)
	tr.mth[3] = tr.mth[2] + ramp(tr.w1, tr.w3, span3, span3)
	tr.deriveAccelerations()
	return tr, nil
}

func layoutForever(t0, mth0, dir, w0, w1, span1 int64) Trajectory {
	tr := Trajectory{forever: true, w0: w0 * dir, w1: w1 * dir, w3: w1 * dir}
	t1 := t0 + span1
	tr.t = [4]int64{t0, t1, t1, t1}
	tr.mth[0] = mth0
	tr.mth[1] = mth0 + ramp(tr.w0, tr.w1, span1, span1)
	tr.mth[2] = tr.mth[1]
	tr.mth[3] = tr.mth[1]
	tr.deriveAccelerations()
	return tr
}

// MakeAngleBased returns a profile from th0 at t0 to th3, cruising at ±wmax and arriving at th3
// with the end rate wt (taken in the direction of travel, limited to wmax). A move too short to
// reach wmax becomes a triangle with a lower peak. A move too short to change from w0 to the end
// rate at a uses one steeper ramp, so the end rate is still met exactly at th3. th3 == th0 gives a profile that is already complete at t0.
//
// A start rate pointing away from th3 is treated as zero.
func MakeAngleBased(t0 time.Duration, th0, th3 int64, w0, wt, wmax, a int32) (Trajectory, error) {
	return MakeAngleBasedExt(t0, th0, 0, th3, w0, wt, wmax, a)
}

// MakeAngleBasedExt is MakeAngleBased for a start position with a millicount remainder th0Ext, as
// returned in Reference.CountExt. The end position th3 is in whole counts.
func MakeAngleBasedExt(t0 time.Duration, th0 int64, th0Ext int32, th3 int64, w0, wt, wmax, a int32) (Trajectory, error) {
	start := t0.Microseconds()
	if th0Ext <= -mcountPerCount || th0Ext >= mcountPerCount {
		return Trajectory{}, utils.NewInvalidArgumentError("extended position %d out of range", th0Ext)
	}
	if wmax <= 0 || wmax > MaxRate {
		return Trajectory{}, utils.NewInvalidArgumentError("max rate %d must be in (0, %d]", wmax, MaxRate)
	}
	if a < 0 || a > MaxAcceleration {
		return Trajectory{}, utils.NewInvalidArgumentError("acceleration %d must be in [0, %d]", a, MaxAcceleration)
	}
	if abs64(int64(w0)) > MaxRate {
		return Trajectory{}, utils.NewInvalidArgumentError("start rate %d exceeds %d", w0, MaxRate)
	}

	if abs64(th0) > MaxPosition || abs64(th3) > MaxPosition {
		return Trajectory{}, utils.NewInvalidArgumentError("position out of range [%d, %d]", -MaxPosition, MaxPosition)
	}

	mth0 := th0*mcountPerCount + int64(th0Ext)
	mth3 := th3 * mcountPerCount
	if mth3 == mth0 {
		tr := stationary(start, mth0, 0)
		tr.forever = false
		return tr, nil
	}

	dir := int64(1)
	if mth3 < mth0 {
		dir = -1
	}
	dist := abs64(mth3 - mth0)
	vmax, acc := int64(wmax), int64(a)
	v0 := max(int64(w0)*dir, 0)
	v3 := min(max(int64(wt)*dir, 0), vmax)

	if acc == 0 && (v0 != vmax || v3 != vmax) {
		return Trajectory{}, utils.NewInvalidArgumentError("zero acceleration requires start and end rate %d", vmax)
	}

	v1 := vmax
	if ramp(v0, vmax, rampTime(vmax-v0, acc), rampTime(vmax-v0, acc))+
		ramp(vmax, v3, rampTime(vmax-v3, acc), rampTime(vmax-v3, acc)) > dist {
		// No room to cruise at vmax. The peak follows from the energy balance
		// v1² = a·d + (v0² + v3²)/2.
		v1 = isqrt(mulDiv(acc, dist, mcountPerCount) + (v0*v0+v3*v3)/2)
		v1 = max(min(v1, vmax), 1)
	}

	var span1, span3 int64
	switch {
	case v1 < v0:
		// Too short to slow down at a: one steeper ramp from v0 to v3.
		v1 = v0
		span3 = rampSpan(v0, v3, dist)
	case v1 < v3:
		// Too short to speed up to v3 at a: one steeper ramp.
		v1 = v3
		span1 = rampSpan(v0, v3, dist)
	default:
		span1 = rampTime(v1-v0, acc)
		span3 = rampTime(v1-v3, acc)
	}

	// Whatever the ramps leave of the distance is covered at the cruise rate. Rounding the ramp
	// times down keeps this non-negative.
	d1 := ramp(v0, v1, span1, span1)
	d3 := ramp(v1, v3, span3, span3)
	d2 := max(dist-d1-d3, 0)
	span2 := int64(0)
	if d2 > 0 {
		span2 = ceilDiv(d2*(usPerSecond/mcountPerCount), v1)
	}

	tr := Trajectory{w0: v0 * dir, w1: v1 * dir, w3: v3 * dir}
	tr.t = [4]int64{start, start + span1, start + span1 + span2, start + span1 + span2 + span3}
	tr.mth[0] = mth0
	tr.mth[1] = mth0 + ramp(tr.w0, tr.w1, span1, span1)
	tr.mth[3] = mth3
	tr.mth[2] = mth3 - ramp(tr.w1, tr.w3, span3, span3)
	tr.deriveAccelerations()
	return tr, nil
}

// rampSpan is the time a linear change from vs to ve takes to cover dist millicounts.
func rampSpan(vs, ve, dist int64) int64 {
	return mulDiv(dist, 2*(usPerSecond/mcountPerCount), vs+ve)
}

func (tr *Trajectory) deriveAccelerations() {
	tr.a0, tr.a2 = 0, 0
	if span := tr.t[1] - tr.t[0]; span > 0 {
		tr.a0 = mulDiv(tr.w1-tr.w0, usPerSecond, span)
	}
	if span := tr.t[3] - tr.t[2]; span > 0 && !tr.forever {
		tr.a2 = mulDiv(tr.w3-tr.w1, usPerSecond, span)
	}
}

// direction is the sign of wt, or of w0 when wt is zero, defaulting to forward.
func direction(wt, w0 int64) int64 {
	switch {
	case wt < 0:
		return -1
	case wt > 0:
		return 1
	case w0 < 0:
		return -1
	default:
		return 1
	}
}
