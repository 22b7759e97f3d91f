package trajectory

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"go.viam.com/test"

	"go.viam.com/motioncore/utils"
)

func us(v int64) time.Duration {
	return time.Duration(v) * time.Microsecond
}

func TestStationaryHold(t *testing.T) {
	tr := MakeStationary(0, 1000, 0)
	test.That(t, tr.Forever(), test.ShouldBeTrue)
	for _, at := range []time.Duration{-time.Second, 0, time.Millisecond, time.Hour, 24 * time.Hour} {
		ref := tr.Reference(at)
		test.That(t, ref.Count, test.ShouldEqual, 1000)
		test.That(t, ref.CountExt, test.ShouldEqual, 0)
		test.That(t, ref.Rate, test.ShouldEqual, 0)
		test.That(t, ref.Acceleration, test.ShouldEqual, 0)
	}

	moving := MakeStationary(time.Second, 10, -250)
	ref := moving.Reference(3 * time.Second)
	test.That(t, ref.Count, test.ShouldEqual, 10-500)
	test.That(t, ref.Rate, test.ShouldEqual, -250)
	test.That(t, moving.Done(time.Hour), test.ShouldBeFalse)
}

func TestZeroValueTrajectory(t *testing.T) {
	var tr Trajectory
	ref := tr.Reference(time.Minute)
	test.That(t, ref, test.ShouldResemble, Reference{})
	test.That(t, tr.Done(0), test.ShouldBeTrue)
}

func TestShortMoveIsTriangular(t *testing.T) {
	tr, err := MakeAngleBased(0, 0, 50, 0, 0, 1000, 2000)
	test.That(t, err, test.ShouldBeNil)

	// 50 counts at 2000 counts/s² peaks near sqrt(2000*50) = 316 counts/s.
	test.That(t, tr.CruiseRate(), test.ShouldEqual, 316)
	times := tr.PhaseTimes()
	test.That(t, times[1], test.ShouldEqual, us(158000))
	test.That(t, times[3], test.ShouldEqual, us(316228))
	test.That(t, times[2]-times[1], test.ShouldBeLessThan, time.Millisecond)

	end := tr.Reference(tr.EndTime())
	test.That(t, end.Count, test.ShouldEqual, 50)
	test.That(t, end.CountExt, test.ShouldEqual, 0)
	test.That(t, end.Rate, test.ShouldEqual, 0)
	test.That(t, tr.Done(tr.EndTime()), test.ShouldBeTrue)

	// Holds afterwards.
	test.That(t, tr.Reference(time.Hour).MCount, test.ShouldEqual, 50000)

	in, out := tr.Accelerations()
	test.That(t, in, test.ShouldEqual, 2000)
	test.That(t, out, test.ShouldEqual, -2000)
}

func TestAngleBasedTrapezoid(t *testing.T) {
	tr, err := MakeAngleBased(0, 0, 1000, 0, 0, 500, 1000)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tr.PhaseTimes(), test.ShouldResemble, [4]time.Duration{0, us(500000), us(2000000), us(2500000)})
	test.That(t, tr.CruiseRate(), test.ShouldEqual, 500)

	mid := tr.Reference(time.Second)
	test.That(t, mid.Rate, test.ShouldEqual, 500)
	test.That(t, mid.Acceleration, test.ShouldEqual, 0)
	test.That(t, mid.Count, test.ShouldEqual, 375)

	for _, seg := range []struct {
		segment Segment
		count   int64
	}{
		{SegmentAccelIn, 0},
		{SegmentCruise, 125},
		{SegmentAccelOut, 875},
		{SegmentEnd, 1000},
	} {
		count, ext, err := tr.Start(seg.segment)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, count, test.ShouldEqual, seg.count)
		test.That(t, ext, test.ShouldEqual, 0)
	}
	_, _, err = tr.Start(Segment(7))
	test.That(t, errors.Is(err, utils.ErrInvalidArgument), test.ShouldBeTrue)
}

func TestAngleBasedReverseWithEndRate(t *testing.T) {
	tr, err := MakeAngleBased(time.Second, 200, -300, 0, -100, 400, 800)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tr.CruiseRate(), test.ShouldEqual, -400)
	test.That(t, tr.EndRate(), test.ShouldEqual, -100)

	end := tr.Reference(tr.EndTime())
	test.That(t, end.MCount, test.ShouldEqual, -300000)
	test.That(t, end.Rate, test.ShouldEqual, -100)

	// Keeps going at the end rate past t3.
	later := tr.Reference(tr.EndTime() + time.Second)
	test.That(t, later.Count, test.ShouldEqual, -400)
	test.That(t, later.Rate, test.ShouldEqual, -100)

	// Before t0 the initial state holds.
	before := tr.Reference(0)
	test.That(t, before.Count, test.ShouldEqual, 200)
	test.That(t, before.Rate, test.ShouldEqual, 0)
}

func TestAngleBasedZeroDistance(t *testing.T) {
	tr, err := MakeAngleBased(time.Second, 42, 42, 300, 0, 500, 1000)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tr.Forever(), test.ShouldBeFalse)
	test.That(t, tr.Done(time.Second), test.ShouldBeTrue)
	ref := tr.Reference(2 * time.Second)
	test.That(t, ref.Count, test.ShouldEqual, 42)
	test.That(t, ref.Rate, test.ShouldEqual, 0)
}

func TestAngleBasedSteepenedStop(t *testing.T) {
	// Stopping from 1000 counts/s at 1000 counts/s² needs 500 counts; only 100 are available.
	tr, err := MakeAngleBased(0, 0, 100, 1000, 0, 1000, 1000)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tr.CruiseRate(), test.ShouldEqual, 1000)
	_, out := tr.Accelerations()
	test.That(t, out, test.ShouldBeLessThan, -1000)

	end := tr.Reference(tr.EndTime())
	test.That(t, end.MCount, test.ShouldEqual, 100000)
	test.That(t, end.Rate, test.ShouldEqual, 0)
}

func TestTimeBasedTrapezoid(t *testing.T) {
	tr, err := MakeTimeBased(false, 0, 2*time.Second, 0, 0, 0, 500, 1000, 1000)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tr.PhaseTimes(), test.ShouldResemble, [4]time.Duration{0, us(500000), us(1500000), us(2000000)})

	for _, seg := range []struct {
		segment Segment
		mcount  int64
	}{
		{SegmentAccelIn, 0},
		{SegmentCruise, 125000},
		{SegmentAccelOut, 625000},
		{SegmentEnd, 750000},
	} {
		count, ext, err := tr.Start(seg.segment)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, count*1000+int64(ext), test.ShouldEqual, seg.mcount)
	}

	end := tr.Reference(2 * time.Second)
	test.That(t, end.Count, test.ShouldEqual, 750)
	test.That(t, end.Rate, test.ShouldEqual, 0)
	test.That(t, tr.Reference(time.Minute), test.ShouldResemble, end)
}

func TestTimeBasedTriangle(t *testing.T) {
	// 600ms at 1000 counts/s² can only reach 300 counts/s before braking.
	tr, err := MakeTimeBased(false, 0, 600*time.Millisecond, 0, 0, 0, 500, 1000, 1000)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tr.CruiseRate(), test.ShouldEqual, 300)
	test.That(t, tr.PhaseTimes(), test.ShouldResemble, [4]time.Duration{0, us(300000), us(300000), us(600000)})
	end := tr.Reference(600 * time.Millisecond)
	test.That(t, end.Count, test.ShouldEqual, 90)
	test.That(t, end.Rate, test.ShouldEqual, 0)
}

func TestTimeBasedTargetClampedToMax(t *testing.T) {
	tr, err := MakeTimeBased(false, 0, 10*time.Second, 0, 0, 0, -5000, 800, 4000)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tr.CruiseRate(), test.ShouldEqual, -800)
	for at := time.Duration(0); at <= 10*time.Second; at += 50 * time.Millisecond {
		rate := tr.Reference(at).Rate
		test.That(t, rate, test.ShouldBeLessThanOrEqualTo, 0)
		test.That(t, rate, test.ShouldBeGreaterThanOrEqualTo, -800)
	}
}

func TestTimeBasedForever(t *testing.T) {
	tr, err := MakeTimeBased(true, 0, 0, 0, 0, 0, -300, 1000, 1500)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tr.Forever(), test.ShouldBeTrue)
	test.That(t, tr.PhaseTimes()[1], test.ShouldEqual, us(200000))

	cruise, _, err := tr.Start(SegmentCruise)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cruise, test.ShouldEqual, -30)

	ref := tr.Reference(time.Hour)
	test.That(t, ref.MCount, test.ShouldEqual, -1079970000)
	test.That(t, ref.Count, test.ShouldEqual, -1079970)
	test.That(t, ref.Rate, test.ShouldEqual, -300)
	test.That(t, tr.Done(1000*time.Hour), test.ShouldBeFalse)
}

func TestTimeBasedExtendedStart(t *testing.T) {
	tr, err := MakeTimeBased(false, 0, time.Second, 7, -250, 0, 0, 100, 100)
	test.That(t, err, test.ShouldBeNil)
	ref := tr.Reference(0)
	test.That(t, ref.MCount, test.ShouldEqual, 6750)
	test.That(t, ref.Count, test.ShouldEqual, 6)
	test.That(t, ref.CountExt, test.ShouldEqual, 750)
}

func TestAngleBasedExtendedStart(t *testing.T) {
	tr, err := MakeAngleBasedExt(0, 7, -250, 100, 0, 0, 500, 2000)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tr.Reference(0).MCount, test.ShouldEqual, 6750)
	end := tr.Reference(tr.EndTime())
	test.That(t, end.MCount, test.ShouldEqual, 100_000)
	test.That(t, end.Rate, test.ShouldEqual, 0)
	assertMonotonic(t, tr, 1)
	assertContinuous(t, tr)

	// Without a remainder it is MakeAngleBased.
	plain, err := MakeAngleBased(0, 7, 100, 0, 0, 500, 2000)
	test.That(t, err, test.ShouldBeNil)
	ext, err := MakeAngleBasedExt(0, 7, 0, 100, 0, 0, 500, 2000)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ext, test.ShouldResemble, plain)
}

func TestInvalidArguments(t *testing.T) {
	for _, tc := range []struct {
		name string
		make func() (Trajectory, error)
	}{
		{"zero accel with rate change", func() (Trajectory, error) {
			return MakeTimeBased(false, 0, time.Second, 0, 0, 0, 100, 500, 0)
		}},
		{"zero accel forever", func() (Trajectory, error) {
			return MakeTimeBased(true, 0, 0, 0, 0, 0, 100, 500, 0)
		}},
		{"end before start", func() (Trajectory, error) {
			return MakeTimeBased(false, time.Second, time.Second, 0, 0, 0, 100, 500, 100)
		}},
		{"too long", func() (Trajectory, error) {
			return MakeTimeBased(false, 0, MaxDuration+time.Second, 0, 0, 0, 100, 500, 100)
		}},
		{"no max rate", func() (Trajectory, error) {
			return MakeTimeBased(false, 0, time.Second, 0, 0, 0, 100, 0, 100)
		}},
		{"negative accel", func() (Trajectory, error) {
			return MakeTimeBased(false, 0, time.Second, 0, 0, 0, 100, 500, -1)
		}},
		{"bad extended position", func() (Trajectory, error) {
			return MakeTimeBased(false, 0, time.Second, 0, 1000, 0, 100, 500, 100)
		}},
		{"angle zero accel", func() (Trajectory, error) {
			return MakeAngleBased(0, 0, 100, 0, 0, 500, 0)
		}},
		{"angle no max rate", func() (Trajectory, error) {
			return MakeAngleBased(0, 0, 100, 0, 0, -1, 100)
		}},
		{"angle bad extended position", func() (Trajectory, error) {
			return MakeAngleBasedExt(0, 0, -1000, 100, 0, 0, 100, 100)
		}},
		{"angle position range", func() (Trajectory, error) {
			return MakeAngleBased(0, 0, MaxPosition+1, 0, 0, 100, 100)
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.make()
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, errors.Is(err, utils.ErrInvalidArgument), test.ShouldBeTrue)
		})
	}

	// Zero acceleration is fine when nothing has to change.
	tr, err := MakeAngleBased(0, 0, 100, 500, 500, 500, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tr.EndTime(), test.ShouldEqual, 200*time.Millisecond)
	_, err = MakeTimeBased(true, 0, 0, 0, 0, 200, 200, 500, 0)
	test.That(t, err, test.ShouldBeNil)
}

func TestPatchContinuity(t *testing.T) {
	orig, err := MakeTimeBased(true, 0, 0, 10, 0, 0, 800, 1000, 2000)
	test.That(t, err, test.ShouldBeNil)

	for _, tp := range []time.Duration{0, 137 * time.Millisecond, 400 * time.Millisecond, 3 * time.Second} {
		patched, err := MakeTimeBasedPatched(orig, false, tp, tp+time.Second, 300, 1000, 500)
		test.That(t, err, test.ShouldBeNil)
		before, after := orig.Reference(tp), patched.Reference(tp)
		test.That(t, after.MCount, test.ShouldEqual, before.MCount)
		test.That(t, after.Count, test.ShouldEqual, before.Count)
		test.That(t, after.CountExt, test.ShouldEqual, before.CountExt)
		test.That(t, after.Rate, test.ShouldEqual, before.Rate)
		test.That(t, patched.Reference(tp+time.Second).Rate, test.ShouldEqual, 0)
	}

	// Slowing below the running rate is a patch too.
	slower, err := MakeTimeBasedPatched(orig, true, time.Second, 0, 200, 200, 1000)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, slower.Reference(time.Second).Rate, test.ShouldEqual, 800)
	test.That(t, slower.Reference(2*time.Second).Rate, test.ShouldEqual, 200)

	// Reversing while moving is refused.
	_, err = MakeTimeBasedPatched(orig, true, time.Second, 0, -200, 1000, 1000)
	test.That(t, errors.Is(err, utils.ErrInvalidArgument), test.ShouldBeTrue)
}

func TestIdempotentReference(t *testing.T) {
	tr, err := MakeAngleBased(0, 5, 12345, 0, 0, 900, 3000)
	test.That(t, err, test.ShouldBeNil)
	for _, at := range []time.Duration{0, 123456 * time.Microsecond, 7 * time.Second, tr.EndTime()} {
		test.That(t, tr.Reference(at), test.ShouldResemble, tr.Reference(at))
	}
}

// assertContinuous bounds the change of the reference across the last microsecond before each
// phase boundary.
func assertContinuous(tb testing.TB, tr Trajectory) {
	tb.Helper()
	in, out := tr.Accelerations()
	maxAcc := max(abs64(int64(in)), abs64(int64(out)))
	times := tr.PhaseTimes()
	for _, boundary := range times[1:] {
		left, right := tr.Reference(boundary-time.Microsecond), tr.Reference(boundary)
		test.That(tb, abs64(right.MCount-left.MCount), test.ShouldBeLessThanOrEqualTo, abs64(int64(left.Rate))/1000+2)
		test.That(tb, abs64(int64(right.Rate-left.Rate)), test.ShouldBeLessThanOrEqualTo, maxAcc/1_000_000+2)
	}
}

func assertMonotonic(tb testing.TB, tr Trajectory, sign int64) {
	tb.Helper()
	start, end := tr.StartTime(), tr.EndTime()
	step := max((end-start)/2000, time.Microsecond)
	prev := tr.Reference(start).MCount
	for at := start; at <= end+step; at += step {
		cur := tr.Reference(at).MCount
		test.That(tb, (cur-prev)*sign, test.ShouldBeGreaterThanOrEqualTo, 0)
		prev = cur
	}
}

func TestAngleBasedProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		th0 := int64(rng.Intn(200001) - 100000)
		dist := int64(rng.Intn([]int{10, 1000, 100000}[rng.Intn(3)] + 1))
		sign := int64(1)
		if rng.Intn(2) == 0 {
			sign = -1
		}
		th3 := th0 + sign*dist
		w0 := int32(rng.Intn(12001) - 6000)
		wt := int32(rng.Intn(12001) - 6000)
		wmax := int32(rng.Intn(5000) + 1)
		a := int32(rng.Intn(50000) + 1)

		tr, err := MakeAngleBased(0, th0, th3, w0, wt, wmax, a)
		test.That(t, err, test.ShouldBeNil)

		end := tr.Reference(tr.EndTime())
		test.That(t, end.MCount, test.ShouldEqual, th3*1000)
		test.That(t, end.Rate, test.ShouldEqual, tr.EndRate())
		test.That(t, abs64(int64(tr.EndRate())), test.ShouldBeLessThanOrEqualTo, int64(wmax))
		test.That(t, abs64(int64(tr.CruiseRate())), test.ShouldBeLessThanOrEqualTo, max(int64(wmax), abs64(int64(w0))))

		times := tr.PhaseTimes()
		test.That(t, times[0] <= times[1] && times[1] <= times[2] && times[2] <= times[3], test.ShouldBeTrue)
		assertContinuous(t, tr)
		if dist > 0 {
			assertMonotonic(t, tr, sign)
		}
	}
}

func TestTimeBasedProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 500; i++ {
		start := time.Millisecond
		duration := time.Duration(rng.Intn(5_000_000)+1) * time.Microsecond
		w0 := int32(rng.Intn(12001) - 6000)
		wt := int32(rng.Intn(12001) - 6000)
		wmax := int32(rng.Intn(5000) + 1)
		a := int32(rng.Intn(50000) + 1)
		th0 := int64(rng.Intn(200001) - 100000)

		tr, err := MakeTimeBased(false, start, start+duration, th0, 0, w0, wt, wmax, a)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, tr.Reference(start+duration).Rate, test.ShouldEqual, 0)
		test.That(t, tr.EndTime(), test.ShouldEqual, start+duration)
		assertContinuous(t, tr)

		sign := int64(1)
		if wt < 0 || (wt == 0 && w0 < 0) {
			sign = -1
		}
		assertMonotonic(t, tr, sign)

		// Patching anywhere inside keeps the reference bit-identical at the patch time.
		tp := start + time.Duration(rng.Int63n(int64(duration/time.Microsecond)+1))*time.Microsecond
		patched, err := MakeTimeBasedPatched(tr, false, tp, tp+time.Second, wt/2, wmax, a)
		if err != nil {
			test.That(t, errors.Is(err, utils.ErrInvalidArgument), test.ShouldBeTrue)
			continue
		}
		before, after := tr.Reference(tp), patched.Reference(tp)
		test.That(t, after.MCount, test.ShouldEqual, before.MCount)
		test.That(t, after.Rate, test.ShouldEqual, before.Rate)
	}
}

// floatPosition integrates the profile's piecewise linear rate in floating point.
func floatPosition(tr Trajectory, at time.Duration) float64 {
	now := float64(at.Microseconds())
	pts := []struct{ t, w float64 }{
		{float64(tr.t[0]), float64(tr.w0)},
		{float64(tr.t[1]), float64(tr.w1)},
		{float64(tr.t[2]), float64(tr.w1)},
		{float64(tr.t[3]), float64(tr.w3)},
	}
	pos := float64(tr.mth[0])
	for i := 0; i+1 < len(pts); i++ {
		a, b := pts[i], pts[i+1]
		if now <= a.t {
			break
		}
		if b.t == a.t {
			continue
		}
		e := math.Min(now, b.t)
		we := a.w + (b.w-a.w)*(e-a.t)/(b.t-a.t)
		pos += (a.w + we) * (e - a.t) / 2 / 1000
	}
	return pos
}

func TestRoundingBound(t *testing.T) {
	// Each evaluation truncates once and each of the two forward anchors once, so the integer
	// position stays within 3 millicounts of the exact integral.
	const bound = 3.0
	rng := rand.New(rand.NewSource(3))
	worst := 0.0
	for i := 0; i < 300; i++ {
		duration := time.Duration(rng.Intn(5_000_000)+1) * time.Microsecond
		w0 := int32(rng.Intn(12001) - 6000)
		wt := int32(rng.Intn(12001) - 6000)
		wmax := int32(rng.Intn(5000) + 1)
		a := int32(rng.Intn(50000) + 1)
		tr, err := MakeTimeBased(false, 0, duration, 0, 0, w0, wt, wmax, a)
		test.That(t, err, test.ShouldBeNil)
		for k := 0; k < 20; k++ {
			at := time.Duration(rng.Int63n(int64(duration/time.Microsecond)+1)) * time.Microsecond
			diff := math.Abs(float64(tr.Reference(at).MCount) - floatPosition(tr, at))
			worst = math.Max(worst, diff)
		}
	}
	test.That(t, worst, test.ShouldBeLessThan, bound)
}
