package cli

import (
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/motioncore/trajectory"
)

// ProfileAction computes one profile from the flags and prints its phases and a few samples.
func ProfileAction(c *cli.Context) error {
	speed := int32(c.Int(profileFlagSpeed))
	maxRate := int32(c.Int(profileFlagMaxRate))
	if maxRate == 0 {
		maxRate = max(speed, -speed)
	}
	startRate := int32(c.Int(profileFlagStartRate))
	accel := int32(c.Int(profileFlagAccel))

	var (
		tr  trajectory.Trajectory
		err error
	)
	switch mode := c.String(profileFlagMode); mode {
	case profileModeTime:
		d := c.Duration(profileFlagDuration)
		tr, err = trajectory.MakeTimeBased(d == 0, 0, d, 0, 0, startRate, speed, maxRate, accel)
	case profileModeAngle:
		tr, err = trajectory.MakeAngleBased(
			0, 0, c.Int64(profileFlagTarget), startRate, int32(c.Int(profileFlagEndRate)), maxRate, accel)
	default:
		return errors.Errorf("unknown --%s %q, want %s or %s", profileFlagMode, mode, profileModeTime, profileModeAngle)
	}
	if err != nil {
		return err
	}

	phases := newTable("Segment", "Time", "Position")
	times := tr.PhaseTimes()
	for seg := trajectory.SegmentAccelIn; seg <= trajectory.SegmentEnd; seg++ {
		count, ext, err := tr.Start(seg)
		if err != nil {
			return err
		}
		phases.AppendRow([]interface{}{seg, times[seg], float64(count) + float64(ext)/1000})
	}
	in, out := tr.Accelerations()
	printf(c.App.Writer, "%s", phases.Render())
	printf(c.App.Writer, "rates: start %d, cruise %d, end %d; accelerations: in %d, out %d",
		tr.StartRate(), tr.CruiseRate(), tr.EndRate(), in, out)

	samples := c.Int(profileFlagSamples)
	if samples <= 0 {
		return nil
	}
	end := tr.EndTime()
	if tr.Forever() {
		// Show the ramp and as long again at cruise.
		end = max(2*times[trajectory.SegmentCruise], time.Second)
	}
	refs := newTable("Time", "Position", "Rate", "Acceleration")
	for i := 0; i <= samples; i++ {
		at := time.Duration(int64(end) * int64(i) / int64(samples))
		ref := tr.Reference(at)
		refs.AppendRow([]interface{}{at, float64(ref.MCount) / 1000, ref.Rate, ref.Acceleration})
	}
	printf(c.App.Writer, "%s", refs.Render())
	return nil
}
