package trajectory

import (
	"math"
	"math/bits"
)

// Scale factors. Positions are kept in millicounts, times in microseconds.
const (
	mcountPerCount = 1000
	usPerSecond    = 1_000_000
)

// mulDiv returns a*b/c truncated toward zero, using a 128-bit intermediate product. Results that
// do not fit in an int64 saturate. c must not be zero.
func mulDiv(a, b, c int64) int64 {
	if a == 0 || b == 0 {
		return 0
	}
	neg := (a < 0) != (b < 0) != (c < 0)
	ua, ub, uc := absU(a), absU(b), absU(c)

	hi, lo := bits.Mul64(ua, ub)
	if hi >= uc {
		if neg {
			return math.MinInt64
		}
		return math.MaxInt64
	}
	q, _ := bits.Div64(hi, lo, uc)
	if q > math.MaxInt64 {
		if neg {
			return math.MinInt64
		}
		return math.MaxInt64
	}
	if neg {
		return -int64(q)
	}
	return int64(q)
}

func absU(v int64) uint64 {
	if v < 0 {
		return uint64(-v)
	}
	return uint64(v)
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// ceilDiv is a/b rounded up for a >= 0, b > 0.
func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}

// isqrt returns floor(sqrt(n)) for n >= 0.
func isqrt(n int64) int64 {
	if n < 2 {
		if n < 0 {
			return 0
		}
		return n
	}
	x := int64(1) << ((bits.Len64(uint64(n)) + 1) / 2)
	for {
		y := (x + n/x) / 2
		if y >= x {
			return x
		}
		x = y
	}
}

// ramp is the displacement in millicounts after dt microseconds of a rate changing linearly from
// ws to we over span microseconds. It is the exact integral of the rate, truncated once, so
// ramp(ws, we, span, span) is the phase's full displacement and the result is monotonic in dt
// while the rate keeps its sign.
func ramp(ws, we, span, dt int64) int64 {
	if span <= 0 || dt <= 0 {
		return 0
	}
	return mulDiv(2*span*ws+(we-ws)*dt, dt, 2*mcountPerCount*span)
}

// rateAt is the rate after dt microseconds of a linear change from ws to we over span.
func rateAt(ws, we, span, dt int64) int64 {
	if span <= 0 {
		return we
	}
	return ws + mulDiv(we-ws, dt, span)
}

// travel is the displacement in millicounts at a constant rate w for dt microseconds.
func travel(w, dt int64) int64 {
	return mulDiv(w, dt, usPerSecond/mcountPerCount)
}

// rampTime is how long a rate change of dw takes at acceleration a, rounded down but never zero
// for a nonzero change.
func rampTime(dw, a int64) int64 {
	if dw == 0 || a == 0 {
		return 0
	}
	return max(mulDiv(abs64(dw), usPerSecond, a), 1)
}
